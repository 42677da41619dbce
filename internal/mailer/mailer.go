package mailer

import "context"

// Mailer delivers a single message. Send blocks until the provider accepts
// or rejects the message; callers treat a returned error as a failed
// delivery, never as best-effort.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}
