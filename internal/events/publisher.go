package events

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

type EventPublisher interface {
	PublishAccountRegistered(userID uuid.UUID, email string, isAdmin bool) error
	PublishAccountDeleted(userID uuid.UUID) error
	PublishPasswordReset(userID uuid.UUID) error
}

type NatsPublisher struct {
	conn *nats.Conn
}

func NewNatsPublisher(natsURL string) (EventPublisher, error) {
	nc, err := nats.Connect(natsURL)

	if err != nil {
		return nil, err
	}

	return &NatsPublisher{conn: nc}, nil
}

type AccountRegisteredEvent struct {
	EventType    string    `json:"event_type"`
	UserID       uuid.UUID `json:"user_id"`
	Email        string    `json:"email"`
	IsAdmin      bool      `json:"is_admin"`
	RegisteredAt time.Time `json:"registered_at"`
}

type AccountDeletedEvent struct {
	EventType string    `json:"event_type"`
	UserID    uuid.UUID `json:"user_id"`
	DeletedAt time.Time `json:"deleted_at"`
}

type PasswordResetEvent struct {
	EventType string    `json:"event_type"`
	UserID    uuid.UUID `json:"user_id"`
	ResetAt   time.Time `json:"reset_at"`
}

func (p *NatsPublisher) publish(subject string, event interface{}) error {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		slog.Error("Error marshalling event JSON", "subject", subject, "error", err)
		return err
	}

	if err := p.conn.Publish(subject, eventJSON); err != nil {
		slog.Error("Error publishing to NATS", "subject", subject, "error", err)
		return err
	}

	slog.Info("Published event to NATS", "subject", subject)

	return nil
}

func (p *NatsPublisher) PublishAccountRegistered(userID uuid.UUID, email string, isAdmin bool) error {
	return p.publish("account.registered", AccountRegisteredEvent{
		EventType:    "account.registered",
		UserID:       userID,
		Email:        email,
		IsAdmin:      isAdmin,
		RegisteredAt: time.Now(),
	})
}

func (p *NatsPublisher) PublishAccountDeleted(userID uuid.UUID) error {
	return p.publish("account.deleted", AccountDeletedEvent{
		EventType: "account.deleted",
		UserID:    userID,
		DeletedAt: time.Now(),
	})
}

func (p *NatsPublisher) PublishPasswordReset(userID uuid.UUID) error {
	return p.publish("account.password_reset", PasswordResetEvent{
		EventType: "account.password_reset",
		UserID:    userID,
		ResetAt:   time.Now(),
	})
}
