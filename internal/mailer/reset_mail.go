package mailer

import (
	"bytes"
	"text/template"
)

const ResetSubject = "Password Reset OTP"

var resetTemplate = template.Must(template.New("reset_otp").Parse(
	`Your password reset OTP is {{.OTP}}. It is valid for {{.Validity}}.`,
))

// ResetBody renders the recovery message carrying the one-time code.
func ResetBody(otp, validity string) (string, error) {
	var body bytes.Buffer
	err := resetTemplate.Execute(&body, struct {
		OTP      string
		Validity string
	}{OTP: otp, Validity: validity})
	if err != nil {
		return "", err
	}
	return body.String(), nil
}
