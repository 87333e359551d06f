package utils

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/apex/log"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"civicspot/models"
)

// StatusMailer emails reporters when an admin changes the status of
// their report.
type StatusMailer struct {
	client    *sendgrid.Client
	fromName  string
	fromEmail string
}

func NewStatusMailer(apiKey, fromName, fromEmail string) *StatusMailer {
	return &StatusMailer{
		client:    sendgrid.NewSendClient(apiKey),
		fromName:  fromName,
		fromEmail: fromEmail,
	}
}

func (m *StatusMailer) StatusChanged(ctx context.Context, to models.User, report *models.Report) error {
	if to.Email == "" {
		return nil
	}
	message := BuildStatusMail(m.fromName, m.fromEmail, to, report)

	response, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return err
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid: status %d: %s", response.StatusCode, response.Body)
	}
	log.Infof("Status email sent for report %s, status: %d", report.ID.Hex(), response.StatusCode)
	return nil
}

// BuildStatusMail renders the status-change message.
func BuildStatusMail(fromName, fromEmail string, to models.User, report *models.Report) *mail.SGMailV3 {
	status := StatusLabel(report.Status)

	message := mail.NewV3Mail()
	message.SetFrom(mail.NewEmail(fromName, fromEmail))
	message.Subject = fmt.Sprintf("Your report is now %s", status)

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail(to.Name, to.Email))
	message.AddPersonalizations(p)

	remarks := ""
	if n := len(report.StatusHistory); n > 0 {
		remarks = report.StatusHistory[n-1].Remarks
	}

	text := fmt.Sprintf("Hi %s,\n\nYour report \"%s\" is now %s.\n", to.Name, report.Title, status)
	body := fmt.Sprintf("<p>Hi %s,</p><p>Your report <b>%s</b> is now <b>%s</b>.</p>",
		html.EscapeString(to.Name), html.EscapeString(report.Title), status)
	if remarks != "" {
		text += fmt.Sprintf("\nRemarks: %s\n", remarks)
		body += fmt.Sprintf("<p>Remarks: %s</p>", html.EscapeString(remarks))
	}
	text += "\nThank you for helping improve your city.\nCivicSpot Team\n"
	body += "<p>Thank you for helping improve your city.<br>CivicSpot Team</p>"

	message.AddContent(mail.NewContent("text/plain", text))
	message.AddContent(mail.NewContent("text/html", body))
	return message
}

// StatusLabel turns a status value into words, e.g. "in progress".
func StatusLabel(s models.Status) string {
	return strings.ReplaceAll(string(s), "_", " ")
}

// NoopNotifier is used when SendGrid is not configured.
type NoopNotifier struct{}

func (NoopNotifier) StatusChanged(_ context.Context, to models.User, report *models.Report) error {
	log.WithFields(log.Fields{
		"report_id": report.ID.Hex(),
		"user_id":   to.ID.Hex(),
		"status":    report.Status,
	}).Debug("email notifications disabled")
	return nil
}
