// Package email notifies configured watchers when new incidents arrive.
package email

import (
	"fmt"
	"html"

	"github.com/apex/log"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"mangrovewatch/config"
	"mangrovewatch/models"
)

// Sender handles incident notification emails via SendGrid.
type Sender struct {
	config *config.Config
	client *sendgrid.Client
}

// NewSender creates a sender, or nil when SendGrid is not configured so
// callers can skip notification entirely.
func NewSender(cfg *config.Config) *Sender {
	if cfg.SendGridAPIKey == "" || len(cfg.NotifyEmails) == 0 {
		return nil
	}
	return &Sender{
		config: cfg,
		client: sendgrid.NewSendClient(cfg.SendGridAPIKey),
	}
}

// SendIncidentNotification emails every configured recipient about a new
// incident. Per-recipient failures are logged and skipped.
func (s *Sender) SendIncidentNotification(incident *models.Incident) error {
	log.Infof("Sending incident notification to %d recipients", len(s.config.NotifyEmails))

	for _, recipient := range s.config.NotifyEmails {
		if err := s.sendOne(recipient, incident); err != nil {
			log.Warnf("Error sending email to %s: %v", recipient, err)
			// Continue with other recipients
		}
	}

	return nil
}

func (s *Sender) sendOne(recipient string, incident *models.Incident) error {
	from := mail.NewEmail(s.config.SendGridFromName, s.config.SendGridFromEmail)
	to := mail.NewEmail(recipient, recipient)

	subject := fmt.Sprintf("New mangrove incident: %s", incident.Type)
	if incident.Title != "" {
		subject = fmt.Sprintf("New mangrove incident: %s", incident.Title)
	}

	message := mail.NewV3Mail()
	message.SetFrom(from)
	message.Subject = subject

	p := mail.NewPersonalization()
	p.AddTos(to)
	message.AddPersonalizations(p)

	message.AddContent(mail.NewContent("text/plain", s.plainText(incident)))
	message.AddContent(mail.NewContent("text/html", s.htmlText(incident)))

	response, err := s.client.Send(message)
	if err != nil {
		return err
	}

	log.Infof("Email sent to %s! Status: %d", recipient, response.StatusCode)
	return nil
}

func (s *Sender) plainText(incident *models.Incident) string {
	return fmt.Sprintf(`Hello,

A new mangrove incident has been reported.

INCIDENT:
Type: %s
Severity: %s
Description: %s
Location: %.4f, %.4f (%s)
Images: %d

Best regards,
The Mangrove Watch Team`,
		incident.Type,
		incident.Severity,
		incident.Description,
		incident.Location.Latitude,
		incident.Location.Longitude,
		incident.Location.Source,
		len(incident.Images))
}

func (s *Sender) htmlText(incident *models.Incident) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>Mangrove Watch Incident</title>
</head>
<body>
    <h2>New mangrove incident reported</h2>
    <p><strong>Type:</strong> %s</p>
    <p><strong>Severity:</strong> %s</p>
    <p><strong>Description:</strong> %s</p>
    <p><strong>Location:</strong> %.4f, %.4f (%s)</p>
    <p><strong>Images:</strong> %d</p>

    <p>Best regards,<br>The Mangrove Watch Team</p>
</body>
</html>`,
		html.EscapeString(string(incident.Type)),
		html.EscapeString(string(incident.Severity)),
		html.EscapeString(incident.Description),
		incident.Location.Latitude,
		incident.Location.Longitude,
		incident.Location.Source,
		len(incident.Images))
}
