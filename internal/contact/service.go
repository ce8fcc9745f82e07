package contact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"regexp"
	"strings"

	"github.com/smallbiznis/racepay/internal/config"
	"github.com/smallbiznis/racepay/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrMissingFields = errors.New("contact_missing_fields")
	ErrInvalidEmail  = errors.New("contact_invalid_email")
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

var messageTemplate = template.Must(template.New("contact").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>Contact Form Submission</title></head>
<body style="margin:0;padding:20px;font-family:Arial,sans-serif;background-color:#F3F4F6;">
  <div style="max-width:600px;margin:0 auto;background:#ffffff;border-radius:8px;padding:30px;">
    <h2 style="margin:0 0 20px;color:#111827;">{{.Event}}: New Contact Message</h2>
    <p><strong>Name:</strong> {{.Name}}</p>
    <p><strong>Email:</strong> <a href="mailto:{{.Email}}">{{.Email}}</a></p>
    <p><strong>Subject:</strong> {{.Subject}}</p>
    <div style="background:#F9FAFB;border-left:4px solid #2563EB;padding:15px;white-space:pre-wrap;">{{.Message}}</div>
  </div>
</body>
</html>`))

// Request is a message submitted through the site contact form.
type Request struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

type Params struct {
	fx.In

	Config   config.Config
	Events   *config.EventConfigHolder
	Provider email.Provider
	Log      *zap.Logger
}

type Service struct {
	supportEmail string
	events       *config.EventConfigHolder
	provider     email.Provider
	log          *zap.Logger
}

func NewService(p Params) *Service {
	return &Service{
		supportEmail: p.Config.Email.SupportEmail,
		events:       p.Events,
		provider:     p.Provider,
		log:          p.Log.Named("contact.service"),
	}
}

// Submit relays the message to the support inbox with Reply-To set to the sender.
func (s *Service) Submit(ctx context.Context, req Request) error {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Subject = strings.TrimSpace(req.Subject)
	req.Message = strings.TrimSpace(req.Message)

	if req.Name == "" || req.Email == "" || req.Message == "" {
		return ErrMissingFields
	}
	if !emailPattern.MatchString(req.Email) {
		return ErrInvalidEmail
	}

	subject := req.Subject
	if subject == "" {
		subject = "New Message"
	}
	shown := req.Subject
	if shown == "" {
		shown = "Contact Form Submission"
	}

	to := s.supportEmail
	if to == "" {
		to = s.events.Get().SupportEmail
	}

	var body bytes.Buffer
	if err := messageTemplate.Execute(&body, map[string]string{
		"Event":   s.events.Get().Name,
		"Name":    req.Name,
		"Email":   req.Email,
		"Subject": shown,
		"Message": req.Message,
	}); err != nil {
		return fmt.Errorf("render contact email: %w", err)
	}

	if err := s.provider.Send(ctx, email.Message{
		To:      []string{to},
		ReplyTo: req.Email,
		Subject: fmt.Sprintf("Contact Form: %s - From %s", subject, req.Name),
		HTML:    body.String(),
	}); err != nil {
		s.log.Error("contact email failed", zap.Error(err))
		return err
	}

	s.log.Info("contact message relayed", zap.Bool("has_subject", req.Subject != ""))
	return nil
}
