package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"

	"trailguard/core"
)

// EmailConfig configures the SMTP alert sender.
type EmailConfig struct {
	SMTPHost    string `json:"smtp_host" mapstructure:"smtp_host"`
	SMTPPort    int    `json:"smtp_port" mapstructure:"smtp_port"`
	Username    string `json:"smtp_username" mapstructure:"username"`
	Password    string `json:"-" mapstructure:"password"`
	FromAddress string `json:"from_address" mapstructure:"from_address"`
}

// EmailSender delivers alerts over SMTP with an HTML body.
type EmailSender struct {
	config EmailConfig
	logger *zap.SugaredLogger

	// sendMail is swappable for tests.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailSender creates an email sender against the configured SMTP server.
func NewEmailSender(config EmailConfig, logger *zap.SugaredLogger) *EmailSender {
	return &EmailSender{
		config:   config,
		logger:   logger,
		sendMail: smtp.SendMail,
	}
}

func (s *EmailSender) Channel() core.Channel { return core.ChannelEmail }

func (s *EmailSender) Validate(r *core.Recipient) error {
	return requireEmail(r)
}

// Send delivers the alert as an HTML email. SMTP has no provider message id,
// so the returned id is always empty.
func (s *EmailSender) Send(ctx context.Context, r *core.Recipient, text string) (string, error) {
	if s.config.SMTPHost == "" {
		return "", fmt.Errorf("%w: smtp server not configured", core.ErrChannelNotConfigured)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	subject := emailSubject(text)
	body, err := formatEmailBody(r.Name, text)
	if err != nil {
		return "", fmt.Errorf("failed to render alert email: %w", err)
	}

	message := fmt.Sprintf("From: %s\r\n", s.config.FromAddress)
	message += fmt.Sprintf("To: %s\r\n", r.Email)
	message += fmt.Sprintf("Subject: %s\r\n", subject)
	message += "Content-Type: text/html; charset=UTF-8\r\n"
	message += "\r\n" + body

	addr := fmt.Sprintf("%s:%d", s.config.SMTPHost, s.config.SMTPPort)
	var auth smtp.Auth
	if s.config.Username != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.SMTPHost)
	}

	if err := s.sendMail(addr, auth, s.config.FromAddress, []string{r.Email}, []byte(message)); err != nil {
		return "", fmt.Errorf("failed to send alert email: %w", err)
	}

	s.logger.Infow("Sent email alert", "recipient_id", r.ID, "to", r.Email)
	return "", nil
}

// emailSubject uses the first line of the alert text as the subject.
func emailSubject(text string) string {
	first := text
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		first = text[:i]
	}
	return strings.TrimSpace(first)
}

var emailTemplate = template.Must(template.New("alert").Parse(`
<html>
<head>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        .alert { border-left: 4px solid #e65100; padding: 15px; background: #f9f9f9; }
        .field { margin: 8px 0; white-space: pre-line; }
        .footer { margin-top: 15px; color: #757575; font-size: 12px; }
    </style>
</head>
<body>
    <div class="alert">
        <h2>Wildlife Alert</h2>
        <p>Hello {{.RecipientName}},</p>
        <div class="field">{{.Body}}</div>
        <div class="footer">Automated alert from TrailGuard &middot; {{.SentAt}}</div>
    </div>
</body>
</html>
`))

func formatEmailBody(recipientName, text string) (string, error) {
	data := struct {
		RecipientName string
		Body          string
		SentAt        string
	}{
		RecipientName: recipientName,
		Body:          text,
		SentAt:        time.Now().UTC().Format(time.RFC3339),
	}

	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
