// Package mailer sends quota-alert email for the generation backend.
package mailer

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"ieltsprep/internal/config"
	"ieltsprep/internal/observability"
	contextutils "ieltsprep/internal/utils"

	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/mail.v2"
)

// Mailer defines the email sending functionality consumed by the usage
// tracker.
type Mailer interface {
	// SendEmail sends one email rendered from the named body template.
	SendEmail(ctx context.Context, to, subject, templateName string, data map[string]interface{}) error

	// IsEnabled returns whether email functionality is enabled.
	IsEnabled() bool
}

// EmailService sends mail over SMTP.
type EmailService struct {
	cfg    *config.Config
	logger *observability.Logger
	dialer *mail.Dialer
}

// NewEmailService creates an email service. When email is disabled in
// config, SendEmail becomes a logged no-op.
func NewEmailService(cfg *config.Config, logger *observability.Logger) *EmailService {
	var dialer *mail.Dialer
	if cfg.Email.Enabled && cfg.Email.SMTP.Host != "" {
		dialer = mail.NewDialer(
			cfg.Email.SMTP.Host,
			cfg.Email.SMTP.Port,
			cfg.Email.SMTP.Username,
			cfg.Email.SMTP.Password,
		)
	}
	return &EmailService{
		cfg:    cfg,
		logger: logger,
		dialer: dialer,
	}
}

// SendEmail sends a single message.
func (e *EmailService) SendEmail(ctx context.Context, to, subject, templateName string, data map[string]interface{}) (err error) {
	ctx, span := observability.TraceFunction(ctx, "mailer", "send_email",
		attribute.String("email.to", to),
		attribute.String("email.template", templateName),
	)
	defer observability.FinishSpan(span, &err)

	if !e.IsEnabled() {
		e.logger.Info(ctx, "Email disabled, skipping send", map[string]interface{}{
			"to":       to,
			"template": templateName,
		})
		return nil
	}

	body, err := e.renderBody(templateName, data)
	if err != nil {
		return contextutils.WrapError(err, "failed to render email body")
	}

	m := mail.NewMessage()
	m.SetHeader("From", fmt.Sprintf("%s <%s>", e.cfg.Email.SMTP.FromName, e.cfg.Email.SMTP.FromAddress))
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	if err := e.dialer.DialAndSend(m); err != nil {
		return contextutils.WrapError(err, "failed to send email")
	}

	e.logger.Info(ctx, "Email sent", map[string]interface{}{
		"to":       to,
		"template": templateName,
	})
	return nil
}

// IsEnabled reports whether SMTP is configured and enabled.
func (e *EmailService) IsEnabled() bool {
	return e.cfg.Email.Enabled && e.cfg.Email.SMTP.Host != ""
}

var quotaAlertTemplate = template.Must(template.New("quota_alert").Parse(`
<html>
<body style="font-family: sans-serif;">
  <h2>You're close to today's generation limit</h2>
  <p>You have used <strong>{{.TokensUsed}}</strong> of your <strong>{{.Ceiling}}</strong> daily tokens.</p>
  <p>Generation requests past the limit will fail with a quota error until tomorrow. Shorter tests and lower question counts use fewer tokens.</p>
</body>
</html>`))

func (e *EmailService) renderBody(templateName string, data map[string]interface{}) (string, error) {
	switch templateName {
	case "quota_alert":
		var buf strings.Builder
		if err := quotaAlertTemplate.Execute(&buf, data); err != nil {
			return "", err
		}
		return buf.String(), nil
	default:
		return "", fmt.Errorf("unknown email template: %s", templateName)
	}
}
