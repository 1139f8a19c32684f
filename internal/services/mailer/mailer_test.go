package mailer

import (
	"context"
	"testing"

	"ieltsprep/internal/config"
	"ieltsprep/internal/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsEnabled(t *testing.T) {
	cases := []struct {
		name    string
		enabled bool
		host    string
		want    bool
	}{
		{"disabled", false, "smtp.example.com", false},
		{"enabled without host", true, "", false},
		{"enabled with host", true, "smtp.example.com", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &config.Config{}
			cfg.Email.Enabled = tc.enabled
			cfg.Email.SMTP.Host = tc.host
			svc := NewEmailService(cfg, observability.NewLogger(nil))
			assert.Equal(t, tc.want, svc.IsEnabled())
		})
	}
}

func TestSendEmail_DisabledIsNoop(t *testing.T) {
	svc := NewEmailService(&config.Config{}, observability.NewLogger(nil))

	err := svc.SendEmail(context.Background(), "someone@example.com", "subject", "quota_alert", nil)
	assert.NoError(t, err)
}

func TestRenderBody_QuotaAlert(t *testing.T) {
	svc := NewEmailService(&config.Config{}, observability.NewLogger(nil))

	body, err := svc.renderBody("quota_alert", map[string]interface{}{
		"TokensUsed": 900000,
		"Ceiling":    1000000,
	})
	require.NoError(t, err)
	assert.Contains(t, body, "900000")
	assert.Contains(t, body, "1000000")
}

func TestRenderBody_UnknownTemplate(t *testing.T) {
	svc := NewEmailService(&config.Config{}, observability.NewLogger(nil))

	_, err := svc.renderBody("welcome", nil)
	assert.Error(t, err)
}
