package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		PublicBaseURL: "https://run.example.com",
		Gateway: GatewayConfig{
			ClientID:      "client",
			ClientSecret:  "secret",
			ClientVersion: "1",
			Environment:   GatewaySandbox,
		},
		Reconcile: ReconcileConfig{Enabled: true, Interval: time.Minute},
	}
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateReportsEveryMissingField(t *testing.T) {
	err := Config{Gateway: GatewayConfig{Environment: "STAGING"}}.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		"PHONEPE_CLIENT_ID",
		"PHONEPE_CLIENT_SECRET",
		"PHONEPE_CLIENT_VERSION",
		"PHONEPE_ENV",
		"PUBLIC_BASE_URL",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestValidateRejectsHalfConfiguredWebhook(t *testing.T) {
	cfg := validConfig()
	cfg.Webhook.Username = "hook"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PHONEPE_WEBHOOK_USERNAME")
}

func TestLoadDerivesGatewayURLsFromEnvironment(t *testing.T) {
	t.Setenv("PHONEPE_ENV", "production")
	t.Setenv("PUBLIC_BASE_URL", "https://run.example.com/")

	cfg := Load()
	assert.Equal(t, GatewayProduction, cfg.Gateway.Environment)
	assert.Equal(t, "https://api.phonepe.com/apis/pg", cfg.Gateway.APIBaseURL)
	assert.Contains(t, cfg.Gateway.AuthURL, "identity-manager")
	assert.Equal(t, "https://run.example.com", cfg.PublicBaseURL)
}

func TestLoadFallsBackToDefaultsOnBadNumbers(t *testing.T) {
	t.Setenv("RECONCILE_INTERVAL", "soon")
	t.Setenv("SMTP_PORT", "abc")

	cfg := Load()
	assert.Equal(t, 2*time.Minute, cfg.Reconcile.Interval)
	assert.Equal(t, 587, cfg.Email.SMTPPort)
}

func TestWebhookEnabled(t *testing.T) {
	assert.False(t, WebhookConfig{}.Enabled())
	assert.True(t, WebhookConfig{Username: "u", Password: "p"}.Enabled())
}

func TestStaticEventConfigHolder(t *testing.T) {
	holder := NewStaticEventConfigHolder(DefaultEventConfig())
	assert.Equal(t, "Ravulapalem Run 2025", holder.Get().Name)
	assert.Error(t, validateEventConfig(EventConfig{}))
}
