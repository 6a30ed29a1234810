package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("POSTGRES_USER", "tickethub")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_DB", "tickethub")
	t.Setenv("QR_SECRET", "signing-secret")
}

func TestNew_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "USD", cfg.Checkout.Currency)
	assert.Equal(t, 10, cfg.Checkout.RateLimit)
	assert.Equal(t, "signing-secret", cfg.Checkout.QRSecret)
}

func TestNew_RequiresQRSecret(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("QR_SECRET", "")

	_, err := New()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "QR_SECRET")
}

func TestNew_RequiresPostgresCredentials(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("POSTGRES_USER", "")

	_, err := New()

	assert.Error(t, err)
}

func TestNew_InvalidPort(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("SERVER_PORT", "not-a-port")

	_, err := New()

	assert.Error(t, err)
}
