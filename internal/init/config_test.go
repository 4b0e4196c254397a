package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitHasNoDefaultJWTSecret(t *testing.T) {
	viper.Reset()
	t.Setenv("MODE", "server")
	t.Setenv("JWT_SECRET", "")

	cfg := Init()
	assert.Empty(t, cfg.JWTSecret)
	assert.ErrorIs(t, cfg.Validate(), ErrInsecureJWTSecret)
}

func TestInitReadsJWTSecretFromEnv(t *testing.T) {
	viper.Reset()
	t.Setenv("MODE", "server")
	t.Setenv("JWT_SECRET", "5f0c1e6a9b7d4e2f8a3c6b1d0e9f7a2c")

	cfg := Init()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "5f0c1e6a9b7d4e2f8a3c6b1d0e9f7a2c", cfg.JWTSecret)
}

func TestValidateRejectsPlaceholderSecret(t *testing.T) {
	for _, mode := range []string{"server", "worker"} {
		for _, secret := range []string{"", "change-me", "secret"} {
			cfg := &Config{Mode: mode, JWTSecret: secret}
			assert.ErrorIs(t, cfg.Validate(), ErrInsecureJWTSecret, "mode=%s secret=%q", mode, secret)
		}
	}
}

func TestValidateMigrateNeedsNoSecret(t *testing.T) {
	cfg := &Config{Mode: "migrate"}
	assert.NoError(t, cfg.Validate())
}
