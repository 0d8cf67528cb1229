package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kestrel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, domain.ProfileStandalone, cfg.Profile)
	assert.Equal(t, "sqlite", cfg.Repository.Driver)
	assert.Equal(t, "channel", cfg.EventBus.Type)
	assert.Equal(t, 85.0, cfg.Detection.Decision.AutoRejectThreshold)
	assert.Equal(t, 6*time.Hour, cfg.Detection.Geo.CountryWindow)
	assert.Equal(t, []string{domain.RuleVelocity, domain.RuleGeoLocation}, cfg.Detection.Decision.CriticalRules)
}

func TestLoadClusterProfile(t *testing.T) {
	path := writeConfig(t, "profile: cluster\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, domain.ProfileCluster, cfg.Profile)
	assert.Equal(t, "postgres", cfg.Repository.Driver)
	assert.Equal(t, "redis", cfg.Cache.Type)
	assert.Equal(t, "nats", cfg.EventBus.Type)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: info\n")
	t.Setenv("KESTREL_SERVER_PORT", "7070")
	t.Setenv("KESTREL_DETECTION_DECISION_AUTOREJECTTHRESHOLD", "90")
	t.Setenv("KESTREL_LOGGING_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 90.0, cfg.Detection.Decision.AutoRejectThreshold)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadExpressionRules(t *testing.T) {
	path := writeConfig(t, `
detection:
  expressionRules:
    - name: LARGE_CRYPTO
      version: "1.0"
      expression: type == "CRYPTOCURRENCY_EXCHANGE" && amount > 5000.0
      score: 65
      enabled: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Detection.ExpressionRules, 1)
	r := cfg.Detection.ExpressionRules[0]
	assert.Equal(t, "LARGE_CRYPTO", r.Name)
	assert.Equal(t, 65.0, r.Score)
	assert.True(t, r.Enabled)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Run("DefaultsAreValid", func(t *testing.T) {
		assert.NoError(t, Validate(domain.DefaultConfig()))
		assert.NoError(t, Validate(domain.ClusterConfig()))
	})

	t.Run("ThresholdOrder", func(t *testing.T) {
		cfg := domain.DefaultConfig()
		cfg.Detection.Decision.ManualReviewThreshold = 90
		assert.ErrorContains(t, Validate(cfg), "decision thresholds")
	})

	t.Run("CollectsAllProblems", func(t *testing.T) {
		cfg := domain.DefaultConfig()
		cfg.Server.Port = 0
		cfg.Repository.Driver = "oracle"
		cfg.Logging.Level = "verbose"

		err := Validate(cfg)
		require.Error(t, err)
		assert.ErrorContains(t, err, "server.port")
		assert.ErrorContains(t, err, "repository.driver")
		assert.ErrorContains(t, err, "logging.level")
	})

	t.Run("DuplicateExpressionRule", func(t *testing.T) {
		cfg := domain.DefaultConfig()
		cfg.Detection.ExpressionRules = []domain.ExpressionRuleConfig{
			{Name: "A", Expression: "true"},
			{Name: "A", Expression: "false"},
		}
		assert.ErrorContains(t, Validate(cfg), "duplicate expression rule")
	})
}
