// Package config loads Kestrel configuration from defaults, an optional
// YAML file and KESTREL_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g.
// KESTREL_SERVER_PORT or KESTREL_DETECTION_DECISION_AUTOREJECTTHRESHOLD.
const EnvPrefix = "KESTREL"

// Load reads configuration. An empty path searches ./kestrel.yaml,
// ./configs/kestrel.yaml and /etc/kestrel/kestrel.yaml and tolerates none
// existing; an explicit path must exist. The profile, from file or
// KESTREL_PROFILE, selects the base defaults.
func Load(path string) (*domain.Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("kestrel")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/kestrel")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	base := domain.DefaultConfig()
	if domain.Profile(v.GetString("profile")) == domain.ProfileCluster {
		base = domain.ClusterConfig()
	}
	setDefaults(v, base)

	cfg := &domain.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so environment overrides apply even
// without a config file.
func setDefaults(v *viper.Viper, c *domain.Config) {
	v.SetDefault("profile", string(c.Profile))

	v.SetDefault("server.host", c.Server.Host)
	v.SetDefault("server.port", c.Server.Port)
	v.SetDefault("server.readTimeout", c.Server.ReadTimeout)
	v.SetDefault("server.writeTimeout", c.Server.WriteTimeout)

	v.SetDefault("repository.driver", c.Repository.Driver)
	v.SetDefault("repository.sqlitePath", c.Repository.SQLitePath)
	v.SetDefault("repository.postgresHost", c.Repository.PostgresHost)
	v.SetDefault("repository.postgresPort", c.Repository.PostgresPort)
	v.SetDefault("repository.postgresUser", c.Repository.PostgresUser)
	v.SetDefault("repository.postgresPassword", c.Repository.PostgresPassword)
	v.SetDefault("repository.postgresDb", c.Repository.PostgresDB)
	v.SetDefault("repository.postgresSslMode", c.Repository.PostgresSSLMode)
	v.SetDefault("repository.maxOpenConns", c.Repository.MaxOpenConns)
	v.SetDefault("repository.maxIdleConns", c.Repository.MaxIdleConns)
	v.SetDefault("repository.connMaxLifetime", c.Repository.ConnMaxLifetime)

	v.SetDefault("cache.type", c.Cache.Type)
	v.SetDefault("cache.localMaxSize", c.Cache.LocalMaxSize)
	v.SetDefault("cache.localTtl", c.Cache.LocalTTL)
	v.SetDefault("cache.redisAddr", c.Cache.RedisAddr)
	v.SetDefault("cache.redisPassword", c.Cache.RedisPassword)
	v.SetDefault("cache.redisDb", c.Cache.RedisDB)
	v.SetDefault("cache.enableTwoPhase", c.Cache.EnableTwoPhase)
	v.SetDefault("cache.snapshotTtl", c.Cache.SnapshotTTL)

	v.SetDefault("eventBus.type", c.EventBus.Type)
	v.SetDefault("eventBus.channelBufferSize", c.EventBus.ChannelBufferSize)
	v.SetDefault("eventBus.natsUrl", c.EventBus.NATSUrl)
	v.SetDefault("eventBus.natsToken", c.EventBus.NATSToken)
	v.SetDefault("eventBus.natsMaxReconnects", c.EventBus.NATSMaxReconnects)
	v.SetDefault("eventBus.natsReconnectWait", c.EventBus.NATSReconnectWait)

	d := c.Detection
	v.SetDefault("detection.velocity.enabled", d.Velocity.Enabled)
	v.SetDefault("detection.velocity.maxTransactionsPerHour", d.Velocity.MaxTransactionsPerHour)
	v.SetDefault("detection.velocity.maxTransactionsPerDay", d.Velocity.MaxTransactionsPerDay)
	v.SetDefault("detection.velocity.maxAmountPerHour", d.Velocity.MaxAmountPerHour)
	v.SetDefault("detection.velocity.maxAmountPerDay", d.Velocity.MaxAmountPerDay)

	v.SetDefault("detection.geo.enabled", d.Geo.Enabled)
	v.SetDefault("detection.geo.minTimeMinutes", d.Geo.MinTimeMinutes)
	v.SetDefault("detection.geo.maxSpeedKmh", d.Geo.MaxSpeedKmh)
	v.SetDefault("detection.geo.countryWindow", d.Geo.CountryWindow)
	v.SetDefault("detection.geo.maxDistinctCountries", d.Geo.MaxDistinctCountries)
	v.SetDefault("detection.geo.highRiskCountries", d.Geo.HighRiskCountries)

	v.SetDefault("detection.scoring.baseScore", d.Scoring.BaseScore)
	v.SetDefault("detection.scoring.maxScore", d.Scoring.MaxScore)
	v.SetDefault("detection.scoring.ruleWeight", d.Scoring.RuleWeight)
	v.SetDefault("detection.scoring.transactionWeight", d.Scoring.TransactionWeight)
	v.SetDefault("detection.scoring.accountWeight", d.Scoring.AccountWeight)
	v.SetDefault("detection.scoring.customerWeight", d.Scoring.CustomerWeight)

	v.SetDefault("detection.decision.autoApproveThreshold", d.Decision.AutoApproveThreshold)
	v.SetDefault("detection.decision.manualReviewThreshold", d.Decision.ManualReviewThreshold)
	v.SetDefault("detection.decision.autoRejectThreshold", d.Decision.AutoRejectThreshold)
	v.SetDefault("detection.decision.highConfidenceThreshold", d.Decision.HighConfidenceThreshold)
	v.SetDefault("detection.decision.multiHighSeverityReject", d.Decision.MultiHighSeverityReject)
	v.SetDefault("detection.decision.criticalRules", d.Decision.CriticalRules)

	v.SetDefault("detection.engine.workers", d.Engine.Workers)

	v.SetDefault("logging.level", c.Logging.Level)
	v.SetDefault("logging.format", c.Logging.Format)
	v.SetDefault("tracing.enabled", c.Tracing.Enabled)
	v.SetDefault("tracing.serviceName", c.Tracing.ServiceName)
}

// Validate reports every configuration problem at once.
func Validate(c *domain.Config) error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Profile == domain.ProfileStandalone || c.Profile == domain.ProfileCluster,
		"profile must be standalone or cluster, got %q", c.Profile)
	check(c.Server.Port > 0 && c.Server.Port < 65536, "server.port out of range: %d", c.Server.Port)

	switch c.Repository.Driver {
	case "sqlite":
		check(c.Repository.SQLitePath != "", "repository.sqlitePath is required for sqlite")
	case "postgres":
		check(c.Repository.PostgresHost != "", "repository.postgresHost is required for postgres")
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unsupported repository.driver %q", c.Repository.Driver))
	}

	switch c.Cache.Type {
	case "memory", "none", "":
	case "redis":
		check(c.Cache.RedisAddr != "", "cache.redisAddr is required for redis")
	default:
		errs = append(errs, fmt.Errorf("unsupported cache.type %q", c.Cache.Type))
	}

	switch c.EventBus.Type {
	case "channel", "":
	case "nats":
		check(c.EventBus.NATSUrl != "", "eventBus.natsUrl is required for nats")
	default:
		errs = append(errs, fmt.Errorf("unsupported eventBus.type %q", c.EventBus.Type))
	}

	dec := c.Detection.Decision
	check(dec.AutoApproveThreshold <= dec.ManualReviewThreshold && dec.ManualReviewThreshold <= dec.AutoRejectThreshold,
		"decision thresholds must satisfy autoApprove <= manualReview <= autoReject")

	sc := c.Detection.Scoring
	check(sc.MaxScore > 0, "detection.scoring.maxScore must be positive")
	check(sc.RuleWeight >= 0 && sc.TransactionWeight >= 0 && sc.AccountWeight >= 0 && sc.CustomerWeight >= 0,
		"detection.scoring weights must be non-negative")

	check(c.Detection.Engine.Workers >= 0, "detection.engine.workers must not be negative")

	names := make(map[string]bool)
	for i, r := range c.Detection.ExpressionRules {
		check(r.Name != "", "detection.expressionRules[%d].name is required", i)
		check(r.Expression != "", "detection.expressionRules[%d].expression is required", i)
		check(!names[r.Name], "duplicate expression rule %q", r.Name)
		names[r.Name] = true
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unsupported logging.level %q", c.Logging.Level))
	}

	return errors.Join(errs...)
}
