package domain

import "time"

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `mapstructure:"server"`

	// Profile selects the infrastructure defaults: "standalone" or "cluster"
	Profile Profile `mapstructure:"profile"`

	// Component configurations
	Repository RepositoryConfig `mapstructure:"repository"`
	Cache      CacheConfig      `mapstructure:"cache"`
	EventBus   EventBusConfig   `mapstructure:"eventBus"`

	// Fraud detection tuning
	Detection DetectionConfig `mapstructure:"detection"`

	// Observability
	Logging LoggingConfig `mapstructure:"logging"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// Profile represents a deployment profile.
type Profile string

const (
	// ProfileStandalone runs on SQLite + channels + in-process LRU
	ProfileStandalone Profile = "standalone"

	// ProfileCluster runs on PostgreSQL + NATS + Redis
	ProfileCluster Profile = "cluster"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"serviceName"`
}

// DetectionConfig groups the tunable parameters of the fraud pipeline.
type DetectionConfig struct {
	Velocity        VelocityConfig         `mapstructure:"velocity"`
	Geo             GeoConfig              `mapstructure:"geo"`
	Scoring         ScoringConfig          `mapstructure:"scoring"`
	Decision        DecisionConfig         `mapstructure:"decision"`
	Engine          EngineConfig           `mapstructure:"engine"`
	ExpressionRules []ExpressionRuleConfig `mapstructure:"expressionRules"`
}

// VelocityConfig holds the rolling window limits.
type VelocityConfig struct {
	Enabled                bool    `mapstructure:"enabled"`
	MaxTransactionsPerHour int     `mapstructure:"maxTransactionsPerHour"`
	MaxTransactionsPerDay  int     `mapstructure:"maxTransactionsPerDay"`
	MaxAmountPerHour       float64 `mapstructure:"maxAmountPerHour"`
	MaxAmountPerDay        float64 `mapstructure:"maxAmountPerDay"`
}

// GeoConfig holds the location anomaly parameters.
type GeoConfig struct {
	Enabled              bool          `mapstructure:"enabled"`
	MinTimeMinutes       int           `mapstructure:"minTimeMinutes"`
	MaxSpeedKmh          float64       `mapstructure:"maxSpeedKmh"`
	CountryWindow        time.Duration `mapstructure:"countryWindow"`
	MaxDistinctCountries int           `mapstructure:"maxDistinctCountries"`
	HighRiskCountries    []string      `mapstructure:"highRiskCountries"`
}

// ScoringConfig holds the risk score weights.
type ScoringConfig struct {
	BaseScore         float64 `mapstructure:"baseScore"`
	MaxScore          float64 `mapstructure:"maxScore"`
	RuleWeight        float64 `mapstructure:"ruleWeight"`
	TransactionWeight float64 `mapstructure:"transactionWeight"`
	AccountWeight     float64 `mapstructure:"accountWeight"`
	CustomerWeight    float64 `mapstructure:"customerWeight"`
}

// DecisionConfig holds the decision thresholds.
type DecisionConfig struct {
	AutoApproveThreshold    float64  `mapstructure:"autoApproveThreshold"`
	ManualReviewThreshold   float64  `mapstructure:"manualReviewThreshold"`
	AutoRejectThreshold     float64  `mapstructure:"autoRejectThreshold"`
	HighConfidenceThreshold float64  `mapstructure:"highConfidenceThreshold"`
	MultiHighSeverityReject float64  `mapstructure:"multiHighSeverityReject"`
	CriticalRules           []string `mapstructure:"criticalRules"`
}

// EngineConfig controls rule execution.
type EngineConfig struct {
	// Workers > 1 evaluates rules concurrently; results keep registration order.
	Workers int `mapstructure:"workers"`
}

// ExpressionRuleConfig declares a CEL rule.
type ExpressionRuleConfig struct {
	Name        string  `mapstructure:"name"`
	Version     string  `mapstructure:"version"`
	Description string  `mapstructure:"description"`
	Expression  string  `mapstructure:"expression"`
	Score       float64 `mapstructure:"score"` // used when the expression is boolean
	Enabled     bool    `mapstructure:"enabled"`
	Priority    int     `mapstructure:"priority"`
}

// Built-in rule names.
const (
	RuleVelocity    = "VELOCITY_RULE"
	RuleGeoLocation = "GEO_LOCATION_RULE"
)

// DefaultDetectionConfig returns the stock thresholds and weights.
func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		Velocity: VelocityConfig{
			Enabled:                true,
			MaxTransactionsPerHour: 10,
			MaxTransactionsPerDay:  50,
			MaxAmountPerHour:       10000,
			MaxAmountPerDay:        50000,
		},
		Geo: GeoConfig{
			Enabled:              true,
			MinTimeMinutes:       60,
			MaxSpeedKmh:          800,
			CountryWindow:        6 * time.Hour,
			MaxDistinctCountries: 3,
			HighRiskCountries:    []string{"KP", "NORTH KOREA", "IR", "IRAN", "SY", "SYRIA", "CU", "CUBA"},
		},
		Scoring: ScoringConfig{
			BaseScore:         20,
			MaxScore:          100,
			RuleWeight:        0.6,
			TransactionWeight: 0.2,
			AccountWeight:     0.1,
			CustomerWeight:    0.1,
		},
		Decision: DecisionConfig{
			AutoApproveThreshold:    30,
			ManualReviewThreshold:   70,
			AutoRejectThreshold:     85,
			HighConfidenceThreshold: 80,
			MultiHighSeverityReject: 75,
			CriticalRules:           []string{RuleVelocity, RuleGeoLocation},
		},
		Engine: EngineConfig{
			Workers: 1,
		},
	}
}

// DefaultConfig returns a default configuration for the standalone profile.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Profile: ProfileStandalone,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
			SnapshotTTL:  time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Detection: DefaultDetectionConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

// ClusterConfig returns a configuration for the cluster profile.
func ClusterConfig() *Config {
	cfg := DefaultConfig()
	cfg.Profile = ProfileCluster
	cfg.Repository = RepositoryConfig{
		Driver:          "postgres",
		PostgresHost:    "localhost",
		PostgresPort:    5432,
		PostgresUser:    "kestrel",
		PostgresDB:      "kestrel",
		PostgresSSLMode: "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       30 * time.Second,
		SnapshotTTL:    time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
