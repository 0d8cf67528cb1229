// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStore reads and writes transactions.
// Time windows are inclusive at both ends.
type TransactionStore interface {
	SaveTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, txID string) (*Transaction, error)

	// LastTransactionBefore returns the most recent transaction of the account
	// strictly before the given time, or ErrNotFound.
	LastTransactionBefore(ctx context.Context, accountID string, before time.Time) (*Transaction, error)

	ListTransactions(ctx context.Context, accountID string, from, to time.Time) ([]*Transaction, error)

	// ListLocations returns the distinct non-empty location strings of the
	// account's transactions in the window.
	ListLocations(ctx context.Context, accountID string, from, to time.Time) ([]string, error)
}

// SnapshotReader looks up account and customer risk snapshots.
// Both methods return ErrNotFound for unknown records.
type SnapshotReader interface {
	GetAccount(ctx context.Context, accountID string) (*AccountSnapshot, error)
	GetCustomerByAccount(ctx context.Context, accountID string) (*CustomerSnapshot, error)
}

// AlertStore persists fraud alerts.
type AlertStore interface {
	SaveAlert(ctx context.Context, alert *FraudAlert) error
	GetAlert(ctx context.Context, alertID string) (*FraudAlert, error)
	ListAlertsByAccount(ctx context.Context, accountID string) ([]*FraudAlert, error)
	ListAlertsByRisk(ctx context.Context, minRisk decimal.Decimal, statuses []AlertStatus) ([]*FraudAlert, error)
}

// AuditStore appends audit entries.
type AuditStore interface {
	AppendAudit(ctx context.Context, entry *AuditLog) error
	ListAudit(ctx context.Context, transactionID string) ([]*AuditLog, error)
}

// Repository is the full storage collaborator.
type Repository interface {
	TransactionStore
	SnapshotReader
	AlertStore
	AuditStore

	// Snapshot maintenance, used by loaders and tests
	SaveAccount(ctx context.Context, account *AccountSnapshot) error
	SaveCustomer(ctx context.Context, customer *CustomerSnapshot) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite", "postgres" or "memory"
	Driver string `mapstructure:"driver"`

	// SQLite specific
	SQLitePath string `mapstructure:"sqlitePath"`

	// PostgreSQL specific
	PostgresHost     string `mapstructure:"postgresHost"`
	PostgresPort     int    `mapstructure:"postgresPort"`
	PostgresUser     string `mapstructure:"postgresUser"`
	PostgresPassword string `mapstructure:"postgresPassword"`
	PostgresDB       string `mapstructure:"postgresDb"`
	PostgresSSLMode  string `mapstructure:"postgresSslMode"`

	// Connection pool settings
	MaxOpenConns    int           `mapstructure:"maxOpenConns"`
	MaxIdleConns    int           `mapstructure:"maxIdleConns"`
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime"`
}
