// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound     = domain.ErrNotFound
	ErrInvalidInput = domain.ErrInvalidInput
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

const transactionColumns = `
	id, account_id, type, status, amount, currency, timestamp, location,
	ip_address, device_id, user_agent, merchant_id, merchant_name,
	merchant_category, description, created_at, updated_at`

// SaveTransaction inserts or updates a transaction.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx == nil || tx.ID == "" || tx.AccountID == "" {
		return fmt.Errorf("%w: transaction id and account id are required", ErrInvalidInput)
	}

	query := `
		INSERT INTO transactions (` + transactionColumns + `
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			location = excluded.location,
			description = excluded.description,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tx.AccountID, string(tx.Type), string(tx.Status),
		tx.Amount, tx.Currency, tx.Timestamp.UTC(), tx.Location,
		tx.IPAddress, tx.DeviceID, tx.UserAgent,
		tx.MerchantID, tx.MerchantName, tx.MerchantCategory,
		tx.Description, tx.CreatedAt.UTC(), tx.UpdatedAt.UTC(),
	)
	return err
}

// GetTransaction retrieves a transaction by ID.
func (r *SQLRepository) GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = ?`

	tx, err := scanTransaction(r.db.QueryRowContext(ctx, r.rebind(query), txID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return tx, err
}

// LastTransactionBefore returns the account's latest transaction strictly
// before the given time.
func (r *SQLRepository) LastTransactionBefore(ctx context.Context, accountID string, before time.Time) (*domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE account_id = ? AND timestamp < ?
		ORDER BY timestamp DESC
		LIMIT 1
	`

	tx, err := scanTransaction(r.db.QueryRowContext(ctx, r.rebind(query), accountID, before.UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return tx, err
}

// ListTransactions returns the account's transactions in [from, to], oldest first.
func (r *SQLRepository) ListTransactions(ctx context.Context, accountID string, from, to time.Time) ([]*domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE account_id = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), accountID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

// ListLocations returns the distinct locations of the account in [from, to].
func (r *SQLRepository) ListLocations(ctx context.Context, accountID string, from, to time.Time) ([]string, error) {
	query := `
		SELECT DISTINCT location
		FROM transactions
		WHERE account_id = ? AND timestamp >= ? AND timestamp <= ? AND location <> ''
		ORDER BY location
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), accountID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locations []string
	for rows.Next() {
		var loc string
		if err := rows.Scan(&loc); err != nil {
			return nil, err
		}
		locations = append(locations, loc)
	}
	return locations, rows.Err()
}

// SaveAccount inserts or updates an account snapshot.
func (r *SQLRepository) SaveAccount(ctx context.Context, a *domain.AccountSnapshot) error {
	if a == nil || a.AccountID == "" {
		return fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO accounts (id, customer_id, status, risk_level, flagged, opened_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			customer_id = excluded.customer_id,
			status = excluded.status,
			risk_level = excluded.risk_level,
			flagged = excluded.flagged,
			opened_at = excluded.opened_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		a.AccountID, a.CustomerID, string(a.Status), string(a.RiskLevel),
		a.FlaggedForMonitoring, nullTime(a.OpenedAt),
	)
	return err
}

// GetAccount retrieves an account snapshot.
func (r *SQLRepository) GetAccount(ctx context.Context, accountID string) (*domain.AccountSnapshot, error) {
	query := `
		SELECT id, customer_id, status, risk_level, flagged, opened_at
		FROM accounts WHERE id = ?
	`

	var a domain.AccountSnapshot
	var status, risk string
	var openedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, r.rebind(query), accountID).Scan(
		&a.AccountID, &a.CustomerID, &status, &risk, &a.FlaggedForMonitoring, &openedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	a.Status = domain.AccountStatus(status)
	a.RiskLevel = domain.RiskLevel(risk)
	if openedAt.Valid {
		a.OpenedAt = openedAt.Time
	}
	return &a, nil
}

// SaveCustomer inserts or updates a customer snapshot.
func (r *SQLRepository) SaveCustomer(ctx context.Context, c *domain.CustomerSnapshot) error {
	if c == nil || c.CustomerID == "" {
		return fmt.Errorf("%w: customer id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO customers (id, status, risk_level, customer_since, last_login)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			risk_level = excluded.risk_level,
			customer_since = excluded.customer_since,
			last_login = excluded.last_login
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		c.CustomerID, string(c.Status), string(c.RiskLevel),
		nullTime(c.CustomerSince), nullTime(c.LastLogin),
	)
	return err
}

// GetCustomerByAccount retrieves the customer owning an account.
func (r *SQLRepository) GetCustomerByAccount(ctx context.Context, accountID string) (*domain.CustomerSnapshot, error) {
	query := `
		SELECT c.id, c.status, c.risk_level, c.customer_since, c.last_login
		FROM customers c
		JOIN accounts a ON a.customer_id = c.id
		WHERE a.id = ?
	`

	var c domain.CustomerSnapshot
	var status, risk string
	var since, lastLogin sql.NullTime
	err := r.db.QueryRowContext(ctx, r.rebind(query), accountID).Scan(
		&c.CustomerID, &status, &risk, &since, &lastLogin,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	c.Status = domain.CustomerStatus(status)
	c.RiskLevel = domain.RiskLevel(risk)
	if since.Valid {
		c.CustomerSince = since.Time
	}
	if lastLogin.Valid {
		c.LastLogin = lastLogin.Time
	}
	return &c, nil
}

const alertColumns = `
	id, transaction_id, account_id, rule_type, rule_description, severity,
	status, risk_score, confidence_score, assigned_to, resolved_by,
	resolution_notes, resolved_at, created_at, updated_at`

// SaveAlert inserts or updates a fraud alert.
func (r *SQLRepository) SaveAlert(ctx context.Context, alert *domain.FraudAlert) error {
	if alert == nil || alert.ID == "" {
		return fmt.Errorf("%w: alert id is required", ErrInvalidInput)
	}

	var resolvedAt sql.NullTime
	if alert.ResolvedAt != nil {
		resolvedAt = sql.NullTime{Time: alert.ResolvedAt.UTC(), Valid: true}
	}

	query := `
		INSERT INTO fraud_alerts (` + alertColumns + `
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			severity = excluded.severity,
			assigned_to = excluded.assigned_to,
			resolved_by = excluded.resolved_by,
			resolution_notes = excluded.resolution_notes,
			resolved_at = excluded.resolved_at,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		alert.ID, alert.TransactionID, alert.AccountID,
		alert.RuleType, alert.RuleDescription, string(alert.Severity),
		string(alert.Status), alert.RiskScore, alert.ConfidenceScore,
		alert.AssignedTo, alert.ResolvedBy, alert.ResolutionNotes,
		resolvedAt, alert.CreatedAt.UTC(), alert.UpdatedAt.UTC(),
	)
	return err
}

// GetAlert retrieves a fraud alert by ID.
func (r *SQLRepository) GetAlert(ctx context.Context, alertID string) (*domain.FraudAlert, error) {
	query := `SELECT ` + alertColumns + ` FROM fraud_alerts WHERE id = ?`

	alert, err := scanAlert(r.db.QueryRowContext(ctx, r.rebind(query), alertID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return alert, err
}

// ListAlertsByAccount returns the account's alerts, newest first.
func (r *SQLRepository) ListAlertsByAccount(ctx context.Context, accountID string) ([]*domain.FraudAlert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM fraud_alerts
		WHERE account_id = ?
		ORDER BY created_at DESC
	`
	return r.queryAlerts(ctx, query, accountID)
}

// ListAlertsByRisk returns alerts at or above minRisk in one of the given
// statuses, highest risk first.
func (r *SQLRepository) ListAlertsByRisk(ctx context.Context, minRisk decimal.Decimal, statuses []domain.AlertStatus) ([]*domain.FraudAlert, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(statuses))
	args := []any{minRisk}
	for i, s := range statuses {
		placeholders[i] = "?"
		args = append(args, string(s))
	}

	query := `
		SELECT ` + alertColumns + `
		FROM fraud_alerts
		WHERE risk_score >= ? AND status IN (` + strings.Join(placeholders, ", ") + `)
		ORDER BY risk_score DESC, created_at DESC
	`
	return r.queryAlerts(ctx, query, args...)
}

func (r *SQLRepository) queryAlerts(ctx context.Context, query string, args ...any) ([]*domain.FraudAlert, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*domain.FraudAlert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

// AppendAudit writes an audit entry. Entries are never updated.
func (r *SQLRepository) AppendAudit(ctx context.Context, entry *domain.AuditLog) error {
	if entry == nil || entry.ID == "" {
		return fmt.Errorf("%w: audit id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO audit_logs (
			id, transaction_id, alert_id, action, details, severity, performed_by, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		entry.ID, entry.TransactionID, entry.AlertID, entry.Action,
		entry.Details, string(entry.Severity), entry.PerformedBy, entry.CreatedAt.UTC(),
	)
	return err
}

// ListAudit returns the audit trail of a transaction, oldest first.
func (r *SQLRepository) ListAudit(ctx context.Context, transactionID string) ([]*domain.AuditLog, error) {
	query := `
		SELECT id, transaction_id, alert_id, action, details, severity, performed_by, created_at
		FROM audit_logs
		WHERE transaction_id = ?
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.AuditLog
	for rows.Next() {
		var e domain.AuditLog
		var severity string
		if err := rows.Scan(
			&e.ID, &e.TransactionID, &e.AlertID, &e.Action,
			&e.Details, &severity, &e.PerformedBy, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		e.Severity = domain.AuditSeverity(severity)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var txType, status string
	if err := row.Scan(
		&tx.ID, &tx.AccountID, &txType, &status, &tx.Amount, &tx.Currency,
		&tx.Timestamp, &tx.Location, &tx.IPAddress, &tx.DeviceID, &tx.UserAgent,
		&tx.MerchantID, &tx.MerchantName, &tx.MerchantCategory, &tx.Description,
		&tx.CreatedAt, &tx.UpdatedAt,
	); err != nil {
		return nil, err
	}
	tx.Type = domain.TransactionType(txType)
	tx.Status = domain.TransactionStatus(status)
	return &tx, nil
}

func scanAlert(row rowScanner) (*domain.FraudAlert, error) {
	var a domain.FraudAlert
	var severity, status string
	var resolvedAt sql.NullTime
	if err := row.Scan(
		&a.ID, &a.TransactionID, &a.AccountID, &a.RuleType, &a.RuleDescription,
		&severity, &status, &a.RiskScore, &a.ConfidenceScore, &a.AssignedTo,
		&a.ResolvedBy, &a.ResolutionNotes, &resolvedAt, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	a.Severity = domain.Severity(severity)
	a.Status = domain.AlertStatus(status)
	if resolvedAt.Valid {
		t := resolvedAt.Time
		a.ResolvedAt = &t
	}
	return &a, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
