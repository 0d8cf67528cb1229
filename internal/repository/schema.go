package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    account_id TEXT NOT NULL,
    type TEXT NOT NULL,
    status TEXT NOT NULL,
    amount NUMERIC NOT NULL,
    currency TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    location TEXT NOT NULL DEFAULT '',
    ip_address TEXT NOT NULL DEFAULT '',
    device_id TEXT NOT NULL DEFAULT '',
    user_agent TEXT NOT NULL DEFAULT '',
    merchant_id TEXT NOT NULL DEFAULT '',
    merchant_name TEXT NOT NULL DEFAULT '',
    merchant_category TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_account_ts ON transactions(account_id, timestamp);
`

const schemaAccounts = `
CREATE TABLE IF NOT EXISTS accounts (
    id TEXT PRIMARY KEY,
    customer_id TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    risk_level TEXT NOT NULL,
    flagged BOOLEAN NOT NULL DEFAULT FALSE,
    opened_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_accounts_customer ON accounts(customer_id);
`

const schemaCustomers = `
CREATE TABLE IF NOT EXISTS customers (
    id TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    risk_level TEXT NOT NULL,
    customer_since TIMESTAMP,
    last_login TIMESTAMP
);
`

const schemaFraudAlerts = `
CREATE TABLE IF NOT EXISTS fraud_alerts (
    id TEXT PRIMARY KEY,
    transaction_id TEXT NOT NULL,
    account_id TEXT NOT NULL,
    rule_type TEXT NOT NULL,
    rule_description TEXT NOT NULL,
    severity TEXT NOT NULL,
    status TEXT NOT NULL,
    risk_score NUMERIC NOT NULL,
    confidence_score NUMERIC NOT NULL,
    assigned_to TEXT NOT NULL DEFAULT '',
    resolved_by TEXT NOT NULL DEFAULT '',
    resolution_notes TEXT NOT NULL DEFAULT '',
    resolved_at TIMESTAMP,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fraud_alerts_account ON fraud_alerts(account_id, created_at);
CREATE INDEX IF NOT EXISTS idx_fraud_alerts_risk ON fraud_alerts(status, risk_score);
`

// schemaAuditLogs is append-only.
const schemaAuditLogs = `
CREATE TABLE IF NOT EXISTS audit_logs (
    id TEXT PRIMARY KEY,
    transaction_id TEXT NOT NULL DEFAULT '',
    alert_id TEXT NOT NULL DEFAULT '',
    action TEXT NOT NULL,
    details TEXT NOT NULL,
    severity TEXT NOT NULL,
    performed_by TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_logs_transaction ON audit_logs(transaction_id, created_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaAccounts,
		schemaCustomers,
		schemaFraudAlerts,
		schemaAuditLogs,
	}
}
