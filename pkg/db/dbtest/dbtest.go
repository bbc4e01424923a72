// Package dbtest opens an isolated in-memory sqlite database carrying the
// wallet schema, for repository and service tests.
package dbtest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS wallets (
  id TEXT PRIMARY KEY,
  owner_id TEXT NOT NULL,
  owner_type TEXT NOT NULL,
  currency TEXT NOT NULL,
  balance_minor INTEGER NOT NULL DEFAULT 0 CHECK (balance_minor >= 0),
  ledger_seq INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL,
  frozen_reason TEXT,
  frozen_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (owner_id, owner_type, currency)
);`,
	`CREATE TABLE IF NOT EXISTS ledger_entries (
  id TEXT PRIMARY KEY,
  wallet_id TEXT NOT NULL REFERENCES wallets(id),
  seq INTEGER NOT NULL,
  amount_minor INTEGER NOT NULL CHECK (amount_minor <> 0),
  kind TEXT NOT NULL,
  category TEXT NOT NULL,
  reference_id TEXT NOT NULL,
  dedupe_key TEXT UNIQUE,
  description TEXT NOT NULL,
  metadata TEXT,
  created_at DATETIME,
  UNIQUE (wallet_id, seq)
);`,
	`CREATE TABLE IF NOT EXISTS pending_credits (
  id TEXT PRIMARY KEY,
  wallet_id TEXT NOT NULL REFERENCES wallets(id),
  amount_minor INTEGER NOT NULL CHECK (amount_minor > 0),
  category TEXT NOT NULL,
  reference_id TEXT NOT NULL,
  description TEXT NOT NULL,
  dedupe_key TEXT UNIQUE,
  status TEXT NOT NULL,
  applied_entry_id TEXT,
  created_at DATETIME,
  applied_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS partners (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  api_key TEXT NOT NULL UNIQUE,
  api_secret_hash TEXT NOT NULL,
  wallet_id TEXT NOT NULL,
  status TEXT NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS partner_transactions (
  id TEXT PRIMARY KEY,
  partner_id TEXT NOT NULL,
  ref_id TEXT NOT NULL,
  service_code TEXT NOT NULL,
  target TEXT NOT NULL,
  amount_minor INTEGER NOT NULL DEFAULT 0,
  request_payload TEXT,
  response_payload TEXT,
  status_code INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL,
  error_code TEXT,
  ledger_entry_id TEXT,
  created_at DATETIME,
  completed_at DATETIME,
  UNIQUE (partner_id, ref_id)
);`,
	`CREATE TABLE IF NOT EXISTS withdrawals (
  id TEXT PRIMARY KEY,
  wallet_id TEXT NOT NULL REFERENCES wallets(id),
  amount_minor INTEGER NOT NULL CHECK (amount_minor > 0),
  destination_bank_code TEXT NOT NULL,
  destination_account_number TEXT NOT NULL,
  destination_account_name TEXT NOT NULL,
  status TEXT NOT NULL,
  external_ref TEXT NOT NULL UNIQUE,
  failure_reason TEXT,
  dispatch_attempts INTEGER NOT NULL DEFAULT 0,
  last_dispatch_error TEXT,
  created_at DATETIME,
  updated_at DATETIME,
  dispatched_at DATETIME,
  processed_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS webhook_reconciliations (
  id TEXT PRIMARY KEY,
  external_ref TEXT NOT NULL,
  outcome TEXT NOT NULL,
  result TEXT NOT NULL,
  withdrawal_id TEXT,
  payload TEXT,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS suspicious_activities (
  id TEXT PRIMARY KEY,
  subject_id TEXT NOT NULL,
  subject_type TEXT NOT NULL,
  guard TEXT NOT NULL,
  risk_value REAL NOT NULL,
  flagged INTEGER NOT NULL,
  explanation TEXT NOT NULL,
  inputs TEXT,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS service_catalog (
  code TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  price_minor INTEGER NOT NULL,
  currency TEXT NOT NULL,
  active INTEGER NOT NULL DEFAULT 1,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
	`CREATE TABLE IF NOT EXISTS outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload_json TEXT NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME,
  created_at DATETIME
);`,
	// mirrors the append-only triggers of the Postgres schema
	`CREATE TRIGGER IF NOT EXISTS ledger_entries_no_update BEFORE UPDATE ON ledger_entries
BEGIN SELECT RAISE(ABORT, 'ledger_entries is append-only'); END;`,
	`CREATE TRIGGER IF NOT EXISTS ledger_entries_no_delete BEFORE DELETE ON ledger_entries
BEGIN SELECT RAISE(ABORT, 'ledger_entries is append-only'); END;`,
}

// Open returns a fresh database. The pool is pinned to one connection so
// concurrent goroutines serialize the way row locks would on Postgres.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:wallet_" + uuid.NewString() + "?mode=memory&cache=shared&_busy_timeout=5000"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return conn
}
