package postgres

import (
	"context"
	"fmt"
)

// schema is the full DDL, applied idempotently on startup.
//
// Balances and amounts are DECIMAL(20,2). The partial unique index on
// wallets gives lazy creation its idempotency: concurrent
// INSERT ... ON CONFLICT DO NOTHING calls for the same (owner, kind)
// collapse to one row.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY,
	username TEXT NOT NULL,
	tier TEXT NOT NULL DEFAULT 'BASIC',
	referrer_id UUID REFERENCES users(id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS wallets (
	id UUID PRIMARY KEY,
	owner_id UUID NOT NULL,
	kind TEXT NOT NULL,
	balance DECIMAL(20,2) NOT NULL DEFAULT 0,
	frozen DECIMAL(20,2) NOT NULL DEFAULT 0,
	last_yield_on TIMESTAMPTZ,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT wallets_owner_kind_unique UNIQUE (owner_id, kind),
	CONSTRAINT wallets_balance_non_negative CHECK (balance >= 0),
	CONSTRAINT wallets_frozen_within_balance CHECK (frozen >= 0 AND frozen <= balance)
);

CREATE TABLE IF NOT EXISTS transactions (
	id UUID PRIMARY KEY,
	wallet_id UUID NOT NULL REFERENCES wallets(id),
	owner_id UUID NOT NULL,
	amount DECIMAL(20,2) NOT NULL,
	type TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	reference_id UUID,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_transactions_owner_created
	ON transactions (owner_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_transactions_owner_type_created
	ON transactions (owner_id, type, created_at);

CREATE TABLE IF NOT EXISTS loans (
	id UUID PRIMARY KEY,
	lender_id UUID NOT NULL REFERENCES users(id),
	borrower_id UUID REFERENCES users(id),
	principal DECIMAL(20,2) NOT NULL,
	interest_rate DECIMAL(5,2) NOT NULL,
	interest_amount DECIMAL(20,2) NOT NULL,
	processing_fee DECIMAL(20,2) NOT NULL,
	total_repayment DECIMAL(20,2) NOT NULL,
	term_days INT NOT NULL,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	accepted_at TIMESTAMPTZ,
	due_at TIMESTAMPTZ,
	repaid_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_loans_status_due ON loans (status, due_at);
CREATE INDEX IF NOT EXISTS idx_loans_status_created ON loans (status, created_at);

CREATE TABLE IF NOT EXISTS commission_events (
	id UUID PRIMARY KEY,
	referrer_id UUID NOT NULL REFERENCES users(id),
	referred_id UUID NOT NULL REFERENCES users(id),
	level INT NOT NULL,
	event_type TEXT NOT NULL,
	base_amount DECIMAL(20,2) NOT NULL,
	rate DECIMAL(5,2) NOT NULL,
	amount DECIMAL(20,2) NOT NULL,
	paid BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_commission_events_referrer
	ON commission_events (referrer_id, created_at DESC);

CREATE TABLE IF NOT EXISTS tasks (
	id UUID PRIMARY KEY,
	owner_id UUID NOT NULL REFERENCES users(id),
	title TEXT NOT NULL,
	reward DECIMAL(20,2) NOT NULL,
	status TEXT NOT NULL DEFAULT 'PENDING',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	approved_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_tasks_owner_status ON tasks (owner_id, status);
`

// ApplySchema creates all tables and indexes if they do not exist yet.
// Safe to run on every startup.
func ApplySchema(ctx context.Context, db *DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
