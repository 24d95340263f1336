package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Pool define limites do pool de conexões; zero mantém o default do database/sql
type Pool struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func ConnectPostgres(dsn string, pool Pool) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return db, nil
}

// Migrate cria as tabelas do ledger se ainda não existirem.
// Idempotente: pode rodar a cada start do serviço.
func Migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback()

	for i, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d: %w", i, err)
		}
	}
	return tx.Commit()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id         TEXT PRIMARY KEY,
		balance    NUMERIC(18,4) NOT NULL DEFAULT 0,
		seq        BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT chk_accounts_balance_non_negative CHECK (balance >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id            BIGSERIAL PRIMARY KEY,
		account_id    TEXT NOT NULL REFERENCES accounts(id),
		seq           BIGINT NOT NULL,
		kind          TEXT NOT NULL CHECK (kind IN ('deposit','bet','win')),
		amount        NUMERIC(18,4) NOT NULL,
		balance_after NUMERIC(18,4) NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT uq_transactions_account_seq UNIQUE (account_id, seq)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_account_created
		ON transactions(account_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_account_kind_created
		ON transactions(account_id, kind, created_at)`,
}
