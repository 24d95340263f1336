package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// código SQLSTATE de check_violation (accounts.balance >= 0)
const pqCheckViolation = "23514"

// Postgres implementa o ledger em banco, com SELECT ... FOR UPDATE por conta
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// RunInTx abre uma transação, executa fn e faz commit; qualquer erro desfaz tudo
func (p *Postgres) RunInTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// CreateAccount cria uma conta com saldo zero
func (p *Postgres) CreateAccount(ctx context.Context) (Account, error) {
	acc := Account{ID: uuid.NewString()}
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO accounts(id, balance) VALUES($1, 0) RETURNING balance, seq, created_at, updated_at`,
		acc.ID).Scan(&acc.Balance, &acc.Seq, &acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		return Account{}, fmt.Errorf("insert account: %w", err)
	}
	return acc, nil
}

// GetAccount lê a conta sem lock; o saldo pode estar levemente defasado
func (p *Postgres) GetAccount(ctx context.Context, accountID string) (Account, error) {
	acc := Account{ID: accountID}
	err := p.db.QueryRowContext(ctx,
		`SELECT balance, seq, created_at, updated_at FROM accounts WHERE id=$1`,
		accountID).Scan(&acc.Balance, &acc.Seq, &acc.CreatedAt, &acc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("select account: %w", err)
	}
	return acc, nil
}

// RecentRecords retorna os lançamentos mais recentes (índice account_id, created_at)
func (p *Postgres) RecentRecords(ctx context.Context, accountID string, limit int) ([]Record, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, account_id, seq, kind, amount, balance_after, created_at
		FROM transactions
		WHERE account_id=$1
		ORDER BY seq DESC
		LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.AccountID, &r.Seq, &r.Kind, &r.Amount, &r.BalanceAfter, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// pgTx é a unidade de trabalho sobre *sql.Tx
type pgTx struct {
	tx *sql.Tx
}

// LockAccount trava a linha da conta até commit/rollback
func (t *pgTx) LockAccount(ctx context.Context, accountID string) (Account, error) {
	acc := Account{ID: accountID}
	err := t.tx.QueryRowContext(ctx,
		`SELECT balance, seq, created_at, updated_at FROM accounts WHERE id=$1 FOR UPDATE`,
		accountID).Scan(&acc.Balance, &acc.Seq, &acc.CreatedAt, &acc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("lock account: %w", err)
	}
	return acc, nil
}

func (t *pgTx) SaveAccount(ctx context.Context, acc Account) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE accounts SET balance=$1, updated_at=NOW() WHERE id=$2`, acc.Balance, acc.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqCheckViolation {
			return fmt.Errorf("update account %s: %w", acc.ID, ErrNegativeBalance)
		}
		return fmt.Errorf("update account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendRecord incrementa accounts.seq e insere o lançamento com esse seq.
// A linha da conta já está travada, então o seq segue a ordem de commit.
// clock_timestamp() mantém a ordem de created_at dentro da mesma transação.
func (t *pgTx) AppendRecord(ctx context.Context, rec *Record) error {
	err := t.tx.QueryRowContext(ctx, `
		WITH s AS (
			UPDATE accounts SET seq = seq + 1 WHERE id=$1 RETURNING seq
		)
		INSERT INTO transactions(account_id, seq, kind, amount, balance_after, created_at)
		SELECT $1, s.seq, $2, $3, $4, clock_timestamp() FROM s
		RETURNING id, seq, created_at`,
		rec.AccountID, string(rec.Kind), rec.Amount, rec.BalanceAfter).Scan(&rec.ID, &rec.Seq, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}
