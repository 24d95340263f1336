// Package ledger define o armazenamento de contas e do histórico imutável
// de transações, com lock exclusivo por conta dentro de uma unidade de trabalho.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/radieske/wager-wallet/internal/wallet-service/money"
)

var (
	ErrNotFound        = errors.New("account not found")
	ErrNegativeBalance = errors.New("balance would become negative")
	ErrNotLocked       = errors.New("account not locked in this transaction")
)

// Kind é o tipo de lançamento no ledger
type Kind string

const (
	KindDeposit Kind = "deposit"
	KindBet     Kind = "bet"
	KindWin     Kind = "win"
)

func (k Kind) Valid() bool {
	switch k {
	case KindDeposit, KindBet, KindWin:
		return true
	}
	return false
}

// Account é a conta de saldo de um usuário
type Account struct {
	ID        string
	Balance   money.Money
	Seq       int64 // seq do último lançamento; mantido pelo store
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Record é um lançamento imutável. Amount é negativo para apostas.
// BalanceAfter = BalanceAfter do lançamento anterior + Amount.
// Seq é contíguo por conta (1, 2, 3...) e atribuído com a conta travada,
// então segue a ordem de commit mesmo que ID não siga.
type Record struct {
	ID           int64
	AccountID    string
	Seq          int64
	Kind         Kind
	Amount       money.Money
	BalanceAfter money.Money
	CreatedAt    time.Time
}

// Tx é a unidade de trabalho passada para RunInTx.
// Tudo que for feito por ela é confirmado ou descartado junto.
type Tx interface {
	// LockAccount adquire lock exclusivo na conta até o fim da unidade de trabalho
	LockAccount(ctx context.Context, accountID string) (Account, error)
	// SaveAccount persiste o novo saldo; a conta precisa estar travada. Seq é ignorado.
	SaveAccount(ctx context.Context, acc Account) error
	// AppendRecord insere o lançamento e preenche ID, Seq e CreatedAt
	AppendRecord(ctx context.Context, rec *Record) error
}

// Store é o ledger durável
type Store interface {
	RunInTx(ctx context.Context, fn func(Tx) error) error
	CreateAccount(ctx context.Context) (Account, error)
	GetAccount(ctx context.Context, accountID string) (Account, error)
	// RecentRecords retorna os últimos lançamentos da conta, mais novos primeiro
	RecentRecords(ctx context.Context, accountID string, limit int) ([]Record, error)
	Ping(ctx context.Context) error
}
