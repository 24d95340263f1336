package engine

import (
	"errors"
	"fmt"

	"github.com/radieske/wager-wallet/internal/wallet-service/ledger"
	"github.com/radieske/wager-wallet/internal/wallet-service/money"
)

var (
	// ErrInvalidAmount: valor não positivo, mal formado ou fora dos limites (nada é travado),
	// ou crédito que levaria o saldo além de money.Max (a unidade de trabalho é desfeita)
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInsufficientBalance casa com *InsufficientBalanceError via errors.Is
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// InsufficientBalanceError: aposta maior que o saldo; nenhuma escrita ocorre
type InsufficientBalanceError struct {
	Required  money.Money
	Available money.Money
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: required %s, available %s", e.Required, e.Available)
}

func (e *InsufficientBalanceError) Is(target error) bool { return target == ErrInsufficientBalance }

// StoreError é falha de I/O, begin ou commit; a operação inteira foi desfeita
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store %s: %v", e.Op, e.Err) }

func (e *StoreError) Unwrap() error { return e.Err }

// storeErr embrulha falhas do ledger, preservando ErrNotFound como resultado de negócio
func storeErr(op string, err error) error {
	if errors.Is(err, ledger.ErrNotFound) {
		return ledger.ErrNotFound
	}
	return &StoreError{Op: op, Err: err}
}

// resultLabel classifica o erro para métricas e logs
func resultLabel(err error) string {
	var se *StoreError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ledger.ErrNotFound):
		return "not_found"
	case errors.As(err, &se):
		return "store_error"
	default:
		return "error"
	}
}
