package dto

import (
	"time"

	"github.com/radieske/wager-wallet/internal/wallet-service/ledger"
	"github.com/radieske/wager-wallet/internal/wallet-service/money"
)

type AccountResponse struct {
	ID        string      `json:"id"`
	Balance   money.Money `json:"balance"`
	CreatedAt time.Time   `json:"created_at"`
}

type BalanceResponse struct {
	AccountID string      `json:"account_id"`
	Balance   money.Money `json:"balance"`
}

type TransactionResponse struct {
	ID           int64       `json:"id"`
	Kind         string      `json:"kind"`
	Amount       money.Money `json:"amount"`
	BalanceAfter money.Money `json:"balance_after"`
	CreatedAt    time.Time   `json:"created_at"`
}

type TransactionsResponse struct {
	AccountID    string                `json:"account_id"`
	Transactions []TransactionResponse `json:"transactions"`
}

// ErrorResponse: Required/Available só aparecem em saldo insuficiente
type ErrorResponse struct {
	Error     string       `json:"error"`
	Required  *money.Money `json:"required,omitempty"`
	Available *money.Money `json:"available,omitempty"`
}

func NewAccountResponse(a ledger.Account) AccountResponse {
	return AccountResponse{ID: a.ID, Balance: a.Balance, CreatedAt: a.CreatedAt}
}

func NewTransactionsResponse(accountID string, recs []ledger.Record) TransactionsResponse {
	out := TransactionsResponse{AccountID: accountID, Transactions: make([]TransactionResponse, 0, len(recs))}
	for _, r := range recs {
		out.Transactions = append(out.Transactions, TransactionResponse{
			ID:           r.ID,
			Kind:         string(r.Kind),
			Amount:       r.Amount,
			BalanceAfter: r.BalanceAfter,
			CreatedAt:    r.CreatedAt,
		})
	}
	return out
}
