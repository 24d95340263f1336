// Package engine implementa a movimentação de saldo: depósito e aposta,
// cada um como uma única unidade de trabalho com a conta travada.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/wager-wallet/internal/wallet-service/ledger"
	"github.com/radieske/wager-wallet/internal/wallet-service/metrics"
	"github.com/radieske/wager-wallet/internal/wallet-service/money"
	"github.com/radieske/wager-wallet/internal/wallet-service/outcome"
)

const (
	DefaultHistoryLimit = 50
	publishTimeout      = 2 * time.Second
)

// Simulator decide o resultado de uma aposta
type Simulator interface {
	Simulate(wager money.Money) (outcome.Outcome, error)
}

// Committed descreve lançamentos já confirmados de uma conta
type Committed struct {
	AccountID string
	Records   []ledger.Record
	Balance   money.Money
}

// Publisher recebe lançamentos após o commit (Kafka, cache, feed de saldo).
// Falhas são logadas e não desfazem a operação.
type Publisher interface {
	Name() string
	PublishCommitted(ctx context.Context, c Committed) error
}

// BalanceReader é um cache de leitura de saldo; ok=false significa miss
type BalanceReader interface {
	Balance(ctx context.Context, accountID string) (bal money.Money, ok bool, err error)
}

// Limits define mínimos e máximos por operação; zero desativa o limite
type Limits struct {
	MinDeposit money.Money
	MaxDeposit money.Money
	MinBet     money.Money
	MaxBet     money.Money
}

// Options agrupa dependências opcionais do Engine
type Options struct {
	Limits       Limits
	HistoryLimit int
	Metrics      *metrics.Collectors
	Publishers   []Publisher
	BalanceCache BalanceReader
}

type DepositResult struct {
	Success    bool        `json:"success"`
	NewBalance money.Money `json:"new_balance"`
}

type BetResult struct {
	Win        bool        `json:"win"`
	Winnings   money.Money `json:"winnings"`
	NewBalance money.Money `json:"new_balance"`
}

// Engine orquestra lock, mutação e gravação no ledger.
// Não guarda estado mutável próprio; é seguro para uso concorrente.
type Engine struct {
	store ledger.Store
	sim   Simulator
	log   *zap.Logger
	opts  Options
}

func New(store ledger.Store, sim Simulator, log *zap.Logger, opts Options) *Engine {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	return &Engine{store: store, sim: sim, log: log, opts: opts}
}

// CreateAccount registra uma conta nova com saldo zero
func (e *Engine) CreateAccount(ctx context.Context) (ledger.Account, error) {
	acc, err := e.store.CreateAccount(ctx)
	if err != nil {
		err = storeErr("create account", err)
		e.logFailure("create account", "", err)
		return ledger.Account{}, err
	}
	e.log.Info("account created", zap.String("account_id", acc.ID))
	return acc, nil
}

// Deposit credita amount na conta
func (e *Engine) Deposit(ctx context.Context, accountID, amount string) (DepositResult, error) {
	start := time.Now()
	res, err := e.deposit(ctx, accountID, amount)
	e.opts.Metrics.ObserveOperation("deposit", resultLabel(err), time.Since(start))
	return res, err
}

func (e *Engine) deposit(ctx context.Context, accountID, amount string) (DepositResult, error) {
	amt, err := parseAmount(amount, e.opts.Limits.MinDeposit, e.opts.Limits.MaxDeposit)
	if err != nil {
		return DepositResult{}, err
	}

	var rec ledger.Record
	err = e.run(ctx, "deposit", func(tx ledger.Tx) error {
		acc, err := tx.LockAccount(ctx, accountID)
		if err != nil {
			return storeErr("lock account", err)
		}

		if acc.Balance, err = credit(acc.Balance, amt); err != nil {
			return err
		}
		if err := tx.SaveAccount(ctx, acc); err != nil {
			return storeErr("save account", err)
		}

		rec = ledger.Record{
			AccountID:    accountID,
			Kind:         ledger.KindDeposit,
			Amount:       amt,
			BalanceAfter: acc.Balance,
		}
		if err := tx.AppendRecord(ctx, &rec); err != nil {
			return storeErr("append transaction", err)
		}
		return nil
	})
	if err != nil {
		e.logFailure("deposit", accountID, err)
		return DepositResult{}, err
	}

	e.afterCommit(ctx, accountID, []ledger.Record{rec})
	return DepositResult{Success: true, NewBalance: rec.BalanceAfter}, nil
}

// PlaceBet debita a aposta, sorteia o resultado e credita o prêmio se houver.
// Débito e resolução são confirmados juntos ou nada é gravado.
func (e *Engine) PlaceBet(ctx context.Context, accountID, wager string) (BetResult, error) {
	start := time.Now()
	res, err := e.placeBet(ctx, accountID, wager)
	e.opts.Metrics.ObserveOperation("place_bet", resultLabel(err), time.Since(start))
	if err == nil {
		e.opts.Metrics.BetResolved(res.Win)
	}
	return res, err
}

func (e *Engine) placeBet(ctx context.Context, accountID, wagerStr string) (BetResult, error) {
	wager, err := parseAmount(wagerStr, e.opts.Limits.MinBet, e.opts.Limits.MaxBet)
	if err != nil {
		return BetResult{}, err
	}

	var (
		res  BetResult
		recs []ledger.Record
	)
	err = e.run(ctx, "place bet", func(tx ledger.Tx) error {
		recs = recs[:0]

		// Locked: saldo só é comparado com a conta travada
		acc, err := tx.LockAccount(ctx, accountID)
		if err != nil {
			return storeErr("lock account", err)
		}
		if acc.Balance.Cmp(wager) < 0 {
			return &InsufficientBalanceError{Required: wager, Available: acc.Balance}
		}

		// Debited
		acc.Balance = acc.Balance.Sub(wager)
		if err := tx.SaveAccount(ctx, acc); err != nil {
			return storeErr("save account", err)
		}
		bet := ledger.Record{
			AccountID:    accountID,
			Kind:         ledger.KindBet,
			Amount:       wager.Neg(),
			BalanceAfter: acc.Balance,
		}
		if err := tx.AppendRecord(ctx, &bet); err != nil {
			return storeErr("append transaction", err)
		}
		recs = append(recs, bet)

		out, err := e.sim.Simulate(wager)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAmount, err)
		}
		if !out.Won {
			res = BetResult{Win: false, Winnings: money.Zero, NewBalance: acc.Balance}
			return nil
		}

		// Resolved-Win
		if acc.Balance, err = credit(acc.Balance, out.Payout); err != nil {
			return err
		}
		if err := tx.SaveAccount(ctx, acc); err != nil {
			return storeErr("save account", err)
		}
		win := ledger.Record{
			AccountID:    accountID,
			Kind:         ledger.KindWin,
			Amount:       out.Payout,
			BalanceAfter: acc.Balance,
		}
		if err := tx.AppendRecord(ctx, &win); err != nil {
			return storeErr("append transaction", err)
		}
		recs = append(recs, win)

		res = BetResult{Win: true, Winnings: out.Payout, NewBalance: acc.Balance}
		return nil
	})
	if err != nil {
		var ib *InsufficientBalanceError
		if errors.As(err, &ib) {
			e.log.Warn("bet rejected",
				zap.String("event", "bet_rejected"),
				zap.String("account_id", accountID),
				zap.Stringer("requested_amount", ib.Required),
				zap.Stringer("available_balance", ib.Available),
			)
		} else {
			e.logFailure("place bet", accountID, err)
		}
		return BetResult{}, err
	}

	e.afterCommit(ctx, accountID, recs)
	return res, nil
}

// GetBalance lê o saldo sem lock; pode retornar valor levemente defasado
func (e *Engine) GetBalance(ctx context.Context, accountID string) (money.Money, error) {
	if e.opts.BalanceCache != nil {
		bal, ok, err := e.opts.BalanceCache.Balance(ctx, accountID)
		if err != nil {
			e.log.Warn("balance cache read", zap.String("account_id", accountID), zap.Error(err))
		} else if ok {
			return bal, nil
		}
	}

	acc, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		err = storeErr("get account", err)
		e.logFailure("get balance", accountID, err)
		return money.Zero, err
	}
	return acc.Balance, nil
}

// RecentTransactions retorna os últimos lançamentos, mais novos primeiro.
// limit <= 0 ou acima do máximo configurado usa o máximo.
func (e *Engine) RecentTransactions(ctx context.Context, accountID string, limit int) ([]ledger.Record, error) {
	if limit <= 0 || limit > e.opts.HistoryLimit {
		limit = e.opts.HistoryLimit
	}
	if _, err := e.store.GetAccount(ctx, accountID); err != nil {
		err = storeErr("get account", err)
		e.logFailure("recent transactions", accountID, err)
		return nil, err
	}
	recs, err := e.store.RecentRecords(ctx, accountID, limit)
	if err != nil {
		err = storeErr("recent transactions", err)
		e.logFailure("recent transactions", accountID, err)
		return nil, err
	}
	return recs, nil
}

// run executa fn numa unidade de trabalho; erros fora da taxonomia viram StoreError
func (e *Engine) run(ctx context.Context, op string, fn func(ledger.Tx) error) error {
	err := e.store.RunInTx(ctx, fn)
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.Is(err, ledger.ErrNotFound) || errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInvalidAmount) || errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// afterCommit loga cada lançamento e repassa aos publishers.
// Usa um contexto próprio: o do chamador pode já ter sido cancelado.
func (e *Engine) afterCommit(ctx context.Context, accountID string, recs []ledger.Record) {
	if len(recs) == 0 {
		return
	}
	for _, r := range recs {
		e.log.Info("transaction created",
			zap.Int64("transaction_id", r.ID),
			zap.String("type", string(r.Kind)),
			zap.Stringer("amount", r.Amount),
			zap.Stringer("balance_after", r.BalanceAfter),
			zap.String("account_id", r.AccountID),
			zap.Time("timestamp", r.CreatedAt),
		)
	}
	if len(e.opts.Publishers) == 0 {
		return
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	c := Committed{AccountID: accountID, Records: recs, Balance: recs[len(recs)-1].BalanceAfter}
	for _, p := range e.opts.Publishers {
		err := p.PublishCommitted(pctx, c)
		e.opts.Metrics.Published(p.Name(), err)
		if err != nil {
			e.log.Warn("publish committed transactions",
				zap.String("sink", p.Name()),
				zap.String("account_id", accountID),
				zap.Error(err),
			)
		}
	}
}

// logFailure: só StoreError é falha de sistema; o resto é resultado esperado
func (e *Engine) logFailure(op, accountID string, err error) {
	var se *StoreError
	if errors.As(err, &se) {
		e.log.Error("wallet store failure",
			zap.String("op", op),
			zap.String("account_id", accountID),
			zap.Error(err),
		)
		return
	}
	e.log.Debug("wallet operation rejected",
		zap.String("op", op),
		zap.String("account_id", accountID),
		zap.String("result", resultLabel(err)),
	)
}

// credit soma ao saldo travado; estourar a faixa do ledger é erro do chamador, não do store
func credit(bal, amt money.Money) (money.Money, error) {
	sum, err := bal.CheckedAdd(amt)
	if err != nil {
		return money.Zero, fmt.Errorf("%w: balance %s plus %s exceeds maximum %s", ErrInvalidAmount, bal, amt, money.Max)
	}
	return sum, nil
}

// parseAmount valida antes de qualquer lock: positivo, escala <= 4 e dentro dos limites
func parseAmount(s string, lo, hi money.Money) (money.Money, error) {
	amt, err := money.Parse(s)
	if err != nil {
		return money.Zero, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	if !amt.IsPositive() {
		return money.Zero, fmt.Errorf("%w: %s must be greater than zero", ErrInvalidAmount, amt)
	}
	if lo.IsPositive() && amt.Cmp(lo) < 0 {
		return money.Zero, fmt.Errorf("%w: %s below minimum %s", ErrInvalidAmount, amt, lo)
	}
	if hi.IsPositive() && amt.Cmp(hi) > 0 {
		return money.Zero, fmt.Errorf("%w: %s above maximum %s", ErrInvalidAmount, amt, hi)
	}
	return amt, nil
}
