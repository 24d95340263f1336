package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var errTxDone = errors.New("transaction already finished")

// Memory implementa o ledger em memória, com a mesma semântica de lock por
// conta do Postgres. Usado em testes e com STORE_DRIVER=memory.
type Memory struct {
	mu       sync.Mutex // protege accounts, records e nextID
	accounts map[string]*memAccount
	records  map[string][]Record
	nextID   int64
	now      func() time.Time
}

// memAccount guarda o estado confirmado e o lock exclusivo da conta.
// lock é um canal de uma vaga para permitir espera com ctx.
type memAccount struct {
	lock chan struct{}
	acc  Account
}

func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[string]*memAccount),
		records:  make(map[string][]Record),
		now:      time.Now,
	}
}

func (m *Memory) RunInTx(ctx context.Context, fn func(Tx) error) error {
	tx := &memTx{store: m, staged: make(map[string]Account)}
	defer tx.release()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return tx.commit()
}

func (m *Memory) CreateAccount(_ context.Context) (Account, error) {
	now := m.now()
	acc := Account{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[acc.ID] = &memAccount{lock: make(chan struct{}, 1), acc: acc}
	return acc, nil
}

func (m *Memory) GetAccount(_ context.Context, accountID string) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[accountID]
	if !ok {
		return Account{}, ErrNotFound
	}
	return a.acc, nil
}

func (m *Memory) RecentRecords(_ context.Context, accountID string, limit int) ([]Record, error) {
	if limit <= 0 {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := m.records[accountID]
	out := make([]Record, 0, min(limit, len(recs)))
	for i := len(recs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, recs[i])
	}
	return out, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

// History retorna todos os lançamentos da conta em ordem de inserção
func (m *Memory) History(accountID string) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.records[accountID]...)
}

// memTx acumula escritas e só as aplica no commit
type memTx struct {
	store   *Memory
	held    []*memAccount
	staged  map[string]Account
	records []Record
	done    bool
}

func (t *memTx) LockAccount(ctx context.Context, accountID string) (Account, error) {
	if t.done {
		return Account{}, errTxDone
	}
	if acc, ok := t.staged[accountID]; ok {
		return acc, nil
	}

	t.store.mu.Lock()
	a, ok := t.store.accounts[accountID]
	t.store.mu.Unlock()
	if !ok {
		return Account{}, ErrNotFound
	}

	select {
	case a.lock <- struct{}{}:
	case <-ctx.Done():
		return Account{}, fmt.Errorf("lock account: %w", ctx.Err())
	}
	t.held = append(t.held, a)

	// leitura depois do lock: enxerga o último commit
	t.store.mu.Lock()
	acc := a.acc
	t.store.mu.Unlock()

	t.staged[accountID] = acc
	return acc, nil
}

func (t *memTx) SaveAccount(_ context.Context, acc Account) error {
	if t.done {
		return errTxDone
	}
	if _, ok := t.staged[acc.ID]; !ok {
		return ErrNotLocked
	}
	if acc.Balance.IsNegative() {
		return fmt.Errorf("update account %s: %w", acc.ID, ErrNegativeBalance)
	}
	acc.Seq = t.staged[acc.ID].Seq
	acc.UpdatedAt = t.store.now()
	t.staged[acc.ID] = acc
	return nil
}

func (t *memTx) AppendRecord(_ context.Context, rec *Record) error {
	if t.done {
		return errTxDone
	}
	acc, ok := t.staged[rec.AccountID]
	if !ok {
		return ErrNotLocked
	}
	if !rec.Kind.Valid() {
		return fmt.Errorf("insert transaction: invalid kind %q", rec.Kind)
	}
	acc.Seq++
	t.staged[rec.AccountID] = acc
	rec.Seq = acc.Seq

	t.store.mu.Lock()
	t.store.nextID++
	rec.ID = t.store.nextID
	t.store.mu.Unlock()
	rec.CreatedAt = t.store.now()

	t.records = append(t.records, *rec)
	return nil
}

func (t *memTx) commit() error {
	if t.done {
		return errTxDone
	}
	t.done = true

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, acc := range t.staged {
		s.accounts[id].acc = acc
	}
	for _, r := range t.records {
		s.records[r.AccountID] = append(s.records[r.AccountID], r)
	}
	return nil
}

// release libera os locks; escritas não confirmadas são descartadas
func (t *memTx) release() {
	t.done = true
	for _, a := range t.held {
		<-a.lock
	}
	t.held = nil
}
