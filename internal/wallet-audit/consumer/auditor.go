package consumer

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/radieske/wager-wallet/internal/wallet-service/ledger"
	"github.com/radieske/wager-wallet/internal/wallet-service/money"
	"github.com/radieske/wager-wallet/pkg/contracts/events"
)

// Resultados possíveis da verificação de um evento
const (
	ResultOK        = "ok"
	ResultSeeded    = "seeded"
	ResultDuplicate = "duplicate"
	ResultHeld      = "held" // chegou antes do seq anterior; aguarda a lacuna fechar
	ResultBroken    = "broken"
)

// DefaultHoldTimeout é quanto um evento adiantado espera pelos seqs que faltam
const DefaultHoldTimeout = 30 * time.Second

// Verdict descreve o resultado da verificação; Reason só é preenchido em ResultBroken
type Verdict struct {
	Result string
	Reason string
}

// Checked associa um evento ao seu veredito. Um único Check pode liberar
// vários eventos retidos, então o Auditor devolve uma lista.
type Checked struct {
	Event   events.WalletTransaction
	Verdict Verdict
}

type heldEvent struct {
	ev    events.WalletTransaction
	since time.Time
}

type chain struct {
	lastSeq     int64
	lastBalance money.Money
	known       bool // false até o primeiro balance_after confiável
	pending     map[int64]heldEvent
}

// Auditor acompanha a cadeia balance_after de cada conta em memória, na ordem de seq.
// O Kafka pode entregar lançamentos da mesma conta fora da ordem de commit; eventos
// adiantados ficam retidos até o seq anterior chegar ou holdTimeout expirar.
// Se o primeiro evento visto de uma conta não é o seq 1, ele inicia a cadeia:
// o worker pode entrar no meio do stream.
type Auditor struct {
	mu          sync.Mutex
	chains      map[string]*chain
	holdTimeout time.Duration
	now         func() time.Time
}

func NewAuditor(holdTimeout time.Duration) *Auditor {
	if holdTimeout <= 0 {
		holdTimeout = DefaultHoldTimeout
	}
	return &Auditor{
		chains:      make(map[string]*chain),
		holdTimeout: holdTimeout,
		now:         time.Now,
	}
}

// Check valida balance_after == anterior + amount seguindo o seq da conta.
// Retorna o veredito do evento recebido seguido dos eventos retidos que ele liberou.
// Após uma quebra a cadeia segue a partir do evento recebido.
func (a *Auditor) Check(ev events.WalletTransaction) []Checked {
	if ev.Seq <= 0 {
		return []Checked{{Event: ev, Verdict: Verdict{Result: ResultBroken, Reason: fmt.Sprintf("invalid seq %d", ev.Seq)}}}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	c, seen := a.chains[ev.AccountID]
	if !seen {
		// seq 1 parte do saldo zero; qualquer outro seq só pode ser semeado
		c = &chain{lastSeq: ev.Seq - 1, known: ev.Seq == 1, pending: make(map[int64]heldEvent)}
		a.chains[ev.AccountID] = c
	}

	switch {
	case ev.Seq <= c.lastSeq:
		return []Checked{{Event: ev, Verdict: Verdict{Result: ResultDuplicate}}}
	case ev.Seq > c.lastSeq+1:
		if _, ok := c.pending[ev.Seq]; ok {
			return []Checked{{Event: ev, Verdict: Verdict{Result: ResultDuplicate}}}
		}
		c.pending[ev.Seq] = heldEvent{ev: ev, since: a.now()}
		return []Checked{{Event: ev, Verdict: Verdict{Result: ResultHeld}}}
	}

	out := []Checked{{Event: ev, Verdict: c.apply(ev)}}
	return c.drain(out)
}

// Expire encerra a espera das contas cuja lacuna passou de holdTimeout.
// O menor seq retido é reportado como quebra e a cadeia recomeça nele.
func (a *Auditor) Expire() []Checked {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	ids := make([]string, 0, len(a.chains))
	for id, c := range a.chains {
		if len(c.pending) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	var out []Checked
	for _, id := range ids {
		c := a.chains[id]
		first, oldest := int64(0), now
		for seq, h := range c.pending {
			if first == 0 || seq < first {
				first = seq
			}
			if h.since.Before(oldest) {
				oldest = h.since
			}
		}
		if now.Sub(oldest) < a.holdTimeout {
			continue
		}

		h := c.pending[first]
		delete(c.pending, first)
		gap := missing(c.lastSeq+1, first-1)
		c.lastSeq = first - 1
		c.known = false

		v := c.apply(h.ev)
		if v.Result == ResultBroken {
			v.Reason = gap + "; " + v.Reason
		} else {
			v = Verdict{Result: ResultBroken, Reason: gap}
		}
		out = c.drain(append(out, Checked{Event: h.ev, Verdict: v}))
	}
	return out
}

// apply avança a cadeia para ev; ev.Seq precisa ser lastSeq+1
func (c *chain) apply(ev events.WalletTransaction) Verdict {
	c.lastSeq = ev.Seq

	amount, err := money.Parse(ev.Amount)
	if err != nil {
		c.known = false
		return Verdict{Result: ResultBroken, Reason: fmt.Sprintf("amount: %v", err)}
	}
	after, err := money.Parse(ev.BalanceAfter)
	if err != nil {
		c.known = false
		return Verdict{Result: ResultBroken, Reason: fmt.Sprintf("balance_after: %v", err)}
	}

	prev, known := c.lastBalance, c.known
	c.lastBalance, c.known = after, true

	switch {
	case after.IsNegative():
		return Verdict{Result: ResultBroken, Reason: fmt.Sprintf("negative balance_after %s", after)}
	case !kindMatches(ev.Kind, amount):
		return Verdict{Result: ResultBroken, Reason: fmt.Sprintf("kind %q with amount %s", ev.Kind, amount)}
	case !known:
		return Verdict{Result: ResultSeeded}
	case prev.Add(amount).Cmp(after) != 0:
		return Verdict{Result: ResultBroken, Reason: fmt.Sprintf("expected balance_after %s, got %s", prev.Add(amount), after)}
	default:
		return Verdict{Result: ResultOK}
	}
}

// drain aplica os eventos retidos que ficaram contíguos
func (c *chain) drain(out []Checked) []Checked {
	for {
		h, ok := c.pending[c.lastSeq+1]
		if !ok {
			return out
		}
		delete(c.pending, c.lastSeq+1)
		out = append(out, Checked{Event: h.ev, Verdict: c.apply(h.ev)})
	}
}

func missing(from, to int64) string {
	if from == to {
		return fmt.Sprintf("missing seq %d", from)
	}
	return fmt.Sprintf("missing seq %d..%d", from, to)
}

// kindMatches: aposta é sempre débito; depósito e prêmio sempre crédito
func kindMatches(kind string, amount money.Money) bool {
	switch ledger.Kind(kind) {
	case ledger.KindDeposit, ledger.KindWin:
		return amount.IsPositive()
	case ledger.KindBet:
		return amount.IsNegative()
	default:
		return false
	}
}
