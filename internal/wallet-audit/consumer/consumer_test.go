package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/wager-wallet/pkg/contracts/events"
)

func ev(account string, seq int64, kind, amount, after string) events.WalletTransaction {
	return events.WalletTransaction{AccountID: account, Seq: seq, RecordID: seq, Kind: kind, Amount: amount, BalanceAfter: after}
}

func results(cs []Checked) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Verdict.Result
	}
	return out
}

func TestAuditorChain(t *testing.T) {
	a := NewAuditor(time.Minute)

	steps := []struct {
		name string
		ev   events.WalletTransaction
		want string
	}{
		{"seq 1 starts from zero", ev("acc-1", 1, "deposit", "100.0000", "100.0000"), ResultOK},
		{"bet debits", ev("acc-1", 2, "bet", "-10.0000", "90.0000"), ResultOK},
		{"win credits", ev("acc-1", 3, "win", "15.0000", "105.0000"), ResultOK},
		{"replay is duplicate", ev("acc-1", 2, "bet", "-10.0000", "90.0000"), ResultDuplicate},
		{"joining mid stream seeds", ev("acc-2", 4, "deposit", "5.0000", "5.0000"), ResultSeeded},
		{"wrong balance_after", ev("acc-1", 4, "bet", "-5.0000", "99.0000"), ResultBroken},
		{"continues after break", ev("acc-1", 5, "bet", "-9.0000", "90.0000"), ResultOK},
		{"negative balance", ev("acc-2", 5, "bet", "-6.0000", "-1.0000"), ResultBroken},
		{"bet with positive amount", ev("acc-1", 6, "bet", "1.0000", "91.0000"), ResultBroken},
		{"unknown kind", ev("acc-1", 7, "refund", "1.0000", "92.0000"), ResultBroken},
		{"unparsable amount", ev("acc-1", 8, "deposit", "1e3", "1092.0000"), ResultBroken},
		{"reseeds after unparsable event", ev("acc-1", 9, "deposit", "1.0000", "1093.0000"), ResultSeeded},
		{"seq 1 with wrong balance", ev("acc-3", 1, "deposit", "5.0000", "6.0000"), ResultBroken},
		{"missing seq", ev("acc-4", 0, "deposit", "5.0000", "5.0000"), ResultBroken},
	}
	for _, s := range steps {
		got := a.Check(s.ev)
		require.Len(t, got, 1, s.name)
		assert.Equal(t, s.want, got[0].Verdict.Result, s.name)
		if s.want == ResultBroken {
			assert.NotEmpty(t, got[0].Verdict.Reason, s.name)
		}
	}
}

func TestAuditorOutOfOrderDelivery(t *testing.T) {
	a := NewAuditor(time.Minute)

	// ordem de commit: depósito (record 1), aposta (record 3), depósito (record 2);
	// o Kafka entrega o terceiro lançamento antes do segundo
	deposit := events.WalletTransaction{AccountID: "acc-1", Seq: 1, RecordID: 1, Kind: "deposit", Amount: "100.0000", BalanceAfter: "100.0000"}
	bet := events.WalletTransaction{AccountID: "acc-1", Seq: 2, RecordID: 3, Kind: "bet", Amount: "-10.0000", BalanceAfter: "90.0000"}
	topUp := events.WalletTransaction{AccountID: "acc-1", Seq: 3, RecordID: 2, Kind: "deposit", Amount: "5.0000", BalanceAfter: "95.0000"}

	assert.Equal(t, []string{ResultOK}, results(a.Check(deposit)))
	assert.Equal(t, []string{ResultHeld}, results(a.Check(topUp)))
	assert.Equal(t, []string{ResultDuplicate}, results(a.Check(topUp)))

	got := a.Check(bet)
	assert.Equal(t, []string{ResultOK, ResultOK}, results(got))
	assert.Equal(t, int64(2), got[0].Event.Seq)
	assert.Equal(t, int64(3), got[1].Event.Seq)

	assert.Empty(t, a.Expire())
	assert.Equal(t, []string{ResultDuplicate}, results(a.Check(topUp)))
}

func TestAuditorOutOfOrderStillDetectsBreak(t *testing.T) {
	a := NewAuditor(time.Minute)

	a.Check(ev("acc-1", 1, "deposit", "100.0000", "100.0000"))
	require.Equal(t, []string{ResultHeld}, results(a.Check(ev("acc-1", 3, "deposit", "5.0000", "96.0000"))))

	got := a.Check(ev("acc-1", 2, "bet", "-10.0000", "90.0000"))
	require.Equal(t, []string{ResultOK, ResultBroken}, results(got))
	assert.Contains(t, got[1].Verdict.Reason, "expected balance_after 95.0000, got 96.0000")
}

func TestAuditorExpiresGap(t *testing.T) {
	a := NewAuditor(30 * time.Second)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return clock }

	a.Check(ev("acc-1", 1, "deposit", "100.0000", "100.0000"))
	// seq 2 nunca chega
	require.Equal(t, []string{ResultHeld}, results(a.Check(ev("acc-1", 3, "bet", "-10.0000", "85.0000"))))
	clock = clock.Add(5 * time.Second)
	require.Equal(t, []string{ResultHeld}, results(a.Check(ev("acc-1", 4, "deposit", "5.0000", "90.0000"))))

	clock = clock.Add(20 * time.Second)
	assert.Empty(t, a.Expire())

	clock = clock.Add(10 * time.Second)
	got := a.Expire()
	require.Equal(t, []string{ResultBroken, ResultOK}, results(got))
	assert.Equal(t, int64(3), got[0].Event.Seq)
	assert.Equal(t, "missing seq 2", got[0].Verdict.Reason)
	assert.Equal(t, int64(4), got[1].Event.Seq)

	// o seq perdido chegando tarde não reabre a cadeia
	assert.Equal(t, []string{ResultDuplicate}, results(a.Check(ev("acc-1", 2, "bet", "-15.0000", "85.0000"))))
	assert.Equal(t, []string{ResultOK}, results(a.Check(ev("acc-1", 5, "bet", "-1.0000", "89.0000"))))
	assert.Empty(t, a.Expire())
}

func TestAuditorExpiredEventKeepsOwnBreak(t *testing.T) {
	a := NewAuditor(time.Second)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return clock }

	a.Check(ev("acc-1", 1, "deposit", "10.0000", "10.0000"))
	a.Check(ev("acc-1", 4, "bet", "-20.0000", "-10.0000"))

	clock = clock.Add(time.Second)
	got := a.Expire()
	require.Equal(t, []string{ResultBroken}, results(got))
	assert.Equal(t, "missing seq 2..3; negative balance_after -10.0000", got[0].Verdict.Reason)
}

type fakeReader struct {
	mu   sync.Mutex
	msgs []kafka.Message
	errs int
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if r.errs > 0 {
		r.errs--
		r.mu.Unlock()
		return kafka.Message{}, errors.New("broker unavailable")
	}
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

type captureWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.msgs)
}

func message(t *testing.T, e events.WalletTransaction) kafka.Message {
	t.Helper()
	b, err := json.Marshal(e)
	require.NoError(t, err)
	return kafka.Message{Key: []byte(e.AccountID), Value: b}
}

func TestProcessorRoutesBrokenToDLQ(t *testing.T) {
	reader := &fakeReader{
		errs: 1,
		msgs: []kafka.Message{
			message(t, ev("acc-1", 1, "deposit", "50.0000", "50.0000")),
			{Value: []byte("not json")},
			message(t, ev("acc-1", 2, "bet", "-10.0000", "45.0000")),
		},
	}
	dlq := &captureWriter{}

	var (
		mu       sync.Mutex
		consumed int
		verdicts = map[string]int{}
		stages   = map[string]int{}
	)
	p := &Processor{
		Log:        zap.NewNop(),
		Reader:     reader,
		Auditor:    NewAuditor(time.Minute),
		DLQ:        dlq,
		OnConsumed: func() { mu.Lock(); consumed++; mu.Unlock() },
		OnResult:   func(r string) { mu.Lock(); verdicts[r]++; mu.Unlock() },
		OnError:    func(s string) { mu.Lock(); stages[s]++; mu.Unlock() },
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return dlq.len() == 1 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, consumed)
	assert.Equal(t, 1, verdicts[ResultOK])
	assert.Equal(t, 1, verdicts[ResultBroken])
	assert.Equal(t, 1, stages["read"])
	assert.Equal(t, 1, stages["decode"])

	got := dlq.msgs[0]
	assert.Equal(t, "acc-1", string(got.Key))
	require.Len(t, got.Headers, 1)
	assert.Equal(t, "audit_reason", got.Headers[0].Key)
	assert.Contains(t, string(got.Headers[0].Value), "expected balance_after 40.0000")
}

func TestProcessorReportsExpiredGapToDLQ(t *testing.T) {
	dlq := &captureWriter{}
	verdicts := map[string]int{}
	a := NewAuditor(10 * time.Second)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return clock }
	p := &Processor{
		Log:      zap.NewNop(),
		Auditor:  a,
		DLQ:      dlq,
		OnResult: func(r string) { verdicts[r]++ },
	}
	ctx := context.Background()

	p.Handle(ctx, message(t, ev("acc-1", 1, "deposit", "50.0000", "50.0000")))
	p.Handle(ctx, message(t, ev("acc-1", 3, "bet", "-5.0000", "40.0000")))
	p.Expire(ctx)
	assert.Equal(t, 0, dlq.len())

	clock = clock.Add(10 * time.Second)
	p.Expire(ctx)
	require.Equal(t, 1, dlq.len())
	assert.Equal(t, map[string]int{ResultOK: 1, ResultHeld: 1, ResultBroken: 1}, verdicts)

	got := dlq.msgs[0]
	assert.Equal(t, "acc-1", string(got.Key))
	assert.Equal(t, "missing seq 2", string(got.Headers[0].Value))
	var dead events.WalletTransaction
	require.NoError(t, json.Unmarshal(got.Value, &dead))
	assert.Equal(t, int64(3), dead.Seq)
	assert.Equal(t, "40.0000", dead.BalanceAfter)
}
