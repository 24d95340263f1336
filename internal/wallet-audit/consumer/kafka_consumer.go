package consumer

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	skafka "github.com/radieske/wager-wallet/internal/shared/kafka"
	"github.com/radieske/wager-wallet/pkg/contracts/events"
)

// MessageReader é o subconjunto de *kafka.Reader usado pelo Processor
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// Processor consome wallet_transactions e audita a cadeia de saldo de cada conta.
// Callbacks de métricas podem ser usadas para monitoramento de cada etapa.
type Processor struct {
	Log     *zap.Logger
	Reader  MessageReader
	Auditor *Auditor
	DLQ     skafka.MessageWriter // opcional: recebe eventos com cadeia quebrada

	// ExpireEvery define a frequência da varredura de eventos retidos; zero usa 1s
	ExpireEvery time.Duration

	OnConsumed func()       // métricas (counter++)
	OnResult   func(string) // métricas por veredito
	OnError    func(string) // métricas por fase
}

// Run inicia o loop principal de consumo; retorna quando ctx for cancelado
func (p *Processor) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel() // roda antes de wg.Wait

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.expireLoop(ctx)
	}()

	for {
		m, err := p.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err() // encerra se o contexto for cancelado
			}
			p.Log.Warn("kafka read failed", zap.Error(err))
			p.onError("read")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}

		if p.OnConsumed != nil {
			p.OnConsumed() // callback de métrica: mensagem consumida
		}
		p.Handle(ctx, m)
	}
}

func (p *Processor) expireLoop(ctx context.Context) {
	every := p.ExpireEvery
	if every <= 0 {
		every = time.Second
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.Expire(ctx)
		}
	}
}

// Handle audita uma mensagem; falhas são logadas e contadas, nunca interrompem o loop
func (p *Processor) Handle(ctx context.Context, m kafka.Message) {
	var ev events.WalletTransaction
	if err := json.Unmarshal(m.Value, &ev); err != nil || ev.AccountID == "" {
		p.Log.Warn("invalid message", zap.Error(err), zap.Int64("offset", m.Offset))
		p.onError("decode")
		return
	}

	for _, c := range p.Auditor.Check(ev) {
		p.report(ctx, c)
	}
}

// Expire reporta as lacunas de seq que passaram do tempo de espera do Auditor
func (p *Processor) Expire(ctx context.Context) {
	for _, c := range p.Auditor.Expire() {
		p.report(ctx, c)
	}
}

func (p *Processor) report(ctx context.Context, c Checked) {
	if p.OnResult != nil {
		p.OnResult(c.Verdict.Result)
	}
	if c.Verdict.Result != ResultBroken {
		return
	}

	ev := c.Event
	p.Log.Error("ledger chain broken",
		zap.String("account_id", ev.AccountID),
		zap.Int64("seq", ev.Seq),
		zap.Int64("record_id", ev.RecordID),
		zap.String("kind", ev.Kind),
		zap.String("amount", ev.Amount),
		zap.String("balance_after", ev.BalanceAfter),
		zap.String("reason", c.Verdict.Reason),
	)
	if p.DLQ == nil {
		return
	}
	// o evento pode ter saído da retenção, então a mensagem é remontada a partir dele
	value, err := json.Marshal(ev)
	if err != nil {
		p.Log.Warn("dlq encode failed", zap.Error(err))
		p.onError("dlq")
		return
	}
	dlq := kafka.Message{
		Key:     []byte(ev.AccountID),
		Value:   value,
		Headers: []kafka.Header{{Key: "audit_reason", Value: []byte(c.Verdict.Reason)}},
		Time:    time.Now(),
	}
	if err := p.DLQ.WriteMessages(ctx, dlq); err != nil {
		p.Log.Warn("dlq publish failed", zap.Error(err))
		p.onError("dlq")
	}
}

func (p *Processor) onError(stage string) {
	if p.OnError != nil {
		p.OnError(stage)
	}
}
