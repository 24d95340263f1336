package producer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	skafka "github.com/radieske/wager-wallet/internal/shared/kafka"
	"github.com/radieske/wager-wallet/internal/wallet-service/engine"
	"github.com/radieske/wager-wallet/internal/wallet-service/ledger"
	"github.com/radieske/wager-wallet/pkg/contracts/events"
)

// KafkaPublisher publica um WalletTransaction por lançamento confirmado.
// A chave é o account_id, então a ordem por conta é preservada na partição.
type KafkaPublisher struct {
	Writer skafka.MessageWriter
	now    func() time.Time
}

func NewKafkaPublisher(w skafka.MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{Writer: w, now: time.Now}
}

func (p *KafkaPublisher) Name() string { return "kafka" }

// PublishCommitted envia todos os lançamentos da operação num único WriteMessages
func (p *KafkaPublisher) PublishCommitted(ctx context.Context, c engine.Committed) error {
	msgs := make([]kafka.Message, 0, len(c.Records))
	for _, r := range c.Records {
		msg, err := skafka.JSONMessage(c.AccountID, p.event(r))
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	if err := p.Writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write wallet transactions: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) event(r ledger.Record) events.WalletTransaction {
	return events.WalletTransaction{
		EventID:      uuid.NewString(),
		RecordID:     r.ID,
		Seq:          r.Seq,
		AccountID:    r.AccountID,
		Kind:         string(r.Kind),
		Amount:       r.Amount.String(),
		BalanceAfter: r.BalanceAfter.String(),
		CreatedAt:    r.CreatedAt,
		TsUnixMs:     p.now().UnixMilli(),
	}
}
