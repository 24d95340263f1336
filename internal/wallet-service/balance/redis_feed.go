package balance

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/wager-wallet/internal/wallet-service/engine"
	"github.com/radieske/wager-wallet/pkg/contracts/events"
)

// ChannelBalanceBroadcast é o canal padrão do feed de saldo
const ChannelBalanceBroadcast = "wallet_balance_broadcast"

// RedisFeed publica o saldo pós-commit no Redis Pub/Sub (consumido pelo ws.Hub)
type RedisFeed struct {
	r       *redis.Client
	channel string
}

func NewRedisFeed(r *redis.Client, channel string) *RedisFeed {
	if channel == "" {
		channel = ChannelBalanceBroadcast
	}
	return &RedisFeed{r: r, channel: channel}
}

func (f *RedisFeed) Name() string { return "redis_feed" }

func (f *RedisFeed) PublishCommitted(ctx context.Context, c engine.Committed) error {
	if len(c.Records) == 0 {
		return nil
	}
	b, err := json.Marshal(Update(c))
	if err != nil {
		return err
	}
	if err := f.r.Publish(ctx, f.channel, b).Err(); err != nil {
		return fmt.Errorf("publish balance %s: %w", c.AccountID, err)
	}
	return nil
}

// Update monta o payload do feed a partir do último lançamento confirmado
func Update(c engine.Committed) events.BalanceUpdate {
	u := events.BalanceUpdate{AccountID: c.AccountID, Balance: c.Balance.String()}
	if n := len(c.Records); n > 0 {
		u.RecordID = c.Records[n-1].ID
		u.Seq = c.Records[n-1].Seq
	}
	return u
}
