package ws

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/wager-wallet/pkg/contracts/events"
)

// StartRedisSubscriber escuta o canal de saldo no Redis Pub/Sub e repassa
// cada atualização ao Hub. Encerra quando ctx for cancelado.
func StartRedisSubscriber(ctx context.Context, r *redis.Client, channel string, hub *Hub, log *zap.Logger) {
	sub := r.Subscribe(ctx, channel)
	ch := sub.Channel()
	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var upd events.BalanceUpdate
				if err := json.Unmarshal([]byte(msg.Payload), &upd); err != nil {
					log.Warn("ws subscriber unmarshal", zap.Error(err))
					continue
				}
				hub.Broadcast(upd)
			}
		}
	}()
}
