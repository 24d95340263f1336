// Package balance mantém o saldo das contas no Redis: um cache de leitura
// e um feed Pub/Sub consumido pelo hub WebSocket.
package balance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/wager-wallet/internal/wallet-service/engine"
	"github.com/radieske/wager-wallet/internal/wallet-service/money"
)

// setIfNewer só grava se o seq for maior que o já cacheado.
// KEYS[1]=chave ARGV[1]=saldo ARGV[2]=seq ARGV[3]=ttl em ms
var setIfNewer = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'seq')
if cur and tonumber(cur) >= tonumber(ARGV[2]) then
  return 0
end
redis.call('HSET', KEYS[1], 'balance', ARGV[1], 'seq', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// RedisCache guarda o último saldo confirmado por conta.
// Client: cliente Redis
// TTL: expiração de cada chave; renovada a cada escrita
type RedisCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisCache(c *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{Client: c, TTL: ttl}
}

// key gera a chave Redis do saldo de uma conta
func key(accountID string) string { return "wallet:balance:" + accountID }

func (r *RedisCache) Name() string { return "redis_cache" }

// PublishCommitted grava o saldo final da operação; publishers fora de ordem não regridem o valor
func (r *RedisCache) PublishCommitted(ctx context.Context, c engine.Committed) error {
	if len(c.Records) == 0 {
		return nil
	}
	last := c.Records[len(c.Records)-1]
	_, err := r.set(ctx, c.AccountID, c.Balance, last.Seq)
	return err
}

// set retorna true se o valor foi gravado
func (r *RedisCache) set(ctx context.Context, accountID string, bal money.Money, seq int64) (bool, error) {
	n, err := setIfNewer.Run(ctx, r.Client,
		[]string{key(accountID)},
		bal.String(), seq, r.TTL.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("cache balance %s: %w", accountID, err)
	}
	return n == 1, nil
}

// Balance lê o saldo cacheado; ok=false em miss
func (r *RedisCache) Balance(ctx context.Context, accountID string) (money.Money, bool, error) {
	v, err := r.Client.HGet(ctx, key(accountID), "balance").Result()
	if errors.Is(err, redis.Nil) {
		return money.Zero, false, nil
	}
	if err != nil {
		return money.Zero, false, fmt.Errorf("read cached balance %s: %w", accountID, err)
	}
	bal, err := money.Parse(v)
	if err != nil {
		return money.Zero, false, fmt.Errorf("cached balance %s: %w", accountID, err)
	}
	return bal, true, nil
}
