package main

import (
	"context"
	"database/sql"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	sharedcache "github.com/radieske/wager-wallet/internal/shared/cache"
	"github.com/radieske/wager-wallet/internal/shared/config"
	"github.com/radieske/wager-wallet/internal/shared/db"
	skafka "github.com/radieske/wager-wallet/internal/shared/kafka"
	"github.com/radieske/wager-wallet/internal/shared/logger"
	smetrics "github.com/radieske/wager-wallet/internal/shared/metrics"
	"github.com/radieske/wager-wallet/internal/wallet-service/balance"
	"github.com/radieske/wager-wallet/internal/wallet-service/engine"
	whttp "github.com/radieske/wager-wallet/internal/wallet-service/http"
	"github.com/radieske/wager-wallet/internal/wallet-service/ledger"
	wmetrics "github.com/radieske/wager-wallet/internal/wallet-service/metrics"
	"github.com/radieske/wager-wallet/internal/wallet-service/money"
	"github.com/radieske/wager-wallet/internal/wallet-service/outcome"
	"github.com/radieske/wager-wallet/internal/wallet-service/producer"
	"github.com/radieske/wager-wallet/internal/wallet-service/ws"
)

func main() {
	cfg := config.Load()

	// Inicializa logger estruturado
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("starting service", zap.String("store", cfg.StoreDriver))

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checks := []smetrics.HealthCheck{}

	// Ledger: Postgres em produção, memória para desenvolvimento local
	var store ledger.Store
	switch cfg.StoreDriver {
	case "memory":
		store = ledger.NewMemory()
	case "postgres":
		pg := openPostgres(ctx, cfg, log)
		defer pg.Close()
		store = ledger.NewPostgres(pg)
	default:
		log.Fatal("unknown store driver", zap.String("driver", cfg.StoreDriver))
	}
	checks = append(checks, smetrics.HealthCheck{Name: "store", Check: store.Ping})

	reg := prometheus.DefaultRegisterer
	opts := engine.Options{
		Limits:       limits(cfg, log),
		HistoryLimit: cfg.HistoryLimit,
		Metrics:      wmetrics.New(reg),
	}

	// Kafka: um evento por lançamento confirmado
	if cfg.KafkaBrokers != "" {
		writer := skafka.NewWriter(cfg.KafkaBrokers, cfg.TopicWalletTransactions)
		defer writer.Close()
		opts.Publishers = append(opts.Publishers, producer.NewKafkaPublisher(writer))
	}

	// Redis: cache de saldo + feed Pub/Sub para o WebSocket
	hub := ws.NewHub(log, func(r *http.Request) bool { return true })
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb, err = sharedcache.ConnectRedis(cfg.RedisAddr)
		if err != nil {
			log.Fatal("redis connect", zap.Error(err))
		}
		defer rdb.Close()

		cache := balance.NewRedisCache(rdb, cfg.BalanceCacheTTL)
		opts.BalanceCache = cache
		opts.Publishers = append(opts.Publishers, cache, balance.NewRedisFeed(rdb, cfg.RedisBalanceChannel))
		checks = append(checks, smetrics.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		ws.StartRedisSubscriber(ctx, rdb, cfg.RedisBalanceChannel, hub, log)
	}

	eng := engine.New(store, outcome.New(), log, opts)

	var wsHandler http.Handler
	if rdb != nil {
		wsHandler = http.HandlerFunc(hub.HandleWS)
	}
	api := whttp.NewServer(log, eng, wsHandler)

	// Servidor de métricas e health check
	metricsSrv := smetrics.StartMetricsServer(cfg.MetricsPort, log, prometheus.DefaultGatherer, checks...)

	// Servidor HTTP público (API de wallet)
	apiSrv := &http.Server{
		Addr:              ":" + cfg.HTTPPort, // ex: 8082
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("api listening", zap.String("addr", apiSrv.Addr))
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("api srv", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = apiSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
}

// openPostgres conecta e aplica o schema do ledger
func openPostgres(ctx context.Context, cfg config.Config, log *zap.Logger) *sql.DB {
	pg, err := db.ConnectPostgres(cfg.PostgresDSN, db.Pool{MaxOpenConns: cfg.PGMaxConns})
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	mctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.Migrate(mctx, pg); err != nil {
		log.Fatal("postgres migrate", zap.Error(err))
	}
	return pg
}

func limits(cfg config.Config, log *zap.Logger) engine.Limits {
	parse := func(name, v string) money.Money {
		m, err := money.Parse(v)
		if err != nil {
			log.Fatal("invalid wallet limit", zap.String("limit", name), zap.Error(err))
		}
		return m
	}
	return engine.Limits{
		MinDeposit: parse("WALLET_MIN_DEPOSIT", cfg.MinDeposit),
		MaxDeposit: parse("WALLET_MAX_DEPOSIT", cfg.MaxDeposit),
		MinBet:     parse("WALLET_MIN_BET", cfg.MinBet),
		MaxBet:     parse("WALLET_MAX_BET", cfg.MaxBet),
	}
}
