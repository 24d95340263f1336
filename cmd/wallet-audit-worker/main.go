package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/wager-wallet/internal/shared/config"
	skafka "github.com/radieske/wager-wallet/internal/shared/kafka"
	"github.com/radieske/wager-wallet/internal/shared/logger"
	smetrics "github.com/radieske/wager-wallet/internal/shared/metrics"
	"github.com/radieske/wager-wallet/internal/wallet-audit/consumer"
	wmetrics "github.com/radieske/wager-wallet/internal/wallet-service/metrics"
)

const groupID = "wallet-audit"

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if cfg.KafkaBrokers == "" {
		log.Fatal("KAFKA_BROKERS is required")
	}

	// Configura o consumer Kafka (consumer group wallet-audit)
	reader := skafka.NewReader(cfg.KafkaBrokers, cfg.TopicWalletTransactions, groupID)
	defer reader.Close()

	proc := &consumer.Processor{
		Log:     log,
		Reader:  reader,
		Auditor: consumer.NewAuditor(cfg.AuditHoldTimeout),
	}
	if cfg.TopicWalletTransactionsDLQ != "" {
		dlq := skafka.NewWriter(cfg.KafkaBrokers, cfg.TopicWalletTransactionsDLQ)
		defer dlq.Close()
		proc.DLQ = dlq
	}

	// Métricas Prometheus por veredito e por fase de erro
	m := wmetrics.NewAudit(prometheus.DefaultRegisterer)
	proc.OnResult = m.Record
	proc.OnError = m.Error

	metricsSrv := smetrics.StartMetricsServer(cfg.MetricsPort, log, prometheus.DefaultGatherer)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("wallet-audit started", zap.String("topic", cfg.TopicWalletTransactions), zap.String("group", groupID), zap.Duration("hold_timeout", cfg.AuditHoldTimeout))
	if err := proc.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("processor stopped with error", zap.Error(err))
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Info("wallet-audit stopped")
}
