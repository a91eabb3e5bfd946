package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"costwatch/internal/amqp"
	"costwatch/internal/cli"
	"costwatch/internal/ingest"
	"costwatch/internal/log"
	"costwatch/internal/rates"
)

func main() {
	cfg, logger := cli.Bootstrap(log.ComponentWorker)

	store := cli.OpenStore(cfg, logger)
	defer store.Close()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, cfg.AMQPBatchQueue, logger)
	if err != nil {
		logger.Error("failed to connect to AMQP", log.FieldError, err.Error())
		os.Exit(1)
	}
	defer amqpClient.Close()

	processor := ingest.NewProcessor(store, cfg.IngestBatchSize, logger)
	provider := rates.NewProvider(cfg.RateProviderURL, cfg.RateTimeout, cfg.BaseCurrency, cfg.ReportingCurrency)
	syncer := rates.NewSyncer(store, provider, cfg.BaseCurrency, cfg.ReportingCurrency, cfg.RateSyncOnRequest, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return amqpClient.ConsumeCostBatches(ctx, func(ctx context.Context, msg *amqp.CostBatchMessage) error {
			return processor.HandleBatch(ctx, msg, ingest.NewDimCache())
		})
	})

	g.Go(func() error {
		return amqpClient.ConsumeIngestRequests(ctx, processor.HandleRequest)
	})

	g.Go(func() error {
		syncer.Run(ctx, cfg.RateSyncInterval)
		return nil
	})

	logger.Info("costwatch worker started",
		log.FieldQueue, cfg.AMQPBatchQueue,
		"request_queue", cfg.AMQPQueue,
		"rate_sync_interval", cfg.RateSyncInterval.String())

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("worker stopped with error", log.FieldError, err.Error())
		os.Exit(1)
	}
	logger.Info("worker stopped gracefully")
}
