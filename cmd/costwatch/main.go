package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"costwatch/internal/amqp"
	"costwatch/internal/analytics"
	"costwatch/internal/cli"
	apphttp "costwatch/internal/http"
	"costwatch/internal/ingest"
	"costwatch/internal/log"
	"costwatch/internal/rates"
)

func main() {
	cfg, logger := cli.Bootstrap(log.ComponentApp)

	store := cli.OpenStore(cfg, logger)
	defer store.Close()

	resolver := analytics.NewRateResolver(store, store, cfg.RateFallback, logger)
	targets := analytics.NewTargets(analytics.TargetDefaults{
		MonthlyReporting: cfg.TargetMonthlyReporting,
		MonthlyBase:      cfg.TargetMonthlyBase,
		WeeklyReporting:  cfg.TargetWeeklyReporting,
		WeeklyBase:       cfg.TargetWeeklyBase,
	}, cfg.ReportingCurrency, cfg.MonthlyTargetsJSON)
	service := analytics.NewService(store, resolver, targets, cfg.ReportingCurrency, cfg.BaseCurrency)

	provider := rates.NewProvider(cfg.RateProviderURL, cfg.RateTimeout, cfg.BaseCurrency, cfg.ReportingCurrency)
	syncer := rates.NewSyncer(store, provider, cfg.BaseCurrency, cfg.ReportingCurrency, cfg.RateSyncOnRequest, logger)

	// AMQP is optional for the API: without it, coverage gaps simply go
	// unrequested.
	var requester *ingest.Requester
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, cfg.AMQPBatchQueue, logger)
		if err != nil {
			logger.Warn("AMQP unavailable, auto-ingest disabled", log.FieldError, err.Error())
		} else {
			defer amqpClient.Close()
			requester = ingest.NewRequester(store, amqpClient, cfg.AutoIngestOnRequest, logger)
		}
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Options{
		Analytics:         service,
		Filters:           store,
		Syncer:            syncer,
		Requester:         requester,
		ReportingCurrency: cfg.ReportingCurrency,
		BaseCurrency:      cfg.BaseCurrency,
		Logger:            logger,
	})
	srv.ReadTimeout = 15 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", log.FieldError, err.Error())
		}
		cancel()
	}()

	logger.Info("starting costwatch API", "port", cfg.Port, "db", cfg.SQLiteDBPath)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", log.FieldError, err.Error(), "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("server stopped gracefully")
}
