// Command server runs the inverse-transparency log store: it records which
// tools accessed whose personal data, gated by the data owners' access
// policies.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	accesshandler "overseer/internal/access/handler"
	accessmetrics "overseer/internal/access/metrics"
	accessoutbox "overseer/internal/access/outbox"
	accessservice "overseer/internal/access/service"
	accessstore "overseer/internal/access/store"
	"overseer/internal/identity"
	"overseer/internal/platform/config"
	"overseer/internal/platform/httpserver"
	"overseer/internal/platform/logger"
	"overseer/internal/platform/postgres"
	platformredis "overseer/internal/platform/redis"
	policyhandler "overseer/internal/policy/handler"
	policyservice "overseer/internal/policy/service"
	policystore "overseer/internal/policy/store"
	"overseer/internal/storage"
	toolhandler "overseer/internal/tool/handler"
	toolservice "overseer/internal/tool/service"
	toolstore "overseer/internal/tool/store"
	httptransport "overseer/internal/transport/http"
	authmiddleware "overseer/pkg/platform/middleware/auth"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		accessStore  accessservice.AccessStore
		policyStore  policyservice.Store
		toolStore    toolservice.Store
		txRunner     accessservice.TxRunner
		outboxWorker *accessoutbox.Worker
		health       httptransport.HealthChecker
	)

	if cfg.DatabaseURL != "" {
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("database connection failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := storage.Ensure(ctx, db); err != nil {
			log.Error("schema setup failed", "error", err)
			os.Exit(1)
		}

		accessStore = accessstore.NewPostgres(db)
		policyStore = policystore.NewPostgres(db)
		toolStore = toolstore.NewPostgres(db)
		txRunner = newPostgresTx(db)
		health = func(ctx context.Context) error { return postgres.Health(ctx, db) }

		if len(cfg.Kafka.Brokers) > 0 {
			publisher, err := accessoutbox.NewKafkaPublisher(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic)
			if err != nil {
				log.Error("kafka setup failed", "error", err)
				os.Exit(1)
			}
			defer publisher.Close()
			outboxWorker = accessoutbox.NewWorker(
				accessstore.NewOutbox(db), publisher,
				cfg.Kafka.PollInterval, cfg.Kafka.BatchSize, log,
			)
		}
	} else {
		log.Warn("no database configured, using in-memory stores")
		memPolicies := policystore.NewInMemory()
		memTools := toolstore.NewInMemory()
		memTools.SetReferenceCheck(memPolicies.ReferencesTool)

		accessStore = accessstore.NewInMemory()
		policyStore = memPolicies
		toolStore = memTools
		txRunner = accessservice.NopTxRunner{}
		health = func(context.Context) error { return nil }
	}

	var resolver identity.Resolver = identity.NewRevoloriClient(cfg.Revolori.BaseURL, cfg.Revolori.Timeout, log)
	if cfg.RedisURL != "" {
		redisClient, err := platformredis.New(cfg.RedisURL)
		if err != nil {
			log.Error("redis connection failed", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		resolver = identity.NewCachedResolver(resolver, redisClient.Client, cfg.Revolori.CacheTTL, log)
	}

	toolSvc := toolservice.NewService(toolStore)
	policySvc := policyservice.NewService(policyStore, toolSvc)
	accessSvc := accessservice.New(accessStore, policyStore, toolSvc, resolver, txRunner, accessmetrics.New(), log)

	router := httptransport.NewRouter(
		httptransport.Handlers{
			Access: accesshandler.New(accessSvc, toolSvc, log),
			Policy: policyhandler.New(policySvc, log),
			Tool:   toolhandler.New(toolSvc, log),
		},
		httptransport.Auth{
			Verifier:  authmiddleware.NewHMACVerifier(cfg.JWTSigningKey),
			Technical: authmiddleware.BasicCredentials{Username: cfg.TechnicalUser, Password: cfg.TechnicalPassword},
			Admin:     authmiddleware.BasicCredentials{Username: cfg.AdminUser, Password: cfg.AdminPassword},
		},
		health,
		log,
	)

	if outboxWorker != nil {
		go func() {
			if err := outboxWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("outbox worker stopped", "error", err)
			}
		}()
	}

	srv := httpserver.New(cfg.Addr, router)
	go func() {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
