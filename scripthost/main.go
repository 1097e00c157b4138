package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scripthost-labs/scripthost-go/internal/notify"
	"github.com/scripthost-labs/scripthost-go/internal/platform/httpserver"
	"github.com/scripthost-labs/scripthost-go/internal/platform/metrics"
	"github.com/scripthost-labs/scripthost-go/internal/platform/objectstore"
	"github.com/scripthost-labs/scripthost-go/internal/platform/postgres"
	"github.com/scripthost-labs/scripthost-go/internal/policy"
	"github.com/scripthost-labs/scripthost-go/internal/scriptstore"
	"github.com/scripthost-labs/scripthost-go/internal/token"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := configFromEnv()
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}

	pol, err := policy.Load(cfg.PolicyFile)
	if err != nil {
		logger.Error("invalid upload policy", "error", err, "path", cfg.PolicyFile)
		os.Exit(2)
	}

	storeCfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid object store config", "error", err)
		os.Exit(2)
	}
	client, err := objectstore.NewMinIOClient(storeCfg)
	if err != nil {
		logger.Error("object store client init failed", "error", err)
		os.Exit(1)
	}
	ensureCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = objectstore.EnsureBucket(ensureCtx, client, storeCfg)
	cancel()
	if err != nil {
		logger.Error("object store unavailable", "error", err)
		os.Exit(1)
	}
	store, err := scriptstore.NewMinioStore(client, storeCfg.BucketScripts)
	if err != nil {
		logger.Error("script store init failed", "error", err)
		os.Exit(1)
	}

	var notifier notify.Notifier = notify.Noop{}
	if cfg.WebhookURL != "" {
		webhook, err := notify.NewDiscordWebhook(cfg.WebhookURL)
		if err != nil {
			logger.Error("invalid webhook config", "error", err)
			os.Exit(2)
		}
		notifier = webhook
	}

	var auditDB *sql.DB
	if cfg.AuditEnabled {
		dbCfg, err := postgres.ConfigFromEnv()
		if err != nil {
			logger.Error("invalid database config", "error", err)
			os.Exit(2)
		}
		auditDB, err = postgres.Open(ctx, dbCfg)
		if err != nil {
			logger.Error("database unavailable", "error", err)
			os.Exit(1)
		}
		defer func() { _ = auditDB.Close() }()
	}

	prom := metrics.NewProm("scripthost")
	api := newScriptHostAPI(logger, store, token.NewGenerator(nil), notifier, prom, pol, cfg.PublicBaseURL, auditDB)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz("scripthost"))
	readiness := []httpserver.ReadinessCheck{
		{
			Name: "objectstore",
			Check: func(ctx context.Context) error {
				checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
				defer cancel()
				_, err := client.BucketExists(checkCtx, storeCfg.BucketScripts)
				return err
			},
		},
	}
	if auditDB != nil {
		readiness = append(readiness, httpserver.ReadinessCheck{
			Name: "postgres",
			Check: func(ctx context.Context) error {
				checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
				defer cancel()
				return auditDB.PingContext(checkCtx)
			},
		})
	}
	mux.HandleFunc("/readyz", httpserver.ReadyzWithChecks("scripthost", readiness...))
	mux.Handle("/metrics", metrics.Handler())
	api.register(mux)

	handler := httpserver.Wrap(logger, "scripthost", prom, mux)
	err = httpserver.Run(ctx, logger, httpserver.Config{
		Service:         "scripthost",
		Addr:            cfg.Addr,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, handler)
	if err != nil {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
}
