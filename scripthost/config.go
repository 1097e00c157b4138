package main

import (
	"time"

	"github.com/scripthost-labs/scripthost-go/internal/platform/env"
)

type serviceConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
	PublicBaseURL   string
	WebhookURL      string
	PolicyFile      string
	AuditEnabled    bool
}

func configFromEnv() (serviceConfig, error) {
	shutdownTimeout, err := env.Duration("SCRIPTHOST_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return serviceConfig{}, err
	}
	auditEnabled, err := env.Bool("SCRIPTHOST_AUDIT_ENABLED", false)
	if err != nil {
		return serviceConfig{}, err
	}
	return serviceConfig{
		Addr:            env.String("SCRIPTHOST_HTTP_ADDR", ":8080"),
		ShutdownTimeout: shutdownTimeout,
		PublicBaseURL:   env.String("SCRIPTHOST_PUBLIC_BASE_URL", ""),
		WebhookURL:      env.String("SCRIPTHOST_DISCORD_WEBHOOK_URL", ""),
		PolicyFile:      env.String("SCRIPTHOST_POLICY_FILE", ""),
		AuditEnabled:    auditEnabled,
	}, nil
}
