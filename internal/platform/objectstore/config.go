package objectstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/scripthost-labs/scripthost-go/internal/platform/env"
)

type Config struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Region        string
	UseSSL        bool
	BucketScripts string
}

func ConfigFromEnv() (Config, error) {
	useSSL, err := env.Bool("SCRIPTHOST_MINIO_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:      env.String("SCRIPTHOST_MINIO_ENDPOINT", "localhost:9000"),
		AccessKey:     env.String("SCRIPTHOST_MINIO_ACCESS_KEY", "scripthost"),
		SecretKey:     env.String("SCRIPTHOST_MINIO_SECRET_KEY", "scripthostminio"),
		Region:        env.String("SCRIPTHOST_MINIO_REGION", "us-east-1"),
		UseSSL:        useSSL,
		BucketScripts: env.String("SCRIPTHOST_MINIO_BUCKET_SCRIPTS", "scripts"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("region is required")
	}
	if strings.TrimSpace(c.BucketScripts) == "" {
		return errors.New("scripts bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}
