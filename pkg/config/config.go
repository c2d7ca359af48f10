package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
)

type Config struct {
	CacheDefaultTTL           time.Duration
	CacheSweepInterval        time.Duration
	DatabaseBusyTimeout       time.Duration
	DatabaseConnectRetryCount int
	DatabaseConnectRetryDelay time.Duration
	DatabaseDebug             bool
	DatabaseFilePath          string
	DatabaseMaxRetries        int
	FreshnessWindow           time.Duration
	Hostname                  string
	RemoteRequestsPerSecond   float64
	RemoteTimeout             time.Duration
	ServerHost                string
	ServerPort                int
	SyncPageSize              int
	SyncSweepInitialDelay     time.Duration
	SyncSweepInterval         time.Duration
}

const environmentENV = "ENVIRONMENT"

func New() (*Config, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	cfg := &Config{
		CacheDefaultTTL:           5 * time.Minute,
		CacheSweepInterval:        5 * time.Minute,
		DatabaseBusyTimeout:       5 * time.Second,
		DatabaseConnectRetryCount: 5,
		DatabaseConnectRetryDelay: 2 * time.Second,
		DatabaseMaxRetries:        5,
		FreshnessWindow:           24 * time.Hour,
		Hostname:                  hostname,
		RemoteRequestsPerSecond:   10,
		RemoteTimeout:             30 * time.Second,
		ServerPort:                3689,
		SyncPageSize:              500,
		SyncSweepInitialDelay:     10 * time.Second,
		SyncSweepInterval:         24 * time.Hour,
	}

	switch os.Getenv(environmentENV) {
	case "development", "":
		loadDevelopmentConfig(cfg)
	case "test":
		loadTestConfig(cfg)
	case "production":
		loadProductionConfig(cfg)
	}

	return cfg, nil
}
