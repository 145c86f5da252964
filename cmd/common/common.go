// Package common implements common dcipher command options.
package common

import (
	"context"
	"fmt"
	"io"
	stdLog "log"
	"os"

	"github.com/akrylysov/pogreb"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dcipher-network/dcipher/agent"
	"github.com/dcipher-network/dcipher/agent/blocklock"
	"github.com/dcipher-network/dcipher/common"
	"github.com/dcipher-network/dcipher/config"
	"github.com/dcipher-network/dcipher/log"
	"github.com/dcipher-network/dcipher/metrics"
	"github.com/dcipher-network/dcipher/storage/kvstore"
	"github.com/dcipher-network/dcipher/storage/postgres"
)

const (
	defaultLogMaxSizeMB  = 100
	defaultLogMaxBackups = 10
)

var rootLogger = log.NewDefaultLogger("dcipher")

// Init initializes the common environment: logging, and the logging of
// the libraries that log through the standard library logger.
func Init(cfg *config.Config) error {
	var w io.Writer = os.Stdout
	format := log.FmtJSON
	level := log.LevelDebug

	if cfg.Log != nil {
		w = getLoggingStream(cfg.Log)
		if err := format.Set(cfg.Log.Format); err != nil {
			return err
		}
		if err := level.Set(cfg.Log.Level); err != nil {
			return err
		}
	}
	logger, err := log.NewLogger("dcipher", w, format, level)
	if err != nil {
		return err
	}
	rootLogger = logger

	// pogreb logs through the standard library logger; unwind past the adapter.
	pogrebLogger := RootLogger().WithModule("pogreb").WithCallerUnwind(7)
	pogreb.SetLogger(stdLog.New(log.WriterIntoLogger(*pogrebLogger), "", 0))
	return nil
}

// RootLogger returns the logger defined by logging flags.
func RootLogger() *log.Logger {
	return rootLogger
}

// getLoggingStream returns stdout, or a rotating log file if one is configured.
func getLoggingStream(cfg *config.LogConfig) io.Writer {
	if cfg == nil || cfg.File == "" {
		return os.Stdout
	}
	maxSize, maxBackups := cfg.MaxSizeMB, cfg.MaxBackups
	if maxSize == 0 {
		maxSize = defaultLogMaxSizeMB
	}
	if maxBackups == 0 {
		maxBackups = defaultLogMaxBackups
	}
	return &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		Compress:   true,
	}
}

// NewStateStore opens the snapshot store selected by cfg. The returned func
// releases it.
func NewStateStore(ctx context.Context, cfg *config.StorageConfig, logger *log.Logger) (blocklock.StateStore, func(), error) {
	var backend config.StorageBackend
	if err := backend.Set(cfg.Backend); err != nil {
		return nil, nil, err
	}

	switch backend {
	case config.BackendPogreb:
		kv, err := kvstore.OpenKVStore(logger, cfg.Endpoint)
		if err != nil {
			return nil, nil, fmt.Errorf("opening kvstore: %w", err)
		}
		store := kvstore.NewStateStore(kv)
		return store, func() { common.CloseOrLog(store, logger) }, nil
	case config.BackendPostgres:
		if err := postgres.Migrate(cfg.Migrations, cfg.Endpoint, logger); err != nil {
			return nil, nil, fmt.Errorf("migrating database: %w", err)
		}
		client, err := postgres.NewClient(ctx, cfg.Endpoint, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to database: %w", err)
		}
		return postgres.NewStateStore(client), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage backend: %v", backend.String())
	}
}

// MetricsServices returns the services exposing metrics and profiles, if
// configured.
func MetricsServices(cfg *config.MetricsConfig) []agent.Service {
	if cfg == nil {
		return nil
	}
	services := []agent.Service{metrics.NewPullService(cfg.PullEndpoint, rootLogger)}
	if cfg.PprofEndpoint != "" {
		services = append(services, newPprofService(cfg.PprofEndpoint, rootLogger))
	}
	return services
}
