// Package config enables config file parsing.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"

	"github.com/dcipher-network/dcipher/log"
)

// EnvPrefix is the prefix of environment variables that override config values.
const EnvPrefix = "DCIPHER_"

const (
	defaultSyncBatchSize      = 100
	defaultMaxParallelBatches = 4
	defaultPollInterval       = 2 * time.Second
	defaultMaxBlockRange      = 500
)

// Config contains the CLI configuration.
type Config struct {
	Agent   *AgentConfig   `koanf:"agent"`
	Server  *ServerConfig  `koanf:"server"`
	Log     *LogConfig     `koanf:"log"`
	Metrics *MetricsConfig `koanf:"metrics"`
}

// Validate performs config validation.
func (cfg *Config) Validate() error {
	if cfg.Agent != nil {
		if err := cfg.Agent.Validate(); err != nil {
			return fmt.Errorf("agent: %w", err)
		}
	}
	if cfg.Server != nil {
		if err := cfg.Server.Validate(); err != nil {
			return fmt.Errorf("server: %w", err)
		}
	}
	if cfg.Log != nil {
		if err := cfg.Log.Validate(); err != nil {
			return fmt.Errorf("log: %w", err)
		}
	}
	if cfg.Metrics != nil {
		if err := cfg.Metrics.Validate(); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	return nil
}

// AgentConfig is the configuration of the blocklock agent.
type AgentConfig struct {
	// SchemeID selects the requests handled by this agent. Compared byte for byte.
	SchemeID string `koanf:"scheme_id"`

	// SyncBatchSize is the number of requests fetched per batched chain call.
	SyncBatchSize int `koanf:"sync_batch_size"`

	// MaxParallelBatches bounds the number of batches fetched concurrently.
	MaxParallelBatches int `koanf:"max_parallel_batches"`

	Source  SourceConfig   `koanf:"source"`
	Storage *StorageConfig `koanf:"storage"`
}

// BatchSize returns the configured sync batch size or its default.
func (cfg *AgentConfig) BatchSize() int {
	if cfg.SyncBatchSize == 0 {
		return defaultSyncBatchSize
	}
	return cfg.SyncBatchSize
}

// Parallelism returns the configured batch parallelism or its default.
func (cfg *AgentConfig) Parallelism() int {
	if cfg.MaxParallelBatches == 0 {
		return defaultMaxParallelBatches
	}
	return cfg.MaxParallelBatches
}

// Validate validates the agent configuration.
func (cfg *AgentConfig) Validate() error {
	if cfg.SchemeID == "" {
		return fmt.Errorf("no scheme_id provided")
	}
	if cfg.SyncBatchSize < 0 {
		return fmt.Errorf("invalid sync_batch_size %d", cfg.SyncBatchSize)
	}
	if cfg.MaxParallelBatches < 0 {
		return fmt.Errorf("invalid max_parallel_batches %d", cfg.MaxParallelBatches)
	}
	if err := cfg.Source.Validate(); err != nil {
		return fmt.Errorf("source: %w", err)
	}
	if cfg.Storage == nil {
		return fmt.Errorf("no storage config provided")
	}
	return cfg.Storage.Validate()
}

// SourceConfig describes how to reach the chain holding the decryption sender contract.
type SourceConfig struct {
	// RPC is the JSON-RPC endpoint of an EVM node.
	RPC string `koanf:"rpc"`

	// ContractAddress is the hex address of the decryption sender contract.
	ContractAddress string `koanf:"contract_address"`

	// PollInterval is the delay between chain head queries.
	PollInterval time.Duration `koanf:"poll_interval"`

	// MaxBlockRange bounds the block span of a single log query.
	MaxBlockRange uint64 `koanf:"max_block_range"`
}

// Interval returns the configured poll interval or its default.
func (cfg *SourceConfig) Interval() time.Duration {
	if cfg.PollInterval == 0 {
		return defaultPollInterval
	}
	return cfg.PollInterval
}

// BlockRange returns the configured log query span or its default.
func (cfg *SourceConfig) BlockRange() uint64 {
	if cfg.MaxBlockRange == 0 {
		return defaultMaxBlockRange
	}
	return cfg.MaxBlockRange
}

// Validate validates the source configuration.
func (cfg *SourceConfig) Validate() error {
	if cfg.RPC == "" {
		return fmt.Errorf("no rpc endpoint provided")
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return fmt.Errorf("malformed contract_address '%s'", cfg.ContractAddress)
	}
	if cfg.PollInterval < 0 {
		return fmt.Errorf("invalid poll_interval %v", cfg.PollInterval)
	}
	return nil
}

// ServerConfig contains the status API server configuration.
type ServerConfig struct {
	// Endpoint is the service endpoint from which to serve the API.
	Endpoint string `koanf:"endpoint"`

	// RequestTimeout bounds the handling time of a single request.
	RequestTimeout *time.Duration `koanf:"request_timeout"`
}

// Validate validates the server configuration.
func (cfg *ServerConfig) Validate() error {
	if cfg.Endpoint == "" {
		return fmt.Errorf("malformed server endpoint '%s'", cfg.Endpoint)
	}
	if cfg.RequestTimeout != nil && *cfg.RequestTimeout <= 0 {
		return fmt.Errorf("invalid request_timeout %v", *cfg.RequestTimeout)
	}
	return nil
}

// StorageBackend is a backend holding the agent snapshot.
type StorageBackend uint

const (
	// BackendPogreb is the embedded key-value storage backend.
	BackendPogreb StorageBackend = iota
	// BackendPostgres is the PostgreSQL storage backend.
	BackendPostgres
)

// String returns the string representation of a StorageBackend.
func (sb *StorageBackend) String() string {
	switch *sb {
	case BackendPogreb:
		return "pogreb"
	case BackendPostgres:
		return "postgres"
	default:
		panic("config: unsupported storage backend")
	}
}

// Set sets the StorageBackend to the value specified by the provided string.
func (sb *StorageBackend) Set(s string) error {
	switch strings.ToLower(s) {
	case "pogreb":
		*sb = BackendPogreb
	case "postgres":
		*sb = BackendPostgres
	default:
		return fmt.Errorf("config: invalid storage backend: '%s'", s)
	}

	return nil
}

// Type returns the list of supported StorageBackends.
func (sb *StorageBackend) Type() string {
	return "[pogreb,postgres]"
}

// StorageConfig contains the storage layer configuration.
type StorageConfig struct {
	// Endpoint is a directory for pogreb or a connection string for postgres.
	Endpoint string `koanf:"endpoint"`

	// Backend is the storage backend to select.
	Backend string `koanf:"backend"`

	// Migrations is the directory containing schema migrations. Postgres only.
	Migrations string `koanf:"migrations"`
}

// Validate validates the storage configuration.
func (cfg *StorageConfig) Validate() error {
	if cfg.Endpoint == "" {
		return fmt.Errorf("malformed storage endpoint '%s'", cfg.Endpoint)
	}
	var sb StorageBackend
	if err := sb.Set(cfg.Backend); err != nil {
		return err
	}
	if sb == BackendPostgres && cfg.Migrations == "" {
		return fmt.Errorf("invalid path to migrations '%s'", cfg.Migrations)
	}
	return nil
}

// LogConfig contains the logging configuration.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
	File   string `koanf:"file"`

	// MaxSizeMB is the size at which the log file is rotated. Zero keeps the default.
	MaxSizeMB int `koanf:"max_size_mb"`
	// MaxBackups is the number of rotated log files kept around.
	MaxBackups int `koanf:"max_backups"`
}

// Validate validates the logging configuration.
func (cfg *LogConfig) Validate() error {
	if _, err := log.ParseFormat(cfg.Format); err != nil {
		return err
	}
	if _, err := log.ParseLevel(cfg.Level); err != nil {
		return err
	}
	if cfg.MaxSizeMB < 0 || cfg.MaxBackups < 0 {
		return fmt.Errorf("invalid log rotation settings")
	}
	return nil
}

// MetricsConfig contains the metrics configuration.
type MetricsConfig struct {
	PullEndpoint string `koanf:"pull_endpoint"`

	// PprofEndpoint, if set, serves the runtime profiles.
	PprofEndpoint string `koanf:"pprof_endpoint"`
}

// Validate validates the metrics configuration.
func (cfg *MetricsConfig) Validate() error {
	if cfg.PullEndpoint == "" {
		return fmt.Errorf("malformed Prometheus pull endpoint '%s'", cfg.PullEndpoint)
	}
	return nil
}

// InitConfig initializes configuration from file.
func InitConfig(f string) (*Config, error) {
	return initConfig(file.Provider(f))
}

func initConfig(p koanf.Provider) (*Config, error) {
	var config Config
	k := koanf.New(".")

	// Load configuration from the yaml config.
	if err := k.Load(p, yaml.Parser()); err != nil {
		return nil, err
	}

	// Load environment variables and merge into the loaded config.
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		// `__` is used as a hierarchy delimiter.
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	// Unmarshal into config.
	if err := k.Unmarshal("", &config); err != nil {
		return nil, err
	}

	// Validate config.
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}
