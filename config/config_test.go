package config

import (
	"testing"
	"time"

	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/stretchr/testify/require"
)

const exampleYAML = `
agent:
  scheme_id: BN254-BLS-BLOCKLOCK
  sync_batch_size: 25
  source:
    rpc: ws://localhost:8546
    contract_address: "0x5FbDB2315678afecb367f032d93F642f64180aa3"
    poll_interval: 3s
  storage:
    backend: pogreb
    endpoint: /tmp/dcipher-state
server:
  endpoint: localhost:8008
  request_timeout: 5s
log:
  format: json
  level: debug
metrics:
  pull_endpoint: localhost:8009
`

func TestAgentConfigYAML(t *testing.T) {
	cfg, err := initConfig(rawbytes.Provider([]byte(exampleYAML)))
	require.NoError(t, err)

	require.NotNil(t, cfg.Agent)
	require.Equal(t, "BN254-BLS-BLOCKLOCK", cfg.Agent.SchemeID)
	require.Equal(t, 25, cfg.Agent.BatchSize())
	require.Equal(t, defaultMaxParallelBatches, cfg.Agent.Parallelism())
	require.Equal(t, 3*time.Second, cfg.Agent.Source.Interval())
	require.Equal(t, uint64(defaultMaxBlockRange), cfg.Agent.Source.BlockRange())
	require.Equal(t, &StorageConfig{Backend: "pogreb", Endpoint: "/tmp/dcipher-state"}, cfg.Agent.Storage)

	timeout := 5 * time.Second
	require.Equal(t, &ServerConfig{Endpoint: "localhost:8008", RequestTimeout: &timeout}, cfg.Server)
	require.Equal(t, "localhost:8009", cfg.Metrics.PullEndpoint)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("DCIPHER_AGENT__SCHEME_ID", "OTHER-SCHEME")

	cfg, err := initConfig(rawbytes.Provider([]byte(exampleYAML)))
	require.NoError(t, err)
	require.Equal(t, "OTHER-SCHEME", cfg.Agent.SchemeID)
}

func TestValidate(t *testing.T) {
	for name, tc := range map[string]string{
		"missing scheme": `
agent:
  source: {rpc: ws://localhost:8546, contract_address: "0x5FbDB2315678afecb367f032d93F642f64180aa3"}
  storage: {backend: pogreb, endpoint: /tmp/x}
`,
		"bad address": `
agent:
  scheme_id: X
  source: {rpc: ws://localhost:8546, contract_address: "not-an-address"}
  storage: {backend: pogreb, endpoint: /tmp/x}
`,
		"postgres without migrations": `
agent:
  scheme_id: X
  source: {rpc: ws://localhost:8546, contract_address: "0x5FbDB2315678afecb367f032d93F642f64180aa3"}
  storage: {backend: postgres, endpoint: "postgresql://u:p@localhost:5432/db"}
`,
		"unknown backend": `
agent:
  scheme_id: X
  source: {rpc: ws://localhost:8546, contract_address: "0x5FbDB2315678afecb367f032d93F642f64180aa3"}
  storage: {backend: badger, endpoint: /tmp/x}
`,
		"bad log level": `
log: {format: json, level: loud}
`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := initConfig(rawbytes.Provider([]byte(tc)))
			require.Error(t, err)
		})
	}
}

func TestStorageBackend(t *testing.T) {
	var sb StorageBackend
	ts := sb.Type()
	for _, s := range []string{"pogreb", "postgres"} {
		require.NoError(t, sb.Set(s))
		require.Equal(t, s, sb.String())
		require.Contains(t, ts, s)
	}
	require.Error(t, sb.Set("cockroach"))
}

func TestLocalDevConfig(t *testing.T) {
	cfg, err := InitConfig("local-dev.yml")
	require.NoError(t, err)
	require.Equal(t, "BN254-BLS-BLOCKLOCK", cfg.Agent.SchemeID)
	require.Equal(t, "pogreb", cfg.Agent.Storage.Backend)
	require.Empty(t, cfg.Metrics.PprofEndpoint)
}
