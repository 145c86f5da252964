// Package blocklock implements the blocklock sub-command.
package blocklock

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/dcipher-network/dcipher/agent"
	"github.com/dcipher-network/dcipher/agent/blocklock"
	cmdCommon "github.com/dcipher-network/dcipher/cmd/common"
	"github.com/dcipher-network/dcipher/config"
	"github.com/dcipher-network/dcipher/log"
	"github.com/dcipher-network/dcipher/storage/eth"
)

const (
	moduleName = "blocklock_service"

	// Released batches buffered before the agent waits for the consumer.
	releasedBuffer = 64
)

var (
	// Path to the configuration file.
	configFile string

	blocklockCmd = &cobra.Command{
		Use:   "blocklock",
		Short: "Run the blocklock agent",
		Run:   runAgent,
	}
)

func runAgent(cmd *cobra.Command, args []string) {
	cfg, err := config.InitConfig(configFile)
	if err != nil {
		log.NewDefaultLogger("init").Error("init failed",
			"err", err,
		)
		os.Exit(1)
	}

	if err = cmdCommon.Init(cfg); err != nil {
		log.NewDefaultLogger("init").Error("init failed",
			"err", err,
		)
		os.Exit(1)
	}
	logger := cmdCommon.RootLogger()

	if cfg.Agent == nil {
		logger.Error("agent config not provided")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	service, err := Init(ctx, cfg.Agent)
	if err != nil {
		os.Exit(1)
	}
	defer service.Close()

	service.Start(ctx)
}

// Service runs a blocklock agent against a chain and hands released requests
// to the decryption pipeline.
type Service struct {
	runner    *blocklock.Runner
	fulfiller *blocklock.ChannelFulfiller
	chain     *eth.Client
	release   func()
	logger    *log.Logger
}

var _ agent.Service = (*Service)(nil)

// Init connects to the chain and the snapshot store.
func Init(ctx context.Context, cfg *config.AgentConfig) (*Service, error) {
	logger := cmdCommon.RootLogger().WithModule(moduleName)

	chain, err := eth.NewClient(ctx, cfg.Source.RPC, ethCommon.HexToAddress(cfg.Source.ContractAddress), logger)
	if err != nil {
		logger.Error("failed to connect to chain", "err", err)
		return nil, err
	}
	store, release, err := cmdCommon.NewStateStore(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Error("failed to open state store", "err", err)
		chain.Close()
		return nil, err
	}

	fulfiller := blocklock.NewChannelFulfiller(releasedBuffer)
	runner := blocklock.NewRunner(
		blocklock.Config{
			SchemeID:           cfg.SchemeID,
			SyncBatchSize:      cfg.BatchSize(),
			MaxParallelBatches: cfg.Parallelism(),
		},
		blocklock.RunnerConfig{
			PollInterval:  cfg.Source.Interval(),
			MaxBlockRange: cfg.Source.BlockRange(),
		},
		chain, chain, store, fulfiller, logger,
	)
	return &Service{
		runner:    runner,
		fulfiller: fulfiller,
		chain:     chain,
		release:   release,
		logger:    logger.With("scheme_id", cfg.SchemeID),
	}, nil
}

// Name returns the name of the service.
func (s *Service) Name() string {
	return s.runner.Name()
}

// Runner returns the agent runner, e.g. to report its status.
func (s *Service) Runner() *blocklock.Runner {
	return s.runner
}

// Start runs the agent until ctx is done. Released requests keep being
// drained until the agent has stopped.
func (s *Service) Start(ctx context.Context) {
	s.logger.Info("starting blocklock agent")
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.runner.Start(ctx)
	}()

	for {
		select {
		case reqs := <-s.fulfiller.Released():
			for _, req := range reqs {
				s.logger.Info("request ready for decryption",
					"request_id", req.ID.Dec(),
					"ciphertext_len", len(req.Ciphertext),
				)
			}
		case <-done:
			s.logger.Info("blocklock agent stopped")
			return
		}
	}
}

// Close releases the chain connection and the snapshot store.
func (s *Service) Close() {
	s.chain.Close()
	s.release()
}

// Register registers the blocklock sub-command.
func Register(parentCmd *cobra.Command) {
	blocklockCmd.Flags().StringVar(&configFile, "config", "./config/local-dev.yml", "path to the config.yml file")
	parentCmd.AddCommand(blocklockCmd)
}
