// Package cmd implements commands for the dcipher executable.
package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/pprof"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dcipher-network/dcipher/agent"
	apiPkg "github.com/dcipher-network/dcipher/api"
	"github.com/dcipher-network/dcipher/cmd/api"
	"github.com/dcipher-network/dcipher/cmd/blocklock"
	"github.com/dcipher-network/dcipher/cmd/common"
	"github.com/dcipher-network/dcipher/config"
	"github.com/dcipher-network/dcipher/log"
)

var (
	// Path to the configuration file.
	configFile string

	rootCmd = &cobra.Command{
		Use:   "dcipher",
		Short: "dcipher threshold network agent",
		Run:   rootMain,
	}
)

func rootMain(cmd *cobra.Command, args []string) {
	cfg, err := config.InitConfig(configFile)
	if err != nil {
		log.NewDefaultLogger("init").Error("init failed",
			"err", err,
		)
		os.Exit(1)
	}

	if err = common.Init(cfg); err != nil {
		log.NewDefaultLogger("init").Error("init failed",
			"err", err,
		)
		os.Exit(1)
	}
	logger := common.RootLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services := common.MetricsServices(cfg.Metrics)
	providers := map[string]apiPkg.StatusProvider{}
	if cfg.Agent != nil {
		blocklockService, err := blocklock.Init(ctx, cfg.Agent)
		if err != nil {
			logger.Error("failed to initialize blocklock service", "err", err)
			os.Exit(1)
		}
		defer blocklockService.Close()
		services = append(services, blocklockService)
		providers[cfg.Agent.SchemeID] = blocklockService.Runner()
	}
	if cfg.Server != nil {
		services = append(services, api.NewService(cfg.Server, providers))
	}

	var wg sync.WaitGroup
	for _, s := range services {
		wg.Add(1)
		go func(s agent.Service) {
			defer wg.Done()
			s.Start(ctx)
			logger.Info("service stopped", "service", s.Name())
		}(s)
	}

	logger.Info("started all services", "count", len(services))
	wg.Wait()
}

// Execute spawns the main entry point after handing the config file.
func Execute() {
	// Debug hook. If we receive SIGUSR1, dump all goroutines.
	go dumpGoroutinesOnSignal(syscall.SIGUSR1)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringVar(&configFile, "config", "./config/local-dev.yml", "path to the config.yml file")

	for _, f := range []func(*cobra.Command){
		blocklock.Register,
	} {
		f(rootCmd)
	}
}

// Starts listening for the specified signals, and logs a dump of all
// goroutines when the process receives one of those signals.
func dumpGoroutinesOnSignal(signals ...os.Signal) {
	logger := log.NewDefaultLogger("toplevel")
	c := make(chan os.Signal, 1)
	signal.Notify(c, signals...)
	logger.Info("listening for signals", "signals", signals)
	for range c {
		b := bytes.NewBufferString("")
		_ = pprof.Lookup("goroutine").WriteTo(b, 1)
		logger.Warn("USER-REQUESTED DUMP: all goroutines", "goroutines_all", b.String())

		b = bytes.NewBufferString("")
		_ = pprof.Lookup("block").WriteTo(b, 1)
		logger.Warn("USER-REQUESTED DUMP: stack traces that led to blocking on synchronization primitives", "goroutines_block", b.String())

		b = bytes.NewBufferString("")
		_ = pprof.Lookup("mutex").WriteTo(b, 1)
		logger.Warn("USER-REQUESTED DUMP: stack traces of holders of contended mutexes", "goroutines_mutex", b.String())
	}
}
