package common

import (
	"context"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/dcipher-network/dcipher/common"
	"github.com/dcipher-network/dcipher/log"
)

// pprofService serves the runtime profiles.
type pprofService struct {
	endpoint string
	logger   *log.Logger
}

func newPprofService(endpoint string, logger *log.Logger) *pprofService {
	return &pprofService{
		endpoint: endpoint,
		logger:   logger.WithModule("pprof"),
	}
}

func (s *pprofService) Name() string {
	return "pprof"
}

func (s *pprofService) Start(ctx context.Context) {
	// A dedicated mux keeps the profiles off http.DefaultServeMux.
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	server := &http.Server{
		Addr:        s.endpoint,
		Handler:     mux,
		ReadTimeout: 5 * time.Second,
		// Profiles stream for up to their requested duration.
		WriteTimeout: 60 * time.Second,
	}
	if err := common.RunServer(ctx, server, s.logger); err != nil {
		s.logger.Error("pprof server stopped", "err", err)
	}
}
