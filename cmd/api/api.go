// Package api implements the status API service.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/dcipher-network/dcipher/agent"
	"github.com/dcipher-network/dcipher/api"
	"github.com/dcipher-network/dcipher/common"
	cmdCommon "github.com/dcipher-network/dcipher/cmd/common"
	"github.com/dcipher-network/dcipher/config"
	"github.com/dcipher-network/dcipher/log"
)

const (
	moduleName = "api"

	defaultRequestTimeout = 10 * time.Second
)

// Service serves the status API.
type Service struct {
	address        string
	requestTimeout time.Duration
	handler        *api.Handler
	logger         *log.Logger
}

var _ agent.Service = (*Service)(nil)

// NewService creates the API service reporting on the given agents.
func NewService(cfg *config.ServerConfig, providers map[string]api.StatusProvider) *Service {
	logger := cmdCommon.RootLogger().WithModule(moduleName)
	timeout := defaultRequestTimeout
	if cfg.RequestTimeout != nil {
		timeout = *cfg.RequestTimeout
	}
	return &Service{
		address:        cfg.Endpoint,
		requestTimeout: timeout,
		handler:        api.NewHandler(providers, logger),
		logger:         logger,
	}
}

// Name returns the name of the service.
func (s *Service) Name() string {
	return moduleName
}

// Start serves the API until ctx is done.
func (s *Service) Start(ctx context.Context) {
	s.logger.Info("starting api service at " + s.address)

	server := &http.Server{
		Addr:           s.address,
		Handler:        http.TimeoutHandler(s.handler.Router(), s.requestTimeout, "request timed out"),
		ReadTimeout:    s.requestTimeout,
		WriteTimeout:   s.requestTimeout + time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	if err := common.RunServer(ctx, server, s.logger); err != nil {
		s.logger.Error("api server stopped", "err", err)
	}
}
