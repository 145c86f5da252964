// Package agent contains the long-running workers of dcipher.
package agent

import "context"

// Service is a worker that runs until its context is canceled.
type Service interface {
	// Start runs the service. It returns once ctx is done or the service
	// hits an unrecoverable error.
	Start(ctx context.Context)

	// Name returns the name of the service.
	Name() string
}
