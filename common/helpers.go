package common

import (
	"io"

	"github.com/dcipher-network/dcipher/log"
)

// CloseOrLog closes c and logs a failure instead of returning it.
func CloseOrLog(c io.Closer, logger *log.Logger) {
	if err := c.Close(); err != nil {
		logger.Warn("close failed", "err", err)
	}
}
