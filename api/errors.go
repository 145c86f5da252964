package api

import (
	"errors"
	"net/http"
)

var (
	// ErrNotFound is returned for an unknown scheme.
	ErrNotFound = errors.New("no agent for this scheme")
	// ErrNotReady is returned while an agent is initializing.
	ErrNotReady = errors.New("agent is initializing")
)

type errorResponse struct {
	Msg string `json:"msg"`
}

// HttpCodeForError returns the HTTP status code reported for err.
func HttpCodeForError(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
