// Package common contains helpers shared by dcipher services.
package common

// ContextKey is used to set values in a request context.
type ContextKey string

const (
	// RequestIDContextKey is used to set a request id for tracing
	// in a request context.
	RequestIDContextKey ContextKey = "request_id"
)
