// Package provider implements AI completion provider interfaces.
//
// This package contains:
//   - Provider interface: core abstraction for AI completion endpoints
//   - ChatProvider: OpenAI-compatible chat-completions implementation
//   - Monitor: rate-limit and health tracking per provider
package provider

import (
	"context"
	"time"
)

// Message is one entry in an ordered completion conversation.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// Provider defines the core interface for any AI completion provider.
// The router depends only on this interface; concrete implementations
// exist per upstream API.
type Provider interface {
	// Name returns the provider identifier (e.g., "openai", "groq")
	Name() string

	// Models returns the provider's model list in preference order
	Models() []string

	// CurrentModel returns the model selected by rotation
	CurrentModel() string

	// RotateModel advances to the next model. It returns false when
	// the provider has no further model to rotate to.
	RotateModel() bool

	// ResetModelRotation returns the provider to its first model
	ResetModelRotation()

	// IsAvailable checks if the provider is healthy enough to use
	IsAvailable() bool

	// MarkAsLimited records that the provider is rate limiting
	MarkAsLimited(until time.Time)

	// Complete sends the messages to the current model and returns
	// the generated text
	Complete(ctx context.Context, messages []Message) (string, error)

	// Close cleans up resources
	Close() error
}

// HealthStatus represents the health state of a provider.
type HealthStatus struct {
	Available     bool
	Latency       time.Duration
	ErrorRate     float64
	LastSuccessAt time.Time
	LastFailureAt time.Time
}
