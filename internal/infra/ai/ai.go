// Package ai provides resilient access to upstream AI completion
// services.
//
// This package offers:
//   - Multiple provider support (OpenAI-compatible chat APIs)
//   - Automatic failover: next model within a provider first, then the
//     next provider in priority order
//   - Rate-limit detection with per provider+model cooldowns
//   - Bounded attempt budgets with a single exhaustion reset cycle
//
// # Quick Start
//
//	openai := ai.NewChatProvider("openai", baseURL, key, []string{"gpt-4o-mini", "gpt-4o"}, 30*time.Second)
//	groq := ai.NewChatProvider("groq", groqURL, groqKey, []string{"llama-3.3-70b"}, 30*time.Second)
//	router := ai.NewRouter([]ai.Provider{openai, groq}, ai.DefaultRouterConfig())
//
//	text, err := router.Complete(ctx, []ai.Message{{Role: "user", Content: prompt}})
//
// Most types are re-exported at the root level for convenience.
package ai

import (
	"time"

	"leadscout/internal/infra/ai/provider"
	"leadscout/internal/infra/ai/routing"
)

// Provider is the core interface for AI completion endpoints.
type Provider = provider.Provider

// Message is one entry in a completion conversation.
type Message = provider.Message

// ChatProvider implements Provider for OpenAI-compatible APIs.
type ChatProvider = provider.ChatProvider

// Monitor tracks provider health and rate limiting.
type Monitor = provider.Monitor

// Router routes completion requests across providers with failover.
type Router = routing.Router

// RouterConfig defines router failover behavior.
type RouterConfig = routing.Config

// SlotSnapshot is the reported state of one provider+model pair.
type SlotSnapshot = routing.SlotSnapshot

// ErrExhausted is returned when every provider is exhausted.
var ErrExhausted = routing.ErrExhausted

// NewChatProvider creates a provider for an OpenAI-compatible endpoint.
func NewChatProvider(name, baseURL, apiKey string, models []string, timeout time.Duration) *ChatProvider {
	return provider.NewChatProvider(name, baseURL, apiKey, models, timeout)
}

// NewRouter creates a router over providers in priority order.
func NewRouter(providers []Provider, cfg RouterConfig) *Router {
	return routing.NewRouter(providers, cfg)
}

// DefaultRouterConfig returns the tuned failover thresholds.
func DefaultRouterConfig() RouterConfig {
	return routing.DefaultConfig()
}

// IsRateLimit reports whether err looks like an upstream rate limit.
func IsRateLimit(err error) bool {
	return routing.IsRateLimit(err)
}
