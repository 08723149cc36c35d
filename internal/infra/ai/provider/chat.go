package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// ChatProvider implements Provider for OpenAI-compatible
// chat-completions APIs (OpenAI, OpenRouter, Groq, local gateways).
type ChatProvider struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client

	mu       sync.RWMutex
	models   []string
	modelIdx int

	Monitor *Monitor
}

// NewChatProvider creates a provider for an OpenAI-compatible endpoint.
// Models are tried in the given order; the first entry is preferred.
func NewChatProvider(name, baseURL, apiKey string, models []string, timeout time.Duration) *ChatProvider {
	return &ChatProvider{
		name:    name,
		baseURL: baseURL,
		apiKey:  apiKey,
		models:  models,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		Monitor: NewMonitor(),
	}
}

// Name returns the provider's name.
func (p *ChatProvider) Name() string {
	return p.name
}

// Models returns the provider's model list in preference order.
func (p *ChatProvider) Models() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	models := make([]string, len(p.models))
	copy(models, p.models)
	return models
}

// CurrentModel returns the model selected by rotation.
func (p *ChatProvider) CurrentModel() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.models[p.modelIdx]
}

// RotateModel advances to the next model within this provider. It
// returns false when the last model is already selected.
func (p *ChatProvider) RotateModel() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.modelIdx+1 >= len(p.models) {
		return false
	}
	p.modelIdx++
	return true
}

// ResetModelRotation returns the provider to its first model.
func (p *ChatProvider) ResetModelRotation() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.modelIdx = 0
}

// IsAvailable checks if the provider can be used at all. A provider
// without an API key is locally unavailable and skipped by the router.
func (p *ChatProvider) IsAvailable() bool {
	if p.apiKey == "" {
		return false
	}
	return p.Monitor.CheckStatus() != StatusLimited
}

// MarkAsLimited records that the provider is rate limiting until the
// given time.
func (p *ChatProvider) MarkAsLimited(until time.Time) {
	p.Monitor.RecordThrottle(until)
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends the messages to the current model and returns the
// generated text.
func (p *ChatProvider) Complete(ctx context.Context, messages []Message) (string, error) {
	start := time.Now()
	model := p.CurrentModel()

	body, err := json.Marshal(chatRequest{Model: model, Messages: messages})
	if err != nil {
		p.Monitor.RecordFailure()
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		p.Monitor.RecordFailure()
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.Monitor.RecordFailure()
		return "", fmt.Errorf("completion call: %w", err)
	}
	defer resp.Body.Close()

	latency := time.Since(start)

	if resp.StatusCode == http.StatusTooManyRequests {
		p.Monitor.RecordFailure()
		retryAfter := resp.Header.Get("Retry-After")
		return "", fmt.Errorf("rate limited (429), retry after: %s", retryAfter)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		p.Monitor.RecordFailure()
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		p.Monitor.RecordFailure()
		if p.Monitor.DetectThrottlePattern(string(respBody)) {
			return "", fmt.Errorf("rate limit in response (http %d): %s", resp.StatusCode, string(respBody))
		}
		return "", fmt.Errorf("http %d: %s", resp.StatusCode, string(respBody))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		p.Monitor.RecordFailure()
		return "", fmt.Errorf("parse response: %w", err)
	}

	if chatResp.Error != nil {
		p.Monitor.RecordFailure()
		if p.Monitor.DetectThrottlePattern(chatResp.Error.Message) {
			return "", fmt.Errorf("rate limit in api error: %s", chatResp.Error.Message)
		}
		return "", fmt.Errorf("api error: %s", chatResp.Error.Message)
	}

	if len(chatResp.Choices) == 0 {
		p.Monitor.RecordFailure()
		return "", fmt.Errorf("empty completion from %s/%s", p.name, model)
	}

	p.Monitor.RecordSuccess(latency)
	return chatResp.Choices[0].Message.Content, nil
}

// Close cleans up resources.
func (p *ChatProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}
