package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func chatOK(content string) string {
	return `{"choices":[{"message":{"content":"` + content + `"}}]}`
}

func TestChatProvider_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer key" {
			t.Errorf("unexpected auth header: %s", auth)
		}
		w.Write([]byte(chatOK("labeled")))
	}))
	defer srv.Close()

	p := NewChatProvider("test", srv.URL, "key", []string{"model-a"}, 5*time.Second)
	defer p.Close()

	text, err := p.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if text != "labeled" {
		t.Errorf("unexpected completion: %q", text)
	}
	if p.Monitor.CheckStatus() != StatusHealthy {
		t.Errorf("expected healthy status after success")
	}
}

func TestChatProvider_SendsCurrentModel(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := readJSON(r, &req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotModel = req.Model
		w.Write([]byte(chatOK("ok")))
	}))
	defer srv.Close()

	p := NewChatProvider("test", srv.URL, "key", []string{"model-a", "model-b"}, 5*time.Second)
	defer p.Close()

	if _, err := p.Complete(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if gotModel != "model-a" {
		t.Errorf("expected model-a, got %q", gotModel)
	}

	if !p.RotateModel() {
		t.Fatal("expected rotation to model-b")
	}
	if _, err := p.Complete(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if gotModel != "model-b" {
		t.Errorf("expected model-b after rotation, got %q", gotModel)
	}
}

func TestChatProvider_ModelRotation(t *testing.T) {
	p := NewChatProvider("test", "http://x", "key", []string{"a", "b"}, time.Second)

	if p.CurrentModel() != "a" {
		t.Fatalf("expected a, got %s", p.CurrentModel())
	}
	if !p.RotateModel() {
		t.Fatal("first rotation should succeed")
	}
	if p.RotateModel() {
		t.Fatal("rotation past the last model should fail")
	}
	p.ResetModelRotation()
	if p.CurrentModel() != "a" {
		t.Errorf("expected reset to a, got %s", p.CurrentModel())
	}
}

func TestChatProvider_RateLimited429(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewChatProvider("test", srv.URL, "key", []string{"m"}, 5*time.Second)
	defer p.Close()

	_, err := p.Complete(context.Background(), nil)
	if err == nil {
		t.Fatal("expected 429 error")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("expected 429 in error, got %v", err)
	}
}

func TestChatProvider_APIErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"message":"quota exceeded for this model","type":"rate_limit_error"}}`))
	}))
	defer srv.Close()

	p := NewChatProvider("test", srv.URL, "key", []string{"m"}, 5*time.Second)
	defer p.Close()

	_, err := p.Complete(context.Background(), nil)
	if err == nil {
		t.Fatal("expected api error")
	}
	if !strings.Contains(err.Error(), "rate limit") {
		t.Errorf("expected throttle pattern surfaced, got %v", err)
	}
}

func TestChatProvider_Availability(t *testing.T) {
	keyless := NewChatProvider("test", "http://x", "", []string{"m"}, time.Second)
	if keyless.IsAvailable() {
		t.Error("provider without api key must be unavailable")
	}

	p := NewChatProvider("test", "http://x", "key", []string{"m"}, time.Second)
	if !p.IsAvailable() {
		t.Error("expected available provider")
	}
	p.MarkAsLimited(time.Now().Add(time.Minute))
	if p.IsAvailable() {
		t.Error("limited provider must be unavailable")
	}
	p.MarkAsLimited(time.Now().Add(-time.Minute))
	// An elapsed window does not shorten an active one.
	if p.IsAvailable() {
		t.Error("active window must win over an elapsed one")
	}
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
