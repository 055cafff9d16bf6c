package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

const judgment = `{"category": "Work", "priority": "High", "meeting": "No", "reply": "Thanks."}`

func chatHandler(t *testing.T, content string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := ChatResponse{
			Choices: []struct {
				Message ChatMessage `json:"message"`
			}{
				{Message: ChatMessage{Role: "assistant", Content: content}},
			},
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Errorf("encode: %v", err)
		}
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		apiKey   string
		opts     []Option
		wantErr  bool
	}{
		{name: "groq with key", provider: "groq", apiKey: "gsk-test"},
		{name: "openai with key", provider: "openai", apiKey: "sk-test"},
		{name: "perplexity with key", provider: "perplexity", apiKey: "pplx-test"},
		{name: "anthropic with key", provider: "anthropic", apiKey: "sk-ant-test"},
		{name: "ollama no key needed", provider: "ollama", apiKey: ""},
		{name: "empty provider defaults to groq", provider: "", apiKey: "gsk-test"},
		{name: "groq without key fails", provider: "groq", apiKey: "", wantErr: true},
		{name: "unknown provider without base_url fails", provider: "custom", apiKey: "key", wantErr: true},
		{
			name:     "unknown provider with base_url and model works",
			provider: "custom",
			apiKey:   "key",
			opts: []Option{
				WithBaseURL("http://localhost:8080/v1/chat/completions"),
				WithModel("my-model"),
			},
		},
		{
			name:     "unknown api format fails",
			provider: "openai",
			apiKey:   "sk-test",
			opts:     []Option{WithAPIFormat("grpc")},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.provider, tt.apiKey, tt.opts...)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if client == nil {
				t.Error("expected client, got nil")
			}
		})
	}
}

func TestDefaults(t *testing.T) {
	client, err := New("", "gsk-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.Provider() != "groq" || client.Model() != "llama-3.1-8b-instant" {
		t.Errorf("unexpected defaults %s/%s", client.Provider(), client.Model())
	}
	if client.baseURL != "https://api.groq.com/openai/v1/chat/completions" {
		t.Errorf("unexpected base url %q", client.baseURL)
	}
}

func TestBaseURLPathAppended(t *testing.T) {
	client, err := New("openai", "sk-test", WithBaseURL("http://localhost:9999"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.baseURL != "http://localhost:9999/v1/chat/completions" {
		t.Errorf("unexpected base url %q", client.baseURL)
	}

	client, err = New("anthropic", "sk-ant", WithBaseURL("https://proxy.local"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.baseURL != "https://proxy.local/v1/messages" {
		t.Errorf("unexpected base url %q", client.baseURL)
	}
}

func TestComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("expected Bearer auth, got %q", r.Header.Get("Authorization"))
		}
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		if temp, ok := req["temperature"]; !ok || temp.(float64) != 0 {
			t.Errorf("expected temperature 0, got %v", req["temperature"])
		}
		msgs := req["messages"].([]any)
		if len(msgs) != 2 || msgs[0].(map[string]any)["role"] != "system" {
			t.Errorf("expected system and user messages, got %v", msgs)
		}
		chatHandler(t, judgment)(w, r)
	}))
	defer server.Close()

	client, _ := New("openai", "sk-test", WithBaseURL(server.URL), WithSystemPrompt("Return ONLY valid JSON."))
	got, err := client.Complete(context.Background(), "Analyze this email")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got != judgment {
		t.Errorf("expected raw content back, got %q", got)
	}
}

func TestCompleteAPIError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("internal error"))
	}))
	defer server.Close()

	client, _ := New("openai", "sk-test", WithBaseURL(server.URL), WithRetries(3, 0))
	_, err := client.Complete(context.Background(), "x")
	if err == nil {
		t.Fatal("expected error on 500 response")
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 500 {
		t.Errorf("expected APIError 500, got %v", err)
	}
}

func TestComplete4xxNoRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"message":"Invalid URL (POST /v1)","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	client, _ := New("openai", "sk-test", WithBaseURL(server.URL), WithRetries(3, 0))
	_, err := client.Complete(context.Background(), "x")
	if err == nil {
		t.Fatal("expected error on 404 response")
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call (no retry for 4xx), got %d", calls.Load())
	}
	if !strings.Contains(err.Error(), "Invalid URL") {
		t.Errorf("expected parsed error message, got %q", err.Error())
	}
}

func TestCompleteNonJSONResponse(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body>Not Found</body></html>"))
	}))
	defer server.Close()

	client, _ := New("openai", "sk-test", WithBaseURL(server.URL), WithRetries(3, 0))
	_, err := client.Complete(context.Background(), "x")
	if err == nil {
		t.Fatal("expected error on HTML response")
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call (no retry for non-JSON), got %d", calls.Load())
	}
	if !strings.Contains(err.Error(), "not JSON") {
		t.Errorf("expected 'not JSON' in error, got %q", err.Error())
	}
}

func TestCompleteRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// First attempt fails, retry succeeds
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"message":"slow down"}}`))
			return
		}
		chatHandler(t, judgment)(w, r)
	}))
	defer server.Close()

	client, _ := New("groq", "gsk-test", WithBaseURL(server.URL), WithRetries(3, time.Millisecond))
	got, err := client.Complete(context.Background(), "x")
	if err != nil {
		t.Fatalf("expected success after retry, got: %v", err)
	}
	if got != judgment {
		t.Errorf("unexpected content %q", got)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls (1 retry), got %d", calls.Load())
	}
}

func TestCompleteCancelledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client, _ := New("openai", "sk-test", WithBaseURL(server.URL), WithRetries(3, time.Hour))
	_, err := client.Complete(ctx, "x")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestCompleteNoAuthForOllama(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "" {
			t.Errorf("expected no auth header for ollama, got %q", auth)
		}
		chatHandler(t, judgment)(w, r)
	}))
	defer server.Close()

	client, err := New("ollama", "", WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := client.Complete(context.Background(), "x"); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
}

func TestCompleteAnthropic(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "sk-ant-test" {
			t.Errorf("expected x-api-key header, got %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") != "2023-06-01" {
			t.Errorf("expected anthropic-version header, got %q", r.Header.Get("anthropic-version"))
		}
		if r.Header.Get("Authorization") != "" {
			t.Errorf("expected no Authorization header for anthropic, got %q", r.Header.Get("Authorization"))
		}

		body, _ := io.ReadAll(r.Body)
		var reqBody AnthropicRequest
		if err := json.Unmarshal(body, &reqBody); err != nil {
			t.Fatalf("failed to parse request body: %v", err)
		}
		if reqBody.System == "" {
			t.Error("expected system field in Anthropic request")
		}
		if reqBody.MaxTokens == 0 {
			t.Error("expected max_tokens in Anthropic request")
		}

		resp := AnthropicResponse{
			Content: []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			}{
				{Type: "text", Text: judgment},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client, _ := New("anthropic", "sk-ant-test", WithBaseURL(server.URL), WithSystemPrompt("Return ONLY valid JSON."))
	got, err := client.Complete(context.Background(), "x")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got != judgment {
		t.Errorf("unexpected content %q", got)
	}
}

func TestNewUnknownProviderListsPresets(t *testing.T) {
	_, err := New("custom", "key")
	if err == nil {
		t.Fatal("expected error for unknown provider without base_url")
	}
	for _, name := range Providers() {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q does not mention preset %q", err, name)
		}
	}
}
