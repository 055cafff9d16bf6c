// Package llm talks to chat completion APIs. A Client turns one prompt into
// one text response and knows nothing about email.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultTimeout    = 60 * time.Second
	defaultMaxRetries = 3
	defaultRetryDelay = time.Second
	defaultMaxTokens  = 1024
)

// Wire formats.
const (
	FormatOpenAI    = "openai"
	FormatAnthropic = "anthropic"
)

// Provider presets for known LLM providers
var providerDefaults = map[string]struct {
	BaseURL   string
	Model     string
	APIFormat string
}{
	"groq":       {BaseURL: "https://api.groq.com/openai/v1/chat/completions", Model: "llama-3.1-8b-instant", APIFormat: FormatOpenAI},
	"openai":     {BaseURL: "https://api.openai.com/v1/chat/completions", Model: "gpt-4o-mini", APIFormat: FormatOpenAI},
	"anthropic":  {BaseURL: "https://api.anthropic.com/v1/messages", Model: "claude-sonnet-4-5-20250929", APIFormat: FormatAnthropic},
	"perplexity": {BaseURL: "https://api.perplexity.ai/chat/completions", Model: "sonar", APIFormat: FormatOpenAI},
	"ollama":     {BaseURL: "http://localhost:11434/v1/chat/completions", Model: "llama3", APIFormat: FormatOpenAI},
}

// DefaultProvider is used when no provider is configured.
const DefaultProvider = "groq"

// Providers returns the names of the built-in presets.
func Providers() []string {
	return []string{"groq", "openai", "anthropic", "perplexity", "ollama"}
}

// ChatMessage represents a message in the chat API
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest represents the OpenAI-style request body
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

// ChatResponse represents the OpenAI-style response
type ChatResponse struct {
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// AnthropicRequest represents the Anthropic /v1/messages request body
type AnthropicRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	System      string        `json:"system,omitempty"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

// AnthropicResponse represents the Anthropic /v1/messages response
type AnthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client sends single prompts to an OpenAI-compatible or Anthropic API.
type Client struct {
	provider     string
	apiFormat    string
	apiKey       string
	model        string
	baseURL      string
	systemPrompt string
	maxRetries   int
	retryDelay   time.Duration
	httpClient   *http.Client
	logger       *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithModel sets a custom model
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithBaseURL sets a custom base URL
func WithBaseURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.baseURL = url
		}
	}
}

// WithAPIFormat sets the wire format ("openai" or "anthropic")
func WithAPIFormat(format string) Option {
	return func(c *Client) {
		if format != "" {
			c.apiFormat = format
		}
	}
}

// WithSystemPrompt sets the system message sent with every prompt.
func WithSystemPrompt(prompt string) Option {
	return func(c *Client) {
		c.systemPrompt = prompt
	}
}

// WithRetries sets the attempt count and the base delay between attempts.
func WithRetries(attempts int, delay time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.maxRetries = attempts
		}
		if delay >= 0 {
			c.retryDelay = delay
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client. provider is one of the presets or any name when
// base URL and model are given explicitly. apiKey can be empty for ollama.
func New(provider, apiKey string, opts ...Option) (*Client, error) {
	if provider == "" {
		provider = DefaultProvider
	}

	defaults, known := providerDefaults[provider]
	if !known {
		// Unknown provider: require explicit base_url via options
		defaults.BaseURL = ""
		defaults.Model = ""
	}

	client := &Client{
		provider:   provider,
		apiFormat:  defaults.APIFormat,
		apiKey:     apiKey,
		model:      defaults.Model,
		baseURL:    defaults.BaseURL,
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     zap.NewNop(),
	}

	for _, opt := range opts {
		opt(client)
	}

	if client.apiFormat == "" {
		client.apiFormat = FormatOpenAI
	}
	if client.apiFormat != FormatOpenAI && client.apiFormat != FormatAnthropic {
		return nil, fmt.Errorf("unknown LLM api_format %q", client.apiFormat)
	}

	// Auto-append standard path if base URL has no path component
	if client.baseURL != "" && !strings.Contains(strings.TrimPrefix(strings.TrimPrefix(client.baseURL, "https://"), "http://"), "/") {
		switch client.apiFormat {
		case FormatAnthropic:
			client.baseURL = strings.TrimRight(client.baseURL, "/") + "/v1/messages"
		default:
			client.baseURL = strings.TrimRight(client.baseURL, "/") + "/v1/chat/completions"
		}
	}

	if client.baseURL == "" {
		return nil, fmt.Errorf("LLM base_url is required for provider %q (presets: %s)", provider, strings.Join(Providers(), ", "))
	}
	if client.model == "" {
		return nil, fmt.Errorf("LLM model is required for provider %q", provider)
	}
	// API key is required for non-local providers
	if client.apiKey == "" && provider != "ollama" {
		return nil, fmt.Errorf("LLM api_key is required for provider %q", provider)
	}

	return client, nil
}

// Provider returns the configured provider name.
func (c *Client) Provider() string { return c.provider }

// Model returns the configured model.
func (c *Client) Model() string { return c.model }

// Complete sends prompt with temperature 0 and returns the raw text of the
// first answer. Server errors are retried; 4xx and non-JSON bodies are not.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := c.requestBody(prompt)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(attempt)):
			}
			c.logger.Debug("retrying completion", zap.Int("attempt", attempt+1), zap.Error(lastErr))
		}

		content, err := c.doRequest(ctx, body)
		if err != nil {
			// Don't retry client errors (4xx)
			var noRetry *errNoRetry
			if errors.As(err, &noRetry) {
				return "", noRetry.err
			}
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = err
			continue
		}
		return content, nil
	}

	return "", fmt.Errorf("completion failed after %d attempts: %w", c.maxRetries, lastErr)
}

func (c *Client) requestBody(prompt string) ([]byte, error) {
	if c.apiFormat == FormatAnthropic {
		return json.Marshal(AnthropicRequest{
			Model:     c.model,
			MaxTokens: defaultMaxTokens,
			System:    c.systemPrompt,
			Messages:  []ChatMessage{{Role: "user", Content: prompt}},
		})
	}

	var messages []ChatMessage
	if c.systemPrompt != "" {
		messages = append(messages, ChatMessage{Role: "system", Content: c.systemPrompt})
	}
	messages = append(messages, ChatMessage{Role: "user", Content: prompt})
	return json.Marshal(ChatRequest{Model: c.model, Messages: messages})
}

// errNoRetry wraps errors that should not be retried (e.g., 4xx client errors).
type errNoRetry struct {
	err error
}

func (e *errNoRetry) Error() string { return e.err.Error() }
func (e *errNoRetry) Unwrap() error { return e.err }

func (c *Client) doRequest(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", &errNoRetry{err: err}
	}

	if c.apiFormat == FormatAnthropic {
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("anthropic-version", "2023-06-01")
	} else if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: apiErrorMessage(respBody)}
		// 429 is worth another attempt; other 4xx are not.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return "", &errNoRetry{err: apiErr}
		}
		return "", apiErr
	}

	return c.extractContent(respBody)
}

// extractContent parses the response body and returns the text content,
// handling both OpenAI and Anthropic response formats.
func (c *Client) extractContent(respBody []byte) (string, error) {
	if c.apiFormat == FormatAnthropic {
		var anthropicResp AnthropicResponse
		if err := json.Unmarshal(respBody, &anthropicResp); err != nil {
			return "", &errNoRetry{err: fmt.Errorf("unexpected response (not JSON): %s", preview(respBody))}
		}
		if anthropicResp.Error != nil {
			return "", fmt.Errorf("API error: %s", anthropicResp.Error.Message)
		}
		for _, block := range anthropicResp.Content {
			if block.Type == "text" {
				return block.Text, nil
			}
		}
		return "", &errNoRetry{err: errors.New("no text content in Anthropic response")}
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", &errNoRetry{err: fmt.Errorf("unexpected response (not JSON): %s", preview(respBody))}
	}
	if chatResp.Error != nil {
		return "", fmt.Errorf("API error: %s", chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return "", &errNoRetry{err: errors.New("no choices in response")}
	}
	return chatResp.Choices[0].Message.Content, nil
}

func preview(body []byte) string {
	s := string(body)
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

// APIError is a non-200 answer from the completion endpoint.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// apiErrorMessage extracts error.message from a JSON body, or returns the raw body.
func apiErrorMessage(body []byte) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	return string(body)
}
