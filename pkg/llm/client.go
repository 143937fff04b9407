// Package llm provides the HTTP client the decision layer reasons through.
// Two wire shapes are supported: Ollama's generate API and OpenAI-style
// chat completions. Every transport or server failure surfaces as
// services.ErrLLMUnavailable so callers degrade instead of failing events.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gladys-ai/gladys/pkg/config"
	"github.com/gladys-ai/gladys/pkg/services"
)

// FormatJSON asks the backend to constrain output to a JSON object.
const FormatJSON = "json"

// Request is one generation call. System primes the model, Prompt is the
// user turn, Format optionally constrains the output shape.
type Request struct {
	System string
	Prompt string
	Format string
}

// Client generates text from a prompt. Implementations must return errors
// wrapping services.ErrLLMUnavailable when the backend cannot answer.
type Client interface {
	// Generate runs one completion and returns the raw response text.
	Generate(ctx context.Context, req Request) (string, error)

	// Available probes the backend without generating.
	Available(ctx context.Context) bool

	// Model reports the configured model name.
	Model() string
}

// NewFromConfig builds the client selected by the decision configuration.
func NewFromConfig(cfg *config.DecisionConfig) (Client, error) {
	switch cfg.Provider {
	case config.LLMProviderTypeOllama:
		return NewOllamaClient(cfg.BaseURL, cfg.Model, cfg.RequestTimeout), nil
	case config.LLMProviderTypeOpenAI:
		apiKey := ""
		if cfg.APIKeyEnv != "" {
			apiKey = os.Getenv(cfg.APIKeyEnv)
		}
		return NewOpenAIClient(cfg.BaseURL, cfg.Model, apiKey, cfg.RequestTimeout), nil
	case config.LLMProviderTypeNone:
		return Disabled{}, nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}

// Disabled is the "none" provider: reasoning is off and every call reports
// the backend unavailable.
type Disabled struct{}

func (Disabled) Generate(context.Context, Request) (string, error) {
	return "", services.ErrLLMUnavailable
}
func (Disabled) Available(context.Context) bool { return false }
func (Disabled) Model() string                  { return "" }

// OllamaClient talks to Ollama's generate endpoint.
type OllamaClient struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaClient creates a client for an Ollama-compatible server.
func NewOllamaClient(baseURL, model string, timeout time.Duration) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
	Format string `json:"format,omitempty"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

// Generate runs one non-streaming completion.
func (c *OllamaClient) Generate(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(ollamaGenerateRequest{
		Model:  c.model,
		Prompt: req.Prompt,
		System: req.System,
		Format: req.Format,
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("ollama request failed: %w: %w", services.ErrLLMUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("ollama returned status %d: %s: %w", resp.StatusCode, string(msg), services.ErrLLMUnavailable)
	}

	var out ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode ollama response: %w: %w", services.ErrLLMUnavailable, err)
	}
	return out.Response, nil
}

// Available checks the server's tags endpoint.
func (c *OllamaClient) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Model reports the configured model name.
func (c *OllamaClient) Model() string { return c.model }

// OpenAIClient talks to an OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	baseURL string
	model   string
	apiKey  string
	client  *http.Client
}

// NewOpenAIClient creates a client for an OpenAI-compatible server. The
// API key may be empty for local servers that skip authentication.
func NewOpenAIClient(baseURL, model, apiKey string, timeout time.Duration) *OpenAIClient {
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate runs one chat completion.
func (c *OpenAIClient) Generate(ctx context.Context, req Request) (string, error) {
	msgs := make([]chatMessage, 0, 2)
	if req.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: req.System})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: req.Prompt})

	payload := chatCompletionRequest{Model: c.model, Messages: msgs}
	if req.Format == FormatJSON {
		payload.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w: %w", services.ErrLLMUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("chat endpoint returned status %d: %s: %w", resp.StatusCode, string(msg), services.ErrLLMUnavailable)
	}

	var out chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode chat response: %w: %w", services.ErrLLMUnavailable, err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("chat response has no choices: %w", services.ErrLLMUnavailable)
	}
	return out.Choices[0].Message.Content, nil
}

// Available checks the models listing endpoint.
func (c *OpenAIClient) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/models", nil)
	if err != nil {
		return false
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Model reports the configured model name.
func (c *OpenAIClient) Model() string { return c.model }
