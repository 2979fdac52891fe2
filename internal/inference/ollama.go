package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const providerOllama = "ollama"

type OllamaConfig struct {
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// Ollama calls a local Ollama server's non-streaming /api/generate.
type Ollama struct {
	baseURL     string
	model       string
	temperature float64
	client      *http.Client
}

func NewOllama(cfg OllamaConfig) (*Ollama, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Ollama{
		baseURL:     baseURL,
		model:       model,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: timeout},
	}, nil
}

func (o *Ollama) Infer(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"model":  o.model,
		"system": systemPrompt,
		"prompt": prompt,
		"stream": false,
		"options": map[string]any{
			"temperature": o.temperature,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal generate payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return "", transportError(providerOllama, fmt.Errorf("request generate: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transportError(providerOllama, fmt.Errorf("read generate response body: %w", err))
	}
	if resp.StatusCode >= 400 {
		return "", statusError(providerOllama, resp.StatusCode, rawRespBody)
	}

	var parsed struct {
		Response string `json:"response"`
		Done     bool   `json:"done"`
		Error    string `json:"error"`
	}
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return "", &Error{Kind: KindTransport, Provider: providerOllama, Status: resp.StatusCode, Err: fmt.Errorf("decode generate response: %w", err)}
	}
	if parsed.Error != "" {
		return "", &Error{Kind: KindTransport, Provider: providerOllama, Status: resp.StatusCode, Err: fmt.Errorf("%s", parsed.Error)}
	}
	if !parsed.Done {
		return "", &Error{Kind: KindTransport, Provider: providerOllama, Status: resp.StatusCode, Err: fmt.Errorf("generation did not finish")}
	}
	return parsed.Response, nil
}
