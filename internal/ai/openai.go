package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"shop-assistant/internal/common/logger"
	"shop-assistant/internal/models"
)

// OpenAIConfig configures any chat-completions compatible backend.
type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// OpenAIProvider talks to an OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	config OpenAIConfig
	client *http.Client
	logger logger.Logger
}

// NewOpenAIProvider builds an OpenAI-compatible provider.
func NewOpenAIProvider(cfg OpenAIConfig, log logger.Logger) *OpenAIProvider {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &OpenAIProvider{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: log.With(map[string]interface{}{"provider": "openai"}),
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Parse sends the utterance and decodes the structured reply.
func (p *OpenAIProvider) Parse(ctx context.Context, text string) (*models.NLUResult, error) {
	body, _ := json.Marshal(chatRequest{
		Model: p.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: text},
		},
		Temperature: 0,
	})

	raw, err := p.call(ctx, body)
	if err != nil {
		return nil, err
	}

	var resp chatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode error: %v", ErrProviderFailed, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty choices", ErrResponseInvalid)
	}

	result, err := DecodeResult(resp.Choices[0].Message.Content, text)
	if err != nil {
		return nil, err
	}

	p.logger.Info("utterance parsed", map[string]interface{}{
		"intent":       result.Intent,
		"confidence":   result.Confidence,
		"productCount": len(result.Products),
	})

	return result, nil
}

func (p *OpenAIProvider) call(ctx context.Context, body []byte) ([]byte, error) {
	return doWithRetry(ctx, p.client, p.config.MaxRetries, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
		return req, nil
	})
}

// doWithRetry executes an HTTP call with exponential backoff, rebuilding the
// request each attempt. Context expiry always maps to ErrProviderTimeout.
func doWithRetry(ctx context.Context, client *http.Client, maxRetries int, build func() (*http.Request, error)) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ErrProviderTimeout
			}
		}

		req, err := build()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
		}

		resp, err := client.Do(req)
		if ctx.Err() != nil ||
			errors.Is(err, context.DeadlineExceeded) ||
			errors.Is(err, context.Canceled) {
			return nil, ErrProviderTimeout
		}
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			continue
		}

		var buf bytes.Buffer
		_, err = buf.ReadFrom(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		return buf.Bytes(), nil
	}

	return nil, fmt.Errorf("%w: %v", ErrProviderFailed, lastErr)
}
