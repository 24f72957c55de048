package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"shop-assistant/internal/common/logger"
	"shop-assistant/internal/models"
)

// AliyunConfig configures the DashScope text-generation backend.
type AliyunConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// AliyunProvider talks to the Aliyun DashScope text-generation API.
type AliyunProvider struct {
	config AliyunConfig
	client *http.Client
	logger logger.Logger
}

// NewAliyunProvider builds a DashScope provider.
func NewAliyunProvider(cfg AliyunConfig, log logger.Logger) *AliyunProvider {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://dashscope.aliyuncs.com"
	}
	return &AliyunProvider{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: log.With(map[string]interface{}{"provider": "aliyun"}),
	}
}

func (p *AliyunProvider) Name() string { return "aliyun" }

type dashscopeRequest struct {
	Model string `json:"model"`
	Input struct {
		Messages []chatMessage `json:"messages"`
	} `json:"input"`
	Parameters struct {
		ResultFormat string `json:"result_format"`
	} `json:"parameters"`
}

type dashscopeResponse struct {
	Output struct {
		Text string `json:"text"`
	} `json:"output"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Parse sends the utterance and decodes the structured reply.
func (p *AliyunProvider) Parse(ctx context.Context, text string) (*models.NLUResult, error) {
	var reqBody dashscopeRequest
	reqBody.Model = p.config.Model
	reqBody.Input.Messages = []chatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: text},
	}
	reqBody.Parameters.ResultFormat = "text"

	body, _ := json.Marshal(reqBody)

	raw, err := p.call(ctx, body)
	if err != nil {
		return nil, err
	}

	var resp dashscopeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode error: %v", ErrProviderFailed, err)
	}
	if resp.Code != "" {
		return nil, fmt.Errorf("%w: %s: %s", ErrProviderFailed, resp.Code, resp.Message)
	}

	result, err := DecodeResult(resp.Output.Text, text)
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

func (p *AliyunProvider) call(ctx context.Context, body []byte) ([]byte, error) {
	return doWithRetry(ctx, p.client, p.config.MaxRetries, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			p.config.BaseURL+"/api/v1/services/aigc/text-generation/generation", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
		return req, nil
	})
}
