package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shop-assistant/internal/common/logger"
	"shop-assistant/internal/models"
)

const validReply = `{
	"intent": "retail_quote",
	"confidence": 0.9,
	"partner": {"name": "张三", "confidence": 0.85},
	"products": [
		{"name": "可乐", "quantity": 2, "unit": "瓶", "confidence": 0.9},
		{"name": "纸巾", "quantity": 3, "unit": "包"}
	]
}`

func newChatServer(t *testing.T, reply string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)

		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}

		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": reply}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestOpenAIProvider_Parse(t *testing.T) {
	server := newChatServer(t, validReply, http.StatusOK)
	defer server.Close()

	provider := NewOpenAIProvider(OpenAIConfig{
		BaseURL: server.URL,
		APIKey:  "test-key",
		Model:   "gpt-4o-mini",
	}, logger.NewNop())

	result, err := provider.Parse(context.Background(), "张三两瓶可乐三包纸巾多少钱")
	require.NoError(t, err)

	assert.Equal(t, models.IntentRetailQuote, result.Intent)
	assert.Equal(t, 0.9, result.Confidence)
	assert.True(t, result.UsedAI)

	require.NotNil(t, result.Partner)
	assert.Equal(t, "张三", result.Partner.Name)

	require.Len(t, result.Products, 2)
	assert.Equal(t, 2.0, result.Products[0].Quantity)
	// omitted confidence inherits the overall confidence
	assert.Equal(t, 0.9, result.Products[1].Confidence)
}

func TestOpenAIProvider_Parse_FencedReply(t *testing.T) {
	fenced := "```json\n" + validReply + "\n```"
	server := newChatServer(t, fenced, http.StatusOK)
	defer server.Close()

	provider := NewOpenAIProvider(OpenAIConfig{BaseURL: server.URL, APIKey: "test-key"}, logger.NewNop())

	result, err := provider.Parse(context.Background(), "张三两瓶可乐")
	require.NoError(t, err)
	assert.Equal(t, models.IntentRetailQuote, result.Intent)
}

func TestOpenAIProvider_Parse_InvalidReply(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"not json", "今天天气不错"},
		{"missing intent", `{"confidence": 0.9}`},
		{"unknown intent value", `{"intent": "order_pizza", "confidence": 0.9}`},
		{"confidence out of range", `{"intent": "confirm", "confidence": 1.5}`},
		{"product without name", `{"intent": "retail_quote", "confidence": 0.8, "products": [{"quantity": 2}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newChatServer(t, tt.reply, http.StatusOK)
			defer server.Close()

			provider := NewOpenAIProvider(OpenAIConfig{BaseURL: server.URL, APIKey: "test-key"}, logger.NewNop())

			_, err := provider.Parse(context.Background(), "随便说点什么")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrResponseInvalid)
		})
	}
}

func TestOpenAIProvider_Parse_RetriesServerError(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": validReply}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	provider := NewOpenAIProvider(OpenAIConfig{
		BaseURL:    server.URL,
		APIKey:     "test-key",
		MaxRetries: 2,
	}, logger.NewNop())

	_, err := provider.Parse(context.Background(), "两瓶可乐多少钱")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestOpenAIProvider_Parse_ExhaustedRetries(t *testing.T) {
	server := newChatServer(t, "", http.StatusInternalServerError)
	defer server.Close()

	provider := NewOpenAIProvider(OpenAIConfig{
		BaseURL:    server.URL,
		APIKey:     "test-key",
		MaxRetries: 1,
	}, logger.NewNop())

	_, err := provider.Parse(context.Background(), "两瓶可乐多少钱")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderFailed)
}

func TestOpenAIProvider_Parse_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	provider := NewOpenAIProvider(OpenAIConfig{BaseURL: server.URL, APIKey: "test-key"}, logger.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := provider.Parse(ctx, "两瓶可乐多少钱")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderTimeout)
}

func TestAliyunProvider_Parse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/services/aigc/text-generation/generation", r.URL.Path)
		assert.Equal(t, "Bearer dash-key", r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"output": map[string]string{"text": validReply},
		})
	}))
	defer server.Close()

	provider := NewAliyunProvider(AliyunConfig{
		BaseURL: server.URL,
		APIKey:  "dash-key",
		Model:   "qwen-turbo",
	}, logger.NewNop())

	assert.Equal(t, "aliyun", provider.Name())

	result, err := provider.Parse(context.Background(), "张三两瓶可乐三包纸巾多少钱")
	require.NoError(t, err)
	assert.Equal(t, models.IntentRetailQuote, result.Intent)
	require.Len(t, result.Products, 2)
}

func TestAliyunProvider_Parse_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code":    "InvalidApiKey",
			"message": "Invalid API-key provided.",
		})
	}))
	defer server.Close()

	provider := NewAliyunProvider(AliyunConfig{BaseURL: server.URL, APIKey: "bad"}, logger.NewNop())

	_, err := provider.Parse(context.Background(), "两瓶可乐")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderFailed)
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare json", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"plain fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding whitespace", "  {\"a\":1}\n", `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripFences(tt.in))
		})
	}
}
