// Package ai holds the pluggable AI provider boundary. Providers exchange the
// raw utterance for the same structured shape the rule layer produces; the
// orchestrator treats every provider as strictly best-effort.
package ai

import (
	"context"
	"errors"
	"strings"

	"shop-assistant/internal/models"
)

var (
	ErrProviderTimeout = errors.New("AI_PROVIDER_TIMEOUT")
	ErrProviderFailed  = errors.New("AI_PROVIDER_FAILED")
	ErrResponseInvalid = errors.New("AI_RESPONSE_INVALID")
)

// Provider is the closed interface every AI backend implements. Parse must
// honor ctx cancellation and return one of the sentinel errors above on
// failure; it must never panic.
type Provider interface {
	Name() string
	Parse(ctx context.Context, text string) (*models.NLUResult, error)
}

// systemPrompt instructs the model to emit only the wire JSON.
const systemPrompt = `你是小商店的收银语音解析器。把顾客的一句话解析成JSON，只输出JSON本身，不要输出任何其他文字或markdown标记。
JSON格式:
{"intent":"retail_quote|purchase_price_check|single_item_query|price_correction|confirm|deny|unknown","confidence":0.0到1.0,"partner":{"name":"","confidence":0.0}或省略,"products":[{"name":"","quantity":1,"unit":"个","confidence":0.0}],"prices":[{"value":0.0,"unit":"元","context":""}]}
intent说明: retail_quote=顾客问零售报价; purchase_price_check=问进价成本; single_item_query=问单件价格; price_correction=改价; confirm=确认; deny=否认; unknown=无法判断。`

// stripFences removes a surrounding markdown code fence from a model reply,
// if present, before JSON parsing.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
