package ai

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"shop-assistant/internal/models"
)

// resultSchema is the contract every provider's output must satisfy before it
// is trusted by the orchestrator.
const resultSchema = `{
	"type": "object",
	"required": ["intent", "confidence"],
	"properties": {
		"intent": {
			"type": "string",
			"enum": ["retail_quote", "purchase_price_check", "single_item_query", "price_correction", "confirm", "deny", "unknown"]
		},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1},
		"partner": {
			"type": "object",
			"required": ["name"],
			"properties": {
				"name": {"type": "string", "minLength": 1},
				"confidence": {"type": "number", "minimum": 0, "maximum": 1},
				"level": {"type": "string"}
			}
		},
		"products": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["name"],
				"properties": {
					"name": {"type": "string", "minLength": 1},
					"quantity": {"type": "number", "minimum": 0},
					"unit": {"type": "string"},
					"confidence": {"type": "number", "minimum": 0, "maximum": 1}
				}
			}
		},
		"prices": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["value"],
				"properties": {
					"value": {"type": "number", "minimum": 0},
					"unit": {"type": "string"},
					"context": {"type": "string"}
				}
			}
		}
	}
}`

var schemaLoader = gojsonschema.NewStringLoader(resultSchema)

// wireResult is the provider JSON shape on the wire.
type wireResult struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Partner    *struct {
		Name       string  `json:"name"`
		Confidence float64 `json:"confidence"`
		Level      string  `json:"level"`
	} `json:"partner"`
	Products []struct {
		Name       string  `json:"name"`
		Quantity   float64 `json:"quantity"`
		Unit       string  `json:"unit"`
		Confidence float64 `json:"confidence"`
	} `json:"products"`
	Prices []struct {
		Value   float64 `json:"value"`
		Unit    string  `json:"unit"`
		Context string  `json:"context"`
	} `json:"prices"`
}

// DecodeResult strips fences, validates the reply against the result schema,
// and converts it into an NLUResult.
func DecodeResult(raw, originalText string) (*models.NLUResult, error) {
	cleaned := stripFences(raw)

	validation, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewStringLoader(cleaned))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if !validation.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, validation.Errors())
	}

	var wire wireResult
	if err := json.Unmarshal([]byte(cleaned), &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}

	result := &models.NLUResult{
		Intent:     models.Intent(wire.Intent),
		Confidence: wire.Confidence,
		RawText:    originalText,
		UsedAI:     true,
	}

	if wire.Partner != nil {
		conf := wire.Partner.Confidence
		if conf == 0 {
			conf = wire.Confidence
		}
		result.Partner = &models.PartnerEntity{
			Name:       wire.Partner.Name,
			Level:      wire.Partner.Level,
			Confidence: conf,
		}
	}

	for _, p := range wire.Products {
		qty := p.Quantity
		if qty == 0 {
			qty = 1
		}
		unit := p.Unit
		if unit == "" {
			unit = "个"
		}
		conf := p.Confidence
		if conf == 0 {
			conf = wire.Confidence
		}
		result.Products = append(result.Products, models.ProductEntity{
			Name:       p.Name,
			Quantity:   qty,
			Unit:       unit,
			Confidence: conf,
		})
	}

	for _, p := range wire.Prices {
		unit := p.Unit
		if unit == "" {
			unit = "元"
		}
		result.Prices = append(result.Prices, models.PriceEntity{
			Value:   p.Value,
			Unit:    unit,
			Context: p.Context,
		})
	}

	return result, nil
}
