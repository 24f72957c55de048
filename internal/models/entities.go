package models

// ProductEntity is a product mention extracted from an utterance.
type ProductEntity struct {
	Name       string  `json:"name"`
	Quantity   float64 `json:"quantity"`
	Unit       string  `json:"unit"`
	Confidence float64 `json:"confidence"`
	ProductID  string  `json:"productId,omitempty"`
}

// PartnerEntity is the trade partner mentioned in an utterance. At most one
// partner is recognized per utterance.
type PartnerEntity struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	PartnerID  string  `json:"partnerId,omitempty"`
	Level      string  `json:"level,omitempty"`
}

// PriceEntity is a spoken price found in an utterance, consumed only by
// price-correction handling.
type PriceEntity struct {
	Value   float64 `json:"value"`
	Unit    string  `json:"unit"`
	Context string  `json:"context,omitempty"`
}

// Entities bundles everything the extractor pulled out of one utterance.
// Absence is represented by empty slices and a nil partner, never an error.
type Entities struct {
	Products []ProductEntity `json:"products"`
	Partner  *PartnerEntity  `json:"partner,omitempty"`
	Prices   []PriceEntity   `json:"prices"`
}

// NLUResult is the merged output of the rule layer and, when invoked, the AI
// provider. It is the single shape both layers produce.
type NLUResult struct {
	Intent     Intent          `json:"intent"`
	Confidence float64         `json:"confidence"`
	RawText    string          `json:"rawText"`
	Products   []ProductEntity `json:"products"`
	Partner    *PartnerEntity  `json:"partner,omitempty"`
	Prices     []PriceEntity   `json:"prices"`
	UsedAI     bool            `json:"usedAI"`
}
