package models

// QuoteItem is one priced line of a quote.
type QuoteItem struct {
	ProductName    string  `json:"productName"`
	ProductID      string  `json:"productId,omitempty"`
	Quantity       float64 `json:"quantity"`
	Unit           string  `json:"unit"`
	BaseCost       float64 `json:"baseCost"`
	SuggestedPrice float64 `json:"suggestedPrice"`
	ActualPrice    float64 `json:"actualPrice"`
	Subtotal       float64 `json:"subtotal"`
	RuleID         string  `json:"ruleId,omitempty"`
	Confidence     float64 `json:"confidence"`
}

// QuoteResponse is a fully assembled quote for one quoting turn. The session
// holds at most one outstanding QuoteResponse until confirmed or denied.
type QuoteResponse struct {
	Items               []QuoteItem `json:"items"`
	TotalSuggestedPrice float64     `json:"totalSuggestedPrice"`
	Message             string      `json:"message"`
	Confidence          float64     `json:"confidence"`
	NeedsConfirmation   bool        `json:"needsConfirmation"`
	RoundingSuggestion  float64     `json:"roundingSuggestion,omitempty"`
	PartnerName         string      `json:"partnerName,omitempty"`
}
