package models

// Intent is the classified purpose of a single utterance.
type Intent string

const (
	IntentRetailQuote        Intent = "retail_quote"
	IntentPurchasePriceCheck Intent = "purchase_price_check"
	IntentSingleItemQuery    Intent = "single_item_query"
	IntentPriceCorrection    Intent = "price_correction"
	IntentConfirm            Intent = "confirm"
	IntentDeny               Intent = "deny"
	IntentUnknown            Intent = "unknown"
)

// IntentResult is the classifier output for one utterance. It is produced
// fresh every turn and never persisted.
type IntentResult struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
	RawText    string  `json:"rawText"`
}
