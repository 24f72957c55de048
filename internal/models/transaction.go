package models

import "time"

// TransactionItem is one committed line of a confirmed quote.
type TransactionItem struct {
	ProductName string  `json:"productName" db:"product_name"`
	ProductID   string  `json:"productId,omitempty" db:"product_id"`
	Quantity    float64 `json:"quantity" db:"quantity"`
	Unit        string  `json:"unit" db:"unit"`
	UnitPrice   float64 `json:"unitPrice" db:"unit_price"`
	Subtotal    float64 `json:"subtotal" db:"subtotal"`
}

// Transaction is the persisted record of a confirmed quote. Its rows are the
// source for historical price distributions.
type Transaction struct {
	ID          string            `json:"id" db:"id"`
	SessionID   string            `json:"sessionId" db:"session_id"`
	PartnerID   string            `json:"partnerId,omitempty" db:"partner_id"`
	PartnerName string            `json:"partnerName,omitempty" db:"partner_name"`
	Items       []TransactionItem `json:"items"`
	Total       float64           `json:"total" db:"total"`
	CreatedAt   time.Time         `json:"createdAt" db:"created_at"`
}

// PriceSample is one historical (price, time) observation for a product.
type PriceSample struct {
	Price     float64   `json:"price" db:"unit_price"`
	Timestamp time.Time `json:"timestamp" db:"created_at"`
}
