package models

import "time"

// SessionState is the dialogue state machine position of a session.
type SessionState string

const (
	StateIdle            SessionState = "idle"
	StateListening       SessionState = "listening"
	StateProcessing      SessionState = "processing"
	StateAwaitingInput   SessionState = "awaiting_input"
	StateAwaitingConfirm SessionState = "awaiting_confirm"
	StateCompleted       SessionState = "completed"
	StateError           SessionState = "error"
)

// ConfirmationType distinguishes what an awaited confirmation would commit.
type ConfirmationType string

const (
	ConfirmQuote      ConfirmationType = "quote"
	ConfirmCorrection ConfirmationType = "correction"
)

// DialogueTurn is one user or assistant entry in the capped session history.
type DialogueTurn struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Text      string    `json:"text"`
	Intent    Intent    `json:"intent,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionContext is the per-conversation mutable state threaded across turns.
// It is created on the first turn, mutated every turn, and evicted after a
// period of inactivity or an explicit clear. Access must be serialized by the
// conversation manager; the struct itself carries no lock.
type SessionContext struct {
	SessionID            string           `json:"sessionId"`
	State                SessionState     `json:"state"`
	CurrentPartner       *PartnerEntity   `json:"currentPartner,omitempty"`
	CartItems            []ProductEntity  `json:"cartItems"`
	CurrentQuote         *QuoteResponse   `json:"currentQuote,omitempty"`
	History              []DialogueTurn   `json:"history"`
	LastIntent           Intent           `json:"lastIntent"`
	AwaitingConfirmation bool             `json:"awaitingConfirmation"`
	ConfirmationType     ConfirmationType `json:"confirmationType,omitempty"`
	CreatedAt            time.Time        `json:"createdAt"`
	LastActivity         time.Time        `json:"lastActivity"`
}

// IsExpired reports whether the session has been inactive longer than timeout.
func (s *SessionContext) IsExpired(timeout time.Duration) bool {
	return time.Since(s.LastActivity) > timeout
}

// Touch updates the last activity timestamp.
func (s *SessionContext) Touch() {
	s.LastActivity = time.Now()
}
