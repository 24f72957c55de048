// Package conversation is the per-session dialogue state machine. It threads
// a quote through clarification, confirmation, correction, and commit.
package conversation

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"shop-assistant/internal/common/config"
	commonerrors "shop-assistant/internal/common/errors"
	"shop-assistant/internal/common/logger"
	"shop-assistant/internal/common/metrics"
	"shop-assistant/internal/history"
	"shop-assistant/internal/models"
	"shop-assistant/internal/nlu"
	"shop-assistant/internal/pricing"
)

const genericRetryPrompt = "抱歉，刚才出了点问题，请再说一遍。"

// TransactionSaver persists a confirmed quote.
type TransactionSaver interface {
	Save(ctx context.Context, txn *models.Transaction) error
}

// ReceiptNotifier announces a committed transaction. Calls are best-effort;
// implementations must not return errors that block the turn.
type ReceiptNotifier interface {
	SendReceipt(ctx context.Context, txn *models.Transaction)
}

// PriceChecker judges a corrected price against history.
type PriceChecker interface {
	IsPriceReasonable(ctx context.Context, product string, price float64) history.Assessment
}

// Input is one turn of user speech or text.
type Input struct {
	SessionID string
	Text      string
}

// Output is the assistant's reply for one turn.
type Output struct {
	Text              string                `json:"text"`
	Quote             *models.QuoteResponse `json:"quote,omitempty"`
	State             models.SessionState   `json:"state"`
	NeedsConfirmation bool                  `json:"needsConfirmation"`
	SuggestedActions  []string              `json:"suggestedActions,omitempty"`
}

// Manager drives the dialogue state machine for every session.
type Manager struct {
	registry     *Registry
	orchestrator *nlu.Orchestrator
	engine       *pricing.Engine
	catalog      pricing.Catalog
	transactions TransactionSaver
	checker      PriceChecker
	notifier     ReceiptNotifier
	config       config.SessionConfig
	logger       logger.Logger
}

// NewManager wires the state machine. catalog, checker, and notifier may be
// nil; the related replies degrade gracefully.
func NewManager(registry *Registry, orchestrator *nlu.Orchestrator, engine *pricing.Engine, catalog pricing.Catalog, transactions TransactionSaver, checker PriceChecker, notifier ReceiptNotifier, cfg config.SessionConfig, log logger.Logger) *Manager {
	return &Manager{
		registry:     registry,
		orchestrator: orchestrator,
		engine:       engine,
		catalog:      catalog,
		transactions: transactions,
		checker:      checker,
		notifier:     notifier,
		config:       cfg,
		logger:       log,
	}
}

// ProcessInput handles one turn. Concurrent calls for the same session
// serialize on the session lock; a panic inside the turn is caught here, sets
// the session state to error, and yields a generic retry reply.
func (m *Manager) ProcessInput(ctx context.Context, input Input) (output *Output, err error) {
	entry := m.registry.getOrCreate(input.SessionID)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	session := entry.session
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("panic in turn", map[string]interface{}{
				"sessionId": input.SessionID,
				"panic":     fmt.Sprintf("%v", r),
			})
			metrics.TurnsFailed.WithLabelValues(string(commonerrors.ErrCodeInternal)).Inc()
			session.State = models.StateError
			output = &Output{Text: genericRetryPrompt, State: models.StateError}
			err = nil
		}
	}()

	session.State = models.StateProcessing
	m.appendTurn(session, "user", input.Text, "")

	result := m.orchestrator.Parse(ctx, input.Text, nlu.Hints{
		HasPartner: session.CurrentPartner != nil,
		LastIntent: session.LastIntent,
	})

	if session.AwaitingConfirmation {
		output = m.handleConfirmationReply(ctx, session, result)
	} else {
		output = m.dispatch(ctx, session, result)
	}

	session.LastIntent = result.Intent
	session.Touch()
	m.appendTurn(session, "assistant", output.Text, result.Intent)

	metrics.TurnsProcessed.WithLabelValues(string(result.Intent), string(session.State)).Inc()
	metrics.TurnDuration.WithLabelValues(string(result.Intent)).Observe(time.Since(started).Seconds())

	return output, nil
}

// handleConfirmationReply resolves a turn that arrives while a quote is held:
// confirm commits, deny discards, anything else resets the flag and is
// treated as a brand-new request.
func (m *Manager) handleConfirmationReply(ctx context.Context, session *models.SessionContext, result *models.NLUResult) *Output {
	switch result.Intent {
	case models.IntentConfirm:
		return m.commitQuote(ctx, session)

	case models.IntentDeny:
		session.AwaitingConfirmation = false
		session.ConfirmationType = ""
		session.CurrentQuote = nil
		session.State = models.StateIdle
		return &Output{
			Text:  "好的，那这单先不算。还需要什么吗？",
			State: session.State,
		}

	case models.IntentPriceCorrection:
		return m.handlePriceCorrection(ctx, session, result)

	default:
		session.AwaitingConfirmation = false
		session.ConfirmationType = ""
		session.CurrentQuote = nil
		return m.dispatch(ctx, session, result)
	}
}

func (m *Manager) dispatch(ctx context.Context, session *models.SessionContext, result *models.NLUResult) *Output {
	if m.orchestrator.NeedsClarification(result) {
		session.State = models.StateAwaitingInput
		return &Output{
			Text:  m.orchestrator.ClarificationPrompt(result, nlu.Hints{HasPartner: session.CurrentPartner != nil}),
			State: session.State,
		}
	}

	switch result.Intent {
	case models.IntentRetailQuote:
		return m.handleRetailQuote(ctx, session, result)
	case models.IntentSingleItemQuery:
		return m.handleSingleItemQuery(ctx, session, result)
	case models.IntentPurchasePriceCheck:
		return m.handlePurchasePriceCheck(ctx, session, result)
	case models.IntentPriceCorrection:
		return m.handlePriceCorrection(ctx, session, result)
	case models.IntentConfirm:
		session.State = models.StateIdle
		return &Output{Text: "现在没有待确认的单子。", State: session.State}
	case models.IntentDeny:
		session.State = models.StateIdle
		return &Output{Text: "好的。", State: session.State}
	default:
		session.State = models.StateAwaitingInput
		return &Output{
			Text:  m.orchestrator.ClarificationPrompt(result, nlu.Hints{HasPartner: session.CurrentPartner != nil}),
			State: session.State,
		}
	}
}

// handleRetailQuote merges the turn's products into the cart, prices the
// whole cart, and holds the quote for confirmation.
func (m *Manager) handleRetailQuote(ctx context.Context, session *models.SessionContext, result *models.NLUResult) *Output {
	if result.Partner != nil {
		session.CurrentPartner = result.Partner
	}
	mergeCart(session, result.Products)

	quote := m.engine.Quote(ctx, pricing.QuoteContext{
		Partner:  session.CurrentPartner,
		Products: session.CartItems,
	})

	session.CurrentQuote = quote
	session.AwaitingConfirmation = true
	session.ConfirmationType = models.ConfirmQuote
	session.State = models.StateAwaitingConfirm

	text := quote.Message + "，对吗？"
	if quote.RoundingSuggestion > 0 {
		text = fmt.Sprintf("%s，收%s块整也行，对吗？", quote.Message, formatYuan(quote.RoundingSuggestion))
	}

	return &Output{
		Text:              text,
		Quote:             quote,
		State:             session.State,
		NeedsConfirmation: true,
		SuggestedActions:  []string{"对", "不对", "改价"},
	}
}

// handleSingleItemQuery prices exactly one unit without touching the cart.
func (m *Manager) handleSingleItemQuery(ctx context.Context, session *models.SessionContext, result *models.NLUResult) *Output {
	if len(result.Products) == 0 {
		session.State = models.StateAwaitingInput
		return &Output{Text: "请问您想问哪个商品的价格？", State: session.State}
	}

	product := result.Products[0]
	product.Quantity = 1

	quote := m.engine.Quote(ctx, pricing.QuoteContext{
		Partner:  session.CurrentPartner,
		Products: []models.ProductEntity{product},
	})

	session.State = models.StateIdle
	return &Output{
		Text:  quote.Message,
		Quote: quote,
		State: session.State,
	}
}

// handlePurchasePriceCheck reports the base cost only; no quote is created.
func (m *Manager) handlePurchasePriceCheck(ctx context.Context, session *models.SessionContext, result *models.NLUResult) *Output {
	session.State = models.StateIdle

	if len(result.Products) == 0 || m.catalog == nil {
		return &Output{Text: "请问您想查哪个商品的进价？", State: session.State}
	}

	name := result.Products[0].Name
	info, err := m.catalog.Resolve(ctx, name)
	if err != nil || info == nil {
		return &Output{Text: fmt.Sprintf("没查到%s的进价。", name), State: session.State}
	}

	return &Output{
		Text:  fmt.Sprintf("%s进价%s块。", info.Name, formatYuan(info.BaseCost)),
		State: session.State,
	}
}

// handlePriceCorrection overwrites one held quote item's actual price and
// re-enters confirmation. Without a held quote there is nothing to correct.
func (m *Manager) handlePriceCorrection(ctx context.Context, session *models.SessionContext, result *models.NLUResult) *Output {
	quote := session.CurrentQuote
	if quote == nil || len(quote.Items) == 0 {
		session.State = models.StateIdle
		return &Output{Text: "现在没有可以改价的单子。", State: session.State}
	}

	if len(result.Prices) == 0 {
		session.State = models.StateAwaitingConfirm
		return &Output{Text: "请问您想改成多少钱？", State: session.State, NeedsConfirmation: true}
	}
	newPrice := result.Prices[0].Value

	idx := matchCorrectionItem(quote, result.Products)
	if idx < 0 {
		session.State = models.StateAwaitingConfirm
		return &Output{Text: "请问您想改哪个商品的价格？", State: session.State, NeedsConfirmation: true}
	}

	item := &quote.Items[idx]
	item.ActualPrice = newPrice
	item.Subtotal = roundCents(newPrice * item.Quantity)

	var total float64
	for _, it := range quote.Items {
		total += it.Subtotal
	}
	quote.TotalSuggestedPrice = roundCents(total)

	session.AwaitingConfirmation = true
	session.ConfirmationType = models.ConfirmCorrection
	session.State = models.StateAwaitingConfirm

	text := fmt.Sprintf("%s按%s块算，一共%s块，对吗？",
		item.ProductName, formatYuan(newPrice), formatYuan(quote.TotalSuggestedPrice))

	if m.checker != nil {
		if verdict := m.checker.IsPriceReasonable(ctx, item.ProductName, newPrice); verdict.Warning != "" {
			text = verdict.Warning + "。" + text
		}
	}

	return &Output{
		Text:              text,
		Quote:             quote,
		State:             session.State,
		NeedsConfirmation: true,
		SuggestedActions:  []string{"对", "不对"},
	}
}

// commitQuote persists the held quote. A failed write keeps the quote held so
// the user can confirm again; only that action fails, not the whole turn.
func (m *Manager) commitQuote(ctx context.Context, session *models.SessionContext) *Output {
	quote := session.CurrentQuote
	if quote == nil {
		session.AwaitingConfirmation = false
		session.ConfirmationType = ""
		session.State = models.StateIdle
		return &Output{Text: "现在没有待确认的单子。", State: session.State}
	}

	txn := buildTransaction(session, quote)

	if m.transactions != nil {
		if err := m.transactions.Save(ctx, txn); err != nil {
			m.logger.Error("transaction write failed", map[string]interface{}{
				"sessionId": session.SessionID,
				"error":     err.Error(),
			})
			metrics.TurnsFailed.WithLabelValues(string(commonerrors.ErrCodeTransactionFailed)).Inc()
			session.State = models.StateAwaitingConfirm
			return &Output{
				Text:              "记账没成功，您再说一次\"确认\"试试。",
				Quote:             quote,
				State:             session.State,
				NeedsConfirmation: true,
			}
		}
	}
	metrics.TransactionsCommitted.Inc()

	if m.notifier != nil {
		m.notifier.SendReceipt(ctx, txn)
	}

	session.CurrentQuote = nil
	session.CartItems = nil
	session.CurrentPartner = nil
	session.AwaitingConfirmation = false
	session.ConfirmationType = ""
	session.State = models.StateCompleted

	return &Output{
		Text:  fmt.Sprintf("好嘞，一共%s块，记上了。", formatYuan(txn.Total)),
		State: session.State,
	}
}

func buildTransaction(session *models.SessionContext, quote *models.QuoteResponse) *models.Transaction {
	txn := &models.Transaction{
		SessionID: session.SessionID,
		Total:     quote.TotalSuggestedPrice,
	}
	if session.CurrentPartner != nil {
		txn.PartnerID = session.CurrentPartner.PartnerID
		txn.PartnerName = session.CurrentPartner.Name
	}

	for _, item := range quote.Items {
		txn.Items = append(txn.Items, models.TransactionItem{
			ProductName: item.ProductName,
			ProductID:   item.ProductID,
			Quantity:    item.Quantity,
			Unit:        item.Unit,
			UnitPrice:   item.ActualPrice,
			Subtotal:    item.Subtotal,
		})
	}
	return txn
}

// mergeCart folds new product mentions into the cart by case-insensitive
// name, summing quantities.
func mergeCart(session *models.SessionContext, products []models.ProductEntity) {
	for _, p := range products {
		merged := false
		for i := range session.CartItems {
			if strings.EqualFold(session.CartItems[i].Name, p.Name) {
				session.CartItems[i].Quantity += p.Quantity
				merged = true
				break
			}
		}
		if !merged {
			session.CartItems = append(session.CartItems, p)
		}
	}
}

// matchCorrectionItem finds which quote item a correction targets: a named
// product wins, a single-item quote is unambiguous, anything else is unclear.
func matchCorrectionItem(quote *models.QuoteResponse, products []models.ProductEntity) int {
	for _, p := range products {
		for i, item := range quote.Items {
			if strings.EqualFold(item.ProductName, p.Name) {
				return i
			}
		}
	}
	if len(quote.Items) == 1 {
		return 0
	}
	return -1
}

// appendTurn records a dialogue turn, keeping the history capped.
func (m *Manager) appendTurn(session *models.SessionContext, role, text string, intent models.Intent) {
	limit := m.config.HistoryLimit
	if limit <= 0 {
		limit = 50
	}

	session.History = append(session.History, models.DialogueTurn{
		Role:      role,
		Text:      text,
		Intent:    intent,
		Timestamp: time.Now(),
	})
	if len(session.History) > limit {
		session.History = session.History[len(session.History)-limit:]
	}
}

func formatYuan(v float64) string {
	return strconv.FormatFloat(roundCents(v), 'f', -1, 64)
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
