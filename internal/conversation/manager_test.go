package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shop-assistant/internal/common/config"
	"shop-assistant/internal/common/logger"
	"shop-assistant/internal/history"
	"shop-assistant/internal/models"
	"shop-assistant/internal/nlu"
	"shop-assistant/internal/nlu/classifier"
	"shop-assistant/internal/nlu/extractor"
	"shop-assistant/internal/pricing"
)

type fakeCatalog struct {
	products map[string]*models.ProductInfo
	panics   bool
}

func (f *fakeCatalog) Resolve(ctx context.Context, name string) (*models.ProductInfo, error) {
	if f.panics {
		panic("catalog exploded")
	}
	return f.products[name], nil
}

type fakeRuleSource struct{}

func (fakeRuleSource) LoadRules(ctx context.Context) ([]models.PricingRule, error) {
	return []models.PricingRule{
		{ID: "r-global", ScopeType: models.ScopeGlobal, Formula: "cost*1.2", Rounding: models.RoundingRoundTo1, Enabled: true},
		{ID: "r-beverage", ScopeType: models.ScopeCategory, ScopeValue: "饮料", Formula: "cost*1.15", Rounding: models.RoundingRoundToHalf, Priority: 10, Enabled: true},
	}, nil
}

type fakeSaver struct {
	saved []*models.Transaction
	err   error
}

func (f *fakeSaver) Save(ctx context.Context, txn *models.Transaction) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, txn)
	return nil
}

type fakeChecker struct {
	verdict history.Assessment
}

func (f *fakeChecker) IsPriceReasonable(ctx context.Context, product string, price float64) history.Assessment {
	return f.verdict
}

type fakeNotifier struct {
	sent []*models.Transaction
}

func (f *fakeNotifier) SendReceipt(ctx context.Context, txn *models.Transaction) {
	f.sent = append(f.sent, txn)
}

type harness struct {
	manager  *Manager
	registry *Registry
	catalog  *fakeCatalog
	saver    *fakeSaver
	checker  *fakeChecker
	notifier *fakeNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	snapshot := extractor.NewSnapshot("v1",
		[]extractor.NameEntry{
			{Name: "可乐", ID: "p1"},
			{Name: "纸巾", ID: "p2"},
		},
		[]extractor.NameEntry{
			{Name: "张三", ID: "c1", Level: "vip"},
		},
	)

	orchestrator := nlu.NewOrchestrator(
		classifier.New(classifier.DefaultDefinitions()),
		extractor.New(snapshot),
		nil,
		config.NLUConfig{AIThreshold: 0.6, ClarificationThreshold: 0.4, LongTextRunes: 10},
		config.AIConfig{Timeout: 1000},
		logger.NewNop(),
	)

	catalog := &fakeCatalog{products: map[string]*models.ProductInfo{
		"可乐": {ID: "p1", Name: "可乐", BaseCost: 2.5, Category: "饮料"},
		"纸巾": {ID: "p2", Name: "纸巾", BaseCost: 1.5, Category: "日用"},
	}}

	engine := pricing.NewEngine(catalog, nil, fakeRuleSource{}, config.PricingConfig{
		DefaultMargin:    0.2,
		HistoryWeight:    0.3,
		ConfirmThreshold: 0.7,
		RuleCacheTTL:     3600,
	}, logger.NewNop())

	registry := NewRegistry(30*time.Minute, logger.NewNop())
	saver := &fakeSaver{}
	checker := &fakeChecker{}
	notifier := &fakeNotifier{}

	manager := NewManager(registry, orchestrator, engine, catalog, saver, checker, notifier,
		config.SessionConfig{Timeout: 1800, SweepInterval: 300, HistoryLimit: 50}, logger.NewNop())

	return &harness{manager: manager, registry: registry, catalog: catalog, saver: saver, checker: checker, notifier: notifier}
}

func (h *harness) turn(t *testing.T, sessionID, text string) *Output {
	t.Helper()
	out, err := h.manager.ProcessInput(context.Background(), Input{SessionID: sessionID, Text: text})
	require.NoError(t, err)
	require.NotNil(t, out)
	return out
}

func TestQuoteConfirmFlow(t *testing.T) {
	h := newHarness(t)

	out := h.turn(t, "s1", "张三两瓶可乐三包纸巾多少钱")
	assert.Equal(t, models.StateAwaitingConfirm, out.State)
	assert.True(t, out.NeedsConfirmation)
	require.NotNil(t, out.Quote)
	// 可乐: 2.875→3.0 ×2 = 6; 纸巾: 1.8→2 ×3 = 6; total 12
	assert.Equal(t, 12.0, out.Quote.TotalSuggestedPrice)
	assert.Equal(t, "张三", out.Quote.PartnerName)

	out = h.turn(t, "s1", "对")
	assert.Equal(t, models.StateCompleted, out.State)
	assert.Contains(t, out.Text, "12")

	require.Len(t, h.saver.saved, 1)
	txn := h.saver.saved[0]
	assert.Equal(t, 12.0, txn.Total)
	assert.Equal(t, "张三", txn.PartnerName)
	assert.Len(t, txn.Items, 2)
	require.Len(t, h.notifier.sent, 1)

	// the session is fully cleared after a commit
	entry := h.registry.getOrCreate("s1")
	assert.Nil(t, entry.session.CurrentQuote)
	assert.Empty(t, entry.session.CartItems)
	assert.Nil(t, entry.session.CurrentPartner)
	assert.False(t, entry.session.AwaitingConfirmation)
}

func TestDenyClearsQuoteKeepsCart(t *testing.T) {
	h := newHarness(t)

	h.turn(t, "s1", "张三两瓶可乐多少钱")
	out := h.turn(t, "s1", "不对")

	assert.Equal(t, models.StateIdle, out.State)
	assert.Empty(t, h.saver.saved)

	entry := h.registry.getOrCreate("s1")
	assert.Nil(t, entry.session.CurrentQuote)
	assert.False(t, entry.session.AwaitingConfirmation)
	assert.NotEmpty(t, entry.session.CartItems)
}

func TestPriceCorrectionFlow(t *testing.T) {
	h := newHarness(t)

	out := h.turn(t, "s1", "两瓶可乐多少钱")
	require.NotNil(t, out.Quote)
	assert.Equal(t, 6.0, out.Quote.TotalSuggestedPrice)

	out = h.turn(t, "s1", "按2.5块算")
	assert.Equal(t, models.StateAwaitingConfirm, out.State)
	require.NotNil(t, out.Quote)
	assert.Equal(t, 2.5, out.Quote.Items[0].ActualPrice)
	assert.Equal(t, 5.0, out.Quote.TotalSuggestedPrice)
	assert.Contains(t, out.Text, "5")

	out = h.turn(t, "s1", "好的")
	assert.Equal(t, models.StateCompleted, out.State)
	require.Len(t, h.saver.saved, 1)
	assert.Equal(t, 5.0, h.saver.saved[0].Total)
	assert.Equal(t, 2.5, h.saver.saved[0].Items[0].UnitPrice)
}

func TestPriceCorrection_WarningFromHistory(t *testing.T) {
	h := newHarness(t)
	h.checker.verdict = history.Assessment{Reasonable: false, Warning: "这个价明显偏高，平时卖3块左右", Suggested: 3}

	h.turn(t, "s1", "两瓶可乐多少钱")
	out := h.turn(t, "s1", "按9块算")

	assert.Contains(t, out.Text, "明显偏高")
	assert.True(t, out.NeedsConfirmation)
}

func TestPriceCorrection_NothingToCorrect(t *testing.T) {
	h := newHarness(t)

	out := h.turn(t, "s1", "按8块算")
	assert.Contains(t, out.Text, "没有可以改价")
	assert.Equal(t, models.StateIdle, out.State)
}

func TestPriceCorrection_AmbiguousItem(t *testing.T) {
	h := newHarness(t)

	h.turn(t, "s1", "两瓶可乐三包纸巾多少钱")
	out := h.turn(t, "s1", "按2块算")

	assert.Contains(t, out.Text, "哪个商品")
	assert.True(t, out.NeedsConfirmation)
}

func TestPriceCorrection_NamedItem(t *testing.T) {
	h := newHarness(t)

	h.turn(t, "s1", "两瓶可乐三包纸巾多少钱")
	out := h.turn(t, "s1", "可乐按2块算")

	require.NotNil(t, out.Quote)
	assert.Equal(t, 2.0, out.Quote.Items[0].ActualPrice)
	// 可乐 2×2=4, 纸巾 3×2=6
	assert.Equal(t, 10.0, out.Quote.TotalSuggestedPrice)
}

func TestFailedCommitKeepsQuoteHeld(t *testing.T) {
	h := newHarness(t)
	h.saver.err = errors.New("db down")

	h.turn(t, "s1", "两瓶可乐多少钱")
	out := h.turn(t, "s1", "对")

	assert.Equal(t, models.StateAwaitingConfirm, out.State)
	assert.True(t, out.NeedsConfirmation)

	entry := h.registry.getOrCreate("s1")
	assert.NotNil(t, entry.session.CurrentQuote)
	assert.True(t, entry.session.AwaitingConfirmation)

	// retry succeeds once the store recovers
	h.saver.err = nil
	out = h.turn(t, "s1", "对")
	assert.Equal(t, models.StateCompleted, out.State)
	require.Len(t, h.saver.saved, 1)
}

func TestSingleItemQueryDoesNotTouchCart(t *testing.T) {
	h := newHarness(t)

	out := h.turn(t, "s1", "可乐多少钱一瓶")
	assert.Equal(t, models.StateIdle, out.State)
	assert.False(t, out.NeedsConfirmation)
	require.NotNil(t, out.Quote)
	require.Len(t, out.Quote.Items, 1)
	assert.Equal(t, 1.0, out.Quote.Items[0].Quantity)
	assert.Equal(t, 3.0, out.Quote.Items[0].SuggestedPrice)

	entry := h.registry.getOrCreate("s1")
	assert.Empty(t, entry.session.CartItems)
	assert.Nil(t, entry.session.CurrentQuote)
}

func TestPurchasePriceCheck(t *testing.T) {
	h := newHarness(t)

	out := h.turn(t, "s1", "可乐进价多少")
	assert.Equal(t, "可乐进价2.5块。", out.Text)
	assert.Nil(t, out.Quote)

	out = h.turn(t, "s1", "辣条进价多少")
	assert.Contains(t, out.Text, "没查到")
}

func TestUnknownInputAsksForClarification(t *testing.T) {
	h := newHarness(t)

	out := h.turn(t, "s1", "呃那个啥来着")
	assert.Equal(t, models.StateAwaitingInput, out.State)
	assert.NotEmpty(t, out.Text)
}

func TestConfirmWithoutHeldQuote(t *testing.T) {
	h := newHarness(t)

	out := h.turn(t, "s1", "对")
	assert.Contains(t, out.Text, "没有待确认")
}

func TestNewRequestResetsHeldQuote(t *testing.T) {
	h := newHarness(t)

	h.turn(t, "s1", "两瓶可乐多少钱")
	out := h.turn(t, "s1", "三包纸巾多少钱")

	// the old quote is dropped and the new request quoted; the cart still
	// carries the earlier items
	require.NotNil(t, out.Quote)
	assert.Equal(t, models.StateAwaitingConfirm, out.State)
	assert.Len(t, out.Quote.Items, 2)
}

func TestCartMergesQuantitiesAcrossTurns(t *testing.T) {
	h := newHarness(t)

	h.turn(t, "s1", "两瓶可乐多少钱")
	out := h.turn(t, "s1", "再来三瓶可乐多少钱")

	require.NotNil(t, out.Quote)
	require.Len(t, out.Quote.Items, 1)
	assert.Equal(t, 5.0, out.Quote.Items[0].Quantity)
}

func TestPanicRecovery(t *testing.T) {
	h := newHarness(t)
	h.catalog.panics = true

	out, err := h.manager.ProcessInput(context.Background(), Input{SessionID: "s1", Text: "可乐进价多少"})
	require.NoError(t, err)
	assert.Equal(t, models.StateError, out.State)
	assert.Equal(t, genericRetryPrompt, out.Text)

	// the session keeps working on the next turn
	h.catalog.panics = false
	out = h.turn(t, "s1", "可乐进价多少")
	assert.Contains(t, out.Text, "进价")
}

func TestSessionsAreIsolated(t *testing.T) {
	h := newHarness(t)

	h.turn(t, "a", "两瓶可乐多少钱")
	out := h.turn(t, "b", "对")

	assert.Contains(t, out.Text, "没有待确认")
	assert.Equal(t, 2, h.registry.Len())
}

func TestRegistrySweep(t *testing.T) {
	registry := NewRegistry(10*time.Millisecond, logger.NewNop())

	registry.getOrCreate("old")
	time.Sleep(20 * time.Millisecond)
	registry.getOrCreate("fresh")

	removed := registry.Sweep()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, registry.Len())
}

func TestHistoryCapped(t *testing.T) {
	h := newHarness(t)

	manager := h.manager
	manager.config.HistoryLimit = 6

	for i := 0; i < 10; i++ {
		h.turn(t, "s1", "可乐多少钱一瓶")
	}

	entry := h.registry.getOrCreate("s1")
	assert.Len(t, entry.session.History, 6)
}
