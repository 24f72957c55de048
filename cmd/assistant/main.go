// cmd/assistant/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"shop-assistant/internal/ai"
	"shop-assistant/internal/common/config"
	"shop-assistant/internal/common/database"
	"shop-assistant/internal/common/logger"
	"shop-assistant/internal/common/observability"
	"shop-assistant/internal/conversation"
	"shop-assistant/internal/history"
	"shop-assistant/internal/nlu"
	"shop-assistant/internal/nlu/classifier"
	"shop-assistant/internal/nlu/extractor"
	"shop-assistant/internal/notify"
	"shop-assistant/internal/pricing"
	"shop-assistant/internal/store"
	"shop-assistant/pkg/registry"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting shop assistant...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Elasticsearch with retry (optional) ---
	var esClient *database.ElasticsearchClient
	if cfg.Database.Elasticsearch.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping()
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		zapLog.Info("Elasticsearch connected successfully")
	}

	// --- Init Redis with retry (optional) ---
	var redisClient *database.RedisClient
	if cfg.Database.Redis.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			redisClient, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return redisClient.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer redisClient.Close()
		zapLog.Info("Redis connected successfully")
	}

	// --- Stores ---
	ruleStore := store.NewRuleStore(pg.DB, log)
	transactionStore := store.NewTransactionStore(pg.DB, log)
	dictionaryStore := store.NewDictionaryStore(pg.DB, log)

	var catalog *store.CatalogStore
	if esClient != nil {
		catalog = store.NewCatalogStore(pg.DB, esClient.Client, cfg.Database.Elasticsearch.Index, log)
	} else {
		catalog = store.NewCatalogStore(pg.DB, nil, "", log)
	}

	// --- NLU pipeline ---
	defs := classifier.DefaultDefinitions()
	if cfg.NLU.IntentRegistryPath != "" {
		defs, err = registry.LoadRegistry(cfg.NLU.IntentRegistryPath)
		if err != nil {
			zapLog.Fatal("intent registry load failed", zap.Error(err))
		}
		zapLog.Info("intent registry loaded", zap.String("path", cfg.NLU.IntentRegistryPath))
	}

	ext := extractor.New(nil)
	refreshDictionary(ctx, dictionaryStore, ext, log)

	provider := buildAIProvider(cfg.AI, log)
	if provider != nil {
		zapLog.Info("AI provider configured", zap.String("provider", provider.Name()))
	} else {
		zapLog.Info("AI provider disabled, running rule-only")
	}

	orchestrator := nlu.NewOrchestrator(classifier.New(defs), ext, provider, cfg.NLU, cfg.AI, log)
	orchestrator.SetObserver(obs)

	// --- Pricing & history ---
	var distCache history.Cache
	if redisClient != nil {
		distCache = history.NewRedisCache(redisClient, config.GetSeconds(cfg.History.CacheTTL), log)
	} else {
		distCache = history.NewMemoryCache(config.GetSeconds(cfg.History.CacheTTL))
	}
	learner := history.NewLearner(transactionStore, distCache, cfg.History, log)

	engine := pricing.NewEngine(catalog, learner, ruleStore, cfg.Pricing, log)

	// --- Notifications ---
	notifier, err := notify.New(ctx, cfg.Notifications, log)
	if err != nil {
		zapLog.Fatal("notifier init failed", zap.Error(err))
	}

	// --- Conversation manager ---
	sessions := conversation.NewRegistry(config.GetSeconds(cfg.Session.Timeout), log)
	sessions.StartSweeper(ctx, config.GetSeconds(cfg.Session.SweepInterval))

	manager := conversation.NewManager(sessions, orchestrator, engine, catalog,
		transactionStore, learner, notifier, cfg.Session, log)

	// --- Background refresh tickers ---
	go func() {
		ticker := time.NewTicker(config.GetSeconds(cfg.Dictionary.RefreshInterval))
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				refreshDictionary(ctx, dictionaryStore, ext, log)
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(config.GetSeconds(cfg.Pricing.RuleCacheTTL))
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				engine.RefreshRules(ctx)
			}
		}
	}()

	// --- Conversation API ---
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("/api/v1/converse", converseHandler(manager, obs, log))

	apiServer := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      apiMux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	go func() {
		zapLog.Info("Conversation API listening", zap.String("address", cfg.Server.Address))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("API server failed", zap.Error(err))
		}
	}()

	// --- Health & Metrics Server ---
	metricsMux := http.NewServeMux()
	metricsMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})
	metricsMux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := pg.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "not ready", "error": err.Error()})
			return
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	})
	metricsMux.Handle("/metrics", promhttp.Handler())

	metricsServer := &http.Server{Addr: cfg.Server.MetricsAddress, Handler: metricsMux}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Server.MetricsAddress))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	<-ctx.Done()
	zapLog.Info("Shutdown signal received, stopping...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("API server shutdown failed", zap.Error(err))
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Metrics server shutdown failed", zap.Error(err))
	}

	zapLog.Info("Shop assistant stopped")
}

// buildAIProvider picks the configured backend, or nil when disabled.
func buildAIProvider(cfg config.AIConfig, log logger.Logger) ai.Provider {
	switch cfg.Provider {
	case "aliyun":
		return ai.NewAliyunProvider(ai.AliyunConfig{
			BaseURL:    cfg.Aliyun.BaseURL,
			APIKey:     cfg.Aliyun.APIKey,
			Model:      cfg.Aliyun.Model,
			Timeout:    config.GetDuration(cfg.Timeout),
			MaxRetries: 2,
		}, log)
	case "openai":
		return ai.NewOpenAIProvider(ai.OpenAIConfig{
			BaseURL:    cfg.OpenAI.BaseURL,
			APIKey:     cfg.OpenAI.APIKey,
			Model:      cfg.OpenAI.Model,
			Timeout:    config.GetDuration(cfg.Timeout),
			MaxRetries: 2,
		}, log)
	default:
		return nil
	}
}

// refreshDictionary loads the latest names and swaps the extractor snapshot.
func refreshDictionary(ctx context.Context, dict *store.DictionaryStore, ext *extractor.Extractor, log logger.Logger) {
	products, partners, err := dict.LoadNames(ctx)
	if err != nil {
		log.Warn("dictionary refresh failed, keeping current snapshot", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	version := time.Now().UTC().Format(time.RFC3339)
	ext.Refresh(extractor.NewSnapshot(version, products, partners))
}

type converseRequest struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
}

// converseHandler is the single conversation endpoint: one utterance in, one
// assistant reply out.
func converseHandler(manager *conversation.Manager, obs *observability.Observability, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var req converseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" || req.Text == "" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "sessionId and text are required"})
			return
		}

		started := time.Now()
		output, err := manager.ProcessInput(r.Context(), conversation.Input{
			SessionID: req.SessionID,
			Text:      req.Text,
		})
		if err != nil {
			log.Error("turn failed", map[string]interface{}{
				"sessionId": req.SessionID,
				"error":     err.Error(),
			})
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"error": "internal error"})
			return
		}

		obs.RecordTurn(r.Context(), string(output.State))
		obs.RecordTurnDuration(r.Context(), time.Since(started), string(output.State))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(output)
	}
}
