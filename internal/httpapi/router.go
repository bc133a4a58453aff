package httpapi

import (
	"fmt"
	"net/http"

	"llm_console/internal/auth"
	"llm_console/internal/config"
	"llm_console/internal/events"
	"llm_console/internal/logging"
	"llm_console/internal/metrics"
	"llm_console/internal/middleware"
	"llm_console/internal/providers"
	"llm_console/internal/status"
	"llm_console/internal/storage"
	"llm_console/internal/web"

	"github.com/prometheus/client_golang/prometheus"
)

// Dependencies aggregates all services the HTTP layer needs.
type Dependencies struct {
	Config      *config.Config
	Logger      *logging.Logger
	Redis       *storage.RedisClient
	Settings    *storage.SettingsStore
	Credentials *providers.CredentialResolver
	OpenAI      *providers.OpenAIClient
	Ollama      *providers.OllamaClient
	Status      *status.Aggregator
	Metrics     metrics.Metrics
	Sessions    *middleware.Sessions
	Flash       *FlashStore
	Pages       *web.Renderer
}

// NewDependencies wires the store, provider clients and aggregator from cfg.
func NewDependencies(cfg *config.Config, logger *logging.Logger) (*Dependencies, error) {
	redisClient := storage.NewRedisClient(storage.RedisConfig{
		Address:      cfg.Redis.Address,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	}, logger.With("redis"))

	var encryption *storage.Encryption
	if cfg.EncryptionKey != nil {
		enc, err := storage.NewEncryption(cfg.EncryptionKey)
		if err != nil {
			redisClient.Close()
			return nil, fmt.Errorf("failed to initialize encryption: %w", err)
		}
		encryption = enc
	} else {
		logger.Warn("ENCRYPTION_KEY not set, the stored API key is kept in plaintext")
	}

	settings := storage.NewSettingsStore(redisClient.Client(), encryption, storage.Settings{
		Provider:    string(providers.OpenAI),
		OpenAIModel: cfg.OpenAI.DefaultModel,
		OllamaModel: cfg.Ollama.DefaultModel,
	}, logger.With("settings"))

	m, err := metrics.NewPrometheusMetrics(prometheus.NewRegistry())
	if err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	openaiEvents := newEventLog(cfg.Events.Capacity, providers.OpenAI, m)
	ollamaEvents := newEventLog(cfg.Events.Capacity, providers.Ollama, m)

	creds := providers.NewCredentialResolver(settings, cfg.OpenAI.APIKey, logger.With("openai"))
	creds.SetFallbackVar(cfg.OpenAI.APIKeySource)
	openaiClient := providers.NewOpenAIClient(providers.OpenAIConfig{
		BaseURL:      cfg.OpenAI.BaseURL,
		DefaultModel: cfg.OpenAI.DefaultModel,
		Timeout:      cfg.OpenAI.RequestTimeout,
	}, creds, openaiEvents, logger.With("openai"))

	ollamaClient, err := providers.NewOllamaClient(providers.OllamaConfig{
		Host:         cfg.Ollama.Host,
		DefaultModel: cfg.Ollama.DefaultModel,
		Timeout:      cfg.Ollama.RequestTimeout,
	}, ollamaEvents, logger.With("ollama"))
	if err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("failed to initialize Ollama client: %w", err)
	}

	aggregator := status.NewAggregator(settings, openaiClient, ollamaClient, m, status.Config{
		ProbeTimeout: cfg.Status.ProbeTimeout,
	}, logger.With("status"))

	pages, err := web.NewRenderer()
	if err != nil {
		redisClient.Close()
		return nil, err
	}

	signer := auth.NewSigner(cfg.SessionSecret, "llm-console")
	sessions := middleware.NewSessions(signer, cfg.AuthEnabled())
	sessions.SetSecure(cfg.HTTP.CookieSecure)

	return &Dependencies{
		Config:      cfg,
		Logger:      logger,
		Redis:       redisClient,
		Settings:    settings,
		Credentials: creds,
		OpenAI:      openaiClient,
		Ollama:      ollamaClient,
		Status:      aggregator,
		Metrics:     m,
		Sessions:    sessions,
		Flash:       NewFlashStore(signer),
		Pages:       pages,
	}, nil
}

// NewRouter creates an HTTP handler with all dependencies wired up
func NewRouter(cfg *config.Config, logger *logging.Logger) (http.Handler, *Dependencies, error) {
	deps, err := NewDependencies(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	mux := http.NewServeMux()
	registerRoutes(mux, deps)

	handler := middleware.Chain(mux,
		middleware.Recover(logger.With("http")),
		middleware.RequestLogger(logger.With("http")),
	)
	return handler, deps, nil
}

// Close releases the store connection.
func (d *Dependencies) Close() error {
	return d.Redis.Close()
}

func newEventLog(capacity int, provider providers.Type, m metrics.Metrics) *events.Log {
	log := events.NewLog(capacity)
	log.SetObserver(func(e events.Event) {
		m.RecordEvent(string(provider), string(e.Type))
	})
	return log
}

// handleHealth reports OK only while the settings store answers a write and
// read round trip.
func (d *Dependencies) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := d.Redis.Health(r.Context()); err != nil {
		d.Logger.Warn("health check failed", "error", err)
		http.Error(w, "Redis unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func registerRoutes(mux *http.ServeMux, d *Dependencies) {
	protect := d.Sessions.RequireOperator

	// Health check endpoint - public
	mux.HandleFunc("GET /health", d.handleHealth)

	// Metrics endpoint - public
	mux.Handle("GET /metrics", d.Metrics.HTTPHandler())
	mux.Handle("GET /static/", http.StripPrefix("/static/", web.StaticHandler()))

	mux.HandleFunc("GET /login", d.handleLoginPage)
	mux.HandleFunc("POST /login", d.handleLogin)
	mux.HandleFunc("POST /logout", d.handleLogout)

	// Status carries only reachability flags; the poller runs on every page.
	mux.HandleFunc("GET /api/status", d.handleStatus)
	mux.Handle("GET /api/llm/events", protect(http.HandlerFunc(d.handleEvents)))
	mux.Handle("GET /api/openai/events", protect(http.HandlerFunc(d.handleOpenAIEvents)))
	mux.Handle("GET /api/ollama/models", protect(http.HandlerFunc(d.handleOllamaModels)))

	mux.Handle("GET /api-settings", protect(http.HandlerFunc(d.handleSettingsPage)))
	mux.Handle("POST /api-settings", protect(http.HandlerFunc(d.handleSaveSettings)))

	mux.Handle("GET /debug/openai-test", protect(http.HandlerFunc(d.handleOpenAITestPage)))
	mux.Handle("POST /debug/openai-test", protect(http.HandlerFunc(d.handleOpenAITest)))
	mux.Handle("GET /debug/ollama-test", protect(http.HandlerFunc(d.handleOllamaTestPage)))
	mux.Handle("POST /debug/ollama-test", protect(http.HandlerFunc(d.handleOllamaTest)))

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/api-settings", http.StatusSeeOther)
	})
}
