// Package status combines settings store reachability with cached or fresh
// provider probes into the payload served at /api/status.
package status

import (
	"context"
	"fmt"
	"sync"
	"time"

	"llm_console/internal/logging"
	"llm_console/internal/metrics"
	"llm_console/internal/providers"

	"golang.org/x/sync/singleflight"
)

// Prober is a provider reachability check.
type Prober interface {
	CheckStatus(ctx context.Context) bool
}

// LocalProber is the local provider, which can also list its models.
type LocalProber interface {
	Prober
	ListModels(ctx context.Context) []providers.ModelInfo
}

// Store is the part of the settings store the aggregator needs.
type Store interface {
	Ping(ctx context.Context) bool
	CurrentProvider(ctx context.Context) string
}

// Record is the cached outcome of the last probe. LastChecked is nil until
// the first probe.
type Record struct {
	Accessible  bool       `json:"accessible"`
	LastChecked *time.Time `json:"lastChecked"`
}

// Checked reports whether the provider was ever probed.
func (r Record) Checked() bool {
	return r.LastChecked != nil
}

// Scope selects which providers a status request covers.
type Scope string

const (
	ScopeAll    Scope = "all"
	ScopeOpenAI Scope = Scope(providers.OpenAI)
	ScopeOllama Scope = Scope(providers.Ollama)

	// ScopeNone covers no provider; the payload carries only the store
	// and the current selection.
	ScopeNone Scope = "none"
)

// ParseScope accepts "all" (or empty) and any provider identifier or alias.
func ParseScope(s string) (Scope, error) {
	if s == "" || s == string(ScopeAll) {
		return ScopeAll, nil
	}
	t, err := providers.ParseType(s)
	if err != nil {
		return "", err
	}
	return Scope(t), nil
}

func (s Scope) includes(t providers.Type) bool {
	return s == ScopeAll || s == Scope(t)
}

// ProviderStatus is one provider's section of the payload.
type ProviderStatus struct {
	Accessible  bool                  `json:"accessible"`
	LastChecked *time.Time            `json:"lastChecked"`
	Models      []providers.ModelInfo `json:"models,omitempty"`
}

// Payload is the combined status view.
type Payload struct {
	Timestamp       time.Time       `json:"timestamp"`
	Redis           bool            `json:"redis"`
	CurrentProvider string          `json:"currentProvider"`
	OpenAI          *ProviderStatus `json:"openai,omitempty"`
	Ollama          *ProviderStatus `json:"ollama,omitempty"`
}

// Config controls probe behaviour.
type Config struct {
	ProbeTimeout time.Duration
}

// Aggregator owns the per-provider status records.
type Aggregator struct {
	store   Store
	openai  Prober
	ollama  LocalProber
	metrics metrics.Metrics
	logger  *logging.Logger
	timeout time.Duration

	mu      sync.Mutex
	records map[providers.Type]Record
	group   singleflight.Group

	now func() time.Time
}

// NewAggregator wires the aggregator. m may be nil.
func NewAggregator(store Store, openai Prober, ollama LocalProber, m metrics.Metrics, cfg Config, logger *logging.Logger) *Aggregator {
	if m == nil {
		m = metrics.NewNoopMetrics()
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	return &Aggregator{
		store:   store,
		openai:  openai,
		ollama:  ollama,
		metrics: m,
		logger:  logger,
		timeout: cfg.ProbeTimeout,
		records: make(map[providers.Type]Record),
		now:     time.Now,
	}
}

// GetStatus builds the status payload.
//
// The store is pinged on every call. The hosted provider is probed only when
// forceCheck is set; otherwise its cached record is returned however old it
// is. The local provider is probed when forceCheck is set or when it has
// never been probed. When scope is the local provider alone and it is
// reachable, its model list is attached.
func (a *Aggregator) GetStatus(ctx context.Context, forceCheck bool, scope Scope) Payload {
	p := Payload{
		Timestamp:       a.now().UTC(),
		Redis:           a.pingStore(ctx),
		CurrentProvider: a.store.CurrentProvider(ctx),
	}

	if scope.includes(providers.OpenAI) {
		if forceCheck {
			a.Probe(ctx, providers.OpenAI)
		}
		rec := a.Record(providers.OpenAI)
		p.OpenAI = &ProviderStatus{Accessible: rec.Accessible, LastChecked: rec.LastChecked}
	}

	if scope.includes(providers.Ollama) {
		if forceCheck || !a.Record(providers.Ollama).Checked() {
			a.Probe(ctx, providers.Ollama)
		}
		rec := a.Record(providers.Ollama)
		p.Ollama = &ProviderStatus{Accessible: rec.Accessible, LastChecked: rec.LastChecked}

		if scope == ScopeOllama && rec.Accessible && a.ollama != nil {
			p.Ollama.Models = a.ollama.ListModels(ctx)
		}
	}

	return p
}

// Record returns a snapshot of the cached status for t.
func (a *Aggregator) Record(t providers.Type) Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.records[t]
}

// Probe checks t now and updates its record. Concurrent probes of the same
// provider share one network call.
func (a *Aggregator) Probe(ctx context.Context, t providers.Type) bool {
	v, _, _ := a.group.Do(string(t), func() (any, error) {
		return a.probe(ctx, t), nil
	})
	return v.(bool)
}

func (a *Aggregator) probe(ctx context.Context, t providers.Type) (ok bool) {
	prober := a.prober(t)
	if prober == nil {
		return false
	}

	// The record must reflect the backend, not the caller going away.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	defer cancel()

	start := a.now()
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("status probe panicked", "provider", t, "panic", fmt.Sprint(r))
			ok = a.Record(t).Accessible
		}
	}()

	ok = prober.CheckStatus(ctx)
	checked := a.now().UTC()
	a.metrics.ObserveProbe(string(t), ok, checked.Sub(start))

	a.mu.Lock()
	a.records[t] = Record{Accessible: ok, LastChecked: &checked}
	a.mu.Unlock()

	a.logger.Debug("provider probed", "provider", t, "accessible", ok)
	return ok
}

func (a *Aggregator) prober(t providers.Type) Prober {
	switch t {
	case providers.OpenAI:
		if a.openai != nil {
			return a.openai
		}
	case providers.Ollama:
		if a.ollama != nil {
			return a.ollama
		}
	}
	return nil
}

func (a *Aggregator) pingStore(ctx context.Context) bool {
	start := a.now()
	ok := a.store.Ping(ctx)
	a.metrics.ObserveProbe("redis", ok, a.now().Sub(start))
	return ok
}
