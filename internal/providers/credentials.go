package providers

import (
	"context"
	"sync/atomic"

	"llm_console/internal/logging"
)

// CredentialStore is the part of the settings store the resolver reads.
type CredentialStore interface {
	GetCredential(ctx context.Context) (string, bool)
}

// Source says where a resolved credential came from.
type Source string

const (
	SourceStore       Source = "store"
	SourceEnvironment Source = "environment"
	SourceNone        Source = "none"
)

// CredentialResolver picks the hosted provider's API key: a non-empty stored
// value wins, then the process-wide default, then the empty string.
type CredentialResolver struct {
	store       CredentialStore
	fallback    string
	fallbackVar string
	logger      *logging.Logger
	logged   atomic.Bool
}

// NewCredentialResolver creates a resolver. store may be nil.
func NewCredentialResolver(store CredentialStore, fallback string, logger *logging.Logger) *CredentialResolver {
	return &CredentialResolver{
		store:    store,
		fallback: fallback,
		logger:   logger,
	}
}

// SetFallbackVar names the environment variable the default key came from,
// for the one-time source log line.
func (r *CredentialResolver) SetFallbackVar(name string) {
	r.fallbackVar = name
}

// Resolve never fails; an unreachable store falls through to the default.
func (r *CredentialResolver) Resolve(ctx context.Context) (string, Source) {
	if r.store != nil {
		if key, ok := r.store.GetCredential(ctx); ok && key != "" {
			r.announce(SourceStore)
			return key, SourceStore
		}
	}

	if r.fallback != "" {
		r.announce(SourceEnvironment)
		return r.fallback, SourceEnvironment
	}

	r.logger.Warn("OpenAI API key not found in settings store or environment")
	return "", SourceNone
}

// HasFallback reports whether a process-wide default key is configured.
func (r *CredentialResolver) HasFallback() bool {
	return r.fallback != ""
}

func (r *CredentialResolver) announce(src Source) {
	if !r.logged.CompareAndSwap(false, true) {
		return
	}
	if src == SourceEnvironment && r.fallbackVar != "" {
		r.logger.Info("loaded OpenAI API key", "source", src, "variable", r.fallbackVar)
		return
	}
	r.logger.Info("loaded OpenAI API key", "source", src)
}
