package storage

import (
	"context"
	"errors"
	"fmt"

	"llm_console/internal/logging"

	"github.com/redis/go-redis/v9"
)

// Keys under which the console keeps its settings. Each is an independent
// string entry; nothing ties them together transactionally.
const (
	KeyProvider     = "settings:llm:provider"
	KeyOpenAIModel  = "settings:openai:model"
	KeyOllamaModel  = "settings:ollama:model"
	KeyOpenAIAPIKey = "settings:openai:api_key"
)

// Settings is the provider configuration as read from the store.
type Settings struct {
	Provider    string
	OpenAIModel string
	OllamaModel string
}

// SettingsStore is the only path through which configuration and the hosted
// provider's credential are persisted and retrieved.
type SettingsStore struct {
	rdb      redis.Cmdable
	enc      *Encryption // nil stores the credential as plaintext
	defaults Settings
	logger   *logging.Logger
}

// NewSettingsStore creates a settings store over rdb. defaults fills any
// missing entry on Load.
func NewSettingsStore(rdb redis.Cmdable, enc *Encryption, defaults Settings, logger *logging.Logger) *SettingsStore {
	return &SettingsStore{
		rdb:      rdb,
		enc:      enc,
		defaults: defaults,
		logger:   logger,
	}
}

// Get returns the value stored under key. Any failure, including a missing
// key, is reported as absent; non-miss failures are logged.
func (s *SettingsStore) Get(ctx context.Context, key string) (string, bool) {
	val, err := s.rdb.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Error("redis get failed", "key", key, "error", err)
		}
		return "", false
	}
	return val, true
}

// Set writes value under key. Unlike Get, failures are returned.
func (s *SettingsStore) Set(ctx context.Context, key, value string) error {
	if err := s.rdb.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Ping reports whether the store answers.
func (s *SettingsStore) Ping(ctx context.Context) bool {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		s.logger.Error("redis ping failed", "error", err)
		return false
	}
	return true
}

// GetCredential returns the stored API key. An empty stored value is the
// explicit "cleared" marker and comes back as ("", true). A sealed value
// that cannot be opened is logged and treated as absent.
func (s *SettingsStore) GetCredential(ctx context.Context) (string, bool) {
	val, ok := s.Get(ctx, KeyOpenAIAPIKey)
	if !ok || val == "" || !IsSealed(val) {
		return val, ok
	}

	plain, err := s.enc.Open(val)
	if err != nil {
		s.logger.Error("stored API key could not be decrypted", "error", err)
		return "", false
	}
	return plain, true
}

// SetCredential stores the API key, sealed when encryption is configured.
// The empty string is written verbatim.
func (s *SettingsStore) SetCredential(ctx context.Context, value string) error {
	if value != "" && s.enc != nil {
		sealed, err := s.enc.Seal(value)
		if err != nil {
			return fmt.Errorf("failed to encrypt API key: %w", err)
		}
		value = sealed
	}
	return s.Set(ctx, KeyOpenAIAPIKey, value)
}

// Load reads the provider selection and both model names, filling blanks
// from the defaults.
func (s *SettingsStore) Load(ctx context.Context) Settings {
	return Settings{
		Provider:    s.getOr(ctx, KeyProvider, s.defaults.Provider),
		OpenAIModel: s.getOr(ctx, KeyOpenAIModel, s.defaults.OpenAIModel),
		OllamaModel: s.getOr(ctx, KeyOllamaModel, s.defaults.OllamaModel),
	}
}

// Save writes the provider selection and model names one key at a time,
// stopping at the first failure. Earlier writes are not rolled back.
func (s *SettingsStore) Save(ctx context.Context, settings Settings) error {
	entries := []struct{ key, value string }{
		{KeyProvider, settings.Provider},
		{KeyOpenAIModel, settings.OpenAIModel},
		{KeyOllamaModel, settings.OllamaModel},
	}
	for _, e := range entries {
		if err := s.Set(ctx, e.key, e.value); err != nil {
			return err
		}
	}
	return nil
}

// CurrentProvider returns the selected provider identifier.
func (s *SettingsStore) CurrentProvider(ctx context.Context) string {
	return s.getOr(ctx, KeyProvider, s.defaults.Provider)
}

// Defaults returns the values used for missing entries.
func (s *SettingsStore) Defaults() Settings {
	return s.defaults
}

func (s *SettingsStore) getOr(ctx context.Context, key, fallback string) string {
	if val, ok := s.Get(ctx, key); ok && val != "" {
		return val
	}
	return fallback
}
