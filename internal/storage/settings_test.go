package storage

import (
	"context"
	"strings"
	"testing"

	"llm_console/internal/logging"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDefaults = Settings{
	Provider:    "openai",
	OpenAIModel: "gpt-3.5-turbo",
	OllamaModel: "llama3.3",
}

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr:       mr.Addr(),
		MaxRetries: -1,
	})

	return client, mr
}

func newTestStore(t *testing.T, enc *Encryption) (*SettingsStore, *miniredis.Miniredis) {
	client, mr := setupTestRedis(t)
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return NewSettingsStore(client, enc, testDefaults, logging.Discard()), mr
}

func TestSettingsStore_GetSet(t *testing.T) {
	store, mr := newTestStore(t, nil)
	ctx := context.Background()

	_, ok := store.Get(ctx, KeyOpenAIModel)
	assert.False(t, ok, "missing key is absent")

	require.NoError(t, store.Set(ctx, KeyOpenAIModel, "gpt-4o"))
	val, ok := store.Get(ctx, KeyOpenAIModel)
	assert.True(t, ok)
	assert.Equal(t, "gpt-4o", val)

	raw, err := mr.Get(KeyOpenAIModel)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", raw)
}

func TestSettingsStore_Unreachable(t *testing.T) {
	store, mr := newTestStore(t, nil)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, KeyProvider, "ollama"))

	mr.Close()

	t.Run("get degrades to absent", func(t *testing.T) {
		_, ok := store.Get(ctx, KeyProvider)
		assert.False(t, ok)
	})

	t.Run("set returns the error", func(t *testing.T) {
		err := store.Set(ctx, KeyProvider, "openai")
		require.Error(t, err)
		assert.Contains(t, err.Error(), KeyProvider)
	})

	t.Run("ping reports false", func(t *testing.T) {
		assert.False(t, store.Ping(ctx))
	})

	t.Run("load falls back to defaults", func(t *testing.T) {
		assert.Equal(t, testDefaults, store.Load(ctx))
	})
}

func TestSettingsStore_Ping(t *testing.T) {
	store, _ := newTestStore(t, nil)
	assert.True(t, store.Ping(context.Background()))
}

func TestSettingsStore_LoadSave(t *testing.T) {
	store, mr := newTestStore(t, nil)
	ctx := context.Background()

	assert.Equal(t, testDefaults, store.Load(ctx))
	assert.Equal(t, "openai", store.CurrentProvider(ctx))

	want := Settings{Provider: "ollama", OpenAIModel: "gpt-4", OllamaModel: "mistral"}
	require.NoError(t, store.Save(ctx, want))
	assert.Equal(t, want, store.Load(ctx))
	assert.Equal(t, "ollama", store.CurrentProvider(ctx))

	// blank entries behave like missing ones
	mr.Set(KeyOllamaModel, "")
	assert.Equal(t, "llama3.3", store.Load(ctx).OllamaModel)
}

func TestSettingsStore_Credential(t *testing.T) {
	t.Run("plaintext without encryption", func(t *testing.T) {
		store, mr := newTestStore(t, nil)
		ctx := context.Background()

		_, ok := store.GetCredential(ctx)
		assert.False(t, ok)

		require.NoError(t, store.SetCredential(ctx, "sk-plain"))
		raw, _ := mr.Get(KeyOpenAIAPIKey)
		assert.Equal(t, "sk-plain", raw)

		val, ok := store.GetCredential(ctx)
		assert.True(t, ok)
		assert.Equal(t, "sk-plain", val)
	})

	t.Run("sealed at rest", func(t *testing.T) {
		enc, err := NewEncryption(testKey())
		require.NoError(t, err)
		store, mr := newTestStore(t, enc)
		ctx := context.Background()

		require.NoError(t, store.SetCredential(ctx, "sk-secret"))
		raw, _ := mr.Get(KeyOpenAIAPIKey)
		assert.True(t, strings.HasPrefix(raw, "enc:"))

		val, ok := store.GetCredential(ctx)
		assert.True(t, ok)
		assert.Equal(t, "sk-secret", val)
	})

	t.Run("legacy plaintext readable with encryption on", func(t *testing.T) {
		enc, err := NewEncryption(testKey())
		require.NoError(t, err)
		store, mr := newTestStore(t, enc)
		mr.Set(KeyOpenAIAPIKey, "sk-legacy")

		val, ok := store.GetCredential(context.Background())
		assert.True(t, ok)
		assert.Equal(t, "sk-legacy", val)
	})

	t.Run("cleared value stays empty", func(t *testing.T) {
		enc, err := NewEncryption(testKey())
		require.NoError(t, err)
		store, mr := newTestStore(t, enc)
		ctx := context.Background()

		require.NoError(t, store.SetCredential(ctx, ""))
		raw, _ := mr.Get(KeyOpenAIAPIKey)
		assert.Equal(t, "", raw)

		val, ok := store.GetCredential(ctx)
		assert.True(t, ok)
		assert.Empty(t, val)
	})

	t.Run("undecryptable value is absent", func(t *testing.T) {
		other, err := NewEncryption(make([]byte, 32))
		require.NoError(t, err)
		sealed, err := other.Seal("sk-other")
		require.NoError(t, err)

		enc, err := NewEncryption(testKey())
		require.NoError(t, err)
		store, mr := newTestStore(t, enc)
		mr.Set(KeyOpenAIAPIKey, sealed)

		_, ok := store.GetCredential(context.Background())
		assert.False(t, ok)
	})

	t.Run("sealed value without a key is absent", func(t *testing.T) {
		store, mr := newTestStore(t, nil)
		mr.Set(KeyOpenAIAPIKey, "enc:AAAA")

		_, ok := store.GetCredential(context.Background())
		assert.False(t, ok)
	})
}

func TestRedisClient_Health(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cfg := DefaultRedisConfig()
	cfg.Address = mr.Addr()
	rc := NewRedisClient(cfg, logging.Discard())
	defer rc.Close()

	ctx := context.Background()
	assert.NoError(t, rc.Ping(ctx))
	assert.NoError(t, rc.Health(ctx))
	assert.NotNil(t, rc.Client())
}

func TestRedisClient_UnreachableAtStartup(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	cfg := DefaultRedisConfig()
	cfg.Address = addr
	rc := NewRedisClient(cfg, logging.Discard())
	defer rc.Close()

	assert.Error(t, rc.Ping(context.Background()))
}
