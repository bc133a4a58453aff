package config

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"HTTP_PORT", "OPENAI_API_KEY", "API_KEY", "OLLAMA_HOST", "OLLAMA_API_URL",
		"REDIS_ADDRESS", "REDIS_HOST", "REDIS_PORT", "EVENT_LOG_CAPACITY",
		"ENCRYPTION_KEY", "SESSION_SECRET", "ADMIN_PASSWORD_HASH", "LOCAL", "LOG_LEVEL", "STATUS_PROBE_TIMEOUT",
		"PROVIDER_REQUEST_TIMEOUT", "HTTP_WRITE_TIMEOUT", "COOKIE_SECURE",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.HTTPPort)
	assert.Equal(t, "localhost:6379", cfg.Redis.Address)
	assert.Equal(t, DefaultOllamaHost, cfg.Ollama.Host)
	assert.Equal(t, DefaultOpenAIModel, cfg.OpenAI.DefaultModel)
	assert.Equal(t, DefaultOllamaModel, cfg.Ollama.DefaultModel)
	assert.Equal(t, 50, cfg.Events.Capacity)
	assert.Equal(t, 30*time.Second, cfg.Status.PollInterval)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.OpenAI.APIKey)
	assert.Nil(t, cfg.EncryptionKey)
	assert.NotEmpty(t, cfg.SessionSecret)
	assert.False(t, cfg.AuthEnabled())
	assert.False(t, cfg.HTTP.CookieSecure)
	assert.Equal(t, 30*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, 90*time.Second, cfg.HTTP.WriteTimeout)
}

func TestLoad_APIKeyFallback(t *testing.T) {
	tests := []struct {
		name       string
		openaiKey  string
		apiKey     string
		wantKey    string
		wantSource string
	}{
		{"openai var wins", "sk-openai", "sk-generic", "sk-openai", "OPENAI_API_KEY"},
		{"generic var used", "", "sk-generic", "sk-generic", "API_KEY"},
		{"none", "", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("OPENAI_API_KEY", tt.openaiKey)
			t.Setenv("API_KEY", tt.apiKey)

			cfg, err := Load()
			require.NoError(t, err)
			assert.Equal(t, tt.wantKey, cfg.OpenAI.APIKey)
			assert.Equal(t, tt.wantSource, cfg.OpenAI.APIKeySource)
		})
	}
}

func TestLoad_OllamaHost(t *testing.T) {
	tests := []struct {
		name string
		env  string
		val  string
		want string
	}{
		{"host var", "OLLAMA_HOST", "http://gpu-box:11434", "http://gpu-box:11434"},
		{"legacy api url", "OLLAMA_API_URL", "http://ollama:11434/api", "http://ollama:11434"},
		{"trailing slash", "OLLAMA_HOST", "http://ollama:11434/", "http://ollama:11434"},
		{"no scheme", "OLLAMA_HOST", "127.0.0.1:11434", "http://127.0.0.1:11434"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.env, tt.val)

			cfg, err := Load()
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Ollama.Host)
		})
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("STATUS_PROBE_TIMEOUT", "soon")
	t.Setenv("REDIS_HOST", "cache")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.Status.ProbeTimeout)
	assert.Equal(t, "cache:6379", cfg.Redis.Address)
}

func TestLoad_WriteTimeoutCoversSlowestHandler(t *testing.T) {
	tests := []struct {
		name           string
		requestTimeout string
		probeTimeout   string
		writeTimeout   string
		want           time.Duration
	}{
		{"defaults", "", "", "", 90 * time.Second},
		{"slow provider", "120s", "", "", 150 * time.Second},
		{"override below minimum is raised", "", "", "5s", 90 * time.Second},
		{"override above minimum is kept", "", "2s", "5m", 5 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("PROVIDER_REQUEST_TIMEOUT", tt.requestTimeout)
			t.Setenv("STATUS_PROBE_TIMEOUT", tt.probeTimeout)
			t.Setenv("HTTP_WRITE_TIMEOUT", tt.writeTimeout)

			cfg, err := Load()
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.HTTP.WriteTimeout)

			slowest := 2*cfg.Status.ProbeTimeout + max(cfg.OpenAI.RequestTimeout, cfg.Ollama.RequestTimeout)
			assert.Greater(t, cfg.HTTP.WriteTimeout, slowest)
		})
	}
}

func TestLoad_CookieSecure(t *testing.T) {
	clearEnv(t)
	t.Setenv("COOKIE_SECURE", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.HTTP.CookieSecure)
}

func TestLoad_LocalForcesDebug(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOCAL", "true")
	t.Setenv("LOG_LEVEL", "error")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("non-positive capacity", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("EVENT_LOG_CAPACITY", "0")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("encryption key not base64", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ENCRYPTION_KEY", "not base64!")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("encryption key wrong size", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ENCRYPTION_KEY", base64.StdEncoding.EncodeToString([]byte("short")))
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("valid encryption key", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ENCRYPTION_KEY", base64.StdEncoding.EncodeToString(make([]byte, 32)))
		cfg, err := Load()
		require.NoError(t, err)
		assert.Len(t, cfg.EncryptionKey, 32)
	})
}
