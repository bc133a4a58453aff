package config

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds configuration for the console.
type Config struct {
	HTTPPort          string
	SessionSecret     []byte
	AdminPasswordHash string
	EncryptionKey     []byte // nil disables at-rest encryption of the stored credential

	HTTP   HTTPConfig
	Redis  RedisConfig
	OpenAI OpenAIConfig
	Ollama OllamaConfig
	Status StatusConfig
	Events EventsConfig
	Log    LogConfig
}

// HTTPConfig holds web server settings
type HTTPConfig struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration // never below MinWriteTimeout
	IdleTimeout  time.Duration
	CookieSecure bool
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// OpenAIConfig holds settings for the hosted provider
type OpenAIConfig struct {
	APIKey         string // process-wide default credential
	APIKeySource   string // env var the default credential came from
	BaseURL        string
	DefaultModel   string
	RequestTimeout time.Duration
}

// OllamaConfig holds settings for the local provider
type OllamaConfig struct {
	Host           string
	DefaultModel   string
	RequestTimeout time.Duration
}

// StatusConfig controls the status aggregator
type StatusConfig struct {
	ProbeTimeout time.Duration
	PollInterval time.Duration // period of the browser-side poller
}

// EventsConfig controls the per-provider event logs
type EventsConfig struct {
	Capacity int
}

// LogConfig controls the process logger
type LogConfig struct {
	Level      string
	FilePath   string // empty disables the rotated log file
	MaxSizeMB  int
	MaxBackups int
}

const (
	DefaultOpenAIModel = "gpt-3.5-turbo"
	DefaultOllamaModel = "llama3.3"
	DefaultOllamaHost  = "http://localhost:11434"

	writeTimeoutMargin = 10 * time.Second
)

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}

	return duration
}

func getEnvString(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

func getEnvBool(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultValue
	}
	return b
}

// firstEnv returns the first non-empty variable among keys and its name.
func firstEnv(keys ...string) (string, string) {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v, k
		}
	}
	return "", ""
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	apiKey, apiKeySource := firstEnv("OPENAI_API_KEY", "API_KEY")

	cfg := &Config{
		HTTPPort:          getEnvString("HTTP_PORT", "3000"),
		AdminPasswordHash: getEnvString("ADMIN_PASSWORD_HASH", ""),
		HTTP: HTTPConfig{
			ReadTimeout:  getEnvDuration("HTTP_READ_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvDuration("HTTP_IDLE_TIMEOUT", 120*time.Second),
			CookieSecure: getEnvBool("COOKIE_SECURE", false),
		},
		Redis: RedisConfig{
			Address:      redisAddress(),
			Password:     getEnvString("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		OpenAI: OpenAIConfig{
			APIKey:         apiKey,
			APIKeySource:   apiKeySource,
			BaseURL:        getEnvString("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			DefaultModel:   DefaultOpenAIModel,
			RequestTimeout: getEnvDuration("PROVIDER_REQUEST_TIMEOUT", 60*time.Second),
		},
		Ollama: OllamaConfig{
			Host:           ollamaHost(),
			DefaultModel:   DefaultOllamaModel,
			RequestTimeout: getEnvDuration("PROVIDER_REQUEST_TIMEOUT", 60*time.Second),
		},
		Status: StatusConfig{
			ProbeTimeout: getEnvDuration("STATUS_PROBE_TIMEOUT", 10*time.Second),
			PollInterval: getEnvDuration("STATUS_POLL_INTERVAL", 30*time.Second),
		},
		Events: EventsConfig{
			Capacity: getEnvInt("EVENT_LOG_CAPACITY", 50),
		},
		Log: LogConfig{
			Level:      getEnvString("LOG_LEVEL", "info"),
			FilePath:   getEnvString("LOG_FILE", ""),
			MaxSizeMB:  getEnvInt("LOG_FILE_MAX_SIZE_MB", 10),
			MaxBackups: getEnvInt("LOG_FILE_MAX_BACKUPS", 5),
		},
	}

	cfg.HTTP.WriteTimeout = max(getEnvDuration("HTTP_WRITE_TIMEOUT", 0), cfg.MinWriteTimeout())

	if getEnvBool("LOCAL", false) {
		cfg.Log.Level = "debug"
	}

	if cfg.Events.Capacity <= 0 {
		return nil, fmt.Errorf("EVENT_LOG_CAPACITY must be positive, got %d", cfg.Events.Capacity)
	}

	secret, err := sessionSecret()
	if err != nil {
		return nil, err
	}
	cfg.SessionSecret = secret

	if encoded := os.Getenv("ENCRYPTION_KEY"); encoded != "" {
		key, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("ENCRYPTION_KEY must be base64: %w", err)
		}
		if len(key) != 16 && len(key) != 24 && len(key) != 32 {
			return nil, fmt.Errorf("ENCRYPTION_KEY must decode to 16, 24 or 32 bytes, got %d", len(key))
		}
		cfg.EncryptionKey = key
	}

	return cfg, nil
}

// AuthEnabled reports whether the console requires an operator login.
func (c *Config) AuthEnabled() bool {
	return c.AdminPasswordHash != ""
}

// MinWriteTimeout is the longest a handler can legitimately take: the
// settings page runs two status probes and then one provider request.
func (c *Config) MinWriteTimeout() time.Duration {
	request := max(c.OpenAI.RequestTimeout, c.Ollama.RequestTimeout)
	return 2*c.Status.ProbeTimeout + request + writeTimeoutMargin
}

func redisAddress() string {
	if addr := os.Getenv("REDIS_ADDRESS"); addr != "" {
		return addr
	}
	host := getEnvString("REDIS_HOST", "localhost")
	port := getEnvString("REDIS_PORT", "6379")
	return host + ":" + port
}

// ollamaHost accepts both the server root and the older ".../api" form.
func ollamaHost() string {
	host, _ := firstEnv("OLLAMA_HOST", "OLLAMA_API_URL")
	if host == "" {
		return DefaultOllamaHost
	}
	host = strings.TrimRight(host, "/")
	host = strings.TrimSuffix(host, "/api")
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	return host
}

func sessionSecret() ([]byte, error) {
	if s := os.Getenv("SESSION_SECRET"); s != "" {
		return []byte(s), nil
	}
	// Sessions do not survive a restart without an explicit secret.
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to generate session secret: %w", err)
	}
	return []byte(hex.EncodeToString(buf)), nil
}
