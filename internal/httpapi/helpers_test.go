package httpapi

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"llm_console/internal/config"
	"llm_console/internal/logging"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

const (
	testValidKey = "sk-test-valid-1234567890"
	ollamaTags   = `{"models":[{"name":"llama3.3:latest","model":"llama3.3:latest","size":42,
		"details":{"family":"llama","parameter_size":"70B"}}]}`
)

// backends fakes the hosted API and a local Ollama server.
type backends struct {
	openai      *httptest.Server
	ollama      *httptest.Server
	modelHits   atomic.Int32
	tagHits     atomic.Int32
	ollamaDown  atomic.Bool
	chatReply   atomic.Value // string
	generateOut string
}

func newBackends(t *testing.T) *backends {
	t.Helper()
	b := &backends{generateOut: "Hello from the local model"}
	b.chatReply.Store("Hello from the cloud")

	b.openai = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("Authorization") != "Bearer "+testValidKey {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`))
			return
		}
		switch r.URL.Path {
		case "/models":
			b.modelHits.Add(1)
			w.Write([]byte(`{"object":"list","data":[{"id":"gpt-3.5-turbo","object":"model","created":1,"owned_by":"openai"}]}`))
		case "/chat/completions":
			w.Write([]byte(`{"id":"chatcmpl-1","object":"chat.completion","created":1700000000,"model":"gpt-3.5-turbo",
				"choices":[{"index":0,"message":{"role":"assistant","content":"` + b.chatReply.Load().(string) + `"},"finish_reason":"stop"}],
				"usage":{"prompt_tokens":5,"completion_tokens":4,"total_tokens":9}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(b.openai.Close)

	b.ollama = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if b.ollamaDown.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"unavailable"}`))
			return
		}
		switch r.URL.Path {
		case "/api/tags":
			b.tagHits.Add(1)
			w.Write([]byte(ollamaTags))
		case "/api/generate":
			w.Write([]byte(`{"model":"llama3.3","response":"` + b.generateOut + `","done":true,"prompt_eval_count":3,"eval_count":6}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(b.ollama.Close)

	return b
}

type testEnv struct {
	deps     *Dependencies
	handler  http.Handler
	redis    *miniredis.Miniredis
	backends *backends
}

func testConfig(mr *miniredis.Miniredis, b *backends, envKey string) *config.Config {
	return &config.Config{
		HTTPPort:      "0",
		SessionSecret: []byte("test-session-secret"),
		Redis: config.RedisConfig{
			Address:      mr.Addr(),
			PoolSize:     2,
			DialTimeout:  time.Second,
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
		},
		OpenAI: config.OpenAIConfig{
			APIKey:         envKey,
			BaseURL:        b.openai.URL,
			DefaultModel:   config.DefaultOpenAIModel,
			RequestTimeout: 2 * time.Second,
		},
		Ollama: config.OllamaConfig{
			Host:           b.ollama.URL,
			DefaultModel:   config.DefaultOllamaModel,
			RequestTimeout: 2 * time.Second,
		},
		Status: config.StatusConfig{
			ProbeTimeout: 2 * time.Second,
			PollInterval: 30 * time.Second,
		},
		Events: config.EventsConfig{Capacity: 50},
	}
}

func newTestEnv(t *testing.T, envKey string, mutate ...func(*config.Config)) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	b := newBackends(t)
	cfg := testConfig(mr, b, envKey)
	for _, m := range mutate {
		m(cfg)
	}

	handler, deps, err := NewRouter(cfg, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { deps.Close() })

	return &testEnv{deps: deps, handler: handler, redis: mr, backends: b}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func (e *testEnv) get(path string) *httptest.ResponseRecorder {
	return e.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (e *testEnv) postForm(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return e.do(req)
}

// flash decodes the flash cookie set on w.
func (e *testEnv) flash(t *testing.T, w *httptest.ResponseRecorder) *Message {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, settingsPath, nil)
	for _, c := range w.Result().Cookies() {
		req.AddCookie(c)
	}
	msg := e.deps.Flash.Pop(httptest.NewRecorder(), req)
	require.NotNil(t, msg, "expected a flash message")
	return msg
}
