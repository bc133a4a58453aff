package status

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"llm_console/internal/logging"
	"llm_console/internal/metrics"
	"llm_console/internal/providers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	up       bool
	provider string
	pings    atomic.Int32
}

func (s *fakeStore) Ping(ctx context.Context) bool {
	s.pings.Add(1)
	return s.up
}

func (s *fakeStore) CurrentProvider(ctx context.Context) string {
	return s.provider
}

type fakeProber struct {
	ok      atomic.Bool
	calls   atomic.Int32
	panics  bool
	release chan struct{} // when set, CheckStatus blocks until closed
	delay   time.Duration // answer time; a context done first yields false
	models  []providers.ModelInfo
}

func newFakeProber(ok bool) *fakeProber {
	p := &fakeProber{}
	p.ok.Store(ok)
	return p
}

func (p *fakeProber) CheckStatus(ctx context.Context) bool {
	p.calls.Add(1)
	if p.release != nil {
		<-p.release
	}
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return false
		}
	}
	if p.panics {
		panic("probe exploded")
	}
	return p.ok.Load()
}

func (p *fakeProber) ListModels(ctx context.Context) []providers.ModelInfo {
	return p.models
}

func newTestAggregator(store *fakeStore, cloud, local *fakeProber) *Aggregator {
	return NewAggregator(store, cloud, local, metrics.NewNoopMetrics(), Config{ProbeTimeout: time.Second}, logging.Discard())
}

func TestParseScope(t *testing.T) {
	tests := []struct {
		in      string
		want    Scope
		wantErr bool
	}{
		{"", ScopeAll, false},
		{"all", ScopeAll, false},
		{"openai", ScopeOpenAI, false},
		{"cloud", ScopeOpenAI, false},
		{"ollama", ScopeOllama, false},
		{"local", ScopeOllama, false},
		{"bedrock", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseScope(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetStatus_StoreAlwaysPinged(t *testing.T) {
	store := &fakeStore{up: true, provider: "openai"}
	agg := newTestAggregator(store, newFakeProber(true), newFakeProber(true))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		p := agg.GetStatus(ctx, false, ScopeAll)
		assert.True(t, p.Redis)
		assert.Equal(t, "openai", p.CurrentProvider)
	}
	assert.Equal(t, int32(3), store.pings.Load())

	store.up = false
	assert.False(t, agg.GetStatus(ctx, false, ScopeOpenAI).Redis)
}

func TestGetStatus_CloudProbedOnlyWhenForced(t *testing.T) {
	cloud := newFakeProber(true)
	agg := newTestAggregator(&fakeStore{up: true}, cloud, newFakeProber(true))
	ctx := context.Background()

	p := agg.GetStatus(ctx, false, ScopeOpenAI)
	assert.Equal(t, int32(0), cloud.calls.Load())
	require.NotNil(t, p.OpenAI)
	assert.False(t, p.OpenAI.Accessible)
	assert.Nil(t, p.OpenAI.LastChecked)
	assert.Nil(t, p.Ollama)

	p = agg.GetStatus(ctx, true, ScopeOpenAI)
	assert.Equal(t, int32(1), cloud.calls.Load())
	assert.True(t, p.OpenAI.Accessible)
	require.NotNil(t, p.OpenAI.LastChecked)

	// the cached record is served as-is, even after the backend changes
	cloud.ok.Store(false)
	p = agg.GetStatus(ctx, false, ScopeOpenAI)
	assert.Equal(t, int32(1), cloud.calls.Load())
	assert.True(t, p.OpenAI.Accessible)
}

func TestGetStatus_LocalProbedWhenNeverChecked(t *testing.T) {
	local := newFakeProber(true)
	agg := newTestAggregator(&fakeStore{up: true}, newFakeProber(true), local)
	ctx := context.Background()

	p := agg.GetStatus(ctx, false, ScopeAll)
	assert.Equal(t, int32(1), local.calls.Load(), "first request gets a live check")
	require.NotNil(t, p.Ollama)
	assert.True(t, p.Ollama.Accessible)
	require.NotNil(t, p.Ollama.LastChecked)

	agg.GetStatus(ctx, false, ScopeAll)
	assert.Equal(t, int32(1), local.calls.Load(), "cached afterwards")
}

func TestGetStatus_ForcedLocalProbeHappensOncePerCall(t *testing.T) {
	tests := []struct {
		name        string
		probeBefore bool
	}{
		{"never checked", false},
		{"already checked", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local := newFakeProber(true)
			agg := newTestAggregator(&fakeStore{up: true}, newFakeProber(true), local)
			ctx := context.Background()

			if tt.probeBefore {
				agg.Probe(ctx, providers.Ollama)
			}
			before := local.calls.Load()

			agg.GetStatus(ctx, true, ScopeOllama)
			assert.Equal(t, before+1, local.calls.Load())
		})
	}
}

func TestGetStatus_ModelsOnlyForLocalScope(t *testing.T) {
	local := newFakeProber(true)
	local.models = []providers.ModelInfo{{Name: "llama3.3:latest"}}
	agg := newTestAggregator(&fakeStore{up: true}, newFakeProber(true), local)
	ctx := context.Background()

	p := agg.GetStatus(ctx, false, ScopeOllama)
	require.NotNil(t, p.Ollama)
	assert.Equal(t, local.models, p.Ollama.Models)

	p = agg.GetStatus(ctx, false, ScopeAll)
	assert.Nil(t, p.Ollama.Models)

	local.ok.Store(false)
	p = agg.GetStatus(ctx, true, ScopeOllama)
	assert.False(t, p.Ollama.Accessible)
	assert.Nil(t, p.Ollama.Models)
}

func TestGetStatus_PanickingProbeKeepsCachedRecord(t *testing.T) {
	local := newFakeProber(true)
	agg := newTestAggregator(&fakeStore{up: true}, newFakeProber(true), local)
	ctx := context.Background()

	first := agg.GetStatus(ctx, false, ScopeOllama)
	require.True(t, first.Ollama.Accessible)

	local.panics = true
	var p Payload
	assert.NotPanics(t, func() { p = agg.GetStatus(ctx, true, ScopeAll) })
	assert.True(t, p.Redis)
	assert.True(t, p.Ollama.Accessible)
	assert.Equal(t, *first.Ollama.LastChecked, *p.Ollama.LastChecked)
}

func TestGetStatus_CancelledCallerDoesNotRecordOffline(t *testing.T) {
	local := newFakeProber(true)
	local.delay = 200 * time.Millisecond
	agg := newTestAggregator(&fakeStore{up: true}, newFakeProber(true), local)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	p := agg.GetStatus(ctx, true, ScopeAll)
	require.NotNil(t, p.Ollama)
	assert.True(t, p.Ollama.Accessible, "the check outlives the caller")

	rec := agg.Record(providers.Ollama)
	assert.True(t, rec.Checked())
	assert.True(t, rec.Accessible)

	p = agg.GetStatus(context.Background(), false, ScopeAll)
	assert.True(t, p.Ollama.Accessible)
	assert.Equal(t, int32(1), local.calls.Load())
}

func TestGetStatus_ScopeNoneOmitsProviders(t *testing.T) {
	cloud, local := newFakeProber(true), newFakeProber(true)
	agg := newTestAggregator(&fakeStore{up: true, provider: "ollama"}, cloud, local)

	p := agg.GetStatus(context.Background(), true, ScopeNone)
	assert.True(t, p.Redis)
	assert.Equal(t, "ollama", p.CurrentProvider)
	assert.Nil(t, p.OpenAI)
	assert.Nil(t, p.Ollama)
	assert.Zero(t, cloud.calls.Load())
	assert.Zero(t, local.calls.Load())
}

func TestGetStatus_MissingProviderClients(t *testing.T) {
	agg := NewAggregator(&fakeStore{up: true, provider: "ollama"}, nil, nil, nil, Config{}, logging.Discard())

	p := agg.GetStatus(context.Background(), true, ScopeAll)
	assert.False(t, p.OpenAI.Accessible)
	assert.False(t, p.Ollama.Accessible)
	assert.Equal(t, "ollama", p.CurrentProvider)
}

func TestProbe_CoalescesConcurrentCalls(t *testing.T) {
	local := newFakeProber(true)
	local.release = make(chan struct{})
	agg := newTestAggregator(&fakeStore{up: true}, newFakeProber(true), local)

	const callers = 10
	var wg sync.WaitGroup
	results := make([]bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = agg.Probe(context.Background(), providers.Ollama)
		}(i)
	}

	time.Sleep(100 * time.Millisecond)
	close(local.release)
	wg.Wait()

	assert.Equal(t, int32(1), local.calls.Load())
	for _, r := range results {
		assert.True(t, r)
	}
}

func TestRecord_TransitionsOnlyOnProbe(t *testing.T) {
	cloud := newFakeProber(true)
	agg := newTestAggregator(&fakeStore{up: true}, cloud, newFakeProber(true))
	ctx := context.Background()

	assert.False(t, agg.Record(providers.OpenAI).Checked())

	assert.True(t, agg.Probe(ctx, providers.OpenAI))
	assert.True(t, agg.Record(providers.OpenAI).Accessible)

	cloud.ok.Store(false)
	assert.True(t, agg.Record(providers.OpenAI).Accessible)

	assert.False(t, agg.Probe(ctx, providers.OpenAI))
	assert.False(t, agg.Record(providers.OpenAI).Accessible)
}

func TestPayload_JSON(t *testing.T) {
	local := newFakeProber(true)
	agg := newTestAggregator(&fakeStore{up: true, provider: "ollama"}, newFakeProber(true), local)

	raw, err := json.Marshal(agg.GetStatus(context.Background(), false, ScopeAll))
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Contains(t, m, "timestamp")
	assert.Equal(t, true, m["redis"])
	assert.Equal(t, "ollama", m["currentProvider"])

	openai := m["openai"].(map[string]any)
	assert.Equal(t, false, openai["accessible"])
	assert.Nil(t, openai["lastChecked"])

	ollama := m["ollama"].(map[string]any)
	assert.Equal(t, true, ollama["accessible"])
	assert.NotNil(t, ollama["lastChecked"])
	assert.NotContains(t, ollama, "models")
}
