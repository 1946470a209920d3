package overpass

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/morpho-cli/internal/resilience"
)

const sampleResponse = `{
  "osm3s": {"timestamp_osm_base": "2024-01-01T00:00:00Z"},
  "elements": [
    {"type": "node", "id": 1, "lat": 48.85, "lon": 2.35},
    {"type": "node", "id": 2, "lat": 48.86, "lon": 2.35},
    {"type": "node", "id": 3, "lat": 48.86, "lon": 2.36},
    {"type": "way", "id": 20, "nodes": [2, 3], "tags": {"highway": "primary"}},
    {"type": "way", "id": 10, "nodes": [1, 2], "tags": {"highway": "residential", "name": "Rue A"}},
    {"type": "relation", "id": 5, "members": [{"type": "way", "ref": 10, "role": "outer"}], "tags": {"type": "multipolygon"}}
  ]
}`

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.data[key]
	return d, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[key] = data
	return nil
}

func fastRetry() resilience.Policy {
	return resilience.Policy{Attempts: 3, Backoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestQuery_DecodesElements(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		got = r.PostForm.Get("data")
		_, _ = w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	c := NewClient(WithEndpoint(srv.URL), WithRateLimit(0))
	res, err := c.Query(context.Background(), "[out:json];way;out;")
	require.NoError(t, err)
	assert.Equal(t, "[out:json];way;out;", got)

	require.Len(t, res.Nodes, 3)
	assert.InDelta(t, 48.85, res.Nodes[1].Lat, 1e-9)
	require.Len(t, res.Ways, 2)
	assert.Equal(t, int64(10), res.Ways[0].ID)
	assert.Equal(t, []int64{1, 2}, res.Ways[0].NodeIDs)
	assert.Equal(t, "Rue A", res.Ways[0].Tags["name"])

	w, ok := res.Way(20)
	require.True(t, ok)
	assert.Equal(t, "primary", w.Tags["highway"])
	_, ok = res.Way(99)
	assert.False(t, ok)

	require.Len(t, res.Relations, 1)
	assert.Equal(t, []Member{{Type: "way", Ref: 10, Role: "outer"}}, res.Relations[0].Members)
	assert.False(t, res.Empty())
}

func TestQuery_RetriesTooManyRequests(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	c := NewClient(WithEndpoint(srv.URL), WithRateLimit(0), WithRetry(fastRetry()))
	res, err := c.Query(context.Background(), "q")
	require.NoError(t, err)
	assert.Len(t, res.Ways, 2)
	assert.Equal(t, int32(2), calls.Load())
}

func TestQuery_BadRequestIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(WithEndpoint(srv.URL), WithRateLimit(0), WithRetry(fastRetry()))
	_, err := c.Query(context.Background(), "q")
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestQuery_CacheServesRepeats(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	cache := &memCache{}
	c := NewClient(WithEndpoint(srv.URL), WithRateLimit(0), WithCache(cache))
	first, err := c.Query(context.Background(), "q")
	require.NoError(t, err)
	second, err := c.Query(context.Background(), "q")
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, first.Ways, second.Ways)
	assert.Equal(t, first.Nodes, second.Nodes)
	assert.Len(t, cache.data, 1)
}

func TestQuery_BreakerOpens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	b := resilience.NewBreaker(1, time.Hour)
	c := NewClient(WithEndpoint(srv.URL), WithRateLimit(0), WithBreaker(b),
		WithRetry(resilience.Policy{Attempts: 1}))
	_, err := c.Query(context.Background(), "q")
	require.Error(t, err)
	_, err = c.Query(context.Background(), "q")
	assert.ErrorIs(t, err, resilience.ErrBreakerOpen)
}

func TestCacheKey(t *testing.T) {
	a := CacheKey("http://a", "q")
	assert.Len(t, a, 64)
	assert.Equal(t, a, CacheKey("http://a", "q"))
	assert.NotEqual(t, a, CacheKey("http://b", "q"))
}

func TestBBoxQuery(t *testing.T) {
	b := orb.Bound{Min: orb.Point{2.3, 48.8}, Max: orb.Point{2.4, 48.9}}
	q := BBoxQuery(180, b, `way["building"]`, `relation["building"]`)
	assert.True(t, strings.HasPrefix(q, "[out:json][timeout:180];("))
	assert.Contains(t, q, `way["building"](48.8000000,2.3000000,48.9000000,2.4000000);`)
	assert.Contains(t, q, `relation["building"](48.8000000,2.3000000,48.9000000,2.4000000);`)
	assert.True(t, strings.HasSuffix(q, ");(._;>;);out body;"))
}
