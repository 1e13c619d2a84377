package httpscenario

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/surge/internal/ramp"
)

// purchaseAPI serves the user search and purchase endpoints.
type purchaseAPI struct {
	mu   sync.Mutex
	hits map[string]int
	ua   string
}

func newPurchaseAPI(t *testing.T) (*purchaseAPI, *httptest.Server) {
	api := &purchaseAPI{hits: make(map[string]int)}
	mux := http.NewServeMux()

	mux.HandleFunc("/search/user/", func(w http.ResponseWriter, r *http.Request) {
		api.hit("search", r)
		switch strings.TrimPrefix(r.URL.Path, "/search/user/") {
		case "alice":
			w.Write([]byte(`[{"id": "u-1", "name": "alice"}]`))
		case "broken":
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`<html>error</html>`))
		default:
			w.Write([]byte(`[]`))
		}
	})
	mux.HandleFunc("/user/u-1/purchases", func(w http.ResponseWriter, r *http.Request) {
		api.hit("purchases", r)
		w.Write([]byte(`[{"sku": "a-1"}]`))
	})
	mux.HandleFunc("/user/u-1/purchases/cancellations", func(w http.ResponseWriter, r *http.Request) {
		api.hit("cancellations", r)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return api, server
}

func (a *purchaseAPI) hit(name string, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hits[name]++
	a.ua = r.Header.Get("User-Agent")
}

func (a *purchaseAPI) count(name string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hits[name]
}

func purchaseSteps() []Step {
	return []Step{
		{Name: "search", URL: "/search/user/{{userName}}", Require: "$", Extract: map[string]string{"userId": "$[0].id"}},
		{Name: "purchases", URL: "{{baseUrl}}/user/{{userId}}/purchases"},
		{Name: "cancellations", URL: "/user/{{userId}}/purchases/cancellations"},
	}
}

func newTestScenario(t *testing.T, baseURL string, pool ...string) *Scenario {
	t.Helper()
	s, err := New(Config{
		BaseURL:   baseURL,
		UserAgent: "surge-test",
		Pools:     map[string][]string{"userName": pool},
		Steps:     purchaseSteps(),
	}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestScenario_FullIteration(t *testing.T) {
	api, server := newPurchaseAPI(t)
	s := newTestScenario(t, server.URL, "alice")

	out := ramp.NewScenarioRunner(s.Run, nil).Run(context.Background(), 1, 1)

	assert.Equal(t, ramp.StatusCheckFailed, out.Status, "cancellations returns 503")
	assert.NoError(t, out.Err)
	assert.Equal(t, []ramp.CheckResult{
		{Name: "status was 200", Passed: true},
		{Name: "status was 200", Passed: true},
		{Name: "status was 200", Passed: false},
	}, out.Checks)

	assert.Equal(t, 1, api.count("search"))
	assert.Equal(t, 1, api.count("purchases"))
	assert.Equal(t, 1, api.count("cancellations"))
	assert.Equal(t, "surge-test", api.ua)
}

func TestScenario_EmptySearchEndsEarly(t *testing.T) {
	api, server := newPurchaseAPI(t)
	s := newTestScenario(t, server.URL, "nobody")

	out := ramp.NewScenarioRunner(s.Run, nil).Run(context.Background(), 1, 1)

	assert.Equal(t, ramp.StatusOK, out.Status)
	assert.Len(t, out.Checks, 1)
	assert.Equal(t, 1, api.count("search"))
	assert.Zero(t, api.count("purchases"))
}

func TestScenario_RequireArray(t *testing.T) {
	var follow atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error": "lookup failed"}`))
	})
	mux.HandleFunc("/next", func(w http.ResponseWriter, r *http.Request) {
		follow.Add(1)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	tests := []struct {
		name         string
		requireArray bool
		follow       int64
	}{
		{"any value passes", false, 1},
		{"object fails array requirement", true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			follow.Store(0)
			s, err := New(Config{
				BaseURL: server.URL,
				Steps: []Step{
					{Name: "search", URL: "/search", Require: "$", RequireArray: tt.requireArray},
					{Name: "next", URL: "/next"},
				},
			}, zerolog.Nop())
			require.NoError(t, err)
			defer s.Close()

			out := ramp.NewScenarioRunner(s.Run, nil).Run(context.Background(), 1, 1)

			assert.Equal(t, ramp.StatusOK, out.Status)
			assert.Equal(t, tt.follow, follow.Load())
			assert.Len(t, out.Checks, 1+int(tt.follow))
		})
	}
}

func TestScenario_InvalidJSONEndsEarly(t *testing.T) {
	api, server := newPurchaseAPI(t)
	s := newTestScenario(t, server.URL, "broken")

	out := ramp.NewScenarioRunner(s.Run, nil).Run(context.Background(), 1, 1)

	assert.Equal(t, ramp.StatusCheckFailed, out.Status)
	assert.NoError(t, out.Err)
	require.Len(t, out.Checks, 1)
	assert.False(t, out.Checks[0].Passed)
	assert.Zero(t, api.count("purchases"))
}

func TestScenario_TransportErrorFailsIteration(t *testing.T) {
	_, server := newPurchaseAPI(t)
	url := server.URL
	server.Close()

	s := newTestScenario(t, url, "alice")
	out := ramp.NewScenarioRunner(s.Run, nil).Run(context.Background(), 3, 9)

	assert.Equal(t, ramp.StatusError, out.Status)
	assert.ErrorIs(t, out.Err, ramp.ErrIterationFailure)
	assert.Contains(t, out.Err.Error(), "search")
	assert.Empty(t, out.Checks)
}

func TestScenario_ExpectStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	s, err := New(Config{
		BaseURL: server.URL,
		Steps:   []Step{{URL: "/health", ExpectStatus: http.StatusNoContent}},
	}, zerolog.Nop())
	require.NoError(t, err)

	out := ramp.NewScenarioRunner(s.Run, nil).Run(context.Background(), 1, 1)
	assert.Equal(t, ramp.StatusOK, out.Status)
	assert.Equal(t, "status was 204", out.Checks[0].Name)
}

func TestScenario_PoolDrawsEveryIteration(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]bool{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen[r.URL.Path] = true
		mu.Unlock()
	}))
	defer server.Close()

	s, err := New(Config{
		BaseURL:   server.URL,
		Variables: map[string]string{"version": "v2"},
		Pools:     map[string][]string{"name": {"a", "b", "c"}},
		Steps:     []Step{{URL: "/{{version}}/{{name}}"}},
	}, zerolog.Nop())
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		require.NoError(t, s.Run(context.Background(), &ramp.Iteration{}))
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]bool{"/v2/a": true, "/v2/b": true, "/v2/c": true}, seen)
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(Config{}, zerolog.Nop())
	assert.ErrorIs(t, err, ramp.ErrInvalidConfig)

	_, err = New(Config{
		Steps: []Step{{URL: "/x"}},
		Pools: map[string][]string{"userName": {}},
	}, zerolog.Nop())
	assert.ErrorIs(t, err, ramp.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "pools.userName")
}

func TestResolve(t *testing.T) {
	vars := map[string]string{"baseUrl": "http://api", "id": "42"}

	assert.Equal(t, "http://api/user/42", Resolve("{{baseUrl}}/user/{{ id }}", vars))
	assert.Equal(t, "/user/{{missing}}", Resolve("/user/{{missing}}", vars))
	assert.Equal(t, "plain", Resolve("plain", nil))
	assert.Equal(t, []string{"baseUrl", "id"}, Placeholders("{{baseUrl}}/user/{{ id }}"))
	assert.Empty(t, Placeholders("/health"))
}
