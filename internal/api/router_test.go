package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/linkweaver/internal/api/handler"
	"github.com/timmy/linkweaver/internal/config"
	"github.com/timmy/linkweaver/internal/domain"
	"github.com/timmy/linkweaver/internal/keypool"
	"github.com/timmy/linkweaver/internal/queue"
	"github.com/timmy/linkweaver/internal/repository"
	"github.com/timmy/linkweaver/internal/repository/repotest"
	"github.com/timmy/linkweaver/internal/service"
)

type fakeKeys struct {
	creds  []domain.Credential
	tokens int64
	addErr error
}

func (f *fakeKeys) AddCredential(_ context.Context, key string) (*domain.Credential, error) {
	if f.addErr != nil {
		return nil, f.addErr
	}
	c := domain.Credential{ID: uint(len(f.creds) + 1), Key: key, Active: true, RequestsRemaining: 100}
	f.creds = append(f.creds, c)
	return &c, nil
}

func (f *fakeKeys) RemoveCredential(_ context.Context, key string) error {
	for i, c := range f.creds {
		if c.Key == key {
			f.creds = append(f.creds[:i], f.creds[i+1:]...)
			return nil
		}
	}
	return keypool.ErrNotFound
}

func (f *fakeKeys) Credentials(context.Context) ([]domain.Credential, error) { return f.creds, nil }

func (f *fakeKeys) RefreshKeys(context.Context) (keypool.RefreshReport, error) {
	return keypool.RefreshReport{Active: len(f.creds)}, nil
}

func (f *fakeKeys) TotalTokensRemaining(context.Context) (int64, error) { return f.tokens, nil }

type testServer struct {
	router *gin.Engine
	store  *repository.Store
	keys   *fakeKeys
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := repotest.NewStore(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	q := queue.New(rdb, queue.Options{Prefix: "test"})
	keys := &fakeKeys{tokens: 10000}
	reg := prometheus.NewRegistry()

	router := SetupRouter(&config.ServerConfig{Mode: "test"}, Dependencies{
		Projects: service.NewOrchestrator(store, q, service.OrchestratorConfig{}),
		Keys:     keys,
		Queue:    q,
		Health: map[string]handler.HealthCheck{
			"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		},
		Gatherer:   reg,
		Registerer: reg,
	})
	return &testServer{router: router, store: store, keys: keys}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]interface{}
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func projectBody() map[string]interface{} {
	return map[string]interface{}{
		"name":  "acme",
		"token": 800,
		"data": []map[string]string{{
			"backlink":         "https://client.test",
			"primary_keyword":  "pets",
			"seconday_keyword": "dogs,cats",
			"dr_0_30":          "2",
			"dr_30_60":         "0",
			"dr_60_100":        "1",
			"industry":         "animals",
		}},
		"website": []map[string]interface{}{
			{"url": "https://blog.test", "username": "u", "password": "p", "dr": 12, "industry": "pets"},
		},
	}
}

func TestProjectRoutes(t *testing.T) {
	s := newTestServer(t)

	w, body := s.do(t, http.MethodPost, "/projects", projectBody())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	id, _ := body["uuid"].(string)
	require.NotEmpty(t, id)

	w, body = s.do(t, http.MethodGet, "/project/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "building", body["status"])
	assert.EqualValues(t, 1, body["requirements"])

	w, body = s.do(t, http.MethodGet, "/projects", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["projects"], 1)

	w, body = s.do(t, http.MethodGet, "/project/blogs/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, body["blogs"])

	w, body = s.do(t, http.MethodPost, "/project/"+id+"/regenerate", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.EqualValues(t, 1, body["placement_jobs"])

	w, body = s.do(t, http.MethodGet, "/queue/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, body["waiting"])

	w, _ = s.do(t, http.MethodGet, "/project/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateProjectRejectsInvalidInput(t *testing.T) {
	s := newTestServer(t)
	in := projectBody()
	in["data"] = []map[string]string{{"backlink": "nope", "primary_keyword": "pets", "dr_0_30": "x"}}

	w, body := s.do(t, http.MethodPost, "/projects", in)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(service.CodeInvalidInput), body["code"])
	assert.Contains(t, body["error"], "dr_0_30")
}

func TestWebsiteRoutes(t *testing.T) {
	s := newTestServer(t)

	w, body := s.do(t, http.MethodPost, "/websites", []map[string]interface{}{
		{"url": "https://pool.test", "username": "u", "password": "p", "dr": 55, "industry": "pets"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, body["ids"], 1)

	w, body = s.do(t, http.MethodGet, "/websites", nil)
	require.Equal(t, http.StatusOK, w.Code)
	sites := body["websites"].([]interface{})
	require.Len(t, sites, 1)
	assert.NotContains(t, sites[0], "password")
}

func TestKeyRoutes(t *testing.T) {
	s := newTestServer(t)

	w, body := s.do(t, http.MethodPost, "/keys", map[string]string{"key": "sk-abcdef1234"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "****1234", body["key"])

	w, body = s.do(t, http.MethodGet, "/keys", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "sk-abcdef1234")
	assert.Len(t, body["keys"], 1)

	w, _ = s.do(t, http.MethodPost, "/keys", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	s.keys.addErr = keypool.ErrDuplicate
	w, _ = s.do(t, http.MethodPost, "/keys", map[string]string{"key": "sk-abcdef1234"})
	assert.Equal(t, http.StatusConflict, w.Code)

	s.keys.addErr = errors.Join(keypool.ErrProbeFailed, errors.New("401 invalid key"))
	w, _ = s.do(t, http.MethodPost, "/keys", map[string]string{"key": "sk-bad"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodDelete, "/keys", map[string]string{"key": "sk-abcdef1234"})
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(t, http.MethodDelete, "/keys", map[string]string{"key": "sk-abcdef1234"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInfoRoutes(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		path  string
		field string
		want  float64
		code  int
	}{
		{path: "/info/max-blogs/3000", field: "max_blogs", want: 3, code: http.StatusOK},
		{path: "/info/days-to-exhaust/3000", field: "days", want: 4, code: http.StatusOK},
		{path: "/info/token-usage-daily", field: "tokens_per_day", want: 20, code: http.StatusOK},
		{path: "/info/max-blogs/0", code: http.StatusBadRequest},
		{path: "/info/days-to-exhaust/abc", code: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w, body := s.do(t, http.MethodGet, tt.path, nil)
			require.Equal(t, tt.code, w.Code)
			if tt.field != "" {
				assert.Equal(t, tt.want, body[tt.field])
			}
		})
	}

	w, body := s.do(t, http.MethodGet, "/info/calibrate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, body, "active")
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	w, body := s.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])

	w, _ = s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "linkweaver_http_requests_total")
}
