package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/timmy/linkweaver/internal/config"
	"github.com/timmy/linkweaver/internal/logger"
)

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handlers...)
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name       string
		cfg        config.CORSConfig
		origin     string
		method     string
		wantOrigin string
		wantStatus int
	}{
		{name: "allow all", cfg: config.CORSConfig{AllowAllOrigins: true}, origin: "https://a.test", method: http.MethodGet, wantOrigin: "*", wantStatus: http.StatusOK},
		{name: "listed origin", cfg: config.CORSConfig{AllowedOrigins: []string{"https://app.test"}}, origin: "https://app.test", method: http.MethodGet, wantOrigin: "https://app.test", wantStatus: http.StatusOK},
		{name: "unlisted origin", cfg: config.CORSConfig{AllowedOrigins: []string{"https://app.test"}}, origin: "https://evil.test", method: http.MethodGet, wantOrigin: "", wantStatus: http.StatusOK},
		{name: "preflight", cfg: config.CORSConfig{}, origin: "https://a.test", method: http.MethodOptions, wantOrigin: "https://a.test", wantStatus: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newEngine(CORS(tt.cfg))
			w := httptest.NewRecorder()
			req := httptest.NewRequest(tt.method, "/ping", nil)
			req.Header.Set("Origin", tt.origin)
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestLoggerSetsRequestID(t *testing.T) {
	r := newEngine(Logger())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))
}

func TestLoggerScopesRequestContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Logger())
	var requestID, component string
	r.GET("/ctx", func(c *gin.Context) {
		requestID = logger.GetRequestID(c.Request.Context())
		component = logger.GetFieldString(c.Request.Context(), logger.FieldComponent)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/ctx", nil)
	req.Header.Set(RequestIDHeader, "req-456")
	r.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "req-456", requestID)
	assert.Equal(t, "api", component)
}

func TestMetricsCountsByRoute(t *testing.T) {
	m := NewHTTPMetrics(prometheus.NewRegistry())
	r := newEngine(Metrics(m))

	for i := 0; i < 2; i++ {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Requests.WithLabelValues("/ping", "GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("unmatched", "GET", "404")))
}
