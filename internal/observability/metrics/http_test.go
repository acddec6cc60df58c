package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestGinMiddlewareCountsRequestsByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	m, err := NewHTTPMetricsWithRegisterer(reg)
	if err != nil {
		t.Fatalf("new http metrics: %v", err)
	}

	router := gin.New()
	router.Use(GinMiddleware(m))
	router.GET("/api/policies/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/policies/42", nil)
		router.ServeHTTP(httptest.NewRecorder(), req)
	}

	got := testutil.ToFloat64(m.requests.WithLabelValues("/api/policies/:id", http.MethodGet, "200"))
	if got != 2 {
		t.Fatalf("expected 2 requests, got %v", got)
	}
}

func TestNewHTTPMetricsReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewHTTPMetricsWithRegisterer(reg); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if _, err := NewHTTPMetricsWithRegisterer(reg); err != nil {
		t.Fatalf("second registration: %v", err)
	}
}
