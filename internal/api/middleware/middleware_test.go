package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/ozanardine/phanteon-rewards/pkg/telemetry/correlation"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), Metrics(), Logger(zap.NewNop()))
	r.GET("/ping", func(c *gin.Context) {
		sc := trace.SpanContextFromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{
			"cid":   correlation.ExtractCorrelationID(c.Request.Context()),
			"trace": sc.TraceID().String(),
		})
	})
	return r
}

func TestRequestID_GeneratesAndEchoes(t *testing.T) {
	r := newEngine()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	id := w.Header().Get(HeaderRequestID)
	assert.Len(t, id, 26)
	assert.Contains(t, w.Body.String(), id)
}

func TestRequestID_ReusesIncomingAndTrace(t *testing.T) {
	r := newEngine()

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderRequestID, "upstream-1")
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "upstream-1", w.Header().Get(HeaderRequestID))
	assert.Contains(t, w.Body.String(), "4bf92f3577b34da6a3ce929d0e0e4736")
}
