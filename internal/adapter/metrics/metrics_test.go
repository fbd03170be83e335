package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandler_ServesBuildInfo(t *testing.T) {
	reg := NewRegistry()
	NewRealtimeMetrics(reg)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gigmarket_build_info{")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
