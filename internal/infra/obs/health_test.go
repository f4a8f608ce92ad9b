package obs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func performReadyz(t *testing.T, h HealthHandlers) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/readyz", h.Readyz)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	return rec
}

func TestReadyzReportsOutboxBacklog(t *testing.T) {
	rec := performReadyz(t, HealthHandlers{
		OutboxDepth: func(ctx context.Context) (int64, error) { return 7, nil },
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready","outbox_pending":7}`, rec.Body.String())
}

func TestReadyzZeroValueIsReady(t *testing.T) {
	rec := performReadyz(t, HealthHandlers{})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready"}`, rec.Body.String())
}

func TestReadyzFailsWhenStoreUnreachable(t *testing.T) {
	rec := performReadyz(t, HealthHandlers{
		Ready: func() error { return errors.New("mongo ping timeout") },
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReadyzFailsWhenBacklogUnavailable(t *testing.T) {
	rec := performReadyz(t, HealthHandlers{
		OutboxDepth: func(ctx context.Context) (int64, error) { return 0, errors.New("count failed") },
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
