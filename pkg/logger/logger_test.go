package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(&handler{Handler: slog.NewJSONHandler(buf, nil)})
}

func TestHandler_AddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	log := newTestLogger(&buf)
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")

	log.InfoContext(ctx, "Order created", "order_id", "o-1")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "req-42", rec["request_id"])
	assert.Equal(t, "o-1", rec["order_id"])
}

func TestHandler_WithAttrsKeepsDecoration(t *testing.T) {
	var buf bytes.Buffer
	log := newTestLogger(&buf).With("component", "http")
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-7")

	log.InfoContext(ctx, "hello")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "req-7", rec["request_id"])
	assert.Equal(t, "http", rec["component"])
}

func TestLoggerMiddleware_LogsStatus(t *testing.T) {
	var buf bytes.Buffer
	mw := NewLoggerMiddleware(newTestLogger(&buf))
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "HTTP request", rec["msg"])
	assert.Equal(t, float64(http.StatusTeapot), rec["status"])
	assert.Equal(t, "/api/v1/orders", rec["path"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}
