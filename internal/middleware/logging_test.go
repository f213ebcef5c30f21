package middleware

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCtxHandler_AddsContextAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "development", "info").With(slog.String("component", "sync"))

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-1")
	ctx = context.WithValue(ctx, CallerKey, "auth0|rick")
	ctx = context.WithValue(ctx, TraceIDKey, "trace-1")
	logger.InfoContext(ctx, "hello")

	out := buf.String()
	assert.Contains(t, out, "component=sync")
	assert.Contains(t, out, "request_id=req-1")
	assert.Contains(t, out, "caller=auth0|rick")
	assert.Contains(t, out, "trace_id=trace-1")
}

func TestNewLogger_FormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "production", "warn")

	logger.Info("dropped")
	logger.Warn("kept", slog.String("park", "zion"))

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, `"msg":"kept"`)
	assert.Contains(t, out, `"park":"zion"`)
}

func TestContextMiddleware_PropagatesRequestID(t *testing.T) {
	app := fiber.New()
	app.Use(requestid.New())
	app.Use(ContextMiddleware())
	app.Get("/", func(c *fiber.Ctx) error {
		rid, _ := c.UserContext().Value(RequestIDKey).(string)
		return c.SendString(rid)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(fiber.HeaderXRequestID, "fixed-id")
	resp, err := app.Test(req)
	require.NoError(t, err)

	var body bytes.Buffer
	_, _ = body.ReadFrom(resp.Body)
	assert.Equal(t, "fixed-id", body.String())
}

func captureLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := Logger
	Logger = NewLogger(&buf, "development", "debug")
	t.Cleanup(func() { Logger = prev })
	return &buf
}

func TestStructuredLogger(t *testing.T) {
	app := fiber.New()
	app.Use(StructuredLogger())
	app.Get("/health/live", func(c *fiber.Ctx) error { return c.SendString("up") })
	app.Get("/api/parks/:slug", func(c *fiber.Ctx) error {
		if c.Params("slug") == "atlantis" {
			return fiber.NewError(fiber.StatusNotFound, "Park not found")
		}
		return c.SendString("ok")
	})

	tests := []struct {
		name    string
		path    string
		want    []string
		wantNot []string
	}{
		{"probe is quiet", "/health/live", nil, []string{"msg=request"}},
		{"success at info", "/api/parks/zion", []string{"level=INFO", "route=/api/parks/:slug", "status=200"}, nil},
		{"not found at warn", "/api/parks/atlantis", []string{"level=WARN", "status=404", "error=\"Park not found\""}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureLogger(t)
			_, err := app.Test(httptest.NewRequest(http.MethodGet, tt.path, nil))
			require.NoError(t, err)

			out := buf.String()
			for _, s := range tt.want {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.wantNot {
				assert.NotContains(t, out, s)
			}
		})
	}
}
