package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/bloodbank/bloodbank/internal/platform/metrics"
)

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func newContext(method, path string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestRequestID_GeneratesNew(t *testing.T) {
	c, rec := newContext(http.MethodGet, "/")

	handler := func(c echo.Context) error {
		rid := c.Get("request_id").(string)
		if rid == "" {
			t.Error("expected request_id to be generated")
		}
		return c.String(http.StatusOK, "ok")
	}

	if err := RequestID()(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected X-Request-ID response header")
	}
}

func TestRequestID_PreservesExisting(t *testing.T) {
	c, rec := newContext(http.MethodGet, "/")
	c.Request().Header.Set(RequestIDHeader, "my-custom-id")

	handler := func(c echo.Context) error {
		if rid := c.Get("request_id").(string); rid != "my-custom-id" {
			t.Errorf("expected my-custom-id, got %s", rid)
		}
		return c.String(http.StatusOK, "ok")
	}

	RequestID()(handler)(c)

	if rec.Header().Get(RequestIDHeader) != "my-custom-id" {
		t.Errorf("expected my-custom-id in response header, got %s", rec.Header().Get(RequestIDHeader))
	}
}

func TestRequestID_ReplacesOversized(t *testing.T) {
	c, rec := newContext(http.MethodGet, "/")
	c.Request().Header.Set(RequestIDHeader, strings.Repeat("x", 500))

	RequestID()(okHandler)(c)

	if got := rec.Header().Get(RequestIDHeader); len(got) > 128 {
		t.Errorf("expected oversized id to be replaced, got %d chars", len(got))
	}
}

func TestLogger_LogsRequest(t *testing.T) {
	var buf strings.Builder
	logger := zerolog.New(&buf)
	c, _ := newContext(http.MethodGet, "/api/v1/provinces")
	c.Set("request_id", "req-1")

	if err := Logger(logger)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, `"request_id":"req-1"`) {
		t.Errorf("expected request id in log line, got %s", out)
	}
	if !strings.Contains(out, `"status":200`) {
		t.Errorf("expected status in log line, got %s", out)
	}
}

func TestLogger_UsesHTTPErrorStatus(t *testing.T) {
	var buf strings.Builder
	logger := zerolog.New(&buf)
	c, _ := newContext(http.MethodGet, "/missing")

	handler := func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	}
	Logger(logger)(handler)(c)

	out := buf.String()
	if !strings.Contains(out, `"status":404`) || !strings.Contains(out, `"level":"warn"`) {
		t.Errorf("expected warn line with 404, got %s", out)
	}
}

func TestRecovery_CatchesPanic(t *testing.T) {
	logger := zerolog.New(os.Stderr).With().Logger()
	c, rec := newContext(http.MethodGet, "/api/v1/intake/sessions/x")
	c.SetPath("/api/v1/intake/sessions/:id")
	c.Set("request_id", "rid-42")
	counter := metrics.RecoveredPanics.WithLabelValues("/api/v1/intake/sessions/:id")
	before := testutil.ToFloat64(counter)

	handler := func(c echo.Context) error {
		panic("test panic")
	}

	err := Recovery(logger)(handler)(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", httpErr.Code)
	}
	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("expected panic counter to grow by 1, grew by %v", got)
	}

	c.Echo().HTTPErrorHandler(err, c)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 response, got %d", rec.Code)
	}
	var body struct {
		Message string `json:"message"`
		Outcome struct {
			ResourceType string `json:"resourceType"`
			Issue        []struct {
				Severity    string `json:"severity"`
				Code        string `json:"code"`
				Diagnostics string `json:"diagnostics"`
			} `json:"issue"`
		} `json:"outcome"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	if body.Outcome.ResourceType != "OperationOutcome" || len(body.Outcome.Issue) != 1 {
		t.Fatalf("expected an OperationOutcome, got %s", rec.Body.String())
	}
	issue := body.Outcome.Issue[0]
	if issue.Severity != "fatal" || issue.Code != "exception" {
		t.Errorf("issue = %+v", issue)
	}
	if !strings.Contains(issue.Diagnostics, "rid-42") {
		t.Errorf("expected request id in diagnostics, got %q", issue.Diagnostics)
	}
	if strings.Contains(rec.Body.String(), "test panic") {
		t.Error("panic value leaked into the response")
	}
}

func TestRecovery_UnmatchedRouteLabel(t *testing.T) {
	c, _ := newContext(http.MethodGet, "/nowhere")
	counter := metrics.RecoveredPanics.WithLabelValues("unmatched")
	before := testutil.ToFloat64(counter)

	_ = Recovery(zerolog.Nop())(func(echo.Context) error { panic(errors.New("boom")) })(c)

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("expected unmatched counter to grow by 1, grew by %v", got)
	}
}

func TestRecovery_PassesThrough(t *testing.T) {
	logger := zerolog.New(os.Stderr).With().Logger()
	c, _ := newContext(http.MethodGet, "/ok")

	if err := Recovery(logger)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRateLimit_RequestsWithinBurst(t *testing.T) {
	handler := RateLimit(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})(okHandler)

	for i := 0; i < 5; i++ {
		c, rec := newContext(http.MethodGet, "/")
		if err := handler(c); err != nil {
			t.Fatalf("request %d: expected no error, got %v", i+1, err)
		}
		if rec.Header().Get("X-RateLimit-Limit") != "10" {
			t.Errorf("request %d: expected X-RateLimit-Limit '10', got %q", i+1, rec.Header().Get("X-RateLimit-Limit"))
		}
	}
}

func TestRateLimit_ExceedsBurst(t *testing.T) {
	handler := RateLimit(RateLimitConfig{RequestsPerSecond: 0.01, BurstSize: 2})(okHandler)

	for i := 0; i < 2; i++ {
		c, _ := newContext(http.MethodGet, "/")
		if err := handler(c); err != nil {
			t.Fatalf("request %d: expected no error, got %v", i+1, err)
		}
	}

	c, rec := newContext(http.MethodGet, "/")
	err := handler(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %v", err)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestRateLimit_SeparateClients(t *testing.T) {
	handler := RateLimit(RateLimitConfig{RequestsPerSecond: 0.01, BurstSize: 1})(okHandler)

	for _, ip := range []string{"10.0.0.1", "10.0.0.2"} {
		c, _ := newContext(http.MethodGet, "/")
		c.Request().Header.Set(echo.HeaderXRealIP, ip)
		if err := handler(c); err != nil {
			t.Errorf("client %s: expected first request to pass, got %v", ip, err)
		}
	}
}

func TestRequestTimeout_CompletesWithinDeadline(t *testing.T) {
	c, _ := newContext(http.MethodGet, "/api/v1/provinces")

	handler := func(c echo.Context) error {
		if _, ok := c.Request().Context().Deadline(); !ok {
			t.Error("expected request context to carry a deadline")
		}
		return c.String(http.StatusOK, "ok")
	}

	if err := RequestTimeout(5 * time.Second)(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRequestTimeout_ReturnsGatewayTimeout(t *testing.T) {
	c, _ := newContext(http.MethodGet, "/api/v1/provinces")

	handler := func(c echo.Context) error {
		<-c.Request().Context().Done()
		return c.Request().Context().Err()
	}

	err := RequestTimeout(10 * time.Millisecond)(handler)(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %v", err)
	}
}

func TestRequestTimeout_WrappedDeadline(t *testing.T) {
	c, _ := newContext(http.MethodGet, "/api/v1/intake/sessions")

	handler := func(c echo.Context) error {
		return errors.Join(errors.New("list districts"), context.DeadlineExceeded)
	}

	err := RequestTimeout(time.Second)(handler)(c)
	if httpErr, ok := err.(*echo.HTTPError); !ok || httpErr.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504 for wrapped deadline, got %v", err)
	}
}

func TestRequestTimeout_SkipsWebsocket(t *testing.T) {
	c, _ := newContext(http.MethodGet, "/api/v1/ws")

	handler := func(c echo.Context) error {
		if _, ok := c.Request().Context().Deadline(); ok {
			t.Error("expected no deadline on websocket path")
		}
		return nil
	}
	RequestTimeout(time.Second)(handler)(c)
}

func TestSecurityHeaders_SetsHeaders(t *testing.T) {
	c, rec := newContext(http.MethodGet, "/api/v1/declarations")

	if err := SecurityHeaders()(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "no-referrer",
		"Cache-Control":          "no-store",
	}
	for header, want := range expected {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s: expected %q, got %q", header, want, got)
		}
	}
}

func TestMetrics_CountsRequests(t *testing.T) {
	c, _ := newContext(http.MethodGet, "/api/v1/provinces")
	c.SetPath("/api/v1/provinces")

	counter := metrics.HTTPRequests.WithLabelValues(http.MethodGet, "/api/v1/provinces", "200")
	before := testutil.ToFloat64(counter)

	if err := Metrics()(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("expected request counter to grow by 1, grew by %v", got)
	}
}
