package httpx

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(okHandler(), mark("a"), nil, mark("b"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if strings.Join(order, ",") != "a,b" {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestRequestIDReusesValidHeader(t *testing.T) {
	var seen string
	h := WithRequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if seen != "abc-123" || rw.Header().Get(RequestIDHeader) != "abc-123" {
		t.Fatalf("expected incoming id, got ctx=%q header=%q", seen, rw.Header().Get(RequestIDHeader))
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "has space")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen == "has space" || len(seen) != 32 {
		t.Fatalf("expected generated id, got %q", seen)
	}
}

func TestRecoverReturns500(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := WithRecover(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rw.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rw.Code)
	}
	if !strings.Contains(buf.String(), "http handler panic") {
		t.Fatalf("expected panic log, got %s", buf.String())
	}
}

func TestAccessLogLevelFollowsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := WithAccessLog(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))
	out := buf.String()
	if !strings.Contains(out, `"level":"WARN"`) || !strings.Contains(out, `"status":404`) {
		t.Fatalf("unexpected access log %s", out)
	}
}

func TestRateLimiterBlocksAndResets(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }
	h := rl.Middleware()(okHandler())

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rw := httptest.NewRecorder()
		h.ServeHTTP(rw, req)
		return rw
	}

	for i := 0; i < 2; i++ {
		if rw := do(); rw.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rw.Code)
		}
	}
	now = now.Add(20 * time.Second)
	rw := do()
	if rw.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rw.Code)
	}
	if rw.Header().Get("Retry-After") != "40" {
		t.Fatalf("expected Retry-After 40, got %q", rw.Header().Get("Retry-After"))
	}

	now = now.Add(41 * time.Second)
	if rw := do(); rw.Code != http.StatusOK {
		t.Fatalf("expected window reset, got %d", rw.Code)
	}
}

func TestRateLimiterPrunesExpiredVisitors(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(5, time.Minute)
	rl.now = func() time.Time { return now }
	rl.allow("a")
	rl.allow("b")
	now = now.Add(2 * time.Minute)
	rl.allow("c")
	if len(rl.visitors) != 1 {
		t.Fatalf("expected only the fresh visitor, got %d", len(rl.visitors))
	}
}

func TestClientKeyPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := clientKey(req); got != "203.0.113.7" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := WithCORS(CORSPolicy{
		AllowedOrigins: []string{"https://book.example"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         10 * time.Minute,
	})(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/public/slots", nil)
	req.Header.Set("Origin", "https://book.example")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rw.Code)
	}
	if rw.Header().Get("Access-Control-Allow-Origin") != "https://book.example" {
		t.Fatalf("unexpected allow origin %q", rw.Header().Get("Access-Control-Allow-Origin"))
	}
	if rw.Header().Get("Access-Control-Max-Age") != "600" {
		t.Fatalf("unexpected max age %q", rw.Header().Get("Access-Control-Max-Age"))
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("unexpected CORS header for disallowed origin")
	}
}

func TestCORSWildcardWithCredentialsEchoesOrigin(t *testing.T) {
	h := WithCORS(CORSPolicy{AllowedOrigins: []string{"*"}, AllowCredentials: true})(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://any.example")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Header().Get("Access-Control-Allow-Origin") != "https://any.example" {
		t.Fatalf("unexpected allow origin %q", rw.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestBodyLimit(t *testing.T) {
	h := WithBodyLimit(4)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			http.Error(w, "too large", http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	if rw.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rw.Code)
	}
}

func TestValidRequestIDBounds(t *testing.T) {
	if !ValidRequestID(strings.Repeat("a", 128)) {
		t.Fatal("expected 128 characters to be accepted")
	}
	if ValidRequestID(strings.Repeat("a", 129)) {
		t.Fatal("expected 129 characters to be rejected")
	}
	if ValidRequestID("") || ValidRequestID("tab\tid") {
		t.Fatal("expected empty and control characters to be rejected")
	}
	if id := NewRequestID(); !ValidRequestID(id) || len(id) != 32 {
		t.Fatalf("generated id %q must be valid", id)
	}
}
