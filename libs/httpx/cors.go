package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy defines the CORS headers to emit for matching origins.
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

type corsHeaders struct {
	origins     []string
	methods     string
	headers     string
	maxAge      string
	credentials bool
}

// WithCORS adds CORS handling for browser clients of the public booking pages.
// With no AllowedOrigins it is a no-op.
func WithCORS(cfg CORSPolicy) Middleware {
	if len(cfg.AllowedOrigins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	ch := corsHeaders{
		origins:     normalizeList(cfg.AllowedOrigins),
		methods:     strings.Join(normalizeList(cfg.AllowedMethods), ", "),
		headers:     strings.Join(normalizeList(cfg.AllowedHeaders), ", "),
		credentials: cfg.AllowCredentials,
	}
	if secs := int(cfg.MaxAge.Seconds()); secs > 0 {
		ch.maxAge = strconv.Itoa(secs)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			allowOrigin, ok := ch.match(origin)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			ch.write(w.Header(), allowOrigin)

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (ch corsHeaders) write(h http.Header, allowOrigin string) {
	h.Set("Access-Control-Allow-Origin", allowOrigin)
	if ch.credentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	if ch.methods != "" {
		h.Set("Access-Control-Allow-Methods", ch.methods)
	}
	if ch.headers != "" {
		h.Set("Access-Control-Allow-Headers", ch.headers)
	}
	if ch.maxAge != "" {
		h.Set("Access-Control-Max-Age", ch.maxAge)
	}
	h.Add("Vary", "Origin")
	h.Add("Vary", "Access-Control-Request-Method")
	h.Add("Vary", "Access-Control-Request-Headers")
}

// match returns the value for Access-Control-Allow-Origin. A wildcard echoes the
// origin when credentials are allowed, since browsers reject "*" in that case.
func (ch corsHeaders) match(origin string) (string, bool) {
	for _, candidate := range ch.origins {
		if candidate == "*" {
			if ch.credentials {
				return origin, true
			}
			return "*", true
		}
		if strings.EqualFold(candidate, origin) {
			return origin, true
		}
	}
	return "", false
}

func normalizeList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
