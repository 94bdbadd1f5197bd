package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRateLimitExceeded(t *testing.T) {
	base := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	limiter := newIPLimiter(2, time.Minute, func() time.Time { return now })
	handler := RequestID(limiter.wrap(base))

	call := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = ip + ":1234"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	for i := 0; i < 2; i++ {
		if rr := call("10.0.0.1"); rr.Code != http.StatusOK {
			t.Fatalf("call %d: expected 200, got %d", i, rr.Code)
		}
	}

	rr := call("10.0.0.1")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "30" {
		t.Fatalf("expected Retry-After 30, got %q", got)
	}
	var body errorBody
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error != codeRateLimited || body.RequestID == "" {
		t.Fatalf("unexpected body: %+v", body)
	}
	if body.RequestID != rr.Header().Get(requestIDHeader) {
		t.Fatalf("body and header request ids differ")
	}

	if rr := call("10.0.0.2"); rr.Code != http.StatusOK {
		t.Fatalf("other clients are limited separately, got %d", rr.Code)
	}

	now = now.Add(30 * time.Second)
	if rr := call("10.0.0.1"); rr.Code != http.StatusOK {
		t.Fatalf("expected recovery after the wait, got %d", rr.Code)
	}
}

func TestRateLimitIgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	base := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	handler := newIPLimiter(5, 15*time.Minute, func() time.Time { return now }).wrap(base)

	allowed := 0
	for i := 0; i < 50; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = "203.0.113.7:40000"
		req.Header.Set("X-Forwarded-For", "10.9.0."+strconv.Itoa(i))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code == http.StatusOK {
			allowed++
		}
	}
	if allowed != 5 {
		t.Fatalf("rotating X-Forwarded-For: %d attempts allowed, want 5", allowed)
	}
}

func TestRateLimitBehindTrustedProxy(t *testing.T) {
	base := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	proxies, err := ParseTrustedProxies([]string{"10.0.0.0/8"})
	if err != nil {
		t.Fatalf("ParseTrustedProxies: %v", err)
	}
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	l := newIPLimiter(1, time.Minute, func() time.Time { return now })
	l.proxies = proxies
	handler := l.wrap(base)

	call := func(xff string) int {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = "10.0.0.5:443"
		req.Header.Set("X-Forwarded-For", xff)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	if code := call("198.51.100.7"); code != http.StatusOK {
		t.Fatalf("first request: %d", code)
	}
	// a client prepending its own hops is still accounted to the address the proxy saw
	if code := call("1.2.3.4, 198.51.100.7"); code != http.StatusTooManyRequests {
		t.Fatalf("spoofed prefix must not reset the limit, got %d", code)
	}
	if code := call("198.51.100.8, 10.0.0.9"); code != http.StatusOK {
		t.Fatalf("distinct client behind the proxy chain must pass, got %d", code)
	}
}

func TestTrustedProxiesClientIP(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{"10.0.0.0/8", " 192.168.1.1 ", "::1"})
	if err != nil {
		t.Fatalf("ParseTrustedProxies: %v", err)
	}
	cases := []struct {
		name    string
		proxies *TrustedProxies
		remote  string
		xff     string
		realIP  string
		want    string
	}{
		{"no proxies trusted", nil, "203.0.113.7:1", "10.9.0.1", "", "203.0.113.7"},
		{"untrusted peer", proxies, "203.0.113.7:1", "10.9.0.1", "9.9.9.9", "203.0.113.7"},
		{"trusted peer", proxies, "10.1.2.3:1", "198.51.100.7", "", "198.51.100.7"},
		{"right-most untrusted hop", proxies, "192.168.1.1:1", "6.6.6.6, 198.51.100.7, 10.0.0.2", "", "198.51.100.7"},
		{"real ip fallback", proxies, "[::1]:1", "", "198.51.100.9", "198.51.100.9"},
		{"all hops trusted", proxies, "10.1.2.3:1", "10.0.0.2", "", "10.1.2.3"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			if tc.realIP != "" {
				req.Header.Set("X-Real-IP", tc.realIP)
			}
			if got := tc.proxies.ClientIP(req); got != tc.want {
				t.Fatalf("ClientIP = %q, want %q", got, tc.want)
			}
		})
	}

	if _, err := ParseTrustedProxies([]string{"not-an-ip"}); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestRateLimitSweepsIdleClients(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	l := newIPLimiter(1, time.Minute, func() time.Time { return now })
	l.reserve("10.0.0.1")
	l.reserve("10.0.0.2")

	now = now.Add(2 * time.Minute)
	l.reserve("10.0.0.3")
	if len(l.buckets) != 1 {
		t.Fatalf("expected idle buckets to be swept, have %d", len(l.buckets))
	}
}

func TestRequestIDPropagation(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-123")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if seen != "req-123" || rr.Header().Get(requestIDHeader) != "req-123" {
		t.Fatalf("incoming request id not kept: ctx=%q header=%q", seen, rr.Header().Get(requestIDHeader))
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if seen == "" || seen == "req-123" {
		t.Fatalf("expected a generated request id, got %q", seen)
	}
}

func TestLoggingLevels(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	handler := RequestID(Logging(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})))

	for _, path := range []string{"/healthz", "/missing"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "192.0.2.10:5555"
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %s", len(lines), buf.String())
	}

	want := []struct {
		level  string
		status float64
	}{
		{"info", 200},
		{"warn", 404},
	}
	for i, line := range lines {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("line %d is not JSON: %v", i, err)
		}
		if entry["level"] != want[i].level || entry["status"] != want[i].status {
			t.Fatalf("line %d: unexpected level/status: %v", i, entry)
		}
		if entry["message"] != "http request" || entry["client_ip"] != "192.0.2.10" {
			t.Fatalf("line %d: unexpected fields: %v", i, entry)
		}
		if id, _ := entry["request_id"].(string); id == "" {
			t.Fatalf("line %d: missing request_id", i)
		}
	}
}

func TestSecurityHeaders(t *testing.T) {
	rr := httptest.NewRecorder()
	SecurityHeaders(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	for _, h := range []string{"X-Content-Type-Options", "X-Frame-Options", "Cache-Control"} {
		if rr.Header().Get(h) == "" {
			t.Fatalf("missing header %s", h)
		}
	}
}
