package security

import (
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestHeadersMiddleware(t *testing.T) {
	h := NewHeadersMiddleware(DefaultHeadersConfig()).Middleware(okHandler)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/categories", nil))
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" || rr.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatalf("missing basic headers: %v", rr.Header())
	}
	if rr.Header().Get("Strict-Transport-Security") != "" {
		t.Fatalf("HSTS must only be sent over TLS")
	}
	if _, ok := rr.Header()["Cross-Origin-Embedder-Policy"]; ok {
		t.Fatalf("empty values must not be sent")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/categories", nil)
	req.TLS = &tls.ConnectionState{}
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Header().Get("Strict-Transport-Security") != "max-age=31536000; includeSubDomains" {
		t.Fatalf("unexpected HSTS %q", rr.Header().Get("Strict-Transport-Security"))
	}
}

func TestCORSPreflight(t *testing.T) {
	h := NewCORSMiddleware(DefaultCORSConfig([]string{"http://localhost:3000"})).Middleware(okHandler)

	req := httptest.NewRequest(http.MethodOptions, "/api/expenses", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 preflight, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" || rr.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Fatalf("unexpected preflight headers: %v", rr.Header())
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/expenses", nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden || rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("disallowed origin should be refused, got %d %v", rr.Code, rr.Header())
	}
}

func TestCORSWildcard(t *testing.T) {
	h := NewCORSMiddleware(DefaultCORSConfig([]string{"*"})).Middleware(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/api/expenses", nil)
	req.Header.Set("Origin", "http://any.example")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || rr.Header().Get("Access-Control-Allow-Origin") != "http://any.example" {
		t.Fatalf("wildcard should echo origin, got %v", rr.Header())
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/expenses", nil))
	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("same-origin requests get no CORS headers")
	}
}

func TestExtractClientIP(t *testing.T) {
	d := NewDetector()
	cases := []struct {
		remote, xff, want string
	}{
		{"203.0.113.9:1234", "", "203.0.113.9"},
		{"203.0.113.9:1234", "1.1.1.1", "203.0.113.9"}, // untrusted proxy
		{"10.0.0.2:1234", "198.51.100.7, 10.0.0.2", "198.51.100.7"},
		{"127.0.0.1:1234", "not-an-ip", "127.0.0.1"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tc.remote
		if tc.xff != "" {
			req.Header.Set("X-Forwarded-For", tc.xff)
		}
		if got := d.ExtractClientIP(req); got != tc.want {
			t.Fatalf("remote=%s xff=%s: got %s want %s", tc.remote, tc.xff, got, tc.want)
		}
	}
}

func TestAddTrustedProxy(t *testing.T) {
	d := NewDetector()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:443"
	req.Header.Set("X-Forwarded-For", "198.51.100.9")

	if got := d.ExtractClientIP(req); got != "203.0.113.7" {
		t.Fatalf("untrusted proxy: got %q", got)
	}
	if err := d.AddTrustedProxy("203.0.113.0/24"); err != nil {
		t.Fatalf("AddTrustedProxy: %v", err)
	}
	if got := d.ExtractClientIP(req); got != "198.51.100.9" {
		t.Errorf("trusted proxy: got %q, want 198.51.100.9", got)
	}
	if err := d.AddTrustedProxy("not-a-cidr"); err == nil {
		t.Error("expected error for invalid CIDR")
	}
}

func TestInspect(t *testing.T) {
	longQuery := "/api/expenses?limit=5&year=" + strings.Repeat("1", 2100)

	tests := []struct {
		name        string
		method      string
		target      string
		contentType string
		body        string
		agent       string
		xff         string
		want        []Finding
	}{
		{name: "list expenses", method: http.MethodGet, target: "/api/expenses?year=2024&month=1"},
		{name: "dashboard", method: http.MethodGet, target: "/api/expenses/dashboard/monthly?year=2024&month=2"},
		{name: "active categories", method: http.MethodGet, target: "/api/categories?active_only=true"},
		{name: "create expense", method: http.MethodPost, target: "/api/expenses", contentType: "application/json; charset=utf-8", body: `{"monto":1}`},
		{name: "delete without body", method: http.MethodDelete, target: "/api/expenses/12"},
		{name: "dotfile", method: http.MethodGet, target: "/.env", want: []Finding{FindingPathTraversal}},
		{name: "encoded traversal", method: http.MethodGet, target: "/api/expenses/%2e%2e/categories", want: []Finding{FindingPathTraversal}},
		{name: "sql in id", method: http.MethodGet, target: "/api/expenses/1%27%20or%201=1--", want: []Finding{FindingInjection}},
		{name: "sql in query", method: http.MethodGet, target: "/api/expenses?categoria_id=1;DROP%20TABLE%20expenses", want: []Finding{FindingInjection}},
		{name: "script in query", method: http.MethodGet, target: "/api/categories?active_only=%3Cscript%3E", want: []Finding{FindingInjection}},
		{name: "form body", method: http.MethodPost, target: "/api/categories", contentType: "application/x-www-form-urlencoded", body: "nombre=x", want: []Finding{FindingContentType}},
		{name: "query flood", method: http.MethodGet, target: "/api/expenses?" + strings.Repeat("a=1&", 11) + "b=2", want: []Finding{FindingQueryFlood}},
		{name: "scanner", method: http.MethodGet, target: "/api/expenses", agent: "sqlmap/1.7", want: []Finding{FindingScanner}},
		{name: "trace method", method: "TRACE", target: "/api/expenses", want: []Finding{FindingMethod}},
		{name: "long url", method: http.MethodGet, target: longQuery, want: []Finding{FindingLongURL}},
		{name: "proxy chain", method: http.MethodGet, target: "/api/expenses", xff: "1.1.1.1, 2.2.2.2, 3.3.3.3, 4.4.4.4, 5.5.5.5, 6.6.6.6", want: []Finding{FindingProxyChain}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDetector()
			var body io.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			req := httptest.NewRequest(tt.method, tt.target, body)
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			if tt.agent != "" {
				req.Header.Set("User-Agent", tt.agent)
			}
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}

			got := d.Inspect(req)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Inspect() = %v, want %v", got, tt.want)
			}
			m := d.GetMetrics()
			wantSuspicious := int64(0)
			if len(tt.want) > 0 {
				wantSuspicious = 1
			}
			if m.SuspiciousRequests != wantSuspicious {
				t.Errorf("SuspiciousRequests = %d, want %d", m.SuspiciousRequests, wantSuspicious)
			}
			for _, f := range tt.want {
				if m.ByFinding[f] != 1 {
					t.Errorf("ByFinding[%s] = %d, want 1", f, m.ByFinding[f])
				}
			}
		})
	}
}

func TestInspectOversizedBody(t *testing.T) {
	d := NewDetector()
	req := httptest.NewRequest(http.MethodPost, "/api/expenses", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	req.ContentLength = MaxBodyBytes + 1

	got := d.Inspect(req)
	if !reflect.DeepEqual(got, []Finding{FindingOversizedBody}) {
		t.Fatalf("Inspect() = %v", got)
	}
}

func TestForgedForwardedHeader(t *testing.T) {
	d := NewDetector()
	req := httptest.NewRequest(http.MethodGet, "/api/expenses", nil)
	req.RemoteAddr = "10.0.0.2:5000"
	req.Header.Set("X-Forwarded-For", "not-an-ip")

	if got := d.ExtractClientIP(req); got != "10.0.0.2" {
		t.Fatalf("got %q, want proxy address", got)
	}
	if d.GetMetrics().ForgedForwardedHeaders != 1 {
		t.Errorf("forged header not counted")
	}
}

func TestDetectorMiddlewarePassesThrough(t *testing.T) {
	d := NewDetector()
	h := d.Middleware(okHandler)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/.git/config", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, suspicious requests are only logged", rr.Code)
	}
	if d.GetMetrics().ByFinding[FindingPathTraversal] != 1 {
		t.Errorf("finding not counted")
	}
}
