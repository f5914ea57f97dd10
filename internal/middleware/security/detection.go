package security

import (
	"fmt"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	applog "gastos/internal/log"
)

// MaxBodyBytes is the largest request body the API accepts.
const MaxBodyBytes = 1 << 20

const (
	maxURLLength   = 2048
	maxQueryParams = 10
	maxProxyHops   = 5
)

// Finding names one reason a request looks hostile.
type Finding string

const (
	FindingPathTraversal Finding = "path_traversal"
	FindingInjection     Finding = "injection"
	FindingContentType   Finding = "content_type"
	FindingOversizedBody Finding = "oversized_body"
	FindingQueryFlood    Finding = "query_flood"
	FindingScanner       Finding = "scanner"
	FindingMethod        Finding = "method"
	FindingLongURL       Finding = "long_url"
	FindingProxyChain    Finding = "proxy_chain"
)

// AllFindings lists every finding in reporting order.
var AllFindings = []Finding{
	FindingPathTraversal, FindingInjection, FindingContentType, FindingOversizedBody,
	FindingQueryFlood, FindingScanner, FindingMethod, FindingLongURL, FindingProxyChain,
}

// Every path segment and query value of this API is a fixed word, an integer,
// a boolean or a date, so quoting, comments and markup never belong there.
var injectionTokens = []string{
	"'", "\"", ";", "--", "/*", "<", ">", "union select", " or 1=1", "javascript:", "sleep(",
}

var scannerAgents = []string{
	"sqlmap", "nmap", "nikto", "gobuster", "dirb", "masscan", "zgrab", "nuclei", "scanner",
}

// DetectionMetrics tracks security detection events
type DetectionMetrics struct {
	SuspiciousRequests     int64
	ForgedForwardedHeaders int64
	ByFinding              map[Finding]int64
}

// Detector flags requests that do not fit the JSON API's shape
type Detector struct {
	suspicious int64
	forged     int64
	byFinding  sync.Map // Finding -> *atomic.Int64

	proxyMu        sync.RWMutex
	trustedProxies []*net.IPNet
}

// NewDetector trusts forwarded headers only from loopback and private ranges.
func NewDetector() *Detector {
	d := &Detector{}
	for _, cidr := range []string{"127.0.0.0/8", "::1/128", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"} {
		if err := d.AddTrustedProxy(cidr); err != nil {
			panic(err)
		}
	}
	return d
}

// Inspect returns every finding for r and counts them. Inspect never reads the body.
func (d *Detector) Inspect(r *http.Request) []Finding {
	var findings []Finding
	add := func(f Finding) { findings = append(findings, f) }

	if hasTraversal(r.URL) {
		add(FindingPathTraversal)
	}
	if hasInjection(r.URL) {
		add(FindingInjection)
	}

	if isWrite(r.Method) && strings.HasPrefix(r.URL.Path, "/api/") {
		if r.ContentLength != 0 && !isJSON(r.Header.Get("Content-Type")) {
			add(FindingContentType)
		}
		if r.ContentLength > MaxBodyBytes {
			add(FindingOversizedBody)
		}
	}

	if params := strings.Count(r.URL.RawQuery, "&") + 1; r.URL.RawQuery != "" && params > maxQueryParams {
		add(FindingQueryFlood)
	}

	agent := strings.ToLower(r.Header.Get("User-Agent"))
	for _, a := range scannerAgents {
		if strings.Contains(agent, a) {
			add(FindingScanner)
			break
		}
	}

	switch r.Method {
	case "TRACE", "TRACK", "DEBUG", http.MethodConnect:
		add(FindingMethod)
	}

	if len(r.URL.String()) > maxURLLength {
		add(FindingLongURL)
	}
	if strings.Count(r.Header.Get("X-Forwarded-For"), ",") >= maxProxyHops {
		add(FindingProxyChain)
	}

	if len(findings) > 0 {
		atomic.AddInt64(&d.suspicious, 1)
		for _, f := range findings {
			d.counter(f).Add(1)
		}
	}
	return findings
}

func (d *Detector) counter(f Finding) *atomic.Int64 {
	c, _ := d.byFinding.LoadOrStore(f, new(atomic.Int64))
	return c.(*atomic.Int64)
}

func isWrite(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == "application/json"
}

func hasTraversal(u *url.URL) bool {
	raw := strings.ToLower(u.EscapedPath())
	if strings.Contains(raw, "%2e%2e") || strings.Contains(raw, "%2f") || strings.Contains(raw, "%5c") {
		return true
	}
	for _, seg := range strings.Split(u.Path, "/") {
		if strings.HasPrefix(seg, ".") || strings.Contains(seg, "\\") {
			return true
		}
	}
	return false
}

// hasInjection checks the decoded path and the raw query. url.Values would
// silently drop pairs containing ';'.
func hasInjection(u *url.URL) bool {
	query, err := url.QueryUnescape(u.RawQuery)
	if err != nil {
		query = u.RawQuery
	}
	for _, v := range []string{u.Path, query} {
		v = strings.ToLower(v)
		for _, tok := range injectionTokens {
			if strings.Contains(v, tok) {
				return true
			}
		}
	}
	return false
}

// ExtractClientIP returns the forwarded client address when the direct peer
// is a trusted proxy, otherwise the peer itself.
func (d *Detector) ExtractClientIP(r *http.Request) string {
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}

	parsedDirectIP := net.ParseIP(directIP)
	if parsedDirectIP == nil || !d.isTrustedProxy(parsedDirectIP) {
		return directIP
	}

	forwarded := false
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		forwarded = true
		first, _, _ := strings.Cut(xff, ",")
		if clientIP := strings.TrimSpace(first); net.ParseIP(clientIP) != nil {
			return clientIP
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		forwarded = true
		if net.ParseIP(xri) != nil {
			return xri
		}
	}
	if forwarded {
		atomic.AddInt64(&d.forged, 1)
	}
	return directIP
}

func (d *Detector) isTrustedProxy(ip net.IP) bool {
	d.proxyMu.RLock()
	defer d.proxyMu.RUnlock()
	for _, network := range d.trustedProxies {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// GetMetrics returns a snapshot of the detection counters
func (d *Detector) GetMetrics() DetectionMetrics {
	m := DetectionMetrics{
		SuspiciousRequests:     atomic.LoadInt64(&d.suspicious),
		ForgedForwardedHeaders: atomic.LoadInt64(&d.forged),
		ByFinding:              make(map[Finding]int64, len(AllFindings)),
	}
	for _, f := range AllFindings {
		m.ByFinding[f] = d.counter(f).Load()
	}
	return m
}

// AddTrustedProxy trusts forwarded headers from peers inside cidr
func (d *Detector) AddTrustedProxy(cidr string) error {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return fmt.Errorf("invalid CIDR %s: %w", cidr, err)
	}

	d.proxyMu.Lock()
	d.trustedProxies = append(d.trustedProxies, network)
	d.proxyMu.Unlock()
	return nil
}

// Middleware logs suspicious requests without blocking them. Rejection is left
// to the rate limiter, the router and request validation.
func (d *Detector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if findings := d.Inspect(r); len(findings) > 0 {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request detected",
				applog.FieldComponent, applog.ComponentSecurity,
				applog.FieldClientIP, d.ExtractClientIP(r),
				applog.FieldMethod, r.Method,
				applog.FieldPath, r.URL.Path,
				applog.FieldUserAgent, r.Header.Get("User-Agent"),
				"findings", findings)
		}
		next.ServeHTTP(w, r)
	})
}
