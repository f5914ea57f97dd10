package security

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig controls cross-origin access. An origin of "*" allows any origin.
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           int // seconds
}

// DefaultCORSConfig mirrors a permissive browser-facing API.
func DefaultCORSConfig(origins []string) CORSConfig {
	return CORSConfig{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           600,
	}
}

type CORSMiddleware struct {
	config  CORSConfig
	anyOrig bool
	origins map[string]bool
	methods string
	headers string
}

func NewCORSMiddleware(config CORSConfig) *CORSMiddleware {
	m := &CORSMiddleware{
		config:  config,
		origins: make(map[string]bool, len(config.AllowedOrigins)),
		methods: strings.Join(config.AllowedMethods, ", "),
		headers: strings.Join(config.AllowedHeaders, ", "),
	}
	for _, o := range config.AllowedOrigins {
		o = strings.TrimSpace(o)
		if o == "*" {
			m.anyOrig = true
			continue
		}
		if o != "" {
			m.origins[o] = true
		}
	}
	return m
}

func (c *CORSMiddleware) allowed(origin string) bool {
	return c.anyOrig || c.origins[origin]
}

// Middleware answers preflight requests and decorates allowed cross-origin responses.
func (c *CORSMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Add("Vary", "Origin")

		if !c.allowed(origin) {
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		// Credentials cannot be combined with a literal "*", so the origin is echoed.
		headers.Set("Access-Control-Allow-Origin", origin)
		if c.config.AllowCredentials {
			headers.Set("Access-Control-Allow-Credentials", "true")
		}
		headers.Set("Access-Control-Expose-Headers", "X-Request-ID")

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			headers.Set("Access-Control-Allow-Methods", c.methods)
			headers.Set("Access-Control-Allow-Headers", c.headers)
			if c.config.MaxAge > 0 {
				headers.Set("Access-Control-Max-Age", strconv.Itoa(c.config.MaxAge))
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
