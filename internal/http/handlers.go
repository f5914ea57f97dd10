package http

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	applog "gastos/internal/log"
	"gastos/internal/middleware/security"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	OK(map[string]any{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).Round(time.Second).String(),
	}).Write(w)
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if err := s.store.Ping(ctx); err != nil {
		applog.FromContext(ctx).WarnContext(ctx, "Readiness check failed",
			applog.FieldComponent, applog.ComponentStorage,
			applog.FieldError, err)
		checks["store"] = "failed"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	if s.publisher != nil {
		checks["events"] = "enabled"
	} else {
		checks["events"] = "disabled"
	}

	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	NewJSONResponse().Status(httpStatus).JSON(map[string]any{
		"status":    status,
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	OK(map[string]string{
		"name":       "gastos",
		"version":    s.version,
		"go_version": runtime.Version(),
	}).Write(w)
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()

	w.WriteHeader(http.StatusOK)

	// Prometheus text exposition format
	fmt.Fprintf(w, "# HELP http_requests_total Total number of HTTP requests\n")
	fmt.Fprintf(w, "# TYPE http_requests_total counter\n")
	fmt.Fprintf(w, "http_requests_total %d\n\n", traceMetrics.TotalRequests)

	fmt.Fprintf(w, "# HELP expenses_created_total Expenses created since start\n")
	fmt.Fprintf(w, "# TYPE expenses_created_total counter\n")
	fmt.Fprintf(w, "expenses_created_total %d\n\n", atomic.LoadInt64(&s.appMetrics.expensesCreated))

	fmt.Fprintf(w, "# HELP expenses_deleted_total Expenses deleted since start\n")
	fmt.Fprintf(w, "# TYPE expenses_deleted_total counter\n")
	fmt.Fprintf(w, "expenses_deleted_total %d\n\n", atomic.LoadInt64(&s.appMetrics.expensesDeleted))

	fmt.Fprintf(w, "# HELP categories_created_total Categories created since start\n")
	fmt.Fprintf(w, "# TYPE categories_created_total counter\n")
	fmt.Fprintf(w, "categories_created_total %d\n\n", atomic.LoadInt64(&s.appMetrics.categoriesCreated))

	fmt.Fprintf(w, "# HELP rate_limit_hits_total Total rate limit hits\n")
	fmt.Fprintf(w, "# TYPE rate_limit_hits_total counter\n")
	fmt.Fprintf(w, "rate_limit_hits_total %d\n\n", rateLimitMetrics.TotalHits)

	fmt.Fprintf(w, "# HELP suspicious_requests_total Total suspicious requests detected\n")
	fmt.Fprintf(w, "# TYPE suspicious_requests_total counter\n")
	fmt.Fprintf(w, "suspicious_requests_total %d\n\n", securityMetrics.SuspiciousRequests)

	fmt.Fprintf(w, "# HELP suspicious_request_findings_total Suspicious request findings by reason\n")
	fmt.Fprintf(w, "# TYPE suspicious_request_findings_total counter\n")
	for _, f := range security.AllFindings {
		fmt.Fprintf(w, "suspicious_request_findings_total{reason=%q} %d\n", f, securityMetrics.ByFinding[f])
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "# HELP forged_forwarded_headers_total Forwarded client addresses that failed to parse\n")
	fmt.Fprintf(w, "# TYPE forged_forwarded_headers_total counter\n")
	fmt.Fprintf(w, "forged_forwarded_headers_total %d\n\n", securityMetrics.ForgedForwardedHeaders)

	fmt.Fprintf(w, "# HELP active_rate_limit_clients Currently tracked rate limit clients\n")
	fmt.Fprintf(w, "# TYPE active_rate_limit_clients gauge\n")
	fmt.Fprintf(w, "active_rate_limit_clients %d\n\n", rateLimitMetrics.ClientCount)

	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n", time.Since(s.appMetrics.uptime).Seconds())
}
