package http

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	applog "gastos/internal/log"
	"gastos/internal/middleware/ratelimit"
	"gastos/internal/middleware/security"
	"gastos/internal/middleware/trace"
	"gastos/internal/ports"
	"gastos/internal/schema"
	"gastos/internal/services"
)

// maxBodyBytes caps request bodies; the largest valid expense is well under 2KB.
const maxBodyBytes = security.MaxBodyBytes

type Server struct {
	http.Server
	store     ports.Store
	validator *schema.Validator
	publisher services.EventPublisher
	logger    *applog.Logger
	version   string
	now       func() time.Time

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware

	appMetrics   appMetrics
	shutdownOnce sync.Once
}

type appMetrics struct {
	expensesCreated   int64
	expensesDeleted   int64
	categoriesCreated int64
	uptime            time.Time
}

// Options tunes a Server. Zero values fall back to defaults.
type Options struct {
	Publisher   services.EventPublisher
	Logger      *applog.Logger
	CORSOrigins []string
	RateLimit   int
	// TrustedProxies extends the detector's default proxy ranges
	TrustedProxies []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	Version        string
	Now            func() time.Time
}

// NewServer wires routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, store ports.Store, validator *schema.Validator, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.Config{Component: applog.ComponentHTTP})
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 15 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 15 * time.Second
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 60 * time.Second
	}

	rlConfig := ratelimit.DefaultConfig()
	if opts.RateLimit > 0 {
		rlConfig.RequestsPerMinute = opts.RateLimit
	}

	s := &Server{
		store:            store,
		validator:        validator,
		publisher:        opts.Publisher,
		logger:           opts.Logger,
		version:          opts.Version,
		now:              opts.Now,
		rateLimiter:      ratelimit.NewLimiter(rlConfig),
		securityDetector: security.NewDetector(),
		appMetrics:       appMetrics{uptime: time.Now()},
	}
	for _, cidr := range opts.TrustedProxies {
		if err := s.securityDetector.AddTrustedProxy(cidr); err != nil {
			opts.Logger.Warn("Ignoring trusted proxy", applog.FieldError, err)
		}
	}
	s.traceMiddleware = trace.NewMiddleware(opts.Logger, s.securityDetector.ExtractClientIP)

	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("Not Found").Write(w)
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		MethodNotAllowedError().Write(w)
	})

	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	router.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/version", s.handleVersion).Methods(http.MethodGet)

	api.HandleFunc("/categories", s.withSession(s.handleCreateCategory)).Methods(http.MethodPost)
	api.HandleFunc("/categories", s.withSession(s.handleListCategories)).Methods(http.MethodGet)
	api.HandleFunc("/categories/{id}", s.withSession(s.handleGetCategory)).Methods(http.MethodGet)

	// The dashboard route must be registered before /expenses/{id}
	api.HandleFunc("/expenses/dashboard/monthly", s.withSession(s.handleMonthlyDashboard)).Methods(http.MethodGet)
	api.HandleFunc("/expenses", s.withSession(s.handleCreateExpense)).Methods(http.MethodPost)
	api.HandleFunc("/expenses", s.withSession(s.handleListExpenses)).Methods(http.MethodGet)
	api.HandleFunc("/expenses/{id}", s.withSession(s.handleGetExpense)).Methods(http.MethodGet)
	api.HandleFunc("/expenses/{id}", s.withSession(s.handleDeleteExpense)).Methods(http.MethodDelete)

	cors := security.NewCORSMiddleware(security.DefaultCORSConfig(opts.CORSOrigins))
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limit := s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
			applog.FieldComponent, applog.ComponentRateLimit,
			applog.FieldClientIP, s.securityDetector.ExtractClientIP(r),
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path)
		ErrorResponse(http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.").Write(w)
	})

	// Outermost first: trace, security headers, CORS, detection, rate limit, router
	var handler http.Handler = router
	handler = limit(handler)
	handler = s.securityDetector.Middleware(handler)
	handler = cors.Middleware(handler)
	handler = headers.Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       opts.ReadTimeout,
		ReadHeaderTimeout: opts.ReadTimeout,
		WriteTimeout:      opts.WriteTimeout,
		IdleTimeout:       opts.IdleTimeout,
	}

	return s
}

// sessionHandler runs with a session that is released when it returns.
type sessionHandler func(w http.ResponseWriter, r *http.Request, sess ports.Session) error

// withSession acquires a store session for the request, releases it on every
// path and maps a returned error to its response.
func (s *Server) withSession(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.store.Session(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		defer func() {
			if cerr := sess.Close(); cerr != nil {
				applog.FromContext(r.Context()).WarnContext(r.Context(), "Failed to release session",
					applog.FieldComponent, applog.ComponentStorage,
					applog.FieldError, cerr)
			}
		}()

		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}
		if err := h(w, r, sess); err != nil {
			writeError(w, r, err)
		}
	}
}

func (s *Server) expenseService(sess ports.Session) *services.ExpenseService {
	return services.NewExpenseService(sess.Expenses(), sess.Categories(),
		services.WithPublisher(s.publisher),
		services.WithClock(s.now))
}

// Shutdown gracefully shuts down the server and its cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

func (s *Server) countExpenseCreated() { atomic.AddInt64(&s.appMetrics.expensesCreated, 1) }
func (s *Server) countExpenseDeleted() { atomic.AddInt64(&s.appMetrics.expensesDeleted, 1) }
func (s *Server) countCategoryCreated() {
	atomic.AddInt64(&s.appMetrics.categoriesCreated, 1)
}
