package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gastos/internal/core"
	applog "gastos/internal/log"
	"gastos/internal/ports"
	"gastos/internal/schema"
	"gastos/internal/storage/memory"
)

// countingStore tracks sessions that were opened but not yet closed.
type countingStore struct {
	ports.Store
	open    int64
	pingErr error
}

type countingSession struct {
	ports.Session
	store *countingStore
	once  sync.Once
}

func (s *countingStore) Session(ctx context.Context) (ports.Session, error) {
	sess, err := s.Store.Session(ctx)
	if err != nil {
		return nil, err
	}
	atomic.AddInt64(&s.open, 1)
	return &countingSession{Session: sess, store: s}, nil
}

func (s *countingStore) Ping(ctx context.Context) error {
	if s.pingErr != nil {
		return s.pingErr
	}
	return s.Store.Ping(ctx)
}

func (s *countingSession) Close() error {
	s.once.Do(func() { atomic.AddInt64(&s.store.open, -1) })
	return s.Session.Close()
}

type recordingPublisher struct {
	mu      sync.Mutex
	created []int64
	deleted []int64
}

func (p *recordingPublisher) PublishExpenseCreated(_ context.Context, e core.Expense) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, e.ID)
	return nil
}

func (p *recordingPublisher) PublishExpenseDeleted(_ context.Context, e core.Expense) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, e.ID)
	return errors.New("broker down")
}

var fixedNow = time.Date(2024, 1, 20, 9, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, opts Options) (*Server, *countingStore) {
	t.Helper()
	validator, err := schema.New()
	if err != nil {
		t.Fatalf("schema.New: %v", err)
	}
	store := &countingStore{Store: memory.New()}
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	srv := NewServer(":0", store, validator, opts)
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		if n := atomic.LoadInt64(&store.open); n != 0 {
			t.Errorf("%d sessions left open", n)
		}
	})
	return srv, store
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func detail(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[map[string]string](t, rr)["detail"]
}

func TestHealthReadyVersion(t *testing.T) {
	srv, store := newTestServer(t, Options{Version: "1.2.3"})

	for _, path := range []string{"/health", "/readyz", "/api/version"} {
		rr := do(t, srv, http.MethodGet, path, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
		if rr.Header().Get("X-Request-ID") == "" {
			t.Fatalf("%s: missing request id", path)
		}
	}

	if v := decodeBody[map[string]string](t, do(t, srv, http.MethodGet, "/api/version", "")); v["version"] != "1.2.3" {
		t.Fatalf("version = %v", v)
	}

	store.pingErr = errors.New("db gone")
	rr := do(t, srv, http.MethodGet, "/readyz", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz with failing store: status=%d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "db gone") {
		t.Fatalf("store error leaked: %s", rr.Body.String())
	}
}

func TestCategoryEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	rr := do(t, srv, http.MethodPost, "/api/categories", `{"nombre":"Comida","icono":"🍔","color":"#FF6B6B"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rr.Code, rr.Body.String())
	}
	created := decodeBody[map[string]any](t, rr)
	if created["nombre"] != "Comida" || created["activo"] != true || created["fecha_creacion"] == "" {
		t.Fatalf("unexpected category %v", created)
	}

	rr = do(t, srv, http.MethodPost, "/api/categories", `{"nombre":"Comida"}`)
	if rr.Code != http.StatusBadRequest || detail(t, rr) != "Category 'Comida' already exists" {
		t.Fatalf("duplicate: status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = do(t, srv, http.MethodPost, "/api/categories", `{"nombre":"Viejo","activo":false}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("inactive create status=%d", rr.Code)
	}

	all := decodeBody[[]map[string]any](t, do(t, srv, http.MethodGet, "/api/categories", ""))
	active := decodeBody[[]map[string]any](t, do(t, srv, http.MethodGet, "/api/categories?active_only=true", ""))
	if len(all) != 2 || len(active) != 1 || active[0]["nombre"] != "Comida" {
		t.Fatalf("all=%v active=%v", all, active)
	}

	rr = do(t, srv, http.MethodGet, "/api/categories/1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get status=%d", rr.Code)
	}
	rr = do(t, srv, http.MethodGet, "/api/categories/99", "")
	if rr.Code != http.StatusNotFound || detail(t, rr) != "Category 99 not found" {
		t.Fatalf("missing: status=%d body=%s", rr.Code, rr.Body.String())
	}
	if rr = do(t, srv, http.MethodGet, "/api/categories/abc", ""); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad id: status=%d", rr.Code)
	}
}

func TestCategoryValidation(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed json", `{"nombre":`, http.StatusBadRequest},
		{"trailing data", `{"nombre":"A"} {}`, http.StatusBadRequest},
		{"missing name", `{}`, http.StatusUnprocessableEntity},
		{"bad color", `{"nombre":"A","color":"red"}`, http.StatusUnprocessableEntity},
		{"name too long", `{"nombre":"` + strings.Repeat("a", 101) + `"}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, http.MethodPost, "/api/categories", tt.body)
			if rr.Code != tt.status {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tt.status, rr.Body.String())
			}
			if detail(t, rr) == "" {
				t.Fatalf("missing detail: %s", rr.Body.String())
			}
		})
	}
}

func TestExpenseLifecycle(t *testing.T) {
	pub := &recordingPublisher{}
	srv, _ := newTestServer(t, Options{Publisher: pub})

	do(t, srv, http.MethodPost, "/api/categories", `{"nombre":"Comida"}`)

	rr := do(t, srv, http.MethodPost, "/api/expenses",
		`{"monto":1500.50,"descripcion":"Almuerzo","categoria_id":1,"fecha":"2024-01-15","notas":"Test"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rr.Code, rr.Body.String())
	}
	created := decodeBody[map[string]any](t, rr)
	if created["monto"] != "1500.50" || created["fecha"] != "2024-01-15" || created["notas"] != "Test" {
		t.Fatalf("unexpected expense %v", created)
	}
	if created["fecha_actualizacion"] != nil {
		t.Fatalf("new expense has update time: %v", created["fecha_actualizacion"])
	}

	rr = do(t, srv, http.MethodGet, "/api/expenses/1", "")
	if rr.Code != http.StatusOK || decodeBody[map[string]any](t, rr)["descripcion"] != "Almuerzo" {
		t.Fatalf("get status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = do(t, srv, http.MethodDelete, "/api/expenses/1", "")
	if rr.Code != http.StatusNoContent || rr.Body.Len() != 0 {
		t.Fatalf("delete status=%d body=%q", rr.Code, rr.Body.String())
	}

	rr = do(t, srv, http.MethodGet, "/api/expenses/1", "")
	if rr.Code != http.StatusNotFound || detail(t, rr) != "Expense 1 not found" {
		t.Fatalf("get deleted: status=%d body=%s", rr.Code, rr.Body.String())
	}
	if rr = do(t, srv, http.MethodDelete, "/api/expenses/1", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("delete twice: status=%d", rr.Code)
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.created) != 1 || len(pub.deleted) != 1 {
		t.Fatalf("events created=%v deleted=%v", pub.created, pub.deleted)
	}
}

func TestCreateWithBlankText(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	rr := do(t, srv, http.MethodPost, "/api/categories", `{"nombre":"   "}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("blank name: status=%d body=%s", rr.Code, rr.Body.String())
	}
	cat := decodeBody[map[string]any](t, rr)
	if cat["nombre"] != "   " {
		t.Fatalf("nombre = %q", cat["nombre"])
	}

	rr = do(t, srv, http.MethodPost, "/api/expenses",
		fmt.Sprintf(`{"monto":10,"descripcion":"","categoria_id":%v,"fecha":"2024-01-15"}`, cat["id"]))
	if rr.Code != http.StatusCreated {
		t.Fatalf("empty description: status=%d body=%s", rr.Code, rr.Body.String())
	}
	if got := decodeBody[map[string]any](t, rr)["descripcion"]; got != "" {
		t.Fatalf("descripcion = %q", got)
	}
}

func TestMutationsLoggedOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := applog.New(applog.Config{Handler: applog.NewTextHandler(&buf, slog.LevelInfo)})
	srv, _ := newTestServer(t, Options{Logger: logger})

	if rr := do(t, srv, http.MethodPost, "/api/categories", `{"nombre":"Comida"}`); rr.Code != http.StatusCreated {
		t.Fatalf("create category: %d", rr.Code)
	}
	rr := do(t, srv, http.MethodPost, "/api/expenses", `{"monto":10,"descripcion":"x","categoria_id":1,"fecha":"2024-01-15"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create expense: %d", rr.Code)
	}
	id := decodeBody[map[string]any](t, rr)["id"]
	if rr := do(t, srv, http.MethodDelete, fmt.Sprintf("/api/expenses/%v", id), ""); rr.Code != http.StatusNoContent {
		t.Fatalf("delete expense: %d", rr.Code)
	}

	for _, msg := range []string{"Category created", "Expense created", "Expense deleted"} {
		var lines []string
		for _, line := range strings.Split(buf.String(), "\n") {
			if strings.Contains(line, `msg="`+msg+`"`) {
				lines = append(lines, line)
			}
		}
		if len(lines) != 1 {
			t.Fatalf("%q logged %d times:\n%s", msg, len(lines), buf.String())
		}
		if !strings.Contains(lines[0], "request_id=") {
			t.Errorf("%q missing request id: %s", msg, lines[0])
		}
	}
}

func TestCreateExpenseErrors(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	do(t, srv, http.MethodPost, "/api/categories", `{"nombre":"Comida"}`)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"unknown category", `{"monto":10,"descripcion":"x","categoria_id":99,"fecha":"2024-01-15"}`, http.StatusNotFound},
		{"zero amount", `{"monto":0,"descripcion":"x","categoria_id":1,"fecha":"2024-01-15"}`, http.StatusUnprocessableEntity},
		{"negative amount", `{"monto":-5,"descripcion":"x","categoria_id":1,"fecha":"2024-01-15"}`, http.StatusUnprocessableEntity},
		{"three decimals", `{"monto":1.005,"descripcion":"x","categoria_id":1,"fecha":"2024-01-15"}`, http.StatusUnprocessableEntity},
		{"too large", `{"monto":100000000,"descripcion":"x","categoria_id":1,"fecha":"2024-01-15"}`, http.StatusUnprocessableEntity},
		{"missing date", `{"monto":10,"descripcion":"x","categoria_id":1}`, http.StatusUnprocessableEntity},
		{"bad date", `{"monto":10,"descripcion":"x","categoria_id":1,"fecha":"15/01/2024"}`, http.StatusUnprocessableEntity},
		{"long description", `{"monto":10,"descripcion":"` + strings.Repeat("d", 256) + `","categoria_id":1,"fecha":"2024-01-15"}`, http.StatusUnprocessableEntity},
		{"malformed", `{"monto":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, http.MethodPost, "/api/expenses", tt.body)
			if rr.Code != tt.status {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tt.status, rr.Body.String())
			}
		})
	}

	all := decodeBody[[]map[string]any](t, do(t, srv, http.MethodGet, "/api/expenses", ""))
	if len(all) != 0 {
		t.Fatalf("rejected requests must not write: %v", all)
	}
}

func TestListExpensesAndDashboard(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	do(t, srv, http.MethodPost, "/api/categories", `{"nombre":"Comida"}`)
	do(t, srv, http.MethodPost, "/api/categories", `{"nombre":"Transporte"}`)

	for _, body := range []string{
		`{"monto":"10.10","descripcion":"a","categoria_id":1,"fecha":"2024-01-05"}`,
		`{"monto":"20.20","descripcion":"b","categoria_id":2,"fecha":"2024-01-31"}`,
		`{"monto":"0.70","descripcion":"c","categoria_id":1,"fecha":"2024-01-10"}`,
		`{"monto":"5.00","descripcion":"d","categoria_id":1,"fecha":"2024-02-01"}`,
	} {
		if rr := do(t, srv, http.MethodPost, "/api/expenses", body); rr.Code != http.StatusCreated {
			t.Fatalf("seed status=%d body=%s", rr.Code, rr.Body.String())
		}
	}

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"d", "b", "c", "a"}},
		{"?year=2024&month=1", []string{"b", "c", "a"}},
		{"?categoria_id=2", []string{"b"}},
		{"?limit=2", []string{"d", "b"}},
		{"?year=2024", []string{"d", "b", "c", "a"}},
	}
	for _, tt := range tests {
		rr := do(t, srv, http.MethodGet, "/api/expenses"+tt.query, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: status=%d", tt.query, rr.Code)
		}
		items := decodeBody[[]map[string]any](t, rr)
		var got []string
		for _, it := range items {
			got = append(got, it["descripcion"].(string))
		}
		if strings.Join(got, ",") != strings.Join(tt.want, ",") {
			t.Errorf("%q: got %v want %v", tt.query, got, tt.want)
		}
	}

	for _, q := range []string{"?limit=0", "?limit=101", "?year=2024&month=13", "?categoria_id=abc"} {
		if rr := do(t, srv, http.MethodGet, "/api/expenses"+q, ""); rr.Code != http.StatusUnprocessableEntity {
			t.Errorf("%s: status=%d want 422", q, rr.Code)
		}
	}

	rr := do(t, srv, http.MethodGet, "/api/expenses/dashboard/monthly?year=2024&month=1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("dashboard status=%d body=%s", rr.Code, rr.Body.String())
	}
	summary := decodeBody[map[string]any](t, rr)
	if summary["total"] != "31.00" || summary["count"] != float64(3) {
		t.Fatalf("unexpected summary %v", summary)
	}
	byCat := summary["por_categoria"].(map[string]any)
	if byCat["Comida"] != "10.80" || byCat["Transporte"] != "20.20" {
		t.Fatalf("unexpected por_categoria %v", byCat)
	}

	// Without both parameters the clock's month is used
	summary = decodeBody[map[string]any](t, do(t, srv, http.MethodGet, "/api/expenses/dashboard/monthly?year=2024", ""))
	if summary["month"] != float64(1) || summary["count"] != float64(3) {
		t.Fatalf("current month summary %v", summary)
	}

	empty := decodeBody[map[string]any](t, do(t, srv, http.MethodGet, "/api/expenses/dashboard/monthly?year=2023&month=6", ""))
	if empty["total"] != "0.00" || empty["count"] != float64(0) || len(empty["por_categoria"].(map[string]any)) != 0 {
		t.Fatalf("empty month %v", empty)
	}

	if rr := do(t, srv, http.MethodGet, "/api/expenses/dashboard/monthly?year=2024&month=0", ""); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("dashboard bad month status=%d", rr.Code)
	}
}

func TestRoutingErrors(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	rr := do(t, srv, http.MethodGet, "/api/nope", "")
	if rr.Code != http.StatusNotFound || detail(t, rr) != "Not Found" {
		t.Fatalf("unknown route: status=%d body=%s", rr.Code, rr.Body.String())
	}
	rr = do(t, srv, http.MethodPut, "/api/expenses/1", `{}`)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("wrong method: status=%d", rr.Code)
	}
}

func TestRateLimitAppliesToWrites(t *testing.T) {
	srv, _ := newTestServer(t, Options{RateLimit: 1})

	if rr := do(t, srv, http.MethodPost, "/api/categories", `{"nombre":"A"}`); rr.Code != http.StatusCreated {
		t.Fatalf("first write status=%d", rr.Code)
	}
	rr := do(t, srv, http.MethodPost, "/api/categories", `{"nombre":"B"}`)
	if rr.Code != http.StatusTooManyRequests || rr.Header().Get("Retry-After") != "60" || detail(t, rr) == "" {
		t.Fatalf("second write status=%d headers=%v", rr.Code, rr.Header())
	}
	if rr := do(t, srv, http.MethodGet, "/api/categories", ""); rr.Code != http.StatusOK {
		t.Fatalf("reads are not limited, status=%d", rr.Code)
	}

	metrics := do(t, srv, http.MethodGet, "/metrics", "").Body.String()
	if !strings.Contains(metrics, "rate_limit_hits_total 1") || !strings.Contains(metrics, "categories_created_total 1") {
		t.Fatalf("metrics missing counters:\n%s", metrics)
	}
}

func TestCORSAndSecurityHeaders(t *testing.T) {
	srv, _ := newTestServer(t, Options{CORSOrigins: []string{"http://localhost:3000"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/expenses", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent || rr.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Fatalf("preflight status=%d headers=%v", rr.Code, rr.Header())
	}

	rr = do(t, srv, http.MethodGet, "/api/categories", "")
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("security headers missing: %v", rr.Header())
	}
}
