package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/utafrali/searchandising/pkg/httputil"
)

// DefaultCheckTimeout bounds a single dependency check.
const DefaultCheckTimeout = 2 * time.Second

// Checker reports whether a dependency can serve requests.
type Checker func(ctx context.Context) error

// Status represents the health status of a component.
type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// Response is the JSON body of the health endpoints.
type Response struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult is the outcome of one dependency check.
type CheckResult struct {
	Status    Status `json:"status"`
	Critical  bool   `json:"critical"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

type registration struct {
	check    Checker
	critical bool
}

// Handler serves liveness and readiness endpoints. A failing critical
// dependency makes the service unready; a failing non-critical one only
// degrades it.
type Handler struct {
	mu       sync.RWMutex
	checkers map[string]registration
	timeout  time.Duration
}

// NewHandler creates a handler with no registered dependencies.
func NewHandler() *Handler {
	return &Handler{
		checkers: make(map[string]registration),
		timeout:  DefaultCheckTimeout,
	}
}

// SetTimeout changes the per-check deadline. Non-positive values are ignored.
func (h *Handler) SetTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	h.mu.Lock()
	h.timeout = d
	h.mu.Unlock()
}

// Register adds a critical checker, replacing any checker with the same name.
func (h *Handler) Register(name string, checker Checker) {
	h.RegisterCritical(name, checker)
}

// RegisterCritical adds a checker whose failure makes the service unready.
func (h *Handler) RegisterCritical(name string, checker Checker) {
	h.register(name, registration{check: checker, critical: true})
}

// RegisterNonCritical adds a checker whose failure only degrades the service.
func (h *Handler) RegisterNonCritical(name string, checker Checker) {
	h.register(name, registration{check: checker})
}

func (h *Handler) register(name string, reg registration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = reg
}

// Check runs every registered checker concurrently and aggregates the result.
func (h *Handler) Check(ctx context.Context) Response {
	h.mu.RLock()
	checkers := make(map[string]registration, len(h.checkers))
	for name, reg := range h.checkers {
		checkers[name] = reg
	}
	timeout := h.timeout
	h.mu.RUnlock()

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		checks = make(map[string]CheckResult, len(checkers))
	)
	for name, reg := range checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := run(ctx, reg, timeout)
			mu.Lock()
			checks[name] = res
			mu.Unlock()
		}()
	}
	wg.Wait()

	overall := StatusUp
	for _, res := range checks {
		if res.Status != StatusDown {
			continue
		}
		if res.Critical {
			overall = StatusDown
			break
		}
		overall = StatusDegraded
	}

	return Response{
		Status:    overall,
		Timestamp: time.Now().UTC(),
		Checks:    checks,
	}
}

func run(ctx context.Context, reg registration, timeout time.Duration) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := reg.check(ctx)
	res := CheckResult{
		Status:    StatusUp,
		Critical:  reg.critical,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		res.Status = StatusDown
		res.Error = err.Error()
	}
	return res
}

// LivenessHandler answers 200 while the process is running.
func (h *Handler) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, Response{
			Status:    StatusUp,
			Timestamp: time.Now().UTC(),
		})
	}
}

// ReadinessHandler answers 503 when a critical dependency is down and 200
// otherwise.
func (h *Handler) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := h.Check(r.Context())

		status := http.StatusOK
		if resp.Status == StatusDown {
			status = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, status, resp)
	}
}
