package httpclient

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"
)

// CircuitBreakerConfig tunes the breaker guarding one upstream.
type CircuitBreakerConfig struct {
	Name string // metric label and log attribute

	// Requests let through while half-open. 0 allows one.
	MaxRequests uint32
	// Closed-state counters reset every Interval; 0 never resets them.
	Interval time.Duration
	// Open-state duration before probing again.
	Timeout time.Duration

	// The breaker trips once MinRequests were seen and the failure share
	// reaches FailureRatio.
	FailureRatio float64
	MinRequests  uint32
}

// DefaultCircuitBreakerConfig trips after half of at least five requests
// failed and probes again after 30 seconds.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:         name,
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

var breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "searchandising_upstream_breaker_state",
	Help: "Breaker state per upstream: 0 closed, 1 half-open, 2 open.",
}, []string{"name"})

func stateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// ErrCircuitOpen rejects requests while the breaker is open.
var ErrCircuitOpen = gobreaker.ErrOpenState

// serverError carries a 5xx response through the breaker so it counts as a
// failure while the caller still receives the response.
type serverError struct {
	resp *http.Response
}

func (e *serverError) Error() string {
	return fmt.Sprintf("server error %d", e.resp.StatusCode)
}

// BreakerTransport is an http.RoundTripper guarded by a circuit breaker.
// Transport errors and 5xx responses count as failures.
type BreakerTransport struct {
	base    http.RoundTripper
	breaker *gobreaker.CircuitBreaker[*http.Response]
	name    string
}

// NewBreakerTransport wraps base with a circuit breaker.
func NewBreakerTransport(base http.RoundTripper, cbCfg CircuitBreakerConfig, logger *slog.Logger) *BreakerTransport {
	settings := gobreaker.Settings{
		Name:        cbCfg.Name,
		MaxRequests: cbCfg.MaxRequests,
		Interval:    cbCfg.Interval,
		Timeout:     cbCfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cbCfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cbCfg.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			breakerState.WithLabelValues(name).Set(stateValue(to))
		},
	}

	breakerState.WithLabelValues(cbCfg.Name).Set(0)

	return &BreakerTransport{
		base:    base,
		breaker: gobreaker.NewCircuitBreaker[*http.Response](settings),
		name:    cbCfg.Name,
	}
}

// RoundTrip executes req through the circuit breaker.
func (t *BreakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.breaker.Execute(func() (*http.Response, error) {
		resp, err := t.base.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			return nil, &serverError{resp: resp}
		}
		return resp, nil
	})

	var srvErr *serverError
	if errors.As(err, &srvErr) {
		return srvErr.resp, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.name, err)
	}
	return resp, nil
}

// State returns the current state of the circuit breaker.
func (t *BreakerTransport) State() gobreaker.State {
	return t.breaker.State()
}
