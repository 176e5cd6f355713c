package gfw

import (
	"errors"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/samirrijal/forestlens/internal/core/domain"
	"github.com/samirrijal/forestlens/internal/core/ports"
	"github.com/samirrijal/forestlens/internal/pkg/metrics"
)

// newBreaker opens after 60% failures over at least 10 calls in a minute and
// probes again after 30s. Only upstream-side failures count: auth, rate limit
// and other 4xx replies prove the API is up.
func newBreaker(family ports.Family) *gobreaker.CircuitBreaker[*ports.RawResponse] {
	name := string(family)
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	return gobreaker.NewCircuitBreaker[*ports.RawResponse](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		IsSuccessful: countsAsSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("gfw circuit breaker state change", "family", name, "from", from.String(), "to", to.String())
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})
}

func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	var ue *domain.UpstreamError
	if !errors.As(err, &ue) {
		return false
	}
	switch ue.Code {
	case domain.CodeTimeout:
		return false
	case domain.CodeUpstream:
		return ue.Status != 0 && ue.Status < 500
	default:
		return true
	}
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
