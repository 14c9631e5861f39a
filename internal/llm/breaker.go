package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/systemshift/graphchat/internal/metrics"
)

// ErrUnavailable is returned while the breaker is open.
var ErrUnavailable = errors.New("model gateway unavailable")

// BreakerConfig holds circuit breaker settings.
type BreakerConfig struct {
	// MaxFailures consecutive failures open the breaker.
	MaxFailures uint32
	// Cooldown is how long the breaker stays open before a trial request.
	Cooldown time.Duration
}

// Guarded wraps a Client with a circuit breaker and request metrics.
type Guarded struct {
	next    Client
	cb      *gobreaker.CircuitBreaker
	metrics *metrics.Collector
}

// NewGuarded wraps next. m may be nil.
func NewGuarded(next Client, cfg BreakerConfig, m *metrics.Collector, logger *zap.Logger) *Guarded {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = 30 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        next.Name(),
		MaxRequests: 1,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("model gateway breaker state changed",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			// A caller giving up or an empty reply is not a provider failure.
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrEmptyResponse)
		},
	})

	return &Guarded{next: next, cb: cb, metrics: m}
}

func (g *Guarded) Name() string { return g.next.Name() }

// Complete forwards to the wrapped client unless the breaker is open.
func (g *Guarded) Complete(ctx context.Context, req Request) (*Response, error) {
	out, err := g.cb.Execute(func() (any, error) {
		return g.next.Complete(ctx, req)
	})
	if g.metrics != nil {
		g.metrics.GatewayRequests.WithLabelValues(g.next.Name(), metrics.Status(err)).Inc()
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if err != nil {
		return nil, err
	}
	return out.(*Response), nil
}

// State reports the breaker state for health output.
func (g *Guarded) State() string {
	return g.cb.State().String()
}
