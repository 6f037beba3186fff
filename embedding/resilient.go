package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/slok/goresilience"
	"github.com/slok/goresilience/circuitbreaker"
	reserrors "github.com/slok/goresilience/errors"
	"github.com/slok/goresilience/retry"
	"github.com/slok/goresilience/timeout"

	"yashubustudio/termalign/alignment"
	"yashubustudio/termalign/internal/logger"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = reserrors.ErrCircuitOpen

// Resilient guards a remote embedder with a timeout, a circuit breaker and
// retries, in that order.
type Resilient struct {
	inner  Embedder
	runner goresilience.Runner
	logger logger.Logger
}

// NewResilient wraps inner. Zero retries disables retrying; other zero
// values fall back to the library defaults.
func NewResilient(inner Embedder, cfg alignment.ResilienceConfig, log logger.Logger) *Resilient {
	if log == nil {
		log = logger.NewNop()
	}
	cbMiddleware := circuitbreaker.NewMiddleware(circuitbreaker.Config{
		ErrorPercentThresholdToOpen:        cfg.ErrorPercentToOpen,
		MinimumRequestToOpen:               cfg.MinRequestsToOpen,
		SuccessfulRequiredOnHalfOpen:       1,
		WaitDurationInOpenState:            cfg.OpenWait,
		MetricsSlidingWindowBucketQuantity: 10,
		MetricsBucketDuration:              time.Second,
	})
	timeoutMiddleware := timeout.NewMiddleware(timeout.Config{
		Timeout: cfg.Timeout,
	})
	chain := []goresilience.Middleware{timeoutMiddleware, cbMiddleware}
	if cfg.Retries > 0 {
		chain = append(chain, retry.NewMiddleware(retry.Config{
			Times:    cfg.Retries,
			WaitBase: cfg.RetryWait,
		}))
	}
	return &Resilient{
		inner:  inner,
		runner: goresilience.RunnerChain(chain...),
		logger: log,
	}
}

func (r *Resilient) ModelID() string { return r.inner.ModelID() }

func (r *Resilient) Close() error { return r.inner.Close() }

// Embed runs the inner embedder through the middleware chain.
func (r *Resilient) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := r.runner.Run(ctx, func(ctx context.Context) (runErr error) {
		defer func() {
			if p := recover(); p != nil {
				runErr = fmt.Errorf("panic recovered: %v", p)
			}
		}()
		v, err := r.inner.Embed(ctx, text)
		if err != nil {
			return err
		}
		vec = v
		return nil
	})
	if err != nil {
		if errors.Is(err, reserrors.ErrCircuitOpen) {
			r.logger.Warn("embedder circuit open", "model", r.inner.ModelID())
		}
		return nil, err
	}
	return vec, nil
}
