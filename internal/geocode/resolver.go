// Package geocode resolves address candidates to coordinates, trying
// providers in priority order.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cafemap/cafemap/internal/cafemap"
	"github.com/cafemap/cafemap/internal/metrics"
)

// ErrNoMatch is returned when no provider produced a usable coordinate for
// the address. Callers treat it as "coordinate absent", never as a run
// failure.
var ErrNoMatch = errors.New("geocode: no match")

// Provider is one address-to-coordinate backend.
type Provider interface {
	Name() string
	Geocode(ctx context.Context, address string) (*cafemap.GeocodeResult, error)
}

// Config controls resolver retry and throttling behavior.
type Config struct {
	// Timeout bounds each provider call.
	Timeout time.Duration
	// RetryBackoff is the pause before the single retry of a transient
	// provider failure.
	RetryBackoff time.Duration
	// RPS and Burst feed the shared token bucket; providers are networked
	// and rate limited, so concurrent workers all wait on the same bucket.
	RPS   float64
	Burst int
}

// Resolver tries providers in fixed priority order and returns the first
// usable coordinate. Identical address text with the same provider set
// resolves identically, which keeps canonical keys stable across runs.
type Resolver struct {
	providers []Provider
	limiter   *rate.Limiter
	timeout   time.Duration
	backoff   time.Duration
	logger    *zap.Logger
}

// New builds a Resolver. At least one provider is required: with no
// fallback path left, resolution is impossible and the pipeline must not
// start.
func New(providers []Provider, cfg Config, logger *zap.Logger) (*Resolver, error) {
	if len(providers) == 0 {
		return nil, &cafemap.ConfigError{Stage: "geocode", Reason: "no providers configured"}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &Resolver{
		providers: providers,
		limiter:   rate.NewLimiter(limit, burst),
		timeout:   timeout,
		backoff:   backoff,
		logger:    logger,
	}, nil
}

// Resolve implements cafemap.Geocoder. A transient provider error is
// retried once after a short backoff before falling through to the next
// provider in priority order. Results from different providers are never
// blended.
func (r *Resolver) Resolve(ctx context.Context, address string) (*cafemap.GeocodeResult, error) {
	if address == "" {
		return nil, ErrNoMatch
	}
	for _, provider := range r.providers {
		result, err := r.tryProvider(ctx, provider, address)
		if err == nil {
			metrics.ObserveGeocode(provider.Name(), "ok")
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("geocode canceled: %w", ctx.Err())
		}
		if errors.Is(err, ErrNoMatch) {
			metrics.ObserveGeocode(provider.Name(), "no_match")
			continue
		}
		metrics.ObserveGeocode(provider.Name(), "error")
		r.logger.Warn("geocode provider failed, falling through",
			zap.String("provider", provider.Name()),
			zap.Error(err))
	}
	return nil, ErrNoMatch
}

func (r *Resolver) tryProvider(ctx context.Context, provider Provider, address string) (*cafemap.GeocodeResult, error) {
	result, err := r.callOnce(ctx, provider, address)
	if err == nil || !isTransient(err) {
		return result, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(r.backoff):
	}
	return r.callOnce(ctx, provider, address)
}

func (r *Resolver) callOnce(ctx context.Context, provider Provider, address string) (*cafemap.GeocodeResult, error) {
	start := time.Now()
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveGeocodeRateLimitDelay(provider.Name(), waited)
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result, err := provider.Geocode(callCtx, address)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, ErrNoMatch
	}
	return result, nil
}

func isTransient(err error) bool {
	var pe *cafemap.ProviderError
	if errors.As(err, &pe) {
		return pe.Transient
	}
	return errors.Is(err, context.DeadlineExceeded)
}
