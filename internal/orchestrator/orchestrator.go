package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"log/slog"

	"github.com/TeacherMada/tutor-engine/internal/adapter/observability"
	"github.com/TeacherMada/tutor-engine/internal/domain"
)

// Options tunes the attempt loop.
type Options struct {
	// AttemptTimeout bounds a single provider call.
	AttemptTimeout time.Duration
	// InitialInterval, MaxInterval and Multiplier pace the delay between
	// credential rotations within one logical request.
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

func (o Options) withDefaults() Options {
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = 60 * time.Second
	}
	if o.InitialInterval <= 0 {
		o.InitialInterval = 500 * time.Millisecond
	}
	if o.MaxInterval <= 0 {
		o.MaxInterval = 10 * time.Second
	}
	if o.Multiplier <= 0 {
		o.Multiplier = 2.0
	}
	return o
}

// Orchestrator runs provider attempts over the (model, credential) search
// space. Transient failures are fully absorbed here; callers only ever see a
// successful payload, a fatal error, or ErrProviderExhausted.
type Orchestrator struct {
	pool  *Pool
	chain *Chain
	opts  Options
}

// New constructs an Orchestrator over the given pool and chain.
func New(pool *Pool, chain *Chain, opts Options) *Orchestrator {
	return &Orchestrator{pool: pool, chain: chain, opts: opts.withDefaults()}
}

// Execute runs the bounded attempt loop for one logical request.
//
// Per model: quota and transient errors rotate the credential until the pool
// is exhausted for that model; model-unavailable advances the chain
// immediately. The loop terminates after at most models x credentials
// attempts. Fatal errors and caller cancellation propagate without further
// attempts.
func (o *Orchestrator) Execute(ctx context.Context, op string, attempt domain.AttemptFunc) ([]byte, error) {
	tracer := otel.Tracer("orchestrator")
	ctx, span := tracer.Start(ctx, "orchestrator.Execute")
	span.SetAttributes(attribute.String("feature", op))
	defer span.End()

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = o.opts.InitialInterval
	expo.MaxInterval = o.opts.MaxInterval
	expo.Multiplier = o.opts.Multiplier
	expo.MaxElapsedTime = 0 // the loop shape bounds attempts, not wall time

	var lastErr error
	for modelIdx := 0; modelIdx < o.chain.Len(); modelIdx++ {
		model := o.chain.At(modelIdx)
		if modelIdx > 0 {
			o.pool.Rewind()
			observability.ModelAdvancesTotal.WithLabelValues(op).Inc()
			slog.Warn("advancing to fallback model",
				slog.String("feature", op),
				slog.String("model", model.ID),
				slog.Int("model_index", model.Index))
		}

		for attemptsOnModel := 0; ; attemptsOnModel++ {
			cred := o.pool.Active()
			raw, err := o.runAttempt(ctx, op, model, cred, attempt)
			if err == nil {
				observability.ProviderAttemptsTotal.WithLabelValues(op, model.ID, "success").Inc()
				return raw, nil
			}
			lastErr = err

			if ctx.Err() != nil {
				// Caller cancelled or the overall deadline passed; abort the
				// remaining search space without charging anyone.
				return nil, fmt.Errorf("op=orchestrator.execute: %w", ctx.Err())
			}

			switch {
			case errors.Is(err, domain.ErrQuotaExceeded), errors.Is(err, domain.ErrTransient):
				observability.ProviderAttemptsTotal.WithLabelValues(op, model.ID, "retryable").Inc()
				if attemptsOnModel < o.pool.Size()-1 {
					next := o.pool.Rotate()
					observability.CredentialRotationsTotal.WithLabelValues(op).Inc()
					slog.Warn("rotating credential",
						slog.String("feature", op),
						slog.String("model", model.ID),
						slog.Int("credential_index", next.Index),
						slog.Any("error", err))
					if werr := o.wait(ctx, expo); werr != nil {
						return nil, werr
					}
					continue
				}
				// Every credential failed on this model; treat as unavailable
				// and advance the chain.
			case errors.Is(err, domain.ErrModelUnavailable):
				observability.ProviderAttemptsTotal.WithLabelValues(op, model.ID, "model_unavailable").Inc()
			default:
				// Fatal or unclassified: retrying would mask a real
				// integration bug.
				observability.ProviderAttemptsTotal.WithLabelValues(op, model.ID, "fatal").Inc()
				return nil, err
			}
			break
		}
	}

	observability.RequestsExhaustedTotal.WithLabelValues(op).Inc()
	slog.Error("all (model, credential) combinations failed",
		slog.String("feature", op),
		slog.Int("models", o.chain.Len()),
		slog.Int("credentials", o.pool.Size()),
		slog.Any("last_error", lastErr))
	return nil, fmt.Errorf("op=orchestrator.execute: %w: %w", domain.ErrProviderExhausted, lastErr)
}

// runAttempt makes one provider call under the per-attempt deadline.
func (o *Orchestrator) runAttempt(ctx context.Context, op string, model domain.ModelDescriptor, cred domain.Credential, attempt domain.AttemptFunc) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.opts.AttemptTimeout)
	defer cancel()
	start := time.Now()
	raw, err := attempt(callCtx, model, cred)
	observability.ProviderAttemptDuration.WithLabelValues(op, model.ID).Observe(time.Since(start).Seconds())
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		// A hung call that only tripped the per-attempt deadline counts as
		// transient; the next (model, credential) pair may still answer.
		return nil, fmt.Errorf("op=orchestrator.attempt: %w: %w", domain.ErrTransient, err)
	}
	return raw, err
}

// wait sleeps for the next backoff interval, honoring caller cancellation.
func (o *Orchestrator) wait(ctx context.Context, expo *backoff.ExponentialBackOff) error {
	d := expo.NextBackOff()
	if d == backoff.Stop {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("op=orchestrator.wait: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}
