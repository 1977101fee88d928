package ratelimit

import "context"

// Operation is a unit of work that can be guarded by a Limiter.
type Operation[T any] func(ctx context.Context) (T, error)

// IdentifierFunc resolves the caller an invocation is accounted against.
type IdentifierFunc func(ctx context.Context) string

// Guard wraps op so that every invocation is admitted by l under cfg first.
// A denied invocation returns an *ExceededError without running op. After op
// runs, its outcome is reported back so the skip flags can refund the
// admission; op's own error is returned unchanged.
func Guard[T any](l *Limiter, cfg Config, identify IdentifierFunc, op Operation[T]) (Operation[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return func(ctx context.Context) (T, error) {
		var zero T

		identifier := identify(ctx)
		if identifier == "" {
			return zero, ErrEmptyIdentifier
		}

		res, err := l.Check(identifier, cfg)
		if err != nil {
			return zero, err
		}
		if !res.Allowed {
			return zero, &ExceededError{Result: res}
		}

		out, err := op(ctx)
		if err != nil {
			if cfg.SkipFailedRequests {
				l.refund(identifier, cfg, "failure")
			}
			return out, err
		}

		if cfg.SkipSuccessfulRequests {
			l.refund(identifier, cfg, "success")
		}
		return out, nil
	}, nil
}

// GuardPreset is Guard with a config taken from the preset catalog.
func GuardPreset[T any](l *Limiter, name PresetName, identify IdentifierFunc, op Operation[T]) (Operation[T], error) {
	cfg, err := Preset(name)
	if err != nil {
		return nil, err
	}
	return Guard(l, cfg, identify, op)
}

// StaticIdentifier returns an IdentifierFunc that always yields id.
func StaticIdentifier(id string) IdentifierFunc {
	return func(context.Context) string { return id }
}
