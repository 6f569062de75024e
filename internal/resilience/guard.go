package resilience

import "context"

// Guard pairs a circuit breaker with a retry policy for one dependency. The
// breaker wraps the whole retry loop, so one logical call is one breaker event.
type Guard struct {
	Breaker *CircuitBreaker
	Retry   RetryConfig
}

// CallVal runs fn under g's retry policy inside g's breaker. A nil breaker
// means retry only.
func CallVal[T any](ctx context.Context, g Guard, fn func(ctx context.Context) (T, error)) (T, error) {
	retried := func(ctx context.Context) (T, error) {
		return DoVal(ctx, g.Retry, fn)
	}
	if g.Breaker == nil {
		return retried(ctx)
	}
	return ExecuteVal(ctx, g.Breaker, retried)
}

// Call is CallVal for functions without a result.
func Call(ctx context.Context, g Guard, fn func(ctx context.Context) error) error {
	_, err := CallVal(ctx, g, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
