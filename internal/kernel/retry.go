package kernel

import (
	"context"

	"github.com/cenkalti/backoff/v4"
)

// InitWithRetry runs k.Init with bounded exponential backoff. Kernel
// initialization is the engine's one blocking suspension point outside the
// debounce timer, and a native OCCT binding is the kind of external-process
// handshake that wants bounded retry rather than a single immediate
// failure.
func InitWithRetry(ctx context.Context, k GeometryKernel) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	return backoff.Retry(func() error {
		return k.Init(ctx)
	}, policy)
}
