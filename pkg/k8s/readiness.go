package k8s

import (
	"context"
	"errors"
	"fmt"
	"time"

	"k8s.io/client-go/kubernetes"
)

// pollInterval is the delay between readiness checks.
const pollInterval = 2 * time.Second

// ErrNotReady is returned when a readiness deadline elapses.
var ErrNotReady = errors.New("readiness deadline exceeded")

// PollForReadiness polls check until it reports ready, the deadline elapses,
// or the context is cancelled.
func PollForReadiness(
	ctx context.Context,
	deadline time.Duration,
	check func(ctx context.Context) (bool, error),
) error {
	pollCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		ready, err := check(pollCtx)
		if err != nil {
			return fmt.Errorf("readiness check: %w", err)
		}

		if ready {
			return nil
		}

		select {
		case <-pollCtx.Done():
			if ctx.Err() != nil {
				return fmt.Errorf("readiness wait cancelled: %w", ctx.Err())
			}

			return ErrNotReady
		case <-ticker.C:
		}
	}
}

// WaitForAPIServerReady waits for the API server to respond to a version
// request within the deadline. Errors during polling mean "not ready yet";
// only the deadline or cancellation ends the wait.
func WaitForAPIServerReady(
	ctx context.Context,
	clientset kubernetes.Interface,
	deadline time.Duration,
) error {
	return PollForReadiness(ctx, deadline, func(_ context.Context) (bool, error) {
		// ServerVersion is a lightweight health check.
		_, err := clientset.Discovery().ServerVersion()
		if err != nil {
			return false, nil //nolint:nilerr // returning nil to continue polling
		}

		return true, nil
	})
}
