package platform

import (
	"context"
	"errors"
	"fmt"

	"github.com/trungvu/bridge-worker/internal/models"
	"golang.org/x/time/rate"
)

// ErrRateLimited marks a push rejected by the target platform's rate
// limiter. Operators can tell "needs retry" from "permanently invalid
// mapping" by it, but both land the mapping in failed.
var ErrRateLimited = errors.New("rate limited by target platform")

// SourceClient reads fresh metric values from the point-of-sale platform.
type SourceClient interface {
	FetchValue(ctx context.Context, kind models.MappingKind, sourceID string) (float64, error)
}

// TargetClient pushes metric values to the storefront platform. Pushes
// are idempotent at the value level: re-pushing the same or a fresher
// value is harmless.
type TargetClient interface {
	PushValue(ctx context.Context, kind models.MappingKind, targetID string, value float64) error
}

// IsRateLimited reports whether an error chain contains a rate-limit
// rejection.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// ThrottledTarget caps push throughput against the storefront API
// independently of batch pacing. Wait blocks instead of failing, so a
// burst of batch workers degrades to a queue rather than a 429 storm.
type ThrottledTarget struct {
	inner   TargetClient
	limiter *rate.Limiter
}

func NewThrottledTarget(inner TargetClient, pushesPerSecond float64, burst int) *ThrottledTarget {
	return &ThrottledTarget{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(pushesPerSecond), burst),
	}
}

func (t *ThrottledTarget) PushValue(ctx context.Context, kind models.MappingKind, targetID string, value float64) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("throttle wait interrupted: %w", err)
	}
	return t.inner.PushValue(ctx, kind, targetID, value)
}
