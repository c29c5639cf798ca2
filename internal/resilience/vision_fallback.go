package resilience

import (
	"context"

	"github.com/framelens/vigil/pkg/provider/vision"
)

// VisionFallback implements [vision.Querier] with automatic failover across
// multiple vision backends. Each backend has its own circuit breaker, so a
// rate-limited or unreachable primary is bypassed until it recovers.
type VisionFallback struct {
	group *FallbackGroup[vision.Querier]
}

// Compile-time interface assertion.
var _ vision.Querier = (*VisionFallback)(nil)

// NewVisionFallback creates a [VisionFallback] with primary as the preferred
// backend.
func NewVisionFallback(primary vision.Querier, primaryName string, cfg FallbackConfig) *VisionFallback {
	return &VisionFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional vision provider as a fallback.
func (f *VisionFallback) AddFallback(name string, querier vision.Querier) {
	f.group.AddFallback(name, querier)
}

// Query asks the first healthy backend about the image. If the primary fails
// or its breaker is open, subsequent fallbacks are tried in order.
func (f *VisionFallback) Query(ctx context.Context, image, question string) (string, error) {
	return ExecuteWithResult(f.group, func(q vision.Querier) (string, error) {
		return q.Query(ctx, image, question)
	})
}
