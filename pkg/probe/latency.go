package probe

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/watchy-xyz/watchy/pkg/report"
)

const (
	latencySamples = 3
	sampleSpacing  = 100 * time.Millisecond

	// highLatencyMs is the p95 budget; beyond it the endpoint is still
	// reachable but flagged.
	highLatencyMs = 2000
)

// measureLatency issues HEAD probes against the endpoint and returns the
// elapsed milliseconds of the successful ones. Any HTTP status counts as
// reachable; only transport errors are dropped.
func (p *Prober) measureLatency(ctx context.Context, endpoint string) []int64 {
	samples := make([]int64, 0, latencySamples)
	for i := 0; i < latencySamples; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return samples
			case <-time.After(sampleSpacing):
			}
		}
		start := time.Now()
		resp, err := p.client.Do(ctx, http.MethodHead, endpoint, true)
		if err != nil {
			continue
		}
		resp.Body.Close()
		samples = append(samples, time.Since(start).Milliseconds())
	}
	return samples
}

// percentiles computes nearest-rank p50/p95/p99 over the samples. Ranks are
// floor(n*q) clamped to the last index, so small sample counts collapse the
// upper percentiles onto the maximum.
func percentiles(samples []int64) *report.LatencyMetrics {
	if len(samples) == 0 {
		return nil
	}
	sorted := make([]int64, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	return &report.LatencyMetrics{
		P50: sorted[len(sorted)/2],
		P95: sorted[rank(len(sorted), 0.95)],
		P99: sorted[rank(len(sorted), 0.99)],
	}
}

func rank(n int, q float64) int {
	i := int(float64(n) * q)
	if i >= n {
		return n - 1
	}
	return i
}
