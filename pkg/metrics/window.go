package metrics

import (
	"sync"
	"time"
)

// Counts are the aggregated counters of one metric window.
type Counts struct {
	// Total is every evaluated request in the window.
	Total int64

	// Successful is requests that completed without a backend or
	// evaluation error and were decided cleanly either way.
	Successful int64

	// Failed is backend/evaluation errors.
	Failed int64

	// Blocked is requests whose enforced decision was a block.
	Blocked int64
}

// Add folds another set of counts into c.
func (c *Counts) Add(other Counts) {
	c.Total += other.Total
	c.Successful += other.Successful
	c.Failed += other.Failed
	c.Blocked += other.Blocked
}

// SuccessRate returns successful/total, or 0 for an empty window.
func (c Counts) SuccessRate() float64 {
	if c.Total == 0 {
		return 0
	}
	return float64(c.Successful) / float64(c.Total)
}

// ErrorRate returns failed/total, or 0 for an empty window.
func (c Counts) ErrorRate() float64 {
	if c.Total == 0 {
		return 0
	}
	return float64(c.Failed) / float64(c.Total)
}

// rollingWindow tracks counts over a rolling horizon using a circular
// buffer of fixed-size buckets. Bucket granularity bounds memory: a one
// hour horizon at ten second buckets is 360 buckets regardless of traffic.
type rollingWindow struct {
	horizon    time.Duration // Total tracked duration
	bucketSize time.Duration // Granularity of each bucket
	buckets    []windowBucket
	mu         sync.Mutex
}

type windowBucket struct {
	timestamp time.Time
	counts    Counts
}

// newRollingWindow creates a rolling window covering horizon at bucketSize
// granularity.
func newRollingWindow(horizon, bucketSize time.Duration) *rollingWindow {
	numBuckets := int(horizon / bucketSize)
	if numBuckets == 0 {
		numBuckets = 1
	}
	return &rollingWindow{
		horizon:    horizon,
		bucketSize: bucketSize,
		buckets:    make([]windowBucket, numBuckets),
	}
}

// add folds counts into the bucket for ts, pruning expired buckets.
func (rw *rollingWindow) add(ts time.Time, counts Counts) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	rw.pruneLocked(ts)
	rw.findOrCreateBucketLocked(ts).counts.Add(counts)
}

// sum returns the combined counts of all buckets within window of now.
// window larger than the horizon is clamped to the horizon.
func (rw *rollingWindow) sum(now time.Time, window time.Duration) Counts {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	rw.pruneLocked(now)

	if window <= 0 || window > rw.horizon {
		window = rw.horizon
	}
	cutoff := now.Add(-window)

	var total Counts
	for i := range rw.buckets {
		b := &rw.buckets[i]
		if b.timestamp.IsZero() || b.timestamp.Before(cutoff.Truncate(rw.bucketSize)) {
			continue
		}
		total.Add(b.counts)
	}
	return total
}

// pruneLocked clears buckets older than the horizon. Caller holds the lock.
func (rw *rollingWindow) pruneLocked(now time.Time) {
	cutoff := now.Add(-rw.horizon)
	for i := range rw.buckets {
		if !rw.buckets[i].timestamp.IsZero() && rw.buckets[i].timestamp.Before(cutoff) {
			rw.buckets[i] = windowBucket{}
		}
	}
}

// findOrCreateBucketLocked returns the bucket for ts, reusing the oldest
// slot when the ring is full. Caller holds the lock.
func (rw *rollingWindow) findOrCreateBucketLocked(ts time.Time) *windowBucket {
	bucketTime := ts.Truncate(rw.bucketSize)

	for i := range rw.buckets {
		if rw.buckets[i].timestamp.Equal(bucketTime) {
			return &rw.buckets[i]
		}
	}

	target := -1
	for i := range rw.buckets {
		if rw.buckets[i].timestamp.IsZero() {
			target = i
			break
		}
	}
	if target == -1 {
		oldest := 0
		for i := 1; i < len(rw.buckets); i++ {
			if rw.buckets[i].timestamp.Before(rw.buckets[oldest].timestamp) {
				oldest = i
			}
		}
		target = oldest
	}

	rw.buckets[target] = windowBucket{timestamp: bucketTime}
	return &rw.buckets[target]
}
