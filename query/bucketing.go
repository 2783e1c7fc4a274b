package query

import "time"

// Bucketing maps metric samples onto half-open buckets
// [Start + i*Interval, Start + (i+1)*Interval).
type Bucketing struct {
	// Start is the range start truncated to whole seconds.
	Start    time.Time
	Interval time.Duration
}

// NewBucketing anchors buckets at start.
func NewBucketing(start time.Time, intervalSeconds int) Bucketing {
	return Bucketing{
		Start:    time.Unix(start.Unix(), 0).UTC(),
		Interval: time.Duration(intervalSeconds) * time.Second,
	}
}

// Index returns the bucket containing ts.
func (b Bucketing) Index(ts time.Time) int64 {
	step := int64(b.Interval / time.Second)
	if step <= 0 {
		return 0
	}
	delta := ts.Unix() - b.Start.Unix()
	idx := delta / step
	if delta%step != 0 && delta < 0 {
		idx--
	}
	return idx
}

// BucketStart returns the inclusive lower boundary of bucket idx.
func (b Bucketing) BucketStart(idx int64) time.Time {
	return b.Start.Add(time.Duration(idx) * b.Interval)
}

// Bounds returns the half-open boundaries of bucket idx.
func (b Bucketing) Bounds(idx int64) (time.Time, time.Time) {
	start := b.BucketStart(idx)
	return start, start.Add(b.Interval)
}
