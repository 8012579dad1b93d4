// Package track provides pure functions over track-log sample sequences:
// nearest-sample matching and activity metrics aggregation.
package track

import (
	"errors"
	"time"

	"runpost/internal/model"
)

// ErrTimestampMismatch is returned when a query or sample timestamp is unset,
// which would otherwise produce a meaningless time delta.
var ErrTimestampMismatch = errors.New("cannot compare set and unset timestamps")

// naive strips zone information down to wall-clock time. GPX logs carry UTC
// timestamps while camera EXIF times are local wall-clock with no zone, so
// both sides are compared on their wall-clock fields alone.
func naive(t time.Time) time.Time {
	y, mo, d := t.Date()
	h, mi, s := t.Clock()
	return time.Date(y, mo, d, h, mi, s, t.Nanosecond(), time.UTC)
}

// FindClosest scans samples for the one closest in time to query, within
// tolerance. Returns nil when no sample qualifies; that is a valid outcome,
// not an error. Samples are scanned in the order given and an exact tie goes
// to the first sample encountered.
func FindClosest(query time.Time, samples []model.GeoSample, tolerance time.Duration) (*model.GeoSample, error) {
	if query.IsZero() {
		return nil, ErrTimestampMismatch
	}

	q := naive(query)
	var closest *model.GeoSample
	minDiff := time.Duration(1<<63 - 1)

	for i := range samples {
		if samples[i].Timestamp.IsZero() {
			return nil, ErrTimestampMismatch
		}
		diff := q.Sub(naive(samples[i].Timestamp))
		if diff < 0 {
			diff = -diff
		}
		if diff < minDiff && diff <= tolerance {
			minDiff = diff
			closest = &samples[i]
		}
	}

	return closest, nil
}
