// Package pipeline runs session candidates end to end: load track samples,
// aggregate metrics, match and geotag photos, resolve locations, compose
// captions, persist the session.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"runpost/internal/caption"
	"runpost/internal/geocode"
	"runpost/internal/gpx"
	"runpost/internal/model"
	"runpost/internal/session"
	"runpost/internal/store"
	"runpost/internal/track"
)

// DefaultTolerance is the matcher's time window for pairing a photo with a
// trackpoint.
const DefaultTolerance = 30 * time.Second

// Geotagger writes GPS tags back into a photo file. photo.Tagger satisfies
// it; a nil Geotagger disables write-back.
type Geotagger interface {
	Geotag(path string, lat, lon float64, elevation *float64) error
}

// Pipeline wires the collaborators around the core. Geocoder and Tagger may
// be nil; matching and metrics still run without them.
type Pipeline struct {
	Store    store.Store
	Composer *caption.Composer
	Geocoder geocode.Geocoder
	Tagger   Geotagger

	Tolerance time.Duration
	Business  bool
}

// Failure records one isolated per-candidate or per-photo error.
type Failure struct {
	Source string `json:"source"`
	Err    error  `json:"-"`
	Reason string `json:"reason"`
}

// Report aggregates the outcome of one grouping pass. Failures never abort
// the remaining queue; they are collected and reported together.
type Report struct {
	Sessions []*model.Session `json:"sessions"`
	Failures []Failure        `json:"failures,omitempty"`
}

func (r *Report) fail(source string, err error) {
	r.Failures = append(r.Failures, Failure{Source: source, Err: err, Reason: err.Error()})
}

// Summary renders a one-line pass outcome.
func (r *Report) Summary() string {
	return fmt.Sprintf("%d session(s) processed, %d failure(s)", len(r.Sessions), len(r.Failures))
}

// Run groups the pending queues and processes every candidate. Per-candidate
// failures are isolated; the pass always completes.
func (p *Pipeline) Run(ctx context.Context, g *session.Grouper, window time.Duration) *Report {
	report := &Report{}
	for _, c := range g.Group(window) {
		s, err := p.processCandidate(ctx, g, c, report)
		if err != nil {
			// Losing a commit race to an earlier candidate in the
			// same pass is expected, not a failure.
			if errors.Is(err, session.ErrNoMedia) || errors.Is(err, session.ErrTrackConsumed) {
				continue
			}
			report.fail(c.Track.Source, err)
			continue
		}
		report.Sessions = append(report.Sessions, s)
	}
	return report
}

func (p *Pipeline) processCandidate(ctx context.Context, g *session.Grouper, c session.Candidate, report *Report) (*model.Session, error) {
	// Photos committed under an earlier candidate in this pass belong to
	// that session; their tags must not be rewritten here.
	var media []*model.MediaItem
	for _, m := range c.Media {
		if m.State != model.Committed {
			media = append(media, m)
		}
	}
	if len(media) == 0 {
		return nil, fmt.Errorf("%w: %s", session.ErrNoMedia, c.Track.Source)
	}

	samples := c.Track.Samples
	if len(samples) == 0 {
		var err error
		samples, err = gpx.Samples(c.Track.Source)
		if err != nil {
			return nil, err
		}
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("no trackpoints in %s", c.Track.Source)
	}

	tolerance := p.Tolerance
	if tolerance == 0 {
		tolerance = DefaultTolerance
	}

	// Match each photo against the track. Unmatched photos stay in the
	// queue for a later pass; a single bad photo never sinks the session.
	var matched []*model.MediaItem
	var photoFailures []Failure
	for _, m := range media {
		point, err := track.FindClosest(m.CapturedAt, samples, tolerance)
		if err != nil {
			photoFailures = append(photoFailures, Failure{Source: m.Path, Err: err, Reason: err.Error()})
			continue
		}
		if point == nil {
			continue
		}

		m.Latitude = point.Latitude
		m.Longitude = point.Longitude
		m.Elevation = point.Elevation
		diff := m.CapturedAt.Sub(point.Timestamp).Seconds()
		if diff < 0 {
			diff = -diff
		}
		m.TimeDiffSeconds = diff

		if p.Tagger != nil {
			if err := p.Tagger.Geotag(m.Path, point.Latitude, point.Longitude, point.Elevation); err != nil {
				photoFailures = append(photoFailures, Failure{Source: m.Path, Err: err, Reason: err.Error()})
			}
		}

		m.Location = p.locate(ctx, point.Latitude, point.Longitude)
		matched = append(matched, m)
	}

	if len(matched) == 0 {
		return nil, fmt.Errorf("no photos matched track %s within %s: %s",
			c.Track.Source, tolerance, describeFailures(photoFailures))
	}

	s, err := g.Commit(session.Candidate{Track: c.Track, Media: matched})
	if err != nil {
		return nil, err
	}
	s.Metrics = track.Aggregate(samples)

	// Composer failures abort only this session's captions; metrics and
	// matching stand.
	for _, m := range s.Media {
		result, err := p.Composer.Compose(caption.Context{
			Metrics:         s.Metrics,
			Location:        m.Location,
			CapturedAt:      m.CapturedAt,
			BusinessContext: p.Business,
		}, m.Path)
		if err != nil {
			s.Captions = nil
			report.fail(m.Path, err)
			break
		}
		s.Captions = append(s.Captions, result)
	}

	if err := p.Store.Put(ctx, s); err != nil {
		return nil, err
	}

	// Photo-level errors from a session that still succeeded are reported
	// alongside it, not swallowed.
	report.Failures = append(report.Failures, photoFailures...)
	return s, nil
}

func (p *Pipeline) locate(ctx context.Context, lat, lon float64) string {
	if p.Geocoder == nil {
		return geocode.FallbackName(lat, lon)
	}
	name, err := p.Geocoder.Reverse(ctx, lat, lon)
	if err != nil || name == "" {
		return geocode.FallbackName(lat, lon)
	}
	return name
}

func describeFailures(failures []Failure) string {
	if len(failures) == 0 {
		return "no errors"
	}
	parts := make([]string, len(failures))
	for i, f := range failures {
		parts[i] = f.Source + ": " + f.Reason
	}
	return strings.Join(parts, "; ")
}
