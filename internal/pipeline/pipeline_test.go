package pipeline

import (
	"context"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"runpost/internal/caption"
	"runpost/internal/model"
	"runpost/internal/session"
	"runpost/internal/store"
)

var start = time.Date(2024, 6, 1, 7, 0, 0, 0, time.UTC)

type fakeGeocoder struct {
	name string
}

func (f fakeGeocoder) Reverse(ctx context.Context, lat, lon float64) (string, error) {
	return f.name, nil
}

func fptr(f float64) *float64 { return &f }

func testSamples() []model.GeoSample {
	return []model.GeoSample{
		{Latitude: 37.7749, Longitude: -122.4194, Elevation: fptr(10), Timestamp: start},
		{Latitude: 37.7750, Longitude: -122.4195, Elevation: fptr(12), Timestamp: start.Add(5 * time.Minute)},
		{Latitude: 37.7751, Longitude: -122.4196, Elevation: fptr(14), Timestamp: start.Add(10 * time.Minute)},
	}
}

func newTestPipeline(t *testing.T) (*Pipeline, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	composer, err := caption.New(caption.DefaultConfig(), rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("composer: %v", err)
	}

	return &Pipeline{
		Store:    s,
		Composer: composer,
		Geocoder: fakeGeocoder{name: "Golden Gate Park, California"},
	}, s
}

func TestRunProcessesCandidate(t *testing.T) {
	p, s := newTestPipeline(t)
	g := session.New()

	g.AddTrack(&model.TrackItem{Source: "strava:1", ObservedAt: start, Samples: testSamples()})
	g.AddMedia(&model.MediaItem{Path: "close.jpg", CapturedAt: start.Add(5*time.Minute + 10*time.Second)})
	g.AddMedia(&model.MediaItem{Path: "far.jpg", CapturedAt: start.Add(2 * time.Minute)})

	report := p.Run(context.Background(), g, 2*time.Hour)
	if len(report.Failures) != 0 {
		t.Fatalf("unexpected failures: %+v", report.Failures)
	}
	if len(report.Sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(report.Sessions))
	}

	sess := report.Sessions[0]
	if len(sess.Media) != 1 || sess.Media[0].Path != "close.jpg" {
		t.Fatalf("expected only the close photo matched, got %+v", sess.Media)
	}
	m := sess.Media[0]
	if m.Latitude != 37.7750 || m.Longitude != -122.4195 {
		t.Errorf("photo matched to wrong trackpoint: %+v", m)
	}
	if m.TimeDiffSeconds != 10 {
		t.Errorf("expected 10s time diff, got %f", m.TimeDiffSeconds)
	}
	if m.Location != "Golden Gate Park, California" {
		t.Errorf("expected geocoded location, got %q", m.Location)
	}

	if sess.Metrics.DurationSeconds != 600 {
		t.Errorf("expected 600s duration, got %f", sess.Metrics.DurationSeconds)
	}
	if sess.Metrics.ElevationGainMeters != 4 {
		t.Errorf("expected 4m gain, got %f", sess.Metrics.ElevationGainMeters)
	}

	if len(sess.Captions) != 1 {
		t.Fatalf("expected 1 caption, got %d", len(sess.Captions))
	}
	if strings.Contains(sess.Captions[0].Text, "{") {
		t.Errorf("placeholder leaked: %q", sess.Captions[0].Text)
	}
	// The location keyword drives the scenic category.
	if sess.Captions[0].Category != model.CategoryScenic {
		t.Errorf("expected scenic category, got %q", sess.Captions[0].Category)
	}

	// Persisted and reloadable.
	stored, err := s.Get(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Captions[0].Text != sess.Captions[0].Text {
		t.Error("stored captions differ from generated ones")
	}

	// The unmatched photo is still pending for a later pass.
	media, _ := g.Pending()
	if media != 1 {
		t.Errorf("expected 1 pending media, got %d", media)
	}
}

func TestRunIsolatesCandidateFailures(t *testing.T) {
	p, _ := newTestPipeline(t)
	g := session.New()

	// First track points at a missing GPX file, second is healthy.
	g.AddTrack(&model.TrackItem{Source: filepath.Join(t.TempDir(), "missing.gpx"), ObservedAt: start.Add(-3 * time.Hour)})
	g.AddTrack(&model.TrackItem{Source: "strava:2", ObservedAt: start, Samples: testSamples()})
	g.AddMedia(&model.MediaItem{Path: "a.jpg", CapturedAt: start.Add(-3 * time.Hour)})
	g.AddMedia(&model.MediaItem{Path: "b.jpg", CapturedAt: start})

	report := p.Run(context.Background(), g, time.Hour)
	if len(report.Failures) != 1 {
		t.Fatalf("expected 1 failure, got %+v", report.Failures)
	}
	if len(report.Sessions) != 1 {
		t.Fatalf("expected the healthy candidate to succeed, got %d sessions", len(report.Sessions))
	}
}

func TestRunNoMatchWithinTolerance(t *testing.T) {
	p, _ := newTestPipeline(t)
	p.Tolerance = 30 * time.Second
	g := session.New()

	g.AddTrack(&model.TrackItem{Source: "strava:3", ObservedAt: start, Samples: testSamples()})
	g.AddMedia(&model.MediaItem{Path: "off.jpg", CapturedAt: start.Add(2*time.Minute + 30*time.Second)})

	report := p.Run(context.Background(), g, time.Hour)
	if len(report.Sessions) != 0 {
		t.Fatalf("expected no sessions, got %d", len(report.Sessions))
	}
	if len(report.Failures) != 1 {
		t.Fatalf("expected 1 failure, got %+v", report.Failures)
	}
}

func TestRunSharedMediaCommitsOnce(t *testing.T) {
	p, _ := newTestPipeline(t)
	g := session.New()

	g.AddTrack(&model.TrackItem{Source: "strava:4", ObservedAt: start, Samples: testSamples()})
	g.AddTrack(&model.TrackItem{Source: "strava:5", ObservedAt: start.Add(30 * time.Minute), Samples: testSamples()})
	g.AddMedia(&model.MediaItem{Path: "shared.jpg", CapturedAt: start.Add(5 * time.Minute)})

	report := p.Run(context.Background(), g, 2*time.Hour)
	// First-committed-wins; losing the race is not a failure.
	if len(report.Sessions) != 1 {
		t.Fatalf("expected exactly 1 session, got %d", len(report.Sessions))
	}
	if len(report.Failures) != 0 {
		t.Fatalf("unexpected failures: %+v", report.Failures)
	}
}

type recordingTagger struct {
	paths []string
	lats  []float64
}

func (r *recordingTagger) Geotag(path string, lat, lon float64, elevation *float64) error {
	r.paths = append(r.paths, path)
	r.lats = append(r.lats, lat)
	return nil
}

func TestRunCommittedPhotoKeepsWinningCoordinates(t *testing.T) {
	p, _ := newTestPipeline(t)
	tagger := &recordingTagger{}
	p.Tagger = tagger
	g := session.New()

	// Both tracks claim the same photo; the second carries offset
	// coordinates and must not touch the photo after it is committed.
	offset := testSamples()
	for i := range offset {
		offset[i].Latitude += 0.5
	}
	g.AddTrack(&model.TrackItem{Source: "strava:7", ObservedAt: start, Samples: testSamples()})
	g.AddTrack(&model.TrackItem{Source: "strava:8", ObservedAt: start.Add(30 * time.Minute), Samples: offset})
	g.AddMedia(&model.MediaItem{Path: "shared.jpg", CapturedAt: start.Add(5 * time.Minute)})

	report := p.Run(context.Background(), g, 2*time.Hour)
	if len(report.Sessions) != 1 {
		t.Fatalf("expected exactly 1 session, got %d", len(report.Sessions))
	}
	if len(report.Failures) != 0 {
		t.Fatalf("unexpected failures: %+v", report.Failures)
	}

	if len(tagger.paths) != 1 || tagger.paths[0] != "shared.jpg" {
		t.Fatalf("expected a single geotag write, got %v", tagger.paths)
	}
	if tagger.lats[0] != 37.7750 {
		t.Errorf("photo tagged with the losing track's coordinates: %v", tagger.lats)
	}
	if report.Sessions[0].Media[0].Latitude != 37.7750 {
		t.Errorf("committed media mutated after commit: %+v", report.Sessions[0].Media[0])
	}
}

func TestRunIdempotentAcrossPasses(t *testing.T) {
	p, s := newTestPipeline(t)
	g := session.New()

	g.AddTrack(&model.TrackItem{Source: "strava:6", ObservedAt: start, Samples: testSamples()})
	g.AddMedia(&model.MediaItem{Path: "p.jpg", CapturedAt: start})

	first := p.Run(context.Background(), g, time.Hour)
	if len(first.Sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(first.Sessions))
	}

	second := p.Run(context.Background(), g, time.Hour)
	if len(second.Sessions) != 0 || len(second.Failures) != 0 {
		t.Fatalf("expected a no-op second pass, got %+v", second)
	}

	list, _ := s.List(context.Background(), store.ListParams{})
	if len(list) != 1 {
		t.Errorf("expected 1 persisted session, got %d", len(list))
	}
}
