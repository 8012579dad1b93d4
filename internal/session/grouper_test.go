package session

import (
	"errors"
	"testing"
	"time"

	"runpost/internal/model"
)

var anchor = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

func TestGroupByWindow(t *testing.T) {
	g := New()
	g.AddTrack(&model.TrackItem{Source: "run.gpx", ObservedAt: anchor})
	g.AddMedia(&model.MediaItem{Path: "inside.jpg", CapturedAt: anchor.Add(30 * time.Minute)})
	g.AddMedia(&model.MediaItem{Path: "boundary.jpg", CapturedAt: anchor.Add(2 * time.Hour)})
	g.AddMedia(&model.MediaItem{Path: "outside.jpg", CapturedAt: anchor.Add(3 * time.Hour)})

	candidates := g.Group(2 * time.Hour)
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	if len(candidates[0].Media) != 2 {
		t.Fatalf("expected 2 media (boundary inclusive), got %d", len(candidates[0].Media))
	}
	for _, m := range candidates[0].Media {
		if m.Path == "outside.jpg" {
			t.Error("media outside the window must not be grouped")
		}
	}
}

func TestGroupEmptySetProducesNoCandidate(t *testing.T) {
	g := New()
	g.AddTrack(&model.TrackItem{Source: "lonely.gpx", ObservedAt: anchor})
	g.AddMedia(&model.MediaItem{Path: "far.jpg", CapturedAt: anchor.Add(48 * time.Hour)})

	if got := g.Group(2 * time.Hour); len(got) != 0 {
		t.Errorf("expected no candidates, got %d", len(got))
	}
}

func TestMediaClaimedUnderMultipleTracks(t *testing.T) {
	g := New()
	g.AddTrack(&model.TrackItem{Source: "a.gpx", ObservedAt: anchor})
	g.AddTrack(&model.TrackItem{Source: "b.gpx", ObservedAt: anchor.Add(time.Hour)})
	g.AddMedia(&model.MediaItem{Path: "shared.jpg", CapturedAt: anchor.Add(30 * time.Minute)})

	candidates := g.Group(2 * time.Hour)
	if len(candidates) != 2 {
		t.Fatalf("expected the same media under both tracks pre-commit, got %d candidates", len(candidates))
	}

	// First-committed-wins: committing the first consumes the media, the
	// second candidate is left empty and rejected.
	if _, err := g.Commit(candidates[0]); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	_, err := g.Commit(candidates[1])
	if !errors.Is(err, ErrNoMedia) {
		t.Errorf("expected ErrNoMedia for the losing candidate, got %v", err)
	}
}

func TestCommitMarksConsumed(t *testing.T) {
	g := New()
	track := &model.TrackItem{Source: "run.gpx", ObservedAt: anchor}
	media := &model.MediaItem{Path: "p.jpg", CapturedAt: anchor}
	g.AddTrack(track)
	g.AddMedia(media)

	candidates := g.Group(time.Hour)
	s, err := g.Commit(candidates[0])
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if s.ID == "" {
		t.Error("expected non-empty session id")
	}
	if track.State != model.Committed || media.State != model.Committed {
		t.Error("expected items committed")
	}

	// Re-running the pass is idempotent: consumed items never re-group.
	if got := g.Group(time.Hour); len(got) != 0 {
		t.Errorf("expected no candidates after commit, got %d", len(got))
	}

	m, tr := g.Pending()
	if m != 0 || tr != 0 {
		t.Errorf("expected no pending items, got %d media %d tracks", m, tr)
	}
}

func TestCommitTrackTwiceRejected(t *testing.T) {
	g := New()
	g.AddTrack(&model.TrackItem{Source: "run.gpx", ObservedAt: anchor})
	g.AddMedia(&model.MediaItem{Path: "p.jpg", CapturedAt: anchor})

	candidates := g.Group(time.Hour)
	if _, err := g.Commit(candidates[0]); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := g.Commit(candidates[0]); !errors.Is(err, ErrTrackConsumed) {
		t.Errorf("expected ErrTrackConsumed on replay, got %v", err)
	}
}

func TestSessionIDsUnique(t *testing.T) {
	g := New()
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		track := &model.TrackItem{Source: "run.gpx", ObservedAt: anchor}
		media := &model.MediaItem{Path: "p.jpg", CapturedAt: anchor}
		g.AddTrack(track)
		g.AddMedia(media)
		candidates := g.Group(time.Hour)
		if len(candidates) != 1 {
			t.Fatalf("expected 1 candidate, got %d", len(candidates))
		}
		s, err := g.Commit(candidates[0])
		if err != nil {
			t.Fatalf("commit: %v", err)
		}
		if seen[s.ID] {
			t.Fatalf("duplicate session id %s", s.ID)
		}
		seen[s.ID] = true
	}
}

func TestNewItemsAfterPass(t *testing.T) {
	g := New()
	g.AddTrack(&model.TrackItem{Source: "a.gpx", ObservedAt: anchor})
	g.AddMedia(&model.MediaItem{Path: "p1.jpg", CapturedAt: anchor})

	for _, c := range g.Group(time.Hour) {
		if _, err := g.Commit(c); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}

	// A later arrival groups against a new track only.
	g.AddTrack(&model.TrackItem{Source: "b.gpx", ObservedAt: anchor.Add(time.Minute)})
	g.AddMedia(&model.MediaItem{Path: "p2.jpg", CapturedAt: anchor.Add(time.Minute)})

	candidates := g.Group(time.Hour)
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	if len(candidates[0].Media) != 1 || candidates[0].Media[0].Path != "p2.jpg" {
		t.Errorf("expected only the new media item, got %+v", candidates[0].Media)
	}
}
