// Package session groups pending media and track items into session
// candidates by time proximity, and commits them exclusively.
package session

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"runpost/internal/model"
)

var (
	// ErrTrackConsumed means the candidate's track was already committed
	// under another session.
	ErrTrackConsumed = errors.New("track already committed")

	// ErrNoMedia means every media item of the candidate was committed
	// elsewhere first, leaving nothing to fold into a session.
	ErrNoMedia = errors.New("no uncommitted media left in candidate")
)

// Candidate is an uncommitted pairing of one track with the media items that
// fell inside its time window. Media membership is not exclusive until the
// candidate is committed.
type Candidate struct {
	Track *model.TrackItem
	Media []*model.MediaItem
}

// Grouper holds the pending queues and their item states. It is the only
// mutable shared state in the core; every scan-and-commit sequence runs under
// one mutex.
type Grouper struct {
	mu      sync.Mutex
	media   []*model.MediaItem
	tracks  []*model.TrackItem
	entropy *ulid.MonotonicEntropy
}

// New returns an empty Grouper.
func New() *Grouper {
	return &Grouper{
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// AddMedia queues a photo for grouping.
func (g *Grouper) AddMedia(item *model.MediaItem) {
	g.mu.Lock()
	defer g.mu.Unlock()
	item.State = model.Pending
	g.media = append(g.media, item)
}

// AddTrack queues a track log or remote activity for grouping.
func (g *Grouper) AddTrack(item *model.TrackItem) {
	g.mu.Lock()
	defer g.mu.Unlock()
	item.State = model.Pending
	g.tracks = append(g.tracks, item)
}

// Pending reports the number of unconsumed media and track items.
func (g *Grouper) Pending() (media, tracks int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, m := range g.media {
		if m.State != model.Committed {
			media++
		}
	}
	for _, t := range g.tracks {
		if t.State != model.Committed {
			tracks++
		}
	}
	return media, tracks
}

// Group partitions the queues into candidates: for each unconsumed track,
// every unconsumed media item whose capture time is within window of the
// track's observed time (inclusive boundary). A media item may appear under
// more than one track in the same pass; exclusivity is enforced at commit
// time. Tracks with an empty media set produce no candidate.
func (g *Grouper) Group(window time.Duration) []Candidate {
	g.mu.Lock()
	defer g.mu.Unlock()

	var candidates []Candidate
	for _, track := range g.tracks {
		if track.State == model.Committed {
			continue
		}

		var media []*model.MediaItem
		for _, m := range g.media {
			if m.State == model.Committed {
				continue
			}
			diff := m.CapturedAt.Sub(track.ObservedAt)
			if diff < 0 {
				diff = -diff
			}
			if diff <= window {
				media = append(media, m)
			}
		}

		if len(media) > 0 {
			track.State = model.Claimed
			for _, m := range media {
				m.State = model.Claimed
			}
			candidates = append(candidates, Candidate{Track: track, Media: media})
		}
	}
	return candidates
}

// Commit consumes a candidate: first-committed-wins. Media items that were
// committed under an earlier candidate in the same pass are dropped; if the
// track was already committed, or no media remain, the commit is rejected and
// no state changes. On success every folded item transitions to Committed and
// the returned session carries a fresh unique id.
func (g *Grouper) Commit(c Candidate) (*model.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if c.Track.State == model.Committed {
		return nil, fmt.Errorf("%w: %s", ErrTrackConsumed, c.Track.Source)
	}

	var media []*model.MediaItem
	for _, m := range c.Media {
		if m.State != model.Committed {
			media = append(media, m)
		}
	}
	if len(media) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoMedia, c.Track.Source)
	}

	now := time.Now().UTC()
	id := ulid.MustNew(ulid.Timestamp(now), g.entropy).String()

	c.Track.State = model.Committed
	s := &model.Session{
		ID:        id,
		Track:     *c.Track,
		CreatedAt: now,
	}
	for _, m := range media {
		m.State = model.Committed
		s.Media = append(s.Media, *m)
	}
	return s, nil
}
