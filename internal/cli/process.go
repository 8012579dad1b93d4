package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"runpost/internal/caption"
	"runpost/internal/geocode"
	"runpost/internal/gpx"
	"runpost/internal/model"
	"runpost/internal/photo"
	"runpost/internal/pipeline"
	"runpost/internal/session"
	"runpost/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "process PHOTOS_DIR TRACK_FILE",
		Short: "Match photos against a GPX track and generate captions",
		Args:  cobra.ExactArgs(2),
		Run:   runProcess,
	}

	cmd.Flags().Duration("window", 2*time.Hour, "Grouping window around the track start")
	cmd.Flags().Duration("tolerance", pipeline.DefaultTolerance, "Max photo-to-trackpoint time difference")
	cmd.Flags().Bool("business", false, "Prefer business-friendly captions")
	cmd.Flags().Bool("no-geotag", false, "Skip writing GPS tags into the photos")
	cmd.Flags().Bool("offline", false, "Skip reverse geocoding, use raw coordinates")

	RootCmd.AddCommand(cmd)
}

func runProcess(cmd *cobra.Command, args []string) {
	photosDir, trackFile := args[0], args[1]
	window, _ := cmd.Flags().GetDuration("window")
	tolerance, _ := cmd.Flags().GetDuration("tolerance")
	business, _ := cmd.Flags().GetBool("business")
	noGeotag, _ := cmd.Flags().GetBool("no-geotag")
	offline, _ := cmd.Flags().GetBool("offline")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	tagger := openTagger()
	if tagger != nil {
		defer tagger.Close()
	}

	g := session.New()
	if err := queueTrackFile(g, trackFile); err != nil {
		exitErr("read track", err)
	}
	queued, err := queuePhotosFromDir(g, photosDir, tagger)
	if err != nil {
		exitErr("read photos", err)
	}
	if queued == 0 {
		exitErr("read photos", fmt.Errorf("no photos found in %s", photosDir))
	}

	p := newPipeline(s, tagger, tolerance, business, noGeotag, offline)
	report := p.Run(cmd.Context(), g, window)

	b, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(b))
	fmt.Fprintln(os.Stderr, report.Summary())
}

// openTagger starts exiftool if it is installed. A nil tagger downgrades to
// mtime-based capture times and no GPS write-back.
func openTagger() *photo.Tagger {
	tagger, err := photo.NewTagger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: exiftool unavailable, using file times: %v\n", err)
		return nil
	}
	return tagger
}

func newPipeline(s *store.SQLiteStore, tagger *photo.Tagger, tolerance time.Duration, business, noGeotag, offline bool) *pipeline.Pipeline {
	composer, err := caption.New(caption.DefaultConfig(), nil)
	if err != nil {
		exitErr("caption config", err)
	}

	p := &pipeline.Pipeline{
		Store:     s,
		Composer:  composer,
		Tolerance: tolerance,
		Business:  business,
	}
	if !offline {
		p.Geocoder = geocode.NewNominatim()
	}
	if tagger != nil && !noGeotag {
		p.Tagger = tagger
	}
	return p
}

func queueTrackFile(g *session.Grouper, path string) error {
	samples, err := gpx.Samples(path)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return fmt.Errorf("no timestamped trackpoints in %s", path)
	}
	g.AddTrack(&model.TrackItem{
		Source:     path,
		ObservedAt: samples[0].Timestamp,
		Samples:    samples,
	})
	return nil
}

func queuePhotosFromDir(g *session.Grouper, dir string, tagger *photo.Tagger) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, e := range entries {
		if e.IsDir() || !photo.IsPhoto(strings.ToLower(filepath.Ext(e.Name()))) {
			continue
		}
		path := filepath.Join(dir, e.Name())

		capturedAt, err := captureTime(path, tagger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: skipping %s: %v\n", path, err)
			continue
		}
		g.AddMedia(&model.MediaItem{Path: path, CapturedAt: capturedAt})
		queued++
	}
	return queued, nil
}

func captureTime(path string, tagger *photo.Tagger) (time.Time, error) {
	if tagger != nil {
		return tagger.CaptureTime(path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}
