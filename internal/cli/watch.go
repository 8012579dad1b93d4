package cli

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"runpost/internal/pipeline"
	"runpost/internal/session"
	"runpost/internal/watcher"
)

func init() {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch directories and process new photos and tracks as they arrive",
		Run:   runWatch,
	}

	cmd.Flags().StringSlice("photos", nil, "Photo directories to watch (required)")
	cmd.Flags().StringSlice("gpx", nil, "GPX directories to watch (required)")
	cmd.Flags().Duration("window", 2*time.Hour, "Grouping window around a track's start")
	cmd.Flags().Duration("tolerance", pipeline.DefaultTolerance, "Max photo-to-trackpoint time difference")
	cmd.Flags().Bool("business", false, "Prefer business-friendly captions")
	cmd.Flags().Bool("no-geotag", false, "Skip writing GPS tags into the photos")
	cmd.Flags().Bool("offline", false, "Skip reverse geocoding, use raw coordinates")

	cmd.MarkFlagRequired("photos")
	cmd.MarkFlagRequired("gpx")

	RootCmd.AddCommand(cmd)
}

func runWatch(cmd *cobra.Command, args []string) {
	photoDirs, _ := cmd.Flags().GetStringSlice("photos")
	gpxDirs, _ := cmd.Flags().GetStringSlice("gpx")
	window, _ := cmd.Flags().GetDuration("window")
	tolerance, _ := cmd.Flags().GetDuration("tolerance")
	business, _ := cmd.Flags().GetBool("business")
	noGeotag, _ := cmd.Flags().GetBool("no-geotag")
	offline, _ := cmd.Flags().GetBool("offline")

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

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
	p := newPipeline(s, tagger, tolerance, business, noGeotag, offline)

	var timer watcher.CaptureTimer
	if tagger != nil {
		timer = tagger
	}
	w, err := watcher.New(g, timer, log)
	if err != nil {
		exitErr("watcher", err)
	}
	if err := w.Watch(append(photoDirs, gpxDirs...)...); err != nil {
		exitErr("watch", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w.OnArrival = func() {
		report := p.Run(ctx, g, window)
		for _, sess := range report.Sessions {
			log.Info("session stored", "id", sess.ID, "photos", len(sess.Media), "track", sess.Track.Source)
		}
		for _, f := range report.Failures {
			log.Warn("processing failure", "source", f.Source, "reason", f.Reason)
		}
	}

	log.Info("watching for new runs", "window", window, "tolerance", tolerance)
	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		exitErr("watch", err)
	}
}
