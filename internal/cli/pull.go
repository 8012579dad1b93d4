package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"runpost/internal/pipeline"
	"runpost/internal/session"
	"runpost/internal/strava"
)

func init() {
	cmd := &cobra.Command{
		Use:   "pull PHOTOS_DIR",
		Short: "Pull recent Strava runs and match local photos against them",
		Long:  "Fetch recent running activities from Strava and process photos in PHOTOS_DIR against their GPS streams. Requires STRAVA_CLIENT_ID, STRAVA_CLIENT_SECRET and STRAVA_REFRESH_TOKEN.",
		Args:  cobra.ExactArgs(1),
		Run:   runPull,
	}

	cmd.Flags().Int("days", 7, "How many days back to fetch activities")
	cmd.Flags().Duration("window", 2*time.Hour, "Grouping window around an activity's start")
	cmd.Flags().Duration("tolerance", pipeline.DefaultTolerance, "Max photo-to-trackpoint time difference")
	cmd.Flags().Bool("business", false, "Prefer business-friendly captions")
	cmd.Flags().Bool("no-geotag", false, "Skip writing GPS tags into the photos")
	cmd.Flags().Bool("offline", false, "Skip reverse geocoding, use raw coordinates")

	RootCmd.AddCommand(cmd)
}

func runPull(cmd *cobra.Command, args []string) {
	photosDir := args[0]
	days, _ := cmd.Flags().GetInt("days")
	window, _ := cmd.Flags().GetDuration("window")
	tolerance, _ := cmd.Flags().GetDuration("tolerance")
	business, _ := cmd.Flags().GetBool("business")
	noGeotag, _ := cmd.Flags().GetBool("no-geotag")
	offline, _ := cmd.Flags().GetBool("offline")

	ctx := cmd.Context()

	client, err := strava.NewFromEnv()
	if err != nil {
		exitErr("strava credentials", err)
	}
	if err := client.Authenticate(ctx); err != nil {
		exitErr("strava auth", err)
	}

	activities, err := client.RecentActivities(ctx, days, 30)
	if err != nil {
		exitErr("fetch activities", err)
	}
	if len(activities) == 0 {
		fmt.Fprintf(os.Stderr, "no running activities in the last %d day(s)\n", days)
		return
	}

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
	for _, a := range activities {
		item, err := client.TrackItem(ctx, a)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: skipping activity %d (%s): %v\n", a.ID, a.Name, err)
			continue
		}
		g.AddTrack(item)
	}

	queued, err := queuePhotosFromDir(g, photosDir, tagger)
	if err != nil {
		exitErr("read photos", err)
	}
	if queued == 0 {
		exitErr("read photos", fmt.Errorf("no photos found in %s", photosDir))
	}

	p := newPipeline(s, tagger, tolerance, business, noGeotag, offline)
	report := p.Run(ctx, g, window)

	b, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(b))
	fmt.Fprintln(os.Stderr, report.Summary())
}
