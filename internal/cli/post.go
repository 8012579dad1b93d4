package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"runpost/internal/model"
	"runpost/internal/strava"
)

func init() {
	cmd := &cobra.Command{
		Use:   "post SESSION_ID",
		Short: "Print a session's captions, optionally push one to Strava",
		Long:  "Print the generated captions for a session. With --push, set the caption as the Strava activity description. The activity is taken from the session's track source unless --activity overrides it.",
		Args:  cobra.ExactArgs(1),
		Run:   runPost,
	}

	cmd.Flags().String("photo", "", "Pick the caption for this photo path (default: first)")
	cmd.Flags().Bool("push", false, "Push the caption to Strava")
	cmd.Flags().Int64("activity", 0, "Strava activity ID to update")

	RootCmd.AddCommand(cmd)
}

func runPost(cmd *cobra.Command, args []string) {
	photoPath, _ := cmd.Flags().GetString("photo")
	push, _ := cmd.Flags().GetBool("push")
	activityID, _ := cmd.Flags().GetInt64("activity")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	sess, err := s.Get(cmd.Context(), args[0])
	if err != nil {
		exitErr("post", err)
	}
	if len(sess.Captions) == 0 {
		exitErr("post", fmt.Errorf("session %s has no captions", sess.ID))
	}

	chosen, err := pickCaption(sess.Captions, photoPath)
	if err != nil {
		exitErr("post", err)
	}

	if !push {
		fmt.Println(chosen.Text)
		return
	}

	if activityID == 0 {
		activityID, err = activityFromSource(sess.Track.Source)
		if err != nil {
			exitErr("post", err)
		}
	}

	client, err := strava.NewFromEnv()
	if err != nil {
		exitErr("strava credentials", err)
	}
	if err := client.Authenticate(cmd.Context()); err != nil {
		exitErr("strava auth", err)
	}
	if err := client.UpdateDescription(cmd.Context(), activityID, chosen.Text); err != nil {
		exitErr("update activity", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"activity":%d}`+"\n", activityID)
}

func pickCaption(captions []model.CaptionResult, photoPath string) (model.CaptionResult, error) {
	if photoPath == "" {
		return captions[0], nil
	}
	for _, c := range captions {
		if c.MediaPath == photoPath {
			return c, nil
		}
	}
	return model.CaptionResult{}, fmt.Errorf("no caption for photo %s", photoPath)
}

// activityFromSource extracts the numeric activity ID from a "strava:<id>"
// track source. Locally watched GPX tracks have no activity to update.
func activityFromSource(source string) (int64, error) {
	id, ok := strings.CutPrefix(source, "strava:")
	if !ok {
		return 0, fmt.Errorf("track %s is not a Strava activity, pass --activity", source)
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad activity id in %s: %w", source, err)
	}
	return n, nil
}
