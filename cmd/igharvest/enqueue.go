package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"igharvest/pkg/instagram"
	"igharvest/pkg/models"
	"igharvest/pkg/ui"
)

var enqueueSource string

// enqueueCmd represents the enqueue command
var enqueueCmd = &cobra.Command{
	Use:   "enqueue <PROFILE|POST> <key>...",
	Short: "Queue accounts or posts for harvesting",
	Long: `Queue one job per key. PROFILE keys are handles or profile URLs; POST keys
are shortcodes or post/reel URLs. Keys are normalized before queueing, so the
same account given twice in different forms is queued once.

Queueing an existing (type, key) pair is a no-op.`,
	Example: `  igharvest enqueue PROFILE natgeo https://www.instagram.com/nasa/
  igharvest enqueue POST https://www.instagram.com/p/C7xYz12AbCd/`,
	Args: cobra.MinimumNArgs(2),
	RunE: runEnqueue,
}

func init() {
	rootCmd.AddCommand(enqueueCmd)
	enqueueCmd.Flags().StringVar(&enqueueSource, "source", string(models.JobSourceManual), "job source (MANUAL, ORIGIN_A)")
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	jobType := models.JobType(strings.ToUpper(args[0]))
	if !jobType.Valid() {
		return fmt.Errorf("invalid job type %q (want PROFILE or POST)", args[0])
	}
	source := models.JobSource(strings.ToUpper(enqueueSource))
	if !source.Valid() {
		return fmt.Errorf("invalid source %q", enqueueSource)
	}

	cfg, log, err := setup(nil)
	if err != nil {
		return err
	}
	ctx := context.Background()
	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	var rejected int
	for _, raw := range args[1:] {
		key, ok := normalizeKey(jobType, raw)
		if !ok {
			ui.PrintWarning("Skipped unusable key", raw)
			rejected++
			continue
		}

		id, created, err := st.Enqueue(ctx, jobType, key, source)
		if err != nil {
			return err
		}
		if created {
			ui.PrintSuccess(fmt.Sprintf("Queued #%d %s %s", id, jobType, key))
		} else {
			ui.PrintInfo("Already queued", fmt.Sprintf("#%d %s %s", id, jobType, key))
		}
	}

	if rejected > 0 {
		return fmt.Errorf("%d key(s) rejected", rejected)
	}
	return nil
}

// normalizeKey reduces a user-supplied key to the bare handle or shortcode
func normalizeKey(jobType models.JobType, raw string) (string, bool) {
	switch jobType {
	case models.JobTypeProfile:
		return instagram.HandleFromKey(raw)
	case models.JobTypePost:
		return instagram.ShortcodeFromKey(raw)
	}
	return "", false
}
