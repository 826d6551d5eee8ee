package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"igharvest/pkg/config"
	"igharvest/pkg/instagram"
	"igharvest/pkg/models"
	"igharvest/pkg/store"
	"igharvest/pkg/ui"
	"igharvest/pkg/ui/tui"
)

var (
	listStatus    string
	listType      string
	listSource    string
	listLimit     int
	requeueForce  bool
	watchInterval time.Duration
)

// jobsCmd represents the jobs command
var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and manage the job queue",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs, oldest first",
	Example: `  igharvest jobs list --status RATE_LIMITED
  igharvest jobs list --type POST --limit 20`,
	Args: cobra.NoArgs,
	RunE: runJobsList,
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one job in detail",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsShow,
}

var jobsRequeueCmd = &cobra.Command{
	Use:   "requeue <id>...",
	Short: "Put jobs back to PENDING",
	Long: `Put jobs back to PENDING so a worker claims them again. The job resumes
from its last committed phase.

Failed and rate-limited jobs can be requeued directly. DEAD, SCRAPE_DONE and
jobs still marked running need --force.`,
	Example: `  # Revive a job after refreshing the session cookies
  igharvest jobs requeue --force 42`,
	Args: cobra.MinimumNArgs(1),
	RunE: runJobsRequeue,
}

var jobsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live dashboard of the job queue",
	Args:  cobra.NoArgs,
	RunE:  runJobsWatch,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd, jobsShowCmd, jobsRequeueCmd, jobsWatchCmd)

	jobsListCmd.Flags().StringVar(&listStatus, "status", "", "only jobs in this status")
	jobsListCmd.Flags().StringVar(&listType, "type", "", "only jobs of this type (PROFILE, POST)")
	jobsListCmd.Flags().StringVar(&listSource, "source", "", "only jobs from this source")
	jobsListCmd.Flags().IntVar(&listLimit, "limit", 50, "maximum number of jobs (0: all)")

	jobsRequeueCmd.Flags().BoolVar(&requeueForce, "force", false, "also requeue DEAD, done and running jobs")

	jobsWatchCmd.Flags().DurationVar(&watchInterval, "interval", tui.DefaultRefresh, "refresh interval")
}

// withStore runs fn against the configured store
func withStore(fn func(ctx context.Context, cfg *config.Config, st *store.Store) error) error {
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
	return fn(ctx, cfg, st)
}

func runJobsList(cmd *cobra.Command, args []string) error {
	filter := store.JobFilter{
		Type:   models.JobType(strings.ToUpper(listType)),
		Status: models.JobStatus(strings.ToUpper(listStatus)),
		Source: models.JobSource(strings.ToUpper(listSource)),
		Limit:  listLimit,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return fmt.Errorf("invalid status %q", listStatus)
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return fmt.Errorf("invalid job type %q", listType)
	}

	return withStore(func(ctx context.Context, _ *config.Config, st *store.Store) error {
		jobs, err := st.ListJobs(ctx, filter)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			ui.PrintInfo("Jobs", "none match")
			return nil
		}

		rows := make([][]string, 0, len(jobs))
		for _, j := range jobs {
			rows = append(rows, []string{
				strconv.FormatInt(j.ID, 10),
				string(j.Type),
				j.EntityKey,
				string(j.Source),
				string(j.Status),
				strconv.Itoa(j.Attempts),
				j.UpdatedAt.Local().Format(time.DateTime),
				store.Truncate(deref(j.LastError), 60),
			})
		}
		ui.PrintTable([]string{"ID", "TYPE", "KEY", "SOURCE", "STATUS", "TRY", "UPDATED", "LAST ERROR"}, rows)
		return nil
	})
}

func runJobsShow(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	return withStore(func(ctx context.Context, cfg *config.Config, st *store.Store) error {
		j, err := st.GetJob(ctx, id)
		if err != nil {
			return err
		}

		ui.PrintHighlight(fmt.Sprintf("Job #%d", j.ID))
		ui.PrintInfo("Type", string(j.Type))
		ui.PrintInfo("Key", j.EntityKey)
		if u := jobURL(cfg.Instagram.BaseURL, j); u != "" {
			ui.PrintInfo("URL", u)
		}
		ui.PrintInfo("Source", string(j.Source))
		ui.PrintInfo("Status", string(j.Status))
		ui.PrintInfo("Resume phase", orNone(string(j.ResumePhase)))
		ui.PrintInfo("Attempts", strconv.Itoa(j.Attempts))
		if j.RetryAfter != nil {
			ui.PrintInfo("Retry after", j.RetryAfter.Local().Format(time.DateTime))
		}
		ui.PrintInfo("Locked by", orNone(deref(j.LockedBy)))
		ui.PrintInfo("Created", j.CreatedAt.Local().Format(time.DateTime))
		ui.PrintInfo("Updated", j.UpdatedAt.Local().Format(time.DateTime))
		if j.LastError != nil {
			ui.PrintWarning("Last error", *j.LastError)
		}
		return nil
	})
}

func runJobsRequeue(cmd *cobra.Command, args []string) error {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := parseID(a)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}

	return withStore(func(ctx context.Context, _ *config.Config, st *store.Store) error {
		var failed int
		for _, id := range ids {
			j, err := st.Requeue(ctx, id, requeueForce)
			if err != nil {
				ui.PrintError(fmt.Sprintf("Job #%d not requeued", id), err)
				failed++
				continue
			}
			ui.PrintSuccess(fmt.Sprintf("Job #%d requeued, resumes after %s", j.ID, orNone(string(j.ResumePhase))))
		}
		if failed > 0 {
			return fmt.Errorf("%d job(s) not requeued", failed)
		}
		return nil
	})
}

func runJobsWatch(cmd *cobra.Command, args []string) error {
	return withStore(func(ctx context.Context, _ *config.Config, st *store.Store) error {
		return tui.Run(ctx, st, watchInterval)
	})
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid job id %q", s)
	}
	return id, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// jobURL links a job key to its public page. Keys that do not normalise yield
// an empty string.
func jobURL(baseURL string, j *models.Job) string {
	key, ok := normalizeKey(j.Type, j.EntityKey)
	if !ok {
		return ""
	}
	if j.Type == models.JobTypePost {
		return instagram.PostURI(baseURL, key)
	}
	return instagram.ProfileURI(baseURL, key)
}
