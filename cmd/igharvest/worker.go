package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"igharvest/pkg/auth"
	"igharvest/pkg/checkpoint"
	"igharvest/pkg/config"
	"igharvest/pkg/dispatcher"
	"igharvest/pkg/enrich"
	"igharvest/pkg/fetcher"
	"igharvest/pkg/instagram"
	"igharvest/pkg/logger"
	"igharvest/pkg/models"
	"igharvest/pkg/notify"
	"igharvest/pkg/persister"
	"igharvest/pkg/ratelimit"
	"igharvest/pkg/retry"
	"igharvest/pkg/session"
	"igharvest/pkg/store"
	"igharvest/pkg/ui"
)

var (
	workerOnce     bool
	workerID       string
	workerTypes    []string
	workerMode     string
	workerMaxPages int
	workerAccount  string
)

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the dispatcher loop",
	Long: `Claim queued jobs one at a time and run account creation, account seed
and content seed for each, persisting every phase boundary.

The worker stops on its own only when the upstream session is rejected: the
job is marked DEAD and an alert is sent. SIGINT or SIGTERM hand the current
job back to the queue so the next worker resumes it.`,
	Example: `  # Run until interrupted
  igharvest worker

  # Drain the queue of PROFILE jobs and exit
  igharvest worker --once --job-types PROFILE

  # Only fetch content newer than what is already stored
  igharvest worker --mode incremental`,
	Args: cobra.NoArgs,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)

	workerCmd.Flags().BoolVar(&workerOnce, "once", false, "exit when no job is claimable")
	workerCmd.Flags().StringVar(&workerID, "worker-id", "", "id written to locked_by (default: random UUID)")
	workerCmd.Flags().StringSliceVar(&workerTypes, "job-types", nil, "job types to claim (PROFILE, POST)")
	workerCmd.Flags().StringVar(&workerMode, "mode", "", "content seed mode (full, incremental)")
	workerCmd.Flags().IntVar(&workerMaxPages, "max-pages", 0, "cap feed pages per job (0: unlimited)")
	workerCmd.Flags().StringVarP(&workerAccount, "account", "a", auth.DefaultLabel, "stored credential label")
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(map[string]interface{}{
		"once":      workerOnce,
		"worker-id": workerID,
		"job-types": upper(workerTypes),
		"mode":      workerMode,
		"max-pages": workerMaxPages,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	creds, err := resolveCredentials(cfg, workerAccount)
	if err != nil {
		return err
	}

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	d, err := buildDispatcher(cfg, log, creds, st)
	if err != nil {
		return err
	}

	ui.PrintBanner(version)
	ui.PrintInfo("Worker", d.WorkerID())
	ui.PrintInfo("Database", fmt.Sprintf("%s %s", st.Dialect(), cfg.Database.DSN))
	ui.PrintInfo("Job types", strings.Join(cfg.Worker.JobTypes, ", "))
	ui.PrintInfo("Seed mode", cfg.Pagination.Mode)

	err = d.Run(ctx)
	switch {
	case errors.Is(err, dispatcher.ErrSessionDead):
		ui.PrintError("Upstream session rejected", "refresh cookies with `igharvest auth login`, then `igharvest jobs requeue --force <id>`")
		return err
	case err != nil:
		return err
	}

	ui.PrintSuccess("Worker stopped")
	return nil
}

// buildDispatcher wires the session, fetcher, persister and side channels
func buildDispatcher(cfg *config.Config, log logger.Logger, creds session.Credentials, st *store.Store) (*dispatcher.Dispatcher, error) {
	jobTypes, err := parseJobTypes(cfg.Worker.JobTypes)
	if err != nil {
		return nil, err
	}
	mode, err := fetcher.ParseSeedMode(cfg.Pagination.Mode)
	if err != nil {
		return nil, err
	}

	sess, err := session.New(creds, session.Options{
		BaseURL:          cfg.Instagram.BaseURL,
		AppID:            cfg.Instagram.AppID,
		Timeout:          cfg.Instagram.RequestTimeout,
		CSRFRefreshEvery: cfg.Session.CSRFRefreshPages,
		Limiter:          ratelimit.NewPerMinute(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.BurstSize),
		Logger:           log,
	})
	if err != nil {
		return nil, err
	}

	var checkpoints checkpoint.Store = checkpoint.Nop{}
	if cfg.Checkpoint.Enabled {
		fs, err := checkpoint.NewFileStore(cfg.Checkpoint.Directory, log)
		if err != nil {
			return nil, err
		}
		checkpoints = fs
	}

	pacing := retry.NewPacing(cfg)
	f := fetcher.New(instagram.NewAPI(cfg.Instagram.GraphQLHash, log), fetcher.Options{
		PageSize:         cfg.Pagination.PageSize,
		MaxPages:         cfg.Pagination.MaxPages,
		Mode:             mode,
		MaxSingleWaits:   cfg.RateLimit.MaxSingleWaits,
		TransientRetries: cfg.RateLimit.TransientRetries,
		Pacing:           pacing,
		Checkpoints:      checkpoints,
		Logger:           log,
	})

	notifier, err := notify.New(&cfg.Notifications, log)
	if err != nil {
		return nil, err
	}

	opts := dispatcher.Options{
		WorkerID: cfg.Worker.ID,
		JobTypes: jobTypes,
		RunOnce:  cfg.Worker.RunOnce,
		Pacing:   pacing,
		Notifier: notifier,
		Logger:   log,
	}
	if cfg.Enrichment.Enabled {
		opts.Enricher = enrich.New(enrich.Options{
			Timeout:  cfg.Enrichment.Timeout,
			MaxLinks: cfg.Enrichment.MaxLinks,
			Logger:   log,
		})
	}

	p := persister.New(st, st, cfg.Instagram.BaseURL, log)
	return dispatcher.New(st, f, p, sess, opts), nil
}

// resolveCredentials prefers cookies from the config and falls back to the
// credential chain
func resolveCredentials(cfg *config.Config, label string) (session.Credentials, error) {
	configured := session.Credentials{
		SessionID: cfg.Session.SessionID,
		CSRFToken: cfg.Session.CSRFToken,
		DSUserID:  cfg.Session.DSUserID,
	}
	if configured.Valid() {
		return configured, nil
	}

	m, err := auth.NewManager("")
	if err != nil {
		return session.Credentials{}, err
	}
	creds, err := m.Resolve(label, configured)
	if err != nil {
		return session.Credentials{}, fmt.Errorf("no session cookie: set %s or run `igharvest auth login`: %w", auth.EnvSessionID, err)
	}
	return creds, nil
}

func parseJobTypes(raw []string) ([]models.JobType, error) {
	out := make([]models.JobType, 0, len(raw))
	for _, r := range raw {
		jt := models.JobType(strings.ToUpper(strings.TrimSpace(r)))
		if !jt.Valid() {
			return nil, fmt.Errorf("invalid job type %q", r)
		}
		out = append(out, jt)
	}
	return out, nil
}

func upper(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	return out
}
