package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"igharvest/pkg/auth"
	"igharvest/pkg/config"
	"igharvest/pkg/ui"
)

var configForce bool

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with every option and its default.

The file is written to --config, or to ~/.config/igharvest/config.yaml.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the configuration after merging flags, environment, file and
defaults. Cookie values and the SMTP password are masked.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd, configValidateCmd)

	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")
}

const exampleConfig = `# igharvest configuration
#
# Every option can also be set with an IGHARVEST_* environment variable,
# for example IGHARVEST_DB_DSN or IGHARVEST_SESSION_ID.

instagram:
  base_url: "https://www.instagram.com"
  app_id: "936619743392459"
  graphql_query_hash: "69cba403172132360e0a52400795328d"
  request_timeout: 15s

database:
  # sqlite or postgres
  driver: "sqlite"
  # SQLite file path, or a postgres:// URL
  dsn: "igharvest.db"
  max_open_conns: 4

session:
  # Leave empty to use cookies stored with 'igharvest auth login'
  session_id: ""
  csrf_token: ""
  ds_user_id: ""
  # Refresh the CSRF token every N feed pages
  csrf_refresh_pages: 5

rate_limit:
  requests_per_minute: 20
  burst_size: 2
  # Wait after the upstream answers 429
  cooldown: 3m
  # Cooldowns tolerated by one resolution or profile request
  max_single_waits: 3
  transient_retries: 2
  transient_backoff: 10s

pacing:
  page_delay_min: 8s
  page_delay_max: 16s
  job_delay_min: 30s
  job_delay_max: 90s
  idle_delay: 5s

pagination:
  page_size: 12
  # 0 walks the whole feed
  max_pages: 0
  # full or incremental
  mode: "full"

worker:
  # Random UUID when empty
  id: ""
  job_types: ["PROFILE", "POST"]
  run_once: false

notifications:
  enabled: true
  # log, desktop, email
  channels: ["log"]
  smtp_host: ""
  smtp_port: 587
  smtp_username: ""
  smtp_password: ""
  from: ""
  # to: ["ops@example.com"]

enrichment:
  enabled: true
  timeout: 10s
  max_links: 50

checkpoint:
  enabled: true
  directory: ".igharvest/checkpoints"

logging:
  # debug, info, warn, error
  level: "info"
  # console or json
  format: "console"
  file: ""
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = config.DefaultPath()
	}

	if _, err := os.Stat(path); err == nil && !configForce {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(exampleConfig), 0600); err != nil {
		return fmt.Errorf("failed to create configuration file: %w", err)
	}

	ui.PrintSuccess("Configuration file created: " + path)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Store session cookies with 'igharvest auth login'")
	fmt.Println("2. Check the file with 'igharvest config validate'")
	fmt.Println("3. Queue work with 'igharvest enqueue PROFILE <handle>' and run 'igharvest worker'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(masked(cfg))
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	ui.PrintHighlight("Effective configuration")
	fmt.Print(string(data))
	return nil
}

// masked returns a copy safe to print
func masked(cfg *config.Config) *config.Config {
	out := *cfg
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return auth.Sanitize(&auth.Credentials{SessionID: s}).SessionID
	}
	out.Session.SessionID = mask(cfg.Session.SessionID)
	out.Session.CSRFToken = mask(cfg.Session.CSRFToken)
	if cfg.Notifications.SMTPPassword != "" {
		out.Notifications.SMTPPassword = "********"
	}
	return &out
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		var joined interface{ Unwrap() []error }
		if errors.As(err, &joined) {
			ui.PrintError("Configuration has errors")
			for _, e := range joined.Unwrap() {
				fmt.Printf("  - %s\n", e)
			}
			return errors.New("invalid configuration")
		}
		return err
	}

	var warnings []string
	if cfg.Session.SessionID == "" {
		if _, err := resolveCredentials(cfg, auth.DefaultLabel); err != nil {
			warnings = append(warnings, "no session cookie configured or stored")
		}
	}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			warnings = append(warnings, fmt.Sprintf("cannot create log directory: %v", err))
		}
	}

	if len(warnings) > 0 {
		ui.PrintWarning("Configuration warnings")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
	}

	ui.PrintSuccess("Configuration is valid")
	ui.PrintInfo("Database", cfg.Database.Driver+" "+cfg.Database.DSN)
	ui.PrintInfo("Rate limit", fmt.Sprintf("%d requests/minute, cooldown %s", cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Cooldown))
	ui.PrintInfo("Job pacing", fmt.Sprintf("%s-%s", cfg.Pacing.JobDelayMin, cfg.Pacing.JobDelayMax))
	ui.PrintInfo("Seed mode", cfg.Pagination.Mode)
	ui.PrintInfo("Notifications", strings.Join(cfg.Notifications.Channels, ", "))
	return nil
}
