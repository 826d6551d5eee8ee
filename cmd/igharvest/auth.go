package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"igharvest/pkg/auth"
	"igharvest/pkg/ui"
)

var (
	loginNoGuide bool
	logoutAll    bool
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage upstream session cookies",
	Long: `Manage the session cookies the worker signs upstream requests with.

Cookies are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - IGHARVEST_SESSION_ID / IGHARVEST_CSRF_TOKEN / IGHARVEST_DS_USER_ID (read only)

Cookies set in the config file or environment take precedence over stored ones.`,
}

var loginCmd = &cobra.Command{
	Use:   "login [label]",
	Short: "Store session cookies securely",
	Example: `  # Store the default cookie set
  igharvest auth login

  # Store a second set and use it with: igharvest worker --account backup
  igharvest auth login backup`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout [label]",
	Short: "Remove stored session cookies",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLogout,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stored cookie sets, masked",
	Args:  cobra.NoArgs,
	RunE:  runAuthStatus,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd, logoutCmd, statusCmd)

	loginCmd.Flags().BoolVar(&loginNoGuide, "no-guide", false, "skip the cookie extraction guide")
	logoutCmd.Flags().BoolVar(&logoutAll, "all", false, "remove every stored cookie set")
}

func labelArg(args []string) string {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return strings.TrimSpace(args[0])
	}
	return auth.DefaultLabel
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager("")
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	label := labelArg(args)
	reader := bufio.NewReader(os.Stdin)

	if !loginNoGuide {
		auth.WriteCookieGuide(os.Stdout)
		fmt.Println()
	}

	if existing, _ := manager.Retrieve(label); existing != nil {
		fmt.Printf("Cookie set '%s' already exists. Replace it? (y/N): ", label)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
	}

	fmt.Print("sessionid (hidden): ")
	sessionID, err := readSecret(reader)
	if err != nil {
		return fmt.Errorf("failed to read sessionid: %w", err)
	}
	if len(sessionID) < 20 || (!strings.Contains(sessionID, "%3A") && !strings.Contains(sessionID, ":")) {
		return errors.New("that does not look like a sessionid cookie (expected a long value containing %3A)")
	}

	fmt.Print("csrftoken (hidden, Enter to skip): ")
	csrfToken, err := readSecret(reader)
	if err != nil {
		return fmt.Errorf("failed to read csrftoken: %w", err)
	}

	fmt.Print("ds_user_id (Enter to skip): ")
	dsUserID, _ := reader.ReadString('\n')
	dsUserID = strings.TrimSpace(dsUserID)

	creds := &auth.Credentials{
		Label:     label,
		SessionID: sessionID,
		CSRFToken: csrfToken,
		DSUserID:  dsUserID,
	}
	if err := manager.Store(creds); err != nil {
		return err
	}

	masked := auth.Sanitize(creds)
	fmt.Println()
	ui.PrintSuccess("Cookie set saved: " + label)
	ui.PrintInfo("sessionid", masked.SessionID)
	if masked.CSRFToken != "" {
		ui.PrintInfo("csrftoken", masked.CSRFToken)
	}
	if label != auth.DefaultLabel {
		fmt.Printf("\nUse it with: igharvest worker --account %s\n", label)
	}
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager("")
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	if logoutAll {
		sets, err := manager.List()
		if err != nil {
			return err
		}
		for _, c := range sets {
			if err := manager.Delete(c.Label); err != nil && !errors.Is(err, auth.ErrCredentialsNotFound) {
				ui.PrintWarning("Failed to remove "+c.Label, err)
				continue
			}
			ui.PrintSuccess("Removed: " + c.Label)
		}
		return nil
	}

	label := labelArg(args)
	if err := manager.Delete(label); err != nil {
		return err
	}
	ui.PrintSuccess("Removed: " + label)
	return nil
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager("")
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	sets, err := manager.List()
	if err != nil {
		return err
	}
	if len(sets) == 0 {
		ui.PrintWarning("No stored cookies", "run `igharvest auth login`")
		return nil
	}

	rows := make([][]string, 0, len(sets))
	for _, c := range sets {
		m := auth.Sanitize(c)
		rows = append(rows, []string{m.Label, m.SessionID, orNone(m.CSRFToken), orNone(m.DSUserID), m.LastModified.Local().Format(time.DateTime)})
	}
	ui.PrintTable([]string{"LABEL", "SESSIONID", "CSRFTOKEN", "DS_USER_ID", "MODIFIED"}, rows)
	return nil
}

// readSecret reads a line without echo when stdin is a terminal
func readSecret(reader *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(b)), nil
		}
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
