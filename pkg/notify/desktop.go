package notify

import (
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// DesktopChannel raises a native notification through the platform's
// command line tool
type DesktopChannel struct {
	goos string
	run  func(name string, args ...string) error
}

// NewDesktopChannel targets the current platform
func NewDesktopChannel() *DesktopChannel {
	return &DesktopChannel{
		goos: runtime.GOOS,
		run: func(name string, args ...string) error {
			return exec.Command(name, args...).Run()
		},
	}
}

func (c *DesktopChannel) Name() string { return "desktop" }

func (c *DesktopChannel) Send(subject, body string, details *string) error {
	name, args, err := c.command(subject, body)
	if err != nil {
		return err
	}
	return c.run(name, args...)
}

func (c *DesktopChannel) command(title, message string) (string, []string, error) {
	switch c.goos {
	case "linux":
		return "notify-send", []string{"--urgency=critical", title, message}, nil
	case "darwin":
		script := fmt.Sprintf(`display notification %q with title %q`, message, title)
		return "osascript", []string{"-e", script}, nil
	case "windows":
		script := fmt.Sprintf(`
			[Windows.UI.Notifications.ToastNotificationManager, Windows.UI.Notifications, ContentType = WindowsRuntime] | Out-Null
			$tpl = [Windows.UI.Notifications.ToastTemplateType]::ToastText02
			$xml = [Windows.UI.Notifications.ToastNotificationManager]::GetTemplateContent($tpl)
			$text = $xml.GetElementsByTagName("text")
			$text.Item(0).AppendChild($xml.CreateTextNode('%s')) | Out-Null
			$text.Item(1).AppendChild($xml.CreateTextNode('%s')) | Out-Null
			$toast = [Windows.UI.Notifications.ToastNotification]::new($xml)
			[Windows.UI.Notifications.ToastNotificationManager]::CreateToastNotifier("igharvest").Show($toast)
		`, psQuote(title), psQuote(message))
		return "powershell", []string{"-NoProfile", "-NonInteractive", "-Command", script}, nil
	default:
		return "", nil, errors.New("desktop notifications are not supported on " + c.goos)
	}
}

func psQuote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
