// Package notify delivers operator alerts over email, desktop
// notifications and the log.
package notify

import (
	"fmt"
	"strings"

	"igharvest/pkg/config"
	"igharvest/pkg/logger"
)

// Channel is one alert destination
type Channel interface {
	Name() string
	Send(subject, body string, details *string) error
}

// Notifier fans an alert out to every configured channel
type Notifier struct {
	channels []Channel
	logger   logger.Logger
}

// NewNotifier creates a Notifier over explicit channels
func NewNotifier(log logger.Logger, channels ...Channel) *Notifier {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Notifier{channels: channels, logger: log.WithField("component", "notify")}
}

// New builds the channels named in the notification config. A disabled
// config yields a Notifier that only logs.
func New(cfg *config.NotificationConfig, log logger.Logger) (*Notifier, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if !cfg.Enabled {
		return NewNotifier(log, NewLogChannel(log)), nil
	}

	var channels []Channel
	for _, name := range cfg.Channels {
		switch strings.ToLower(name) {
		case "log":
			channels = append(channels, NewLogChannel(log))
		case "desktop":
			channels = append(channels, NewDesktopChannel())
		case "email":
			ch, err := NewEmailChannel(EmailConfig{
				Host:     cfg.SMTPHost,
				Port:     cfg.SMTPPort,
				Username: cfg.SMTPUsername,
				Password: cfg.SMTPPassword,
				From:     cfg.From,
				To:       cfg.To,
			})
			if err != nil {
				return nil, err
			}
			channels = append(channels, ch)
		default:
			return nil, fmt.Errorf("unknown notification channel %q", name)
		}
	}
	if len(channels) == 0 {
		channels = append(channels, NewLogChannel(log))
	}
	return NewNotifier(log, channels...), nil
}

// Notify sends the alert on every channel and reports whether at least one
// accepted it. Channel failures are logged, never returned.
func (n *Notifier) Notify(subject, body string, details *string) bool {
	delivered := false
	for _, ch := range n.channels {
		if err := ch.Send(subject, body, details); err != nil {
			n.logger.WithError(err).WithField("channel", ch.Name()).Warn("Alert delivery failed")
			continue
		}
		delivered = true
	}
	return delivered
}

// Channels returns the names of the configured channels
func (n *Notifier) Channels() []string {
	names := make([]string, 0, len(n.channels))
	for _, ch := range n.channels {
		names = append(names, ch.Name())
	}
	return names
}

// LogChannel writes alerts to the structured log
type LogChannel struct {
	logger logger.Logger
}

// NewLogChannel creates a LogChannel
func NewLogChannel(log logger.Logger) *LogChannel {
	return &LogChannel{logger: log}
}

func (c *LogChannel) Name() string { return "log" }

func (c *LogChannel) Send(subject, body string, details *string) error {
	fields := map[string]interface{}{"subject": subject, "body": body}
	if details != nil {
		fields["details"] = *details
	}
	c.logger.ErrorWithFields("Operator alert", fields)
	return nil
}
