package notify

import (
	"errors"
	"fmt"
	"net/smtp"
	"strings"
	"time"
)

const subjectPrefix = "[igharvest alert] "

// EmailConfig holds SMTP settings
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// EmailChannel sends plain text alerts over SMTP. smtp.SendMail upgrades to
// STARTTLS when the server offers it.
type EmailChannel struct {
	cfg      EmailConfig
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	now      func() time.Time
}

// NewEmailChannel validates cfg and creates an EmailChannel
func NewEmailChannel(cfg EmailConfig) (*EmailChannel, error) {
	var problems []error
	if cfg.Host == "" {
		problems = append(problems, errors.New("SMTP host not configured"))
	}
	if cfg.From == "" {
		problems = append(problems, errors.New("from address not configured"))
	}
	if len(cfg.To) == 0 {
		problems = append(problems, errors.New("no alert recipients configured"))
	}
	if err := errors.Join(problems...); err != nil {
		return nil, fmt.Errorf("email channel: %w", err)
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &EmailChannel{
		cfg:      cfg,
		sendMail: smtp.SendMail,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Send(subject, body string, details *string) error {
	var auth smtp.Auth
	if c.cfg.Username != "" {
		auth = smtp.PlainAuth("", c.cfg.Username, c.cfg.Password, c.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)
	if err := c.sendMail(addr, auth, c.cfg.From, c.cfg.To, c.message(subject, body, details)); err != nil {
		return fmt.Errorf("send alert email: %w", err)
	}
	return nil
}

func (c *EmailChannel) message(subject, body string, details *string) []byte {
	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", c.cfg.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(c.cfg.To, ", ")))
	msg.WriteString(fmt.Sprintf("Subject: %s%s\r\n", subjectPrefix, subject))
	msg.WriteString(fmt.Sprintf("Date: %s\r\n", c.now().Format(time.RFC1123Z)))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")

	msg.WriteString(fmt.Sprintf("Time: %s\r\n\r\n", c.now().Format("2006-01-02 15:04:05 UTC")))
	msg.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	msg.WriteString("\r\n")
	if details != nil && *details != "" {
		msg.WriteString("\r\nError details:\r\n")
		msg.WriteString(strings.ReplaceAll(*details, "\n", "\r\n"))
		msg.WriteString("\r\n")
	}
	return []byte(msg.String())
}
