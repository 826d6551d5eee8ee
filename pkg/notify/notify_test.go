package notify

import (
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igharvest/pkg/config"
	"igharvest/pkg/logger"
)

type fakeChannel struct {
	name string
	err  error
	sent []string
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Send(subject, body string, details *string) error {
	f.sent = append(f.sent, subject)
	return f.err
}

func TestNotifyFansOut(t *testing.T) {
	log := logger.NewTestLogger()
	broken := &fakeChannel{name: "broken", err: errors.New("smtp down")}
	working := &fakeChannel{name: "working"}

	n := NewNotifier(log, broken, working)
	assert.True(t, n.Notify("session dead", "body", nil))
	assert.Equal(t, []string{"session dead"}, broken.sent)
	assert.Equal(t, []string{"session dead"}, working.sent)
	assert.True(t, log.HasMessage("Alert delivery failed"))
}

func TestNotifyReportsTotalFailure(t *testing.T) {
	n := NewNotifier(nil, &fakeChannel{name: "a", err: errors.New("x")})
	assert.False(t, n.Notify("s", "b", nil))
}

func TestLogChannel(t *testing.T) {
	log := logger.NewTestLogger()
	details := "login_required"
	n := NewNotifier(log, NewLogChannel(log))

	require.True(t, n.Notify("session dead", "worker stopped", &details))
	msgs := log.GetMessagesByLevel("ERROR")
	require.Len(t, msgs, 1)
	assert.Equal(t, "login_required", msgs[0].Fields["details"])
}

func TestNewFromConfig(t *testing.T) {
	t.Run("disabled only logs", func(t *testing.T) {
		n, err := New(&config.NotificationConfig{Enabled: false, Channels: []string{"email"}}, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"log"}, n.Channels())
	})

	t.Run("all channels", func(t *testing.T) {
		n, err := New(&config.NotificationConfig{
			Enabled:  true,
			Channels: []string{"log", "desktop", "email"},
			SMTPHost: "smtp.example.com",
			From:     "bot@example.com",
			To:       []string{"ops@example.com"},
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"log", "desktop", "email"}, n.Channels())
	})

	t.Run("email needs host and recipients", func(t *testing.T) {
		_, err := New(&config.NotificationConfig{Enabled: true, Channels: []string{"email"}}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "SMTP host")
		assert.Contains(t, err.Error(), "recipients")
	})

	t.Run("unknown channel", func(t *testing.T) {
		_, err := New(&config.NotificationConfig{Enabled: true, Channels: []string{"pager"}}, nil)
		assert.Error(t, err)
	})
}

func TestEmailChannelSend(t *testing.T) {
	ch, err := NewEmailChannel(EmailConfig{
		Host:     "smtp.example.com",
		Username: "bot",
		Password: "secret",
		From:     "bot@example.com",
		To:       []string{"ops@example.com", "oncall@example.com"},
	})
	require.NoError(t, err)
	ch.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	ch.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		assert.NotNil(t, a)
		return nil
	}

	details := "session_dead: profile: http 403"
	require.NoError(t, ch.Send("session dead", "line one\nline two", &details))

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "bot@example.com", gotFrom)
	assert.Equal(t, []string{"ops@example.com", "oncall@example.com"}, gotTo)

	msg := string(gotMsg)
	assert.Contains(t, msg, "Subject: [igharvest alert] session dead\r\n")
	assert.Contains(t, msg, "To: ops@example.com, oncall@example.com\r\n")
	assert.Contains(t, msg, "line one\r\nline two")
	assert.Contains(t, msg, "Error details:\r\nsession_dead: profile: http 403")
	assert.Contains(t, msg, "Time: 2026-03-01 12:00:00 UTC")
	assert.False(t, strings.Contains(msg, "secret"))
}

func TestEmailChannelWrapsFailure(t *testing.T) {
	ch, err := NewEmailChannel(EmailConfig{Host: "h", From: "f@x", To: []string{"t@x"}})
	require.NoError(t, err)
	ch.sendMail = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("refused") }

	err = ch.Send("s", "b", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refused")
}

func TestDesktopCommands(t *testing.T) {
	tests := []struct {
		goos string
		want string
	}{
		{"linux", "notify-send"},
		{"darwin", "osascript"},
		{"windows", "powershell"},
	}
	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			var ran string
			ch := &DesktopChannel{goos: tt.goos, run: func(name string, args ...string) error {
				ran = name
				return nil
			}}
			require.NoError(t, ch.Send("title", "it's dead", nil))
			assert.Equal(t, tt.want, ran)
		})
	}

	ch := &DesktopChannel{goos: "plan9", run: func(string, ...string) error { return nil }}
	assert.Error(t, ch.Send("t", "m", nil))
}
