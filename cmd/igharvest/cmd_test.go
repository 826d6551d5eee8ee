package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igharvest/pkg/config"
	"igharvest/pkg/models"
)

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		jobType models.JobType
		raw     string
		want    string
		ok      bool
	}{
		{models.JobTypeProfile, "@NatGeo", "natgeo", true},
		{models.JobTypeProfile, "https://www.instagram.com/nasa/", "nasa", true},
		{models.JobTypeProfile, "https://www.instagram.com/p/C7xYz12AbCd/", "", false},
		{models.JobTypePost, "https://www.instagram.com/p/C7xYz12AbCd/", "C7xYz12AbCd", true},
		{models.JobTypePost, "https://www.instagram.com/nasa/", "", false},
	}

	for _, tt := range tests {
		got, ok := normalizeKey(tt.jobType, tt.raw)
		assert.Equal(t, tt.ok, ok, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}

func TestParseJobTypes(t *testing.T) {
	got, err := parseJobTypes([]string{"profile", " POST "})
	require.NoError(t, err)
	assert.Equal(t, []models.JobType{models.JobTypeProfile, models.JobTypePost}, got)

	_, err = parseJobTypes([]string{"STORY"})
	assert.Error(t, err)
}

func TestParseID(t *testing.T) {
	id, err := parseID("#42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, bad := range []string{"", "0", "-3", "abc"} {
		_, err := parseID(bad)
		assert.Error(t, err, bad)
	}
}

func TestMaskedHidesSecrets(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Session.SessionID = "12345678%3Aabcdefgh"
	cfg.Notifications.SMTPPassword = "hunter2"

	m := masked(cfg)
	assert.Equal(t, "1234...efgh", m.Session.SessionID)
	assert.Equal(t, "", m.Session.CSRFToken)
	assert.Equal(t, "********", m.Notifications.SMTPPassword)
	assert.Equal(t, "12345678%3Aabcdefgh", cfg.Session.SessionID)
}

func TestExampleConfigMatchesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(exampleConfig), 0600))

	cfg := config.DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, config.DefaultConfig(), cfg)
	assert.Equal(t, 3*time.Minute, cfg.RateLimit.Cooldown)
}

func TestJobURL(t *testing.T) {
	base := "https://www.instagram.com"
	assert.Equal(t, base+"/nasa/", jobURL(base, &models.Job{Type: models.JobTypeProfile, EntityKey: "@NASA"}))
	assert.Equal(t, base+"/p/C7xYz12AbCd/", jobURL(base, &models.Job{Type: models.JobTypePost, EntityKey: "C7xYz12AbCd"}))
	assert.Empty(t, jobURL(base, &models.Job{Type: models.JobTypePost, EntityKey: "not a code"}))
}
