package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionHappyPath(t *testing.T) {
	path := []JobStatus{
		StatusPending,
		StatusAccountCreationRunning, StatusAccountCreated,
		StatusAccountSeedRunning, StatusAccountSeeded,
		StatusContentSeedRunning, StatusContentSeeded,
		StatusScrapeDone,
	}
	for i := 0; i < len(path)-1; i++ {
		assert.True(t, CanTransition(path[i], path[i+1]), "%s -> %s", path[i], path[i+1])
	}
}

func TestCanTransitionSideBranches(t *testing.T) {
	for _, p := range Phases {
		assert.True(t, CanTransition(p.Running, p.Failed))
		assert.True(t, CanTransition(p.Running, StatusRateLimited))
		assert.True(t, CanTransition(p.Running, StatusDead))
		assert.True(t, CanTransition(p.Running, StatusFailed))
	}
}

func TestCanTransitionRejectsIllegal(t *testing.T) {
	tests := []struct{ from, to JobStatus }{
		{StatusPending, StatusScrapeDone},
		{StatusScrapeDone, StatusPending},
		{StatusDead, StatusAccountCreationRunning},
		{StatusAccountCreated, StatusDead},
		{StatusAccountCreationRunning, StatusContentSeedRunning},
		{StatusContentSeededFailed, StatusContentSeedRunning},
		{StatusFailed, StatusAccountCreationRunning},
	}
	for _, tt := range tests {
		assert.False(t, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestEntryStatus(t *testing.T) {
	assert.Equal(t, StatusAccountCreationRunning, EntryStatus(""))
	assert.Equal(t, StatusAccountSeedRunning, EntryStatus(StatusAccountCreated))
	assert.Equal(t, StatusContentSeedRunning, EntryStatus(StatusAccountSeeded))
	assert.Equal(t, StatusContentSeedRunning, EntryStatus(StatusContentSeeded))
}

func TestStatusPredicates(t *testing.T) {
	assert.True(t, StatusScrapeDone.IsTerminal())
	assert.True(t, StatusDead.IsTerminal())
	assert.False(t, StatusFailed.IsTerminal())
	assert.True(t, StatusContentSeedRunning.IsRunning())
	assert.False(t, StatusRateLimited.IsRunning())
	assert.True(t, StatusAccountSeededFailed.IsPhaseFailure())
	assert.True(t, StatusAccountSeeded.IsCompletedPhase())
	assert.False(t, JobStatus("RUNNING").Valid())
}

func TestCanRequeue(t *testing.T) {
	assert.False(t, CanRequeue(StatusPending, true))
	assert.True(t, CanRequeue(StatusFailed, false))
	assert.True(t, CanRequeue(StatusContentSeededFailed, false))
	assert.True(t, CanRequeue(StatusRateLimited, false))
	assert.False(t, CanRequeue(StatusDead, false))
	assert.True(t, CanRequeue(StatusDead, true))
	assert.False(t, CanRequeue(StatusAccountSeedRunning, false))
	assert.True(t, CanRequeue(StatusAccountSeedRunning, true))
}

func TestContentItemValid(t *testing.T) {
	reel := ContentItem{Shortcode: "abc", Kind: ContentKindReel}
	assert.True(t, reel.Valid())
	reel.IsMultiMedia = true
	assert.False(t, reel.Valid())

	post := ContentItem{Shortcode: "def", Kind: ContentKindPost, IsMultiMedia: true}
	assert.True(t, post.Valid())
	assert.False(t, (&ContentItem{Kind: ContentKindPost}).Valid())
}
