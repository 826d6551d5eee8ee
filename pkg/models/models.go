package models

import "time"

// JobType selects which claim queue a job lives in
type JobType string

const (
	JobTypeProfile JobType = "PROFILE"
	JobTypePost    JobType = "POST"
)

// Valid reports whether t is a known job type
func (t JobType) Valid() bool {
	return t == JobTypeProfile || t == JobTypePost
}

// JobSource records who enqueued a job
type JobSource string

const (
	JobSourceOriginA  JobSource = "ORIGIN_A"
	JobSourceFollowup JobSource = "FOLLOWUP"
	JobSourceManual   JobSource = "MANUAL"
)

// Valid reports whether s is a known job source
func (s JobSource) Valid() bool {
	switch s {
	case JobSourceOriginA, JobSourceFollowup, JobSourceManual:
		return true
	}
	return false
}

// Job is one unit of work: resolve and seed a single account
type Job struct {
	ID          int64
	Type        JobType
	EntityKey   string
	Source      JobSource
	Status      JobStatus
	Attempts    int
	RetryAfter  *time.Time
	LastError   *string
	LockedBy    *string
	ResumePhase JobStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Account is a harvested upstream profile, keyed by handle
type Account struct {
	ID             int64
	Handle         string
	UpstreamID     *string
	DisplayName    *string
	BioText        *string
	ContactEmail   *string
	ContactPhone   *string
	ProfileURI     string
	FollowersCount *int64
	FollowingCount *int64
	ContentCount   *int64
	IsVerified     bool
	FirstSeenAt    time.Time
	LastSeenAt     time.Time
}

// ContentKind classifies a content item
type ContentKind string

const (
	ContentKindPost ContentKind = "post"
	ContentKindReel ContentKind = "reel"
)

// ContentItem is a post or reel keyed by its natural shortcode
type ContentItem struct {
	Shortcode      string
	OwnerAccountID int64
	PostedAt       *time.Time
	Caption        *string
	LikeCount      *int64
	CommentCount   *int64
	ViewCount      *int64
	Kind           ContentKind
	IsMultiMedia   bool
	Collaborators  []string
	LastSeenAt     time.Time
}

// Valid enforces kind = reel => not multi-media
func (c *ContentItem) Valid() bool {
	if c.Shortcode == "" {
		return false
	}
	if c.Kind != ContentKindPost && c.Kind != ContentKindReel {
		return false
	}
	return !(c.Kind == ContentKindReel && c.IsMultiMedia)
}

// MediaKind is the type of a single media asset
type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
)

// MediaAsset is one image or video inside a content item, unique per (shortcode, index)
type MediaAsset struct {
	ID               int64
	ContentShortcode string
	URL              string
	Kind             MediaKind
	Subtype          *string
	Index            int
	TaggedHandles    []string
	LastSeenAt       time.Time
}

// AccountLink is an outbound link discovered from an account's bio
type AccountLink struct {
	ID          int64
	AccountID   int64
	URL         string
	LinkType    string
	Label       *string
	ExtractedAt time.Time
}

// ContentBundle groups a content item with its media for a single upsert
type ContentBundle struct {
	Item  ContentItem
	Media []MediaAsset
}

// StringPtr returns a pointer to s, or nil when s is empty
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Int64Ptr returns a pointer to v
func Int64Ptr(v int64) *int64 {
	return &v
}
