package instagram

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Opt is a response field the upstream may omit, null out, or send with an
// unexpected type. All three decode to an unset value, never an error.
type Opt[T any] struct {
	value T
	ok    bool
}

// Some returns a set Opt
func Some[T any](v T) Opt[T] {
	return Opt[T]{value: v, ok: true}
}

func (o *Opt[T]) UnmarshalJSON(b []byte) error {
	var zero T
	o.value, o.ok = zero, false
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return nil
	}
	o.value, o.ok = v, true
	return nil
}

// Get returns the value and whether it was present
func (o Opt[T]) Get() (T, bool) { return o.value, o.ok }

// IsSet reports whether the field was present and well-typed
func (o Opt[T]) IsSet() bool { return o.ok }

// Or returns the value, or def when unset
func (o Opt[T]) Or(def T) T {
	if !o.ok {
		return def
	}
	return o.value
}

// Ptr returns a pointer to a copy of the value, or nil when unset
func (o Opt[T]) Ptr() *T {
	if !o.ok {
		return nil
	}
	v := o.value
	return &v
}

// FlexibleID decodes identifiers the upstream sends either as strings or as
// bare numbers. Any other shape decodes to empty.
type FlexibleID string

func (f *FlexibleID) UnmarshalJSON(b []byte) error {
	*f = ""
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err == nil {
			*f = FlexibleID(strings.TrimSpace(s))
		}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*f = FlexibleID(n.String())
	}
	return nil
}

func (f FlexibleID) String() string { return string(f) }

// IDHolder is any object carrying an upstream id
type IDHolder struct {
	ID FlexibleID `json:"id"`
	PK FlexibleID `json:"pk"`
}

// Value returns the id, preferring id over pk
func (h IDHolder) Value() string {
	if h.ID != "" {
		return h.ID.String()
	}
	return h.PK.String()
}

type userEnvelope struct {
	User Opt[IDHolder] `json:"user"`
}

// ProfilePageResponse is the JSON variant of the public profile page
type ProfilePageResponse struct {
	GraphQL Opt[userEnvelope] `json:"graphql"`
	User    Opt[IDHolder]     `json:"user"`
}

// UserID returns graphql.user.id, falling back to user.id
func (r *ProfilePageResponse) UserID() string {
	if g, ok := r.GraphQL.Get(); ok {
		if u, ok := g.User.Get(); ok && u.Value() != "" {
			return u.Value()
		}
	}
	return r.User.Or(IDHolder{}).Value()
}

// GraphQLUserResponse is the persisted-query resolution response
type GraphQLUserResponse struct {
	Data Opt[userEnvelope] `json:"data"`
	User Opt[IDHolder]     `json:"user"`
}

// UserID returns data.user.id, falling back to user.id
func (r *GraphQLUserResponse) UserID() string {
	if d, ok := r.Data.Get(); ok {
		if u, ok := d.User.Get(); ok && u.Value() != "" {
			return u.Value()
		}
	}
	return r.User.Or(IDHolder{}).Value()
}

// SearchUser is one user hit of blended search
type SearchUser struct {
	Username Opt[string] `json:"username"`
	PK       FlexibleID  `json:"pk"`
	PKID     FlexibleID  `json:"pk_id"`
}

// TopSearchResponse is the blended search response
type TopSearchResponse struct {
	Users Opt[[]struct {
		User Opt[SearchUser] `json:"user"`
	}] `json:"users"`
}

// ExactMatch returns the pk of the user whose username equals handle exactly
func (r *TopSearchResponse) ExactMatch(handle string) string {
	users, _ := r.Users.Get()
	for _, hit := range users {
		u, ok := hit.User.Get()
		if !ok || u.Username.Or("") != handle {
			continue
		}
		if u.PK != "" {
			return u.PK.String()
		}
		return u.PKID.String()
	}
	return ""
}

// Count wraps the {"count": n} edge objects
type Count struct {
	Count Opt[int64] `json:"count"`
}

func countOf(c Opt[Count]) *int64 {
	v, ok := c.Get()
	if !ok {
		return nil
	}
	return v.Count.Ptr()
}

// BioLink is one entry of the profile's link list
type BioLink struct {
	URL      Opt[string] `json:"url"`
	Title    Opt[string] `json:"title"`
	LinkType Opt[string] `json:"link_type"`
}

// ProfileUser is the data.user object of the profile info response
type ProfileUser struct {
	ID                       FlexibleID     `json:"id"`
	Username                 Opt[string]    `json:"username"`
	FullName                 Opt[string]    `json:"full_name"`
	Biography                Opt[string]    `json:"biography"`
	IsVerified               Opt[bool]      `json:"is_verified"`
	IsPrivate                Opt[bool]      `json:"is_private"`
	ExternalURL              Opt[string]    `json:"external_url"`
	BioLinks                 Opt[[]BioLink] `json:"bio_links"`
	EdgeFollowedBy           Opt[Count]     `json:"edge_followed_by"`
	EdgeFollow               Opt[Count]     `json:"edge_follow"`
	EdgeOwnerToTimelineMedia Opt[Count]     `json:"edge_owner_to_timeline_media"`
}

// Followers returns edge_followed_by.count
func (u *ProfileUser) Followers() *int64 { return countOf(u.EdgeFollowedBy) }

// Following returns edge_follow.count
func (u *ProfileUser) Following() *int64 { return countOf(u.EdgeFollow) }

// MediaCount returns edge_owner_to_timeline_media.count
func (u *ProfileUser) MediaCount() *int64 { return countOf(u.EdgeOwnerToTimelineMedia) }

// Links returns the external url plus every bio link, deduplicated
func (u *ProfileUser) Links() []BioLink {
	seen := make(map[string]bool)
	var out []BioLink
	add := func(l BioLink) {
		url := l.URL.Or("")
		if url == "" || seen[url] {
			return
		}
		seen[url] = true
		out = append(out, l)
	}
	if u.ExternalURL.IsSet() {
		add(BioLink{URL: u.ExternalURL})
	}
	links, _ := u.BioLinks.Get()
	for _, l := range links {
		add(l)
	}
	return out
}

type profileData struct {
	User Opt[ProfileUser] `json:"user"`
}

// ProfileInfoResponse is the profile info envelope
type ProfileInfoResponse struct {
	Data    Opt[profileData] `json:"data"`
	Status  Opt[string]      `json:"status"`
	Message Opt[string]      `json:"message"`
}

// User returns data.user when present
func (r *ProfileInfoResponse) User() (*ProfileUser, bool) {
	d, ok := r.Data.Get()
	if !ok {
		return nil, false
	}
	u, ok := d.User.Get()
	if !ok {
		return nil, false
	}
	return &u, true
}

// Candidate is one rendition of an image or video
type Candidate struct {
	URL    Opt[string] `json:"url"`
	Width  Opt[int]    `json:"width"`
	Height Opt[int]    `json:"height"`
}

// Caption is the caption object on a feed item
type Caption struct {
	Text Opt[string] `json:"text"`
}

// Usertag is one tagged account on a media asset
type Usertag struct {
	User Opt[struct {
		Username Opt[string] `json:"username"`
	}] `json:"user"`
}

// Producer is a co-author of a collaborative post
type Producer struct {
	Username Opt[string] `json:"username"`
}

type imageVersions struct {
	Candidates Opt[[]Candidate] `json:"candidates"`
}

type usertags struct {
	In Opt[[]Usertag] `json:"in"`
}

// Media type codes used by the feed endpoint
const (
	MediaTypeImage    = 1
	MediaTypeVideo    = 2
	MediaTypeCarousel = 8
)

// ProductTypeClips marks a reel
const ProductTypeClips = "clips"

// FeedItem is one item (or carousel child) of the feed response
type FeedItem struct {
	ID                FlexibleID         `json:"id"`
	PK                FlexibleID         `json:"pk"`
	Code              Opt[string]        `json:"code"`
	MediaType         Opt[int]           `json:"media_type"`
	ProductType       Opt[string]        `json:"product_type"`
	TakenAt           Opt[int64]         `json:"taken_at"`
	Caption           Opt[Caption]       `json:"caption"`
	LikeCount         Opt[int64]         `json:"like_count"`
	CommentCount      Opt[int64]         `json:"comment_count"`
	ViewCount         Opt[int64]         `json:"view_count"`
	PlayCount         Opt[int64]         `json:"play_count"`
	ImageVersions2    Opt[imageVersions] `json:"image_versions2"`
	VideoVersions     Opt[[]Candidate]   `json:"video_versions"`
	CarouselMedia     Opt[[]FeedItem]    `json:"carousel_media"`
	CoauthorProducers Opt[[]Producer]    `json:"coauthor_producers"`
	Usertags          Opt[usertags]      `json:"usertags"`
}

// FeedResponse is one page of a user's feed
type FeedResponse struct {
	Items         Opt[[]FeedItem] `json:"items"`
	MoreAvailable Opt[bool]       `json:"more_available"`
	NextMaxID     FlexibleID      `json:"next_max_id"`
	NumResults    Opt[int]        `json:"num_results"`
	Status        Opt[string]     `json:"status"`
	Message       Opt[string]     `json:"message"`
}

// Entries returns the page's items, empty when absent
func (r *FeedResponse) Entries() []FeedItem {
	items, _ := r.Items.Get()
	return items
}

// HasMore reports whether the upstream says another page exists
func (r *FeedResponse) HasMore() bool {
	return r.MoreAvailable.Or(false)
}

// Cursor returns next_max_id or empty when absent
func (r *FeedResponse) Cursor() string {
	return r.NextMaxID.String()
}
