package instagram

import (
	"time"

	errs "igharvest/pkg/errors"
	"igharvest/pkg/models"
)

const carouselItemSubtype = "carousel_item"

// Kind classifies the item as a reel or a post
func (it *FeedItem) Kind() models.ContentKind {
	if it.mediaType() == MediaTypeVideo && it.ProductType.Or("") == ProductTypeClips {
		return models.ContentKindReel
	}
	return models.ContentKindPost
}

// IsCarousel reports whether the item bundles several media
func (it *FeedItem) IsCarousel() bool {
	return it.mediaType() == MediaTypeCarousel
}

// Shortcode returns the item's natural key
func (it *FeedItem) Shortcode() string {
	return it.Code.Or("")
}

// Views returns view_count, falling back to play_count
func (it *FeedItem) Views() *int64 {
	if it.ViewCount.IsSet() {
		return it.ViewCount.Ptr()
	}
	return it.PlayCount.Ptr()
}

// Collaborators returns the co-author handles in upstream order
func (it *FeedItem) Collaborators() []string {
	var out []string
	seen := make(map[string]bool)
	producers, _ := it.CoauthorProducers.Get()
	for _, p := range producers {
		name := p.Username.Or("")
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// Bundle maps the item and its media onto the domain model
func (it *FeedItem) Bundle(ownerAccountID int64, seenAt time.Time) (models.ContentBundle, error) {
	code := it.Shortcode()
	if code == "" {
		return models.ContentBundle{}, errs.New(errs.ErrorTypeParsing, "feed item without shortcode")
	}

	item := models.ContentItem{
		Shortcode:      code,
		OwnerAccountID: ownerAccountID,
		LikeCount:      it.LikeCount.Ptr(),
		CommentCount:   it.CommentCount.Ptr(),
		ViewCount:      it.Views(),
		Kind:           it.Kind(),
		IsMultiMedia:   it.IsCarousel(),
		Collaborators:  it.Collaborators(),
		LastSeenAt:     seenAt,
	}
	if ts := it.TakenAt.Or(0); ts > 0 {
		t := time.Unix(ts, 0).UTC()
		item.PostedAt = &t
	}
	if c, ok := it.Caption.Get(); ok {
		item.Caption = c.Text.Ptr()
	}
	if !item.Valid() {
		return models.ContentBundle{}, errs.New(errs.ErrorTypeParsing, "feed item "+code+" violates kind constraints")
	}

	b := models.ContentBundle{Item: item}
	if it.IsCarousel() {
		children, _ := it.CarouselMedia.Get()
		for i := range children {
			child := &children[i]
			if a, ok := child.asset(code, i, models.StringPtr(carouselItemSubtype), seenAt); ok {
				b.Media = append(b.Media, a)
			}
		}
		return b, nil
	}

	if a, ok := it.asset(code, 0, it.ProductType.Ptr(), seenAt); ok {
		b.Media = append(b.Media, a)
	}
	return b, nil
}

func (it *FeedItem) asset(shortcode string, index int, subtype *string, seenAt time.Time) (models.MediaAsset, bool) {
	a := models.MediaAsset{
		ContentShortcode: shortcode,
		Kind:             models.MediaKindImage,
		Subtype:          subtype,
		Index:            index,
		TaggedHandles:    it.taggedHandles(),
		LastSeenAt:       seenAt,
	}
	if url := firstURL(it.VideoVersions); it.mediaType() == MediaTypeVideo && url != "" {
		a.Kind = models.MediaKindVideo
		a.URL = url
	} else if iv, ok := it.ImageVersions2.Get(); ok {
		a.URL = firstURL(iv.Candidates)
	}
	return a, a.URL != ""
}

func (it *FeedItem) taggedHandles() []string {
	tags, _ := it.Usertags.Get()
	in, _ := tags.In.Get()
	var out []string
	for _, t := range in {
		u, ok := t.User.Get()
		if name := u.Username.Or(""); ok && name != "" {
			out = append(out, name)
		}
	}
	return out
}

func (it *FeedItem) mediaType() int {
	return it.MediaType.Or(MediaTypeImage)
}

func firstURL(c Opt[[]Candidate]) string {
	list, _ := c.Get()
	if len(list) == 0 {
		return ""
	}
	return list[0].URL.Or("")
}
