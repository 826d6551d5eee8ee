package instagram

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igharvest/pkg/models"
)

func decodeItem(t *testing.T, raw string) FeedItem {
	t.Helper()
	var it FeedItem
	require.NoError(t, json.Unmarshal([]byte(raw), &it))
	return it
}

func TestBundleCarousel(t *testing.T) {
	it := decodeItem(t, `{
		"code":"CAR1","media_type":8,"taken_at":1700000000,
		"caption":{"text":"three shots"},"like_count":5,"comment_count":1,
		"coauthor_producers":[{"username":"friend"},{"username":"friend"}],
		"carousel_media":[
			{"media_type":1,"image_versions2":{"candidates":[{"url":"https://cdn/1.jpg"}]},
			 "usertags":{"in":[{"user":{"username":"tagged"}}]}},
			{"media_type":2,"video_versions":[{"url":"https://cdn/2.mp4"}]},
			{"media_type":1,"image_versions2":{"candidates":[{"url":"https://cdn/3.jpg"}]}}
		]}`)
	now := time.Now().UTC()

	b, err := it.Bundle(7, now)
	require.NoError(t, err)

	assert.Equal(t, "CAR1", b.Item.Shortcode)
	assert.Equal(t, int64(7), b.Item.OwnerAccountID)
	assert.Equal(t, models.ContentKindPost, b.Item.Kind)
	assert.True(t, b.Item.IsMultiMedia)
	assert.Equal(t, []string{"friend"}, b.Item.Collaborators)
	assert.Equal(t, "three shots", *b.Item.Caption)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), *b.Item.PostedAt)
	assert.Nil(t, b.Item.ViewCount)

	require.Len(t, b.Media, 3)
	for i, m := range b.Media {
		assert.Equal(t, i, m.Index)
		assert.Equal(t, "carousel_item", *m.Subtype)
		assert.Equal(t, "CAR1", m.ContentShortcode)
	}
	assert.Equal(t, models.MediaKindVideo, b.Media[1].Kind)
	assert.Equal(t, "https://cdn/2.mp4", b.Media[1].URL)
	assert.Equal(t, []string{"tagged"}, b.Media[0].TaggedHandles)
}

func TestBundleReel(t *testing.T) {
	it := decodeItem(t, `{
		"code":"REEL1","media_type":2,"product_type":"clips","play_count":900,
		"video_versions":[{"url":"https://cdn/r.mp4"}],
		"image_versions2":{"candidates":[{"url":"https://cdn/r.jpg"}]}}`)

	b, err := it.Bundle(1, time.Now())
	require.NoError(t, err)

	assert.Equal(t, models.ContentKindReel, b.Item.Kind)
	assert.False(t, b.Item.IsMultiMedia)
	assert.Equal(t, int64(900), *b.Item.ViewCount, "play_count is the fallback")
	require.Len(t, b.Media, 1)
	assert.Equal(t, models.MediaKindVideo, b.Media[0].Kind)
	assert.Equal(t, "clips", *b.Media[0].Subtype)
}

func TestBundlePlainVideoIsPost(t *testing.T) {
	it := decodeItem(t, `{"code":"V1","media_type":2,"product_type":"feed","view_count":3,"play_count":9,
		"video_versions":[{"url":"https://cdn/v.mp4"}]}`)

	b, err := it.Bundle(1, time.Now())
	require.NoError(t, err)
	assert.Equal(t, models.ContentKindPost, b.Item.Kind)
	assert.Equal(t, int64(3), *b.Item.ViewCount)
}

func TestBundleAbsentFieldsStayNil(t *testing.T) {
	it := decodeItem(t, `{"code":"IMG1","media_type":1}`)

	b, err := it.Bundle(1, time.Now())
	require.NoError(t, err)
	assert.Nil(t, b.Item.LikeCount)
	assert.Nil(t, b.Item.CommentCount)
	assert.Nil(t, b.Item.PostedAt)
	assert.Nil(t, b.Item.Caption)
	assert.Empty(t, b.Media, "no rendition means no asset")
}

func TestBundleRequiresShortcode(t *testing.T) {
	it := decodeItem(t, `{"media_type":1}`)
	_, err := it.Bundle(1, time.Now())
	assert.Error(t, err)
}
