package instagram

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// ProfileInfoEndpoint returns the full profile for a handle
	ProfileInfoEndpoint = "/api/v1/users/web_profile_info/"

	// GraphQLEndpoint serves persisted queries addressed by query_hash
	GraphQLEndpoint = "/graphql/query/"

	// TopSearchEndpoint is the blended search used as the last resolution fallback
	TopSearchEndpoint = "/web/search/topsearch/"

	// DefaultGraphQLHash is the persisted query that maps a username to a user id
	DefaultGraphQLHash = "69cba403172132360e0a52400795328d"

	// DefaultPageSize is the number of feed items requested per page
	DefaultPageSize = 12

	// MaxPageSize is the largest page the feed endpoint honours
	MaxPageSize = 50
)

// ProfileInfoPath builds the profile info request for handle
func ProfileInfoPath(handle string) string {
	params := url.Values{}
	params.Set("username", handle)
	return ProfileInfoEndpoint + "?" + params.Encode()
}

// ProfilePagePath builds the JSON variant of the public profile page,
// the first resolution strategy
func ProfilePagePath(handle string) string {
	return fmt.Sprintf("/%s/?__a=1&__d=dis", url.PathEscape(handle))
}

// GraphQLProfilePath builds the persisted-query resolution request
func GraphQLProfilePath(queryHash, handle string) string {
	if queryHash == "" {
		queryHash = DefaultGraphQLHash
	}
	params := url.Values{}
	params.Set("query_hash", queryHash)
	params.Set("variables", fmt.Sprintf(`{"username":%q}`, handle))
	return GraphQLEndpoint + "?" + params.Encode()
}

// TopSearchPath builds the blended search request for handle
func TopSearchPath(handle string) string {
	params := url.Values{}
	params.Set("context", "blended")
	params.Set("query", handle)
	params.Set("rank_token", "0.1")
	return TopSearchEndpoint + "?" + params.Encode()
}

// FeedPath builds one page of a user's feed. An empty maxID requests the
// first page.
func FeedPath(userID string, count int, maxID string) string {
	if count <= 0 {
		count = DefaultPageSize
	} else if count > MaxPageSize {
		count = MaxPageSize
	}

	params := url.Values{}
	params.Set("count", fmt.Sprintf("%d", count))
	if maxID != "" {
		params.Set("max_id", maxID)
	}
	return fmt.Sprintf("/api/v1/feed/user/%s/?%s", url.PathEscape(userID), params.Encode())
}

// PostPagePath builds the public page of a single post
func PostPagePath(shortcode string) string {
	return fmt.Sprintf("/p/%s/", url.PathEscape(shortcode))
}

// ProfileURI returns the public profile URL stored on an account
func ProfileURI(baseURL, handle string) string {
	if handle == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s/", strings.TrimRight(baseURL, "/"), handle)
}

// PostURI returns the public URL of a post
func PostURI(baseURL, shortcode string) string {
	if shortcode == "" {
		return ""
	}
	return fmt.Sprintf("%s/p/%s/", strings.TrimRight(baseURL, "/"), shortcode)
}

// IsValidUsername checks if a username is valid according to Instagram rules
func IsValidUsername(username string) bool {
	if username == "" || len(username) > 30 {
		return false
	}

	// letters, numbers, periods and underscores only
	for _, char := range username {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '.' || char == '_') {
			return false
		}
	}

	return true
}

// SanitizeUsername strips a leading @, surrounding spaces and trailing slashes
func SanitizeUsername(username string) string {
	username = strings.TrimSpace(username)
	username = strings.TrimPrefix(username, "@")
	return strings.TrimRight(username, "/ ")
}

// first path segments that never name an account
var reservedSegments = map[string]bool{
	"p": true, "reel": true, "reels": true, "tv": true, "explore": true,
	"accounts": true, "stories": true, "direct": true, "challenge": true,
}

// HandleFromKey derives an account handle from a PROFILE job key, which is
// either a bare handle or a profile URL
func HandleFromKey(key string) (string, bool) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false
	}

	if seg, ok := firstSegments(key); ok {
		if len(seg) == 0 || reservedSegments[strings.ToLower(seg[0])] {
			return "", false
		}
		key = seg[0]
	}

	handle := strings.ToLower(SanitizeUsername(key))
	if !IsValidUsername(handle) {
		return "", false
	}
	return handle, true
}

// ShortcodeFromKey derives a post shortcode from a POST job key, which is
// either a bare shortcode or a /p/ or /reel/ URL
func ShortcodeFromKey(key string) (string, bool) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false
	}

	if seg, ok := firstSegments(key); ok {
		if len(seg) < 2 {
			return "", false
		}
		switch strings.ToLower(seg[0]) {
		case "p", "reel", "reels", "tv":
			key = seg[1]
		default:
			return "", false
		}
	}

	if !isShortcode(key) {
		return "", false
	}
	return key, true
}

// firstSegments splits a URL-looking key into its path segments. ok is false
// when key does not look like a URL.
func firstSegments(key string) ([]string, bool) {
	switch {
	case strings.Contains(key, "://"):
	case strings.HasPrefix(key, "/"):
		key = "https://www.instagram.com" + key
	case strings.Contains(key, "instagram.com/"):
		key = "https://" + key
	default:
		return nil, false
	}
	u, err := url.Parse(key)
	if err != nil {
		return nil, true
	}
	var out []string
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out, true
}

func isShortcode(s string) bool {
	if s == "" || len(s) > 64 {
		return false
	}
	for _, c := range s {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') || c == '_' || c == '-') {
			return false
		}
	}
	return true
}
