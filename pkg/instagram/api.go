package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"

	errs "igharvest/pkg/errors"
	"igharvest/pkg/logger"
	"igharvest/pkg/session"
)

// Requester is the slice of *session.Session the API needs. Single-shot
// lookups go through Get; feed pages go through GetPage so the session can
// pace its anti-forgery refresh.
type Requester interface {
	Get(ctx context.Context, path string) session.Result
	GetPage(ctx context.Context, path string) session.Result
}

// API decodes upstream endpoints into typed responses. It holds no session:
// every call receives the one the caller owns.
type API struct {
	graphQLHash string
	logger      logger.Logger
}

// NewAPI creates an API. An empty graphQLHash selects DefaultGraphQLHash.
func NewAPI(graphQLHash string, log logger.Logger) *API {
	if graphQLHash == "" {
		graphQLHash = DefaultGraphQLHash
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &API{graphQLHash: graphQLHash, logger: log.WithField("component", "instagram")}
}

var ownerPattern = regexp.MustCompile(`"owner":\{"id":"\d+","username":"([^"]+)"\}`)

// ResolveViaProfilePage asks the JSON profile page for the user id
func (a *API) ResolveViaProfilePage(ctx context.Context, sess Requester, handle string) (string, error) {
	var resp ProfilePageResponse
	if err := a.getJSON(ctx, sess.Get, ProfilePagePath(handle), "resolve profile page", &resp); err != nil {
		return "", err
	}
	return requireID(resp.UserID(), "profile page", handle)
}

// ResolveViaGraphQL asks the persisted username query for the user id
func (a *API) ResolveViaGraphQL(ctx context.Context, sess Requester, handle string) (string, error) {
	var resp GraphQLUserResponse
	if err := a.getJSON(ctx, sess.Get, GraphQLProfilePath(a.graphQLHash, handle), "resolve graphql", &resp); err != nil {
		return "", err
	}
	return requireID(resp.UserID(), "graphql", handle)
}

// ResolveViaSearch looks for an exact username match in blended search
func (a *API) ResolveViaSearch(ctx context.Context, sess Requester, handle string) (string, error) {
	var resp TopSearchResponse
	if err := a.getJSON(ctx, sess.Get, TopSearchPath(handle), "resolve search", &resp); err != nil {
		return "", err
	}
	return requireID(resp.ExactMatch(handle), "search", handle)
}

// Profile fetches the full profile of handle
func (a *API) Profile(ctx context.Context, sess Requester, handle string) (*ProfileUser, error) {
	var resp ProfileInfoResponse
	if err := a.getJSON(ctx, sess.Get, ProfileInfoPath(handle), "profile", &resp); err != nil {
		return nil, err
	}
	if resp.Status.Or("") == "fail" {
		return nil, errs.New(errs.ErrorTypeParsing, "profile: upstream failure: "+resp.Message.Or(""))
	}
	user, ok := resp.User()
	if !ok {
		return nil, errs.New(errs.ErrorTypeResolution, fmt.Sprintf("profile: no user for %q", handle))
	}
	return user, nil
}

// FeedPage fetches one page of userID's feed starting after maxID
func (a *API) FeedPage(ctx context.Context, sess Requester, userID string, count int, maxID string) (*FeedResponse, error) {
	var resp FeedResponse
	if err := a.getJSON(ctx, sess.GetPage, FeedPath(userID, count, maxID), "feed", &resp); err != nil {
		return nil, err
	}
	if resp.Status.Or("") == "fail" {
		return nil, errs.New(errs.ErrorTypeParsing, "feed: upstream failure: "+resp.Message.Or(""))
	}
	return &resp, nil
}

// PostOwner reads the owner handle of a post from its public page
func (a *API) PostOwner(ctx context.Context, sess Requester, shortcode string) (string, error) {
	r := sess.Get(ctx, PostPagePath(shortcode))
	if err := checkResult(r, "post page"); err != nil {
		return "", err
	}
	m := ownerPattern.FindSubmatch(r.Body)
	if m == nil {
		return "", errs.New(errs.ErrorTypeResolution, fmt.Sprintf("post page: no owner for %q", shortcode))
	}
	return string(m[1]), nil
}

func (a *API) getJSON(ctx context.Context, get func(context.Context, string) session.Result, path, op string, v interface{}) error {
	r := get(ctx, path)
	if err := checkResult(r, op); err != nil {
		return err
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		preview := string(r.Body)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		a.logger.WarnWithFields("Failed to decode upstream response", map[string]interface{}{
			"op":           op,
			"body_preview": preview,
		})
		return errs.Wrap(errs.ErrorTypeParsing, err, op+": decode response")
	}
	return nil
}

// checkResult turns a classified response into an error. Active responses
// that are not 200 still carry no usable payload.
func checkResult(r session.Result, op string) error {
	if r.Outcome != session.Active {
		return r.AsError(op)
	}
	switch {
	case r.StatusCode == http.StatusOK:
		return nil
	case r.StatusCode == http.StatusNotFound:
		e := errs.New(errs.ErrorTypeResolution, op+": not found")
		e.Code = r.StatusCode
		return e
	default:
		e := errs.New(errs.ErrorTypeParsing, fmt.Sprintf("%s: unexpected status %d", op, r.StatusCode))
		e.Code = r.StatusCode
		return e
	}
}

func requireID(id, strategy, handle string) (string, error) {
	if id == "" {
		return "", errs.New(errs.ErrorTypeResolution, fmt.Sprintf("%s: no user id for %q", strategy, handle))
	}
	return id, nil
}
