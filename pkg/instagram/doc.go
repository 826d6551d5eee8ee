// Package instagram describes the upstream endpoints the harvester uses and
// decodes their responses.
//
// Response schemas are explicit: every field the upstream may omit is a
// pointer or slice, so an absent count stays nil instead of becoming zero.
//
// The API type holds no session. Callers pass the one authenticated
// *session.Session they own into every call:
//
//	api := instagram.NewAPI(cfg.Instagram.GraphQLHash, log)
//	id, err := api.ResolveViaProfilePage(ctx, sess, "some.handle")
//	page, err := api.FeedPage(ctx, sess, id, 12, "")
//
// Errors are typed with igharvest/pkg/errors: session_dead, rate_limit and
// transient come straight from the session classification; resolution and
// parsing describe payload problems.
package instagram
