package fetcher

import (
	"context"

	"igharvest/pkg/checkpoint"
	errs "igharvest/pkg/errors"
	"igharvest/pkg/instagram"
	"igharvest/pkg/logger"
	"igharvest/pkg/models"
	"igharvest/pkg/persister"
)

// Sink receives persisted pages; *persister.Persister implements it
type Sink interface {
	SavePage(ctx context.Context, owner *models.Account, bundles []models.ContentBundle) (persister.PageResult, error)
	IsKnownContent(ctx context.Context, shortcode string) (bool, error)
}

// ContentRequest describes one feed walk
type ContentRequest struct {
	JobID int64
	Owner *models.Account
	// Resume continues from a saved cursor when one matches the owner
	Resume bool
}

// Stop reasons reported in ContentSummary
const (
	StopExhausted      = "exhausted"
	StopEmptyPage      = "empty_page"
	StopNoCursor       = "no_cursor"
	StopRepeatedCursor = "repeated_cursor"
	StopMaxPages       = "max_pages"
	StopKnownContent   = "known_content"
)

// ContentSummary reports what one feed walk did
type ContentSummary struct {
	Pages     int
	Items     int
	Media     int
	Followups int
	Resumed   bool
	Stop      string
}

// SeedContent walks the owner's feed page by page, persisting every page in
// one transaction through sink. The cursor is checkpointed after each page
// so a re-picked job continues where it stopped.
func (f *Fetcher) SeedContent(ctx context.Context, sess instagram.Requester, req ContentRequest, sink Sink) (ContentSummary, error) {
	var sum ContentSummary
	owner := req.Owner
	if owner == nil || owner.UpstreamID == nil || *owner.UpstreamID == "" {
		return sum, errs.New(errs.ErrorTypeInvalidInput, "content seed needs a resolved account")
	}
	upstreamID := *owner.UpstreamID
	log := f.logger.WithFields(map[string]interface{}{
		"job_id": req.JobID,
		"handle": owner.Handle,
		"mode":   string(f.opts.Mode),
	})

	cp := &checkpoint.Cursor{JobID: req.JobID, Handle: owner.Handle, UpstreamID: upstreamID}
	if req.Resume && f.opts.Mode == ModeFull {
		saved, err := f.opts.Checkpoints.Load(req.JobID)
		if err != nil {
			log.WithError(err).Warn("Checkpoint unreadable, starting from the first page")
		} else if saved != nil && saved.UpstreamID == upstreamID && saved.MaxID != "" {
			cp = saved
			sum.Resumed = true
			log.InfoWithFields("Resuming feed from checkpoint", map[string]interface{}{
				"page":   cp.Page,
				"max_id": cp.MaxID,
			})
		}
	}

	cursor := cp.MaxID
	seen := make(map[string]bool)
	if cursor != "" {
		seen[cursor] = true
	}

	for {
		if f.opts.MaxPages > 0 && sum.Pages >= f.opts.MaxPages {
			sum.Stop = StopMaxPages
			break
		}

		resp, err := f.feedPage(ctx, sess, upstreamID, cursor)
		if err != nil {
			return sum, err
		}

		entries := resp.Entries()
		if len(entries) == 0 {
			sum.Stop = StopEmptyPage
			break
		}

		bundles, reachedKnown, err := f.pageBundles(ctx, log, owner, entries, sink)
		if err != nil {
			return sum, err
		}

		saved, err := sink.SavePage(ctx, owner, bundles)
		if err != nil {
			return sum, err
		}
		sum.Pages++
		sum.Items += saved.Items
		sum.Media += saved.Media
		sum.Followups += saved.Followups

		next := resp.Cursor()
		logger.LogPage(log, owner.Handle, cp.Page+1, len(entries), saved.Items, next)

		switch {
		case reachedKnown:
			sum.Stop = StopKnownContent
		case !resp.HasMore():
			sum.Stop = StopExhausted
		case next == "":
			sum.Stop = StopNoCursor
		case seen[next]:
			sum.Stop = StopRepeatedCursor
		}
		if sum.Stop != "" {
			break
		}

		seen[next] = true
		cursor = next
		cp.MaxID = next
		cp.Page++
		cp.ItemsSeen += saved.Items
		if err := f.opts.Checkpoints.Save(cp); err != nil {
			log.WithError(err).Warn("Failed to save feed checkpoint")
		}

		if err := f.opts.Sleeper.Sleep(ctx, f.opts.Pacing.PageDelay()); err != nil {
			return sum, err
		}
	}

	if err := f.opts.Checkpoints.Delete(req.JobID); err != nil {
		log.WithError(err).Warn("Failed to delete feed checkpoint")
	}
	log.InfoWithFields("Feed walk finished", map[string]interface{}{
		"pages":     sum.Pages,
		"items":     sum.Items,
		"media":     sum.Media,
		"followups": sum.Followups,
		"stop":      sum.Stop,
	})
	return sum, nil
}

// feedPage fetches one page. Rate limits are waited out without bound and
// the same cursor is requested again.
func (f *Fetcher) feedPage(ctx context.Context, sess instagram.Requester, upstreamID, cursor string) (*instagram.FeedResponse, error) {
	var resp *instagram.FeedResponse
	err := f.call(ctx, "feed", unlimitedWaits, func(ctx context.Context) error {
		var err error
		resp, err = f.api.FeedPage(ctx, sess, upstreamID, f.opts.PageSize, cursor)
		return err
	})
	return resp, err
}

// pageBundles maps a page onto the domain model. Items that cannot be
// mapped are skipped. In incremental mode the page is cut at the first
// already persisted shortcode.
func (f *Fetcher) pageBundles(ctx context.Context, log logger.Logger, owner *models.Account, entries []instagram.FeedItem, sink Sink) ([]models.ContentBundle, bool, error) {
	now := f.now()
	bundles := make([]models.ContentBundle, 0, len(entries))
	for i := range entries {
		item := &entries[i]

		if f.opts.Mode == ModeIncremental && item.Shortcode() != "" {
			known, err := sink.IsKnownContent(ctx, item.Shortcode())
			if err != nil {
				return nil, false, err
			}
			if known {
				return bundles, true, nil
			}
		}

		b, err := item.Bundle(owner.ID, now)
		if err != nil {
			log.WithError(err).Warn("Skipping unusable feed item")
			continue
		}
		bundles = append(bundles, b)
	}
	return bundles, false, nil
}
