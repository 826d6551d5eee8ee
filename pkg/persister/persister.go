// Package persister turns fetched upstream data into idempotent writes
// against the Entity Store, extracts contacts from bios, and queues
// follow-up jobs for newly seen collaborators.
package persister

import (
	"context"
	"time"

	errs "igharvest/pkg/errors"
	"igharvest/pkg/extract"
	"igharvest/pkg/instagram"
	"igharvest/pkg/logger"
	"igharvest/pkg/models"
	"igharvest/pkg/store"
)

// Enqueuer adds jobs to the queue; a collision is a no-op
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType models.JobType, entityKey string, source models.JobSource) (int64, bool, error)
}

// Persister writes accounts, content and links
type Persister struct {
	store    *store.Store
	enqueuer Enqueuer
	baseURL  string
	logger   logger.Logger
	now      func() time.Time
}

// New creates a Persister. baseURL builds the stored profile URIs. A nil
// enqueuer disables follow-up discovery.
func New(st *store.Store, enqueuer Enqueuer, baseURL string, log logger.Logger) *Persister {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Persister{
		store:    st,
		enqueuer: enqueuer,
		baseURL:  baseURL,
		logger:   log.WithField("component", "persister"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// EnsureAccount writes the minimal account for a resolved handle
func (p *Persister) EnsureAccount(ctx context.Context, handle, upstreamID string) (*models.Account, error) {
	acc := &models.Account{
		Handle:     handle,
		UpstreamID: models.StringPtr(upstreamID),
		ProfileURI: instagram.ProfileURI(p.baseURL, handle),
		LastSeenAt: p.now(),
	}
	if _, err := p.store.Entities().EnsureAccount(ctx, acc); err != nil {
		return nil, errs.Wrap(errs.ErrorTypePersistence, err, "ensure account")
	}
	return acc, nil
}

// Account loads a stored account by handle
func (p *Persister) Account(ctx context.Context, handle string) (*models.Account, error) {
	acc, err := p.store.Entities().AccountByHandle(ctx, handle)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypePersistence, err, "load account")
	}
	return acc, nil
}

// SaveProfile writes every profile field. Contacts found in the bio are
// stored in their own columns and removed from the stored bio.
func (p *Persister) SaveProfile(ctx context.Context, handle, upstreamID string, user *instagram.ProfileUser) (*models.Account, error) {
	if upstreamID == "" {
		upstreamID = user.ID.String()
	}
	acc := &models.Account{
		Handle:         handle,
		UpstreamID:     models.StringPtr(upstreamID),
		DisplayName:    user.FullName.Ptr(),
		ProfileURI:     instagram.ProfileURI(p.baseURL, handle),
		FollowersCount: user.Followers(),
		FollowingCount: user.Following(),
		ContentCount:   user.MediaCount(),
		IsVerified:     user.IsVerified.Or(false),
		LastSeenAt:     p.now(),
	}
	if bio, ok := user.Biography.Get(); ok {
		c := extract.FromBio(bio)
		acc.BioText = &c.CleanedBio
		acc.ContactEmail = c.Email
		acc.ContactPhone = c.Phone
	}

	if _, err := p.store.Entities().UpsertProfile(ctx, acc); err != nil {
		return nil, errs.Wrap(errs.ErrorTypePersistence, err, "save profile")
	}
	p.logger.InfoWithFields("Profile saved", map[string]interface{}{
		"handle":      handle,
		"account_id":  acc.ID,
		"has_email":   acc.ContactEmail != nil,
		"has_phone":   acc.ContactPhone != nil,
		"is_verified": acc.IsVerified,
	})
	return acc, nil
}

// IsKnownContent reports whether a shortcode was persisted before
func (p *Persister) IsKnownContent(ctx context.Context, shortcode string) (bool, error) {
	ok, err := p.store.Entities().ContentExists(ctx, shortcode)
	if err != nil {
		return false, errs.Wrap(errs.ErrorTypePersistence, err, "lookup content")
	}
	return ok, nil
}

// PageResult summarizes one persisted page
type PageResult struct {
	Items     int
	Media     int
	Followups int
}

// SavePage writes a page of content in one transaction: either every item
// and its media lands or none does. Follow-up discovery runs after commit
// and never fails the page.
func (p *Persister) SavePage(ctx context.Context, owner *models.Account, bundles []models.ContentBundle) (PageResult, error) {
	var res PageResult
	err := p.store.InTx(ctx, func(e *store.Entities) error {
		for i := range bundles {
			bundles[i].Item.OwnerAccountID = owner.ID
			if err := e.UpsertContent(ctx, &bundles[i]); err != nil {
				return err
			}
			res.Items++
			res.Media += len(bundles[i].Media)
		}
		return nil
	})
	if err != nil {
		return PageResult{}, errs.Wrap(errs.ErrorTypePersistence, err, "save page")
	}

	res.Followups = p.discover(ctx, owner, bundles)
	return res, nil
}

// discover queues PROFILE jobs for collaborators without an account
func (p *Persister) discover(ctx context.Context, owner *models.Account, bundles []models.ContentBundle) int {
	if p.enqueuer == nil {
		return 0
	}

	var handles []string
	seen := map[string]bool{owner.Handle: true}
	for _, b := range bundles {
		for _, h := range b.Item.Collaborators {
			if !seen[h] {
				seen[h] = true
				handles = append(handles, h)
			}
		}
	}
	if len(handles) == 0 {
		return 0
	}

	known, err := p.store.Entities().KnownHandles(ctx, handles)
	if err != nil {
		p.logger.WithError(err).Warn("Follow-up discovery skipped")
		return 0
	}

	queued := 0
	for _, h := range handles {
		if known[h] {
			continue
		}
		_, created, err := p.enqueuer.Enqueue(ctx, models.JobTypeProfile, h, models.JobSourceFollowup)
		if err != nil {
			p.logger.WithError(err).WithField("handle", h).Warn("Follow-up enqueue failed")
			continue
		}
		if created {
			queued++
			p.logger.InfoWithFields("Follow-up job queued", map[string]interface{}{
				"handle": h, "discovered_from": owner.Handle,
			})
		}
	}
	return queued
}

// SaveLinks records outbound links of an account. Failures are logged and
// counted, never returned: enrichment must not affect the job.
func (p *Persister) SaveLinks(ctx context.Context, accountID int64, links []models.AccountLink) int {
	saved := 0
	e := p.store.Entities()
	for i := range links {
		links[i].AccountID = accountID
		if links[i].ExtractedAt.IsZero() {
			links[i].ExtractedAt = p.now()
		}
		if err := e.UpsertLink(ctx, &links[i]); err != nil {
			p.logger.WithError(errs.Wrap(errs.ErrorTypeEnrichment, err, "save link")).
				WithField("url", links[i].URL).Warn("Link not saved")
			continue
		}
		saved++
	}
	return saved
}
