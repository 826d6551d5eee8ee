package dispatcher

import (
	"context"
	"errors"
	"fmt"

	errs "igharvest/pkg/errors"
	"igharvest/pkg/fetcher"
	"igharvest/pkg/instagram"
	"igharvest/pkg/models"
	"igharvest/pkg/store"
)

// handleFor derives the account handle of the job. POST jobs need one
// request to read the owner from the post page.
func (d *Dispatcher) handleFor(ctx context.Context, run *jobRun) (string, error) {
	if run.handle != "" {
		return run.handle, nil
	}

	key := run.job.EntityKey
	switch run.job.Type {
	case models.JobTypeProfile:
		h, ok := instagram.HandleFromKey(key)
		if !ok {
			return "", errs.New(errs.ErrorTypeInvalidInput, fmt.Sprintf("no handle in entity key %q", key))
		}
		run.handle = h
	case models.JobTypePost:
		code, ok := instagram.ShortcodeFromKey(key)
		if !ok {
			return "", errs.New(errs.ErrorTypeInvalidInput, fmt.Sprintf("no shortcode in entity key %q", key))
		}
		owner, err := d.fetcher.PostOwner(ctx, d.session, code)
		if err != nil {
			return "", err
		}
		h := instagram.SanitizeUsername(owner)
		if !instagram.IsValidUsername(h) {
			return "", errs.New(errs.ErrorTypeResolution, fmt.Sprintf("post %s has unusable owner %q", code, owner))
		}
		run.handle = h
	default:
		return "", errs.New(errs.ErrorTypeInvalidInput, fmt.Sprintf("unknown job type %q", run.job.Type))
	}

	run.log = run.log.WithField("handle", run.handle)
	return run.handle, nil
}

// accountFor returns the stored account of the job, resolving it again when
// an earlier run left no upstream id behind
func (d *Dispatcher) accountFor(ctx context.Context, run *jobRun) (*models.Account, error) {
	if run.account != nil {
		return run.account, nil
	}
	handle, err := d.handleFor(ctx, run)
	if err != nil {
		return nil, err
	}

	acc, err := d.persister.Account(ctx, handle)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if acc == nil || acc.UpstreamID == nil {
		run.log.Info("Account missing or unresolved, resolving again")
		if err := d.createAccount(ctx, run); err != nil {
			return nil, err
		}
		return run.account, nil
	}

	run.account = acc
	return acc, nil
}

func (d *Dispatcher) createAccount(ctx context.Context, run *jobRun) error {
	handle, err := d.handleFor(ctx, run)
	if err != nil {
		return err
	}
	id, err := d.fetcher.Resolve(ctx, d.session, handle)
	if err != nil {
		return err
	}
	acc, err := d.persister.EnsureAccount(ctx, handle, id)
	if err != nil {
		return err
	}
	run.account = acc
	return nil
}

func (d *Dispatcher) seedAccount(ctx context.Context, run *jobRun) error {
	acc, err := d.accountFor(ctx, run)
	if err != nil {
		return err
	}
	user, err := d.fetcher.Profile(ctx, d.session, acc.Handle)
	if err != nil {
		return err
	}
	seeded, err := d.persister.SaveProfile(ctx, acc.Handle, *acc.UpstreamID, user)
	if err != nil {
		return err
	}
	run.account = seeded

	if d.opts.Enricher != nil {
		d.enrich(ctx, run, user)
	}
	return nil
}

// enrich stores outbound links; nothing here can fail the job
func (d *Dispatcher) enrich(ctx context.Context, run *jobRun, user *instagram.ProfileUser) {
	links := d.opts.Enricher.Links(ctx, user)
	if len(links) == 0 {
		return
	}
	saved := d.persister.SaveLinks(ctx, run.account.ID, links)
	run.log.InfoWithFields("Profile links enriched", map[string]interface{}{
		"found": len(links),
		"saved": saved,
	})
}

func (d *Dispatcher) seedContent(ctx context.Context, run *jobRun) error {
	acc, err := d.accountFor(ctx, run)
	if err != nil {
		return err
	}
	sum, err := d.fetcher.SeedContent(ctx, d.session, fetcher.ContentRequest{
		JobID:  run.job.ID,
		Owner:  acc,
		Resume: run.entry == models.StatusContentSeedRunning,
	}, d.persister)
	if err != nil {
		return err
	}
	run.log.InfoWithFields("Content seeded", map[string]interface{}{
		"pages":     sum.Pages,
		"items":     sum.Items,
		"followups": sum.Followups,
		"stop":      sum.Stop,
		"resumed":   sum.Resumed,
	})
	return nil
}
