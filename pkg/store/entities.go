package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"igharvest/pkg/models"
)

// Entities writes accounts, content, media and links through either the pool
// or an open transaction
type Entities struct {
	q       querier
	dialect Dialect
}

// Entities returns entity operations that autocommit each statement
func (s *Store) Entities() *Entities {
	return &Entities{q: s.db, dialect: s.dialect}
}

// InTx runs fn inside one transaction. Any error rolls the whole unit back.
func (s *Store) InTx(ctx context.Context, fn func(e *Entities) error) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return fn(&Entities{q: tx, dialect: s.dialect})
	})
}

func (e *Entities) bind(q string) string { return rebind(e.dialect, q) }

// EnsureAccount upserts the minimal account created when a handle is
// resolved. A known upstream id is never replaced by an absent one.
func (e *Entities) EnsureAccount(ctx context.Context, a *models.Account) (int64, error) {
	if a.Handle == "" {
		return 0, errors.New("account handle is required")
	}
	var id int64
	err := e.q.QueryRowContext(ctx, e.bind(`
		INSERT INTO accounts (handle, upstream_id, profile_uri, first_seen_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (handle) DO UPDATE SET
			upstream_id  = COALESCE(excluded.upstream_id, accounts.upstream_id),
			profile_uri  = excluded.profile_uri,
			last_seen_at = excluded.last_seen_at
		RETURNING id`),
		a.Handle, nullString(a.UpstreamID), a.ProfileURI, a.LastSeenAt.UTC(), a.LastSeenAt.UTC(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("ensure account %q: %w", a.Handle, err)
	}
	a.ID = id
	return id, nil
}

// UpsertProfile writes every profile field. Absent values keep what is
// already stored. Contacts are derived from the bio, so they follow it: a
// present bio replaces both contact columns, NULL included.
func (e *Entities) UpsertProfile(ctx context.Context, a *models.Account) (int64, error) {
	if a.Handle == "" {
		return 0, errors.New("account handle is required")
	}
	var id int64
	err := e.q.QueryRowContext(ctx, e.bind(`
		INSERT INTO accounts (handle, upstream_id, display_name, bio_text, contact_email, contact_phone,
			profile_uri, followers_count, following_count, content_count, is_verified, first_seen_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (handle) DO UPDATE SET
			upstream_id     = COALESCE(excluded.upstream_id, accounts.upstream_id),
			display_name    = COALESCE(excluded.display_name, accounts.display_name),
			bio_text        = COALESCE(excluded.bio_text, accounts.bio_text),
			contact_email   = CASE WHEN excluded.bio_text IS NULL THEN accounts.contact_email ELSE excluded.contact_email END,
			contact_phone   = CASE WHEN excluded.bio_text IS NULL THEN accounts.contact_phone ELSE excluded.contact_phone END,
			profile_uri     = excluded.profile_uri,
			followers_count = COALESCE(excluded.followers_count, accounts.followers_count),
			following_count = COALESCE(excluded.following_count, accounts.following_count),
			content_count   = COALESCE(excluded.content_count, accounts.content_count),
			is_verified     = excluded.is_verified,
			last_seen_at    = excluded.last_seen_at
		RETURNING id`),
		a.Handle, nullString(a.UpstreamID), nullString(a.DisplayName), nullString(a.BioText),
		nullString(a.ContactEmail), nullString(a.ContactPhone), a.ProfileURI,
		nullInt64(a.FollowersCount), nullInt64(a.FollowingCount), nullInt64(a.ContentCount),
		a.IsVerified, a.LastSeenAt.UTC(), a.LastSeenAt.UTC(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert profile %q: %w", a.Handle, err)
	}
	a.ID = id
	return id, nil
}

// AccountByHandle loads an account by its unique handle
func (e *Entities) AccountByHandle(ctx context.Context, handle string) (*models.Account, error) {
	var (
		a                                   models.Account
		upstreamID, name, bio, email, phone sql.NullString
		followers, following, content       sql.NullInt64
	)
	err := e.q.QueryRowContext(ctx, e.bind(`
		SELECT id, handle, upstream_id, display_name, bio_text, contact_email, contact_phone, profile_uri,
			followers_count, following_count, content_count, is_verified, first_seen_at, last_seen_at
		FROM accounts WHERE handle = ?`), handle,
	).Scan(&a.ID, &a.Handle, &upstreamID, &name, &bio, &email, &phone, &a.ProfileURI,
		&followers, &following, &content, &a.IsVerified, &a.FirstSeenAt, &a.LastSeenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %q: %w", handle, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get account %q: %w", handle, err)
	}
	a.UpstreamID = stringPtr(upstreamID)
	a.DisplayName = stringPtr(name)
	a.BioText = stringPtr(bio)
	a.ContactEmail = stringPtr(email)
	a.ContactPhone = stringPtr(phone)
	a.FollowersCount = int64Ptr(followers)
	a.FollowingCount = int64Ptr(following)
	a.ContentCount = int64Ptr(content)
	a.FirstSeenAt = a.FirstSeenAt.UTC()
	a.LastSeenAt = a.LastSeenAt.UTC()
	return &a, nil
}

// KnownHandles returns the subset of handles that already have an account
func (e *Entities) KnownHandles(ctx context.Context, handles []string) (map[string]bool, error) {
	known := make(map[string]bool, len(handles))
	for _, h := range handles {
		if known[h] {
			continue
		}
		var one int
		err := e.q.QueryRowContext(ctx, e.bind(`SELECT 1 FROM accounts WHERE handle = ?`), h).Scan(&one)
		switch {
		case err == nil:
			known[h] = true
		case !errors.Is(err, sql.ErrNoRows):
			return nil, fmt.Errorf("lookup account %q: %w", h, err)
		}
	}
	return known, nil
}

// UpsertContent writes a content item and its media. kind and
// is_multi_media are fixed at first sight; counts and caption refresh
// unless absent, and posted_at is never cleared. When media is present it
// replaces the stored set, so rows past the last index are removed.
func (e *Entities) UpsertContent(ctx context.Context, b *models.ContentBundle) error {
	item := &b.Item
	if !item.Valid() {
		return fmt.Errorf("content %q: invalid kind %q (multi-media %t)", item.Shortcode, item.Kind, item.IsMultiMedia)
	}
	collaborators, err := jsonList(item.Collaborators)
	if err != nil {
		return err
	}

	_, err = e.q.ExecContext(ctx, e.bind(`
		INSERT INTO content_items (shortcode, owner_account_id, posted_at, caption, like_count, comment_count,
			view_count, kind, is_multi_media, collaborators, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (shortcode) DO UPDATE SET
			posted_at     = COALESCE(excluded.posted_at, content_items.posted_at),
			caption       = COALESCE(excluded.caption, content_items.caption),
			like_count    = COALESCE(excluded.like_count, content_items.like_count),
			comment_count = COALESCE(excluded.comment_count, content_items.comment_count),
			view_count    = COALESCE(excluded.view_count, content_items.view_count),
			collaborators = excluded.collaborators,
			last_seen_at  = excluded.last_seen_at`),
		item.Shortcode, item.OwnerAccountID, nullTime(item.PostedAt), nullString(item.Caption),
		nullInt64(item.LikeCount), nullInt64(item.CommentCount), nullInt64(item.ViewCount),
		string(item.Kind), item.IsMultiMedia, collaborators, item.LastSeenAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert content %q: %w", item.Shortcode, err)
	}

	if len(b.Media) == 0 {
		return nil
	}
	last := 0
	for i := range b.Media {
		if err := e.upsertMedia(ctx, &b.Media[i]); err != nil {
			return err
		}
		if b.Media[i].Index > last {
			last = b.Media[i].Index
		}
	}

	// an item re-seen with fewer slides drops the trailing rows
	if _, err := e.q.ExecContext(ctx, e.bind(`DELETE FROM media_assets WHERE content_shortcode = ? AND media_index > ?`),
		item.Shortcode, last); err != nil {
		return fmt.Errorf("prune media %q: %w", item.Shortcode, err)
	}
	return nil
}

func (e *Entities) upsertMedia(ctx context.Context, m *models.MediaAsset) error {
	tagged, err := jsonList(m.TaggedHandles)
	if err != nil {
		return err
	}
	_, err = e.q.ExecContext(ctx, e.bind(`
		INSERT INTO media_assets (content_shortcode, url, kind, subtype, media_index, tagged_handles, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (content_shortcode, media_index) DO UPDATE SET
			url            = excluded.url,
			kind           = excluded.kind,
			subtype        = excluded.subtype,
			tagged_handles = excluded.tagged_handles,
			last_seen_at   = excluded.last_seen_at`),
		m.ContentShortcode, m.URL, string(m.Kind), nullString(m.Subtype), m.Index, tagged, m.LastSeenAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert media %q[%d]: %w", m.ContentShortcode, m.Index, err)
	}
	return nil
}

// ContentExists reports whether a shortcode has been persisted before
func (e *Entities) ContentExists(ctx context.Context, shortcode string) (bool, error) {
	var one int
	err := e.q.QueryRowContext(ctx, e.bind(`SELECT 1 FROM content_items WHERE shortcode = ?`), shortcode).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup content %q: %w", shortcode, err)
	}
	return true, nil
}

// ContentByShortcode loads one content item without its media
func (e *Entities) ContentByShortcode(ctx context.Context, shortcode string) (*models.ContentItem, error) {
	var (
		c                      models.ContentItem
		kind, collaborators    string
		postedAt               sql.NullTime
		caption                sql.NullString
		likes, comments, views sql.NullInt64
	)
	err := e.q.QueryRowContext(ctx, e.bind(`
		SELECT shortcode, owner_account_id, posted_at, caption, like_count, comment_count, view_count,
			kind, is_multi_media, collaborators, last_seen_at
		FROM content_items WHERE shortcode = ?`), shortcode,
	).Scan(&c.Shortcode, &c.OwnerAccountID, &postedAt, &caption, &likes, &comments, &views,
		&kind, &c.IsMultiMedia, &collaborators, &c.LastSeenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("content %q: %w", shortcode, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get content %q: %w", shortcode, err)
	}
	c.Kind = models.ContentKind(kind)
	c.PostedAt = timePtr(postedAt)
	c.Caption = stringPtr(caption)
	c.LikeCount = int64Ptr(likes)
	c.CommentCount = int64Ptr(comments)
	c.ViewCount = int64Ptr(views)
	c.LastSeenAt = c.LastSeenAt.UTC()
	if err := json.Unmarshal([]byte(collaborators), &c.Collaborators); err != nil {
		return nil, fmt.Errorf("decode collaborators of %q: %w", shortcode, err)
	}
	return &c, nil
}

// MediaFor returns the media of a content item ordered by index
func (e *Entities) MediaFor(ctx context.Context, shortcode string) ([]models.MediaAsset, error) {
	rows, err := e.q.QueryContext(ctx, e.bind(`
		SELECT id, content_shortcode, url, kind, subtype, media_index, tagged_handles, last_seen_at
		FROM media_assets WHERE content_shortcode = ? ORDER BY media_index`), shortcode)
	if err != nil {
		return nil, fmt.Errorf("list media of %q: %w", shortcode, err)
	}
	defer rows.Close()

	var out []models.MediaAsset
	for rows.Next() {
		var (
			m            models.MediaAsset
			kind, tagged string
			subtype      sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.ContentShortcode, &m.URL, &kind, &subtype, &m.Index, &tagged, &m.LastSeenAt); err != nil {
			return nil, err
		}
		m.Kind = models.MediaKind(kind)
		m.Subtype = stringPtr(subtype)
		m.LastSeenAt = m.LastSeenAt.UTC()
		if err := json.Unmarshal([]byte(tagged), &m.TaggedHandles); err != nil {
			return nil, fmt.Errorf("decode tagged handles: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CountContent returns how many content items an account owns
func (e *Entities) CountContent(ctx context.Context, accountID int64) (int, error) {
	var n int
	err := e.q.QueryRowContext(ctx, e.bind(`SELECT COUNT(*) FROM content_items WHERE owner_account_id = ?`), accountID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count content: %w", err)
	}
	return n, nil
}

// UpsertLink records one outbound link of an account
func (e *Entities) UpsertLink(ctx context.Context, l *models.AccountLink) error {
	_, err := e.q.ExecContext(ctx, e.bind(`
		INSERT INTO account_links (account_id, url, link_type, label, extracted_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (account_id, url) DO UPDATE SET
			link_type    = excluded.link_type,
			label        = COALESCE(excluded.label, account_links.label),
			extracted_at = excluded.extracted_at`),
		l.AccountID, l.URL, l.LinkType, nullString(l.Label), l.ExtractedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert link %q: %w", l.URL, err)
	}
	return nil
}

// LinksFor returns the links of an account ordered by url
func (e *Entities) LinksFor(ctx context.Context, accountID int64) ([]models.AccountLink, error) {
	rows, err := e.q.QueryContext(ctx, e.bind(`
		SELECT id, account_id, url, link_type, label, extracted_at
		FROM account_links WHERE account_id = ? ORDER BY url`), accountID)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	defer rows.Close()

	var out []models.AccountLink
	for rows.Next() {
		var (
			l     models.AccountLink
			label sql.NullString
		)
		if err := rows.Scan(&l.ID, &l.AccountID, &l.URL, &l.LinkType, &label, &l.ExtractedAt); err != nil {
			return nil, err
		}
		l.Label = stringPtr(label)
		l.ExtractedAt = l.ExtractedAt.UTC()
		out = append(out, l)
	}
	return out, rows.Err()
}

func jsonList(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode list: %w", err)
	}
	return string(b), nil
}
