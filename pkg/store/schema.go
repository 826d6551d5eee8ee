package store

import "strings"

// Tables use the same column names in both dialects; only the id, time and
// boolean types differ.
const schemaTemplate = `
CREATE TABLE IF NOT EXISTS jobs (
	id           {{ID}},
	job_type     TEXT NOT NULL CHECK (job_type IN ('PROFILE', 'POST')),
	entity_key   TEXT NOT NULL,
	source       TEXT NOT NULL,
	status       TEXT NOT NULL,
	attempts     INTEGER NOT NULL DEFAULT 0,
	retry_after  {{TIME}},
	last_error   TEXT,
	locked_by    TEXT,
	resume_phase TEXT NOT NULL DEFAULT '',
	created_at   {{TIME}} NOT NULL,
	updated_at   {{TIME}} NOT NULL,
	UNIQUE (job_type, entity_key)
);
CREATE INDEX IF NOT EXISTS idx_jobs_claim ON jobs (job_type, status, created_at);
CREATE TABLE IF NOT EXISTS accounts (
	id              {{ID}},
	handle          TEXT NOT NULL UNIQUE CHECK (handle <> ''),
	upstream_id     TEXT,
	display_name    TEXT,
	bio_text        TEXT,
	contact_email   TEXT,
	contact_phone   TEXT,
	profile_uri     TEXT NOT NULL,
	followers_count BIGINT,
	following_count BIGINT,
	content_count   BIGINT,
	is_verified     {{BOOL}} NOT NULL DEFAULT {{FALSE}},
	first_seen_at   {{TIME}} NOT NULL,
	last_seen_at    {{TIME}} NOT NULL
);
CREATE TABLE IF NOT EXISTS content_items (
	shortcode        TEXT PRIMARY KEY,
	owner_account_id BIGINT NOT NULL REFERENCES accounts (id),
	posted_at        {{TIME}},
	caption          TEXT,
	like_count       BIGINT,
	comment_count    BIGINT,
	view_count       BIGINT,
	kind             TEXT NOT NULL CHECK (kind IN ('post', 'reel')),
	is_multi_media   {{BOOL}} NOT NULL DEFAULT {{FALSE}},
	collaborators    TEXT NOT NULL DEFAULT '[]',
	last_seen_at     {{TIME}} NOT NULL,
	CHECK (kind <> 'reel' OR NOT is_multi_media)
);
CREATE INDEX IF NOT EXISTS idx_content_owner ON content_items (owner_account_id);
CREATE TABLE IF NOT EXISTS media_assets (
	id                {{ID}},
	content_shortcode TEXT NOT NULL REFERENCES content_items (shortcode),
	url               TEXT NOT NULL,
	kind              TEXT NOT NULL CHECK (kind IN ('image', 'video')),
	subtype           TEXT,
	media_index       INTEGER NOT NULL,
	tagged_handles    TEXT NOT NULL DEFAULT '[]',
	last_seen_at      {{TIME}} NOT NULL,
	UNIQUE (content_shortcode, media_index)
);
CREATE TABLE IF NOT EXISTS account_links (
	id           {{ID}},
	account_id   BIGINT NOT NULL REFERENCES accounts (id),
	url          TEXT NOT NULL,
	link_type    TEXT NOT NULL,
	label        TEXT,
	extracted_at {{TIME}} NOT NULL,
	UNIQUE (account_id, url)
)`

func schema(d Dialect) []string {
	var r *strings.Replacer
	switch d {
	case Postgres:
		r = strings.NewReplacer(
			"{{ID}}", "BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY",
			"{{TIME}}", "TIMESTAMPTZ",
			"{{BOOL}}", "BOOLEAN",
			"{{FALSE}}", "FALSE",
		)
	default:
		r = strings.NewReplacer(
			"{{ID}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
			"{{TIME}}", "DATETIME",
			"{{BOOL}}", "BOOLEAN",
			"{{FALSE}}", "0",
		)
	}

	var out []string
	for _, stmt := range strings.Split(r.Replace(schemaTemplate), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
