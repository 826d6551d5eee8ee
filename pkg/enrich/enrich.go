// Package enrich expands the outbound links of a profile. Link aggregator
// pages (linktr.ee and similar) are fetched and their child links recorded
// next to the profile's own links. Everything here is best-effort: failures
// are logged and the links found so far are returned.
package enrich

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	errs "igharvest/pkg/errors"
	"igharvest/pkg/instagram"
	"igharvest/pkg/logger"
	"igharvest/pkg/models"
)

// Link types written to account_links
const (
	LinkTypeBio             = "bio"
	LinkTypeExternalURL     = "external_url"
	LinkTypeBioText         = "bio_text"
	LinkTypeAggregatorChild = "aggregator_child"
	LinkTypeExternal        = "external"
)

// AggregatorDomains are the link-in-bio services whose pages are expanded
var AggregatorDomains = []string{
	"linktr.ee", "beacons.ai", "bio.site", "campsite.bio", "taplink.at",
	"linkpop.com", "hayko.tv", "solo.to", "shor.by",
}

var urlPattern = regexp.MustCompile(`https?://[^\s<>"'()]+`)

// linktree children pointing back at these hosts are navigation, not content
var linktreeSkip = []string{"linktr.ee", "instagram.com", "facebook.com", "twitter.com", "linkedin.com"}

const maxPageBytes = 2 << 20

// Options configures an Enricher
type Options struct {
	Timeout   time.Duration
	MaxLinks  int
	Transport http.RoundTripper
	Logger    logger.Logger
}

// Enricher fetches aggregator pages with its own HTTP client, separate from
// the upstream session
type Enricher struct {
	client   *http.Client
	maxLinks int
	logger   logger.Logger
	now      func() time.Time
}

// New creates an Enricher
func New(opts Options) *Enricher {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxLinks <= 0 {
		opts.MaxLinks = 50
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNopLogger()
	}
	return &Enricher{
		client:   &http.Client{Timeout: opts.Timeout, Transport: opts.Transport},
		maxLinks: opts.MaxLinks,
		logger:   opts.Logger.WithField("component", "enrich"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Links returns the profile's own links plus the children of every
// aggregator among them, deduplicated and capped at MaxLinks
func (e *Enricher) Links(ctx context.Context, user *instagram.ProfileUser) []models.AccountLink {
	out := newLinkSet(e.maxLinks, e.now())

	for _, l := range user.Links() {
		typ := l.LinkType.Or("")
		if typ == "" {
			typ = LinkTypeBio
		}
		if ext, ok := user.ExternalURL.Get(); ok && ext == l.URL.Or("") {
			typ = LinkTypeExternalURL
		}
		out.add(l.URL.Or(""), typ, l.Title.Or(""))
	}
	for _, u := range FindURLs(user.Biography.Or("")) {
		out.add(u, LinkTypeBioText, "")
	}

	seeds := out.urls()
	for _, u := range seeds {
		if out.full() {
			break
		}
		domain, ok := AggregatorDomain(u)
		if !ok {
			continue
		}
		children, err := e.Expand(ctx, u)
		if err != nil {
			e.logger.WithError(err).WithFields(map[string]interface{}{
				"url":    u,
				"domain": domain,
			}).Warn("Aggregator expansion failed")
			continue
		}
		for _, c := range children {
			out.add(c.URL, c.LinkType, derefOr(c.Label, ""))
		}
	}

	return out.links
}

// Expand fetches one aggregator page and returns its child links
func (e *Enricher) Expand(ctx context.Context, pageURL string) ([]models.AccountLink, error) {
	domain, ok := AggregatorDomain(pageURL)
	if !ok {
		return nil, errs.New(errs.ErrorTypeInvalidInput, pageURL+" is not a link aggregator")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeEnrichment, err, "build aggregator request")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeEnrichment, err, "fetch "+pageURL)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errs.New(errs.ErrorTypeEnrichment, fmt.Sprintf("fetch %s: status %d", pageURL, resp.StatusCode))
	}

	links, err := ParseAggregator(domain, io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, err
	}
	e.logger.DebugWithFields("Aggregator expanded", map[string]interface{}{
		"url":      pageURL,
		"children": len(links),
	})
	return links, nil
}

// ParseAggregator extracts child links from an aggregator page. Linktree
// pages keep labelled anchors that do not point at social networks; other
// aggregators keep absolute links that leave their own domain.
func ParseAggregator(domain string, r io.Reader) ([]models.AccountLink, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeEnrichment, err, "parse aggregator page")
	}

	var links []models.AccountLink
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		text := strings.Join(strings.Fields(s.Text()), " ")
		if href == "" {
			return
		}

		if domain == "linktr.ee" {
			for _, skip := range linktreeSkip {
				if strings.Contains(href, skip) {
					return
				}
			}
			if text == "" {
				return
			}
			links = append(links, models.AccountLink{URL: href, LinkType: LinkTypeAggregatorChild, Label: models.StringPtr(text)})
			return
		}

		if strings.HasPrefix(href, "http") && !strings.Contains(href, domain) {
			links = append(links, models.AccountLink{URL: href, LinkType: LinkTypeExternal, Label: models.StringPtr(text)})
		}
	})
	return links, nil
}

// AggregatorDomain reports the aggregator a URL belongs to, ignoring a
// leading www.
func AggregatorDomain(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	for _, d := range AggregatorDomains {
		if host == d {
			return d, true
		}
	}
	return "", false
}

// FindURLs returns every http(s) URL in free text, trailing punctuation
// trimmed
func FindURLs(text string) []string {
	var out []string
	for _, m := range urlPattern.FindAllString(text, -1) {
		m = strings.TrimRight(m, ".,;:!?")
		if m != "" {
			out = append(out, m)
		}
	}
	return out
}

func derefOr(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}

// linkSet deduplicates by URL and stops accepting at its cap
type linkSet struct {
	links []models.AccountLink
	seen  map[string]bool
	max   int
	at    time.Time
}

func newLinkSet(max int, at time.Time) *linkSet {
	return &linkSet{seen: make(map[string]bool), max: max, at: at}
}

func (s *linkSet) full() bool { return len(s.links) >= s.max }

func (s *linkSet) add(u, typ, label string) {
	u = strings.TrimSpace(u)
	if u == "" || s.seen[u] || s.full() {
		return
	}
	s.seen[u] = true
	s.links = append(s.links, models.AccountLink{URL: u, LinkType: typ, Label: models.StringPtr(label), ExtractedAt: s.at})
}

func (s *linkSet) urls() []string {
	out := make([]string, 0, len(s.links))
	for _, l := range s.links {
		out = append(out, l.URL)
	}
	return out
}
