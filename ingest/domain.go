package ingest

import (
	"net/url"
	"sort"
	"strings"

	"sitepulse/api/models"
)

// NormalizeDomain reduces a URL or host to its bare lower-case host: scheme,
// leading "www.", port, path, query and fragment are stripped.
func NormalizeDomain(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, "@"); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.LastIndex(s, ":"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSuffix(s, ".")
	return strings.TrimPrefix(s, "www.")
}

// OriginOf returns scheme://host of raw, or "" when raw is not an absolute URL.
func OriginOf(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// PathOf extracts the path component of a full URL, a schemeless URL or a
// bare path. The result always starts with "/" and has no trailing slash
// except for the root.
func PathOf(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	if !strings.HasPrefix(s, "/") {
		if i := strings.Index(s, "://"); i >= 0 {
			s = s[i+3:]
		} else if first, _, _ := strings.Cut(s, "/"); !strings.ContainsAny(first, ".:") && first != "localhost" {
			// bare path such as "oferta"
			s = "/" + s
		}
		// drop the host
		s = s[strings.IndexByte(s+"/", '/'):]
	}
	s = strings.TrimRight(s, "/")
	if s == "" {
		return "/"
	}
	return s
}

// placeholderScheme marks the URL of a site registered from an event that
// carried no URL. Such URLs never match a domain.
const placeholderScheme = "site://"

// siteDomains lists every domain a site answers to.
func siteDomains(site models.Site) []string {
	var out []string
	for _, raw := range append([]string{site.URL, site.TrackingDomain}, site.AssociatedDomains...) {
		if strings.HasPrefix(raw, placeholderScheme) {
			continue
		}
		if d := NormalizeDomain(raw); d != "" {
			out = append(out, d)
		}
	}
	return out
}

type domainEntry struct {
	domain string
	siteID string
}

// domainIndex maps normalized domains to site ids. Lookups try an exact
// match first, then a suffix match so that app.example.com resolves to the
// site registered for example.com.
type domainIndex struct {
	exact   map[string]string
	ordered []domainEntry
}

func newDomainIndex(sites []models.Site) *domainIndex {
	ix := &domainIndex{exact: make(map[string]string)}
	for _, site := range sites {
		ix.add(site)
	}
	return ix
}

// add registers the site's domains. A domain already claimed keeps its
// first site.
func (ix *domainIndex) add(site models.Site) {
	changed := false
	for _, d := range siteDomains(site) {
		if _, taken := ix.exact[d]; taken {
			continue
		}
		ix.exact[d] = site.ID
		ix.ordered = append(ix.ordered, domainEntry{domain: d, siteID: site.ID})
		changed = true
	}
	if !changed {
		return
	}
	// Most specific domain first so nested registrations win over parents.
	sort.SliceStable(ix.ordered, func(i, j int) bool {
		a, b := ix.ordered[i], ix.ordered[j]
		if len(a.domain) != len(b.domain) {
			return len(a.domain) > len(b.domain)
		}
		return a.siteID < b.siteID
	})
}

func (ix *domainIndex) lookup(domain string) (string, bool) {
	if domain == "" {
		return "", false
	}
	if id, ok := ix.exact[domain]; ok {
		return id, true
	}
	for _, e := range ix.ordered {
		if strings.HasSuffix(domain, "."+e.domain) {
			return e.siteID, true
		}
	}
	return "", false
}
