package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sitepulse/api/config"
	"sitepulse/api/metrics"
	"sitepulse/api/models"
)

// SiteDirectory is the persisted set of sites.
type SiteDirectory interface {
	SitesByOwner(ctx context.Context, ownerID string) ([]models.Site, error)
	SitesByIDs(ctx context.Context, ids []string) ([]models.Site, error)
	// UpsertSite inserts or updates a site by id. It returns an error wrapping
	// models.ErrOwnerNotFound when site.UserID references no owner.
	UpsertSite(ctx context.Context, site models.Site) error
}

// How a site id was obtained.
const (
	MatchID         = "id"
	MatchDomain     = "domain"
	MatchRegistered = "registered"
	MatchOrphan     = "orphan"
)

// Resolution is the outcome of resolving one event. An empty SiteID means
// the event was dropped.
type Resolution struct {
	SiteID string
	Match  string
}

// SiteResolver maps events to existing site ids.
type SiteResolver interface {
	Resolve(ctx context.Context, evt models.Event) (Resolution, error)
}

// snapshot is the directory state read once per request.
type snapshot struct {
	known map[string]models.Site
	index *domainIndex
}

// NewSiteResolver reads the directory once and returns the resolver for
// policy. Strict resolution only reads the owner's sites; auto-registration
// also looks up the site ids the events carry.
func NewSiteResolver(ctx context.Context, policy string, dir SiteDirectory, ownerID string, events []models.Event, logger *zap.Logger) (SiteResolver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	owned, err := dir.SitesByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load sites for owner: %w", ErrPersistence, err)
	}
	snap := &snapshot{known: make(map[string]models.Site), index: newDomainIndex(owned)}

	switch policy {
	case config.PolicyStrict:
		return &strictResolver{snap: snap}, nil
	case config.PolicyAutoRegister, "":
	default:
		return nil, fmt.Errorf("%w: unknown resolution policy %q", ErrConfiguration, policy)
	}

	for _, s := range owned {
		snap.known[s.ID] = s
	}
	if ids := candidateSiteIDs(events, snap.known); len(ids) > 0 {
		found, err := dir.SitesByIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to load sites by id: %w", ErrPersistence, err)
		}
		for _, s := range found {
			snap.known[s.ID] = s
		}
	}
	return &autoRegisterResolver{snap: snap, dir: dir, ownerID: ownerID, logger: logger}, nil
}

func candidateSiteIDs(events []models.Event, known map[string]models.Site) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, evt := range events {
		id := evt.String("site_id")
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if _, ok := known[id]; !ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// strictResolver accepts only events whose URL domain belongs to a
// pre-registered site of the owner. Everything else is dropped.
type strictResolver struct {
	snap *snapshot
}

func (r *strictResolver) Resolve(_ context.Context, evt models.Event) (Resolution, error) {
	if id, ok := r.snap.index.lookup(NormalizeDomain(evt.String("url_full"))); ok {
		return Resolution{SiteID: id, Match: MatchDomain}, nil
	}
	return Resolution{}, nil
}

// autoRegisterResolver trusts known site ids, then domains, and registers a
// new site for anything left over.
type autoRegisterResolver struct {
	snap    *snapshot
	dir     SiteDirectory
	ownerID string
	logger  *zap.Logger
}

func (r *autoRegisterResolver) Resolve(ctx context.Context, evt models.Event) (Resolution, error) {
	suppliedID := evt.String("site_id")
	if _, ok := r.snap.known[suppliedID]; ok && suppliedID != "" {
		return Resolution{SiteID: suppliedID, Match: MatchID}, nil
	}

	rawURL := evt.String("url_full")
	domain := NormalizeDomain(rawURL)
	if id, ok := r.snap.index.lookup(domain); ok {
		return Resolution{SiteID: id, Match: MatchDomain}, nil
	}

	site := models.Site{
		ID:     suppliedID,
		UserID: r.ownerID,
		URL:    OriginOf(rawURL),
	}
	if site.ID == "" {
		site.ID = registeredSiteID(r.ownerID, domain)
	}
	if site.URL == "" {
		site.URL = placeholderScheme + site.ID
	}
	site.Name = siteNameHint(evt)
	if site.Name == "" {
		site.Name = domain
	}
	if site.Name == "" {
		site.Name = "Site " + shortID(site.ID)
	}

	match, err := r.register(ctx, site)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{SiteID: site.ID, Match: match}, nil
}

// register upserts site, retrying once without an owner reference when the
// owner record does not exist.
func (r *autoRegisterResolver) register(ctx context.Context, site models.Site) (string, error) {
	match := MatchRegistered
	err := r.dir.UpsertSite(ctx, site)
	if errors.Is(err, models.ErrOwnerNotFound) {
		r.logger.Warn("owner record missing, registering orphan site",
			zap.String("site_id", site.ID),
			zap.String("owner_id", site.UserID),
		)
		site.UserID = ""
		match = MatchOrphan
		err = r.dir.UpsertSite(ctx, site)
	}
	if err != nil {
		return "", fmt.Errorf("%w: failed to register site %s: %w", ErrPersistence, site.ID, err)
	}

	metrics.SitesAutoRegistered.WithLabelValues(fmt.Sprint(match == MatchOrphan)).Inc()
	r.logger.Info("site auto-registered",
		zap.String("site_id", site.ID),
		zap.String("url", site.URL),
		zap.Bool("orphan", match == MatchOrphan),
	)
	r.snap.known[site.ID] = site
	r.snap.index.add(site)
	return match, nil
}

// registeredSiteID derives the id of an auto-registered site. Ids are stable
// per (owner, domain) so concurrent requests registering the same domain
// converge on one row through the upsert.
func registeredSiteID(ownerID, domain string) string {
	if domain == "" {
		return uuid.NewString()
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(ownerID+"|"+domain)).String()
}

// siteNameHint looks for a display name the tracker may have sent.
func siteNameHint(evt models.Event) string {
	for _, key := range []string{"site_name", "siteName"} {
		if name := evt.String(key); name != "" {
			return name
		}
	}
	if nested, ok := evt["site"].(map[string]any); ok {
		return models.Event(nested).String("name")
	}
	return ""
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
