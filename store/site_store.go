package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"sitepulse/api/models"
)

// SiteStore reads and registers sites in Postgres.
type SiteStore struct {
	db *sql.DB
}

func NewSiteStore(db *sql.DB) *SiteStore {
	return &SiteStore{db: db}
}

const siteColumns = `id, COALESCE(user_id::text, ''), name, url, COALESCE(tracking_domain, ''), associated_domains, created_at`

func (s *SiteStore) SitesByOwner(ctx context.Context, ownerID string) ([]models.Site, error) {
	query := `SELECT ` + siteColumns + `
		FROM sites
		WHERE user_id = $1
		ORDER BY created_at ASC, id ASC;
	`
	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		if isInvalidText(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query sites by owner: %w", err)
	}
	return scanSites(rows)
}

func (s *SiteStore) SitesByIDs(ctx context.Context, ids []string) ([]models.Site, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + siteColumns + `
		FROM sites
		WHERE id = ANY($1)
		ORDER BY created_at ASC, id ASC;
	`
	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query sites by id: %w", err)
	}
	return scanSites(rows)
}

// UpsertSite inserts site, or attaches an existing orphan row with the same id
// to site.UserID. An empty UserID stores a NULL owner.
func (s *SiteStore) UpsertSite(ctx context.Context, site models.Site) error {
	query := `
		INSERT INTO sites (id, user_id, name, url, tracking_domain)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET user_id = COALESCE(sites.user_id, EXCLUDED.user_id);
	`
	owner := sql.NullString{String: site.UserID, Valid: site.UserID != ""}
	domain := sql.NullString{String: site.TrackingDomain, Valid: site.TrackingDomain != ""}
	_, err := s.db.ExecContext(ctx, query, site.ID, owner, site.Name, site.URL, domain)
	if err != nil {
		if isForeignKeyViolation(err) || isInvalidText(err) {
			return fmt.Errorf("failed to upsert site %s: %w", site.ID, models.ErrOwnerNotFound)
		}
		return fmt.Errorf("failed to upsert site %s: %w", site.ID, err)
	}
	return nil
}

func scanSites(rows *sql.Rows) ([]models.Site, error) {
	defer rows.Close()

	var sites []models.Site
	for rows.Next() {
		var site models.Site
		var associated pq.StringArray
		if err := rows.Scan(
			&site.ID,
			&site.UserID,
			&site.Name,
			&site.URL,
			&site.TrackingDomain,
			&associated,
			&site.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan site: %w", err)
		}
		site.AssociatedDomains = associated
		sites = append(sites, site)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sites: %w", err)
	}
	return sites, nil
}
