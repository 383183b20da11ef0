package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"sitepulse/api/models"
)

// memSites is an in-memory SiteDirectory. Owners lists the user ids that
// exist; upserting a site for any other owner fails like a foreign key.
type memSites struct {
	mu      sync.Mutex
	sites   map[string]models.Site
	owners  map[string]bool
	upserts []models.Site
	readErr error
}

func newMemSites(owners ...string) *memSites {
	m := &memSites{sites: make(map[string]models.Site), owners: make(map[string]bool)}
	for _, o := range owners {
		m.owners[o] = true
	}
	return m
}

func (m *memSites) add(sites ...models.Site) *memSites {
	for _, s := range sites {
		m.sites[s.ID] = s
	}
	return m
}

func (m *memSites) SitesByOwner(_ context.Context, ownerID string) ([]models.Site, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	var out []models.Site
	for _, s := range m.sites {
		if s.UserID == ownerID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memSites) SitesByIDs(_ context.Context, ids []string) ([]models.Site, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Site
	for _, id := range ids {
		if s, ok := m.sites[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memSites) UpsertSite(_ context.Context, site models.Site) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts = append(m.upserts, site)
	if site.UserID != "" && !m.owners[site.UserID] {
		return fmt.Errorf("insert site %s: %w", site.ID, models.ErrOwnerNotFound)
	}
	m.sites[site.ID] = site
	return nil
}

type memRules struct {
	rules []models.PageRule
	err   error
	calls int
}

func (m *memRules) PageRules(_ context.Context, siteIDs []string) ([]models.PageRule, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	want := make(map[string]bool)
	for _, id := range siteIDs {
		want[id] = true
	}
	var out []models.PageRule
	for _, r := range m.rules {
		if want[r.SiteID] {
			out = append(out, r)
		}
	}
	return out, nil
}

// memEvents stores rows per table keyed by id, like an upsert.
type memEvents struct {
	rows   map[models.Table]map[string]models.Event
	calls  int
	failOn string // event id whose upsert fails
}

func newMemEvents() *memEvents {
	return &memEvents{rows: make(map[models.Table]map[string]models.Event)}
}

func (m *memEvents) UpsertEvents(_ context.Context, table models.Table, events []models.Event) (int, error) {
	m.calls++
	for _, e := range events {
		if m.failOn != "" && e.ID() == m.failOn {
			return 0, errors.New(`pq: null value in column "visitor_id" violates not-null constraint`)
		}
	}
	if m.rows[table] == nil {
		m.rows[table] = make(map[string]models.Event)
	}
	for _, e := range events {
		m.rows[table][e.ID()] = e
	}
	return len(events), nil
}

func (m *memEvents) all(table models.Table) []models.Event {
	var out []models.Event
	for _, e := range m.rows[table] {
		out = append(out, e)
	}
	return out
}

type memMirror struct {
	tables []models.Table
	events int
	err    error
}

func (m *memMirror) MirrorEvents(_ context.Context, table models.Table, events []models.Event) error {
	m.tables = append(m.tables, table)
	m.events += len(events)
	return m.err
}
