package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sitepulse/api/config"
	"sitepulse/api/metrics"
	"sitepulse/api/models"
)

// EventStore upserts events into their table keyed on id.
type EventStore interface {
	UpsertEvents(ctx context.Context, table models.Table, events []models.Event) (int, error)
}

// EventMirror receives a copy of persisted events. Mirror failures never fail
// a request.
type EventMirror interface {
	MirrorEvents(ctx context.Context, table models.Table, events []models.Event) error
}

// Options selects the pipeline's policies.
type Options struct {
	OwnerID string
	Policy  string
	Mode    string
	Now     func() time.Time
}

// Pipeline turns a raw ingest payload into persisted, owned, classified rows.
type Pipeline struct {
	sites  SiteDirectory
	rules  PageRuleDirectory
	events EventStore
	mirror EventMirror
	opts   Options
	logger *zap.Logger
}

// New creates a Pipeline. mirror may be nil.
func New(sites SiteDirectory, rules PageRuleDirectory, events EventStore, mirror EventMirror, opts Options, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{
		sites:  sites,
		rules:  rules,
		events: events,
		mirror: mirror,
		opts:   opts,
		logger: logger,
	}
}

// pending is an event that survived normalization and resolution.
type pending struct {
	result *models.EventResult
	table  models.Table
	fields models.Event
}

// Process runs one request body through normalization, site resolution,
// classification, sanitization and persistence.
func (p *Pipeline) Process(ctx context.Context, body []byte) (*models.IngestResponse, error) {
	if p.opts.OwnerID == "" {
		return nil, fmt.Errorf("%w: OWNER_USER_ID is not set", ErrConfiguration)
	}

	batch, err := Normalize(body)
	if err != nil {
		return nil, err
	}

	results := make([]models.EventResult, len(batch.Items))
	var candidates []pending
	var fields []models.Event
	receivedAt := p.opts.Now().UTC()
	for i, item := range batch.Items {
		results[i] = models.EventResult{Index: item.Index, Table: item.Table}
		if item.Err != nil {
			results[i].Status = models.StatusRejected
			results[i].Error = item.Err.Error()
			metrics.EventsDropped.WithLabelValues("invalid").Inc()
			continue
		}
		evt := item.Fields
		if evt.ID() == "" {
			evt["id"] = uuid.NewString()
		}
		if evt.String("timestamp") == "" {
			evt["timestamp"] = receivedAt.Format(time.RFC3339Nano)
		}
		results[i].ID = evt.ID()
		metrics.EventsReceived.WithLabelValues(string(item.Table)).Inc()
		candidates = append(candidates, pending{result: &results[i], table: item.Table, fields: evt})
		fields = append(fields, evt)
	}

	resolved, err := p.resolve(ctx, candidates, fields)
	if err != nil {
		return nil, err
	}
	if err := p.classify(ctx, resolved); err != nil {
		return nil, err
	}

	resolved = collapseDuplicates(resolved)
	if p.opts.Mode == config.ModePerEvent {
		p.persistEach(ctx, resolved)
	} else if err := p.persistBatch(ctx, resolved); err != nil {
		return nil, err
	}
	p.mirrorStored(ctx, resolved)

	count := 0
	for _, r := range results {
		if r.Status == models.StatusStored {
			count++
		}
	}
	p.logger.Info("ingest batch processed",
		zap.String("shape", batch.Shape.String()),
		zap.Int("submitted", len(results)),
		zap.Int("stored", count),
	)
	return &models.IngestResponse{Success: true, Count: count, Results: results}, nil
}

// resolve attaches site ids. Dropped events are marked and filtered out.
func (p *Pipeline) resolve(ctx context.Context, candidates []pending, fields []models.Event) ([]pending, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	resolver, err := NewSiteResolver(ctx, p.opts.Policy, p.sites, p.opts.OwnerID, fields, p.logger)
	if err != nil {
		return nil, err
	}

	resolved := candidates[:0]
	for _, c := range candidates {
		res, err := resolver.Resolve(ctx, c.fields)
		if err != nil {
			if p.opts.Mode != config.ModePerEvent {
				return nil, err
			}
			c.result.Status = models.StatusFailed
			c.result.Error = err.Error()
			metrics.EventsDropped.WithLabelValues("resolution_failed").Inc()
			continue
		}
		if res.SiteID == "" {
			c.result.Status = models.StatusDropped
			metrics.EventsDropped.WithLabelValues("unmatched_site").Inc()
			p.logger.Debug("event dropped: no matching site",
				zap.String("event_id", c.result.ID),
				zap.String("url", c.fields.String("url_full")),
			)
			continue
		}
		c.result.SiteID = res.SiteID
		resolved = append(resolved, c)
	}
	return resolved, nil
}

// classify loads page rules once for every resolved site, then labels and
// sanitizes each event.
func (p *Pipeline) classify(ctx context.Context, resolved []pending) error {
	if len(resolved) == 0 {
		return nil
	}
	seen := make(map[string]bool)
	var siteIDs []string
	for _, c := range resolved {
		if !seen[c.result.SiteID] {
			seen[c.result.SiteID] = true
			siteIDs = append(siteIDs, c.result.SiteID)
		}
	}
	rules, err := p.rules.PageRules(ctx, siteIDs)
	if err != nil {
		return fmt.Errorf("%w: failed to load page rules: %w", ErrPersistence, err)
	}
	classifier := NewClassifier(rules)

	for i := range resolved {
		c := &resolved[i]
		label := classifier.Classify(c.table, c.result.SiteID, c.fields)
		c.fields = Sanitize(c.fields, c.result.SiteID, p.opts.OwnerID)
		c.fields["content_type"] = label
		c.result.ContentType = label
	}
	return nil
}

// collapseDuplicates keeps the last occurrence of every (table, id) pair.
// Earlier occurrences are marked superseded and are not written.
func collapseDuplicates(resolved []pending) []pending {
	last := make(map[string]int, len(resolved))
	for i, c := range resolved {
		last[string(c.table)+"/"+c.result.ID] = i
	}
	kept := make([]pending, 0, len(last))
	for i, c := range resolved {
		if last[string(c.table)+"/"+c.result.ID] != i {
			c.result.Status = models.StatusSuperseded
			metrics.EventsDropped.WithLabelValues("superseded").Inc()
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

// persistBatch issues one upsert per table.
func (p *Pipeline) persistBatch(ctx context.Context, resolved []pending) error {
	for _, table := range models.AllowedTables {
		var rows []models.Event
		for _, c := range resolved {
			if c.table == table {
				rows = append(rows, c.fields)
			}
		}
		if len(rows) == 0 {
			continue
		}
		if _, err := p.events.UpsertEvents(ctx, table, rows); err != nil {
			return fmt.Errorf("%w: upsert into %s failed: %w", ErrPersistence, table, err)
		}
		metrics.EventsPersisted.WithLabelValues(string(table)).Add(float64(len(rows)))
	}
	for _, c := range resolved {
		c.result.Status = models.StatusStored
	}
	return nil
}

// persistEach upserts events one at a time and records each outcome.
func (p *Pipeline) persistEach(ctx context.Context, resolved []pending) {
	for _, c := range resolved {
		if _, err := p.events.UpsertEvents(ctx, c.table, []models.Event{c.fields}); err != nil {
			c.result.Status = models.StatusFailed
			c.result.Error = err.Error()
			metrics.EventsDropped.WithLabelValues("persistence_failed").Inc()
			p.logger.Error("event upsert failed",
				zap.String("event_id", c.result.ID),
				zap.String("table", string(c.table)),
				zap.Error(err),
			)
			continue
		}
		c.result.Status = models.StatusStored
		metrics.EventsPersisted.WithLabelValues(string(c.table)).Inc()
	}
}

func (p *Pipeline) mirrorStored(ctx context.Context, resolved []pending) {
	if p.mirror == nil {
		return
	}
	for _, table := range models.AllowedTables {
		var rows []models.Event
		for _, c := range resolved {
			if c.table == table && c.result.Status == models.StatusStored {
				rows = append(rows, c.fields)
			}
		}
		if len(rows) == 0 {
			continue
		}
		if err := p.mirror.MirrorEvents(ctx, table, rows); err != nil {
			metrics.MirrorFailures.Inc()
			p.logger.Warn("analytics mirror write failed",
				zap.String("table", string(table)),
				zap.Int("events", len(rows)),
				zap.Error(err),
			)
		}
	}
}
