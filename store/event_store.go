package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/lib/pq"

	"sitepulse/api/models"
)

// upsertChunkSize bounds the rows per INSERT so wide tables stay under the
// Postgres limit of 65535 bind parameters.
const upsertChunkSize = 500

// EventStore writes tracking events into their per-kind tables.
type EventStore struct {
	db *sql.DB
}

func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

// UpsertEvents inserts events into table, overwriting rows whose id already
// exists. Fields without a dedicated column are kept in raw_payload. All
// chunks are written in one transaction.
func (s *EventStore) UpsertEvents(ctx context.Context, table models.Table, events []models.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	if _, ok := models.ParseTable(string(table)); !ok {
		return 0, fmt.Errorf("table %q is not writable", table)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for start := 0; start < len(events); start += upsertChunkSize {
		end := min(start+upsertChunkSize, len(events))
		query, args, err := buildUpsert(table, events[start:end])
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return 0, fmt.Errorf("failed to upsert %d events into %s: %w", end-start, table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit events into %s: %w", table, err)
	}
	return len(events), nil
}

func buildUpsert(table models.Table, events []models.Event) (string, []any, error) {
	columns := append(append([]string{}, table.Columns()...), "raw_payload")
	dedicated := make(map[string]bool, len(columns))
	quoted := make([]string, len(columns))
	for i, col := range columns {
		dedicated[col] = true
		quoted[i] = pq.QuoteIdentifier(col)
	}

	args := make([]any, 0, len(events)*len(columns))
	tuples := make([]string, len(events))
	for i, evt := range events {
		placeholders := make([]string, len(columns))
		for j, col := range columns {
			placeholders[j] = fmt.Sprintf("$%d", len(args)+1)
			if col == "raw_payload" {
				raw, err := rawPayload(evt, dedicated)
				if err != nil {
					return "", nil, fmt.Errorf("event %s: %w", evt.ID(), err)
				}
				args = append(args, raw)
				continue
			}
			v, err := models.ColumnValue(evt[col])
			if err != nil {
				return "", nil, fmt.Errorf("event %s column %s: %w", evt.ID(), col, err)
			}
			args = append(args, v)
		}
		tuples[i] = "(" + strings.Join(placeholders, ", ") + ")"
	}

	updates := make([]string, 0, len(columns)-1)
	for _, col := range quoted[1:] {
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s ON CONFLICT (id) DO UPDATE SET %s",
		pq.QuoteIdentifier(string(table)),
		strings.Join(quoted, ", "),
		strings.Join(tuples, ", "),
		strings.Join(updates, ", "),
	)
	return query, args, nil
}

func rawPayload(evt models.Event, dedicated map[string]bool) (string, error) {
	extra := make(map[string]any)
	for k, v := range evt {
		if !dedicated[k] {
			extra[k] = v
		}
	}
	b, err := json.Marshal(extra)
	if err != nil {
		return "", fmt.Errorf("failed to encode raw payload: %w", err)
	}
	return string(b), nil
}
