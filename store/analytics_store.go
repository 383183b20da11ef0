// api/store/analytics_store.go
package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"sitepulse/api/database"
	"sitepulse/api/models"
	"sitepulse/api/utils"
)

// ErrMirrorUnavailable is returned while the mirror circuit is open.
var ErrMirrorUnavailable = errors.New("analytics mirror unavailable")

const trackingEventsDDL = `
	CREATE TABLE IF NOT EXISTS tracking_events (
		event_id       String,
		event_kind     LowCardinality(String),
		site_id        String,
		user_id        String,
		visitor_id     String,
		session_id     String,
		timestamp      DateTime64(3, 'UTC'),
		url_path       String,
		content_type   LowCardinality(String),
		price_value    Nullable(Float64),
		price_currency LowCardinality(String),
		event_data     String
	)
	ENGINE = ReplacingMergeTree
	PARTITION BY toYYYYMM(timestamp)
	ORDER BY (user_id, event_kind, event_id)
`

// AnalyticsStore mirrors persisted events into ClickHouse and serves the
// dashboard aggregates from there.
type AnalyticsStore struct {
	DB      *database.ClickHouseClient
	breaker *gobreaker.CircuitBreaker[struct{}]
	send    func(ctx context.Context, rows []trackingRow) error
	logger  *zap.Logger
}

// trackingRow is one tracking_events row.
type trackingRow struct {
	EventID       string
	EventKind     string
	SiteID        string
	UserID        string
	VisitorID     string
	SessionID     string
	Timestamp     time.Time
	URLPath       string
	ContentType   string
	PriceValue    *float64
	PriceCurrency string
	EventData     string
}

func NewAnalyticsStore(chClient *database.ClickHouseClient, logger *zap.Logger) *AnalyticsStore {
	s := &AnalyticsStore{
		DB:     chClient,
		logger: logger,
	}
	s.send = s.sendBatch
	s.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "clickhouse-mirror",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return s
}

// EnsureSchema creates the tracking_events table when it does not exist.
func (s *AnalyticsStore) EnsureSchema(ctx context.Context) error {
	if err := s.DB.Conn.Exec(ctx, trackingEventsDDL); err != nil {
		return fmt.Errorf("failed to create tracking_events table: %w", err)
	}
	return nil
}

// MirrorEvents copies events persisted into table to tracking_events.
func (s *AnalyticsStore) MirrorEvents(ctx context.Context, table models.Table, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}
	rows := make([]trackingRow, 0, len(events))
	for _, evt := range events {
		row, err := toTrackingRow(table, evt)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	_, err := s.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, s.send(ctx, rows)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrMirrorUnavailable, err)
	}
	return err
}

func (s *AnalyticsStore) sendBatch(ctx context.Context, rows []trackingRow) error {
	batch, err := s.DB.Conn.PrepareBatch(ctx, `
		INSERT INTO tracking_events (
			event_id, event_kind, site_id, user_id, visitor_id, session_id, timestamp,
			url_path, content_type, price_value, price_currency, event_data
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}

	for _, row := range rows {
		err := batch.Append(
			row.EventID,
			row.EventKind,
			row.SiteID,
			row.UserID,
			row.VisitorID,
			row.SessionID,
			row.Timestamp,
			row.URLPath,
			row.ContentType,
			row.PriceValue,
			row.PriceCurrency,
			row.EventData,
		)
		if err != nil {
			s.logger.Error("Error appending event to batch", zap.String("event_id", row.EventID), zap.Error(err))
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	s.logger.Debug("Mirrored tracking events", zap.Int("count", len(rows)))
	return nil
}

func toTrackingRow(table models.Table, evt models.Event) (trackingRow, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return trackingRow{}, fmt.Errorf("failed to encode event %s: %w", evt.ID(), err)
	}
	ts, err := time.Parse(time.RFC3339Nano, evt.String("timestamp"))
	if err != nil {
		ts = time.Now()
	}
	row := trackingRow{
		EventID:       evt.ID(),
		EventKind:     string(table),
		SiteID:        evt.String("site_id"),
		UserID:        evt.String("user_id"),
		VisitorID:     evt.String("visitor_id"),
		SessionID:     evt.String("session_id"),
		Timestamp:     ts.UTC(),
		URLPath:       evt.String("url_path"),
		ContentType:   evt.String("content_type"),
		PriceCurrency: evt.String("price_currency"),
		EventData:     string(data),
	}
	if price, err := strconv.ParseFloat(evt.String("price_value"), 64); err == nil {
		row.PriceValue = &price
	}
	return row, nil
}

func (s *AnalyticsStore) GetEventCountsOverTime(ctx context.Context, ownerID, interval string, start, end time.Time, eventKindFilter string) ([]models.EventCountByTime, error) {
	if !utils.IsValidInterval(interval) {
		return nil, fmt.Errorf("invalid interval: %s", interval)
	}
	args := []interface{}{ownerID, start, end}

	selectCols := fmt.Sprintf("toStartOf%s(timestamp) as time_bucket, count() as total_events", interval)
	groupByCols := "time_bucket"
	whereClause := "WHERE user_id = ? AND timestamp >= ? AND timestamp <= ?"
	orderByCols := "time_bucket ASC"
	isFilteringByKind := eventKindFilter != ""

	if isFilteringByKind {
		selectCols += ", event_kind"
		groupByCols += ", event_kind"
		whereClause += " AND event_kind = ?"
		args = append(args, eventKindFilter)
		orderByCols += ", event_kind ASC"
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM tracking_events FINAL
		%s
		GROUP BY %s
		ORDER BY %s
	`, selectCols, whereClause, groupByCols, orderByCols)

	rows, err := s.DB.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query event counts over time: %w", err)
	}
	defer rows.Close()

	var results []models.EventCountByTime
	for rows.Next() {
		var (
			timeBucket time.Time
			count      uint64
			kind       string
			result     models.EventCountByTime
		)
		if isFilteringByKind {
			if err := rows.Scan(&timeBucket, &count, &kind); err != nil {
				s.logger.Error("Error scanning row for event counts over time", zap.Error(err))
				continue
			}
			result.EventKind = &kind
		} else if err := rows.Scan(&timeBucket, &count); err != nil {
			s.logger.Error("Error scanning row for event counts over time", zap.Error(err))
			continue
		}
		result.Time = timeBucket
		result.Count = count
		results = append(results, result)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during event counts over time query: %w", err)
	}
	return results, nil
}

func (s *AnalyticsStore) GetUniqueVisitorsOverTime(ctx context.Context, ownerID, interval string, start, end time.Time) ([]models.EventCountByTime, error) {
	if !utils.IsValidInterval(interval) {
		return nil, fmt.Errorf("invalid interval: %s", interval)
	}

	query := fmt.Sprintf(`
		SELECT toStartOf%s(timestamp) AS time_bucket, uniq(visitor_id) AS unique_visitors
		FROM tracking_events FINAL
		WHERE user_id = ? AND visitor_id != '' AND timestamp >= ? AND timestamp <= ?
		GROUP BY time_bucket
		ORDER BY time_bucket ASC
	`, interval)

	rows, err := s.DB.Conn.Query(ctx, query, ownerID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query unique visitors over time: %w", err)
	}
	defer rows.Close()

	var results []models.EventCountByTime
	for rows.Next() {
		var timeBucket time.Time
		var visitors uint64
		if err := rows.Scan(&timeBucket, &visitors); err != nil {
			s.logger.Error("Error scanning row for unique visitors", zap.Error(err))
			continue
		}
		results = append(results, models.EventCountByTime{Time: timeBucket, Count: visitors})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for unique visitors: %w", err)
	}
	return results, nil
}

func (s *AnalyticsStore) GetTopNPagePaths(ctx context.Context, ownerID string, start, end time.Time, limit uint64) ([]models.TopPathResult, error) {
	if limit == 0 {
		limit = 10
	}

	query := `
		SELECT url_path, count() as view_count
		FROM tracking_events FINAL
		WHERE user_id = ? AND event_kind = 'pageviews' AND timestamp >= ? AND timestamp <= ?
		GROUP BY url_path
		ORDER BY view_count DESC
		LIMIT ?
	`
	rows, err := s.DB.Conn.Query(ctx, query, ownerID, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top page paths: %w", err)
	}
	defer rows.Close()

	var results []models.TopPathResult
	for rows.Next() {
		var pagePath string
		var count uint64
		if err := rows.Scan(&pagePath, &count); err != nil {
			s.logger.Error("Error scanning row for top page paths", zap.Error(err))
			continue
		}
		results = append(results, models.TopPathResult{PagePath: pagePath, Count: count})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for top page paths: %w", err)
	}
	return results, nil
}

func (s *AnalyticsStore) GetContentTypeBreakdown(ctx context.Context, ownerID string, start, end time.Time) ([]models.ContentTypeCount, error) {
	query := `
		SELECT content_type, event_kind, count() AS total
		FROM tracking_events FINAL
		WHERE user_id = ? AND timestamp >= ? AND timestamp <= ?
		GROUP BY content_type, event_kind
		ORDER BY total DESC
	`
	rows, err := s.DB.Conn.Query(ctx, query, ownerID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query content type breakdown: %w", err)
	}
	defer rows.Close()

	var results []models.ContentTypeCount
	for rows.Next() {
		var r models.ContentTypeCount
		if err := rows.Scan(&r.ContentType, &r.EventKind, &r.Count); err != nil {
			s.logger.Error("Error scanning row for content types", zap.Error(err))
			continue
		}
		results = append(results, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for content types: %w", err)
	}
	return results, nil
}

func (s *AnalyticsStore) GetRevenue(ctx context.Context, ownerID string, start, end time.Time) ([]models.RevenueSummary, error) {
	query := `
		SELECT price_currency, count() AS purchases, sum(ifNull(price_value, 0)) AS revenue
		FROM tracking_events FINAL
		WHERE user_id = ? AND event_kind = 'purchases' AND timestamp >= ? AND timestamp <= ?
		GROUP BY price_currency
		ORDER BY revenue DESC
	`
	rows, err := s.DB.Conn.Query(ctx, query, ownerID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query revenue: %w", err)
	}
	defer rows.Close()

	var results []models.RevenueSummary
	for rows.Next() {
		var r models.RevenueSummary
		if err := rows.Scan(&r.Currency, &r.Purchases, &r.Revenue); err != nil {
			s.logger.Error("Error scanning row for revenue", zap.Error(err))
			continue
		}
		if math.IsNaN(r.Revenue) {
			r.Revenue = 0
		}
		results = append(results, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for revenue: %w", err)
	}
	return results, nil
}
