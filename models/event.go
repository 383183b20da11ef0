// api/models/event.go
package models

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Table is one of the per-kind event tables the ingest endpoint may write.
type Table string

const (
	TablePageviews         Table = "pageviews"
	TableInitiateCheckouts Table = "initiate_checkouts"
	TablePurchases         Table = "purchases"
)

// AllowedTables is the closed set of writable event tables.
var AllowedTables = []Table{TablePageviews, TableInitiateCheckouts, TablePurchases}

// ParseTable strips any namespace prefix ("public.pageviews") and checks the
// remainder against AllowedTables.
func ParseTable(name string) (Table, bool) {
	name = strings.TrimSpace(name)
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	for _, t := range AllowedTables {
		if string(t) == name {
			return t, true
		}
	}
	return Table(name), false
}

// Commerce reports whether events in t express purchase intent.
func (t Table) Commerce() bool {
	return t == TableInitiateCheckouts || t == TablePurchases
}

// Columns returns the dedicated columns of t, excluding raw_payload.
func (t Table) Columns() []string {
	return tableColumns[t]
}

const (
	ContentTypeArticle   = "article"
	ContentTypeSalesPage = "sales_page"
)

var commonColumns = []string{"id", "site_id", "user_id", "timestamp", "visitor_id", "session_id"}

var tableColumns = map[Table][]string{
	TablePageviews: append(append([]string{}, commonColumns...),
		"url_full", "url_path", "page_title", "referrer_url",
		"utm_source", "utm_medium", "utm_campaign", "utm_content", "utm_term", "utm_id",
		"browser_name", "browser_version", "os_name", "os_version", "device_type", "user_agent",
		"city", "region", "country_code", "client_ip_address", "language",
		"screen_width", "screen_height", "viewport_width", "viewport_height", "page_load_time",
		"fbc", "fbp", "gclid", "fbclid", "ttclid", "epik", "msclkid", "meta_event_id",
		"ga_client_id", "ga_session_id",
		"content_type",
	),
	TableInitiateCheckouts: append(append([]string{}, commonColumns...),
		"product_name", "product_id", "product_category", "price_value", "price_currency",
		"url_full", "user_agent", "client_ip_address", "browser_name", "os_name", "device_type",
		"utm_source", "utm_medium", "utm_campaign", "fbc", "fbp", "gclid",
		"content_type",
	),
	TablePurchases: append(append([]string{}, commonColumns...),
		"transaction_id", "product_name", "product_id", "price_value", "price_currency",
		"status", "attribution_status",
		"buyer_email", "buyer_name", "buyer_phone", "buyer_address",
		"url_full", "client_ip_address", "user_agent",
		"utm_source", "utm_medium", "utm_campaign",
		"content_type",
	),
}

// Event is one tracker event keyed by field name. Values keep the shape they
// were decoded with: strings, json.Number, bool, nested maps and slices.
type Event map[string]any

// String returns the scalar value stored under key as a string, or "" when
// the key is absent, null or not a scalar.
func (e Event) String(key string) string {
	switch v := e[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// ID returns the event id used as the upsert conflict key.
func (e Event) ID() string {
	return e.String("id")
}

// Clone returns a shallow copy of e.
func (e Event) Clone() Event {
	out := make(Event, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// ColumnValue converts v into something database/sql drivers accept. Nested
// objects and arrays are encoded as JSON text.
func ColumnValue(v any) (any, error) {
	switch val := v.(type) {
	case nil, string, bool, int, int64, float64:
		return val, nil
	case json.Number:
		return val.String(), nil
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return nil, fmt.Errorf("failed to encode column value: %w", err)
		}
		return string(b), nil
	}
}
