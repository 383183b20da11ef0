package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"sitepulse/api/models"
)

// Shape identifies which accepted payload layout a request used.
type Shape int

const (
	// ShapeBatch is {"events": [...]}.
	ShapeBatch Shape = iota + 1
	// ShapeWrapped is {"events": {...}}.
	ShapeWrapped
	// ShapeArray is a top-level [...] of events.
	ShapeArray
	// ShapeSingle is one bare event carrying its own kind indicator.
	ShapeSingle
)

func (s Shape) String() string {
	switch s {
	case ShapeBatch:
		return "batch"
	case ShapeWrapped:
		return "wrapped"
	case ShapeArray:
		return "array"
	case ShapeSingle:
		return "single"
	default:
		return "unknown"
	}
}

// multi reports whether the shape can carry more than one event.
func (s Shape) multi() bool {
	return s == ShapeBatch || s == ShapeArray
}

// Item is one event extracted from a payload. Err is set when the event
// itself could not be normalized; Table and Fields are then unreliable.
type Item struct {
	Index  int
	Table  models.Table
	Fields models.Event
	Err    error
}

// Batch is the uniform result of normalizing any accepted payload.
type Batch struct {
	Shape Shape
	Items []Item
}

type shapeRule struct {
	shape   Shape
	extract func(doc any) (raw []any, envelope map[string]any, ok bool)
}

// shapeRules are tried in order; the first match decides the shape.
var shapeRules = []shapeRule{
	{ShapeBatch, func(doc any) ([]any, map[string]any, bool) {
		obj, ok := doc.(map[string]any)
		if !ok {
			return nil, nil, false
		}
		events, ok := obj["events"].([]any)
		return events, obj, ok
	}},
	{ShapeWrapped, func(doc any) ([]any, map[string]any, bool) {
		obj, ok := doc.(map[string]any)
		if !ok {
			return nil, nil, false
		}
		event, ok := obj["events"].(map[string]any)
		return []any{event}, obj, ok
	}},
	{ShapeArray, func(doc any) ([]any, map[string]any, bool) {
		events, ok := doc.([]any)
		return events, nil, ok
	}},
	{ShapeSingle, func(doc any) ([]any, map[string]any, bool) {
		obj, ok := doc.(map[string]any)
		if !ok {
			return nil, nil, false
		}
		if _, has := obj["events"]; has || !hasKindIndicator(obj) {
			return nil, nil, false
		}
		return []any{obj}, nil, true
	}},
}

// Normalize decodes a request body and reduces it to a Batch. It fails with
// ErrInvalidFormat for undecodable or unrecognized payloads and with a
// *TableError when the envelope table, or the table of a single-event
// payload, is not allowed. Per-event table failures in multi-event payloads
// are reported on the Item instead.
func Normalize(body []byte) (*Batch, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: unexpected data after JSON value", ErrInvalidFormat)
	}

	for _, rule := range shapeRules {
		raw, envelope, ok := rule.extract(doc)
		if !ok {
			continue
		}
		return buildBatch(rule.shape, raw, envelope)
	}
	return nil, fmt.Errorf("%w: expected an events envelope, an array or an event object", ErrInvalidFormat)
}

func buildBatch(shape Shape, raw []any, envelope map[string]any) (*Batch, error) {
	var envelopeTable string
	if envelope != nil {
		if name, ok := envelope["table"].(string); ok && name != "" {
			t, valid := models.ParseTable(name)
			if !valid {
				return nil, &TableError{Table: string(t)}
			}
			envelopeTable = string(t)
		}
	}

	batch := &Batch{Shape: shape, Items: make([]Item, 0, len(raw))}
	for i, r := range raw {
		item := Item{Index: i}
		obj, ok := r.(map[string]any)
		if !ok {
			item.Err = fmt.Errorf("%w: event %d is not an object", ErrInvalidFormat, i)
		} else {
			item.Fields = normalizeFields(obj)
			item.Table, item.Err = resolveTable(item.Fields, envelopeTable)
			delete(item.Fields, "table")
		}
		if item.Err != nil && !shape.multi() {
			return nil, item.Err
		}
		batch.Items = append(batch.Items, item)
	}
	return batch, nil
}

// normalizeFields copies obj and adds canonical column names for every
// aliased key. Original keys are kept.
func normalizeFields(obj map[string]any) models.Event {
	evt := make(models.Event, len(obj)+len(fieldAliases))
	for k, v := range obj {
		evt[k] = v
	}
	for k, v := range obj {
		if canonical, ok := fieldAliases[k]; ok {
			evt[canonical] = v
		}
	}
	if ids, ok := obj["content_ids"].([]any); ok && len(ids) > 0 {
		evt["product_id"] = ids[0]
	}
	// Trackers may send epoch milliseconds.
	if n, ok := evt["timestamp"].(json.Number); ok {
		if ms, err := n.Int64(); err == nil {
			evt["timestamp"] = time.UnixMilli(ms).UTC().Format(time.RFC3339Nano)
		} else if f, err := n.Float64(); err == nil {
			evt["timestamp"] = time.UnixMicro(int64(math.Round(f * 1000))).UTC().Format(time.RFC3339Nano)
		}
	}
	return evt
}

// resolveTable picks the event's table: its own table field, then the
// envelope table, then the eventType, then a transaction_id heuristic.
func resolveTable(evt models.Event, envelopeTable string) (models.Table, error) {
	if name := evt.String("table"); name != "" {
		t, ok := models.ParseTable(name)
		if !ok {
			return "", &TableError{Table: string(t)}
		}
		return t, nil
	}
	if envelopeTable != "" {
		return models.Table(envelopeTable), nil
	}
	if t, ok := tableFromEventType(evt); ok {
		return t, nil
	}
	if evt.String("transaction_id") != "" {
		return models.TablePurchases, nil
	}
	return "", &TableError{}
}

func tableFromEventType(evt models.Event) (models.Table, bool) {
	for _, key := range eventTypeFields {
		kind := strings.ToUpper(strings.ReplaceAll(evt.String(key), "-", "_"))
		if name, ok := eventTypeTables[kind]; ok {
			return models.Table(name), true
		}
	}
	return "", false
}

func hasKindIndicator(obj map[string]any) bool {
	if _, ok := obj["table"]; ok {
		return true
	}
	for _, key := range eventTypeFields {
		if _, ok := obj[key]; ok {
			return true
		}
	}
	_, ok := obj["transaction_id"]
	return ok
}
