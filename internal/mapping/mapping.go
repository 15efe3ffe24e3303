// Package mapping turns change payloads into flat search documents, one
// transformer per entity.
package mapping

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	serrors "github.com/Aman-CERP/indexsync/internal/errors"
	"github.com/Aman-CERP/indexsync/internal/queue"
)

// Document is one search document. A nil Fields map is a tombstone telling
// the gateway to delete Key.
type Document struct {
	Key    string         `json:"key"`
	Fields map[string]any `json:"document"`
}

// IsDelete reports whether d is a tombstone.
func (d Document) IsDelete() bool {
	return d.Fields == nil
}

// Transformer maps one decoded record of an entity to document fields.
// The "entity" and "id" fields are added by the Mapper.
type Transformer func(record map[string]any) map[string]any

// Mapper dispatches records to transformers by entity name.
type Mapper struct {
	mu           sync.RWMutex
	transformers map[string]Transformer
}

// NewMapper returns a Mapper with the listing, profile and category
// transformers registered.
func NewMapper() *Mapper {
	m := &Mapper{transformers: make(map[string]Transformer)}
	m.Register("listing", transformListing)
	m.Register("profile", transformProfile)
	m.Register("category", transformCategory)
	return m
}

// Register adds or replaces the transformer for entity.
func (m *Mapper) Register(entity string, t Transformer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transformers[entity] = t
}

// Entities returns the registered entity names, sorted.
func (m *Mapper) Entities() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.transformers))
	for name := range m.transformers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Mapper) transformer(entity string) (Transformer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.transformers[entity]
	if !ok {
		return nil, serrors.UnknownEntity(entity)
	}
	return t, nil
}

// Key returns the engine key of a record: "<entity>:<id>".
func Key(entity, id string) string {
	return entity + ":" + id
}

// MapJob maps a queued change. DELETE yields a tombstone, UPDATE maps the
// new half of the payload and INSERT maps the payload as is.
func (m *Mapper) MapJob(job queue.Job) (Document, error) {
	t, err := m.transformer(job.Entity)
	if err != nil {
		return Document{}, err
	}

	switch job.Operation {
	case queue.OpDelete:
		id, err := deleteID(job.Entity, job.Payload)
		if err != nil {
			return Document{}, err
		}
		return Document{Key: Key(job.Entity, id)}, nil

	case queue.OpUpdate:
		var upd queue.UpdatePayload
		if err := json.Unmarshal(job.Payload, &upd); err != nil {
			return Document{}, serrors.InvalidPayload(job.Entity, err.Error())
		}
		if len(upd.New) == 0 || string(upd.New) == "null" {
			return Document{}, serrors.InvalidPayload(job.Entity, "update payload has no new record")
		}
		return m.mapRaw(job.Entity, t, upd.New)

	case queue.OpInsert:
		return m.mapRaw(job.Entity, t, job.Payload)
	}

	return Document{}, serrors.InvalidPayload(job.Entity, fmt.Sprintf("unknown operation %q", job.Operation))
}

// MapRecord maps a record read directly from the source, as for an INSERT.
func (m *Mapper) MapRecord(entity string, record map[string]any) (Document, error) {
	t, err := m.transformer(entity)
	if err != nil {
		return Document{}, err
	}
	return build(entity, t, record)
}

func (m *Mapper) mapRaw(entity string, t Transformer, raw json.RawMessage) (Document, error) {
	var record map[string]any
	if err := decodeNumbers(raw, &record); err != nil || record == nil {
		return Document{}, serrors.InvalidPayload(entity, "payload is not an object")
	}
	return build(entity, t, record)
}

// decodeNumbers decodes JSON keeping numbers as json.Number, so integer
// ids beyond 2^53 survive intact.
func decodeNumbers(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}

// normalizeNumbers replaces json.Number values with int64, or float64 when
// the number is not an integer, so the engine indexes them numerically.
func normalizeNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case map[string]any:
		for k, e := range x {
			x[k] = normalizeNumbers(e)
		}
	case []any:
		for i, e := range x {
			x[i] = normalizeNumbers(e)
		}
	}
	return v
}

// build keys the document on the record id. The id field is stored as the
// same string used in the key.
func build(entity string, t Transformer, record map[string]any) (Document, error) {
	id, ok := idString(record["id"])
	if !ok {
		return Document{}, serrors.InvalidPayload(entity, "missing id")
	}
	normalizeNumbers(record)

	fields := t(record)
	if fields == nil {
		fields = make(map[string]any)
	}
	fields["entity"] = entity
	fields["id"] = id

	return Document{Key: Key(entity, id), Fields: fields}, nil
}

// deleteID accepts a record with an id, or a bare id.
func deleteID(entity string, payload json.RawMessage) (string, error) {
	var v any
	if err := decodeNumbers(payload, &v); err != nil {
		return "", serrors.InvalidPayload(entity, err.Error())
	}
	if obj, ok := v.(map[string]any); ok {
		v = obj["id"]
	}
	id, ok := idString(v)
	if !ok {
		return "", serrors.InvalidPayload(entity, "missing id")
	}
	return id, nil
}

func idString(v any) (string, bool) {
	switch id := v.(type) {
	case string:
		id = strings.TrimSpace(id)
		return id, id != ""
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), true
	case int:
		return strconv.Itoa(id), true
	case int64:
		return strconv.FormatInt(id, 10), true
	case json.Number:
		return id.String(), id != ""
	}
	return "", false
}
