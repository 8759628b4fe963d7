// Package docstore is a small document-store abstraction. Collections hold
// JSON documents which are located with backend-neutral Filter expressions
// and mutated with Update expressions. Backends render those expressions
// into their native query language: PostgreSQL JSONB (pgx), MongoDB and an
// in-process memory store used for tests and local development.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrNotFound is returned by FindOne when no document matches.
var ErrNotFound = errors.New("document not found")

// Document is a stored JSON document and its store-assigned identifier.
type Document struct {
	ID   string
	Body json.RawMessage
}

// Decode unmarshals the document body into v.
func (d *Document) Decode(v interface{}) error {
	if err := json.Unmarshal(d.Body, v); err != nil {
		return fmt.Errorf("decode document %s: %w", d.ID, err)
	}
	return nil
}

// MarshalJSON renders the body with the document id prepended as "_id".
func (d *Document) MarshalJSON() ([]byte, error) {
	body := bytes.TrimSpace(d.Body)
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("document %s body is not a JSON object", d.ID)
	}
	out := make([]byte, 0, len(body)+len(d.ID)+12)
	out = append(out, `{"_id":`...)
	out = append(out, strconv.Quote(d.ID)...)
	rest := bytes.TrimSpace(body[1:])
	if len(rest) > 0 && rest[0] != '}' {
		out = append(out, ',')
	}
	return append(out, rest...), nil
}

// Collection is a named set of documents.
type Collection interface {
	FindOne(ctx context.Context, f Filter) (*Document, error)
	Find(ctx context.Context, f Filter) ([]*Document, error)
	Count(ctx context.Context, f Filter) (int64, error)
	InsertOne(ctx context.Context, body interface{}) (string, error)
	// UpdateOne applies u to the first document matching f and returns the
	// number of documents actually modified (0 or 1).
	UpdateOne(ctx context.Context, f Filter, u Update) (int64, error)
}

// Store hands out collections over one shared connection.
type Store interface {
	Collection(name string) Collection
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Collection names used by the service.
const (
	Users          = "User"
	PatientData    = "PatientData"
	Therapists     = "Therapist"
	Reports        = "Reports"
	Devices        = "licensed_devices"
	DeviceActivity = "device_log"
)

// toJSONValue normalises v into the generic form produced by
// encoding/json (maps, slices, float64, string, bool, nil).
func toJSONValue(v interface{}) (interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
