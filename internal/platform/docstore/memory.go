package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is a thread-safe, in-process Store for tests and development.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memoryCollection)}
}

func (s *MemoryStore) Collection(name string) Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		c = &memoryCollection{name: name}
		s.collections[name] = c
	}
	return c
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close(context.Context) error { return nil }

type memoryDoc struct {
	id   string
	body map[string]interface{}
}

type memoryCollection struct {
	name string
	mu   sync.RWMutex
	docs []*memoryDoc
}

func (c *memoryCollection) FindOne(_ context.Context, f Filter) (*Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, d := range c.docs {
		ok, err := Matches(f, d.body, d.id)
		if err != nil {
			return nil, err
		}
		if ok {
			return d.export()
		}
	}
	return nil, ErrNotFound
}

func (c *memoryCollection) Find(_ context.Context, f Filter) ([]*Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*Document
	for _, d := range c.docs {
		ok, err := Matches(f, d.body, d.id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		doc, err := d.export()
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func (c *memoryCollection) Count(ctx context.Context, f Filter) (int64, error) {
	docs, err := c.Find(ctx, f)
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

func (c *memoryCollection) InsertOne(_ context.Context, body interface{}) (string, error) {
	v, err := toJSONValue(body)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("document must be a JSON object, got %T", v)
	}
	id := uuid.New().String()
	c.mu.Lock()
	c.docs = append(c.docs, &memoryDoc{id: id, body: m})
	c.mu.Unlock()
	return id, nil
}

func (c *memoryCollection) UpdateOne(_ context.Context, f Filter, u Update) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range c.docs {
		ok, err := Matches(f, d.body, d.id)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}
		before, err := json.Marshal(d.body)
		if err != nil {
			return 0, err
		}
		// Work on a copy so a failed update leaves the document intact.
		var working map[string]interface{}
		if err := json.Unmarshal(before, &working); err != nil {
			return 0, err
		}
		if err := apply(working, u); err != nil {
			return 0, fmt.Errorf("update %s/%s: %w", c.name, d.id, err)
		}
		after, err := json.Marshal(working)
		if err != nil {
			return 0, err
		}
		if bytes.Equal(before, after) {
			return 0, nil
		}
		d.body = working
		return 1, nil
	}
	return 0, nil
}

func (d *memoryDoc) export() (*Document, error) {
	raw, err := json.Marshal(d.body)
	if err != nil {
		return nil, fmt.Errorf("encode document %s: %w", d.id, err)
	}
	return &Document{ID: d.id, Body: raw}, nil
}
