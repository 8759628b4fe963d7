// Package blobstore stores uploaded binaries (therapist profile photos) and
// hands back a public URL for each. It defines the BlobStore interface, an
// in-memory implementation for tests and development with an Echo handler
// that serves its contents, and an S3 implementation.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	ErrBlobNotFound       = errors.New("blob not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrMissingKey         = errors.New("blob key is required")
	ErrEmptyFile          = errors.New("file is empty")
)

// MaxFileSize is the maximum allowed blob size in bytes (10 MB).
const MaxFileSize = 10 * 1024 * 1024

// BlobStore persists a blob under key and returns the URL it is served from.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// ValidateImage checks an upload destined for a profile photo.
func ValidateImage(contentType string, size int) error {
	if size == 0 {
		return ErrEmptyFile
	}
	if size > MaxFileSize {
		return ErrFileTooLarge
	}
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return fmt.Errorf("%w: %s", ErrInvalidContentType, contentType)
	}
	return nil
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

type storedBlob struct {
	contentType string
	data        []byte
	createdAt   time.Time
}

// InMemoryBlobStore is a thread-safe, in-memory BlobStore for testing/dev.
// URLs point at baseURL + "/blobs/<key>", served by Handler.
type InMemoryBlobStore struct {
	mu      sync.RWMutex
	blobs   map[string]*storedBlob
	baseURL string
}

// NewInMemoryBlobStore returns a ready-to-use InMemoryBlobStore.
func NewInMemoryBlobStore(baseURL string) *InMemoryBlobStore {
	return &InMemoryBlobStore{
		blobs:   make(map[string]*storedBlob),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (s *InMemoryBlobStore) Put(_ context.Context, key, contentType string, data []byte) (string, error) {
	if key == "" {
		return "", ErrMissingKey
	}
	if len(data) > MaxFileSize {
		return "", ErrFileTooLarge
	}
	cp := make([]byte, len(data))
	copy(cp, data)

	s.mu.Lock()
	s.blobs[key] = &storedBlob{contentType: contentType, data: cp, createdAt: time.Now().UTC()}
	s.mu.Unlock()

	return s.baseURL + "/blobs/" + key, nil
}

// Get returns the stored bytes and content type for key.
func (s *InMemoryBlobStore) Get(_ context.Context, key string) ([]byte, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[key]
	if !ok {
		return nil, "", ErrBlobNotFound
	}
	return b.data, b.contentType, nil
}

// ---------------------------------------------------------------------------
// HTTP handler
// ---------------------------------------------------------------------------

// Handler serves blobs held by an InMemoryBlobStore.
type Handler struct {
	store *InMemoryBlobStore
}

func NewHandler(store *InMemoryBlobStore) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes mounts GET /blobs/* on e.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/blobs/*", h.handleDownload)
}

func (h *Handler) handleDownload(c echo.Context) error {
	key := c.Param("*")
	data, contentType, err := h.store.Get(c.Request().Context(), key)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Blob not found")
		}
		return err
	}
	return c.Blob(http.StatusOK, contentType, data)
}
