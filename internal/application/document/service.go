package document

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/patient-idv/internal/domain"
	"github.com/patient-idv/internal/infrastructure/logger"
	"github.com/patient-idv/internal/infrastructure/metrics"
	"github.com/patient-idv/internal/pkg/id"
)

// Store is an object storage backend for identity documents.
type Store interface {
	Upload(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
	Backend() string
}

// CleanupQueue defers deletions that failed inline.
type CleanupQueue interface {
	EnqueueDelete(ctx context.Context, key string) error
}

type Service interface {
	Store(ctx context.Context, registrationID string, doc *domain.IDDocument) (*domain.StoredDocument, error)
	Discard(ctx context.Context, stored *domain.StoredDocument)
	Remove(ctx context.Context, key string) error
}

type service struct {
	store   Store
	queue   CleanupQueue
	metrics *metrics.Metrics
}

// NewService returns a document Service. queue and m may be nil.
func NewService(store Store, queue CleanupQueue, m *metrics.Metrics) Service {
	return &service{store: store, queue: queue, metrics: m}
}

// Store uploads doc under documents/<registration>/id_<ulid>_<name>.
func (s *service) Store(ctx context.Context, registrationID string, doc *domain.IDDocument) (*domain.StoredDocument, error) {
	safeName := sanitizeFilename(doc.Name)
	key := fmt.Sprintf("documents/%s/id_%s_%s", registrationID, id.New(), safeName)
	sum := sha256.Sum256(doc.Bytes)
	if _, err := s.store.Upload(ctx, key, bytes.NewReader(doc.Bytes), doc.MimeType); err != nil {
		return nil, err
	}
	return &domain.StoredDocument{
		Object:  key,
		Name:    safeName,
		Type:    doc.MimeType,
		Size:    int64(len(doc.Bytes)),
		Hash:    hex.EncodeToString(sum[:]),
		Backend: s.store.Backend(),
	}, nil
}

// Discard deletes a stored document after a later step failed. A failed
// deletion is queued for retry; it never fails the caller.
func (s *service) Discard(ctx context.Context, stored *domain.StoredDocument) {
	if stored == nil {
		return
	}
	err := s.store.Delete(ctx, stored.Object)
	if err == nil {
		return
	}
	logger.Warning("document delete failed, queueing cleanup",
		logger.LoggerOptions{Key: "object", Data: stored.Object},
		logger.LoggerOptions{Key: "error", Data: err.Error()})
	if s.queue == nil {
		logger.Error("orphaned document, no cleanup queue", logger.LoggerOptions{Key: "object", Data: stored.Object})
		return
	}
	if err := s.queue.EnqueueDelete(ctx, stored.Object); err != nil {
		logger.Error("orphaned document, enqueue failed",
			logger.LoggerOptions{Key: "object", Data: stored.Object},
			logger.LoggerOptions{Key: "error", Data: err.Error()})
		return
	}
	s.metrics.IncrementCleanupQueued()
}

// Remove deletes key. Used by the cleanup worker.
func (s *service) Remove(ctx context.Context, key string) error {
	if !strings.HasPrefix(key, "documents/") {
		return fmt.Errorf("refusing to delete %q: %w", key, domain.ErrBadRequest)
	}
	return s.store.Delete(ctx, key)
}

// sanitizeFilename strips directory components and keeps only safe characters
// (alphanumeric, dot, dash, underscore) to prevent path traversal in object keys.
func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '.' || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	if result := b.String(); result != "" && result != "." && result != ".." {
		return result
	}
	return "_"
}
