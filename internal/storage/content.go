// Package storage composes blob and row persistence into the content store
// used by the crawl controller.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uridolan77/WebScraping-sub002/internal/crawler"
	"github.com/uridolan77/WebScraping-sub002/internal/store"
)

const defaultContentType = "text/plain; charset=utf-8"

// Config controls blob naming.
type Config struct {
	BlobPrefix  string
	ContentType string
}

// ContentStore writes page bodies to a BlobStore and version rows to a
// VersionRepository. It implements crawler.ContentStore and
// crawler.HistoryLoader.
type ContentStore struct {
	blobs    crawler.BlobStore
	versions store.VersionRepository
	cfg      Config
	logger   *zap.Logger
}

// NewContentStore wires the collaborators. blobs may be nil, in which case
// bodies are not retained.
func NewContentStore(
	blobs crawler.BlobStore,
	versions store.VersionRepository,
	cfg Config,
	logger *zap.Logger,
) (*ContentStore, error) {
	if versions == nil {
		return nil, fmt.Errorf("version repository is required")
	}
	if cfg.ContentType == "" {
		cfg.ContentType = defaultContentType
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContentStore{blobs: blobs, versions: versions, cfg: cfg, logger: logger}, nil
}

// Persist stores body (when present) and the version row.
func (s *ContentStore) Persist(ctx context.Context, runID string, version crawler.ContentVersion, body []byte) error {
	id, err := parseRunID(runID)
	if err != nil {
		return err
	}
	record := store.VersionRecord{ContentVersion: version, RunID: id}
	if s.blobs != nil && len(body) > 0 && version.ContentHash != "" {
		uri, err := s.blobs.PutObject(ctx, s.blobPath(runID, version.ContentHash), s.cfg.ContentType, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("put object: %w", err)
		}
		record.BlobURI = uri
	}
	if err := s.versions.InsertVersion(ctx, record); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	s.logger.Debug("version persisted",
		zap.String("url", version.URL),
		zap.String("change_type", string(version.ChangeType)),
		zap.String("blob_uri", record.BlobURI),
	)
	return nil
}

// PersistFailure records a failed target.
func (s *ContentStore) PersistFailure(ctx context.Context, runID string, failure crawler.TargetFailure) error {
	id, err := parseRunID(runID)
	if err != nil {
		return err
	}
	if err := s.versions.InsertFailure(ctx, id, failure); err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	return nil
}

// Evict deletes a version dropped by the retention policy. Blobs are
// content-addressed per run and left in place.
func (s *ContentStore) Evict(ctx context.Context, version crawler.ContentVersion) error {
	if err := s.versions.DeleteVersion(ctx, version); err != nil {
		return fmt.Errorf("evict version: %w", err)
	}
	return nil
}

// RecentVersions returns up to limit of the newest versions per URL under
// baseURL, oldest first.
func (s *ContentStore) RecentVersions(ctx context.Context, baseURL string, limit int) (map[string][]crawler.ContentVersion, error) {
	records, err := s.versions.RecentVersions(ctx, baseURL, limit)
	if err != nil {
		return nil, fmt.Errorf("load recent versions: %w", err)
	}
	out := make(map[string][]crawler.ContentVersion, len(records))
	for url, rows := range records {
		history := make([]crawler.ContentVersion, 0, len(rows))
		for _, row := range rows {
			history = append(history, row.ContentVersion)
		}
		out[url] = history
	}
	return out, nil
}

// BlobReader is implemented by blob stores that can return stored objects.
type BlobReader interface {
	GetObject(ctx context.Context, path string) ([]byte, error)
}

// Baseline returns the page text stored with the version of url carrying
// hash. It returns store.ErrNotFound when the version or its blob is absent.
func (s *ContentStore) Baseline(ctx context.Context, url, hash string) ([]byte, error) {
	record, err := s.versions.FindVersion(ctx, url, hash)
	if err != nil {
		return nil, fmt.Errorf("find version: %w", err)
	}
	reader, ok := s.blobs.(BlobReader)
	if !ok || record.BlobURI == "" {
		return nil, fmt.Errorf("baseline for %s: %w", url, store.ErrNotFound)
	}
	body, err := reader.GetObject(ctx, s.blobPath(record.RunID.String(), hash))
	if err != nil {
		return nil, fmt.Errorf("read baseline: %w", err)
	}
	return body, nil
}

func (s *ContentStore) blobPath(runID, hash string) string {
	prefix := strings.Trim(s.cfg.BlobPrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s.txt", runID, hash)
	}
	return fmt.Sprintf("%s/%s/%s.txt", prefix, runID, hash)
}

func parseRunID(runID string) (uuid.UUID, error) {
	id, err := uuid.Parse(runID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse run id %q: %w", runID, err)
	}
	return id, nil
}
