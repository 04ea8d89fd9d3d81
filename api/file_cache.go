package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/filecollab/filecollab/internal/slogging"
)

const fileCacheTTL = 5 * time.Minute

// CachedFileStore wraps a FileStore with a Redis read-through cache on
// single-file lookups. Writes invalidate; list queries always hit the
// database. Cache failures degrade to database reads.
type CachedFileStore struct {
	store FileStore
	redis *redis.Client
}

// NewCachedFileStore wraps a store with a Redis cache
func NewCachedFileStore(store FileStore, client *redis.Client) *CachedFileStore {
	return &CachedFileStore{store: store, redis: client}
}

func fileCacheKey(id string) string {
	return fmt.Sprintf("filecollab:file:%s", id)
}

// Get returns a file, consulting the cache first
func (s *CachedFileStore) Get(ctx context.Context, id string) (*File, error) {
	logger := slogging.Get()
	key := fileCacheKey(id)

	data, err := s.redis.Get(ctx, key).Bytes()
	if err == nil {
		var file File
		if jsonErr := json.Unmarshal(data, &file); jsonErr == nil {
			return &file, nil
		}
		// Unreadable entry, fall through to the database
		s.redis.Del(ctx, key)
	} else if !errors.Is(err, redis.Nil) {
		logger.Warn("Redis error on file cache read: %v", err)
	}

	file, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(file); err == nil {
		if err := s.redis.Set(ctx, key, data, fileCacheTTL).Err(); err != nil {
			logger.Warn("Redis error on file cache write: %v", err)
		}
	}
	return file, nil
}

// Create inserts a file row
func (s *CachedFileStore) Create(ctx context.Context, file *File) error {
	return s.store.Create(ctx, file)
}

// ListByOwner bypasses the cache
func (s *CachedFileStore) ListByOwner(ctx context.Context, ownerID string, offset, limit int) ([]File, int64, error) {
	return s.store.ListByOwner(ctx, ownerID, offset, limit)
}

// UpdateEditorContent writes through and invalidates
func (s *CachedFileStore) UpdateEditorContent(ctx context.Context, id, content string) error {
	if err := s.store.UpdateEditorContent(ctx, id, content); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

// Update writes through and invalidates
func (s *CachedFileStore) Update(ctx context.Context, file *File) error {
	if err := s.store.Update(ctx, file); err != nil {
		return err
	}
	s.invalidate(ctx, file.ID)
	return nil
}

// Delete removes the row and its cache entry
func (s *CachedFileStore) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *CachedFileStore) invalidate(ctx context.Context, id string) {
	if err := s.redis.Del(ctx, fileCacheKey(id)).Err(); err != nil {
		slogging.Get().Warn("Redis error on file cache invalidation: %v", err)
	}
}
