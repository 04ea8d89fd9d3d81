package api

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/filecollab/filecollab/internal/slogging"
)

// ErrFileNotFound is returned when a file lookup matches nothing
var ErrFileNotFound = errors.New("file not found")

// ErrNotOwner is returned when a user acts on a file they do not own
var ErrNotOwner = errors.New("not the owner of this file")

// FileStore is the persistence interface for file metadata
type FileStore interface {
	Create(ctx context.Context, file *File) error
	Get(ctx context.Context, id string) (*File, error)
	ListByOwner(ctx context.Context, ownerID string, offset, limit int) ([]File, int64, error)
	UpdateEditorContent(ctx context.Context, id, content string) error
	Update(ctx context.Context, file *File) error
	Delete(ctx context.Context, id string) error
}

// GormFileStore persists file metadata with GORM
type GormFileStore struct {
	db *gorm.DB
}

// NewGormFileStore creates a GORM-backed file store
func NewGormFileStore(db *gorm.DB) *GormFileStore {
	return &GormFileStore{db: db}
}

// Create inserts a file row
func (s *GormFileStore) Create(ctx context.Context, file *File) error {
	if err := s.db.WithContext(ctx).Create(file).Error; err != nil {
		slogging.Get().Error("Failed to create file record: %v", err)
		return fmt.Errorf("failed to create file: %w", err)
	}
	return nil
}

// Get fetches a file by ID
func (s *GormFileStore) Get(ctx context.Context, id string) (*File, error) {
	var file File
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&file).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return &file, nil
}

// ListByOwner returns a page of files owned by a user, newest first,
// along with the total count
func (s *GormFileStore) ListByOwner(ctx context.Context, ownerID string, offset, limit int) ([]File, int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&File{}).Where("owner_id = ?", ownerID).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count files: %w", err)
	}

	var files []File
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&files).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list files: %w", err)
	}
	return files, total, nil
}

// UpdateEditorContent replaces only the editor HTML of a file
func (s *GormFileStore) UpdateEditorContent(ctx context.Context, id, content string) error {
	result := s.db.WithContext(ctx).Model(&File{}).Where("id = ?", id).Update("editor_content", content)
	if result.Error != nil {
		return fmt.Errorf("failed to update file content: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrFileNotFound
	}
	return nil
}

// Update saves the full file row
func (s *GormFileStore) Update(ctx context.Context, file *File) error {
	if err := s.db.WithContext(ctx).Save(file).Error; err != nil {
		return fmt.Errorf("failed to update file: %w", err)
	}
	return nil
}

// Delete removes a file row
func (s *GormFileStore) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&File{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete file: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrFileNotFound
	}
	return nil
}
