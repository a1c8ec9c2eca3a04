package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/adminbjkai/img2/models"
)

// MetadataStore owns the images table. Every statement runs under one
// exclusive lock; callers never see the *gorm.DB handle.
type MetadataStore struct {
	mu sync.Mutex
	db *gorm.DB
}

// NewMetadataStore wraps an initialized database handle.
func NewMetadataStore(db *gorm.DB) *MetadataStore {
	return &MetadataStore{db: db}
}

// Insert stores a new row. An existing id is reported as ErrDuplicateID and
// the existing row is left untouched.
func (s *MetadataStore) Insert(ctx context.Context, rec *models.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(rec)
	if res.Error != nil {
		return fmt.Errorf("insert image %s: %w", rec.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrDuplicateID
	}
	return nil
}

// Get looks up a row by id.
func (s *MetadataStore) Get(ctx context.Context, id string) (*models.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec models.Image
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: lookup image %s: %v", ErrInternal, id, err)
	}
	return &rec, nil
}

// ListExpired returns every row whose deadline is at or before now. Rows
// without a deadline are never returned.
func (s *MetadataStore) ListExpired(ctx context.Context, now time.Time) ([]models.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []models.Image
	err := s.db.WithContext(ctx).
		Where("delete_at IS NOT NULL AND delete_at <= ?", now.Unix()).
		Order("delete_at").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list expired images: %w", err)
	}
	return rows, nil
}

// Delete removes a row. Deleting a missing row is not an error.
func (s *MetadataStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Image{}).Error; err != nil {
		return fmt.Errorf("delete image %s: %w", id, err)
	}
	return nil
}

// Count returns the number of stored rows.
func (s *MetadataStore) Count(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Image{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count images: %w", err)
	}
	return n, nil
}
