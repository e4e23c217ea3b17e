// Package store is the local catalog of finished recordings. The recorder
// and the ingest watcher add entries; the synchronizer drains the pending
// ones for the active upload destination.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Recording is one finished session file on local storage.
type Recording struct {
	ID         string `gorm:"primaryKey"`
	Path       string `gorm:"not null"`
	Bucket     string `gorm:"index"`
	SizeBytes  int64
	StartedAt  time.Time
	EndedAt    time.Time
	Uploaded   bool `gorm:"index"`
	UploadedAt *time.Time
}

// Store wraps the sqlite-backed catalog.
type Store struct {
	db *gorm.DB
}

// Open opens (and migrates) the catalog at the given sqlite DSN.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open recording catalog: %w", err)
	}
	if err := db.AutoMigrate(&Recording{}); err != nil {
		return nil, fmt.Errorf("migrate recording catalog: %w", err)
	}
	return &Store{db: db}, nil
}

// Put inserts or replaces a catalog entry.
func (s *Store) Put(ctx context.Context, rec Recording) error {
	if rec.ID == "" {
		return fmt.Errorf("recording id is required")
	}
	if err := s.db.WithContext(ctx).Save(&rec).Error; err != nil {
		return fmt.Errorf("catalog recording %s: %w", rec.ID, err)
	}
	return nil
}

// Pending lists not-yet-uploaded recordings whose bucket belongs to the
// given data source. The data source is matched as a bucket name prefix so
// one descriptor can cover a family of buckets (e.g. "row" covers
// "row/default" and "row/other").
func (s *Store) Pending(ctx context.Context, dataSource string) ([]Recording, error) {
	var recs []Recording
	err := s.db.WithContext(ctx).
		Where("uploaded = ? AND bucket LIKE ?", false, dataSource+"%").
		Order("ended_at asc").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list pending recordings for %s: %w", dataSource, err)
	}
	return recs, nil
}

// MarkUploaded flags a recording as pushed to the backend.
func (s *Store) MarkUploaded(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&Recording{}).
		Where("id = ?", id).
		Updates(map[string]any{"uploaded": true, "uploaded_at": &now})
	if res.Error != nil {
		return fmt.Errorf("mark recording %s uploaded: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("recording %s not found", id)
	}
	return nil
}

// List returns the full catalog, newest first.
func (s *Store) List(ctx context.Context) ([]Recording, error) {
	var recs []Recording
	if err := s.db.WithContext(ctx).Order("ended_at desc").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	return recs, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
