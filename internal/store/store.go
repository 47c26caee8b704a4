// Package store manages the webmirror manifest database.
// It initializes GORM with SQLite and records what each clone run fetched,
// so `status`, `verify` and the preview API can answer questions offline.
package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lvillar/webmirror/internal/models"
)

// ErrNoSnapshot is returned when no clone run has been recorded yet.
var ErrNoSnapshot = errors.New("store: no snapshot recorded")

// Store wraps the GORM handle.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the SQLite manifest at path and runs AutoMigrate.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.AutoMigrate(&models.Snapshot{}, &models.Resource{}, &models.BrokenLink{}); err != nil {
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}

	logrus.WithField("db", path).Debug("manifest database opened")
	return &Store{db: db}, nil
}

// CreateSnapshot starts a new clone run record.
func (s *Store) CreateSnapshot(baseURL, outputDir string) (*models.Snapshot, error) {
	snap := &models.Snapshot{
		BaseURL:   baseURL,
		OutputDir: outputDir,
		Status:    models.SnapshotRunning,
		StartedAt: time.Now(),
	}
	if err := s.db.Create(snap).Error; err != nil {
		return nil, fmt.Errorf("creating snapshot: %w", err)
	}
	return snap, nil
}

// FinishSnapshot finalizes counts and status for a run.
func (s *Store) FinishSnapshot(id uint, status models.SnapshotStatus, pages, assets, failed, skipped int) error {
	now := time.Now()
	return s.db.Model(&models.Snapshot{}).Where("id = ?", id).Updates(map[string]any{
		"status":      status,
		"finished_at": &now,
		"pages":       pages,
		"assets":      assets,
		"failed":      failed,
		"skipped":     skipped,
	}).Error
}

// RecordResource upserts the terminal state of one fetched URL.
// Workers may race on shared assets; the (snapshot, url) unique index plus
// the lookup-then-update keeps one row per URL.
func (s *Store) RecordResource(r *models.Resource) error {
	var existing models.Resource
	err := s.db.Where("snapshot_id = ? AND url = ?", r.SnapshotID, r.URL).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.db.Create(r).Error
	}
	if err != nil {
		return err
	}
	return s.db.Model(&existing).Updates(map[string]any{
		"kind":         r.Kind,
		"status":       r.Status,
		"local_path":   r.LocalPath,
		"content_type": r.ContentType,
		"bytes":        r.Bytes,
		"error":        r.Error,
		"fetched_at":   r.FetchedAt,
	}).Error
}

// LatestSnapshot returns the most recent run.
func (s *Store) LatestSnapshot() (*models.Snapshot, error) {
	var snap models.Snapshot
	err := s.db.Order("id desc").First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// Failures lists the resources that ended failed for a snapshot.
func (s *Store) Failures(snapshotID uint) ([]models.Resource, error) {
	var out []models.Resource
	err := s.db.Where("snapshot_id = ? AND status = ?", snapshotID, models.StatusFailed).
		Order("url").Find(&out).Error
	return out, err
}

// ReplaceBrokenLinks swaps the verify findings for a snapshot.
func (s *Store) ReplaceBrokenLinks(snapshotID uint, links []models.BrokenLink) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("snapshot_id = ?", snapshotID).
			Delete(&models.BrokenLink{}).Error; err != nil {
			return err
		}
		for i := range links {
			links[i].SnapshotID = snapshotID
		}
		if len(links) == 0 {
			return nil
		}
		return tx.Create(&links).Error
	})
}

// BrokenLinks returns the persisted verify findings for a snapshot.
func (s *Store) BrokenLinks(snapshotID uint) ([]models.BrokenLink, error) {
	var out []models.BrokenLink
	err := s.db.Where("snapshot_id = ?", snapshotID).Order("source_path").Find(&out).Error
	return out, err
}

// DeleteSnapshot removes a run and its dependent rows.
func (s *Store) DeleteSnapshot(id uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("snapshot_id = ?", id).Delete(&models.Resource{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("snapshot_id = ?", id).Delete(&models.BrokenLink{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&models.Snapshot{}, id).Error
	})
}

// Summary builds the DTO for the latest (or given) snapshot.
func (s *Store) Summary(snapshotID uint) (*models.SnapshotSummary, error) {
	var snap models.Snapshot
	err := s.db.First(&snap, snapshotID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, err
	}

	var broken int64
	if err := s.db.Model(&models.BrokenLink{}).
		Where("snapshot_id = ?", snap.ID).Count(&broken).Error; err != nil {
		return nil, err
	}

	return &models.SnapshotSummary{
		ID:         snap.ID,
		BaseURL:    snap.BaseURL,
		OutputDir:  snap.OutputDir,
		Status:     snap.Status,
		StartedAt:  snap.StartedAt,
		FinishedAt: snap.FinishedAt,
		Pages:      snap.Pages,
		Assets:     snap.Assets,
		Failed:     snap.Failed,
		Skipped:    snap.Skipped,
		Broken:     int(broken),
	}, nil
}
