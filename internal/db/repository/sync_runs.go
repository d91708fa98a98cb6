// Package repository holds the gorm-backed bookkeeping table for the
// sync engine: one row per (entity, direction) pass recording what it
// did.
//
// Grounded on the gorm model style of dbpiper's Sync model
// (other_examples/dbpiper-io-dbpiper__syncs.go: uuid.UUID primary key,
// plain string-typed direction column) and on the teacher's
// gorm-backed config repository in
// internal/db/repositories/data_provider_repo.go (Create/Save with
// %w-wrapped errors).
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SyncRun is one system_sync_runs row (§6.4).
type SyncRun struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Entity     string    `gorm:"column:table_name;index"`
	Direction  string    `gorm:"column:direction"`
	Type       string    `gorm:"column:type"`
	StartedAt  time.Time `gorm:"column:started_at"`
	FinishedAt *time.Time `gorm:"column:finished_at"`
	Processed  int       `gorm:"column:processed"`
	Updated    int       `gorm:"column:updated"`
	Errors     int       `gorm:"column:errors"`
}

func (SyncRun) TableName() string { return "system_sync_runs" }

// SyncRunRepo opens and closes SyncRun rows.
type SyncRunRepo struct {
	db *gorm.DB
}

func NewSyncRunRepo(db *gorm.DB) *SyncRunRepo {
	return &SyncRunRepo{db: db}
}

// Open inserts a new row for the start of one (entity, direction)
// pass and returns its id. A failure to open is the caller's to log
// and ignore (§4.7): bookkeeping must never abort a sync pass.
func (r *SyncRunRepo) Open(ctx context.Context, tableName, direction, runType string) (uuid.UUID, error) {
	run := SyncRun{
		ID:        uuid.New(),
		Entity:    tableName,
		Direction: direction,
		Type:      runType,
		StartedAt: time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&run).Error; err != nil {
		return uuid.Nil, fmt.Errorf("sync run: open: %w", err)
	}
	return run.ID, nil
}

// Stats is the final tally written when a pass finishes.
type Stats struct {
	Processed int
	Updated   int
	Errors    int
}

// Close stamps finished_at and the final stats onto an opened row.
func (r *SyncRunRepo) Close(ctx context.Context, id uuid.UUID, stats Stats) error {
	now := time.Now().UTC()
	err := r.db.WithContext(ctx).Model(&SyncRun{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"finished_at": now,
			"processed":   stats.Processed,
			"updated":     stats.Updated,
			"errors":      stats.Errors,
		}).Error
	if err != nil {
		return fmt.Errorf("sync run: close %s: %w", id, err)
	}
	return nil
}

// AutoMigrate creates the system_sync_runs table when it does not
// already exist, mirroring the teacher's use of gorm's schema tooling
// rather than hand-written migration SQL for engine-owned tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&SyncRun{})
}
