package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/sanketpandia/recondrive/internal/logging"
)

// ConnectORM opens a *gorm.DB against the relational store. The
// system_sync_runs bookkeeping table is managed through this handle;
// the per-entity row adapters use the sqlx handle from Connect instead,
// since their table/column shape varies per entity and is easier to
// build as plain SQL (see internal/provider/relational).
func ConnectORM(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres (gorm): %w", err)
	}

	logging.Info("connected to postgres via gorm")
	return gdb, nil
}
