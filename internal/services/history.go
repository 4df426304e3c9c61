package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/qapilot/backend/internal/db"
	"github.com/qapilot/backend/internal/logger"
	"github.com/qapilot/backend/internal/models"
)

const (
	DefaultHistoryLimit = 10
	historyQueryTimeout = 5 * time.Second
)

// HistoryStore records completed runs and serves them newest-first. Writes
// are best-effort: a storage outage must never fail the run-execution caller.
type HistoryStore struct {
	getDB func() *gorm.DB
	ready func() bool
}

func NewHistoryStore() *HistoryStore {
	return NewHistoryStoreWithBackend(db.Get, db.Ready)
}

// NewHistoryStoreWithBackend wires explicit backend accessors instead of the
// process-wide connection.
func NewHistoryStoreWithBackend(getDB func() *gorm.DB, ready func() bool) *HistoryStore {
	return &HistoryStore{getDB: getDB, ready: ready}
}

// Record appends one run record. Failures are logged and dropped; each insert
// is an independent append, never an in-place update.
func (hs *HistoryStore) Record(run *models.TestRun) {
	if !hs.ready() {
		logger.Warn("history store not ready, dropping run record", map[string]interface{}{
			"document": run.DocumentName,
		})
		return
	}

	if err := hs.getDB().Create(run).Error; err != nil {
		logger.Error("failed to record test run", map[string]interface{}{
			"document": run.DocumentName,
			"error":    err.Error(),
		})
	}
}

// Recent returns up to limit records, newest first, under a bounded query
// deadline. When the store is unreachable it fails closed with
// ErrStorageUnavailable instead of blocking.
func (hs *HistoryStore) Recent(ctx context.Context, limit int) ([]models.TestRun, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	if !hs.ready() {
		return nil, ErrStorageUnavailable
	}

	queryCtx, cancel := context.WithTimeout(ctx, historyQueryTimeout)
	defer cancel()

	runs := []models.TestRun{}
	err := hs.getDB().WithContext(queryCtx).
		Order("timestamp DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, ErrStorageUnavailable
	}
	return runs, nil
}
