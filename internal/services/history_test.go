package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/qapilot/backend/internal/models"
)

func unreachableStore() *HistoryStore {
	return NewHistoryStoreWithBackend(
		func() *gorm.DB { return nil },
		func() bool { return false },
	)
}

func TestRecentFailsClosedWhenStorageUnavailable(t *testing.T) {
	hs := unreachableStore()

	_, err := hs.Recent(context.Background(), DefaultHistoryLimit)
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("Expected ErrStorageUnavailable, got %v", err)
	}
}

func TestRecordDropsWhenStorageUnavailable(t *testing.T) {
	hs := unreachableStore()

	// Must log and drop, never panic or propagate.
	hs.Record(&models.TestRun{
		DocumentName: "srs.pdf",
		Timestamp:    time.Now().UTC(),
		Summary:      models.RunSummary{Passed: 1, Failed: 0, Total: 1},
		Details:      []models.TestDetail{{Title: "use case", Status: models.TestStatusPassed, Duration: 12}},
	})
}

func TestRecentDefaultsLimit(t *testing.T) {
	hs := unreachableStore()

	// Limit normalization happens before the readiness check surfaces; a
	// non-positive limit must not bypass it.
	if _, err := hs.Recent(context.Background(), 0); !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("Expected ErrStorageUnavailable, got %v", err)
	}
	if _, err := hs.Recent(context.Background(), -3); !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("Expected ErrStorageUnavailable, got %v", err)
	}
}
