package db

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/qapilot/backend/internal/logger"
	"github.com/qapilot/backend/internal/models"
)

// Connection states. Storage readiness is an explicit, queryable handle, not
// an ambient flag.
const (
	StateConnecting  = "connecting"
	StateReady       = "ready"
	StateUnreachable = "unreachable"
)

const (
	connectAttempts = 5
	backoffUnit     = 2 * time.Second
)

var (
	mu    sync.RWMutex
	db    *gorm.DB
	state = StateConnecting
)

func dsn() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		os.Getenv("DB_HOST"),
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
		os.Getenv("DB_PORT"),
		os.Getenv("DB_SSLMODE"),
	)
}

// Connect opens the Postgres connection with bounded backoff: a fixed number
// of attempts with a growing delay, never an indefinite retry loop. On
// exhaustion the state becomes unreachable and the error is returned; history
// endpoints fail closed while the rest of the pipeline keeps serving.
func Connect() error {
	setState(StateConnecting)

	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		conn, err := gorm.Open(postgres.Open(dsn()), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Error),
		})
		if err == nil {
			mu.Lock()
			db = conn
			state = StateReady
			mu.Unlock()
			logger.Info("database connected", map[string]interface{}{"attempt": attempt})
			return nil
		}

		lastErr = err
		logger.Warn("database connection attempt failed", map[string]interface{}{
			"attempt": attempt,
			"error":   err.Error(),
		})
		if attempt < connectAttempts {
			time.Sleep(time.Duration(attempt) * backoffUnit)
		}
	}

	setState(StateUnreachable)
	return fmt.Errorf("database unreachable after %d attempts: %w", connectAttempts, lastErr)
}

// AutoMigrate runs schema migrations for the durable run history.
func AutoMigrate() error {
	handle := Get()
	if handle == nil {
		return fmt.Errorf("cannot migrate: database not connected")
	}
	if err := handle.AutoMigrate(&models.TestRun{}); err != nil {
		return fmt.Errorf("test_runs migration failed: %w", err)
	}
	logger.Info("database migrations completed", nil)
	return nil
}

// Get returns the connection handle, or nil before a successful Connect.
func Get() *gorm.DB {
	mu.RLock()
	defer mu.RUnlock()
	return db
}

// Ready reports whether the store is connected and answering pings.
func Ready() bool {
	handle := Get()
	if handle == nil {
		return false
	}
	sqlDB, err := handle.DB()
	if err != nil {
		return false
	}
	return sqlDB.Ping() == nil
}

// State returns the current readiness state string.
func State() string {
	mu.RLock()
	defer mu.RUnlock()
	return state
}

func setState(s string) {
	mu.Lock()
	state = s
	mu.Unlock()
}
