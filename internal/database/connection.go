package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/timekeep/timekeep/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	defaultDBName = "timekeep.db"
	defaultDBDir  = ".config/timekeep"
)

type DB struct {
	*gorm.DB
}

func GetDefaultDBPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	dbDir := filepath.Join(homeDir, defaultDBDir)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create database directory: %w", err)
	}

	return filepath.Join(dbDir, defaultDBName), nil
}

func Connect(dbPath string) (*DB, error) {
	if dbPath == "" {
		var err error
		dbPath, err = GetDefaultDBPath()
		if err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &DB{db}, nil
}

func (db *DB) Initialize() error {
	err := db.AutoMigrate(
		&models.TimerRecord{},
		&models.IdleNotification{},
		&models.UserTimerPreferences{},
		&models.Task{},
	)
	if err != nil {
		return fmt.Errorf("failed to initialize database schema: %w", err)
	}

	// Last line of defense for the single-active-timer invariant: the store
	// pre-checks inside its transaction, but the partial index closes any
	// remaining race between two concurrent starts.
	err = db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_timer_records_running_user
		 ON timer_records(user_id) WHERE is_running = 1`,
	).Error
	if err != nil {
		return fmt.Errorf("failed to create running-timer unique index: %w", err)
	}

	// One unresolved idle notification per timer, mirroring the sweep's
	// duplicate check.
	err = db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_idle_notifications_unresolved
		 ON idle_notifications(timer_record_id) WHERE action_taken = 'none'`,
	).Error
	if err != nil {
		return fmt.Errorf("failed to create unresolved-notification unique index: %w", err)
	}

	return nil
}

func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}
