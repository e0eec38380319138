// Package sqlite provides a file-backed processed-event ledger.
package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"example.com/runcoach/internal/domain"
	"example.com/runcoach/internal/observability"
)

// processedEvent is the single ledger table. The primary key on event_id is
// what serialises duplicate deliveries.
type processedEvent struct {
	EventID     int64     `gorm:"column:event_id;primaryKey;autoIncrement:false"`
	ProcessedAt time.Time `gorm:"column:processed_at;not null"`
}

func (processedEvent) TableName() string { return "processed_events" }

// Ledger records processed webhook event ids in a SQLite file.
type Ledger struct {
	db  *gorm.DB
	now func() time.Time
}

// Open connects to the database file at path, creating parent directories
// and the table when missing.
func Open(ctx context.Context, path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// One writer connection; SQLite would otherwise return SQLITE_BUSY under
	// concurrent inserts instead of waiting.
	sqlDB.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if err := db.WithContext(ctx).Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("exec %s: %w", pragma, err)
		}
	}

	l := &Ledger{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := l.Init(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

// Init creates the ledger table if it does not exist.
func (l *Ledger) Init(ctx context.Context) error {
	if err := l.db.WithContext(ctx).AutoMigrate(&processedEvent{}); err != nil {
		return fmt.Errorf("migrate processed_events: %w", err)
	}
	return nil
}

// IsProcessed reports whether eventID has been recorded.
func (l *Ledger) IsProcessed(ctx context.Context, eventID int64) (bool, error) {
	var count int64
	err := l.db.WithContext(ctx).
		Model(&processedEvent{}).
		Where("event_id = ?", eventID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// MarkProcessed inserts eventID. It returns domain.ErrDuplicateEvent when the
// row already exists.
func (l *Ledger) MarkProcessed(ctx context.Context, eventID int64) error {
	row := processedEvent{EventID: eventID, ProcessedAt: l.now()}
	res := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordLedgerDuplicate()
		return fmt.Errorf("event %d: %w", eventID, domain.ErrDuplicateEvent)
	}
	return nil
}

// Close releases the underlying connection.
func (l *Ledger) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
