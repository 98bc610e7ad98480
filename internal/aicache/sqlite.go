package aicache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/thebtf/scribe/pkg/models"
)

// cacheRecord is the persisted form of a cache entry.
type cacheRecord struct {
	Fingerprint    string `gorm:"primaryKey;column:fingerprint"`
	Response       []byte `gorm:"column:response;not null"`
	CreatedAtEpoch int64  `gorm:"column:created_at_epoch;not null"`
	ExpiresAtEpoch int64  `gorm:"column:expires_at_epoch;not null;index"`
}

func (cacheRecord) TableName() string { return "ai_response_cache" }

// SQLiteStore persists cache entries in an embedded SQLite database so a
// warm cache survives process restarts.
type SQLiteStore struct {
	db    *gorm.DB
	sqlDB *sql.DB
}

// NewSQLiteStore opens (and migrates) the cache database at path.
// WAL mode keeps concurrent batch workers from serializing on reads.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	db, err := gorm.Open(sqlite.Dialector{Conn: sqlDB}, &gorm.Config{
		Logger:      logger.Default.LogMode(logger.Silent),
		PrepareStmt: true,
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("open gorm: %w", err)
	}

	sqlDB.SetMaxOpenConns(4)
	sqlDB.SetMaxIdleConns(4)

	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "202502_create_ai_response_cache",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&cacheRecord{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&cacheRecord{})
			},
		},
	})
	if err := m.Migrate(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate cache database: %w", err)
	}

	return &SQLiteStore{db: db, sqlDB: sqlDB}, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, fingerprint string) (*models.BatchResponse, error) {
	var rec cacheRecord
	err := s.db.WithContext(ctx).First(&rec, "fingerprint = ?", fingerprint).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}
	if time.Now().UnixMilli() > rec.ExpiresAtEpoch {
		// Expired entries are deleted eagerly; recompute is transparent.
		_ = s.db.WithContext(ctx).Delete(&cacheRecord{}, "fingerprint = ?", fingerprint).Error
		return nil, nil
	}
	var resp models.BatchResponse
	if err := json.Unmarshal(rec.Response, &resp); err != nil {
		return nil, fmt.Errorf("cache decode: %w", err)
	}
	return &resp, nil
}

// Set implements Store.
func (s *SQLiteStore) Set(ctx context.Context, fingerprint string, resp models.BatchResponse, ttl time.Duration) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	now := time.Now()
	rec := cacheRecord{
		Fingerprint:    fingerprint,
		Response:       payload,
		CreatedAtEpoch: now.UnixMilli(),
		ExpiresAtEpoch: now.Add(ttl).UnixMilli(),
	}
	return s.db.WithContext(ctx).Save(&rec).Error
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, fingerprint string) error {
	return s.db.WithContext(ctx).Delete(&cacheRecord{}, "fingerprint = ?", fingerprint).Error
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.sqlDB.Close()
}
