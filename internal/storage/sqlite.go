package storage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"fanprompt/internal/core"
	"fanprompt/internal/logger"
)

type jobRecord struct {
	ID           string    `gorm:"primaryKey;type:text"`
	Name         string    `gorm:"not null;index"`
	Prompt       string    `gorm:"type:text;not null"`
	ProjectPaths []string  `gorm:"serializer:json;type:text"`
	Trigger      string    `gorm:"not null;default:manual"`
	CreatedAt    time.Time `gorm:"index"`
}

func (jobRecord) TableName() string { return "job_definitions" }

func toRecord(def core.JobDefinition) jobRecord {
	return jobRecord{
		ID:           def.ID,
		Name:         def.Name,
		Prompt:       def.Prompt,
		ProjectPaths: def.ProjectPaths,
		Trigger:      def.Trigger,
		CreatedAt:    def.CreatedAt,
	}
}

func (r jobRecord) definition() core.JobDefinition {
	return core.JobDefinition{
		ID:           r.ID,
		Name:         r.Name,
		Prompt:       r.Prompt,
		ProjectPaths: r.ProjectPaths,
		Trigger:      r.Trigger,
		CreatedAt:    r.CreatedAt,
	}
}

// SQLiteStore keeps job definitions in an embedded SQLite database.
type SQLiteStore struct {
	db  *gorm.DB
	log *logger.Logger
}

// OpenSQLite opens (and migrates) the database file at dsn.
func OpenSQLite(dsn string, log *logger.Logger) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, &core.PersistenceError{Op: "open", Err: fmt.Errorf("open sqlite %s: %w", dsn, err)}
	}
	if err := db.AutoMigrate(&jobRecord{}); err != nil {
		return nil, &core.PersistenceError{Op: "open", Err: fmt.Errorf("migrate: %w", err)}
	}
	return &SQLiteStore{db: db, log: logger.OrNop(log).With("store", "sqlite")}, nil
}

func (s *SQLiteStore) Create(ctx context.Context, def core.JobDefinition) (string, error) {
	def, err := prepare(def)
	if err != nil {
		return "", err
	}
	rec := toRecord(def)
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return "", &core.PersistenceError{Op: "create", Err: err}
	}
	s.log.Debug("job stored", "id", rec.ID, "job", rec.Name)
	return rec.ID, nil
}

// List returns definitions oldest first.
func (s *SQLiteStore) List(ctx context.Context) ([]core.JobDefinition, error) {
	var recs []jobRecord
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&recs).Error; err != nil {
		return nil, &core.PersistenceError{Op: "list", Err: err}
	}
	out := make([]core.JobDefinition, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.definition())
	}
	return out, nil
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
