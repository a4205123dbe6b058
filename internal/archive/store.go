package archive

import (
	"context"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Store interface {
	SaveRound(ctx context.Context, rec *RoundRecord) error
	SaveSeries(ctx context.Context, rec *SeriesRecord) error
	Close() error
}

type GormStore struct {
	db *gorm.DB
}

func OpenPostgres(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return NewGormStore(db)
}

// NewGormStore migrates the archive tables on db.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&RoundRecord{}, &SeriesRecord{}); err != nil {
		return nil, fmt.Errorf("migrate archive: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) SaveRound(ctx context.Context, rec *RoundRecord) error {
	return s.db.WithContext(ctx).Create(rec).Error
}

func (s *GormStore) SaveSeries(ctx context.Context, rec *SeriesRecord) error {
	return s.db.WithContext(ctx).Create(rec).Error
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
