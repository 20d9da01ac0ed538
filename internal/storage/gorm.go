package storage

import (
	"context"
	"fmt"
	"time"

	"market_briefing/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormStore keeps recommendations in a SQLite file through GORM.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(path string) (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := db.AutoMigrate(&models.Recommendation{}); err != nil {
		return nil, fmt.Errorf("migrate recommendations: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Create(ctx context.Context, rec *models.Recommendation) (uint, error) {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return 0, fmt.Errorf("create recommendation %s: %w", rec.Ticker, err)
	}
	return rec.ID, nil
}

func (s *GormStore) Query(ctx context.Context, q Query) ([]models.Recommendation, error) {
	tx := s.db.WithContext(ctx).Model(&models.Recommendation{})
	if !q.From.IsZero() {
		tx = tx.Where("briefing_date >= ?", q.From)
	}
	if !q.To.IsZero() {
		tx = tx.Where("briefing_date < ?", q.To)
	}
	if q.Action != "" {
		tx = tx.Where("action = ?", q.Action)
	}
	if q.Ticker != "" {
		tx = tx.Where("ticker = ?", q.Ticker)
	}
	if q.Order == OldestFirst {
		tx = tx.Order("briefing_date ASC").Order("id ASC")
	} else {
		tx = tx.Order("briefing_date DESC").Order("id DESC")
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var out []models.Recommendation
	if err := tx.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("query recommendations: %w", err)
	}
	return out, nil
}

func (s *GormStore) UpdatePrice(ctx context.Context, id uint, price decimal.Decimal) error {
	res := s.db.WithContext(ctx).Model(&models.Recommendation{}).Where("id = ?", id).Updates(map[string]any{
		"current_price": decimal.NewNullDecimal(price),
		"updated_at":    time.Now(),
	})
	if res.Error != nil {
		return fmt.Errorf("update price %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
