package activity

import (
	"context"

	"github.com/EmpoweredVote/EV-Dashboard/internal/db"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

func Init() {
	if err := db.EnsureSchema(db.DB, "app_auth"); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure schema app_auth")
	}
	if err := db.DB.AutoMigrate(&Event{}); err != nil {
		log.Fatal().Err(err).Msg("Failed to auto-migrate activity events")
	}
}

// GormStore writes events to app_auth.activity_events.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(d *gorm.DB) *GormStore {
	return &GormStore{db: d}
}

func (s *GormStore) Write(ctx context.Context, ev Event) error {
	return s.db.WithContext(ctx).Create(&ev).Error
}

// Recent returns up to limit events, newest first.
func (s *GormStore) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var events []Event
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}
