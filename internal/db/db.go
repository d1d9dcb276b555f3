package db

import (
	stdlog "log"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Open returns a pooled GORM handle for dsn. SQL is logged through zerolog at
// warn level, with anything slower than 100ms called out.
func Open(dsn string) (*gorm.DB, error) {
	lg := logger.New(
		stdlog.New(log.Logger, "", 0),
		logger.Config{
			SlowThreshold:             100 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         lg,
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(20)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

// Connect opens dsn and stores the handle in DB, exiting the process on failure.
func Connect(dsn string) {
	if dsn == "" {
		log.Fatal().Msg("DATABASE_URL is empty")
	}

	db, err := Open(dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	DB = db
	log.Info().Msg("Connected to database")
}

// Close releases the pool behind DB.
func Close() {
	if DB == nil {
		return
	}
	if sqlDB, err := DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
