package auth

import (
	"github.com/EmpoweredVote/EV-Dashboard/internal/db"
	"github.com/rs/zerolog/log"
)

func Init() {
	if err := db.EnsureSchema(db.DB, "app_auth"); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure schema app_auth")
	}

	if err := db.DB.AutoMigrate(&User{}, &Session{}); err != nil {
		log.Fatal().Err(err).Msg("Failed to auto-migrate tables")
	}

	// Empty emails come from legacy records without one and may repeat.
	if err := db.DB.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS users_email_unique ON app_auth.users (email) WHERE email <> ''`).Error; err != nil {
		log.Fatal().Err(err).Msg("Failed to create users_email_unique index")
	}
}
