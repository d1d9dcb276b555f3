// Command migrate-legacy copies every user in the flat-file store into the
// relational store ahead of their first login. Users that already have a row
// are left untouched, so the command can be re-run safely. Only the first
// valid record per username is migrated.
package main

import (
	"context"
	"errors"
	"os"

	"github.com/EmpoweredVote/EV-Dashboard/internal/activity"
	"github.com/EmpoweredVote/EV-Dashboard/internal/auth"
	"github.com/EmpoweredVote/EV-Dashboard/internal/config"
	"github.com/EmpoweredVote/EV-Dashboard/internal/db"
	"github.com/EmpoweredVote/EV-Dashboard/internal/legacy"
	"github.com/EmpoweredVote/EV-Dashboard/internal/logging"
	"github.com/EmpoweredVote/EV-Dashboard/internal/workspace"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"
)

func main() {
	_ = godotenv.Load(".env.local")

	var (
		dataPath = flag.String("data", os.Getenv("LEGACY_DATA_PATH"), "path to the legacy data.json")
		dbURL    = flag.String("db", os.Getenv("DATABASE_URL"), "DATABASE_URL")
		dryRun   = flag.Bool("dry-run", false, "list what would be migrated without writing")
		logLevel = flag.String("log-level", "info", "log level")
	)
	flag.Parse()
	logging.Setup(*logLevel, "console")

	if *dataPath == "" {
		*dataPath = config.DefaultLegacyDataPath
	}
	if *dbURL == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx := context.Background()
	loader := legacy.NewFileLoader(*dataPath)
	data, err := loader.Load(ctx)
	if err != nil {
		log.Fatal().Err(err).Str("path", *dataPath).Msg("Failed to load legacy data")
	}

	db.Connect(*dbURL)
	workspace.Init()
	activity.Init()
	auth.Init()

	users := auth.NewGormRepository(db.DB)
	importer := auth.NewLegacyImporter(loader, users)

	records, skipped, duplicates := selectRecords(data.Users)

	var created, existing, failed int
	for _, rec := range records {
		if *dryRun {
			_, err := users.FindByUsername(ctx, rec.Username)
			switch {
			case err == nil:
				existing++
			case errors.Is(err, auth.ErrNotFound):
				created++
				log.Info().Str("username", rec.Username).Str("role", rec.RoleOrDefault()).Msg("Would create user")
			default:
				failed++
			}
			continue
		}

		_, isNew, err := importer.Migrate(ctx, rec)
		switch {
		case err != nil:
			failed++
			log.Error().Err(err).Str("username", rec.Username).Msg("Failed to migrate legacy user")
		case isNew:
			created++
		default:
			existing++
		}
	}

	log.Info().
		Bool("dry_run", *dryRun).
		Int("created", created).
		Int("existing", existing).
		Int("skipped", skipped).
		Int("duplicates", duplicates).
		Int("failed", failed).
		Msg("Legacy migration finished")

	db.Close()
	if failed > 0 {
		os.Exit(1)
	}
}
