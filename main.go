package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/EmpoweredVote/EV-Dashboard/internal/activity"
	"github.com/EmpoweredVote/EV-Dashboard/internal/auth"
	"github.com/EmpoweredVote/EV-Dashboard/internal/config"
	"github.com/EmpoweredVote/EV-Dashboard/internal/db"
	"github.com/EmpoweredVote/EV-Dashboard/internal/legacy"
	"github.com/EmpoweredVote/EV-Dashboard/internal/logging"
	"github.com/EmpoweredVote/EV-Dashboard/internal/middleware"
	"github.com/EmpoweredVote/EV-Dashboard/internal/password"
	"github.com/EmpoweredVote/EV-Dashboard/internal/workspace"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const sessionPruneInterval = 15 * time.Minute

func RootHandler(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, auth.RouteDashboard, http.StatusSeeOther)
}

func HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, "Server is up!")
}

func main() {
	_ = godotenv.Load(".env.local")

	cfg, err := config.Load()
	if err != nil {
		logging.Setup("info", "json")
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db.Connect(cfg.DatabaseURL)
	defer db.Close()

	workspace.Init()
	activity.Init()
	auth.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events := activity.NewGormStore(db.DB)
	dispatcher := activity.NewDispatcher(events, cfg.ActivityBufferSize)
	recorder := activity.NewLogger(dispatcher)

	hasher := password.BcryptHasher{}
	creds, err := auth.CredentialsFromConfig(cfg, hasher)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare admin credentials")
	}
	if _, ok := creds.AdminCredentials(); !ok {
		log.Warn().Msg("No admin credentials configured; admin login is disabled")
	}

	sessions := sessionStore(ctx, cfg)

	users := auth.NewGormRepository(db.DB)
	svc := auth.NewService(auth.Options{
		Credentials: creds,
		Users:       users,
		Sessions:    sessions,
		Legacy:      legacy.NewFileLoader(cfg.LegacyDataPath),
		Activity:    recorder,
		Hasher:      hasher,
		SessionTTL:  cfg.SessionTTL,
	})
	h := auth.NewHandler(auth.HandlerOptions{
		Service:       svc,
		Sessions:      sessions,
		Events:        events,
		Limiter:       middleware.NewIPRateLimiter(cfg.LoginRatePerMinute, cfg.LoginRateBurst),
		SessionTTL:    cfg.SessionTTL,
		SecureCookies: cfg.SecureCookies,
	})

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.ClientIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Get("/", RootHandler)
	r.Get("/healthz", HealthHandler)

	r.Mount(auth.RouteDashboard, auth.SetupRoutes(h))

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Uint64("dropped", dispatcher.Dropped()).Msg("Activity queue not fully drained")
	}
}

// sessionStore picks Redis when REDIS_URL is set, otherwise the sessions
// table with a background pruner.
func sessionStore(ctx context.Context, cfg config.Config) auth.SessionStore {
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid REDIS_URL")
		}
		client := redis.NewClient(opts)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		log.Info().Msg("Using Redis session store")
		return auth.NewRedisSessionStore(client)
	}

	store := auth.NewGormSessionStore(db.DB)
	go pruneSessions(ctx, store)
	return store
}

func pruneSessions(ctx context.Context, store *auth.GormSessionStore) {
	ticker := time.NewTicker(sessionPruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := store.PruneExpired(ctx, now.UTC())
			if err != nil {
				continue
			}
			if n > 0 {
				log.Info().Int64("count", n).Msg("Pruned expired sessions")
			}
		}
	}
}
