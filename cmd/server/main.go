package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"michael/internal/app"
	"michael/internal/booking"
	"michael/internal/gcal"
	"michael/internal/postgres"
	"michael/internal/server"
	"michael/internal/slots"
)

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Fatal("DATABASE_URL required")
	}
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		logger.Fatal("connect to db", zap.Error(err))
	}
	defer pool.Close()

	store, err := postgres.New(ctx, pool)
	if err != nil {
		logger.Fatal("init store", zap.Error(err))
	}

	computer := &slots.Computer{Host: store, Blockers: store, Now: time.Now}
	coordinator := &booking.Coordinator{Store: store, Host: store, Now: time.Now, Log: logger}

	oauthCfg := gcal.OAuthConfig(
		os.Getenv("GOOGLE_CLIENT_ID"),
		os.Getenv("GOOGLE_CLIENT_SECRET"),
		os.Getenv("GOOGLE_REDIRECT_URL"),
	)
	startCalendarSync(ctx, oauthCfg, store, logger)

	application := &app.App{
		Store:       store,
		Computer:    computer,
		Coordinator: coordinator,
		OAuth:       oauthCfg,
		Log:         logger,
	}

	auth := app.AuthMiddleware(
		strings.Split(os.Getenv("STATIC_TOKENS"), ","),
		strings.TrimSpace(os.Getenv("JWT_HMAC_SECRET")),
	)

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	server.Run(application.Router(auth), addr, logger)
}

// startCalendarSync launches the blocker-cache refresh loop when a Google
// token is configured. Without one the cache simply stays empty.
func startCalendarSync(ctx context.Context, cfg *oauth2.Config, store *postgres.Store, logger *zap.Logger) {
	if cfg == nil {
		logger.Info("google calendar not configured, skipping sync")
		return
	}
	tokenJSON := os.Getenv("GOOGLE_TOKEN_JSON")
	if tokenJSON == "" {
		logger.Info("GOOGLE_TOKEN_JSON not set, visit /api/calendar/auth to authorize")
		return
	}
	var token oauth2.Token
	if err := json.Unmarshal([]byte(tokenJSON), &token); err != nil {
		logger.Fatal("parse GOOGLE_TOKEN_JSON", zap.Error(err))
	}

	interval := 5 * time.Minute
	if v := os.Getenv("GCAL_SYNC_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			logger.Fatal("parse GCAL_SYNC_INTERVAL", zap.Error(err))
		}
		interval = d
	}

	// All-day events expand to local midnights in the host zone.
	var hostLoc *time.Location
	if tz, err := store.HostTimezone(ctx); err == nil {
		hostLoc, _ = time.LoadLocation(tz)
	}

	syncer := &gcal.Syncer{
		Fetcher: &gcal.GoogleFetcher{
			Config:     cfg,
			Token:      &token,
			CalendarID: os.Getenv("GOOGLE_CALENDAR_ID"),
			Location:   hostLoc,
		},
		Cache:    store,
		Interval: interval,
		Log:      logger,
	}
	go syncer.Run(ctx)
}
