package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	echoapi "github.com/vibestream/vibestream-server/api/echo"
	"github.com/vibestream/vibestream-server/cache"
	"github.com/vibestream/vibestream-server/config"
	"github.com/vibestream/vibestream-server/domain"
	"github.com/vibestream/vibestream-server/internal/auth"
	"github.com/vibestream/vibestream-server/internal/federation"
	"github.com/vibestream/vibestream-server/internal/server"
	"github.com/vibestream/vibestream-server/internal/spotify"
	"github.com/vibestream/vibestream-server/middleware"
	"github.com/vibestream/vibestream-server/mongodb"
	"github.com/vibestream/vibestream-server/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogging(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	mongoClient, db, err := mongodb.Connect(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to MongoDB")
	}
	defer mongodb.Close(context.Background(), mongoClient)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()

	userRepo, err := mongodb.NewUserRepositoryMongo(ctx, db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize user repository")
	}
	sessionRepo, err := mongodb.NewSessionRepositoryMongo(ctx, db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize session repository")
	}

	googleProvider, err := federation.NewProvider(domain.ProviderGoogle, federation.ProviderConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Google provider")
	}
	spotifyProvider, err := federation.NewProvider(domain.ProviderSpotify, federation.ProviderConfig{
		ClientID:     cfg.SpotifyClientID,
		ClientSecret: cfg.SpotifyClientSecret,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Spotify provider")
	}

	hasher := auth.NewBcryptPasswordHasher(0)
	sessionTTL := time.Duration(cfg.SessionTTLHours) * time.Hour
	authService := services.NewAuthService(userRepo, sessionRepo, hasher, sessionTTL)
	linkService := services.NewLinkService(userRepo)

	principals := cache.NewPrincipalCache(0)
	defer principals.Stop()

	sessionAuth := middleware.NewSessionAuth(authService, principals)
	refreshClient := federation.NewSpotifyRefreshClient(cfg.SpotifyClientID, cfg.SpotifyClientSecret)
	gate := middleware.NewLinkedServiceGate(userRepo, refreshClient, principals)

	api := echoapi.NewAPI(
		echoapi.Config{
			ClientURL:          cfg.ClientURL,
			GoogleCallbackURL:  cfg.GoogleCallbackURL,
			SpotifyCallbackURL: cfg.SpotifyCallbackURL,
			SecureCookies:      cfg.SecureCookies,
		},
		authService,
		linkService,
		googleProvider,
		spotifyProvider,
		spotify.NewClient(),
		cache.NewRedisStateStore(redisClient),
		sessionAuth,
		gate,
		func(ctx context.Context) error { return mongodb.Ping(ctx, mongoClient) },
	)

	srv := server.NewHTTPServer(cfg, api)

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
}

func setupLogging(cfg *config.ServerConfig) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}
