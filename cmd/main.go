package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"

	"masterok/internal/config"
	"masterok/internal/logging"
	"masterok/internal/repositories"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
	}
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	addr := flag.String("addr", cfg.Server.Address, "HTTP network address")
	flag.Parse()

	logger := logging.New(os.Stdout, cfg.LogLevel)

	dialect, err := repositories.ParseDialect(cfg.Database.Driver)
	if err != nil {
		logger.Zerolog().Fatal().Err(err).Msg("database driver")
	}
	db, err := openDB(dialect, cfg.Database.URL)
	if err != nil {
		logger.Zerolog().Fatal().Err(err).Msg("open database")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := repositories.Migrate(ctx, db, dialect); err != nil {
		logger.Zerolog().Fatal().Err(err).Msg("migrate")
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Zerolog().Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis ping")
		}
		defer rdb.Close()
	}

	app, err := initializeApp(ctx, cfg, db, dialect, rdb, logger)
	if err != nil {
		logger.Zerolog().Fatal().Err(err).Msg("initialize")
	}
	defer app.close()

	origins := cfg.Server.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowCredentials: true,
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
	})

	srv := &http.Server{
		Addr:         *addr,
		ErrorLog:     log.New(logger, "", 0),
		Handler:      c.Handler(app.routes()),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("shutdown: %v", err)
		}
	}()

	logger.Infof("Starting server on %s (db=%s fanout=%s)", *addr, dialect, cfg.Fanout.Driver)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Zerolog().Fatal().Err(err).Msg("listen")
	}
	logger.Infof("server stopped")
}
