package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	firebase "firebase.google.com/go"
	_ "github.com/glebarez/go-sqlite"
	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"

	"masterok/internal/auth"
	"masterok/internal/config"
	"masterok/internal/fanout"
	"masterok/internal/handlers"
	"masterok/internal/logging"
	"masterok/internal/presence"
	"masterok/internal/repositories"
	"masterok/internal/services"
)

type application struct {
	log      *logging.ZeroLogger
	db       *sql.DB
	verifier *auth.Verifier
	presence *presence.Tracker
	users    *repositories.UserRepository
	events   fanout.Broadcaster
	hub      *fanout.Hub

	requestHandler     *handlers.RequestHandler
	chatHandler        *handlers.ChatHandler
	messageHandler     *handlers.MessageHandler
	presenceHandler    *handlers.PresenceHandler
	notifyTokenHandler *handlers.NotifyTokenHandler

	closers []func()
}

func initializeApp(ctx context.Context, cfg config.Config, db *sql.DB, d repositories.Dialect, rdb *redis.Client, logger *logging.ZeroLogger) (*application, error) {
	requestRepo := repositories.NewRequestRepository(db, d)
	responseRepo := repositories.NewResponseRepository(db, d)
	chatRepo := repositories.NewChatRepository(db, d)
	messageRepo := repositories.NewMessageRepository(db, d)
	userRepo := repositories.NewUserRepository(db, d)
	tokenRepo := repositories.NewNotifyTokenRepository(db, d)

	app := &application{
		log:      logger,
		db:       db,
		verifier: auth.NewVerifier(cfg.Auth.JWTSecret),
		users:    userRepo,
	}

	var store presence.Store
	if rdb != nil {
		store = presence.NewRedisStore(rdb, "presence")
	} else {
		store = presence.NewMemoryStore(time.Now)
	}
	app.presence = presence.NewTracker(store, cfg.Presence.TTL, logger)

	app.hub = fanout.NewHub(fanout.NewTopicAuthorizer(chatRepo), logger.With("component", "fanout"))
	app.closers = append(app.closers, app.hub.Close)

	var realtime fanout.Broadcaster
	switch cfg.Fanout.Driver {
	case "noop":
		realtime = fanout.Noop{}
	case "redis":
		viaRedis := fanout.NewAsync("redis", fanout.NewRedisBroadcaster(rdb, cfg.Fanout.Channel, logger), cfg.Fanout.PushQueueSize)
		app.closers = append(app.closers, viaRedis.Close)
		relay := fanout.NewRelay(rdb, cfg.Fanout.Channel, app.hub, logger)
		go func() {
			if err := relay.Run(ctx); err != nil {
				logger.Errorf("fanout relay stopped: %v", err)
			}
		}()
		app.hub.SetOutbound(viaRedis)
		realtime = viaRedis
	default:
		realtime = app.hub
	}

	app.events = realtime
	if cfg.Fanout.FCMCredFile != "" {
		fb, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(cfg.Fanout.FCMCredFile))
		if err != nil {
			return nil, fmt.Errorf("firebase app: %w", err)
		}
		client, err := fb.Messaging(ctx)
		if err != nil {
			return nil, fmt.Errorf("firebase messaging: %w", err)
		}
		push := fanout.NewAsync("push", fanout.NewPushBroadcaster(client, tokenRepo, tokenRepo, logger), cfg.Fanout.PushQueueSize)
		app.closers = append(app.closers, push.Close)
		app.events = fanout.Multi{realtime, push}
	}

	chatService := &services.ChatService{DB: db, Chats: chatRepo, Messages: messageRepo, Events: app.events, Log: logger}
	requestService := &services.RequestService{DB: db, Requests: requestRepo, Responses: responseRepo, Users: userRepo, Events: app.events, Log: logger}
	responseService := &services.ResponseService{DB: db, Requests: requestRepo, Responses: responseRepo, Events: app.events, Log: logger}
	matchService := &services.MatchService{DB: db, Requests: requestRepo, Responses: responseRepo, Chats: chatService, Events: app.events, Log: logger}
	messageService := &services.MessageService{DB: db, Chats: chatRepo, Messages: messageRepo, Events: app.events, Log: logger,
		Limiter: services.NewSenderLimiter(cfg.Chat.MessagesPerSecond, cfg.Chat.MessageBurst)}

	app.requestHandler = &handlers.RequestHandler{Requests: requestService, Responses: responseService, Match: matchService, Log: logger}
	app.chatHandler = &handlers.ChatHandler{Chats: chatService, Log: logger}
	app.messageHandler = &handlers.MessageHandler{Messages: messageService, Log: logger}
	app.presenceHandler = &handlers.PresenceHandler{Presence: app.presence, Users: userRepo, Log: logger}
	app.notifyTokenHandler = &handlers.NotifyTokenHandler{Tokens: tokenRepo, Log: logger}
	return app, nil
}

// close stops background workers in reverse start order.
func (app *application) close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		app.closers[i]()
	}
}

func openDB(d repositories.Dialect, dsn string) (*sql.DB, error) {
	if d == repositories.MySQL {
		// DATETIME columns must scan into time.Time.
		mc, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("mysql dsn: %w", err)
		}
		mc.ParseTime = true
		mc.Loc = time.UTC
		dsn = mc.FormatDSN()
	}
	db, err := sql.Open(string(d), dsn)
	if err != nil {
		return nil, err
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if d == repositories.SQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxIdleConns(35)
	}
	return db, nil
}
