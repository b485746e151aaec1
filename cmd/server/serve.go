package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"medchat/internal/cache"
	"medchat/internal/config"
	"medchat/internal/httpserver"
	"medchat/internal/logging"
	"medchat/internal/notification"
	"medchat/internal/presence"
	"medchat/internal/ratelimit"
	"medchat/internal/security"
	"medchat/internal/service"
	"medchat/internal/typing"
	"medchat/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func runServer(parent context.Context, cfg *config.Config) error {
	logger := logging.New(cfg.LogLevel, cfg.Env)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repos, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer repos.Close()
	logger.Info().Str("driver", cfg.DatabaseDriver).Msg("connected to database")

	rdb, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer rdb.Close()
	logger.Info().Msg("connected to redis")

	var nc *nats.Conn
	if cfg.NATSURL != "" {
		nc, err = nats.Connect(cfg.NATSURL, nats.Name(cfg.AppName), nats.MaxReconnects(-1))
		if err != nil {
			return err
		}
		defer nc.Drain()
		logger.Info().Str("url", cfg.NATSURL).Msg("connected to nats")
	}

	c := cache.New(rdb)
	online := presence.NewTracker(rdb, cfg.PresenceTTL)

	sinks := []notification.Sink{notification.NewStoreSink(repos.Notifications)}
	if nc != nil {
		sinks = append(sinks, notification.NewNATSSink(nc))
	}
	dispatcher := notification.NewDispatcher(logger, cfg.NotifyWorkers, cfg.NotifyQueueSize, sinks...)
	defer dispatcher.Close()

	snapshots := service.NewUserSnapshots(repos.Users, c, cfg.UserSnapshotTTL, logger)
	chats := service.NewChatService(repos.Users, repos.Connections, repos.Chats, repos.Messages, snapshots, c,
		service.ChatTTLs{Chat: cfg.ChatCacheTTL, UserChats: cfg.UserChatsCacheTTL}, logger)
	messages := service.NewMessageService(chats, repos.Messages, snapshots)
	events := service.NewChatEvents(chats, messages, online, dispatcher, logger)

	hub := ws.NewHub()
	broker, err := newBroker(nc, hub, logger)
	if err != nil {
		return err
	}
	defer broker.Close()
	broadcast := ws.NewBroadcaster(broker, logger)

	tokens := security.NewTokenService(cfg.JWTSecret, cfg.AccessTokenTTL())
	gateway := ws.NewGateway(hub, broadcast, tokens, events, online,
		typing.NewTracker(rdb, cfg.TypingTTL),
		ratelimit.NewLimiter(rdb, "msg", cfg.RateLimitWindow, cfg.RateLimitMax),
		ws.Config{AllowedOrigins: cfg.CORSOrigins, MaxInflight: cfg.WSMaxInflight},
		logger)

	router := httpserver.NewRouter(httpserver.Deps{
		AppName:     cfg.AppName,
		CORSOrigins: cfg.CORSOrigins,
		Tokens:      tokens,
		Events:      events,
		Broadcast:   broadcast,
		Gateway:     gateway,
		Ready: func(ctx context.Context) error {
			if err := repos.DB.PingContext(ctx); err != nil {
				return err
			}
			return rdb.Ping(ctx).Err()
		},
		Connections: hub.Count,
		Log:         logger,
	})

	// No WriteTimeout: it would cut long-lived WebSocket connections.
	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", cfg.HTTPAddr()).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newBroker(nc *nats.Conn, hub *ws.Hub, logger zerolog.Logger) (ws.Broker, error) {
	if nc == nil {
		return ws.NewLocalBroker(hub), nil
	}
	return ws.NewNATSBroker(nc, hub, logger)
}
