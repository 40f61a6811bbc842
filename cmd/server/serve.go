package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/VishalGohania/excelidraw/internal/config"
	"github.com/VishalGohania/excelidraw/internal/handlers"
	httpx "github.com/VishalGohania/excelidraw/internal/http"
	"github.com/VishalGohania/excelidraw/internal/hub"
	"github.com/VishalGohania/excelidraw/internal/idgen"
	"github.com/VishalGohania/excelidraw/internal/metrics"
	"github.com/VishalGohania/excelidraw/internal/repo"
	"github.com/VishalGohania/excelidraw/internal/service"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func serveCmd(cfg *config.Config) *cobra.Command {
	var jsonLogs bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and websocket server",
		Long: `Start the HTTP and websocket server.

Every flag falls back to its environment variable (API_ADDR, REDIS_ADDR,
MESSAGE_LOG_BACKEND, REQUIRE_MEMBERSHIP, ...) and then to a built-in default.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cfg, newLogger(cfg, jsonLogs))
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.APIAddr, "addr", cfg.APIAddr, "listen address")
	f.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "redis address for the room cache (empty disables it)")
	f.StringVar(&cfg.MessageLog, "message-log", cfg.MessageLog, "chat log backend: sql or mongo")
	f.StringVar(&cfg.MongoURI, "mongo-uri", cfg.MongoURI, "mongodb URI for the mongo chat log")
	f.BoolVar(&cfg.RequireMember, "require-membership", cfg.RequireMember, "reject chat for rooms the socket has not joined")
	f.IntVar(&cfg.HistoryLimit, "history-limit", cfg.HistoryLimit, "max messages returned by GET /chats/{roomId}")
	f.BoolVar(&jsonLogs, "json-logs", false, "log as JSON")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	slog.SetDefault(log)

	db, err := repo.OpenSQLite(cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	store := repo.NewSQLStore(db)
	closers := map[string]gfshutdown.Operation{
		"sqlite": func(context.Context) error { return store.Close() },
	}

	var cache repo.RoomCache
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			PoolSize:     10,
			MinIdleConns: 2,
			MaxRetries:   3,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			// the cache is optional, the directory still works without it
			log.Warn("redis unavailable, room cache disabled", "addr", cfg.RedisAddr, "err", err)
			_ = rdb.Close()
		} else {
			log.Info("connected to redis", "addr", cfg.RedisAddr)
			cache = repo.NewRedisRoomCache(rdb, cfg.RoomCacheTTL)
			closers["redis"] = func(context.Context) error { return rdb.Close() }
		}
	}

	var chatLog repo.ChatRepo = store
	switch cfg.MessageLog {
	case config.MessageLogSQL:
	case config.MessageLogMongo:
		client, err := repo.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return err
		}
		mongoLog := repo.NewMongoChatRepo(client.Database(cfg.MongoDatabase))
		if err := mongoLog.EnsureIndexes(ctx); err != nil {
			return err
		}
		chatLog = mongoLog
		closers["mongo"] = client.Disconnect
		log.Info("chat log on mongo", "database", cfg.MongoDatabase)
	default:
		return fmt.Errorf("unknown message log backend %q", cfg.MessageLog)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	sessions := service.NewSessionService(store, cfg.JWTSecret)
	rooms := service.NewRoomService(store, cache, idgen.Generator{}, log)
	chats := service.NewChatService(chatLog, cfg.HistoryLimit)
	registry := hub.NewRegistry(log, m)

	socket := handlers.NewSocketHandler(registry, sessions, rooms, chats, handlers.SocketOptions{
		Socket:         cfg.Socket,
		RequireMember:  cfg.RequireMember,
		AllowedOrigins: cfg.AllowedOrigin,
		Metrics:        m,
		Logger:         log,
	})
	router := httpx.NewRouter(httpx.Handlers{
		Rooms:    handlers.NewRoomHandler(rooms, sessions, log),
		Chats:    handlers.NewChatHandler(chats, log),
		Socket:   socket,
		Registry: registry,
		Gatherer: reg,
	}, cfg.AllowedOrigin)

	srv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("listening", "addr", cfg.APIAddr, "requireMembership", cfg.RequireMember, "messageLog", cfg.MessageLog)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// one operation: listener, then sockets, then stores
	wait := gfshutdown.GracefulShutdown(context.Background(), cfg.ShutdownWait, map[string]gfshutdown.Operation{
		"server": func(ctx context.Context) error {
			log.Info("shutting down", "connections", registry.Count())
			err := srv.Shutdown(ctx)
			// Shutdown does not wait for hijacked websocket connections
			if derr := socket.Drain(ctx); derr != nil {
				log.Warn("sockets still open at shutdown deadline", "err", derr)
				err = errors.Join(err, derr)
			}
			for name, closeFn := range closers {
				if cerr := closeFn(ctx); cerr != nil {
					log.Error("close failed", "store", name, "err", cerr)
					err = errors.Join(err, cerr)
				}
			}
			return err
		},
	})

	code := <-wait
	log.Info("server stopped", "code", code)
	if code != 0 {
		return fmt.Errorf("shutdown finished with code %d", code)
	}
	return nil
}
