package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/park285/cheese-rooms/internal/archive"
	appcfg "github.com/park285/cheese-rooms/internal/config"
	"github.com/park285/cheese-rooms/internal/docstore"
	"github.com/park285/cheese-rooms/internal/docstore/memstore"
	"github.com/park285/cheese-rooms/internal/docstore/redisstore"
	"github.com/park285/cheese-rooms/internal/docstore/reststore"
	"github.com/park285/cheese-rooms/internal/httpapi"
	"github.com/park285/cheese-rooms/internal/msgcat"
	"github.com/park285/cheese-rooms/internal/obslog"
	"github.com/park285/cheese-rooms/internal/room"
	"github.com/park285/cheese-rooms/internal/session"
	"go.uber.org/zap"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessionTTL := time.Duration(cfg.SessionTTLSec) * time.Second
	store, tabs, closeStore, err := openStore(ctx, cfg, sessionTTL)
	if err != nil {
		logger.Fatal("store_init_error", zap.String("backend", cfg.StoreBackend), zap.Error(err))
	}
	defer closeStore()

	var roomOpts []room.Option
	roomOpts = append(roomOpts, room.WithCollection(cfg.RoomCollection))
	if cfg.RoomOrigin != "" {
		roomOpts = append(roomOpts, room.WithDefaultOrigin(cfg.RoomOrigin))
	}
	rooms := room.New(store, roomOpts...)

	// finished games go to PostgreSQL when configured
	if cfg.DatabaseURL != "" {
		repo, err := archive.NewRepository(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("archive_init_error", zap.Error(err))
		}
		defer func() { _ = repo.Close() }()
		sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = repo.EnsureSchema(sctx)
		cancel()
		if err != nil {
			logger.Fatal("archive_schema_error", zap.Error(err))
		}
		rooms.AttachArchive(repo)
	}

	cat, err := msgcat.New(cfg.MsgcatDir)
	if err != nil {
		logger.Fatal("msgcat_init_error", zap.String("dir", cfg.MsgcatDir), zap.Error(err))
	}

	srv := httpapi.New(cfg.HTTPAddr, rooms, cat,
		httpapi.WithAllowedOrigins(cfg.AllowedOrigins),
		httpapi.WithTabs(tabs),
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()
	logger.Info("roomd_start",
		zap.String("addr", cfg.HTTPAddr),
		zap.String("backend", cfg.StoreBackend),
		zap.String("collection", cfg.RoomCollection),
		zap.Bool("archive", cfg.DatabaseURL != ""),
	)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal("http_serve_error", zap.Error(err))
		}
	case <-ctx.Done():
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("http_shutdown_error", zap.Error(err))
	}
	logger.Info("roomd_stop")
}

// openStore builds the configured backend. Tab sessions live in Redis when
// the redis backend is used and in memory otherwise.
func openStore(ctx context.Context, cfg *appcfg.AppConfig, sessionTTL time.Duration) (docstore.Store, session.Tabs, func(), error) {
	switch cfg.StoreBackend {
	case appcfg.BackendRedis:
		dctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		rs, err := redisstore.NewFromURL(dctx, cfg.RedisURL, redisstore.WithTTL(sessionTTL))
		if err != nil {
			return nil, nil, nil, err
		}
		return rs, session.RedisTabs(rs.Redis(), sessionTTL), func() { _ = rs.Close() }, nil
	case appcfg.BackendREST:
		opts := []reststore.Option{
			reststore.WithAPIKey(cfg.RESTAPIKey),
			reststore.WithCollection(cfg.RoomCollection, cfg.RESTCollectionID),
		}
		return reststore.New(cfg.RESTEndpoint, cfg.RESTProject, cfg.RESTDatabaseID, opts...), session.MemoryTabs(), func() {}, nil
	default:
		return memstore.New(), session.MemoryTabs(), func() {}, nil
	}
}
