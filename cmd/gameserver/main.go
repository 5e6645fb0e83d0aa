// Package main provides the game server binary: room orchestration, health
// authority, and the websocket gateway for game clients.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/blastarena/server/internal/config"
	"github.com/blastarena/server/internal/game/augment"
	"github.com/blastarena/server/internal/game/event"
	"github.com/blastarena/server/internal/game/health"
	"github.com/blastarena/server/internal/game/room"
	"github.com/blastarena/server/internal/game/schedule"
	"github.com/blastarena/server/internal/gameserver"
	"github.com/blastarena/server/internal/observability"
	"github.com/blastarena/server/internal/server"
	"github.com/blastarena/server/internal/transport/httpapi"
	"github.com/blastarena/server/internal/transport/ws"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	augmentsDir := flag.String("augments-dir", "content/augments", "path to augment YAML definitions directory; empty = no catalog")
	flag.Parse()

	// Optional; env vars still apply without a .env file.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting game server",
		zap.String("http_addr", cfg.HTTP.Addr()),
	)

	catalog := augment.NewCatalog(nil)
	if *augmentsDir != "" {
		loaded, err := augment.LoadCatalog(*augmentsDir)
		if err != nil {
			logger.Warn("augment catalog unavailable, selection phases carry no choices",
				zap.String("dir", *augmentsDir),
				zap.Error(err))
		} else {
			catalog = loaded
			logger.Info("augment catalog loaded",
				zap.String("dir", *augmentsDir),
				zap.Int("options", catalog.Len()))
		}
	}

	bus := event.NewBus(logger)
	sched := schedule.NewScheduler()
	registry := room.NewRegistry(cfg.Game, bus, sched, logger)
	authority := health.NewAuthority(registry, bus, sched, cfg.Game, logger)
	service := gameserver.NewService(registry, bus, sched, authority, catalog, cfg.Game, logger)
	hub := ws.NewHub(service, bus, cfg.Websocket, logger)

	router := httpapi.NewRouter(hub, registry, hub, logger)
	httpServer := httpapi.NewServer(cfg.HTTP, router, logger)

	// Registration order matters: shutdown runs in reverse, so the HTTP
	// listener goes down first and the event bus last.
	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("event-bus", &server.FuncService{
		StartFn: func() error { select {} },
		StopFn:  bus.Stop,
	})
	lifecycle.Add("scheduler", &server.FuncService{
		StartFn: func() error { select {} },
		StopFn:  sched.Stop,
	})
	lifecycle.Add("ws-hub", &server.FuncService{
		StartFn: func() error { select {} },
		StopFn:  hub.Shutdown,
	})
	lifecycle.Add("http", httpServer)

	logger.Info("game server initialized",
		zap.Duration("startup", time.Since(start)),
		zap.Int("max_rooms", cfg.Game.MaxRooms),
	)

	if err := lifecycle.Run(context.Background()); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
