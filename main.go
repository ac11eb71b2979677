package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wfunc/blackout/config"
	"github.com/wfunc/blackout/logger"
	"github.com/wfunc/blackout/monitor"
	"github.com/wfunc/blackout/room"
	"github.com/wfunc/blackout/server"
	"github.com/wfunc/blackout/storage"
)

func main() {
	// Initialize logger
	logger.Init()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}

	store, closeStore := newPropertyStore(cfg.Redis)
	defer closeStore()

	mon := monitor.NewMonitor("blackout")
	if cfg.Server.MetricsAddress != "" {
		mon.StartServer(cfg.Server.MetricsAddress)
		logger.Log.Infof("Metrics on %s", cfg.Server.MetricsAddress)
	}

	gameServer, err := server.NewGameServer(cfg, store, mon)
	if err != nil {
		logger.Log.Fatalf("Failed to create server: %v", err)
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := gameServer.Shutdown(ctx); err != nil {
			logger.Log.Warnf("Shutdown: %v", err)
		}
	}()

	if err := gameServer.Start(); err != nil {
		logger.Log.Fatalf("Failed to start server: %v", err)
	}
}

// newPropertyStore uses Redis when enabled and reachable, memory otherwise.
func newPropertyStore(cfg config.RedisConfig) (room.PropertyStore, func()) {
	if !cfg.Enabled {
		return room.NewMemoryStore(), func() {}
	}

	rs := storage.NewRedisStore(redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}), cfg.KeyPrefix, cfg.TTL)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rs.Ping(ctx); err != nil {
		logger.Log.Warnf("Redis unavailable at %s, keeping properties in memory: %v", cfg.Addr, err)
		rs.Close()
		return room.NewMemoryStore(), func() {}
	}
	logger.Log.Infof("Member properties stored in Redis at %s", cfg.Addr)
	return rs, func() { rs.Close() }
}
