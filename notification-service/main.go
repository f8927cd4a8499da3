// Command notification-service logs assistant turn notifications published on redis.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"

	"backend-go-assistant/config"
	"backend-go-assistant/internal/logger"
	"backend-go-assistant/notify"
)

func main() {
	cfgPath := flag.String("config", config.DefaultConfigPath, "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Fatalf(logger.New(os.Stderr, "info"), "config_load_failed", "error", err)
	}
	log := logger.New(os.Stdout, cfg.Log.Level)

	if cfg.Redis.Addr == "" {
		logger.Fatalf(log, "redis_not_configured", "hint", "set redis.addr or ASSISTANT_REDIS_ADDR")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	defer func() { _ = rdb.Close() }()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatalf(log, "redis_connect_failed", "addr", cfg.Redis.Addr, "error", err)
	}

	sub := rdb.Subscribe(ctx, cfg.Redis.Channel)
	defer func() { _ = sub.Close() }()

	log.Info("notification_service_subscribed", "channel", cfg.Redis.Channel, "addr", cfg.Redis.Addr)

	notify.Consume(ctx, sub.Channel(),
		func(n notify.Notification) {
			lg := log.With("session_id", n.SessionID, "trace_id", n.TraceID, "timestamp", n.Timestamp)
			if n.Status != "" {
				lg.Info("turn_status", "status", n.Status)
				return
			}
			lg.Info("turn_result", "result", n.Result)
		},
		func(payload string, err error) {
			log.Warn("notification_malformed", "payload", payload, "error", err)
		},
	)
	log.Info("notification_service_shutting_down")
}
