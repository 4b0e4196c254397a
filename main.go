package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"example.com/ribbit/cmd/server"
	"example.com/ribbit/cmd/worker"
	"example.com/ribbit/internal/auth"
	appkafka "example.com/ribbit/internal/broker"
	"example.com/ribbit/internal/cache"
	config "example.com/ribbit/internal/init"
	"example.com/ribbit/internal/logger"
	"example.com/ribbit/internal/service"
	"example.com/ribbit/internal/store"
	"github.com/gin-gonic/gin"
)

var logg = logger.New()

func fatal(msg string, err error) {
	logg.Error("main", msg, err)
	os.Exit(1)
}

func main() {
	// Initialize application configuration
	cfg := config.Init()
	mode := cfg.Mode
	gin.SetMode(cfg.GinMode)
	if err := cfg.Validate(); err != nil {
		fatal("Refusing to start "+mode, err)
	}

	if mode == "migrate" {
		migrate(cfg)
		return
	}

	st, err := store.New(cfg)
	if err != nil {
		fatal("Store connection failed", err)
	}
	defer st.Close()

	c, err := cache.New(cfg.RedisURL)
	if err != nil {
		fatal("Cache connection failed", err)
	}
	defer c.Close()

	kafkaCfg := appkafka.ConfigFrom(cfg)

	// The server publishes only when Kafka is enabled; the worker always reads.
	var kafkaWriter appkafka.KafkaWriter = appkafka.NopWriter{}
	var kafkaReader appkafka.KafkaReader
	switch mode {
	case "server":
		if cfg.KafkaEnabled {
			w, err := appkafka.NewKafkaWriter(kafkaCfg)
			if err != nil {
				fatal("Kafka writer init failed", err)
			}
			kafkaWriter = w
		}
		defer kafkaWriter.Close()
	case "worker":
		if cfg.RedisURL == "" {
			logg.Warn("main", "REDIS_URL is empty, the worker refreshes a cache no server can see")
		}
		kafkaReader = appkafka.NewKafkaReader(kafkaCfg)
	default:
		logg.Error("main", "Unknown mode: "+mode, nil)
		os.Exit(1)
	}

	svc := service.New(st, auth.NewJWTManager(cfg.JWTSecret, cfg.SessionTTL), c, kafkaWriter, cfg.PublicFeedTTL)

	// Setup OS signal handling for graceful shutdown (SIGINT, SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch mode {
	case "server":
		opts := server.Options{
			Addr:         cfg.ServerAddr,
			TLSCertFile:  cfg.TLSCertFile,
			TLSKeyFile:   cfg.TLSKeyFile,
			CookieName:   cfg.SessionCookie,
			CookieSecure: cfg.SessionCookieSecure,
		}
		if err := server.Run(ctx, server.New(svc, st, c, opts), opts); err != nil {
			logg.Error("main", "Server failed", err)
			return
		}
	case "worker":
		w := worker.New(svc, kafkaReader, cfg.WorkerCount, cfg.WorkerQueueSize)
		w.Run(ctx)
		if err := w.Close(); err != nil {
			logg.Error("main", "Worker close failed", err)
		}
	}

	logg.Info("main", "Shutdown completed")
}

// migrate applies or rolls back the schema of the configured store.
func migrate(cfg *config.Config) {
	var err error
	switch cfg.StoreDriver {
	case "cassandra":
		err = store.MigrateCassandra(cfg, cfg.MigrateDirection)
	case "sqlite":
		logg.Info("main", "sqlite schema is created on startup, nothing to migrate")
		return
	default:
		err = store.MigrateSQL(cfg.StoreDriver, cfg.DatabaseDSN, cfg.MigrateDirection)
	}
	if err != nil {
		fatal("Migration failed", err)
	}
	logg.Info("main", "Migration "+cfg.MigrateDirection+" completed for "+cfg.StoreDriver)
}
