package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	config "leaderbus/configs"
	"leaderbus/pkg/api"
	"leaderbus/pkg/broadcast"
	"leaderbus/pkg/broadcast/etcd"
	"leaderbus/pkg/broadcast/memory"
	"leaderbus/pkg/broadcast/nats"
	"leaderbus/pkg/broadcast/redis"
	"leaderbus/pkg/elector"
	"leaderbus/pkg/logger"
	tracing "leaderbus/pkg/observability"
	"leaderbus/pkg/token"
)

const serviceName = "leaderbus"

func main() {
	cfg := config.LoadConfig()

	logCfg := logger.DefaultConfig(serviceName)
	logCfg.Level = cfg.LogLevel
	logCfg.Encoding = cfg.LogEncoding
	log, err := logger.Init(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logger.Debug("configuration loaded",
		zap.String("driver", cfg.BroadcastDriver),
		zap.String("topic", cfg.BroadcastTopic),
		zap.String("api_port", cfg.APIPort),
		zap.Bool("tracing", cfg.TracingEnabled),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// the token is drawn up front so traces and logs carry it from the start
	tok := token.Default.NewToken()

	traceCfg := tracing.DefaultConfig(serviceName)
	traceCfg.Enabled = cfg.TracingEnabled
	traceCfg.Endpoint = cfg.OTLPEndpoint
	traceCfg.Participant = tok
	tp, err := tracing.Init(ctx, traceCfg)
	if err != nil {
		logger.Fatal("failed to init tracing", zap.Error(err))
	}

	channel, err := openChannel(cfg, log)
	if err != nil {
		logger.Fatal("failed to open broadcast channel", zap.String("driver", cfg.BroadcastDriver), zap.Error(err))
	}

	e := elector.New(channel,
		elector.WithToken(tok),
		elector.WithFallbackInterval(cfg.FallbackInterval),
		elector.WithResponseWindow(cfg.ResponseWindow),
		elector.WithLogger(log.Named("elector")),
	)

	server := api.NewServer(api.Config{
		Port:        cfg.APIPort,
		Participant: e,
		Transport:   cfg.BroadcastDriver,
		ServiceName: serviceName,
	})
	go func() {
		if err := server.Start(); err != nil {
			logger.Error("status api stopped", zap.Error(err))
		}
	}()

	logger.Info("requesting leadership",
		zap.String("token", tok),
		zap.String("driver", cfg.BroadcastDriver),
		zap.Duration("fallback_interval", cfg.FallbackInterval),
		zap.Duration("response_window", cfg.ResponseWindow),
	)
	leadership := e.RequestLeadership()

	select {
	case <-leadership.Done():
		logger.Info("this participant is the leader")
		sig := <-sigChan
		logger.Info("received signal, departing", zap.String("signal", sig.String()))
	case sig := <-sigChan:
		logger.Info("received signal before winning, departing", zap.String("signal", sig.String()))
	}

	// depart first so another participant can take over quickly
	if err := e.Close(); err != nil {
		logger.Warn("departure not announced", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("status api shutdown error", zap.Error(err))
	}
	if err := channel.Close(); err != nil {
		logger.Warn("broadcast channel close error", zap.Error(err))
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
}

// openChannel connects the configured broadcast transport.
func openChannel(cfg *config.Config, log *zap.Logger) (broadcast.Channel, error) {
	switch cfg.BroadcastDriver {
	case "memory":
		// only useful for a single-process demo: nobody else can join
		return memory.NewChannel(), nil
	case "redis":
		return redis.NewChannel(redis.DefaultConfig(cfg.RedisAddr(), cfg.BroadcastTopic), log.Named("broadcast.redis"))
	case "etcd":
		ecfg := etcd.DefaultConfig(cfg.EtcdEndpoints, cfg.BroadcastTopic)
		ecfg.LeaseTTL = cfg.EtcdLeaseTTL
		return etcd.NewChannel(ecfg, log.Named("broadcast.etcd"))
	case "nats":
		return nats.NewChannel(nats.DefaultConfig(cfg.NatsURL, cfg.BroadcastTopic), log.Named("broadcast.nats"))
	default:
		return nil, fmt.Errorf("unknown broadcast driver %q", cfg.BroadcastDriver)
	}
}
