// Package main starts the queue receiver binary.
package main

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ibs-source/queue-receiver/internal/codec"
	"github.com/ibs-source/queue-receiver/internal/config"
	"github.com/ibs-source/queue-receiver/internal/hotpath"
	"github.com/ibs-source/queue-receiver/internal/log"
	"github.com/ibs-source/queue-receiver/internal/mqtt"
	"github.com/ibs-source/queue-receiver/internal/redis"
)

func run() int {
	logger := log.New()
	logger.Info("Starting queue receiver")

	cfg, err := loadAndLogConfig(logger)
	if err != nil {
		return 1
	}

	redisClient, mqttPool, hp, err := initializeServices(cfg, logger)
	if err != nil {
		return 1
	}
	defer closeServices(redisClient, mqttPool, hp, logger)

	return runMainLoop(hp, cfg, logger)
}

func loadAndLogConfig(logger *log.Logger) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration: %v", err)
		return nil, err
	}

	logger.Info("Configuration loaded successfully")
	logger.Info("Redis: %s, key prefix: %q, queues: %v", cfg.Redis.Address, cfg.Redis.KeyPrefix, cfg.Redis.Queues)
	logger.Info("Listener: %s", cfg.Listener.Address)
	logger.Info("MQTT: %s, Publish: %s", cfg.MQTT.Broker, cfg.MQTT.PublishTopic)
	logger.Info("Pipeline: Buffer=%d, Workers=%d, Liveness=%s",
		cfg.Pipeline.BufferCapacity, cfg.Pipeline.PublishWorkers, cfg.Pipeline.LivenessTimeout)
	return cfg, nil
}

func initializeServices(cfg *config.Config, logger *log.Logger) (*redis.Client, *mqtt.Pool, *hotpath.HotPath, error) {
	redisClient, err := redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Error("Failed to create Redis client: %v", err)
		return nil, nil, nil, err
	}
	logger.Info("Connected to Redis")

	mqttPool, err := mqtt.NewPool(&cfg.MQTT, logger)
	if err != nil {
		logger.Error("Failed to create MQTT pool: %v", err)
		_ = redisClient.Close()
		return nil, nil, nil, err
	}

	ln, err := net.Listen("tcp", cfg.Listener.Address)
	if err != nil {
		logger.Error("Failed to listen on %s: %v", cfg.Listener.Address, err)
		_ = mqttPool.Close()
		_ = redisClient.Close()
		return nil, nil, nil, err
	}

	hp := hotpath.New(ln, redisClient, codec.Binary{}, mqttPool, cfg, logger)
	return redisClient, mqttPool, hp, nil
}

func closeServices(redisClient *redis.Client, mqttPool *mqtt.Pool, hp *hotpath.HotPath, logger *log.Logger) {
	if err := hp.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		logger.Error("Error closing listener: %v", err)
	}
	if err := mqttPool.Close(); err != nil {
		logger.Error("Error closing MQTT pool: %v", err)
	}
	if err := redisClient.Close(); err != nil {
		logger.Error("Error closing Redis client: %v", err)
	}
}

func runMainLoop(hp *hotpath.HotPath, cfg *config.Config, logger *log.Logger) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	runDone := make(chan error, 1)
	go func() {
		runDone <- hp.Run(ctx)
	}()

	logger.Info("Receive pipeline started")

	select {
	case sig := <-sigChan:
		logger.Info("Received signal %v, initiating graceful shutdown", sig)
		cancel()
		return handleGracefulShutdown(runDone, cfg.Pipeline.ShutdownTimeout, logger)

	case err := <-runDone:
		if err != nil {
			logger.Error("Receive pipeline error: %v", err)
			return 1
		}
		logger.Info("Receive pipeline finished")
		return 0
	}
}

func handleGracefulShutdown(runDone <-chan error, timeout time.Duration, logger *log.Logger) int {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()

	select {
	case err := <-runDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Receive pipeline stopped with error: %v", err)
			return 1
		}
		logger.Info("Graceful shutdown completed")
		logger.Info("Receiver stopped")
		return 0
	case <-shutdownCtx.Done():
		logger.Error("Shutdown timeout exceeded")
		return 1
	}
}

func main() {
	// Keep main minimal to ensure defers in run() execute correctly.
	os.Exit(run())
}
