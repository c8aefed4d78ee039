package config

import (
	"fmt"
	"strings"
)

// Validate checks configuration constraints
func Validate(cfg *Config) error {
	if err := validateRedis(&cfg.Redis); err != nil {
		return err
	}
	if err := validateListener(&cfg.Listener); err != nil {
		return err
	}
	if err := validateMQTT(&cfg.MQTT); err != nil {
		return err
	}
	return validatePipeline(&cfg.Pipeline)
}

// validateRedis validates Redis configuration
func validateRedis(cfg *RedisConfig) error {
	if cfg.Address == "" {
		return fmt.Errorf("redis address cannot be empty")
	}
	if cfg.DB < 0 {
		return fmt.Errorf("redis db cannot be negative")
	}
	for _, q := range cfg.Queues {
		if strings.ContainsAny(q, " \t\r\n") {
			return fmt.Errorf("redis queue %q contains whitespace", q)
		}
	}
	return nil
}

// validateListener validates listener configuration
func validateListener(cfg *ListenerConfig) error {
	if cfg.Address == "" {
		return fmt.Errorf("listener address cannot be empty")
	}
	return nil
}

// validateMQTT validates MQTT configuration
func validateMQTT(cfg *MQTTConfig) error {
	if cfg.Broker == "" {
		return fmt.Errorf("mqtt broker cannot be empty")
	}
	if cfg.ClientID == "" {
		return fmt.Errorf("mqtt client ID cannot be empty")
	}
	if cfg.PoolSize < 1 {
		return fmt.Errorf("mqtt pool size must be positive")
	}
	if cfg.PublishTopic == "" {
		return fmt.Errorf("mqtt publish topic cannot be empty")
	}
	if cfg.QoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1, or 2")
	}
	return nil
}

// validatePipeline validates Pipeline configuration
func validatePipeline(cfg *PipelineConfig) error {
	if cfg.BufferCapacity < 1 {
		return fmt.Errorf("pipeline buffer capacity must be positive")
	}
	if cfg.PublishWorkers < 1 {
		return fmt.Errorf("pipeline publish workers must be positive")
	}
	if cfg.LivenessTimeout <= 0 {
		return fmt.Errorf("pipeline liveness timeout must be positive")
	}
	return nil
}
