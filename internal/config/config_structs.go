// Package config provides configuration loading and validation from environment variables and command line flags.
package config

import "time"

// Config holds the complete configuration
type Config struct {
	Redis    RedisConfig
	Listener ListenerConfig
	MQTT     MQTTConfig
	Pipeline PipelineConfig
}

// RedisConfig holds the durable store configuration
type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	KeyPrefix    string
	Queues       []string // Registered at startup
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PingTimeout  time.Duration
}

// ListenerConfig holds the sender-facing TCP listener configuration
type ListenerConfig struct {
	Address string
}

// MQTTConfig holds the delivery sink configuration
type MQTTConfig struct {
	Broker               string
	ClientID             string
	PublishTopic         string
	QoS                  byte
	ConnectTimeout       time.Duration
	WriteTimeout         time.Duration
	PoolSize             int
	MaxReconnectInterval time.Duration
	DisconnectTimeout    uint // Milliseconds for graceful disconnect
	// TLS Configuration
	TLSEnabled      bool
	CACert          string
	ClientCert      string
	ClientKey       string
	InsecureSkip    bool
	UseCertCNPrefix bool // If true, prefix the topic with the cert CN for ACL constraints
}

// PipelineConfig holds receive pipeline settings
type PipelineConfig struct {
	BufferCapacity  int
	PublishWorkers  int
	PublishTimeout  time.Duration
	LivenessTimeout time.Duration // Merged stream fails after this long without a delivery
	ShutdownTimeout time.Duration
}
