package config

import (
	"flag"
)

// Command line flags (have precedence over environment variables)
var (
	// Redis flags
	flagRedisAddress      = flag.String("redis-address", "", "Redis address")
	flagRedisPassword     = flag.String("redis-password", "", "Redis password")
	flagRedisDB           = flag.Int("redis-db", -1, "Redis database number")
	flagRedisKeyPrefix    = flag.String("redis-key-prefix", "", "Prefix for every Redis key")
	flagRedisQueues       = flag.String("redis-queues", "", "Comma separated queues to create at startup")
	flagRedisDialTimeout  = flag.Duration("redis-dial-timeout", 0, "Redis dial timeout")
	flagRedisReadTimeout  = flag.Duration("redis-read-timeout", 0, "Redis read timeout")
	flagRedisWriteTimeout = flag.Duration("redis-write-timeout", 0, "Redis write timeout")
	flagRedisPingTimeout  = flag.Duration("redis-ping-timeout", 0, "Redis ping timeout")

	// Listener flags
	flagListenerAddress = flag.String("listener-address", "", "TCP address senders connect to")

	// MQTT flags
	flagMQTTBroker            = flag.String("mqtt-broker", "", "MQTT broker URL")
	flagMQTTClientID          = flag.String("mqtt-client-id", "", "MQTT client ID")
	flagMQTTPublishTopic      = flag.String("mqtt-publish-topic", "", "MQTT topic for delivered messages")
	flagMQTTQoS               = flag.Int("mqtt-qos", -1, "MQTT QoS (0, 1, or 2)")
	flagMQTTConnectTimeout    = flag.Duration("mqtt-connect-timeout", 0, "MQTT connect timeout")
	flagMQTTWriteTimeout      = flag.Duration("mqtt-write-timeout", 0, "MQTT write timeout")
	flagMQTTPoolSize          = flag.Int("mqtt-pool-size", 0, "MQTT connection pool size")
	flagMQTTMaxReconnect      = flag.Duration("mqtt-max-reconnect-interval", 0, "MQTT max reconnect interval")
	flagMQTTDisconnectTimeout = flag.Int("mqtt-disconnect-timeout", 0, "MQTT disconnect timeout (ms)")
	flagMQTTTLSEnabled        = flag.Bool("mqtt-tls-enabled", false, "Enable MQTT TLS")
	flagMQTTCACert            = flag.String("mqtt-ca-cert", "", "MQTT CA certificate path")
	flagMQTTClientCert        = flag.String("mqtt-client-cert", "", "MQTT client certificate path")
	flagMQTTClientKey         = flag.String("mqtt-client-key", "", "MQTT client key path")
	flagMQTTTLSInsecureSkip   = flag.Bool("mqtt-tls-insecure-skip", false, "Skip MQTT TLS verification")
	flagMQTTUseCertCNPrefix   = flag.Bool("mqtt-use-cert-cn-prefix", false, "Prefix topic with client cert CN")

	// Pipeline flags
	flagPipelineBufferCapacity  = flag.Int("pipeline-buffer-capacity", 0, "Delivered message buffer capacity")
	flagPipelinePublishWorkers  = flag.Int("pipeline-publish-workers", 0, "Number of concurrent publish workers")
	flagPipelinePublishTimeout  = flag.Duration("pipeline-publish-timeout", 0, "Timeout for one publish")
	flagPipelineLivenessTimeout = flag.Duration("pipeline-liveness-timeout", 0, "Receive stream liveness timeout")
	flagPipelineShutdownTimeout = flag.Duration("pipeline-shutdown-timeout", 0, "Graceful shutdown timeout")
)

// applyRedisFlags applies command line flags to Redis configuration
func applyRedisFlags(cfg *RedisConfig) {
	if *flagRedisAddress != "" {
		cfg.Address = *flagRedisAddress
	}
	if *flagRedisPassword != "" {
		cfg.Password = *flagRedisPassword
	}
	if *flagRedisDB >= 0 {
		cfg.DB = *flagRedisDB
	}
	if isFlagSet("redis-key-prefix") {
		cfg.KeyPrefix = *flagRedisKeyPrefix
	}
	if v := splitList(*flagRedisQueues); len(v) > 0 {
		cfg.Queues = v
	}
	applyRedisFlagTimeouts(cfg)
}

func applyRedisFlagTimeouts(cfg *RedisConfig) {
	if *flagRedisDialTimeout != 0 {
		cfg.DialTimeout = *flagRedisDialTimeout
	}
	if *flagRedisReadTimeout != 0 {
		cfg.ReadTimeout = *flagRedisReadTimeout
	}
	if *flagRedisWriteTimeout != 0 {
		cfg.WriteTimeout = *flagRedisWriteTimeout
	}
	if *flagRedisPingTimeout != 0 {
		cfg.PingTimeout = *flagRedisPingTimeout
	}
}

// applyListenerFlags applies command line flags to listener configuration
func applyListenerFlags(cfg *ListenerConfig) {
	if *flagListenerAddress != "" {
		cfg.Address = *flagListenerAddress
	}
}

// applyMQTTFlags applies command line flags to MQTT configuration
func applyMQTTFlags(cfg *MQTTConfig) {
	applyMQTTFlagStrings(cfg)
	applyMQTTFlagInts(cfg)
	applyMQTTFlagTimeouts(cfg)
	applyMQTTFlagBools(cfg)
}

func applyMQTTFlagStrings(cfg *MQTTConfig) {
	if *flagMQTTBroker != "" {
		cfg.Broker = *flagMQTTBroker
	}
	if *flagMQTTClientID != "" {
		cfg.ClientID = *flagMQTTClientID
	}
	if *flagMQTTPublishTopic != "" {
		cfg.PublishTopic = *flagMQTTPublishTopic
	}
	if *flagMQTTCACert != "" {
		cfg.CACert = *flagMQTTCACert
	}
	if *flagMQTTClientCert != "" {
		cfg.ClientCert = *flagMQTTClientCert
	}
	if *flagMQTTClientKey != "" {
		cfg.ClientKey = *flagMQTTClientKey
	}
}

func applyMQTTFlagInts(cfg *MQTTConfig) {
	if *flagMQTTQoS >= 0 && *flagMQTTQoS <= 2 {
		cfg.QoS = byte(*flagMQTTQoS) // #nosec G115 - validated range 0-2
	}
	if *flagMQTTPoolSize != 0 {
		cfg.PoolSize = *flagMQTTPoolSize
	}
	if *flagMQTTDisconnectTimeout > 0 {
		cfg.DisconnectTimeout = uint(*flagMQTTDisconnectTimeout)
	}
}

func applyMQTTFlagTimeouts(cfg *MQTTConfig) {
	if *flagMQTTConnectTimeout != 0 {
		cfg.ConnectTimeout = *flagMQTTConnectTimeout
	}
	if *flagMQTTWriteTimeout != 0 {
		cfg.WriteTimeout = *flagMQTTWriteTimeout
	}
	if *flagMQTTMaxReconnect != 0 {
		cfg.MaxReconnectInterval = *flagMQTTMaxReconnect
	}
}

func applyMQTTFlagBools(cfg *MQTTConfig) {
	if isFlagSet("mqtt-tls-enabled") {
		cfg.TLSEnabled = *flagMQTTTLSEnabled
	}
	if isFlagSet("mqtt-tls-insecure-skip") {
		cfg.InsecureSkip = *flagMQTTTLSInsecureSkip
	}
	if isFlagSet("mqtt-use-cert-cn-prefix") {
		cfg.UseCertCNPrefix = *flagMQTTUseCertCNPrefix
	}
}

// applyPipelineFlags applies command line flags to Pipeline configuration
func applyPipelineFlags(cfg *PipelineConfig) {
	if *flagPipelineBufferCapacity != 0 {
		cfg.BufferCapacity = *flagPipelineBufferCapacity
	}
	if *flagPipelinePublishWorkers != 0 {
		cfg.PublishWorkers = *flagPipelinePublishWorkers
	}
	if *flagPipelinePublishTimeout != 0 {
		cfg.PublishTimeout = *flagPipelinePublishTimeout
	}
	if *flagPipelineLivenessTimeout != 0 {
		cfg.LivenessTimeout = *flagPipelineLivenessTimeout
	}
	if *flagPipelineShutdownTimeout != 0 {
		cfg.ShutdownTimeout = *flagPipelineShutdownTimeout
	}
}

// isFlagSet checks if a flag was explicitly set on the command line
func isFlagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
