// Package mqtt provides the MQTT delivery sink for received messages.
package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/ibs-source/queue-receiver/internal/config"
	"github.com/ibs-source/queue-receiver/internal/log"
)

// ErrPublishTimeout is returned when the broker does not confirm a publish in time
var ErrPublishTimeout = errors.New("mqtt publish timeout")

// Client publishes payloads to a single MQTT connection
type Client struct {
	conn              mqtt.Client
	topic             string
	qos               byte
	writeTimeout      time.Duration
	disconnectTimeout uint
	log               *log.Logger
}

// NewClient connects to the broker and returns a publishing client
func NewClient(cfg *config.MQTTConfig, logger *log.Logger) (*Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetWriteTimeout(cfg.WriteTimeout)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(cfg.MaxReconnectInterval)

	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetMessageChannelDepth(10000)
	opts.SetOrderMatters(false)
	opts.SetMaxResumePubInFlight(1000)

	entry := logger.WithField("client", cfg.ClientID)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		if err != nil {
			entry.Errorf("MQTT connection lost: %v", err)
		}
	})
	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		entry.Info("MQTT reconnecting")
	})
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		entry.Debug("MQTT connected")
	})

	if cfg.TLSEnabled {
		tlsConfig, err := newTLSConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		opts.SetTLSConfig(tlsConfig)
	}

	conn := mqtt.NewClient(opts)
	token := conn.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT: %w", err)
	}

	return newClient(conn, cfg, logger), nil
}

// newClient wraps an already connected paho client
func newClient(conn mqtt.Client, cfg *config.MQTTConfig, logger *log.Logger) *Client {
	return &Client{
		conn:              conn,
		topic:             cfg.PublishTopic,
		qos:               cfg.QoS,
		writeTimeout:      cfg.WriteTimeout,
		disconnectTimeout: cfg.DisconnectTimeout,
		log:               logger,
	}
}

// newTLSConfig creates a TLS configuration from MQTT config
func newTLSConfig(cfg *config.MQTTConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		InsecureSkipVerify: cfg.InsecureSkip, // #nosec G402 - configurable for testing environments
		MinVersion:         tls.VersionTLS12,
	}

	if cfg.CACert != "" {
		caCert, err := os.ReadFile(cfg.CACert)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA cert: %w", err)
		}

		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA cert")
		}
		tlsConfig.RootCAs = caCertPool
	}

	if cfg.ClientCert != "" && cfg.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load client cert/key: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

// Publish sends payload to the configured topic and waits for the broker.
// The wait is bounded by ctx and by the write timeout, whichever ends first.
func (c *Client) Publish(ctx context.Context, payload []byte) error {
	token := c.conn.Publish(c.topic, c.qos, false, payload)

	var expired <-chan time.Time
	if c.writeTimeout > 0 {
		timer := time.NewTimer(c.writeTimeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt publish failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-expired:
		return ErrPublishTimeout
	}
}

// Close disconnects from the MQTT broker
func (c *Client) Close() error {
	if c.conn != nil && c.conn.IsConnected() {
		c.conn.Disconnect(c.disconnectTimeout)
	}
	return nil
}
