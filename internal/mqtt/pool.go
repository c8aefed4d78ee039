package mqtt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/ibs-source/queue-receiver/internal/config"
	"github.com/ibs-source/queue-receiver/internal/log"
)

// Pool spreads publishes over several MQTT connections
type Pool struct {
	clients []*Client
	next    atomic.Uint64
	log     *log.Logger
}

// NewPool creates a pool of cfg.PoolSize connected clients
func NewPool(cfg *config.MQTTConfig, logger *log.Logger) (*Pool, error) {
	size := max(cfg.PoolSize, 1)

	// Client IDs must be unique per broker, so several receivers
	// sharing one config get distinct ids.
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	baseClientID := fmt.Sprintf("%s-%s-%d", cfg.ClientID, hostname, os.Getpid())

	clients := make([]*Client, 0, size)
	for i := range size {
		clientCfg := *cfg
		clientCfg.ClientID = fmt.Sprintf("%s-%d", baseClientID, i)

		client, err := NewClient(&clientCfg, logger)
		if err != nil {
			for _, c := range clients {
				_ = c.Close()
			}
			return nil, fmt.Errorf("failed to create client %d: %w", i, err)
		}
		clients = append(clients, client)
	}

	logger.Info("MQTT pool ready: %d connections to %s", size, cfg.Broker)
	return newPool(clients, logger), nil
}

func newPool(clients []*Client, logger *log.Logger) *Pool {
	return &Pool{clients: clients, log: logger}
}

// Publish publishes on the next connection in round-robin order
func (p *Pool) Publish(ctx context.Context, payload []byte) error {
	idx := p.next.Add(1) % uint64(len(p.clients)) // #nosec G115
	return p.clients[idx].Publish(ctx, payload)
}

// Size returns the number of connections
func (p *Pool) Size() int {
	return len(p.clients)
}

// Close closes all connections in the pool
func (p *Pool) Close() error {
	var errs []error
	for i, client := range p.clients {
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close client %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
