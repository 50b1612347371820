// Package app wires the client side shared by the tracker CLI and the
// scheduler daemon: the server client, the reachability probe, the local
// mirror and the coordinator on top of them.
package app

import (
	"context"
	"fmt"

	"github.com/segyhp/loan-tracker/internal/api"
	"github.com/segyhp/loan-tracker/internal/cache"
	"github.com/segyhp/loan-tracker/internal/config"
	"github.com/segyhp/loan-tracker/internal/mirror"
	"github.com/segyhp/loan-tracker/internal/offline"

	"go.uber.org/zap"
)

// Client is the assembled client stack
type Client struct {
	Coordinator *offline.Coordinator
	Mirror      *mirror.Store

	closers []func()
}

// Close releases the heartbeat and any redis connection, in reverse order
func (c *Client) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

// NewClient builds the client stack from cfg. With a positive heartbeat
// interval the server is probed in the background instead of before every
// operation.
func NewClient(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Client, error) {
	c := &Client{}

	backend, err := c.newBackend(cfg)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Mirror = mirror.NewStore(backend, cfg.Mirror.Key)

	remote, err := api.NewClient(cfg.Client.ServerURL, cfg.GetClientTimeout())
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create server client: %w", err)
	}

	var prober offline.Prober = offline.NewHTTPProber(remote, cfg.GetClientTimeout())
	if interval := cfg.GetHeartbeatInterval(); interval > 0 {
		heartbeat := offline.NewHeartbeatProber(prober, interval, logger.Named("heartbeat"))
		if err := heartbeat.Start(ctx); err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to start heartbeat: %w", err)
		}
		c.closers = append(c.closers, heartbeat.Stop)
		prober = heartbeat
	}

	c.Coordinator = offline.NewCoordinator(remote, prober, c.Mirror, logger)
	return c, nil
}

func (c *Client) newBackend(cfg *config.Config) (mirror.Backend, error) {
	switch cfg.Mirror.Backend {
	case "file":
		return mirror.NewFileBackend(cfg.Mirror.Dir), nil
	case "redis":
		client, err := cache.NewRedisClient(cfg.Redis)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, func() { _ = client.Close() })
		return mirror.NewRedisBackend(client), nil
	case "memory":
		return mirror.NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown mirror backend %q", cfg.Mirror.Backend)
	}
}
