package pinwallet

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/layer-3/pinwallet/adapters/events"
	"github.com/layer-3/pinwallet/adapters/store"
	"github.com/layer-3/pinwallet/internal/config"
	"github.com/layer-3/pinwallet/ports"
	"github.com/redis/go-redis/v9"
)

// openRedis connects to redisURL and checks the connection
func openRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(options)

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// OpenStore opens the session backend selected by cfg. The returned close
// function releases it.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (ports.Store, func() error, error) {
	nop := func() error { return nil }

	switch cfg.Backend {
	case "memory":
		return store.NewMemoryStore(), nop, nil
	case "file":
		fs, err := store.NewFileStore(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return fs, nop, nil
	case "redis":
		client, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return store.NewRedisStore(client, cfg.Prefix), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// openEvents creates the event pub/sub selected by cfg
func openEvents(ctx context.Context, cfg config.EventsConfig, logger watermill.LoggerAdapter) (events.PubSub, func() error, error) {
	switch cfg.Backend {
	case "gochannel":
		ps := events.NewInProcess(logger)
		return ps, ps.Close, nil
	case "redis":
		client, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return events.PubSub{}, nil, err
		}
		ps, err := events.NewRedisStream(client, cfg.ConsumerGroup, logger)
		if err != nil {
			_ = client.Close()
			return events.PubSub{}, nil, err
		}
		return ps, func() error {
			psErr := ps.Close()
			if err := client.Close(); err != nil {
				return err
			}
			return psErr
		}, nil
	default:
		return events.PubSub{}, nil, fmt.Errorf("unknown events backend %q", cfg.Backend)
	}
}
