// Package redis carries election messages over a Redis pub/sub channel.
package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"leaderbus/pkg/broadcast"
	"leaderbus/pkg/logger"
	"leaderbus/pkg/models"
	"leaderbus/pkg/resilience"
)

const transportName = "redis"

// Config holds Redis connection configuration
type Config struct {
	Addr         string
	Topic        string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolTimeout  time.Duration
	Breaker      resilience.BreakerConfig
}

// DefaultConfig returns defaults sized for a handful of small messages per
// second; election traffic never needs a big pool.
func DefaultConfig(addr, topic string) Config {
	return Config{
		Addr:         addr,
		Topic:        topic,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
		Breaker:      resilience.DefaultBreakerConfig(),
	}
}

type Channel struct {
	client  *redis.Client
	pubsub  *redis.PubSub
	topic   string
	hub     *broadcast.Hub
	breaker *resilience.Breaker
	log     *zap.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewChannel connects to Redis and subscribes to cfg.Topic. It returns once
// the subscription is confirmed by the server.
func NewChannel(cfg Config, log *zap.Logger) (*Channel, error) {
	if log == nil {
		log = logger.Named("broadcast.redis")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolTimeout:  cfg.PoolTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	pubsub := client.Subscribe(ctx, cfg.Topic)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		client.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", cfg.Topic, err)
	}

	hub := broadcast.NewHub()
	c := &Channel{
		client:  client,
		pubsub:  pubsub,
		topic:   cfg.Topic,
		hub:     hub,
		breaker: broadcast.NewPublishBreaker(transportName, cfg.Breaker, log),
		log:     log,
		done:    make(chan struct{}),
	}
	go c.receive(broadcast.NewFrames(transportName, hub, log))

	log.Info("redis broadcast channel ready", zap.String("addr", cfg.Addr), zap.String("topic", cfg.Topic))
	return c, nil
}

func (c *Channel) receive(frames *broadcast.Frames) {
	defer close(c.done)
	// the go-redis channel is closed by pubsub.Close
	for msg := range c.pubsub.Channel() {
		frames.Deliver([]byte(msg.Payload))
	}
}

func (c *Channel) Publish(ctx context.Context, msg models.Message) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return broadcast.ErrClosed
	}

	payload, err := models.Encode(msg)
	if err != nil {
		return err
	}

	return c.breaker.Execute(func() error {
		if err := c.client.Publish(ctx, c.topic, payload).Err(); err != nil {
			return fmt.Errorf("failed to publish to redis: %w", err)
		}
		return nil
	})
}

func (c *Channel) Subscribe(handler broadcast.Handler) (broadcast.Subscription, error) {
	return c.hub.Add(handler)
}

func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.hub.Close()
	err := c.pubsub.Close()
	<-c.done
	if cerr := c.client.Close(); err == nil {
		err = cerr
	}
	return err
}
