// Package nats carries election messages over a NATS subject.
package nats

import (
	"context"
	"fmt"
	"sync"
	"time"

	natsp "github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"leaderbus/pkg/broadcast"
	"leaderbus/pkg/logger"
	"leaderbus/pkg/models"
	"leaderbus/pkg/resilience"
)

const transportName = "nats"

type Config struct {
	URL           string
	Subject       string
	Name          string
	ReconnectWait time.Duration
	Breaker       resilience.BreakerConfig
}

func DefaultConfig(url, subject string) Config {
	if url == "" {
		url = natsp.DefaultURL
	}
	return Config{
		URL:           url,
		Subject:       subject,
		Name:          "leaderbus",
		ReconnectWait: time.Second,
		Breaker:       resilience.DefaultBreakerConfig(),
	}
}

type Channel struct {
	conn    *natsp.Conn
	sub     *natsp.Subscription
	subject string
	hub     *broadcast.Hub
	breaker *resilience.Breaker
	log     *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// NewChannel connects to NATS and subscribes to cfg.Subject. The subscription
// is flushed to the server before NewChannel returns.
func NewChannel(cfg Config, log *zap.Logger) (*Channel, error) {
	if log == nil {
		log = logger.Named("broadcast.nats")
	}

	conn, err := natsp.Connect(cfg.URL,
		natsp.Name(cfg.Name),
		natsp.MaxReconnects(-1),
		natsp.ReconnectWait(cfg.ReconnectWait),
		natsp.DisconnectErrHandler(func(_ *natsp.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		natsp.ReconnectHandler(func(nc *natsp.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	hub := broadcast.NewHub()
	frames := broadcast.NewFrames(transportName, hub, log)

	sub, err := conn.Subscribe(cfg.Subject, func(m *natsp.Msg) {
		frames.Deliver(m.Data)
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", cfg.Subject, err)
	}
	if err := conn.Flush(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to flush subscription: %w", err)
	}

	log.Info("nats broadcast channel ready", zap.String("url", cfg.URL), zap.String("subject", cfg.Subject))
	return &Channel{
		conn:    conn,
		sub:     sub,
		subject: cfg.Subject,
		hub:     hub,
		breaker: broadcast.NewPublishBreaker(transportName, cfg.Breaker, log),
		log:     log,
	}, nil
}

// Publish hands msg to the connection. NATS buffers outbound messages, so
// ctx is only checked up front.
func (c *Channel) Publish(ctx context.Context, msg models.Message) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return broadcast.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := models.Encode(msg)
	if err != nil {
		return err
	}

	return c.breaker.Execute(func() error {
		if err := c.conn.Publish(c.subject, payload); err != nil {
			return fmt.Errorf("failed to publish to nats: %w", err)
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
	err := c.sub.Unsubscribe()
	c.conn.Close()
	return err
}
