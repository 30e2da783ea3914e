// Package etcd carries election messages over etcd watches. Each channel
// writes its messages to one key of its own under the topic prefix, bound to
// a lease; every Put revision is observed by every watcher of the prefix.
package etcd

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
	"go.uber.org/zap"

	"leaderbus/pkg/broadcast"
	"leaderbus/pkg/logger"
	"leaderbus/pkg/models"
	"leaderbus/pkg/resilience"
)

const transportName = "etcd"

type Config struct {
	Endpoints   []string
	Topic       string
	DialTimeout time.Duration
	// LeaseTTL bounds how long this channel's key outlives a crashed process, in seconds.
	LeaseTTL int
	Breaker  resilience.BreakerConfig
}

func DefaultConfig(endpoints []string, topic string) Config {
	return Config{
		Endpoints:   endpoints,
		Topic:       topic,
		DialTimeout: 5 * time.Second,
		LeaseTTL:    10,
		Breaker:     resilience.DefaultBreakerConfig(),
	}
}

type Channel struct {
	client  *clientv3.Client
	session *concurrency.Session
	key     string
	hub     *broadcast.Hub
	breaker *resilience.Breaker
	log     *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

// Prefix is the key range a topic's messages are written under.
func Prefix(topic string) string {
	return fmt.Sprintf("/broadcast/%s/", topic)
}

// NewChannel connects to etcd, grants the publishing lease and starts watching
// the topic prefix. It returns once the watch is established.
func NewChannel(cfg Config, log *zap.Logger) (*Channel, error) {
	if log == nil {
		log = logger.Named("broadcast.etcd")
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	// the session keeps the publishing lease alive and revokes it on Close
	sess, err := concurrency.NewSession(cli, concurrency.WithTTL(cfg.LeaseTTL))
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("failed to create lease session: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	fail := func(err error) (*Channel, error) {
		cancel()
		sess.Close()
		cli.Close()
		return nil, err
	}

	prefix := Prefix(cfg.Topic)
	watch := cli.Watch(clientv3.WithRequireLeader(ctx), prefix,
		clientv3.WithPrefix(),
		clientv3.WithCreatedNotify(),
	)

	select {
	case resp, ok := <-watch:
		if !ok {
			return fail(fmt.Errorf("watch on %s closed before it was created", prefix))
		}
		if err := resp.Err(); err != nil {
			return fail(fmt.Errorf("failed to watch %s: %w", prefix, err))
		}
	case <-time.After(cfg.DialTimeout):
		return fail(fmt.Errorf("failed to watch %s: timed out", prefix))
	}

	hub := broadcast.NewHub()
	c := &Channel{
		client:  cli,
		session: sess,
		key:     prefix + uuid.NewString(),
		hub:     hub,
		breaker: broadcast.NewPublishBreaker(transportName, cfg.Breaker, log),
		log:     log,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go c.receive(watch, broadcast.NewFrames(transportName, hub, log))

	log.Info("etcd broadcast channel ready", zap.String("prefix", prefix), zap.String("key", c.key))
	return c, nil
}

func (c *Channel) receive(watch clientv3.WatchChan, frames *broadcast.Frames) {
	defer close(c.done)
	for resp := range watch {
		if err := resp.Err(); err != nil {
			c.log.Warn("watch error", zap.Error(err))
			continue
		}
		for _, ev := range resp.Events {
			if ev.Type != clientv3.EventTypePut {
				continue
			}
			frames.Deliver(ev.Kv.Value)
		}
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
		if _, err := c.client.Put(ctx, c.key, string(payload), clientv3.WithLease(c.session.Lease())); err != nil {
			return fmt.Errorf("failed to put message: %w", err)
		}
		return nil
	})
}

func (c *Channel) Subscribe(handler broadcast.Handler) (broadcast.Subscription, error) {
	return c.hub.Add(handler)
}

// Close stops watching and revokes the lease, which deletes this channel's key.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.hub.Close()

	err := c.session.Close()
	if err != nil {
		err = fmt.Errorf("failed to revoke lease: %w", err)
	}

	c.cancel()
	<-c.done
	if cerr := c.client.Close(); err == nil {
		err = cerr
	}
	return err
}
