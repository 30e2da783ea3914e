package redis_test

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"leaderbus/pkg/broadcast"
	"leaderbus/pkg/broadcast/broadcasttest"
	"leaderbus/pkg/broadcast/redis"
)

func TestRedisChannel(t *testing.T) {
	addr := fmt.Sprintf("%s:%s", getEnv("TEST_REDIS_HOST", "localhost"), getEnv("TEST_REDIS_PORT", "6379"))

	suite.Run(t, &broadcasttest.Suite{
		Open: func(topic string) (broadcast.Channel, error) {
			cfg := redis.DefaultConfig(addr, topic)
			cfg.DialTimeout = time.Second
			return redis.NewChannel(cfg, zap.NewNop())
		},
		Integration: true,
	})
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
