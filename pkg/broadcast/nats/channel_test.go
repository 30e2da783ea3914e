package nats_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"leaderbus/pkg/broadcast"
	"leaderbus/pkg/broadcast/broadcasttest"
	"leaderbus/pkg/broadcast/nats"
)

func TestNatsChannel(t *testing.T) {
	url := os.Getenv("TEST_NATS_URL")

	suite.Run(t, &broadcasttest.Suite{
		Open: func(topic string) (broadcast.Channel, error) {
			cfg := nats.DefaultConfig(url, topic)
			cfg.ReconnectWait = 100 * time.Millisecond
			return nats.NewChannel(cfg, zap.NewNop())
		},
		Integration: true,
	})
}

func TestDefaultConfig_FallsBackToLocalServer(t *testing.T) {
	cfg := nats.DefaultConfig("", "leaderbus")
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.URL)
	assert.Equal(t, "leaderbus", cfg.Subject)
}
