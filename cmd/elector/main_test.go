package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	config "leaderbus/configs"
	"leaderbus/pkg/broadcast/memory"
)

func TestOpenChannel_Memory(t *testing.T) {
	ch, err := openChannel(&config.Config{BroadcastDriver: "memory"}, zap.NewNop())
	require.NoError(t, err)
	defer ch.Close()

	assert.IsType(t, &memory.Channel{}, ch)
}

func TestOpenChannel_UnknownDriver(t *testing.T) {
	_, err := openChannel(&config.Config{BroadcastDriver: "carrier-pigeon"}, zap.NewNop())
	assert.ErrorContains(t, err, "carrier-pigeon")
}
