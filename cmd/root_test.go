package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/promnight/prom-match/internal/config"
	"github.com/promnight/prom-match/internal/store"
)

func TestOpenStoreMemory(t *testing.T) {
	cfg := &config.Config{Database: config.DatabaseConfig{Driver: config.DriverMemory}}

	s, pg, closeStore, err := openStore(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer closeStore()

	assert.Nil(t, pg)
	assert.IsType(t, &store.Memory{}, s)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "migrate", "seed", "match", "version"} {
		assert.True(t, names[want], "missing %s command", want)
	}
}
