package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesSpecLiterals(t *testing.T) {
	var cfg = Default()
	assert.Equal(t, 30*time.Second, cfg.Conversation.AckTimeout)
	assert.Equal(t, 300*time.Second, cfg.Conversation.MsgTimeout)
	assert.Equal(t, 32, cfg.Broker.PendingRingCapacity)
	assert.Equal(t, 5, cfg.Broker.MaxDeliveryAttempts)
	assert.Equal(t, 1800*time.Second, cfg.HTTP.TimeoutGet)
}

func TestLoadOverlaysOnlyPresentFields(t *testing.T) {
	var dir = t.TempDir()
	var path = filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
broker:
  pendingRingCapacity: 64
`), 0o644))

	var cfg, err = Load(path)
	require.NoError(t, err)

	assert.Equal(t, 64, cfg.Broker.PendingRingCapacity)
	assert.Equal(t, 5, cfg.Broker.MaxDeliveryAttempts, "unconfigured fields keep their default")
	assert.Equal(t, 30*time.Second, cfg.Conversation.AckTimeout)
}

func TestLoadMissingFileFails(t *testing.T) {
	var _, err = Load("/nonexistent/config.yaml")
	require.Error(t, err)
}
