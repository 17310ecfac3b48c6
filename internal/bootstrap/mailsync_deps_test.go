package bootstrap

import (
	"testing"
	"time"

	"mailsync_server/config"

	"github.com/stretchr/testify/assert"
)

func TestSyncLockTTL_CoversDeviceCodeWait(t *testing.T) {
	cfg := &config.Config{SyncInterval: 5 * time.Minute, GraphTimeout: time.Minute}

	ttl := syncLockTTL(cfg)

	assert.Equal(t, 21*time.Minute, ttl)
	assert.Greater(t, ttl, deviceCodeLifetime+cfg.GraphTimeout)
}
