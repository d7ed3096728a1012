package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestJobs_RejectsBadSchedule(t *testing.T) {
	jobs := NewJobs(NewHub(zap.NewNop()), zap.NewNop())
	assert.Error(t, jobs.Start("every so often"))
}

func TestJobs_HealthSweepRuns(t *testing.T) {
	hub := NewHub(zap.NewNop())
	idle := newTestClient(hub, "idle")
	idle.mu.Lock()
	idle.lastPing = time.Now().Add(-2 * pongWait)
	idle.mu.Unlock()

	jobs := NewJobs(hub, zap.NewNop())
	assert.NoError(t, jobs.Start("@every 1s"))
	defer jobs.Stop()

	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 5*time.Second, 50*time.Millisecond)
}

func TestNewLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		logger, err := NewLogger(level)
		assert.NoError(t, err, level)
		assert.NotNil(t, logger)
	}
	assert.Equal(t, "INFO", parseLevel("bogus").CapitalString())
}
