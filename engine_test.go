package arbengine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantablack/arbengine/internal/safety"
)

func testEngine() *Engine {
	now := func() time.Time { return time.Unix(0, 0) }
	return &Engine{
		stop:    safety.NewEmergencyStop(now),
		breaker: safety.NewCircuitBreaker(time.Minute, 3, time.Minute, nil, now),
	}
}

func TestHealthy_OKWhenNoGateTripped(t *testing.T) {
	e := testEngine()
	assert.NoError(t, e.Healthy())
}

func TestHealthy_ReflectsEmergencyStop(t *testing.T) {
	e := testEngine()
	e.EmergencyStop("operator requested halt")
	require.Error(t, e.Healthy())
}
