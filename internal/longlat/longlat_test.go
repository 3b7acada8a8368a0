package longlat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTracker_SetClearHasLongLatency(t *testing.T) {
	tr := New()
	assert.False(t, tr.HasLongLatency(0, 1))

	tr.Set(0, 1)
	assert.True(t, tr.HasLongLatency(0, 1))
	assert.False(t, tr.HasLongLatency(0, 2), "other threads must be unaffected")
	assert.False(t, tr.HasLongLatency(1, 1), "other cores must be unaffected")

	tr.Clear(0, 1)
	assert.False(t, tr.HasLongLatency(0, 1))
}

func TestTracker_ClearIsIdempotent(t *testing.T) {
	tr := New()
	tr.Clear(5, 5) // never set
	assert.False(t, tr.HasLongLatency(5, 5))
}
