package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBatch_CompletesOncePerPass(t *testing.T) {
	b := NewBatch([]string{"btcusdt", "ETHUSDT"})

	assert.False(t, b.Mark("BTCUSDT"))
	assert.False(t, b.Mark("BTCUSDT"), "repeat of the same symbol does not complete")
	assert.Equal(t, 1, b.Pending())
	assert.True(t, b.Mark("ETHUSDT"))
	assert.Equal(t, 2, b.Pending(), "seen-set cleared at the pass boundary")
	assert.Equal(t, uint64(1), b.Passes())

	assert.False(t, b.Mark("ETHUSDT"))
	assert.True(t, b.Mark("BTCUSDT"))
	assert.Equal(t, uint64(2), b.Passes())
}

func TestBatch_IgnoresUntracked(t *testing.T) {
	b := NewBatch([]string{"BTCUSDT"})
	assert.False(t, b.Mark("DOGEUSDT"))
	assert.Equal(t, 1, b.Pending())
}

func TestBatch_Reset(t *testing.T) {
	b := NewBatch([]string{"A", "B"})
	b.Mark("A")
	b.Reset()
	assert.False(t, b.Mark("B"))
	assert.True(t, b.Mark("A"))
	assert.Equal(t, []string{"A", "B"}, b.Symbols())
}
