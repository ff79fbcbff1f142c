package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBarrierZeroTotalIsReleased(t *testing.T) {
	b := NewBarrier(0)
	assert.True(t, b.Released())
	<-b.Done()
}

func TestBarrierReleasesAtTotal(t *testing.T) {
	b := NewBarrier(3)
	b.Observe(1)
	b.Observe(2)
	assert.False(t, b.Released())

	b.Observe(3)
	assert.True(t, b.Released())

	// Further observations must not close the channel twice
	b.Observe(3)
	assert.Equal(t, 3, b.Total())
}
