package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPtrAndOr(t *testing.T) {
	p := Ptr(0.3)
	assert.Equal(t, 0.3, *p)
	assert.Equal(t, 0.3, Or(p, 1.0))
	assert.Equal(t, 1.0, Or[float64](nil, 1.0))
	assert.Equal(t, "", Or[string](nil, ""))
}
