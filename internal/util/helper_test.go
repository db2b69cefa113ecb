package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneSlice(t *testing.T) {
	src := []byte{1, 2, 3}

	clone := CloneSlice(src, 0)
	assert.Equal(t, src, clone)
	clone[0] = 9
	assert.Equal(t, byte(1), src[0])

	assert.Equal(t, []byte{1, 2, 3, 0}, CloneSlice(src, 4))
	assert.Equal(t, []byte{1}, CloneSlice(src, 1))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0, Clamp(-5, 0, 255))
	assert.Equal(t, 255, Clamp(300, 0, 255))
	assert.InDelta(t, 0.5, Clamp(0.5, 0.0, 1.0), 0)
}

func TestGCD(t *testing.T) {
	assert.Equal(t, 50, GCD(4000, 150))
	assert.Equal(t, 7, GCD(7, 0))
	assert.Equal(t, 1, GCD(4000, 7))
}
