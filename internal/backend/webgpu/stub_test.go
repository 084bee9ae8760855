//go:build !windows

package webgpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnavailable(t *testing.T) {
	assert.False(t, IsAvailable())
	b, err := New()
	assert.Nil(t, b)
	assert.ErrorIs(t, err, ErrUnavailable)
}
