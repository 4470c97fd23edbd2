package freemap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllocateUniqueUntilExhausted(t *testing.T) {
	fm := New(70, 2)
	assert.Equal(t, uint32(68), fm.Free())

	seen := make(map[uint32]bool)
	for {
		s, ok := fm.Allocate()
		if !ok {
			break
		}
		assert.False(t, seen[s], "sector %d handed out twice", s)
		assert.GreaterOrEqual(t, s, uint32(2), "reserved sector %d handed out", s)
		assert.Less(t, s, uint32(70))
		seen[s] = true
	}
	assert.Equal(t, 68, len(seen))
	assert.Equal(t, uint32(0), fm.Free())
}

func TestReleaseMakesSectorReusable(t *testing.T) {
	fm := New(8, 1)
	var last uint32
	for {
		s, ok := fm.Allocate()
		if !ok {
			break
		}
		last = s
	}
	assert.Equal(t, uint32(0), fm.Free())

	fm.Release(last)
	assert.Equal(t, uint32(1), fm.Free())
	s, ok := fm.Allocate()
	assert.True(t, ok)
	assert.Equal(t, last, s)
}

func TestDoubleReleasePanics(t *testing.T) {
	fm := New(8, 1)
	s, ok := fm.Allocate()
	assert.True(t, ok)
	fm.Release(s)
	assert.Panics(t, func() { fm.Release(s) })
}
