package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameTableDrainsPool(t *testing.T) {
	vmsys := newTestVM(t, 5, 64)
	assert.Equal(t, 5, vmsys.Frames.Len())
}

func TestFirstPassIsLinear(t *testing.T) {
	vmsys := newTestVM(t, 4, 64)
	as := NewAddressSpace(vmsys)
	esp := uintptr(0xbff00000)

	require.True(t, as.Pages.Fault(0xbff01000, esp, true))
	require.True(t, as.Pages.Fault(0xbff02000, esp, true))
	require.True(t, as.Pages.Fault(0xbff03000, esp, true))

	ft := vmsys.Frames
	assert.False(t, ft.wrapped)
	assert.Nil(t, ft.frames[3].owner)
	for i := 0; i < 3; i++ {
		assert.Equal(t, as, ft.frames[i].owner)
	}
	// Nothing was evicted on the never-used pass.
	assert.Equal(t, 0, vmsys.Swap.OccupiedSlots())
}

func TestClockGivesSecondChance(t *testing.T) {
	vmsys := newTestVM(t, 2, 64)
	as := NewAddressSpace(vmsys)
	esp := uintptr(0xbff00000)
	pageA := uintptr(0xbff01000)
	pageB := uintptr(0xbff02000)

	require.True(t, as.Pages.Fault(pageA, esp, true))
	require.True(t, as.Pages.Fault(pageB, esp, true))

	// Spend pageA's accessed bit but keep pageB's hot right before the
	// next allocation, and park the hand on B's frame: the clock must
	// skip B once and take A.
	as.Pagedir.SetAccessed(pageA, false)
	as.Pagedir.SetAccessed(pageB, true)
	vmsys.Frames.hand = 1

	require.True(t, as.Pages.Fault(0xbff03000, esp, true))
	assert.Nil(t, as.Pagedir.GetPage(pageA))
	assert.NotNil(t, as.Pagedir.GetPage(pageB))
}

func TestFreeUnownsOnlyTargetSpace(t *testing.T) {
	vmsys := newTestVM(t, 4, 64)
	esp := uintptr(0xbff00000)
	as1 := NewAddressSpace(vmsys)
	as2 := NewAddressSpace(vmsys)

	require.True(t, as1.Pages.Fault(0xbff01000, esp, true))
	require.True(t, as2.Pages.Fault(0xbff01000, esp, true))

	vmsys.Frames.Free(as1)

	owned1, owned2 := 0, 0
	for _, f := range vmsys.Frames.frames {
		switch f.owner {
		case as1:
			owned1++
		case as2:
			owned2++
		}
	}
	assert.Equal(t, 0, owned1)
	assert.Equal(t, 1, owned2)
}
