package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhukovaskychina/xkernel-server/kernel/common"
	"github.com/zhukovaskychina/xkernel-server/kernel/device"
	"github.com/zhukovaskychina/xkernel-server/kernel/mem"
)

func newTestSwap(t *testing.T, sectors uint32) *SwapTable {
	t.Helper()
	dev, err := device.NewBlockFile(t.TempDir(), "swap.img", sectors)
	require.NoError(t, err)
	t.Cleanup(func() { dev.Close() })
	return NewSwapTable(dev)
}

func pageWithPattern(seed byte) *mem.Page {
	pg := &mem.Page{Data: make([]byte, common.PageSize)}
	for i := range pg.Data {
		pg.Data[i] = seed + byte(i%13)
	}
	return pg
}

func TestSwapRoundTrip(t *testing.T) {
	st := newTestSwap(t, 64)

	out := pageWithPattern(7)
	ss, err := st.SwapOut(out)
	require.NoError(t, err)
	assert.Equal(t, 1, st.OccupiedSlots())

	in := &mem.Page{Data: make([]byte, common.PageSize)}
	require.NoError(t, st.SwapIn(ss, in))
	assert.Equal(t, out.Data, in.Data)
	assert.Equal(t, 0, st.OccupiedSlots())
}

func TestSwapSlotRecycled(t *testing.T) {
	st := newTestSwap(t, 64)

	ss, err := st.SwapOut(pageWithPattern(1))
	require.NoError(t, err)
	first := ss.FirstSector

	in := &mem.Page{Data: make([]byte, common.PageSize)}
	require.NoError(t, st.SwapIn(ss, in))

	// The freed slot comes back before a fresh one is carved.
	ss2, err := st.SwapOut(pageWithPattern(2))
	require.NoError(t, err)
	assert.Equal(t, first, ss2.FirstSector)
}

func TestSwapDeviceFull(t *testing.T) {
	// Room for exactly one slot.
	st := newTestSwap(t, common.SectorsPerPage)

	_, err := st.SwapOut(pageWithPattern(3))
	require.NoError(t, err)
	_, err = st.SwapOut(pageWithPattern(4))
	assert.Error(t, err)
}
