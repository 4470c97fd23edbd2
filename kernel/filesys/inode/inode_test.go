package inode

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhukovaskychina/xkernel-server/kernel/common"
	"github.com/zhukovaskychina/xkernel-server/kernel/device"
	"github.com/zhukovaskychina/xkernel-server/kernel/filesys/cache"
	"github.com/zhukovaskychina/xkernel-server/kernel/filesys/freemap"
)

func newTestRegistry(t *testing.T, sectors uint32) (*Registry, *freemap.FreeMap) {
	t.Helper()
	dev, err := device.NewBlockFile(t.TempDir(), "fs.img", sectors)
	require.NoError(t, err)
	t.Cleanup(func() { dev.Close() })
	c := cache.New(dev, cache.DefaultEntries)
	fm := freemap.New(sectors, 1)
	return NewRegistry(c, fm), fm
}

func TestDiskMarshalRoundTrip(t *testing.T) {
	d := &Disk{Length: 96257, Magic: Magic}
	for i := range d.Direct {
		d.Direct[i] = uint16(i + 1)
	}
	for i := range d.Indirect {
		d.Indirect[i] = uint16(1000 + i)
	}
	buf := d.Marshal()
	require.Equal(t, common.SectorSize, len(buf))

	// length LE, then magic LE.
	assert.Equal(t, []byte{0x01, 0x78, 0x01, 0x00}, buf[:4])
	assert.Equal(t, []byte{0x44, 0x4f, 0x4e, 0x49}, buf[4:8])

	got := UnmarshalDisk(buf)
	assert.Equal(t, d, got)
}

func TestCreateThenOpenReadsZeros(t *testing.T) {
	reg, fm := newTestRegistry(t, 256)
	sector, ok := fm.Allocate()
	require.True(t, ok)

	require.True(t, reg.Create(sector, 1000))

	i := reg.Open(sector)
	defer i.Close()
	assert.GreaterOrEqual(t, i.Length(), int64(1000))

	buf := make([]byte, 1000)
	for k := range buf {
		buf[k] = 0x5A
	}
	assert.Equal(t, 1000, i.ReadAt(buf, 0))
	assert.Equal(t, make([]byte, 1000), buf)
}

func TestOpenUniqueness(t *testing.T) {
	reg, fm := newTestRegistry(t, 256)
	sector, _ := fm.Allocate()
	require.True(t, reg.Create(sector, 10))

	a := reg.Open(sector)
	b := reg.Open(sector)
	assert.Same(t, a, b)

	b.Close()
	c := reg.Open(sector)
	assert.Same(t, a, c)

	c.Close()
	a.Close()
	assert.Equal(t, 0, reg.OpenCount())
}

func TestConcurrentOpensShareOneInode(t *testing.T) {
	reg, fm := newTestRegistry(t, 256)
	sector, _ := fm.Allocate()
	require.True(t, reg.Create(sector, 10))

	const n = 16
	got := make([]*Inode, n)
	var wg sync.WaitGroup
	for k := 0; k < n; k++ {
		wg.Add(1)
		go func(k int) {
			defer wg.Done()
			got[k] = reg.Open(sector)
		}(k)
	}
	wg.Wait()

	for k := 1; k < n; k++ {
		assert.Same(t, got[0], got[k])
	}
	assert.Equal(t, 1, reg.OpenCount())
	for k := 0; k < n; k++ {
		got[k].Close()
	}
	assert.Equal(t, 0, reg.OpenCount())
}

func TestGrowAcrossIndirectBoundary(t *testing.T) {
	reg, fm := newTestRegistry(t, 4096)
	sector, _ := fm.Allocate()
	require.True(t, reg.Create(sector, 0))

	i := reg.Open(sector)
	defer i.Close()

	// Fill every direct slot, then one byte past them.
	directBytes := NumDirect * common.SectorSize
	zeros := make([]byte, directBytes)
	assert.Equal(t, directBytes, i.WriteAt(zeros, 0))
	assert.Equal(t, 1, i.WriteAt([]byte{0xAB}, int64(directBytes)))
	assert.Equal(t, int64(directBytes+1), i.Length())

	got := make([]byte, 1)
	assert.Equal(t, 1, i.ReadAt(got, int64(directBytes)))
	assert.Equal(t, byte(0xAB), got[0])

	// Everything before the boundary still reads back as zeros.
	head := make([]byte, 4096)
	assert.Equal(t, 4096, i.ReadAt(head, int64(directBytes)-4096))
	assert.Equal(t, make([]byte, 4096), head)
}

func TestDenyWrite(t *testing.T) {
	reg, fm := newTestRegistry(t, 256)
	sector, _ := fm.Allocate()
	require.True(t, reg.Create(sector, 100))

	i := reg.Open(sector)
	defer i.Close()

	i.DenyWrite()
	assert.Equal(t, 0, i.WriteAt([]byte("data"), 200))
	assert.Equal(t, int64(100), i.Length())

	i.AllowWrite()
	assert.Equal(t, 4, i.WriteAt([]byte("data"), 200))
	assert.Equal(t, int64(204), i.Length())
}

func TestRemoveReleasesEverySector(t *testing.T) {
	reg, fm := newTestRegistry(t, 4096)
	before := fm.Free()

	sector, _ := fm.Allocate()
	// Long enough to need the indirect map.
	require.True(t, reg.Create(sector, 100000))
	assert.Less(t, fm.Free(), before)

	i := reg.Open(sector)
	i.Remove()
	i.Close()
	assert.Equal(t, before, fm.Free())
}

func TestCreateRollbackOnShortfall(t *testing.T) {
	// Too small a device for the requested length: creation fails and
	// every allocated sector comes back.
	reg, fm := newTestRegistry(t, 64)
	before := fm.Free()

	sector, _ := fm.Allocate()
	assert.False(t, reg.Create(sector, 1024*1024))
	fm.Release(sector)
	assert.Equal(t, before, fm.Free())
}

func TestWriteShortfallTruncates(t *testing.T) {
	reg, fm := newTestRegistry(t, 32)
	sector, _ := fm.Allocate()
	require.True(t, reg.Create(sector, 0))

	i := reg.Open(sector)
	defer i.Close()

	// The device has fewer than 64 KiB of sectors left, so the write
	// comes up short instead of failing outright.
	data := make([]byte, 64*1024)
	n := i.WriteAt(data, 0)
	assert.Greater(t, n, 0)
	assert.Less(t, n, len(data))
	assert.Equal(t, int64(n), i.Length())
}

func TestExtendIsIdempotent(t *testing.T) {
	reg, fm := newTestRegistry(t, 256)
	sector, _ := fm.Allocate()
	require.True(t, reg.Create(sector, 3000))

	i := reg.Open(sector)
	defer i.Close()

	free := fm.Free()
	// Writing inside the existing extent allocates nothing new.
	assert.Equal(t, 4, i.WriteAt([]byte("abcd"), 1000))
	assert.Equal(t, int64(3000), i.Length())
	assert.Equal(t, free, fm.Free())
}

func TestGrowthSurvivesClose(t *testing.T) {
	reg, fm := newTestRegistry(t, 256)
	sector, _ := fm.Allocate()
	require.True(t, reg.Create(sector, 0))

	i := reg.Open(sector)
	assert.Equal(t, 5, i.WriteAt([]byte("hello"), 0))
	i.Close()
	assert.Equal(t, 0, reg.OpenCount())

	i = reg.Open(sector)
	defer i.Close()
	assert.Equal(t, int64(5), i.Length())
	got := make([]byte, 5)
	assert.Equal(t, 5, i.ReadAt(got, 0))
	assert.Equal(t, []byte("hello"), got)
}

func TestWriteAtMaxLengthBoundary(t *testing.T) {
	if testing.Short() {
		t.Skip("allocates the full 8 MiB extent map")
	}
	reg, fm := newTestRegistry(t, 20160)
	sector, _ := fm.Allocate()
	require.True(t, reg.Create(sector, 0))

	i := reg.Open(sector)
	defer i.Close()

	// A write ending exactly at the cap succeeds in full; the byte past
	// it is truncated away.
	assert.Equal(t, 1, i.WriteAt([]byte{0x7E}, MaxLen-1))
	assert.Equal(t, int64(MaxLen), i.Length())
	assert.Equal(t, 0, i.WriteAt([]byte{0x7F}, MaxLen))
	assert.Equal(t, int64(MaxLen), i.Length())

	// Spanning the cap writes only the byte that fits.
	assert.Equal(t, 1, i.WriteAt([]byte{1, 2}, MaxLen-1))

	got := make([]byte, 1)
	assert.Equal(t, 1, i.ReadAt(got, MaxLen-1))
	assert.Equal(t, byte(1), got[0])
}
