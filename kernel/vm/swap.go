package vm

import (
	"container/list"
	"sync"

	"github.com/juju/errors"
	"github.com/zhukovaskychina/xkernel-server/kernel/basic"
	"github.com/zhukovaskychina/xkernel-server/kernel/common"
	"github.com/zhukovaskychina/xkernel-server/kernel/mem"
)

// SwapSlot is one page worth of contiguous sectors on the swap device.
// A slot is on exactly one of the occupied and free lists.
type SwapSlot struct {
	FirstSector uint32
	elem        *list.Element
}

// SwapTable manages the swap device as fixed-size slots. A high-water
// cursor tracks the first never-carved sector; released slots recycle
// through the free list before new ones are carved.
type SwapTable struct {
	mu         sync.Mutex
	dev        basic.BlockDevice
	occupied   *list.List
	free       *list.List
	nextSector uint32
}

func NewSwapTable(dev basic.BlockDevice) *SwapTable {
	return &SwapTable{
		dev:      dev,
		occupied: list.New(),
		free:     list.New(),
	}
}

// getSlot claims a slot: a recycled one when available, else a fresh
// carve at the high-water mark. Fails when the device is full.
func (st *SwapTable) getSlot() (*SwapSlot, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.free.Len() > 0 {
		ss := st.free.Remove(st.free.Front()).(*SwapSlot)
		ss.elem = st.occupied.PushBack(ss)
		return ss, nil
	}
	if st.nextSector+common.SectorsPerPage > st.dev.Sectors() {
		return nil, errors.Errorf("swap device full at sector %d", st.nextSector)
	}
	ss := &SwapSlot{FirstSector: st.nextSector}
	st.nextSector += common.SectorsPerPage
	ss.elem = st.occupied.PushBack(ss)
	return ss, nil
}

// release puts a claimed slot straight onto the free list; used when a
// swap-out is abandoned after its slot was claimed.
func (st *SwapTable) release(ss *SwapSlot) {
	st.mu.Lock()
	st.occupied.Remove(ss.elem)
	ss.elem = st.free.PushBack(ss)
	st.mu.Unlock()
}

// SwapOut writes kpage's contents into a slot and returns it. The
// sector I/O runs outside the table lock.
func (st *SwapTable) SwapOut(kpage *mem.Page) (*SwapSlot, error) {
	ss, err := st.getSlot()
	if err != nil {
		return nil, errors.Trace(err)
	}
	for i := uint32(0); i < common.SectorsPerPage; i++ {
		from := i * common.SectorSize
		if err := st.dev.WriteSector(ss.FirstSector+i, kpage.Data[from:from+common.SectorSize]); err != nil {
			st.release(ss)
			return nil, errors.Annotatef(err, "swap out to sector %d", ss.FirstSector+i)
		}
	}
	return ss, nil
}

// SwapIn reads the slot's sectors back into kpage and recycles the slot
// onto the free list.
func (st *SwapTable) SwapIn(ss *SwapSlot, kpage *mem.Page) error {
	for i := uint32(0); i < common.SectorsPerPage; i++ {
		from := i * common.SectorSize
		if err := st.dev.ReadSector(ss.FirstSector+i, kpage.Data[from:from+common.SectorSize]); err != nil {
			return errors.Annotatef(err, "swap in from sector %d", ss.FirstSector+i)
		}
	}
	st.mu.Lock()
	st.occupied.Remove(ss.elem)
	ss.elem = st.free.PushBack(ss)
	st.mu.Unlock()
	return nil
}

// OccupiedSlots reports how many slots currently hold evicted pages.
func (st *SwapTable) OccupiedSlots() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.occupied.Len()
}
