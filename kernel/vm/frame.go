package vm

import (
	"sync"

	"github.com/juju/errors"
	"github.com/zhukovaskychina/xkernel-server/kernel/mem"
	"github.com/zhukovaskychina/xkernel-server/logger"
)

// Frame is one physical page usable to back a user page. owner is nil
// while the frame is free; otherwise the pair (owner, upage) is a weak
// back-reference to the sup-page the frame currently backs, resolved by
// lookup when the frame is evicted.
type Frame struct {
	kpage *mem.Page
	owner *AddressSpace
	upage uintptr
}

// FrameTable is the global pool of frames, built once by draining the
// user-page allocator. Allocation hands out never-used frames until the
// hand wraps; from then on every allocation goes through the
// second-chance clock over the hardware accessed bits, which takes an
// unowned frame as is and evicts an owned one. The hand and the wrapped flag
// live for the table's lifetime and are never reset on process exit.
type FrameTable struct {
	mu      sync.Mutex
	frames  []*Frame
	hand    int
	wrapped bool
	swap    *SwapTable
}

// NewFrameTable drains pool into a fixed frame list.
func NewFrameTable(pool *mem.Pool, swap *SwapTable) *FrameTable {
	ft := &FrameTable{swap: swap}
	for kpage := pool.GetPage(); kpage != nil; kpage = pool.GetPage() {
		ft.frames = append(ft.frames, &Frame{kpage: kpage})
	}
	if len(ft.frames) == 0 {
		panic("frame table: no user pages to drain")
	}
	return ft
}

// Len returns how many frames the table holds.
func (ft *FrameTable) Len() int {
	return len(ft.frames)
}

// clock picks the eviction victim: each candidate whose owner still has
// the accessed bit set gets a second chance, the first one without it
// is taken. Unowned frames are taken immediately.
func (ft *FrameTable) clock() *Frame {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	for {
		f := ft.frames[ft.hand]
		ft.hand = (ft.hand + 1) % len(ft.frames)
		if f.owner == nil {
			return f
		}
		if f.owner.Pagedir.IsAccessed(f.upage) {
			f.owner.Pagedir.SetAccessed(f.upage, false)
			continue
		}
		return f
	}
}

// next returns the frame to hand out, evicting when the first linear
// pass over the table is already spent. Eviction I/O runs with the
// table lock released.
func (ft *FrameTable) next() (*Frame, error) {
	ft.mu.Lock()
	if !ft.wrapped {
		f := ft.frames[ft.hand]
		ft.hand++
		if ft.hand == len(ft.frames) {
			ft.hand = 0
			ft.wrapped = true
		}
		ft.mu.Unlock()
		return f, nil
	}
	ft.mu.Unlock()

	f := ft.clock()
	if f.owner != nil {
		if err := ft.evict(f); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return f, nil
}

// evict moves the victim's contents to a swap slot and records the slot
// on the owning sup-page, which drops the hardware mapping. A victim
// whose sup-page has meanwhile been torn down needs no recording; its
// slot goes straight back.
func (ft *FrameTable) evict(f *Frame) error {
	ss, err := ft.swap.SwapOut(f.kpage)
	if err != nil {
		return errors.Trace(err)
	}
	if !f.owner.Pages.SetSwap(f.upage, ss) {
		logger.Debugf("evicted frame for vanished page %#x", f.upage)
		ft.swap.release(ss)
	}
	return nil
}

// Alloc obtains a frame for as's user page and installs the hardware
// mapping with the requested writable bit. Fails only when eviction
// cannot find swap space.
func (ft *FrameTable) Alloc(as *AddressSpace, upage uintptr, writable bool) (*mem.Page, error) {
	f, err := ft.next()
	if err != nil {
		return nil, errors.Trace(err)
	}

	if as.Pagedir.GetPage(upage) != nil || !as.Pagedir.SetPage(upage, f.kpage, writable) {
		panic("frame: user page already mapped")
	}

	ft.mu.Lock()
	f.owner = as
	f.upage = upage
	ft.mu.Unlock()
	return f.kpage, nil
}

// Free unowns every frame belonging to as. The sup-pages themselves are
// torn down separately during process exit.
func (ft *FrameTable) Free(as *AddressSpace) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	for _, f := range ft.frames {
		if f.owner == as {
			f.owner = nil
			f.upage = 0
		}
	}
}

// release unowns the single frame backing (as, upage), if any.
func (ft *FrameTable) release(as *AddressSpace, upage uintptr) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	for _, f := range ft.frames {
		if f.owner == as && f.upage == upage {
			f.owner = nil
			f.upage = 0
			return
		}
	}
}
