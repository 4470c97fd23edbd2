package vm

import (
	"github.com/zhukovaskychina/xkernel-server/kernel/basic"
	"github.com/zhukovaskychina/xkernel-server/kernel/mem"
)

// DefaultStackLimit caps how far below the user-address ceiling the
// stack may grow.
const DefaultStackLimit = 8 * 1024 * 1024

// VM bundles the machine-wide paging state: the frame table and the
// swap pool shared by every address space.
type VM struct {
	Frames     *FrameTable
	Swap       *SwapTable
	stackLimit uintptr
}

// NewVM drains the user-page pool into the frame table and prepares the
// swap pool on swapDev. stackLimit of 0 selects the default cap.
func NewVM(pool *mem.Pool, swapDev basic.BlockDevice, stackLimit int64) *VM {
	if stackLimit <= 0 {
		stackLimit = DefaultStackLimit
	}
	st := NewSwapTable(swapDev)
	return &VM{
		Frames:     NewFrameTable(pool, st),
		Swap:       st,
		stackLimit: uintptr(stackLimit),
	}
}

// stackGrowth decides whether a fault at uaddr, with the thread's stack
// pointer at esp, is legitimate stack growth: the PUSH/PUSHA touch
// points just below esp, or anything at or above it, within the cap.
func (v *VM) stackGrowth(uaddr, esp uintptr) bool {
	if uaddr < mem.UserTop-v.stackLimit {
		return false
	}
	return uaddr == esp-4 || uaddr == esp-32 || uaddr >= esp
}

// AddressSpace is one process's view of memory: its hardware page
// directory plus its supplemental page table.
type AddressSpace struct {
	vm      *VM
	Pagedir *mem.Pagedir
	Pages   *PageTable
}

func NewAddressSpace(v *VM) *AddressSpace {
	as := &AddressSpace{vm: v, Pagedir: mem.NewPagedir()}
	as.Pages = newPageTable(as)
	return as
}

// Destroy tears the address space down on process exit: every sup-page
// is dropped with its hardware mapping, then the space's frames are
// unowned for reuse.
func (as *AddressSpace) Destroy() {
	as.Pages.mu.Lock()
	upages := make([]uintptr, 0, len(as.Pages.pages))
	for upage := range as.Pages.pages {
		upages = append(upages, upage)
	}
	as.Pages.mu.Unlock()
	for _, upage := range upages {
		as.Pagedir.ClearPage(upage)
		as.Pages.mu.Lock()
		delete(as.Pages.pages, upage)
		as.Pages.mu.Unlock()
	}
	as.vm.Frames.Free(as)
}
