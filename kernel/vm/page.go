package vm

import (
	"sync"

	"github.com/zhukovaskychina/xkernel-server/kernel/basic"
	"github.com/zhukovaskychina/xkernel-server/kernel/common"
	"github.com/zhukovaskychina/xkernel-server/kernel/mem"
	"github.com/zhukovaskychina/xkernel-server/logger"
)

// Page is a supplemental page-table entry: where one user page's
// contents live. At most one backing is meaningful at a time — the
// resident frame while active, otherwise a file region or a swap slot.
// A page with none of the three is zero-filled on first touch.
type Page struct {
	upage    uintptr
	writable bool
	active   bool
	frame    *mem.Page
	file     basic.File
	fileOff  int64
	slot     *SwapSlot
}

// PageTable is one address space's set of sup-pages, keyed by user page
// base. It belongs to a single process; the mutex exists because the
// eviction path of another process's allocation may reach in to record
// a swap slot.
type PageTable struct {
	mu    sync.Mutex
	as    *AddressSpace
	pages map[uintptr]*Page
}

func newPageTable(as *AddressSpace) *PageTable {
	return &PageTable{as: as, pages: make(map[uintptr]*Page)}
}

func (pt *PageTable) find(upage uintptr) *Page {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.pages[upage]
}

// alloc registers a new sup-page. Returns nil if upage already has one.
func (pt *PageTable) alloc(upage uintptr, writable bool) *Page {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	if _, ok := pt.pages[upage]; ok {
		return nil
	}
	p := &Page{upage: upage, writable: writable}
	pt.pages[upage] = p
	return p
}

// InTable reports whether va's page has a sup-page entry.
func (pt *PageTable) InTable(va uintptr) bool {
	return va != 0 && pt.find(mem.RoundDown(va)) != nil
}

// SetFile registers upage as demand-loaded from f at off.
func (pt *PageTable) SetFile(upage uintptr, f basic.File, off int64) bool {
	p := pt.alloc(upage, true)
	if p == nil {
		return false
	}
	pt.mu.Lock()
	p.file = f
	p.fileOff = off
	pt.mu.Unlock()
	return true
}

// SetFrame installs a resident frame for upage, creating the sup-page
// lazily on the stack-growth path.
func (pt *PageTable) SetFrame(upage uintptr, kpage *mem.Page, writable bool) {
	p := pt.find(upage)
	if p == nil {
		p = pt.alloc(upage, writable)
	}
	if p.writable != writable {
		panic("page: writable bit changed across materialization")
	}
	pt.mu.Lock()
	p.active = true
	p.frame = kpage
	pt.mu.Unlock()
}

// SetSwap records that upage's contents moved to the given swap slot,
// deactivating the page and dropping its hardware mapping. Returns
// false when no sup-page exists anymore for upage.
func (pt *PageTable) SetSwap(upage uintptr, ss *SwapSlot) bool {
	p := pt.find(upage)
	if p == nil {
		return false
	}
	pt.mu.Lock()
	p.slot = ss
	p.active = false
	p.frame = nil
	pt.mu.Unlock()
	pt.as.Pagedir.ClearPage(upage)
	return true
}

// IsWritable reports the sup-page's writable flag.
func (pt *PageTable) IsWritable(upage uintptr) bool {
	p := pt.find(upage)
	if p == nil {
		panic("page: writability of unregistered page")
	}
	return p.writable
}

// fileBytesInPage returns how many of the page's bytes the backing file
// actually covers.
func (p *Page) fileBytesInPage() int64 {
	left := p.file.Length() - p.fileOff
	if left < 0 {
		return 0
	}
	if left > common.PageSize {
		return common.PageSize
	}
	return left
}

// WriteData materializes upage's contents into its assigned frame from
// the backing source and clears the hardware dirty bit. Returns false
// when there is nothing to pull from.
func (pt *PageTable) WriteData(upage uintptr) bool {
	p := pt.find(upage)
	if p == nil || p.frame == nil {
		return false
	}
	if p.file != nil {
		size := p.fileBytesInPage()
		n := p.file.ReadAt(p.frame.Data[:size], p.fileOff)
		pt.as.Pagedir.SetDirty(upage, false)
		return int64(n) == size
	}
	if p.slot != nil {
		if err := pt.as.vm.Swap.SwapIn(p.slot, p.frame); err != nil {
			logger.Errorf("swap in for page %#x: %v", upage, err)
			return false
		}
		pt.mu.Lock()
		p.slot = nil
		pt.mu.Unlock()
		pt.as.Pagedir.SetDirty(upage, false)
		return true
	}
	return false
}

// Remove unregisters upage's sup-page and clears its hardware mapping.
// A resident page's frame goes back to the pool of evictable frames.
func (pt *PageTable) Remove(upage uintptr) {
	p := pt.find(upage)
	if p == nil {
		return
	}
	pt.as.Pagedir.ClearPage(upage)
	if p.active {
		pt.as.vm.Frames.release(pt.as, upage)
	}
	pt.mu.Lock()
	delete(pt.pages, upage)
	pt.mu.Unlock()
}

// Unmap tears down every sup-page backed by f, writing back the pages
// the process actually dirtied — exactly the byte count the file covers
// in each page, at the page's recorded offset.
func (pt *PageTable) Unmap(f basic.File) {
	for {
		pt.mu.Lock()
		var p *Page
		for _, cand := range pt.pages {
			if cand.file == f {
				p = cand
				break
			}
		}
		pt.mu.Unlock()
		if p == nil {
			return
		}
		if p.active && p.frame != nil && pt.as.Pagedir.IsDirty(p.upage) {
			size := p.fileBytesInPage()
			f.WriteAt(p.frame.Data[:size], p.fileOff)
		}
		pt.Remove(p.upage)
	}
}

// Fault services a page fault at uaddr with the faulting thread's stack
// pointer; stack growth is considered.
func (pt *PageTable) Fault(uaddr, esp uintptr, write bool) bool {
	return pt.fetch(uaddr, esp, true, write)
}

// Validate checks and materializes uaddr for a kernel access on the
// process's behalf; stack growth is not considered.
func (pt *PageTable) Validate(uaddr uintptr, write bool) bool {
	return pt.fetch(uaddr, 0, false, write)
}

func (pt *PageTable) fetch(uaddr, esp uintptr, growStack, write bool) bool {
	if !mem.IsUserVaddr(uaddr) {
		return false
	}
	upage := mem.RoundDown(uaddr)
	p := pt.find(upage)

	if p == nil {
		if !growStack || !pt.as.vm.stackGrowth(uaddr, esp) {
			return false
		}
		kpage, err := pt.as.vm.Frames.Alloc(pt.as, upage, true)
		if err != nil {
			logger.Errorf("stack growth at %#x: %v", uaddr, err)
			return false
		}
		for i := range kpage.Data {
			kpage.Data[i] = 0
		}
		pt.SetFrame(upage, kpage, true)
		return true
	}

	if write && !p.writable {
		return false
	}
	if p.active {
		// Already resident; nothing to materialize.
		return true
	}

	kpage, err := pt.as.vm.Frames.Alloc(pt.as, upage, p.writable)
	if err != nil {
		logger.Errorf("materialize page %#x: %v", upage, err)
		return false
	}
	pt.SetFrame(upage, kpage, p.writable)
	if !pt.WriteData(upage) {
		// No backing source: a zero-fill page on its first touch.
		for i := range kpage.Data {
			kpage.Data[i] = 0
		}
	}
	return true
}
