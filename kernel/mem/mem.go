package mem

import (
	"sync"

	"github.com/zhukovaskychina/xkernel-server/kernel/common"
)

// UserTop is the first address past user space.
const UserTop uintptr = 0xC0000000

// RoundDown returns the base of the page containing va.
func RoundDown(va uintptr) uintptr {
	return va &^ (common.PageSize - 1)
}

// IsUserVaddr reports whether va lies in user space.
func IsUserVaddr(va uintptr) bool {
	return va < UserTop
}

// Page is one kernel-addressable page of backing memory.
type Page struct {
	Data []byte
}

// Pool is the fixed user-page allocator. The frame table drains it once
// at boot; afterwards GetPage returns nil and allocation goes through
// eviction instead.
type Pool struct {
	mu   sync.Mutex
	free []*Page
}

// NewPool builds a pool of n user pages.
func NewPool(n int) *Pool {
	p := &Pool{free: make([]*Page, 0, n)}
	for i := 0; i < n; i++ {
		p.free = append(p.free, &Page{Data: make([]byte, common.PageSize)})
	}
	return p
}

// GetPage takes one page out of the pool, or nil when it is drained.
func (p *Pool) GetPage() *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) == 0 {
		return nil
	}
	pg := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	return pg
}

// FreePage puts a page back.
func (p *Pool) FreePage(pg *Page) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, pg)
}
