package cache

import (
	"sync"
	"sync/atomic"

	"github.com/juju/errors"
	"github.com/robfig/cron/v3"
	"github.com/zhukovaskychina/xkernel-server/kernel/basic"
	"github.com/zhukovaskychina/xkernel-server/kernel/common"
	"github.com/zhukovaskychina/xkernel-server/logger"
)

// DefaultEntries is the fixed pool size of the buffer cache.
const DefaultEntries = 64

// entry is the resident copy of one device sector.
//
// sector is read under the table lock for slot indexing and re-verified
// under mu after the table lock is dropped; it changes only while holding
// both. data is guarded by mu alone. dirty and accessed are flipped from
// both sides of the lock split, so they are atomics.
type entry struct {
	mu       sync.Mutex
	sector   uint32
	dirty    atomic.Bool
	accessed atomic.Bool
	data     [common.SectorSize]byte
}

// Cache is a fixed pool of sector buffers fronting the filesystem device.
// All inode-layer I/O funnels through it.
type Cache struct {
	dev basic.BlockDevice

	mu      sync.Mutex // table lock: slot indexing and the clock hand
	entries []*entry
	hand    int

	// Statistics
	hitCount   uint64 // 缓存命中次数
	missCount  uint64 // 缓存未命中次数
	readCount  uint64 // 读取次数
	writeCount uint64 // 写入次数

	sched *cron.Cron
}

// New builds a cache of size entries over dev. Pass 0 for the default
// pool size.
func New(dev basic.BlockDevice, entries int) *Cache {
	if entries <= 0 {
		entries = DefaultEntries
	}
	c := &Cache{
		dev:     dev,
		entries: make([]*entry, entries),
	}
	for i := range c.entries {
		c.entries[i] = &entry{sector: common.SectorNone}
	}
	return c
}

// Read copies len(dst) bytes from the given sector starting at offset.
func (c *Cache) Read(sector uint32, dst []byte, offset int) error {
	checkRange(len(dst), offset)
	e, err := c.acquire(sector, true)
	if err != nil {
		return err
	}
	e.accessed.Store(true)
	copy(dst, e.data[offset:offset+len(dst)])
	e.mu.Unlock()
	atomic.AddUint64(&c.readCount, 1)
	return nil
}

// Write copies src into the sector's buffer at offset and marks it dirty.
// The device is not touched until eviction or flush.
func (c *Cache) Write(sector uint32, src []byte, offset int) error {
	checkRange(len(src), offset)
	e, err := c.acquire(sector, true)
	if err != nil {
		return err
	}
	e.dirty.Store(true)
	e.accessed.Store(true)
	copy(e.data[offset:offset+len(src)], src)
	e.mu.Unlock()
	atomic.AddUint64(&c.writeCount, 1)
	return nil
}

// Zero fills the sector's buffer with zeros and marks it dirty, without
// reading the old contents from the device.
func (c *Cache) Zero(sector uint32) error {
	e, err := c.acquire(sector, false)
	if err != nil {
		return err
	}
	for i := range e.data {
		e.data[i] = 0
	}
	e.dirty.Store(true)
	e.accessed.Store(true)
	e.mu.Unlock()
	atomic.AddUint64(&c.writeCount, 1)
	return nil
}

// Flush writes every dirty entry back to the device.
func (c *Cache) Flush() error {
	var firstErr error
	for _, e := range c.entries {
		e.mu.Lock()
		if e.dirty.Load() && e.sector != common.SectorNone {
			if err := c.dev.WriteSector(e.sector, e.data[:]); err != nil {
				if firstErr == nil {
					firstErr = errors.Annotatef(err, "flush sector %d", e.sector)
				}
				e.mu.Unlock()
				continue
			}
			e.dirty.Store(false)
		}
		e.mu.Unlock()
	}
	return firstErr
}

// StartWriteBehind begins periodic flushing on the given cron spec,
// e.g. "@every 2s". The cron scheduler rounds "@every" periods below one
// second up to one second, so "@every 300ms" flushes once a second.
func (c *Cache) StartWriteBehind(spec string) error {
	if c.sched != nil {
		return nil
	}
	sched := cron.New()
	if _, err := sched.AddFunc(spec, func() {
		if err := c.Flush(); err != nil {
			logger.Errorf("write-behind flush failed: %v", err)
		}
	}); err != nil {
		return errors.Annotatef(err, "schedule write-behind %q", spec)
	}
	sched.Start()
	c.sched = sched
	return nil
}

// Close stops the write-behind daemon and flushes whatever is dirty.
func (c *Cache) Close() error {
	if c.sched != nil {
		c.sched.Stop()
		c.sched = nil
	}
	return c.Flush()
}

// HitRatio returns the fraction of lookups that found the sector already
// resident in the pool.
func (c *Cache) HitRatio() float64 {
	total := atomic.LoadUint64(&c.hitCount) + atomic.LoadUint64(&c.missCount)
	if total == 0 {
		return 0
	}
	return float64(atomic.LoadUint64(&c.hitCount)) / float64(total)
}

func checkRange(size, offset int) {
	if size < 0 || offset < 0 || offset+size > common.SectorSize {
		panic("cache: byte range outside sector")
	}
}

// acquire returns the entry holding sector, with the entry lock held.
// On a miss it claims an eviction victim, retargets it, and (when readIn
// is set) fills it from the device.
func (c *Cache) acquire(sector uint32, readIn bool) (*entry, error) {
	for {
		c.mu.Lock()
		var e *entry
		for _, cand := range c.entries {
			if cand.sector == sector {
				e = cand
				break
			}
		}
		c.mu.Unlock()

		if e != nil {
			e.mu.Lock()
			if e.sector == sector {
				atomic.AddUint64(&c.hitCount, 1)
				return e, nil
			}
			// Evicted while we waited; start over.
			e.mu.Unlock()
			continue
		}

		v, err := c.victim()
		if err != nil {
			return nil, err
		}

		// Retarget under the table lock so concurrent lookups see a
		// consistent index. If someone else brought the sector in while
		// we were evicting, keep theirs and put the victim back.
		c.mu.Lock()
		dup := false
		for _, cand := range c.entries {
			if cand.sector == sector {
				dup = true
				break
			}
		}
		if dup {
			c.mu.Unlock()
			v.mu.Unlock()
			continue
		}
		v.sector = sector
		c.mu.Unlock()

		if readIn {
			if err := c.dev.ReadSector(sector, v.data[:]); err != nil {
				c.mu.Lock()
				v.sector = common.SectorNone
				c.mu.Unlock()
				v.mu.Unlock()
				return nil, err
			}
		}
		atomic.AddUint64(&c.missCount, 1)
		return v, nil
	}
}

// victim picks an entry by second-chance clock and returns it locked and
// clean. The table lock is never held across the write-back, so a chosen
// candidate is re-checked after its entry lock is taken and the whole
// selection restarts when the check fails.
func (c *Cache) victim() (*entry, error) {
	for {
		c.mu.Lock()
		var cand *entry
		for i := 0; i < len(c.entries); i++ {
			e := c.entries[c.hand]
			c.hand = (c.hand + 1) % len(c.entries)
			if e.accessed.Load() {
				e.accessed.Store(false)
				continue
			}
			cand = e
			break
		}
		c.mu.Unlock()

		if cand == nil {
			// Every entry had its second chance spent this sweep; the
			// next sweep finds them all clear.
			continue
		}

		cand.mu.Lock()
		if cand.accessed.Load() {
			cand.mu.Unlock()
			continue
		}
		if cand.dirty.Load() {
			if err := c.dev.WriteSector(cand.sector, cand.data[:]); err != nil {
				cand.mu.Unlock()
				return nil, errors.Annotatef(err, "evict sector %d", cand.sector)
			}
			cand.dirty.Store(false)
		}
		return cand, nil
	}
}
