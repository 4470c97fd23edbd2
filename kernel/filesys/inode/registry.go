package inode

import (
	"sync"
	"sync/atomic"

	"github.com/zhukovaskychina/xkernel-server/kernel/basic"
	"github.com/zhukovaskychina/xkernel-server/kernel/common"
	"github.com/zhukovaskychina/xkernel-server/kernel/filesys/cache"
	"github.com/zhukovaskychina/xkernel-server/logger"
	"github.com/zhukovaskychina/xkernel-server/util"
)

// Registry is the set of open in-memory inodes. At most one in-memory
// inode exists per sector; repeat opens return the same object with its
// reference count bumped. Open counts transition only under the registry
// lock, which is held briefly and never across inode locks or I/O.
type Registry struct {
	mu    sync.Mutex
	open  map[uint32]*Inode
	cache *cache.Cache
	fm    basic.Allocator
}

func NewRegistry(c *cache.Cache, fm basic.Allocator) *Registry {
	return &Registry{
		open:  make(map[uint32]*Inode),
		cache: c,
		fm:    fm,
	}
}

// Create initializes an inode with length bytes of data and writes it to
// the given sector. Returns false if disk allocation falls short; nothing
// stays allocated on failure.
func (r *Registry) Create(sector uint32, length int32) bool {
	if length < 0 {
		return false
	}
	disk := &Disk{Magic: Magic}
	if r.extendDisk(disk, length) < length {
		r.releaseDisk(disk)
		return false
	}
	if err := r.cache.Write(sector, disk.Marshal(), 0); err != nil {
		logger.Errorf("inode create at sector %d: %v", sector, err)
		r.releaseDisk(disk)
		return false
	}
	return true
}

// Open reads the inode at sector and returns the in-memory inode holding
// it, sharing the object with every other opener of the same sector.
func (r *Registry) Open(sector uint32) *Inode {
	r.mu.Lock()
	if i, ok := r.open[sector]; ok {
		atomic.AddInt32(&i.openCnt, 1)
		r.mu.Unlock()
		return i
	}
	i := &Inode{sector: sector, openCnt: 1, reg: r}
	// Lock before publishing so later openers wait for the disk copy.
	// Uncontended here: nobody else can hold a reference yet.
	i.mu.Lock()
	r.open[sector] = i
	r.mu.Unlock()

	buf := make([]byte, common.SectorSize)
	if err := r.cache.Read(sector, buf, 0); err != nil {
		logger.Errorf("inode open at sector %d: %v", sector, err)
	}
	i.disk = *UnmarshalDisk(buf)
	i.mu.Unlock()
	return i
}

// OpenCount reports how many distinct inodes are currently open.
func (r *Registry) OpenCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.open)
}

// byteToSectorDisk translates a byte position into the sector that holds
// it, reading through the indirect map when the position lies past the
// direct slots. Returns false for positions at or past Length.
func (r *Registry) byteToSectorDisk(d *Disk, pos int64) (uint32, bool) {
	if pos < 0 || pos >= int64(d.Length) {
		return common.SectorNone, false
	}
	idx := int(pos / common.SectorSize)
	if idx < NumDirect {
		return uint32(d.Direct[idx]), true
	}
	k := idx - NumDirect
	var raw [2]byte
	if err := r.cache.Read(uint32(d.Indirect[k/IndirectLen]), raw[:], (k%IndirectLen)*2); err != nil {
		logger.Errorf("indirect lookup for byte %d: %v", pos, err)
		return common.SectorNone, false
	}
	_, slot := util.ReadUB2(raw[:], 0)
	return uint32(slot), true
}

// allocateSlot obtains a fresh zeroed sector whose id fits the extent
// map's u16 slots.
func (r *Registry) allocateSlot(slot *uint16) bool {
	s, ok := r.fm.Allocate()
	if !ok {
		return false
	}
	if s > uint32(^uint16(0)) {
		r.fm.Release(s)
		return false
	}
	if err := r.cache.Zero(s); err != nil {
		logger.Errorf("zero fresh sector %d: %v", s, err)
		r.fm.Release(s)
		return false
	}
	*slot = uint16(s)
	return true
}

// appendSector grows the extent map by one sector past the current
// rounded length. When the new sector opens a fresh indirect slot, the
// indirect sector is allocated and zeroed first; if the data sector then
// fails to allocate, that indirect sector is given back.
func (r *Registry) appendSector(d *Disk) bool {
	newLength := roundUpToSector(int64(d.Length)) + common.SectorSize
	if newLength > MaxLen {
		return false
	}
	idx := int((newLength - 1) / common.SectorSize)
	if idx < NumDirect {
		if !r.allocateSlot(&d.Direct[idx]) {
			return false
		}
	} else {
		k := idx - NumDirect
		ind := k / IndirectLen
		fresh := k%IndirectLen == 0
		if fresh && !r.allocateSlot(&d.Indirect[ind]) {
			return false
		}
		var slot uint16
		if !r.allocateSlot(&slot) {
			if fresh {
				r.fm.Release(uint32(d.Indirect[ind]))
			}
			return false
		}
		if err := r.cache.Write(uint32(d.Indirect[ind]), util.WriteUB2(nil, slot), (k%IndirectLen)*2); err != nil {
			logger.Errorf("record data sector in indirect %d: %v", ind, err)
			r.fm.Release(uint32(slot))
			if fresh {
				r.fm.Release(uint32(d.Indirect[ind]))
			}
			return false
		}
	}
	d.Length = int32(newLength)
	return true
}

// extendDisk grows the inode to cover length bytes. Idempotent and
// monotone: a target at or below the current length changes nothing.
// Returns the achieved length, clamped back to the exact byte target.
func (r *Registry) extendDisk(d *Disk, length int32) int32 {
	if d.Length >= length {
		return d.Length
	}
	d.Length = int32(roundUpToSector(int64(d.Length)))
	for d.Length < length && r.appendSector(d) {
	}
	if d.Length > length {
		d.Length = length
	}
	return d.Length
}

// releaseDisk returns every sector the extent map references back to the
// free map: all data sectors covered by Length and every indirect sector
// in use. The inode's own sector is the caller's to release.
func (r *Registry) releaseDisk(d *Disk) {
	for ofs := int64(0); ofs < int64(d.Length); ofs += common.SectorSize {
		if s, ok := r.byteToSectorDisk(d, ofs); ok {
			r.fm.Release(s)
		}
	}
	sectors := bytesToSectors(d.Length)
	if sectors > NumDirect {
		used := (sectors - NumDirect + IndirectLen - 1) / IndirectLen
		for j := 0; j < used; j++ {
			r.fm.Release(uint32(d.Indirect[j]))
		}
	}
}
