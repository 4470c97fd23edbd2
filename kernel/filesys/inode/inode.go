package inode

import (
	"sync"
	"sync/atomic"

	"github.com/zhukovaskychina/xkernel-server/kernel/common"
	"github.com/zhukovaskychina/xkernel-server/logger"
)

// Inode is an open in-memory inode. The mutex is held across whole
// read/write calls; cache entry locks nest beneath it. openCnt moves
// only under the owning registry's lock and is read atomically for
// assertions.
type Inode struct {
	sector       uint32
	openCnt      int32
	denyWriteCnt int32 // 0: writes ok, >0: deny writes
	removed      bool
	mu           sync.Mutex
	disk         Disk
	reg          *Registry
}

// Sector returns the inode's own sector number.
func (i *Inode) Sector() uint32 {
	return i.sector
}

// Reopen takes another reference on an already-open inode.
func (i *Inode) Reopen() *Inode {
	if i == nil {
		return nil
	}
	i.reg.mu.Lock()
	atomic.AddInt32(&i.openCnt, 1)
	i.reg.mu.Unlock()
	return i
}

// Length returns the file size in bytes.
func (i *Inode) Length() int64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return int64(i.disk.Length)
}

// Remove marks the inode to be deleted when the last opener closes it.
func (i *Inode) Remove() {
	i.mu.Lock()
	i.removed = true
	i.mu.Unlock()
}

// Close drops one reference. The last close unlinks the inode from the
// registry; a removed inode then gives back its data sectors, its
// indirect sectors, and its own sector, while a live one has its disk
// copy written back so growth survives the next open.
func (i *Inode) Close() {
	if i == nil {
		return
	}
	r := i.reg
	r.mu.Lock()
	n := atomic.AddInt32(&i.openCnt, -1)
	if n < 0 {
		panic("inode: close without open")
	}
	if n == 0 {
		delete(r.open, i.sector)
	}
	r.mu.Unlock()
	if n != 0 {
		return
	}

	i.mu.Lock()
	if i.removed {
		r.releaseDisk(&i.disk)
		r.fm.Release(i.sector)
	} else if err := r.cache.Write(i.sector, i.disk.Marshal(), 0); err != nil {
		logger.Errorf("inode writeback at sector %d: %v", i.sector, err)
	}
	i.mu.Unlock()
}

// ReadAt reads up to len(p) bytes starting at byte position off,
// stopping at end of file. Returns the byte count actually read.
func (i *Inode) ReadAt(p []byte, off int64) int {
	i.mu.Lock()
	defer i.mu.Unlock()

	read := 0
	size := len(p)
	for size > 0 && off < int64(i.disk.Length) {
		sector, ok := i.reg.byteToSectorDisk(&i.disk, off)
		if !ok {
			panic("inode: unmapped byte inside file length")
		}
		sectorOfs := int(off % common.SectorSize)

		chunk := chunkSize(size, int64(i.disk.Length)-off, common.SectorSize-sectorOfs)
		if chunk <= 0 {
			break
		}
		if err := i.reg.cache.Read(sector, p[read:read+chunk], sectorOfs); err != nil {
			logger.Errorf("inode read at sector %d: %v", sector, err)
			break
		}
		size -= chunk
		off += int64(chunk)
		read += chunk
	}
	return read
}

// WriteAt writes len(p) bytes at byte position off, growing the file
// first. Returns the byte count actually written, which falls short when
// the device runs out of space, and 0 while writes are denied.
func (i *Inode) WriteAt(p []byte, off int64) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.denyWriteCnt > 0 {
		return 0
	}

	target := off + int64(len(p))
	if target > MaxLen {
		target = MaxLen
	}
	i.reg.extendDisk(&i.disk, int32(target))

	written := 0
	size := len(p)
	for size > 0 && off < int64(i.disk.Length) {
		sector, ok := i.reg.byteToSectorDisk(&i.disk, off)
		if !ok {
			panic("inode: unmapped byte inside file length")
		}
		sectorOfs := int(off % common.SectorSize)

		chunk := chunkSize(size, int64(i.disk.Length)-off, common.SectorSize-sectorOfs)
		if chunk <= 0 {
			break
		}
		if err := i.reg.cache.Write(sector, p[written:written+chunk], sectorOfs); err != nil {
			logger.Errorf("inode write at sector %d: %v", sector, err)
			break
		}
		size -= chunk
		off += int64(chunk)
		written += chunk
	}
	return written
}

// DenyWrite disables writes. May be called at most once per opener.
func (i *Inode) DenyWrite() {
	i.mu.Lock()
	i.denyWriteCnt++
	if i.denyWriteCnt > atomic.LoadInt32(&i.openCnt) {
		panic("inode: more deniers than openers")
	}
	i.mu.Unlock()
}

// AllowWrite undoes one DenyWrite.
func (i *Inode) AllowWrite() {
	i.mu.Lock()
	if i.denyWriteCnt <= 0 {
		panic("inode: allow without deny")
	}
	i.denyWriteCnt--
	i.mu.Unlock()
}

// chunkSize picks the bytes to move this iteration: what the caller
// still wants, bounded by the file and by the current sector.
func chunkSize(want int, inodeLeft int64, sectorLeft int) int {
	chunk := want
	if int64(chunk) > inodeLeft {
		chunk = int(inodeLeft)
	}
	if chunk > sectorLeft {
		chunk = sectorLeft
	}
	return chunk
}
