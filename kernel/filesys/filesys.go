package filesys

import (
	"time"

	"github.com/juju/errors"
	"github.com/zhukovaskychina/xkernel-server/kernel/basic"
	"github.com/zhukovaskychina/xkernel-server/kernel/common"
	"github.com/zhukovaskychina/xkernel-server/kernel/filesys/cache"
	"github.com/zhukovaskychina/xkernel-server/kernel/filesys/freemap"
	"github.com/zhukovaskychina/xkernel-server/kernel/filesys/inode"
	"github.com/zhukovaskychina/xkernel-server/logger"
	"github.com/zhukovaskychina/xkernel-server/util"
)

// SuperMagic identifies a formatted filesystem device.
const SuperMagic = 0x584b4653

// reservedSectors 超级块占用的扇区
const reservedSectors = 1

// superblock sits at sector 0: magic (4B LE), sector count (4B LE),
// reserved count (4B LE), xxhash checksum of those 12 bytes (8B LE).
type superblock struct {
	magic    uint32
	sectors  uint32
	reserved uint32
	checksum uint64
}

func (sb *superblock) marshal() []byte {
	buf := make([]byte, 0, common.SectorSize)
	buf = util.WriteUB4(buf, sb.magic)
	buf = util.WriteUB4(buf, sb.sectors)
	buf = util.WriteUB4(buf, sb.reserved)
	buf = util.WriteUB8(buf, util.HashCode(buf))
	for len(buf) < common.SectorSize {
		buf = util.WriteByte(buf, 0)
	}
	return buf
}

func unmarshalSuperblock(buf []byte) *superblock {
	sb := new(superblock)
	cursor := 0
	cursor, sb.magic = util.ReadUB4(buf, cursor)
	cursor, sb.sectors = util.ReadUB4(buf, cursor)
	cursor, sb.reserved = util.ReadUB4(buf, cursor)
	_, sb.checksum = util.ReadUB8(buf, cursor)
	return sb
}

// Filesys is the mounted filesystem root. It owns the buffer cache, the
// free map and the open-inode registry, and runs the write-behind daemon
// until Close.
type Filesys struct {
	dev     basic.BlockDevice
	Cache   *cache.Cache
	FreeMap *freemap.FreeMap
	Inodes  *inode.Registry
}

// Format stamps a fresh superblock onto dev.
func Format(dev basic.BlockDevice) error {
	sb := &superblock{
		magic:    SuperMagic,
		sectors:  dev.Sectors(),
		reserved: reservedSectors,
	}
	if err := dev.WriteSector(0, sb.marshal()); err != nil {
		return errors.Annotate(err, "format: write superblock")
	}
	logger.Infof("formatted device: %d sectors, %d reserved", sb.sectors, sb.reserved)
	return nil
}

// Mount verifies the superblock, builds the cache, free map and inode
// registry, and starts the write-behind daemon on the given period.
func Mount(dev basic.BlockDevice, writeBehind time.Duration) (*Filesys, error) {
	buf := make([]byte, common.SectorSize)
	if err := dev.ReadSector(0, buf); err != nil {
		return nil, errors.Annotate(err, "mount: read superblock")
	}
	sb := unmarshalSuperblock(buf)
	if sb.magic != SuperMagic {
		return nil, errors.Errorf("mount: bad superblock magic %#x", sb.magic)
	}
	if sum := util.HashCode(buf[:12]); sum != sb.checksum {
		return nil, errors.Errorf("mount: superblock checksum mismatch: %#x != %#x", sum, sb.checksum)
	}
	if sb.sectors > dev.Sectors() {
		return nil, errors.Errorf("mount: superblock claims %d sectors, device has %d", sb.sectors, dev.Sectors())
	}

	c := cache.New(dev, cache.DefaultEntries)
	fm := freemap.New(sb.sectors, sb.reserved)
	fs := &Filesys{
		dev:     dev,
		Cache:   c,
		FreeMap: fm,
		Inodes:  inode.NewRegistry(c, fm),
	}
	if writeBehind > 0 {
		if err := c.StartWriteBehind("@every " + writeBehind.String()); err != nil {
			return nil, errors.Trace(err)
		}
	}
	logger.Infof("mounted filesystem: %d sectors, %d free", sb.sectors, fs.FreeMap.Free())
	return fs, nil
}

// CreateFile allocates an inode sector and creates a file of the given
// initial length. Returns the inode sector number.
func (fs *Filesys) CreateFile(length int32) (uint32, error) {
	sector, ok := fs.FreeMap.Allocate()
	if !ok {
		return 0, errors.New("create: no free sectors")
	}
	if !fs.Inodes.Create(sector, length) {
		fs.FreeMap.Release(sector)
		return 0, errors.Errorf("create: inode of %d bytes does not fit", length)
	}
	return sector, nil
}

// Open opens the file stored at the given inode sector.
func (fs *Filesys) Open(sector uint32) *File {
	return newFile(fs.Inodes.Open(sector))
}

// Remove marks the file at the given inode sector for deletion; its
// sectors come back once the last opener closes it.
func (fs *Filesys) Remove(sector uint32) {
	i := fs.Inodes.Open(sector)
	i.Remove()
	i.Close()
}

// Close stops the write-behind daemon and flushes the cache.
func (fs *Filesys) Close() error {
	return fs.Cache.Close()
}
