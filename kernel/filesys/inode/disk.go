package inode

import (
	"github.com/zhukovaskychina/xkernel-server/kernel/common"
	"github.com/zhukovaskychina/xkernel-server/util"
)

// Identifies an inode.
const Magic = 0x494e4f44

const (
	NumDirect   = 188
	NumIndirect = 64
	IndirectLen = 256

	// MaxLen caps a file at 8 MiB, slightly under the
	// (NumDirect + NumIndirect*IndirectLen) sectors the extent map can
	// address.
	MaxLen = 8 * 1024 * 1024
)

// Disk is the on-disk inode. Its marshaled form is exactly one sector:
// length (4B LE signed), magic (4B LE), direct[188] (u16 LE each),
// indirect[64] (u16 LE each). Slots whose covered byte range lies beyond
// Length are stale and must not be dereferenced.
type Disk struct {
	Length   int32
	Magic    uint32
	Direct   [NumDirect]uint16
	Indirect [NumIndirect]uint16
}

// Marshal serializes the inode into one sector image.
func (d *Disk) Marshal() []byte {
	buf := make([]byte, 0, common.SectorSize)
	buf = util.WriteUB4(buf, uint32(d.Length))
	buf = util.WriteUB4(buf, d.Magic)
	for i := 0; i < NumDirect; i++ {
		buf = util.WriteUB2(buf, d.Direct[i])
	}
	for i := 0; i < NumIndirect; i++ {
		buf = util.WriteUB2(buf, d.Indirect[i])
	}
	return buf
}

// UnmarshalDisk decodes a sector image produced by Marshal.
func UnmarshalDisk(buf []byte) *Disk {
	d := new(Disk)
	cursor := 0
	var length uint32
	cursor, length = util.ReadUB4(buf, cursor)
	d.Length = int32(length)
	cursor, d.Magic = util.ReadUB4(buf, cursor)
	for i := 0; i < NumDirect; i++ {
		cursor, d.Direct[i] = util.ReadUB2(buf, cursor)
	}
	for i := 0; i < NumIndirect; i++ {
		cursor, d.Indirect[i] = util.ReadUB2(buf, cursor)
	}
	return d
}

// bytesToSectors returns how many sectors back size bytes.
func bytesToSectors(size int32) int {
	return int((int64(size) + common.SectorSize - 1) / common.SectorSize)
}

func roundUpToSector(n int64) int64 {
	return (n + common.SectorSize - 1) / common.SectorSize * common.SectorSize
}
