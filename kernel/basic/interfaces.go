package basic

// BlockDevice is a sector-addressable device. Sector payloads are always
// common.SectorSize bytes.
type BlockDevice interface {
	// ReadSector reads sector s into buf.
	ReadSector(s uint32, buf []byte) error
	// WriteSector writes buf to sector s.
	WriteSector(s uint32, buf []byte) error
	// Sectors returns the device capacity in sectors.
	Sectors() uint32
}

// Allocator hands out device sectors. Allocate returns false when the
// device is exhausted.
type Allocator interface {
	Allocate() (uint32, bool)
	Release(s uint32)
}

// File is the byte-ranged surface the virtual-memory layer consumes.
// Short counts signal end of file or denied writes.
type File interface {
	ReadAt(p []byte, off int64) int
	WriteAt(p []byte, off int64) int
	Length() int64
}
