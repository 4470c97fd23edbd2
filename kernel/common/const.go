package common

// Geometry shared by every layer of the storage stack.
const (
	// SectorSize 扇区大小,固定512字节
	SectorSize = 512

	// PageSize 用户页大小
	PageSize = 4096

	// SectorsPerPage 每个用户页覆盖的扇区数
	SectorsPerPage = PageSize / SectorSize
)

// SectorNone marks an unallocated sector id.
const SectorNone uint32 = 0xFFFFFFFF

// SlotNone marks an unallocated slot inside an inode extent map.
const SlotNone uint16 = 0xFFFF
