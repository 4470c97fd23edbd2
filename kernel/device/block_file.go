package device

import (
	"os"
	"path"
	"sync/atomic"

	"github.com/juju/errors"
	"github.com/zhukovaskychina/xkernel-server/kernel/common"
	"github.com/zhukovaskychina/xkernel-server/util"
)

// BlockFile 存储中间层: a sector-addressable device backed by a pre-sized
// image file on the host filesystem.
type BlockFile struct {
	StorageFile *os.File
	FilePath    string
	FileName    string
	sectors     uint32
	ReadNumber  uint64 // 读数量
	WriteNumber uint64 // 写数量
}

// NewBlockFile opens the image under filePath/fileName, creating and
// truncating it to sectors*512 bytes when it does not exist yet.
func NewBlockFile(filePath string, fileName string, sectors uint32) (*BlockFile, error) {
	blockFile := new(BlockFile)
	blockFile.FilePath = filePath
	blockFile.FileName = fileName
	blockFile.sectors = sectors

	full := path.Join(filePath, fileName)
	fileFlag, err := util.PathExists(full)
	if err != nil {
		return nil, errors.Annotatef(err, "stat block image %s", full)
	}
	if !fileFlag {
		f, err := os.Create(full)
		if err != nil {
			return nil, errors.Annotatef(err, "create block image %s", full)
		}
		if err := f.Truncate(int64(sectors) * common.SectorSize); err != nil {
			f.Close()
			return nil, errors.Annotatef(err, "truncate block image %s", full)
		}
		f.Close()
	}
	osfile, err := os.OpenFile(full, os.O_RDWR, os.ModePerm)
	if err != nil {
		return nil, errors.Annotatef(err, "open block image %s", full)
	}
	blockFile.StorageFile = osfile

	if !fileFlag {
		return blockFile, nil
	}
	info, err := osfile.Stat()
	if err != nil {
		osfile.Close()
		return nil, errors.Trace(err)
	}
	blockFile.sectors = uint32(info.Size() / common.SectorSize)
	return blockFile, nil
}

// ReadSector reads sector s into buf. buf must hold one full sector.
func (blockFile *BlockFile) ReadSector(s uint32, buf []byte) error {
	if s >= blockFile.sectors {
		return errors.Errorf("read of sector %d past device end %d", s, blockFile.sectors)
	}
	if len(buf) < common.SectorSize {
		return errors.Errorf("short sector buffer: %d bytes", len(buf))
	}
	if _, err := blockFile.StorageFile.ReadAt(buf[:common.SectorSize], int64(s)*common.SectorSize); err != nil {
		return errors.Annotatef(err, "read sector %d", s)
	}
	atomic.AddUint64(&blockFile.ReadNumber, 1)
	return nil
}

// WriteSector writes buf to sector s. buf must hold one full sector.
func (blockFile *BlockFile) WriteSector(s uint32, buf []byte) error {
	if s >= blockFile.sectors {
		return errors.Errorf("write of sector %d past device end %d", s, blockFile.sectors)
	}
	if len(buf) < common.SectorSize {
		return errors.Errorf("short sector buffer: %d bytes", len(buf))
	}
	if _, err := blockFile.StorageFile.WriteAt(buf[:common.SectorSize], int64(s)*common.SectorSize); err != nil {
		return errors.Annotatef(err, "write sector %d", s)
	}
	atomic.AddUint64(&blockFile.WriteNumber, 1)
	return nil
}

// Sectors returns the device capacity in sectors.
func (blockFile *BlockFile) Sectors() uint32 {
	return blockFile.sectors
}

func (blockFile *BlockFile) GetFileName() string {
	return blockFile.FileName
}

// Reads returns how many sector reads the device has served.
func (blockFile *BlockFile) Reads() uint64 {
	return atomic.LoadUint64(&blockFile.ReadNumber)
}

// Writes returns how many sector writes the device has served.
func (blockFile *BlockFile) Writes() uint64 {
	return atomic.LoadUint64(&blockFile.WriteNumber)
}

func (blockFile *BlockFile) Close() error {
	if err := blockFile.StorageFile.Sync(); err != nil {
		return errors.Trace(err)
	}
	return blockFile.StorageFile.Close()
}
