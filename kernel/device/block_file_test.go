package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/zhukovaskychina/xkernel-server/kernel/common"
)

func TestNewBlockFile(t *testing.T) {
	dir := t.TempDir()

	blockFile, err := NewBlockFile(dir, "fs.img", 128)
	assert.NoError(t, err)
	assert.Equal(t, uint32(128), blockFile.Sectors())
	assert.Equal(t, "fs.img", blockFile.GetFileName())
	assert.NoError(t, blockFile.Close())

	// Reopening picks the size up from the existing image.
	blockFile, err = NewBlockFile(dir, "fs.img", 0)
	assert.NoError(t, err)
	assert.Equal(t, uint32(128), blockFile.Sectors())
	blockFile.Close()
}

func TestBlockFileReadWriteSector(t *testing.T) {
	dir := t.TempDir()
	blockFile, err := NewBlockFile(dir, "fs.img", 16)
	assert.NoError(t, err)
	defer blockFile.Close()

	out := make([]byte, common.SectorSize)
	for i := range out {
		out[i] = byte(i % 251)
	}
	assert.NoError(t, blockFile.WriteSector(7, out))

	in := make([]byte, common.SectorSize)
	assert.NoError(t, blockFile.ReadSector(7, in))
	assert.Equal(t, out, in)

	assert.Equal(t, uint64(1), blockFile.Reads())
	assert.Equal(t, uint64(1), blockFile.Writes())
}

func TestBlockFileOutOfRange(t *testing.T) {
	dir := t.TempDir()
	blockFile, err := NewBlockFile(dir, "fs.img", 8)
	assert.NoError(t, err)
	defer blockFile.Close()

	buf := make([]byte, common.SectorSize)
	assert.Error(t, blockFile.ReadSector(8, buf))
	assert.Error(t, blockFile.WriteSector(8, buf))
	assert.Error(t, blockFile.WriteSector(0, buf[:10]))
}

func TestRoleRegistry(t *testing.T) {
	dir := t.TempDir()
	fsDev, _ := NewBlockFile(dir, "fs.img", 8)
	swapDev, _ := NewBlockFile(dir, "swap.img", 8)
	defer fsDev.Close()
	defer swapDev.Close()

	Register(RoleFilesys, fsDev)
	Register(RoleSwap, swapDev)
	assert.Equal(t, fsDev, GetRole(RoleFilesys).(*BlockFile))
	assert.Equal(t, swapDev, GetRole(RoleSwap).(*BlockFile))
}
