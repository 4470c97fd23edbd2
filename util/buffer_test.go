package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUB2RoundTrip(t *testing.T) {
	buf := WriteUB2(nil, 0xBEEF)
	assert.Equal(t, []byte{0xEF, 0xBE}, buf)

	cursor, got := ReadUB2(buf, 0)
	assert.Equal(t, 2, cursor)
	assert.Equal(t, uint16(0xBEEF), got)
}

func TestUB4AndUB8RoundTrip(t *testing.T) {
	buf := WriteUB4(nil, 0x494e4f44)
	buf = WriteUB8(buf, 0x1122334455667788)

	cursor, u4 := ReadUB4(buf, 0)
	assert.Equal(t, uint32(0x494e4f44), u4)
	cursor, u8 := ReadUB8(buf, cursor)
	assert.Equal(t, 12, cursor)
	assert.Equal(t, uint64(0x1122334455667788), u8)
}

func TestReadBytes(t *testing.T) {
	buf := []byte{1, 2, 3, 4, 5}
	cursor, got := ReadBytes(buf, 1, 3)
	assert.Equal(t, 4, cursor)
	assert.Equal(t, []byte{2, 3, 4}, got)

	cursor, got = ReadBytes(buf, 1, 0)
	assert.Equal(t, 1, cursor)
	assert.Nil(t, got)
}

func TestHashCodeIsStable(t *testing.T) {
	a := HashCode([]byte("sector payload"))
	b := HashCode([]byte("sector payload"))
	c := HashCode([]byte("sector payloae"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
