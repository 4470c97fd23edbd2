package util

// Little-endian append-style writers, the counterpart of buffer_reader.go.

func WriteByte(buf []byte, b byte) []byte {
	return append(buf, b)
}

func WriteBytes(buf []byte, from []byte) []byte {
	return append(buf, from...)
}

func WriteUB2(buf []byte, i uint16) []byte {
	buf = append(buf, byte(i))
	buf = append(buf, byte(i>>8))
	return buf
}

func WriteUB4(buf []byte, i uint32) []byte {
	buf = append(buf, byte(i))
	buf = append(buf, byte(i>>8))
	buf = append(buf, byte(i>>16))
	buf = append(buf, byte(i>>24))
	return buf
}

func WriteUB8(buf []byte, i uint64) []byte {
	buf = append(buf, byte(i))
	buf = append(buf, byte(i>>8))
	buf = append(buf, byte(i>>16))
	buf = append(buf, byte(i>>24))
	buf = append(buf, byte(i>>32))
	buf = append(buf, byte(i>>40))
	buf = append(buf, byte(i>>48))
	buf = append(buf, byte(i>>56))
	return buf
}
