package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version     byte = 1
	KindProduct byte = 1
	KindPage    byte = 2
)

var (
	ErrCorrupt = errors.New("shopcache: corrupt entry")
	magic4     = [...]byte{'S', 'H', 'P', 'C'}
)

const hdrLen = 4 + 1 + 1 + 4

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Encode frames an encoded value:
//
//	magic(4) | ver(1) | kind(1) | vlen(u32 be) | payload(vlen)
func Encode(kind byte, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(hdrLen + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kind)

	var u4 [4]byte
	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

// Decode returns the payload of a frame of the wanted kind.
// Foreign bytes, another kind, a short frame or trailing bytes => ErrCorrupt.
func Decode(kind byte, b []byte) ([]byte, error) {
	if len(b) < hdrLen || !hasMagic(b) || b[4] != version || b[5] != kind {
		return nil, ErrCorrupt
	}
	off := 6
	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off { // overflow-safe, exact length
		return nil, ErrCorrupt
	}
	return b[off : off+vlen], nil
}
