package transmission

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// Supported length prefix widths, in bits.
const (
	Prefix8  = 8
	Prefix16 = 16
	Prefix32 = 32
	Prefix64 = 64
)

// frameOrder is the byte order of every length prefix on the wire.
var frameOrder = binary.BigEndian

// prefixSize returns the header size in bytes for a prefix width in bits.
func prefixSize(prefixBits int) (int, error) {
	switch prefixBits {
	case Prefix8, Prefix16, Prefix32, Prefix64:
		return prefixBits / 8, nil
	default:
		return 0, errors.Wrapf(ErrInvalidPrefix, "%d bits", prefixBits)
	}
}

// maxPrefixLength returns the largest payload length a prefix width can carry.
func maxPrefixLength(prefixBits int) uint64 {
	switch prefixBits {
	case Prefix8:
		return math.MaxUint8
	case Prefix16:
		return math.MaxUint16
	case Prefix32:
		return math.MaxUint32
	default:
		return math.MaxUint64
	}
}

// AppendFrame appends data to dst preceded by its length encoded as a
// prefixBits wide big-endian unsigned integer.
func AppendFrame(dst, data []byte, prefixBits int) ([]byte, error) {
	if _, err := prefixSize(prefixBits); err != nil {
		return dst, err
	}
	if uint64(len(data)) > maxPrefixLength(prefixBits) {
		return dst, errors.Wrapf(ErrFrameTooLarge, "%d bytes do not fit a %d bit prefix", len(data), prefixBits)
	}

	n := uint64(len(data))
	switch prefixBits {
	case Prefix8:
		dst = append(dst, byte(n))
	case Prefix16:
		dst = frameOrder.AppendUint16(dst, uint16(n))
	case Prefix32:
		dst = frameOrder.AppendUint32(dst, uint32(n))
	case Prefix64:
		dst = frameOrder.AppendUint64(dst, n)
	}
	return append(dst, data...), nil
}

// FrameLength decodes a length prefix. The width is taken from len(header),
// which must be 1, 2, 4 or 8.
func FrameLength(header []byte) (uint64, error) {
	switch len(header) {
	case 1:
		return uint64(header[0]), nil
	case 2:
		return uint64(frameOrder.Uint16(header)), nil
	case 4:
		return uint64(frameOrder.Uint32(header)), nil
	case 8:
		return frameOrder.Uint64(header), nil
	default:
		return 0, errors.Wrapf(ErrInvalidPrefix, "%d byte header", len(header))
	}
}
