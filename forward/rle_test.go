package forward

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rleFragment(segments ...[]byte) []byte {
	header := make([]byte, 64)
	binary.LittleEndian.PutUint32(header[0:4], uint32(len(segments)))
	off := uint32(64)
	out := header
	for i, seg := range segments {
		binary.LittleEndian.PutUint32(header[4+4*i:8+4*i], off)
		off += uint32(len(seg))
	}
	for _, seg := range segments {
		out = append(out, seg...)
	}
	return out
}

func TestPackBitsDecode(t *testing.T) {
	// Literal run of 4 bytes.
	got, err := packBitsDecode([]byte{0x03, 1, 2, 3, 4}, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, got)

	// Replicate run: -3 means four copies of the next byte.
	got, err = packBitsDecode([]byte{0xfd, 0xaa}, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xaa, 0xaa, 0xaa, 0xaa}, got)

	// 0x80 is a no-op filler.
	got, err = packBitsDecode([]byte{0x80, 0x01, 7, 8}, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{7, 8}, got)

	_, err = packBitsDecode([]byte{0x03, 1, 2}, 4)
	assert.Error(t, err)
}

func TestRLEDecode8Bit(t *testing.T) {
	desc := &ImageDescriptor{Rows: 2, Columns: 2, SamplesPerPixel: 1, BitsAllocated: 8, Frames: 1}
	frag := rleFragment([]byte{0x03, 10, 20, 30, 40})
	got, err := rleDecode(frag, desc)
	require.NoError(t, err)
	assert.Equal(t, []byte{10, 20, 30, 40}, got)
}

func TestRLEDecode16Bit(t *testing.T) {
	// Two pixels, 0x0102 and 0x0304. Segment 0 carries the high bytes,
	// segment 1 the low bytes; output is little endian.
	desc := &ImageDescriptor{Rows: 1, Columns: 2, SamplesPerPixel: 1, BitsAllocated: 16, Frames: 1}
	frag := rleFragment(
		[]byte{0x01, 0x01, 0x03},
		[]byte{0x01, 0x02, 0x04},
	)
	got, err := rleDecode(frag, desc)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0x01, 0x04, 0x03}, got)
}

func TestRLEDecodeRGB(t *testing.T) {
	// One pixel, three 8-bit samples, one segment per sample.
	desc := &ImageDescriptor{Rows: 1, Columns: 1, SamplesPerPixel: 3, BitsAllocated: 8, Frames: 1}
	frag := rleFragment(
		[]byte{0x00, 0x11},
		[]byte{0x00, 0x22},
		[]byte{0x00, 0x33},
	)
	got, err := rleDecode(frag, desc)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x11, 0x22, 0x33}, got)
}

func TestRLEDecodeBadSegmentCount(t *testing.T) {
	desc := &ImageDescriptor{Rows: 1, Columns: 2, SamplesPerPixel: 1, BitsAllocated: 16, Frames: 1}
	frag := rleFragment([]byte{0x01, 0x01, 0x03})
	_, err := rleDecode(frag, desc)
	assert.Error(t, err)
}

func TestRLEDecodeShortFragment(t *testing.T) {
	desc := &ImageDescriptor{Rows: 1, Columns: 1, SamplesPerPixel: 1, BitsAllocated: 8, Frames: 1}
	_, err := rleDecode([]byte{1, 2, 3}, desc)
	assert.Error(t, err)
}
