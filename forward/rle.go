package forward

import (
	"encoding/binary"
	"fmt"
)

// rleDecode expands one DICOM RLE Lossless frame (PS3.5 annex G) into the
// native interleaved little-endian layout. The fragment starts with a
// 64-byte header: a segment count and up to 15 segment offsets. Each
// segment is PackBits-compressed and holds one byte plane, most significant
// byte first.
func rleDecode(frag []byte, desc *ImageDescriptor) ([]byte, error) {
	if len(frag) < 64 {
		return nil, fmt.Errorf("rle: fragment shorter than header (%d bytes)", len(frag))
	}
	numSegments := int(binary.LittleEndian.Uint32(frag[0:4]))
	bps := desc.bytesPerSample()
	want := desc.SamplesPerPixel * bps
	if numSegments != want {
		return nil, fmt.Errorf("rle: %d segments, want %d for %d samples x %d bytes",
			numSegments, want, desc.SamplesPerPixel, bps)
	}
	pixels := desc.Rows * desc.Columns
	out := make([]byte, pixels*want)
	for seg := 0; seg < numSegments; seg++ {
		start := int(binary.LittleEndian.Uint32(frag[4+4*seg : 8+4*seg]))
		end := len(frag)
		if seg+1 < numSegments {
			end = int(binary.LittleEndian.Uint32(frag[8+4*seg : 12+4*seg]))
		}
		if start < 64 || start > end || end > len(frag) {
			return nil, fmt.Errorf("rle: segment %d offsets [%d,%d) out of range", seg, start, end)
		}
		plane, err := packBitsDecode(frag[start:end], pixels)
		if err != nil {
			return nil, fmt.Errorf("rle: segment %d: %v", seg, err)
		}
		// Segments order planes sample-major, MSB first; native layout is
		// sample-interleaved little endian.
		sample := seg / bps
		byteIdx := bps - 1 - seg%bps
		for pix := 0; pix < pixels; pix++ {
			out[(pix*desc.SamplesPerPixel+sample)*bps+byteIdx] = plane[pix]
		}
	}
	return out, nil
}

// packBitsDecode expands one PackBits stream to exactly want bytes.
func packBitsDecode(in []byte, want int) ([]byte, error) {
	out := make([]byte, 0, want)
	i := 0
	for i < len(in) && len(out) < want {
		n := int8(in[i])
		i++
		switch {
		case n >= 0:
			count := int(n) + 1
			if i+count > len(in) {
				return nil, fmt.Errorf("literal run of %d bytes truncated", count)
			}
			out = append(out, in[i:i+count]...)
			i += count
		case n == -128:
			// no-op
		default:
			if i >= len(in) {
				return nil, fmt.Errorf("replicate run truncated")
			}
			count := 1 - int(n)
			b := in[i]
			i++
			for j := 0; j < count; j++ {
				out = append(out, b)
			}
		}
	}
	if len(out) < want {
		return nil, fmt.Errorf("decoded %d bytes, want %d", len(out), want)
	}
	return out[:want], nil
}
