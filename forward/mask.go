package forward

import (
	"encoding/binary"
	"image"
)

// MaskArea blanks rectangular regions of every frame, typically to cover
// burned-in annotations on ultrasound or secondary-capture images.
type MaskArea struct {
	Rects []image.Rectangle

	// Fill is the raw sample value written into masked pixels.
	Fill uint16
}

// NewMaskArea masks the given regions with black.
func NewMaskArea(rects ...image.Rectangle) *MaskArea {
	return &MaskArea{Rects: rects}
}

// Apply burns the mask into one decoded frame in place. Rectangles are
// clamped to the frame bounds.
func (m *MaskArea) Apply(img *PlanarImage) {
	if m == nil || len(m.Rects) == 0 {
		return
	}
	bounds := image.Rect(0, 0, img.Columns, img.Rows)
	bps := (img.BitsAllocated + 7) / 8
	rowStride := img.Columns * img.Samples * bps
	for _, r := range m.Rects {
		r = r.Intersect(bounds)
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				off := y*rowStride + x*img.Samples*bps
				for s := 0; s < img.Samples; s++ {
					p := off + s*bps
					if bps == 2 {
						binary.LittleEndian.PutUint16(img.Pix[p:], m.Fill)
					} else {
						img.Pix[p] = byte(m.Fill)
					}
				}
			}
		}
	}
}
