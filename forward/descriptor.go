package forward

import (
	"fmt"
	"strings"

	"github.com/yasushi-saito/go-dicom"
)

// ImageDescriptor captures the geometry and sample layout of the pixel data,
// read once from the header and reused for every frame.
type ImageDescriptor struct {
	Rows                int
	Columns             int
	SamplesPerPixel     int
	BitsAllocated       int
	BitsStored          int
	PixelRepresentation int
	PlanarConfiguration int
	Frames              int
	Photometric         string
}

func newImageDescriptor(ds *dicom.DataSet) (*ImageDescriptor, error) {
	d := &ImageDescriptor{
		Rows:                dsInt(ds, dicom.TagRows, 0),
		Columns:             dsInt(ds, dicom.TagColumns, 0),
		SamplesPerPixel:     dsInt(ds, dicom.TagSamplesPerPixel, 1),
		BitsAllocated:       dsInt(ds, dicom.TagBitsAllocated, 8),
		BitsStored:          dsInt(ds, dicom.TagBitsStored, 0),
		PixelRepresentation: dsInt(ds, dicom.TagPixelRepresentation, 0),
		PlanarConfiguration: dsInt(ds, dicom.TagPlanarConfiguration, 0),
		Frames:              dsInt(ds, dicom.TagNumberOfFrames, 1),
	}
	if d.BitsStored == 0 {
		d.BitsStored = d.BitsAllocated
	}
	if pm, ok := dsString(ds, dicom.TagPhotometricInterpretation); ok {
		d.Photometric = strings.TrimSpace(pm)
	}
	if d.Rows <= 0 || d.Columns <= 0 {
		return nil, fmt.Errorf("invalid image geometry %dx%d", d.Columns, d.Rows)
	}
	if d.Frames < 1 {
		d.Frames = 1
	}
	return d, nil
}

// FrameLength is the byte length of one uncompressed frame. YBR_FULL_422
// subsamples chroma horizontally, so its native layout is two bytes per
// pixel regardless of the three nominal samples.
func (d *ImageDescriptor) FrameLength() int {
	if d.Photometric == "YBR_FULL_422" {
		return d.Rows * d.Columns * 2
	}
	return d.Rows * d.Columns * d.SamplesPerPixel * d.BitsAllocated / 8
}

func (d *ImageDescriptor) bytesPerSample() int {
	return (d.BitsAllocated + 7) / 8
}
