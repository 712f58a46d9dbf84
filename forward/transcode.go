package forward

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/yasushi-saito/go-dicom"
)

// PlanarImage is one decoded frame in the native interleaved layout: row
// major, samples interleaved, multi-byte samples little endian.
type PlanarImage struct {
	Rows          int
	Columns       int
	Samples       int
	BitsAllocated int
	Pix           []byte
}

// DicomOutputData holds re-encoded frames ready to be attached to a header
// data set under the output transfer syntax.
type DicomOutputData struct {
	frames [][]byte
	desc   *ImageDescriptor
	tsuid  string

	// palette carries the source's palette color LUT tags when the samples
	// are indexed; they are re-installed next to the rebuilt pixel data.
	palette *dicom.DataSet

	// layout of the decoded samples, which may differ from desc after a
	// lossy decode (JPEG always yields 8-bit interleaved).
	samples int
	bits    int
}

// decodeFrame expands one stored frame into a PlanarImage. Native frames are
// copied, RLE frames are expanded, JPEG family frames go through the image
// decoder. Anything else is unsupported.
func decodeFrame(desc *ImageDescriptor, tsuid string, frame []byte) (*PlanarImage, error) {
	switch {
	case isNativeSyntax(tsuid):
		pix := make([]byte, len(frame))
		copy(pix, frame)
		return &PlanarImage{
			Rows: desc.Rows, Columns: desc.Columns,
			Samples: desc.SamplesPerPixel, BitsAllocated: desc.BitsAllocated,
			Pix: pix,
		}, nil
	case tsuid == RLELossless:
		pix, err := rleDecode(frame, desc)
		if err != nil {
			return nil, err
		}
		return &PlanarImage{
			Rows: desc.Rows, Columns: desc.Columns,
			Samples: desc.SamplesPerPixel, BitsAllocated: desc.BitsAllocated,
			Pix: pix,
		}, nil
	case tsuid == JPEGBaseline8Bit || tsuid == JPEGExtended12Bit:
		img, err := jpeg.Decode(bytes.NewReader(frame))
		if err != nil {
			return nil, fmt.Errorf("jpeg decode: %v", err)
		}
		return fromImage(img)
	default:
		return nil, fmt.Errorf("no decoder for transfer syntax %s", tsuid)
	}
}

// fromImage converts a decoded Go image into the native layout.
func fromImage(img image.Image) (*PlanarImage, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	switch src := img.(type) {
	case *image.Gray:
		pix := make([]byte, w*h)
		for y := 0; y < h; y++ {
			copy(pix[y*w:(y+1)*w], src.Pix[y*src.Stride:y*src.Stride+w])
		}
		return &PlanarImage{Rows: h, Columns: w, Samples: 1, BitsAllocated: 8, Pix: pix}, nil
	case *image.Gray16:
		pix := make([]byte, w*h*2)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				// Gray16 stores big endian; native wants little endian.
				off := y*src.Stride + x*2
				binary.LittleEndian.PutUint16(pix[(y*w+x)*2:],
					uint16(src.Pix[off])<<8|uint16(src.Pix[off+1]))
			}
		}
		return &PlanarImage{Rows: h, Columns: w, Samples: 1, BitsAllocated: 16, Pix: pix}, nil
	default:
		pix := make([]byte, w*h*3)
		i := 0
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				r, g, bl, _ := img.At(x, y).RGBA()
				pix[i] = byte(r >> 8)
				pix[i+1] = byte(g >> 8)
				pix[i+2] = byte(bl >> 8)
				i += 3
			}
		}
		return &PlanarImage{Rows: h, Columns: w, Samples: 3, BitsAllocated: 8, Pix: pix}, nil
	}
}

// transcodeFrames decodes every frame of src, burns in the mask, and
// re-encodes for the output transfer syntax.
func transcodeFrames(src BytesWithImageDescriptor, outTsuid string, mask *MaskArea) (*DicomOutputData, error) {
	desc := src.ImageDescriptor()
	out := &DicomOutputData{desc: desc, tsuid: outTsuid}
	if desc.Photometric == "PALETTE COLOR" {
		// Indexed samples only survive syntaxes that keep them verbatim;
		// a lossy re-encode would scramble the palette indices.
		if !isNativeSyntax(outTsuid) {
			return nil, fmt.Errorf("cannot re-encode palette color pixel data as %s", outTsuid)
		}
		out.palette = src.PaletteColorLookupTable()
	}
	for i := 0; i < desc.Frames; i++ {
		frame, err := src.Bytes(i)
		if err != nil {
			return nil, err
		}
		img, err := decodeFrame(desc, src.TransferSyntax(), frame)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %v", i, err)
		}
		mask.Apply(img)
		if i == 0 {
			out.samples = img.Samples
			out.bits = img.BitsAllocated
		}
		encoded, err := encodeFrame(img, outTsuid)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %v", i, err)
		}
		out.frames = append(out.frames, encoded)
	}
	return out, nil
}

// encodeFrame re-encodes one decoded frame for the output syntax. Native
// syntaxes pass the samples through; JPEG baseline goes through the image
// encoder.
func encodeFrame(img *PlanarImage, outTsuid string) ([]byte, error) {
	if isNativeSyntax(outTsuid) {
		return img.Pix, nil
	}
	if outTsuid != JPEGBaseline8Bit {
		return nil, fmt.Errorf("no encoder for transfer syntax %s", outTsuid)
	}
	if img.BitsAllocated != 8 {
		return nil, fmt.Errorf("cannot encode %d-bit samples as baseline JPEG", img.BitsAllocated)
	}
	var enc image.Image
	switch img.Samples {
	case 1:
		g := image.NewGray(image.Rect(0, 0, img.Columns, img.Rows))
		copy(g.Pix, img.Pix)
		enc = g
	case 3:
		rgba := image.NewRGBA(image.Rect(0, 0, img.Columns, img.Rows))
		for p := 0; p < img.Rows*img.Columns; p++ {
			rgba.Pix[p*4] = img.Pix[p*3]
			rgba.Pix[p*4+1] = img.Pix[p*3+1]
			rgba.Pix[p*4+2] = img.Pix[p*3+2]
			rgba.Pix[p*4+3] = 0xff
		}
		enc = rgba
	default:
		return nil, fmt.Errorf("cannot encode %d-sample pixels as JPEG", img.Samples)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, enc, &jpeg.Options{Quality: 90}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// AttachTo rewrites the image pipeline tags on the header data set and
// appends the pixel data element for the output syntax.
func (d *DicomOutputData) AttachTo(ds *dicom.DataSet) error {
	d.adaptTags(ds)
	if d.palette != nil {
		for _, e := range d.palette.Elements {
			setElement(ds, e)
		}
	}
	if isNativeSyntax(d.tsuid) {
		pix := concatFrames(d.frames)
		if len(pix)%2 == 1 {
			pix = append(pix, 0)
		}
		vr := "OB"
		if d.bits > 8 {
			vr = "OW"
		}
		setElement(ds, &dicom.Element{
			Tag:   dicom.TagPixelData,
			VR:    vr,
			Value: []interface{}{dicom.PixelDataInfo{Frames: [][]byte{pix}}},
		})
		return nil
	}
	info := dicom.PixelDataInfo{}
	var off uint32
	for _, f := range d.frames {
		if len(f)%2 == 1 {
			f = append(f, 0)
		}
		info.Offsets = append(info.Offsets, off)
		info.Frames = append(info.Frames, f)
		off += uint32(len(f)) + 8
	}
	setElement(ds, &dicom.Element{
		Tag:             dicom.TagPixelData,
		VR:              "OB",
		UndefinedLength: true,
		Value:           []interface{}{info},
	})
	return nil
}

// adaptTags makes the sample-layout tags describe the re-encoded frames.
func (d *DicomOutputData) adaptTags(ds *dicom.DataSet) {
	bits := d.bits
	samples := d.samples
	setElement(ds, dicom.MustNewElement(dicom.TagSamplesPerPixel, uint16(samples)))
	setElement(ds, dicom.MustNewElement(dicom.TagBitsAllocated, uint16(bits)))
	setElement(ds, dicom.MustNewElement(dicom.TagBitsStored, uint16(bits)))
	setElement(ds, dicom.MustNewElement(dicom.TagHighBit, uint16(bits-1)))
	setElement(ds, dicom.MustNewElement(dicom.TagPixelRepresentation, uint16(0)))
	setElement(ds, dicom.MustNewElement(dicom.TagNumberOfFrames, fmt.Sprintf("%d", len(d.frames))))
	if samples > 1 {
		setElement(ds, dicom.MustNewElement(dicom.TagPlanarConfiguration, uint16(0)))
	}
	photometric := "MONOCHROME2"
	if samples == 3 {
		photometric = "RGB"
	}
	if samples == 1 && d.desc.Photometric == "PALETTE COLOR" {
		photometric = d.desc.Photometric
	}
	if d.tsuid == JPEGBaseline8Bit {
		if samples == 3 {
			photometric = "YBR_FULL_422"
		}
		setElement(ds, dicom.MustNewElement(dicom.TagLossyImageCompression, "01"))
	}
	setElement(ds, dicom.MustNewElement(dicom.TagPhotometricInterpretation, photometric))
}
