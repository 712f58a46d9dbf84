package forward

import (
	"fmt"

	"github.com/yasushi-saito/go-dicom"
)

// BytesWithImageDescriptor exposes the stored frames of an instance without
// decoding them, so the transcoder can pull one frame at a time.
type BytesWithImageDescriptor interface {
	ImageDescriptor() *ImageDescriptor
	// Bytes returns the stored bytes of one frame, zero based.
	Bytes(frame int) ([]byte, error)
	// TransferSyntax is the syntax the stored frames are encoded under.
	TransferSyntax() string
	// PaletteColorLookupTable returns the palette LUT tags of the source
	// instance, or nil when it carries none.
	PaletteColorLookupTable() *dicom.DataSet
}

// imageSource decides whether the instance needs its pixel data rebuilt and,
// if so, wraps it as a frame source. It returns (nil, nil) when the stored
// bytes can be relayed untouched: no mask to burn in and either the syntax
// already matches or the source is native (a native buffer re-serializes
// under any native output syntax without help).
func imageSource(ds *dicom.DataSet, origTsuid, outTsuid string, ctx *AttributeEditorContext) (BytesWithImageDescriptor, error) {
	elem, info := pixelDataOf(ds)
	if elem == nil {
		return nil, nil
	}
	maskable := ctx != nil && ctx.Mask != nil && !isLossyVideo(origTsuid)
	needsRecode := outTsuid != origTsuid && !isNativeSyntax(origTsuid)
	if !maskable && !needsRecode {
		return nil, nil
	}
	desc, err := newImageDescriptor(ds)
	if err != nil {
		return nil, err
	}
	src := &frameSource{ds: ds, desc: desc, tsuid: origTsuid, info: info}
	switch {
	case info == nil:
		raw, ok := elem.Value[0].([]byte)
		if !ok || !isNativeSyntax(origTsuid) {
			return nil, fmt.Errorf("pixel data element has unexpected value type %T", elem.Value[0])
		}
		src.native = raw
	case isNativeSyntax(origTsuid):
		src.native = concatFrames(info.Frames)
	}
	return src, nil
}

type frameSource struct {
	ds    *dicom.DataSet
	desc  *ImageDescriptor
	tsuid string

	// native is the contiguous buffer for native syntaxes.
	native []byte
	// info holds the fragments for encapsulated syntaxes.
	info *dicom.PixelDataInfo

	// fragGroups memoizes the fragment indices of each frame once the JPEG
	// stream has been scanned.
	fragGroups [][]int
}

func (s *frameSource) ImageDescriptor() *ImageDescriptor { return s.desc }
func (s *frameSource) TransferSyntax() string            { return s.tsuid }

func (s *frameSource) Bytes(frame int) ([]byte, error) {
	if frame < 0 || frame >= s.desc.Frames {
		return nil, fmt.Errorf("frame %d out of range, image has %d", frame, s.desc.Frames)
	}
	if s.native != nil {
		length := s.desc.FrameLength()
		start := frame * length
		if start+length > len(s.native) {
			return nil, fmt.Errorf("frame %d out of the stream limit (%d bytes, frame length %d)",
				frame, len(s.native), length)
		}
		return s.native[start : start+length], nil
	}
	frags := s.info.Frames
	switch {
	case s.desc.Frames == 1:
		// A single frame owns every fragment.
		if len(frags) == 1 {
			return frags[0], nil
		}
		return concatFrames(frags), nil
	case s.tsuid == RLELossless && len(frags) == s.desc.Frames:
		// One fragment per frame, the layout RLE mandates. JPEG-family
		// streams still get the codestream scan below so a continuation
		// fragment is never mistaken for a frame.
		return frags[frame], nil
	default:
		if err := s.groupFragments(); err != nil {
			return nil, err
		}
		group := s.fragGroups[frame]
		if len(group) == 1 {
			return frags[group[0]], nil
		}
		parts := make([][]byte, 0, len(group))
		for _, i := range group {
			parts = append(parts, frags[i])
		}
		return concatFrames(parts), nil
	}
}

// groupFragments assigns fragments to frames by scanning for codestream
// starts: JPEG SOI (FF D8 FF) or JPEG 2000 SOC (FF 4F FF 51). The grouping
// is computed once and reused for every frame.
func (s *frameSource) groupFragments() error {
	if s.fragGroups != nil {
		return nil
	}
	groups := make([][]int, 0, s.desc.Frames)
	for i, f := range s.info.Frames {
		if codestreamStart(f) {
			groups = append(groups, []int{i})
		} else {
			if len(groups) == 0 {
				return fmt.Errorf("first pixel data fragment is not a codestream start")
			}
			last := len(groups) - 1
			groups[last] = append(groups[last], i)
		}
	}
	if len(groups) != s.desc.Frames {
		return fmt.Errorf("cannot match %d pixel data fragments to %d frames",
			len(s.info.Frames), s.desc.Frames)
	}
	s.fragGroups = groups
	return nil
}

func codestreamStart(f []byte) bool {
	if len(f) < 4 {
		return false
	}
	if f[0] == 0xff && f[1] == 0xd8 && f[2] == 0xff {
		return true
	}
	return f[0] == 0xff && f[1] == 0x4f && f[2] == 0xff && f[3] == 0x51
}

// paletteTags are carried over verbatim when the source uses a palette
// color LUT, so a receiver can still interpret re-encoded MONOCHROME data
// the way the original modality intended.
var paletteTags = []dicom.Tag{
	dicom.TagRedPaletteColorLookupTableDescriptor,
	dicom.TagGreenPaletteColorLookupTableDescriptor,
	dicom.TagBluePaletteColorLookupTableDescriptor,
	dicom.TagRedPaletteColorLookupTableData,
	dicom.TagGreenPaletteColorLookupTableData,
	dicom.TagBluePaletteColorLookupTableData,
	dicom.TagSegmentedRedPaletteColorLookupTableData,
	dicom.TagSegmentedGreenPaletteColorLookupTableData,
	dicom.TagSegmentedBluePaletteColorLookupTableData,
}

func (s *frameSource) PaletteColorLookupTable() *dicom.DataSet {
	var out *dicom.DataSet
	for _, tag := range paletteTags {
		if elem, err := s.ds.FindElementByTag(tag); err == nil {
			if out == nil {
				out = &dicom.DataSet{}
			}
			out.Elements = append(out.Elements, elem)
		}
	}
	return out
}
