package forward

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/yasushi-saito/go-dicom"
)

// readDataSetFrom parses the inbound stream into a data set. C-STORE data
// streams carry bare data set bytes, so the part-10 preamble and file meta
// group are synthesized from the params before parsing, the same way a
// storage SCP materializes a received instance.
func readDataSetFrom(p *Params) (*dicom.DataSet, error) {
	raw, err := io.ReadAll(p.Data())
	if err != nil {
		return nil, fmt.Errorf("reading inbound instance %s: %v", p.IUID(), err)
	}
	if len(raw) > 132 && string(raw[128:132]) == "DICM" {
		return dicom.ReadDataSetInBytes(raw, dicom.ReadOptions{})
	}
	p.raw = raw
	e := dicom.NewEncoder(nil, dicom.UnknownVR)
	dicom.WriteFileHeader(e, p.TransferSyntax(), p.CUID(), p.IUID())
	e.WriteBytes(raw)
	framed, err := e.Finish()
	if err != nil {
		return nil, err
	}
	return dicom.ReadDataSetInBytes(framed, dicom.ReadOptions{})
}

// cloneElement deep-copies one element, including nested sequence items and
// pixel data fragments.
func cloneElement(e *dicom.Element) *dicom.Element {
	c := *e
	c.Value = make([]interface{}, 0, len(e.Value))
	for _, v := range e.Value {
		switch v := v.(type) {
		case *dicom.Element:
			c.Value = append(c.Value, cloneElement(v))
		case []byte:
			b := make([]byte, len(v))
			copy(b, v)
			c.Value = append(c.Value, b)
		case dicom.PixelDataInfo:
			info := v
			info.Offsets = append([]uint32(nil), v.Offsets...)
			info.Frames = make([][]byte, len(v.Frames))
			for i, f := range v.Frames {
				nf := make([]byte, len(f))
				copy(nf, f)
				info.Frames[i] = nf
			}
			c.Value = append(c.Value, info)
		default:
			c.Value = append(c.Value, v)
		}
	}
	return &c
}

// copyDataSet replaces dst's elements with a deep copy of src's.
func copyDataSet(src, dst *dicom.DataSet) {
	dst.Elements = make([]*dicom.Element, 0, len(src.Elements))
	for _, e := range src.Elements {
		dst.Elements = append(dst.Elements, cloneElement(e))
	}
}

// headerDataSet returns a fresh data set holding src's elements up to, but
// excluding, pixel data. Elements are shared, not copied; callers only
// append to the result.
func headerDataSet(src *dicom.DataSet) *dicom.DataSet {
	out := &dicom.DataSet{}
	for _, e := range src.Elements {
		if e.Tag == dicom.TagPixelData {
			break
		}
		out.Elements = append(out.Elements, e)
	}
	return out
}

// setElement replaces the element with the same tag, or appends.
func setElement(ds *dicom.DataSet, elem *dicom.Element) {
	for i, e := range ds.Elements {
		if e.Tag == elem.Tag {
			ds.Elements[i] = elem
			return
		}
	}
	ds.Elements = append(ds.Elements, elem)
}

// dsString reads the first string value of a tag.
func dsString(ds *dicom.DataSet, tag dicom.Tag) (string, bool) {
	elem, err := ds.FindElementByTag(tag)
	if err != nil {
		return "", false
	}
	s, err := elem.GetString()
	if err != nil {
		return "", false
	}
	return strings.TrimRight(s, "\x00 "), true
}

// dsInt reads the first value of a tag as an int, coercing the numeric and
// integer-string shapes the parser may produce.
func dsInt(ds *dicom.DataSet, tag dicom.Tag, def int) int {
	elem, err := ds.FindElementByTag(tag)
	if err != nil || len(elem.Value) == 0 {
		return def
	}
	switch v := elem.Value[0].(type) {
	case uint16:
		return int(v)
	case uint32:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int:
		return v
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return def
		}
		return n
	}
	return def
}

// pixelDataOf returns the pixel data element and its parsed fragment info,
// or nil when the data set carries no pixel data.
func pixelDataOf(ds *dicom.DataSet) (*dicom.Element, *dicom.PixelDataInfo) {
	elem, err := ds.FindElementByTag(dicom.TagPixelData)
	if err != nil || len(elem.Value) == 0 {
		return nil, nil
	}
	info, ok := elem.Value[0].(dicom.PixelDataInfo)
	if !ok {
		return elem, nil
	}
	return elem, &info
}

// concatFrames joins byte slices into one contiguous buffer.
func concatFrames(frames [][]byte) []byte {
	n := 0
	for _, f := range frames {
		n += len(f)
	}
	buf := bytes.NewBuffer(make([]byte, 0, n))
	for _, f := range frames {
		buf.Write(f)
	}
	return buf.Bytes()
}
