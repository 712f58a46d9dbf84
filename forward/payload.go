package forward

import (
	"bytes"
	"fmt"
	"io"

	"github.com/nicolasvandooren/weasis-dicom-tools/stowrs"
	"github.com/yasushi-saito/go-dicom"
)

// PreparePayload transcodes the instance's frames and wraps the rebuilt
// part-10 file as a STOW-RS payload. The byte size is not known up front, so
// Size reports -1 and the client streams with chunked encoding. Each
// NewInputStream call re-serializes from the in-memory data set, so the
// payload survives an HTTP retry.
func PreparePayload(ds *dicom.DataSet, outTsuid string, src BytesWithImageDescriptor, ctx *AttributeEditorContext) (stowrs.Payload, error) {
	imgData, err := transcodeFrames(src, outTsuid, ctx.Mask)
	if err != nil {
		return nil, err
	}
	header := headerDataSet(ds)
	if err := imgData.AttachTo(header); err != nil {
		return nil, err
	}
	cuid, ok := dsString(header, dicom.TagSOPClassUID)
	if !ok {
		return nil, fmt.Errorf("instance carries no SOP class UID")
	}
	iuid, ok := dsString(header, dicom.TagSOPInstanceUID)
	if !ok {
		return nil, fmt.Errorf("instance carries no SOP instance UID")
	}
	return &transcodedPayload{ds: header, cuid: cuid, iuid: iuid, tsuid: outTsuid}, nil
}

type transcodedPayload struct {
	ds    *dicom.DataSet
	cuid  string
	iuid  string
	tsuid string
}

func (p *transcodedPayload) Size() int64 { return -1 }

func (p *transcodedPayload) NewInputStream() (io.ReadCloser, error) {
	e := dicom.NewEncoder(nil, dicom.UnknownVR)
	dicom.WriteFileHeader(e, p.tsuid, p.cuid, p.iuid)
	var body bytes.Buffer
	if err := EncodeDataSet(&body, p.ds, p.tsuid); err != nil {
		return nil, err
	}
	e.WriteBytes(body.Bytes())
	framed, err := e.Finish()
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(framed)), nil
}
