package forward

import (
	"io"

	"github.com/nicolasvandooren/weasis-dicom-tools/scu"
	"github.com/yasushi-saito/go-dicom"
	"github.com/yasushi-saito/go-dicom/dicomio"
)

// EncodeDataSet serializes ds as a bare data set under tsuid. The file meta
// group is skipped; C-STORE data and STOW-RS bodies re-frame the meta group
// themselves.
func EncodeDataSet(out io.Writer, ds *dicom.DataSet, tsuid string) error {
	e := dicomio.NewBytesEncoderWithTransferSyntax(tsuid)
	for _, elem := range ds.Elements {
		if elem.Tag.Group == dicom.TagMetadataGroup {
			continue
		}
		dicom.WriteElement(e, elem)
	}
	if err := e.Error(); err != nil {
		return err
	}
	_, err := out.Write(e.Bytes())
	return err
}

// buildDataWriter returns the C-STORE payload writer for one instance. When
// src is nil the (already edited) data set is serialized as-is; otherwise
// the frames are transcoded first and the rebuilt instance is serialized
// under the negotiated syntax.
func buildDataWriter(ds *dicom.DataSet, outTsuid string, ctx *AttributeEditorContext, src BytesWithImageDescriptor) (scu.DataWriter, error) {
	if src == nil {
		return func(out io.Writer, tsuid string) error {
			return EncodeDataSet(out, ds, tsuid)
		}, nil
	}
	imgData, err := transcodeFrames(src, outTsuid, ctx.Mask)
	if err != nil {
		return nil, err
	}
	header := headerDataSet(ds)
	if err := imgData.AttachTo(header); err != nil {
		return nil, err
	}
	return func(out io.Writer, tsuid string) error {
		return EncodeDataSet(out, header, tsuid)
	}, nil
}
