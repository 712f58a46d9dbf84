package forward

import (
	"bytes"
	"fmt"

	"github.com/yasushi-saito/go-dicom"

	"github.com/nicolasvandooren/weasis-dicom-tools/stowrs"
)

// transferWeb sends one instance to a STOW-RS endpoint. Each instance goes
// out as its own request. The output syntax applies the same substitution
// table as the DICOM path; a mask or a required recode routes the instance
// through the transcoder, an untouched instance is relayed verbatim, and
// everything else is re-serialized from the parsed data set.
func transferWeb(source *DicomNode, dest *WebDestination, p *Params, ds *dicom.DataSet) (err error) {
	iuid, cuid := p.IUID(), p.CUID()
	defer func() { progressNotify(dest, iuid, cuid, err != nil) }()

	ctx := newEditorContext(source, dest)
	if err = applyEditors(ds, dest, ctx, p); err != nil {
		return err
	}
	if v, ok := dsString(ds, dicom.TagSOPInstanceUID); ok {
		iuid = v
	}

	outTsuid := substituteTransferSyntax(p.TransferSyntax())
	src, err := imageSource(ds, p.TransferSyntax(), outTsuid, ctx)
	if err != nil {
		return err
	}
	// An unedited instance keeping its inbound syntax goes out as the raw
	// stream under a synthesized file meta group.
	if src == nil && len(dest.Editors()) == 0 && outTsuid == p.TransferSyntax() {
		if raw := p.rawBytes(); raw != nil {
			fmi := stowrs.FileMetaInformation{
				SOPClassUID:       cuid,
				SOPInstanceUID:    iuid,
				TransferSyntaxUID: outTsuid,
			}
			if err = dest.Client.UploadDicom(bytes.NewReader(raw), fmi); err != nil {
				return fmt.Errorf("uploading instance %s: %v", iuid, err)
			}
			return nil
		}
	}
	if src != nil {
		payload, perr := PreparePayload(ds, outTsuid, src, ctx)
		if perr != nil {
			return perr
		}
		if err = dest.Client.UploadPayload(payload); err != nil {
			return fmt.Errorf("uploading instance %s: %v", iuid, err)
		}
		return nil
	}
	if err = dest.Client.UploadDataSet(ds, outTsuid); err != nil {
		return fmt.Errorf("uploading instance %s: %v", iuid, err)
	}
	return nil
}
