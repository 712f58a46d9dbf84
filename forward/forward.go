package forward

import (
	"errors"
	"fmt"
	"io"

	"github.com/yasushi-saito/go-dicom"
	"v.io/x/lib/vlog"
)

// StoreOneDestination forwards one inbound instance to a single destination.
func StoreOneDestination(source *DicomNode, dest ForwardDestination, p *Params) error {
	return StoreMultipleDestination(source, []ForwardDestination{dest}, p)
}

// StoreMultipleDestination fans one inbound instance out to every
// destination. The stream is parsed exactly once; when there is more than
// one destination a pristine deep copy is kept so each destination's editors
// see unedited attributes. A failure on one destination is logged and does
// not stop the others, except for an editor-requested connection abort,
// which releases the inbound association and propagates.
func StoreMultipleDestination(source *DicomNode, dests []ForwardDestination, p *Params) error {
	if len(dests) == 0 {
		return fmt.Errorf("no destination configured for %s", source)
	}
	if p.CUID() == MediaStorageDirectoryStorage {
		vlog.Infof("warning: skipping DICOMDIR instance %s from %s", p.IUID(), source)
		return nil
	}
	ds, err := readDataSetFrom(p)
	if err != nil {
		for _, dest := range dests {
			progressNotify(dest, p.IUID(), p.CUID(), true)
		}
		return fmt.Errorf("parsing instance %s: %v", p.IUID(), err)
	}
	var pristine *dicom.DataSet
	if len(dests) > 1 {
		pristine = &dicom.DataSet{}
		copyDataSet(ds, pristine)
	}
	for i, dest := range dests {
		work := ds
		if i > 0 {
			work = &dicom.DataSet{}
			copyDataSet(pristine, work)
		}
		if err := transferTo(source, dest, p, work); err != nil {
			var ab *AbortError
			if errors.As(err, &ab) && ab.Abort == AbortConnection {
				return err
			}
			vlog.Errorf("forwarding instance %s to destination %d: %v", p.IUID(), i, err)
		}
	}
	return nil
}

func transferTo(source *DicomNode, dest ForwardDestination, p *Params, ds *dicom.DataSet) error {
	switch d := dest.(type) {
	case *DicomDestination:
		return transferDicom(source, d, p, ds)
	case *WebDestination:
		return transferWeb(source, d, p, ds)
	}
	return fmt.Errorf("unknown destination type %T", dest)
}

// applyEditors runs the destination's editor chain and translates a
// requested abort into an error. A connection abort releases the inbound
// association before returning.
func applyEditors(ds *dicom.DataSet, dest ForwardDestination, ctx *AttributeEditorContext, p *Params) error {
	for _, ed := range dest.Editors() {
		ed.Apply(ds, ctx)
	}
	switch ctx.Abort {
	case AbortFile:
		return &AbortError{Abort: AbortFile, Message: abortMessage(ctx)}
	case AbortConnection:
		p.releaseInbound()
		return &AbortError{Abort: AbortConnection, Message: abortMessage(ctx)}
	}
	return nil
}

func abortMessage(ctx *AttributeEditorContext) string {
	if ctx.AbortMessage != "" {
		return ctx.AbortMessage
	}
	return "aborted by attribute editor"
}

// transferDicom sends one instance to a classical DICOM peer. Attribute
// editors run first; the instance UID is re-read afterwards in case an
// editor rewrote it. Negotiation and the C-STORE announcement stay on the
// inbound SOP class, so the chosen presentation context always matches the
// announced class. The presentation context is picked per instance, and the
// pixel data is transcoded only when the negotiated syntax or a mask
// requires it.
func transferDicom(source *DicomNode, dest *DicomDestination, p *Params, ds *dicom.DataSet) (err error) {
	defer dest.SCU.TriggerCloseExecutor()
	iuid, cuid := p.IUID(), p.CUID()
	defer func() { progressNotify(dest, iuid, cuid, err != nil) }()

	ctx := newEditorContext(source, dest)
	if err = applyEditors(ds, dest, ctx, p); err != nil {
		return err
	}
	if v, ok := dsString(ds, dicom.TagSOPInstanceUID); ok {
		iuid = v
	}

	if err = PrepareTransfer(dest, cuid, p.TransferSyntax()); err != nil {
		return fmt.Errorf("preparing association to %s: %v", dest.SCU.Peer(), err)
	}
	as := dest.SCU.Association()
	pcid, ok := SelectTransferSyntax(as, p)
	if !ok {
		return fmt.Errorf("no accepted presentation context for %s / %s", cuid, p.TransferSyntax())
	}
	outTsuid, err := as.TransferSyntax(pcid)
	if err != nil {
		return err
	}
	src, err := imageSource(ds, p.TransferSyntax(), outTsuid, ctx)
	if err != nil {
		return err
	}
	// An unedited instance leaving under its inbound syntax is relayed
	// verbatim.
	if src == nil && len(dest.Editors()) == 0 && outTsuid == p.TransferSyntax() {
		if raw := p.rawBytes(); raw != nil {
			return as.CStore(pcid, cuid, iuid, func(out io.Writer, tsuid string) error {
				_, werr := out.Write(raw)
				return werr
			})
		}
	}
	w, err := buildDataWriter(ds, outTsuid, ctx, src)
	if err != nil {
		return err
	}
	return as.CStore(pcid, cuid, iuid, w)
}
