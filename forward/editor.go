package forward

import (
	"github.com/yasushi-saito/go-dicom"
)

// Abort is the escalation level an attribute editor may request.
type Abort int

const (
	// AbortNone continues the transfer.
	AbortNone Abort = iota
	// AbortFile drops this instance for this destination; the outbound
	// association stays usable.
	AbortFile
	// AbortConnection releases the inbound association and aborts the
	// whole forwarding invocation.
	AbortConnection
)

// AttributeEditor mutates a data set before it is written to a destination.
// Editors run in list order and share one context per (destination,
// instance).
type AttributeEditor interface {
	Apply(ds *dicom.DataSet, ctx *AttributeEditorContext)
}

// AttributeEditorContext is the mutable per-destination, per-instance state
// shared by a destination's editor chain.
type AttributeEditorContext struct {
	Abort        Abort
	AbortMessage string

	// Mask, when set, is burned into the pixel data before it leaves.
	Mask *MaskArea

	// Source identifies the forwarding node the instance arrived on.
	Source *DicomNode
}

func newEditorContext(source *DicomNode, dest ForwardDestination) *AttributeEditorContext {
	return &AttributeEditorContext{
		Mask:   dest.Mask(),
		Source: source,
	}
}

// AbortError carries an editor-requested abort out of the transfer path so
// the controller can tell per-file aborts from connection aborts.
type AbortError struct {
	Abort   Abort
	Message string
}

func (e *AbortError) Error() string { return e.Message }

// AttributeEditorFunc adapts a plain function to the AttributeEditor
// interface.
type AttributeEditorFunc func(ds *dicom.DataSet, ctx *AttributeEditorContext)

func (f AttributeEditorFunc) Apply(ds *dicom.DataSet, ctx *AttributeEditorContext) { f(ds, ctx) }
