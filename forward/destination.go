package forward

import (
	"fmt"

	"github.com/nicolasvandooren/weasis-dicom-tools/scu"
	"github.com/nicolasvandooren/weasis-dicom-tools/stowrs"
)

// DicomNode identifies an application entity.
type DicomNode struct {
	AET  string
	Host string
	Port int
}

func (n *DicomNode) String() string {
	if n == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s@%s:%d", n.AET, n.Host, n.Port)
}

// ForwardDestination is the closed, two-variant set of forwarding targets:
// *DicomDestination (C-STORE over an association) and *WebDestination
// (STOW-RS single-file upload). The forward controller switches on the
// concrete type at its entry points.
type ForwardDestination interface {
	Editors() []AttributeEditor
	Mask() *MaskArea
	ProgressSink() ProgressSink

	forwardDestination()
}

// DestinationOptions carries the fields shared by both destination variants.
type DestinationOptions struct {
	Editors  []AttributeEditor
	Mask     *MaskArea
	Progress ProgressSink
}

// DicomDestination forwards instances to a classical DICOM peer through a
// long-lived outbound association.
type DicomDestination struct {
	SCU *scu.StoreSCU

	editors []AttributeEditor
	mask    *MaskArea
	sink    ProgressSink
}

// NewDicomDestination wraps an outbound store SCU as a forward destination.
func NewDicomDestination(s *scu.StoreSCU, opts DestinationOptions) *DicomDestination {
	return &DicomDestination{
		SCU:     s,
		editors: opts.Editors,
		mask:    opts.Mask,
		sink:    opts.Progress,
	}
}

func (d *DicomDestination) Editors() []AttributeEditor { return d.editors }
func (d *DicomDestination) Mask() *MaskArea { return d.mask }
func (d *DicomDestination) ProgressSink() ProgressSink { return d.sink }
func (d *DicomDestination) forwardDestination() {}

// WebDestination forwards instances to a STOW-RS endpoint, one file per
// request.
type WebDestination struct {
	Client *stowrs.Client

	editors []AttributeEditor
	mask    *MaskArea
	sink    ProgressSink
}

// NewWebDestination wraps a STOW-RS client as a forward destination.
func NewWebDestination(c *stowrs.Client, opts DestinationOptions) *WebDestination {
	return &WebDestination{
		Client:  c,
		editors: opts.Editors,
		mask:    opts.Mask,
		sink:    opts.Progress,
	}
}

func (d *WebDestination) Editors() []AttributeEditor { return d.editors }
func (d *WebDestination) Mask() *MaskArea { return d.mask }
func (d *WebDestination) ProgressSink() ProgressSink { return d.sink }
func (d *WebDestination) forwardDestination() {}
