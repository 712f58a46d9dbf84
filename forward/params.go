package forward

import (
	"io"

	"v.io/x/lib/vlog"
)

// InboundAssociation is the handle to the association that delivered the
// inbound instance. The forwarder only ever releases it, and only when an
// editor requests a connection abort.
type InboundAssociation interface {
	Release() error
}

// Params carries one inbound composite object through a single forwarding
// invocation. The data stream is read at most once; for multi-destination
// fan-out the parsed copy is re-materialized instead of re-reading it.
type Params struct {
	iuid  string
	cuid  string
	tsuid string
	pcid  byte
	data  io.Reader
	as    InboundAssociation

	// raw holds the bare data set bytes once the stream has been consumed,
	// so an unedited instance can be relayed verbatim.
	raw []byte
}

// NewParams builds the per-instance record handed to the store entry points.
// data holds the bare data set bytes (no preamble) encoded under tsuid, as
// delivered by a C-STORE-SCP.
func NewParams(iuid, cuid, tsuid string, pcid byte, data io.Reader, as InboundAssociation) *Params {
	return &Params{
		iuid:  iuid,
		cuid:  cuid,
		tsuid: tsuid,
		pcid:  pcid,
		data:  data,
		as:    as,
	}
}

// IUID returns the SOP instance UID as announced by the inbound C-STORE.
// Editors may rewrite SOPInstanceUID; callers that need the outbound value
// must re-read it from the edited data set.
func (p *Params) IUID() string { return p.iuid }

// CUID returns the SOP class UID.
func (p *Params) CUID() string { return p.cuid }

// TransferSyntax returns the inbound transfer syntax UID.
func (p *Params) TransferSyntax() string { return p.tsuid }

// PCID returns the inbound presentation context ID.
func (p *Params) PCID() byte { return p.pcid }

// Data returns the read-once inbound data stream.
func (p *Params) Data() io.Reader { return p.data }

// rawBytes returns the consumed bare data set bytes, or nil when the stream
// has not been read yet or arrived as a part-10 file.
func (p *Params) rawBytes() []byte { return p.raw }

// releaseInbound releases the inbound association, if any.
func (p *Params) releaseInbound() {
	if p.as != nil {
		if err := p.as.Release(); err != nil {
			vlog.Errorf("Releasing inbound association: %v", err)
		}
	}
}
