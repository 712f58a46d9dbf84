package forward

import (
	"github.com/nicolasvandooren/weasis-dicom-tools/scu"
)

// SelectTransferSyntax picks the outbound presentation context for one
// inbound instance. In order: the inbound pcid when the acceptor negotiated
// it for the inbound syntax; the first context advertised for the SOP class
// and accepted with the inbound syntax; the first context advertised for the
// SOP class and accepted as Explicit VR Little Endian. Returns false when
// nothing matches; the caller fails the transfer.
func SelectTransferSyntax(as *scu.Association, p *Params) (byte, bool) {
	if as.AcceptedTransferSyntax(p.PCID(), p.TransferSyntax()) {
		return p.PCID(), true
	}
	for _, pcid := range as.PcidsFor(p.CUID()) {
		if as.AcceptedTransferSyntax(pcid, p.TransferSyntax()) {
			return pcid, true
		}
	}
	for _, pcid := range as.PcidsFor(p.CUID()) {
		if as.AcceptedTransferSyntax(pcid, ExplicitVRLittleEndian) {
			return pcid, true
		}
	}
	return 0, false
}
