package forward

import (
	"sync"

	"github.com/nicolasvandooren/weasis-dicom-tools/scu"
)

// prepareMu serializes association (re)negotiation across every destination
// in the process. Reopening one association reshuffles peer state, so the
// gate is global, not per-destination. Steady-state C-STOREs run outside it.
var prepareMu sync.Mutex

// PrepareTransfer makes sure the destination's association can carry the
// given SOP class. It registers (cuid, outTsuid) - where outTsuid applies
// the substitution table - plus a (cuid, Explicit VR Little Endian)
// fallback, and opens the association. If the association is already open
// but its request lacks a context for the pair, it is closed with the
// reopen flag and opened again so the peer renegotiates with the new set.
// Idempotent: calling it again for a known (cuid, tsuid) is a no-op on an
// open association.
func PrepareTransfer(dest *DicomDestination, cuid, tsuid string) error {
	prepareMu.Lock()
	defer prepareMu.Unlock()

	outTsuid := substituteTransferSyntax(tsuid)
	s := dest.SCU
	if !s.Association().IsOpen() {
		if err := addContexts(s, cuid, outTsuid); err != nil {
			return err
		}
		return s.Open()
	}

	// Handle a dynamically new SOP class on a live association.
	missing := len(s.Association().RequestedPcids(cuid, outTsuid)) == 0
	if err := addContexts(s, cuid, outTsuid); err != nil {
		return err
	}
	if missing {
		if err := s.Close(true); err != nil {
			return err
		}
		return s.Open()
	}
	return nil
}

func addContexts(s *scu.StoreSCU, cuid, outTsuid string) error {
	if err := s.AddPresentationContext(cuid, outTsuid); err != nil {
		return err
	}
	if outTsuid != ExplicitVRLittleEndian {
		return s.AddPresentationContext(cuid, ExplicitVRLittleEndian)
	}
	return nil
}
