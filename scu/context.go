package scu

import (
	"fmt"
)

// PresentationContext is one (abstract syntax, transfer syntax) pair the
// requestor proposes during A-ASSOCIATE. One context carries exactly one
// transfer syntax; a SOP class needing several syntaxes gets several
// contexts.
type PresentationContext struct {
	PCID           byte
	AbstractSyntax string
	TransferSyntax string
}

// contextTable tracks the requested contexts and, once the acceptor has
// answered, the accepted transfer syntax per pcid. Requested state survives
// a close/reopen cycle; accepted state does not.
type contextTable struct {
	requested []*PresentationContext
	byPcid    map[byte]*PresentationContext
	nextPcid  int

	accepted map[byte]string
}

func newContextTable() *contextTable {
	return &contextTable{
		byPcid:   make(map[byte]*PresentationContext),
		nextPcid: 1,
		accepted: make(map[byte]string),
	}
}

// addRequested registers a (cuid, tsuid) pair, assigning the next odd pcid.
// Re-registering a known pair is a no-op.
func (t *contextTable) addRequested(cuid, tsuid string) (*PresentationContext, error) {
	for _, pc := range t.requested {
		if pc.AbstractSyntax == cuid && pc.TransferSyntax == tsuid {
			return pc, nil
		}
	}
	if t.nextPcid > 255 {
		return nil, fmt.Errorf("scu: presentation context table full")
	}
	pc := &PresentationContext{PCID: byte(t.nextPcid), AbstractSyntax: cuid, TransferSyntax: tsuid}
	t.nextPcid += 2
	t.requested = append(t.requested, pc)
	t.byPcid[pc.PCID] = pc
	return pc, nil
}

// requestedPcids lists the pcids proposed for a SOP class, in request order.
func (t *contextTable) requestedPcids(cuid string) []byte {
	var out []byte
	for _, pc := range t.requested {
		if pc.AbstractSyntax == cuid {
			out = append(out, pc.PCID)
		}
	}
	return out
}

// requestedPcidsFor lists the pcids proposed for an exact (cuid, tsuid) pair.
func (t *contextTable) requestedPcidsFor(cuid, tsuid string) []byte {
	var out []byte
	for _, pc := range t.requested {
		if pc.AbstractSyntax == cuid && pc.TransferSyntax == tsuid {
			out = append(out, pc.PCID)
		}
	}
	return out
}

// setAccepted installs the acceptor's answer. Pcids the requestor never
// proposed are rejected.
func (t *contextTable) setAccepted(acc map[byte]string) error {
	t.accepted = make(map[byte]string, len(acc))
	for pcid, tsuid := range acc {
		if _, ok := t.byPcid[pcid]; !ok {
			return fmt.Errorf("scu: acceptor returned unknown presentation context %d", pcid)
		}
		t.accepted[pcid] = tsuid
	}
	return nil
}

func (t *contextTable) clearAccepted() {
	t.accepted = make(map[byte]string)
}

func (t *contextTable) acceptedSyntax(pcid byte) (string, bool) {
	tsuid, ok := t.accepted[pcid]
	return tsuid, ok
}

func (t *contextTable) hasAccepted() bool {
	return len(t.accepted) > 0
}
