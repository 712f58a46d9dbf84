// Package scu implements a long-lived C-STORE service class user: an
// outbound association that is opened lazily, reused across instances, and
// closed after an idle period.
package scu

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"

	"v.io/x/lib/vlog"
)

// DataWriter serializes one instance's data set, encoded under tsuid, into
// out. It is invoked once per C-STORE, after the presentation context has
// been picked.
type DataWriter func(out io.Writer, tsuid string) error

// Wire is the association transport. The production implementation speaks
// the upper layer protocol over TCP; tests substitute an in-memory fake.
type Wire interface {
	// Associate proposes the given contexts and returns the accepted
	// transfer syntax per pcid. Rejected contexts are absent from the map.
	Associate(contexts []*PresentationContext) (map[byte]string, error)
	// CStore issues one C-STORE-RQ on the given context and returns the
	// peer's DIMSE status.
	CStore(pcid byte, cuid, iuid, tsuid string, data []byte) (uint16, error)
	// Release performs A-RELEASE and closes the transport.
	Release() error
}

// Association is the negotiated state of one open association. Open means
// the peer accepted at least one presentation context.
type Association struct {
	mu    sync.Mutex
	table *contextTable
	wire  Wire
	open  bool
}

func newAssociation() *Association {
	return &Association{table: newContextTable()}
}

// IsOpen reports whether the association is established and usable.
func (a *Association) IsOpen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.open && a.table.hasAccepted()
}

// TransferSyntax returns the transfer syntax the acceptor picked for pcid.
func (a *Association) TransferSyntax(pcid byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	tsuid, ok := a.table.acceptedSyntax(pcid)
	if !ok {
		return "", fmt.Errorf("scu: presentation context %d not accepted", pcid)
	}
	return tsuid, nil
}

// AcceptedTransferSyntax reports whether pcid was accepted with exactly
// tsuid.
func (a *Association) AcceptedTransferSyntax(pcid byte, tsuid string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	got, ok := a.table.acceptedSyntax(pcid)
	return ok && got == tsuid
}

// PcidsFor lists the requested pcids for a SOP class, whether or not the
// acceptor took them.
func (a *Association) PcidsFor(cuid string) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.table.requestedPcids(cuid)
}

// RequestedPcids lists the pcids requested for the exact (cuid, tsuid) pair.
func (a *Association) RequestedPcids(cuid, tsuid string) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.table.requestedPcidsFor(cuid, tsuid)
}

// CStore buffers the instance with the writer and issues one C-STORE-RQ on
// pcid. A non-zero DIMSE status is an error.
func (a *Association) CStore(pcid byte, cuid, iuid string, w DataWriter) error {
	a.mu.Lock()
	tsuid, ok := a.table.acceptedSyntax(pcid)
	wire := a.wire
	open := a.open
	a.mu.Unlock()
	if !open || wire == nil {
		return fmt.Errorf("scu: association not open")
	}
	if !ok {
		return fmt.Errorf("scu: presentation context %d not accepted", pcid)
	}
	var buf bytes.Buffer
	if err := w(&buf, tsuid); err != nil {
		return fmt.Errorf("scu: serializing %s: %v", iuid, err)
	}
	status, err := wire.CStore(pcid, cuid, iuid, tsuid, buf.Bytes())
	if err != nil {
		return err
	}
	if status != 0 {
		return fmt.Errorf("scu: C-STORE of %s failed with status 0x%04x", iuid, status)
	}
	return nil
}

// StoreSCU manages one destination's association lifecycle: lazy open,
// reuse, renegotiation, and close after idle.
type StoreSCU struct {
	mu         sync.Mutex
	dial       func() (Wire, error)
	peer       string
	assoc      *Association
	idle       time.Duration
	closeTimer *time.Timer
}

// NewStoreSCU builds a store SCU that dials the peer on demand. peer is a
// display name used in errors and logs. An idleTimeout of zero disables the
// close-after-idle executor.
func NewStoreSCU(peer string, dial func() (Wire, error), idleTimeout time.Duration) *StoreSCU {
	return &StoreSCU{
		dial:  dial,
		peer:  peer,
		assoc: newAssociation(),
		idle:  idleTimeout,
	}
}

// Peer returns the destination's display name.
func (s *StoreSCU) Peer() string { return s.peer }

// Association returns the association state. The pointer is stable across
// close/reopen cycles.
func (s *StoreSCU) Association() *Association { return s.assoc }

// AddPresentationContext registers a (cuid, tsuid) pair for the next
// A-ASSOCIATE. Idempotent. Takes effect on an open association only after a
// Close(true) / Open cycle.
func (s *StoreSCU) AddPresentationContext(cuid, tsuid string) error {
	a := s.assoc
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := a.table.addRequested(cuid, tsuid)
	return err
}

// Open dials the peer and negotiates the registered contexts. Open fails
// when the peer rejects every context, keeping the open state equivalent to
// "at least one context accepted".
func (s *StoreSCU) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.assoc

	a.mu.Lock()
	requested := append([]*PresentationContext(nil), a.table.requested...)
	a.mu.Unlock()
	if len(requested) == 0 {
		return fmt.Errorf("scu: no presentation contexts registered for %s", s.peer)
	}
	wire, err := s.dial()
	if err != nil {
		return fmt.Errorf("scu: connecting to %s: %v", s.peer, err)
	}
	acc, err := wire.Associate(requested)
	if err != nil {
		wire.Release()
		return fmt.Errorf("scu: associating with %s: %v", s.peer, err)
	}
	a.mu.Lock()
	accErr := a.table.setAccepted(acc)
	accepted := accErr == nil && a.table.hasAccepted()
	if accepted {
		a.wire = wire
		a.open = true
	} else {
		a.table.clearAccepted()
	}
	a.mu.Unlock()
	if accErr != nil {
		wire.Release()
		return accErr
	}
	if !accepted {
		wire.Release()
		return fmt.Errorf("scu: %s rejected every presentation context", s.peer)
	}
	vlog.VI(1).Infof("Association with %s established, %d contexts accepted", s.peer, len(acc))
	return nil
}

// Close releases the association. With reopen set, the requested context
// table is kept so the caller can Open() again with an extended set; the
// accepted state is always discarded.
func (s *StoreSCU) Close(reopen bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !reopen && s.closeTimer != nil {
		s.closeTimer.Stop()
		s.closeTimer = nil
	}
	a := s.assoc
	a.mu.Lock()
	wire := a.wire
	a.wire = nil
	a.open = false
	a.table.clearAccepted()
	a.mu.Unlock()
	if wire == nil {
		return nil
	}
	if err := wire.Release(); err != nil {
		vlog.Errorf("Releasing association with %s: %v", s.peer, err)
	}
	return nil
}

// TriggerCloseExecutor (re)arms the idle timer. The association is released
// once no transfer has touched it for the configured idle period.
func (s *StoreSCU) TriggerCloseExecutor() {
	if s.idle <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closeTimer != nil {
		s.closeTimer.Stop()
	}
	s.closeTimer = time.AfterFunc(s.idle, func() {
		vlog.VI(1).Infof("Closing idle association with %s", s.peer)
		if err := s.Close(false); err != nil {
			vlog.Errorf("Closing idle association with %s: %v", s.peer, err)
		}
	})
}
