package scu

import (
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubWire struct {
	mu       sync.Mutex
	accept   func(pc *PresentationContext) (string, bool)
	stores   []stubStore
	released bool
}

type stubStore struct {
	pcid  byte
	cuid  string
	iuid  string
	tsuid string
	data  []byte
}

func (w *stubWire) Associate(contexts []*PresentationContext) (map[byte]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	acc := make(map[byte]string)
	for _, pc := range contexts {
		if w.accept == nil {
			acc[pc.PCID] = pc.TransferSyntax
			continue
		}
		if tsuid, ok := w.accept(pc); ok {
			acc[pc.PCID] = tsuid
		}
	}
	return acc, nil
}

func (w *stubWire) CStore(pcid byte, cuid, iuid, tsuid string, data []byte) (uint16, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stores = append(w.stores, stubStore{pcid, cuid, iuid, tsuid, data})
	return 0, nil
}

func (w *stubWire) Release() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.released = true
	return nil
}

const (
	testCUID  = "1.2.840.10008.5.1.4.1.1.7"
	testTsuid = "1.2.840.10008.1.2.1"
)

func TestContextTableAssignsOddPcids(t *testing.T) {
	tbl := newContextTable()
	pc1, err := tbl.addRequested("a", "x")
	require.NoError(t, err)
	pc2, err := tbl.addRequested("a", "y")
	require.NoError(t, err)
	pc3, err := tbl.addRequested("b", "x")
	require.NoError(t, err)
	assert.Equal(t, byte(1), pc1.PCID)
	assert.Equal(t, byte(3), pc2.PCID)
	assert.Equal(t, byte(5), pc3.PCID)

	// Duplicates return the existing context.
	again, err := tbl.addRequested("a", "y")
	require.NoError(t, err)
	assert.Equal(t, pc2.PCID, again.PCID)

	assert.Equal(t, []byte{1, 3}, tbl.requestedPcids("a"))
	assert.Equal(t, []byte{3}, tbl.requestedPcidsFor("a", "y"))
}

func TestContextTableRejectsUnknownAcceptedPcid(t *testing.T) {
	tbl := newContextTable()
	_, err := tbl.addRequested("a", "x")
	require.NoError(t, err)
	assert.Error(t, tbl.setAccepted(map[byte]string{7: "x"}))
}

func TestStoreSCUOpenAndStore(t *testing.T) {
	wire := &stubWire{}
	s := NewStoreSCU("peer", func() (Wire, error) { return wire, nil }, 0)
	require.NoError(t, s.AddPresentationContext(testCUID, testTsuid))
	require.NoError(t, s.Open())
	require.True(t, s.Association().IsOpen())

	w := func(out io.Writer, tsuid string) error {
		assert.Equal(t, testTsuid, tsuid)
		_, err := out.Write([]byte{1, 2, 3})
		return err
	}
	require.NoError(t, s.Association().CStore(1, testCUID, "1.2.3", w))
	require.Len(t, wire.stores, 1)
	assert.Equal(t, []byte{1, 2, 3}, wire.stores[0].data)
	assert.Equal(t, testTsuid, wire.stores[0].tsuid)
}

func TestStoreSCUOpenWithoutContexts(t *testing.T) {
	s := NewStoreSCU("peer", func() (Wire, error) { return &stubWire{}, nil }, 0)
	assert.Error(t, s.Open())
}

func TestStoreSCUOpenAllRejected(t *testing.T) {
	wire := &stubWire{accept: func(pc *PresentationContext) (string, bool) { return "", false }}
	s := NewStoreSCU("peer", func() (Wire, error) { return wire, nil }, 0)
	require.NoError(t, s.AddPresentationContext(testCUID, testTsuid))
	assert.Error(t, s.Open())
	assert.False(t, s.Association().IsOpen())
	assert.True(t, wire.released)
}

func TestStoreSCUDialFailure(t *testing.T) {
	s := NewStoreSCU("peer", func() (Wire, error) { return nil, fmt.Errorf("refused") }, 0)
	require.NoError(t, s.AddPresentationContext(testCUID, testTsuid))
	err := s.Open()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refused")
}

func TestStoreSCUCloseKeepsRequestedOnReopen(t *testing.T) {
	wire := &stubWire{}
	s := NewStoreSCU("peer", func() (Wire, error) { return wire, nil }, 0)
	require.NoError(t, s.AddPresentationContext(testCUID, testTsuid))
	require.NoError(t, s.Open())
	require.NoError(t, s.Close(true))
	assert.False(t, s.Association().IsOpen())
	assert.True(t, wire.released)

	require.NoError(t, s.AddPresentationContext("1.2.840.10008.5.1.4.1.1.4", testTsuid))
	require.NoError(t, s.Open())
	assert.True(t, s.Association().IsOpen())
	assert.Len(t, s.Association().RequestedPcids(testCUID, testTsuid), 1)
	assert.Len(t, s.Association().RequestedPcids("1.2.840.10008.5.1.4.1.1.4", testTsuid), 1)
}

func TestAssociationCStoreRequiresOpen(t *testing.T) {
	s := NewStoreSCU("peer", func() (Wire, error) { return &stubWire{}, nil }, 0)
	err := s.Association().CStore(1, testCUID, "1.2.3", func(io.Writer, string) error { return nil })
	assert.Error(t, err)
}

func TestAssociationCStoreUnacceptedPcid(t *testing.T) {
	wire := &stubWire{}
	s := NewStoreSCU("peer", func() (Wire, error) { return wire, nil }, 0)
	require.NoError(t, s.AddPresentationContext(testCUID, testTsuid))
	require.NoError(t, s.Open())
	err := s.Association().CStore(99, testCUID, "1.2.3", func(io.Writer, string) error { return nil })
	assert.Error(t, err)
}
