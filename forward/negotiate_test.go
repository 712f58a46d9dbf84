package forward

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicolasvandooren/weasis-dicom-tools/scu"
)

func openTestSCU(t *testing.T, wire *fakeWire, pairs ...[2]string) *scu.StoreSCU {
	t.Helper()
	s := newFakeSCU(wire)
	for _, pair := range pairs {
		require.NoError(t, s.AddPresentationContext(pair[0], pair[1]))
	}
	require.NoError(t, s.Open())
	return s
}

func TestSelectTransferSyntaxInboundPcid(t *testing.T) {
	s := openTestSCU(t, &fakeWire{},
		[2]string{testCUID, ExplicitVRLittleEndian},
		[2]string{testCUID, JPEGBaseline8Bit},
	)
	// Inbound pcid 1 was accepted with the inbound syntax: keep it.
	p := NewParams(testIUID, testCUID, ExplicitVRLittleEndian, 1, bytes.NewReader(nil), nil)
	pcid, ok := SelectTransferSyntax(s.Association(), p)
	require.True(t, ok)
	assert.Equal(t, byte(1), pcid)
}

func TestSelectTransferSyntaxScansForInboundSyntax(t *testing.T) {
	s := openTestSCU(t, &fakeWire{},
		[2]string{testCUID, ExplicitVRLittleEndian},
		[2]string{testCUID, JPEGBaseline8Bit},
	)
	// The inbound pcid doesn't carry JPEG; pcid 3 does.
	p := NewParams(testIUID, testCUID, JPEGBaseline8Bit, 1, bytes.NewReader(nil), nil)
	pcid, ok := SelectTransferSyntax(s.Association(), p)
	require.True(t, ok)
	assert.Equal(t, byte(3), pcid)
}

func TestSelectTransferSyntaxFallsBackToExplicitLE(t *testing.T) {
	// The acceptor downgrades everything to explicit VR little endian.
	wire := &fakeWire{accept: func(pc *scu.PresentationContext) (string, bool) {
		return ExplicitVRLittleEndian, true
	}}
	s := openTestSCU(t, wire, [2]string{testCUID, JPEG2000})
	p := NewParams(testIUID, testCUID, JPEG2000, 1, bytes.NewReader(nil), nil)
	pcid, ok := SelectTransferSyntax(s.Association(), p)
	require.True(t, ok)
	tsuid, err := s.Association().TransferSyntax(pcid)
	require.NoError(t, err)
	assert.Equal(t, ExplicitVRLittleEndian, tsuid)
}

func TestSelectTransferSyntaxNoMatch(t *testing.T) {
	// Accepted with a syntax that is neither the inbound one nor explicit
	// VR little endian.
	wire := &fakeWire{accept: func(pc *scu.PresentationContext) (string, bool) {
		return JPEGLSLossless, true
	}}
	s := openTestSCU(t, wire, [2]string{testCUID, JPEGLSLossless})
	p := NewParams(testIUID, testCUID, JPEG2000, 1, bytes.NewReader(nil), nil)
	_, ok := SelectTransferSyntax(s.Association(), p)
	assert.False(t, ok)
}

func TestSelectTransferSyntaxUnknownSOPClass(t *testing.T) {
	s := openTestSCU(t, &fakeWire{}, [2]string{testCUID, ExplicitVRLittleEndian})
	p := NewParams(testIUID, "1.2.840.10008.5.1.4.1.1.4", ExplicitVRLittleEndian, 9,
		bytes.NewReader(nil), nil)
	_, ok := SelectTransferSyntax(s.Association(), p)
	assert.False(t, ok)
}
