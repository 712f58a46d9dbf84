package scu

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/yasushi-saito/go-dicom"
	"github.com/yasushi-saito/go-dicom/dicomio"
	"v.io/x/lib/vlog"
)

const defaultMaxPDUSize = 16384

// DIMSE command field values and tags used by the store path. Commands are
// always encoded implicit VR little endian (P3.7 6.3.1).
const (
	commandFieldCStoreRQ  uint16 = 0x0001
	commandFieldCStoreRSP uint16 = 0x8001

	// CommandDataSetType: 0x0101 means no data set follows; anything else
	// means one does.
	commandDataSetTypeNull    uint16 = 0x0101
	commandDataSetTypeNonNull uint16 = 0x0001
)

var tagStatus = dicom.Tag{Group: 0x0000, Element: 0x0900}

// DialParams configures the A-ASSOCIATE handshake.
type DialParams struct {
	CalledAET  string
	CallingAET string
	// MaxPDUSize is the largest PDU this side is willing to receive.
	// Zero means the customary 16 KiB.
	MaxPDUSize uint32
	// ConnectTimeout bounds the TCP dial. Zero means no bound.
	ConnectTimeout time.Duration
}

// Dial connects to a DICOM acceptor. The association handshake happens on
// the first Associate call, not here.
func Dial(addr string, params DialParams) (Wire, error) {
	conn, err := net.DialTimeout("tcp", addr, params.ConnectTimeout)
	if err != nil {
		return nil, err
	}
	if params.MaxPDUSize == 0 {
		params.MaxPDUSize = defaultMaxPDUSize
	}
	return &netWire{conn: conn, params: params, peerMaxPDU: defaultMaxPDUSize}, nil
}

// netWire speaks the upper layer protocol over one TCP connection. Calls
// are serialized; the store SCU issues one C-STORE at a time.
type netWire struct {
	mu         sync.Mutex
	conn       net.Conn
	params     DialParams
	peerMaxPDU uint32
	messageID  uint16
}

func (w *netWire) Associate(contexts []*PresentationContext) (map[byte]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	payload, err := encodeAssociateRQ(w.params.CalledAET, w.params.CallingAET, contexts, w.params.MaxPDUSize)
	if err != nil {
		return nil, err
	}
	if err := writePDU(w.conn, pduAssociateRQ, payload); err != nil {
		return nil, err
	}
	pduType, body, err := readPDU(w.conn, w.params.MaxPDUSize)
	if err != nil {
		return nil, err
	}
	switch pduType {
	case pduAssociateAC:
		ac, err := parseAssociateAC(body)
		if err != nil {
			return nil, err
		}
		if ac.maxPDUSize > 0 {
			w.peerMaxPDU = ac.maxPDUSize
		}
		vlog.VI(1).Infof("A-ASSOCIATE-AC from %s: %d contexts accepted, peer max PDU %d",
			w.conn.RemoteAddr(), len(ac.accepted), w.peerMaxPDU)
		return ac.accepted, nil
	case pduAssociateRJ:
		return nil, parseAssociateRJ(body)
	case pduAbort:
		return nil, fmt.Errorf("scu: peer aborted during association")
	default:
		return nil, fmt.Errorf("scu: unexpected PDU type %d during association", pduType)
	}
}

func (w *netWire) CStore(pcid byte, cuid, iuid, tsuid string, data []byte) (uint16, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.messageID++
	cmd, err := encodeCStoreRQ(w.messageID, cuid, iuid)
	if err != nil {
		return 0, err
	}
	if err := w.sendMessage(pcid, cmd, data); err != nil {
		return 0, err
	}
	rsp, err := w.readCommand(pcid)
	if err != nil {
		return 0, err
	}
	return parseCStoreRSP(rsp)
}

// sendMessage fragments the command and data sets into PDVs, never letting
// one P-DATA-TF exceed the peer's maximum PDU size.
func (w *netWire) sendMessage(pcid byte, cmd, data []byte) error {
	// 6 bytes PDU header + 6 bytes PDV header.
	chunkSize := int(w.peerMaxPDU) - 12
	if chunkSize <= 0 {
		chunkSize = defaultMaxPDUSize - 12
	}
	send := func(payload []byte, command bool) error {
		for off := 0; off < len(payload) || off == 0; off += chunkSize {
			end := off + chunkSize
			if end > len(payload) {
				end = len(payload)
			}
			item := pdv{pcid: pcid, command: command, last: end == len(payload), value: payload[off:end]}
			body, err := encodePDataTF([]pdv{item})
			if err != nil {
				return err
			}
			if err := writePDU(w.conn, pduDataTF, body); err != nil {
				return err
			}
			if len(payload) == 0 {
				break
			}
		}
		return nil
	}
	if err := send(cmd, true); err != nil {
		return err
	}
	if len(data) > 0 {
		return send(data, false)
	}
	return nil
}

// readCommand collects command PDVs until the last fragment arrives.
func (w *netWire) readCommand(pcid byte) ([]byte, error) {
	var cmd []byte
	for {
		pduType, body, err := readPDU(w.conn, w.params.MaxPDUSize)
		if err != nil {
			return nil, err
		}
		switch pduType {
		case pduDataTF:
			items, err := parsePDataTF(body)
			if err != nil {
				return nil, err
			}
			for _, item := range items {
				if item.pcid != pcid || !item.command {
					continue
				}
				cmd = append(cmd, item.value...)
				if item.last {
					return cmd, nil
				}
			}
		case pduAbort:
			return nil, fmt.Errorf("scu: peer aborted the association")
		default:
			return nil, fmt.Errorf("scu: unexpected PDU type %d while awaiting response", pduType)
		}
	}
}

func (w *netWire) Release() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return nil
	}
	defer func() {
		w.conn.Close()
		w.conn = nil
	}()
	if err := writePDU(w.conn, pduReleaseRQ, make([]byte, 4)); err != nil {
		return err
	}
	// Best effort: wait briefly for A-RELEASE-RP, then drop the socket.
	w.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if pduType, _, err := readPDU(w.conn, w.params.MaxPDUSize); err == nil && pduType != pduReleaseRP {
		vlog.VI(1).Infof("Expected A-RELEASE-RP from %s, got PDU type %d", w.conn.RemoteAddr(), pduType)
	}
	return nil
}

// encodeCStoreRQ builds the C-STORE-RQ command set with the group length
// element computed over the rest of the group.
func encodeCStoreRQ(messageID uint16, cuid, iuid string) ([]byte, error) {
	body := dicomio.NewBytesEncoder(binary.LittleEndian, dicomio.ImplicitVR)
	dicom.WriteElement(body, dicom.MustNewElement(dicom.TagAffectedSOPClassUID, cuid))
	dicom.WriteElement(body, dicom.MustNewElement(dicom.TagCommandField, commandFieldCStoreRQ))
	dicom.WriteElement(body, dicom.MustNewElement(dicom.TagMessageID, messageID))
	dicom.WriteElement(body, dicom.MustNewElement(dicom.TagPriority, uint16(0)))
	dicom.WriteElement(body, dicom.MustNewElement(dicom.TagCommandDataSetType, commandDataSetTypeNonNull))
	dicom.WriteElement(body, dicom.MustNewElement(dicom.TagAffectedSOPInstanceUID, iuid))
	if err := body.Error(); err != nil {
		return nil, err
	}
	e := dicomio.NewBytesEncoder(binary.LittleEndian, dicomio.ImplicitVR)
	dicom.WriteElement(e, dicom.MustNewElement(dicom.TagCommandGroupLength, uint32(len(body.Bytes()))))
	e.WriteBytes(body.Bytes())
	if err := e.Error(); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}

// parseCStoreRSP extracts the DIMSE status from a C-STORE-RSP command set.
func parseCStoreRSP(cmd []byte) (uint16, error) {
	d := dicomio.NewBytesDecoder(cmd, binary.LittleEndian, dicomio.ImplicitVR)
	var status uint16
	var sawStatus, sawField bool
	for d.Len() > 0 {
		elem := dicom.ReadDataElement(d)
		if d.Error() != nil {
			break
		}
		switch elem.Tag {
		case dicom.TagCommandField:
			if v, ok := firstUint16(elem); ok {
				sawField = true
				if v != commandFieldCStoreRSP {
					return 0, fmt.Errorf("scu: unexpected command field 0x%04x in response", v)
				}
			}
		case tagStatus:
			if v, ok := firstUint16(elem); ok {
				status = v
				sawStatus = true
			}
		}
	}
	if err := d.Error(); err != nil {
		return 0, fmt.Errorf("scu: malformed C-STORE-RSP: %v", err)
	}
	if !sawField || !sawStatus {
		return 0, fmt.Errorf("scu: C-STORE-RSP lacks command field or status")
	}
	return status, nil
}

func firstUint16(elem *dicom.Element) (uint16, bool) {
	if len(elem.Value) == 0 {
		return 0, false
	}
	switch v := elem.Value[0].(type) {
	case uint16:
		return v, true
	case uint32:
		return uint16(v), true
	}
	return 0, false
}
