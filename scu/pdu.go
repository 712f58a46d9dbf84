package scu

// The slice of the DICOM upper layer protocol (P3.8) a store SCU needs:
// A-ASSOCIATE-RQ/AC/RJ, A-RELEASE, A-ABORT and P-DATA-TF. PDUs are big
// endian; the 6-byte header (type, reserved, length) frames every message.
//
// http://dicom.nema.org/medical/dicom/current/output/pdf/part08.pdf

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/yasushi-saito/go-dicom"
	"github.com/yasushi-saito/go-dicom/dicomio"
)

const (
	pduAssociateRQ byte = 1
	pduAssociateAC byte = 2
	pduAssociateRJ byte = 3
	pduDataTF      byte = 4
	pduReleaseRQ   byte = 5
	pduReleaseRP   byte = 6
	pduAbort       byte = 7
)

const (
	itemApplicationContext byte = 0x10
	itemPresentationCtxRQ  byte = 0x20
	itemPresentationCtxAC  byte = 0x21
	itemAbstractSyntax     byte = 0x30
	itemTransferSyntax     byte = 0x40
	itemUserInformation    byte = 0x50
	itemMaximumLength      byte = 0x51
	itemImplementationUID  byte = 0x52
	itemImplementationName byte = 0x55
)

// The application context for DICOM, first item of every A-ASSOCIATE-RQ.
const dicomApplicationContext = "1.2.840.10008.3.1.1.1"

const protocolVersion = 1

// writePDU frames one PDU payload onto the transport.
func writePDU(w io.Writer, pduType byte, payload []byte) error {
	var header [6]byte
	header[0] = pduType
	binary.BigEndian.PutUint32(header[2:6], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// readPDU reads one framed PDU. maxSize guards against a corrupt or hostile
// length field.
func readPDU(r io.Reader, maxSize uint32) (byte, []byte, error) {
	var header [6]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err
	}
	length := binary.BigEndian.Uint32(header[2:6])
	if length > maxSize*2 {
		return 0, nil, fmt.Errorf("scu: PDU length %d exceeds limit %d", length, maxSize*2)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	return header[0], payload, nil
}

func encodeSubItem(e *dicomio.Encoder, itemType byte, body []byte) {
	e.WriteByte(itemType)
	e.WriteZeros(1)
	e.WriteUInt16(uint16(len(body)))
	e.WriteBytes(body)
}

func encodeStringItem(e *dicomio.Encoder, itemType byte, name string) {
	encodeSubItem(e, itemType, []byte(name))
}

// padAET right-pads an AE title to the fixed 16-byte field.
func padAET(aet string) string {
	if len(aet) > 16 {
		return aet[:16]
	}
	return aet + strings.Repeat(" ", 16-len(aet))
}

// encodeAssociateRQ builds the A-ASSOCIATE-RQ payload: the fixed header,
// the application context, one presentation context item per registered
// (abstract syntax, transfer syntax) pair, and the user information item.
func encodeAssociateRQ(calledAET, callingAET string, contexts []*PresentationContext, maxPDUSize uint32) ([]byte, error) {
	e := dicomio.NewBytesEncoder(binary.BigEndian, dicomio.UnknownVR)
	e.WriteUInt16(protocolVersion)
	e.WriteZeros(2)
	e.WriteString(padAET(calledAET))
	e.WriteString(padAET(callingAET))
	e.WriteZeros(32)

	encodeStringItem(e, itemApplicationContext, dicomApplicationContext)
	for _, pc := range contexts {
		sub := dicomio.NewBytesEncoder(binary.BigEndian, dicomio.UnknownVR)
		sub.WriteByte(pc.PCID)
		sub.WriteZeros(3)
		encodeStringItem(sub, itemAbstractSyntax, pc.AbstractSyntax)
		encodeStringItem(sub, itemTransferSyntax, pc.TransferSyntax)
		if err := sub.Error(); err != nil {
			return nil, err
		}
		encodeSubItem(e, itemPresentationCtxRQ, sub.Bytes())
	}
	user := dicomio.NewBytesEncoder(binary.BigEndian, dicomio.UnknownVR)
	maxLen := dicomio.NewBytesEncoder(binary.BigEndian, dicomio.UnknownVR)
	maxLen.WriteUInt32(maxPDUSize)
	encodeSubItem(user, itemMaximumLength, maxLen.Bytes())
	encodeStringItem(user, itemImplementationUID, dicom.DefaultImplementationClassUID)
	encodeStringItem(user, itemImplementationName, dicom.DefaultImplementationVersionName)
	if err := user.Error(); err != nil {
		return nil, err
	}
	encodeSubItem(e, itemUserInformation, user.Bytes())
	if err := e.Error(); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}

// associateAC is the subset of the A-ASSOCIATE-AC a requestor acts on.
type associateAC struct {
	// accepted maps pcid to the transfer syntax the acceptor picked.
	// Rejected contexts are absent.
	accepted   map[byte]string
	maxPDUSize uint32
}

func parseAssociateAC(payload []byte) (*associateAC, error) {
	d := dicomio.NewBytesDecoder(payload, binary.BigEndian, dicomio.UnknownVR)
	d.ReadUInt16() // protocol version
	d.Skip(2)
	d.Skip(32) // called + calling AE titles, echoed back
	d.Skip(32)
	ac := &associateAC{accepted: make(map[byte]string)}
	for d.Len() > 0 {
		itemType := d.ReadByte()
		d.Skip(1)
		length := d.ReadUInt16()
		if d.Error() != nil {
			break
		}
		switch itemType {
		case itemPresentationCtxAC:
			d.PushLimit(int64(length))
			pcid := d.ReadByte()
			d.Skip(1)
			result := d.ReadByte()
			d.Skip(1)
			var tsuid string
			for d.Len() > 0 {
				subType := d.ReadByte()
				d.Skip(1)
				subLen := d.ReadUInt16()
				body := d.ReadString(int(subLen))
				if subType == itemTransferSyntax {
					tsuid = body
				}
			}
			d.PopLimit()
			if result == 0 && tsuid != "" {
				ac.accepted[pcid] = tsuid
			}
		case itemUserInformation:
			d.PushLimit(int64(length))
			for d.Len() > 0 {
				subType := d.ReadByte()
				d.Skip(1)
				subLen := d.ReadUInt16()
				if subType == itemMaximumLength && subLen == 4 {
					ac.maxPDUSize = d.ReadUInt32()
				} else {
					d.Skip(int(subLen))
				}
			}
			d.PopLimit()
		default:
			d.Skip(int(length))
		}
	}
	if err := d.Error(); err != nil {
		return nil, fmt.Errorf("scu: malformed A-ASSOCIATE-AC: %v", err)
	}
	return ac, nil
}

// parseAssociateRJ turns the rejection codes into an error.
func parseAssociateRJ(payload []byte) error {
	if len(payload) < 4 {
		return fmt.Errorf("scu: association rejected")
	}
	return fmt.Errorf("scu: association rejected (result %d, source %d, reason %d)",
		payload[1], payload[2], payload[3])
}

// pdv is one presentation data value inside a P-DATA-TF.
type pdv struct {
	pcid    byte
	command bool
	last    bool
	value   []byte
}

func encodePDataTF(items []pdv) ([]byte, error) {
	e := dicomio.NewBytesEncoder(binary.BigEndian, dicomio.UnknownVR)
	for _, v := range items {
		var header byte
		if v.command {
			header |= 1
		}
		if v.last {
			header |= 2
		}
		e.WriteUInt32(uint32(2 + len(v.value)))
		e.WriteByte(v.pcid)
		e.WriteByte(header)
		e.WriteBytes(v.value)
	}
	if err := e.Error(); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}

func parsePDataTF(payload []byte) ([]pdv, error) {
	d := dicomio.NewBytesDecoder(payload, binary.BigEndian, dicomio.UnknownVR)
	var items []pdv
	for d.Len() > 0 {
		length := d.ReadUInt32()
		if length < 2 {
			return nil, fmt.Errorf("scu: PDV length %d too short", length)
		}
		v := pdv{}
		v.pcid = d.ReadByte()
		header := d.ReadByte()
		v.command = header&1 != 0
		v.last = header&2 != 0
		v.value = d.ReadBytes(int(length - 2))
		if d.Error() != nil {
			break
		}
		items = append(items, v)
	}
	if err := d.Error(); err != nil {
		return nil, fmt.Errorf("scu: malformed P-DATA-TF: %v", err)
	}
	return items, nil
}
