package forward

// Transfer syntax and SOP class UIDs the forwarder needs to recognize.
//
// https://www.dicomlibrary.com/dicom/transfer-syntax/
const (
	ImplicitVRLittleEndian         = "1.2.840.10008.1.2"
	ExplicitVRLittleEndian         = "1.2.840.10008.1.2.1"
	DeflatedExplicitVRLittleEndian = "1.2.840.10008.1.2.1.99"
	ExplicitVRBigEndian            = "1.2.840.10008.1.2.2"
	RLELossless                    = "1.2.840.10008.1.2.5"

	JPEGBaseline8Bit   = "1.2.840.10008.1.2.4.50"
	JPEGExtended12Bit  = "1.2.840.10008.1.2.4.51"
	JPEGLossless       = "1.2.840.10008.1.2.4.57"
	JPEGLosslessSV1    = "1.2.840.10008.1.2.4.70"
	JPEGLSLossless     = "1.2.840.10008.1.2.4.80"
	JPEGLSNearLossless = "1.2.840.10008.1.2.4.81"
	JPEG2000Lossless   = "1.2.840.10008.1.2.4.90"
	JPEG2000           = "1.2.840.10008.1.2.4.91"

	MPEG2MainProfileMainLevel = "1.2.840.10008.1.2.4.100"
	MPEG2MainProfileHighLevel = "1.2.840.10008.1.2.4.101"
	MPEG4HighProfile41        = "1.2.840.10008.1.2.4.102"
	MPEG4BDCompatibleHP41     = "1.2.840.10008.1.2.4.103"

	// MediaStorageDirectoryStorage is the DICOMDIR SOP class. Instances of
	// this class are never forwarded.
	MediaStorageDirectoryStorage = "1.2.840.10008.1.3.10"
)

// isNativeSyntax reports whether pixel data under tsuid is stored as a raw
// contiguous buffer rather than encapsulated fragments.
func isNativeSyntax(tsuid string) bool {
	switch tsuid {
	case ImplicitVRLittleEndian, ExplicitVRLittleEndian,
		DeflatedExplicitVRLittleEndian, ExplicitVRBigEndian:
		return true
	}
	return false
}

// isLossyVideo reports whether tsuid is one of the MPEG video syntaxes.
// Video streams are relayed as-is; masking a video stream is not supported.
func isLossyVideo(tsuid string) bool {
	switch tsuid {
	case MPEG2MainProfileMainLevel, MPEG2MainProfileHighLevel,
		MPEG4HighProfile41, MPEG4BDCompatibleHP41:
		return true
	}
	return false
}

// substituteTransferSyntax maps an inbound transfer syntax to the syntax the
// outbound association is prepared with. RLE, implicit VR and the retired
// big-endian syntax are promoted to Explicit VR Little Endian; everything
// else passes through.
func substituteTransferSyntax(tsuid string) string {
	switch tsuid {
	case RLELossless, ImplicitVRLittleEndian, ExplicitVRBigEndian:
		return ExplicitVRLittleEndian
	}
	return tsuid
}
