package forward

// DIMSE status codes published in progress notifications.
// P3.7 Annex C.
const (
	StatusSuccess           uint16 = 0x0000
	StatusProcessingFailure uint16 = 0x0110
)

// ProgressStatus is the coarse outcome of one (destination, instance) pair.
type ProgressStatus int

const (
	ProgressCompleted ProgressStatus = iota
	ProgressFailed
)

func (s ProgressStatus) String() string {
	switch s {
	case ProgressCompleted:
		return "COMPLETED"
	case ProgressFailed:
		return "FAILED"
	}
	return "UNKNOWN"
}

// ProgressSink receives exactly one notification per (destination, instance).
// The iuid is the SOPInstanceUID of the data set actually written, i.e. the
// post-edit value when an editor rewrote it.
type ProgressSink interface {
	Notify(iuid, cuid string, dimseStatus uint16, status ProgressStatus, remaining int)
}

// progressNotify reports the outcome of one transfer to the destination's
// sink, if it has one.
func progressNotify(dest ForwardDestination, iuid, cuid string, failed bool) {
	sink := dest.ProgressSink()
	if sink == nil {
		return
	}
	if failed {
		sink.Notify(iuid, cuid, StatusProcessingFailure, ProgressFailed, 0)
	} else {
		sink.Notify(iuid, cuid, StatusSuccess, ProgressCompleted, 0)
	}
}
