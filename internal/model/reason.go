package model

// CloseReason represents the reason for closing a notification.
// These values are defined by the freedesktop.org notification specification.
type CloseReason uint32

const (
	// CloseReasonExpired indicates the notification expired (timeout reached).
	CloseReasonExpired CloseReason = 1
	// CloseReasonDismissed indicates the user dismissed the notification.
	CloseReasonDismissed CloseReason = 2
	// CloseReasonClosed indicates the notification was closed via CloseNotification.
	CloseReasonClosed CloseReason = 3
	// CloseReasonUndefined is reserved/undefined per the spec.
	CloseReasonUndefined CloseReason = 4
)

// String returns the string representation of the close reason.
func (r CloseReason) String() string {
	switch r {
	case CloseReasonExpired:
		return "expired"
	case CloseReasonDismissed:
		return "dismissed"
	case CloseReasonClosed:
		return "closed"
	case CloseReasonUndefined:
		return "undefined"
	default:
		return "unknown"
	}
}

// DismissReason records why a notification left the store. It is richer than
// CloseReason and maps onto it for the wire.
type DismissReason int

const (
	ReasonNone DismissReason = iota
	ReasonTimeout
	ReasonUser
	ReasonAction
	ReasonReplaced
	ReasonCall
	ReasonUndefined
)

var dismissReasonNames = map[DismissReason]string{
	ReasonNone:      "none",
	ReasonTimeout:   "timeout",
	ReasonUser:      "user",
	ReasonAction:    "action",
	ReasonReplaced:  "replaced",
	ReasonCall:      "call",
	ReasonUndefined: "undefined",
}

// String returns the reason name.
func (r DismissReason) String() string {
	if s, ok := dismissReasonNames[r]; ok {
		return s
	}
	return "unknown"
}

// CloseReason maps the dismissal reason to the freedesktop code.
func (r DismissReason) CloseReason() CloseReason {
	switch r {
	case ReasonTimeout:
		return CloseReasonExpired
	case ReasonUser, ReasonAction:
		return CloseReasonDismissed
	case ReasonCall:
		return CloseReasonClosed
	default:
		return CloseReasonUndefined
	}
}

// ClosedEvent is emitted once for every notification removed from the store.
type ClosedEvent struct {
	ID     uint32
	Reason DismissReason
	// Notification is the final state of the removed entry.
	Notification Notification
}
