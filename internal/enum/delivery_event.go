package enum

// EventType is a delivery-outcome notification kind as reported by the
// email provider.
type EventType string

const (
	EventSend          EventType = "Send"
	EventDelivery      EventType = "Delivery"
	EventBounce        EventType = "Bounce"
	EventComplaint     EventType = "Complaint"
	EventReject        EventType = "Reject"
	EventDeliveryDelay EventType = "DeliveryDelay"
	EventOpen          EventType = "Open"
	EventClick         EventType = "Click"
)

// KnownEventTypes lists every event type the event summary zero-fills.
var KnownEventTypes = []EventType{
	EventSend,
	EventDelivery,
	EventBounce,
	EventComplaint,
	EventReject,
	EventDeliveryDelay,
	EventOpen,
	EventClick,
}

func (t EventType) String() string {
	return string(t)
}

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

func (t Severity) String() string {
	return string(t)
}

// BounceCategory qualifies bounce events only.
type BounceCategory string

const (
	BounceHard    BounceCategory = "hard"
	BounceSoft    BounceCategory = "soft"
	BounceUnknown BounceCategory = "unknown"
)

func (t BounceCategory) String() string {
	return string(t)
}
