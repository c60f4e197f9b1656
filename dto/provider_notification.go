package dto

import "time"

// ProviderNotification is the raw delivery-outcome envelope posted by the
// email provider's webhook. Exactly one of the per-type blocks is populated
// depending on EventType.
type ProviderNotification struct {
	EventType string           `json:"eventType"`
	Mail      NotificationMail `json:"mail"`

	Bounce        *BounceDetail        `json:"bounce,omitempty"`
	Complaint     *ComplaintDetail     `json:"complaint,omitempty"`
	Reject        *RejectDetail        `json:"reject,omitempty"`
	DeliveryDelay *DeliveryDelayDetail `json:"deliveryDelay,omitempty"`
	Open          *OpenDetail          `json:"open,omitempty"`
	Click         *ClickDetail         `json:"click,omitempty"`
	Delivery      *DeliveryDetail      `json:"delivery,omitempty"`
}

type NotificationMail struct {
	MessageID   string               `json:"messageId"`
	Timestamp   time.Time            `json:"timestamp"`
	Source      string               `json:"source"`
	Destination []string             `json:"destination"`
	Tags        map[string][]string  `json:"tags"`
	Headers     []NotificationHeader `json:"headers,omitempty"`
}

// NotificationHeader is an outbound message header echoed back by the
// provider when header capture is enabled.
type NotificationHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type BouncedRecipient struct {
	EmailAddress   string `json:"emailAddress"`
	Status         string `json:"status,omitempty"`
	DiagnosticCode string `json:"diagnosticCode,omitempty"`
}

type BounceDetail struct {
	BounceType        string             `json:"bounceType"`
	BounceSubType     string             `json:"bounceSubType"`
	BouncedRecipients []BouncedRecipient `json:"bouncedRecipients"`
	Timestamp         time.Time          `json:"timestamp"`
	FeedbackID        string             `json:"feedbackId,omitempty"`
	ReportingMTA      string             `json:"reportingMTA,omitempty"`
}

type ComplainedRecipient struct {
	EmailAddress string `json:"emailAddress"`
}

type ComplaintDetail struct {
	ComplainedRecipients  []ComplainedRecipient `json:"complainedRecipients"`
	ComplaintFeedbackType string                `json:"complaintFeedbackType,omitempty"`
	Timestamp             time.Time             `json:"timestamp"`
	UserAgent             string                `json:"userAgent,omitempty"`
}

type RejectDetail struct {
	Reason string `json:"reason"`
}

type DeliveryDelayDetail struct {
	DelayType         string             `json:"delayType"`
	DelayedRecipients []BouncedRecipient `json:"delayedRecipients"`
	ExpirationTime    time.Time          `json:"expirationTime,omitempty"`
	Timestamp         time.Time          `json:"timestamp"`
}

type OpenDetail struct {
	IPAddress string    `json:"ipAddress,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ClickDetail struct {
	IPAddress string    `json:"ipAddress,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	Link      string    `json:"link,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type DeliveryDetail struct {
	Recipients           []string  `json:"recipients"`
	SMTPResponse         string    `json:"smtpResponse,omitempty"`
	ProcessingTimeMillis int64     `json:"processingTimeMillis,omitempty"`
	Timestamp            time.Time `json:"timestamp"`
}
