package dto

// DeliveryTrigger is the worker-facing trigger payload carried over the
// message bus. It holds everything needed to send one email to one
// recipient without a recipient-level lookup.
type DeliveryTrigger struct {
	TriggerID      string   `json:"triggerId"`
	JobID          string   `json:"jobId"`
	Recipient      string   `json:"recipient"`
	Sender         string   `json:"sender"`
	Subject        string   `json:"subject"`
	Content        string   `json:"content"`
	AttachmentRefs []string `json:"attachmentRefs"`
}
