package dto

// OutboundEmail is one single-recipient message handed to an EmailSender.
type OutboundEmail struct {
	JobID     string
	From      string
	Recipient string
	Subject   string
	BodyText  string

	Attachments []OutboundAttachment
}

type OutboundAttachment struct {
	Filename    string
	ContentType string
	Content     []byte
}
