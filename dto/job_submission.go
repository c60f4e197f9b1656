package dto

// JobSubmission is one bulk-send request as received from the API surface.
// Recipients is a single ";"-separated string of addresses.
type JobSubmission struct {
	Sender              string                 `json:"sender"`
	Recipients          string                 `json:"recipients"`
	Subject             string                 `json:"subject"`
	Content             string                 `json:"content"`
	RateIntervalSeconds int                    `json:"rateIntervalSeconds,omitempty"`
	Attachments         []SubmissionAttachment `json:"attachments,omitempty"`
}

type SubmissionAttachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Content     []byte `json:"content"`
}

type JobSubmissionResult struct {
	JobID           string `json:"jobId"`
	TotalRecipients int    `json:"totalRecipients"`
}
