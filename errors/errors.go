package trickle_errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// submission errors
	ErrNoRecipients      = errors.New("no valid recipients after deduplication")
	ErrTooManyRecipients = errors.New("recipient count exceeds the configured ceiling")
	ErrSenderNotVerified = errors.New("sender is not a verified identity")

	// lookup errors
	ErrJobNotFound          = errors.New("job not found")
	ErrInvalidEventLogLimit = errors.New("limit must be between 1 and 1000")
	ErrInvalidPageToken     = errors.New("nextToken is not a valid page token")

	// worker errors
	ErrTriggerExpired = errors.New("delivery trigger expired before firing")
)

// MalformedRecipientsError rejects a submission that contains invalid
// addresses. Sample carries at most MalformedSampleLimit offending
// addresses so the error stays bounded for large lists.
type MalformedRecipientsError struct {
	Total  int
	Sample []string
}

const MalformedSampleLimit = 10

func NewMalformedRecipientsError(malformed []string) *MalformedRecipientsError {
	sample := malformed
	if len(sample) > MalformedSampleLimit {
		sample = sample[:MalformedSampleLimit]
	}
	return &MalformedRecipientsError{
		Total:  len(malformed),
		Sample: sample,
	}
}

func (e *MalformedRecipientsError) Error() string {
	return fmt.Sprintf("%d malformed recipient address(es): %s", e.Total, strings.Join(e.Sample, ", "))
}
