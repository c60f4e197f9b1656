package delivery

import (
	"net/textproto"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/mikklepp/trickle/internal/enum"
)

const maxAttempts = 3

// retryableCodes is the fixed allow-list of provider status codes treated
// as transient. Everything not matched here or in retryableSignatures is
// non-retryable and aborts the attempt loop immediately.
var retryableCodes = map[int]bool{
	429: true,
	503: true,
	504: true,
}

var retryableSignatures = []string{
	"rate limit",
	"rate-limit",
	"too many requests",
	"throttl",
	"timeout",
	"timed out",
	"transient",
	"temporarily unavailable",
	"service unavailable",
	"connection refused",
	"connection reset",
}

// classifyError decides whether a failed send attempt may be retried.
func classifyError(err error) enum.ErrorKind {
	if err == nil {
		return enum.ErrorKindNonRetryable
	}

	var protoErr *textproto.Error
	if errors.As(err, &protoErr) && retryableCodes[protoErr.Code] {
		return enum.ErrorKindRetryable
	}

	lowered := strings.ToLower(err.Error())
	for _, signature := range retryableSignatures {
		if strings.Contains(lowered, signature) {
			return enum.ErrorKindRetryable
		}
	}

	return enum.ErrorKindNonRetryable
}

// backoffDelay returns the pause before the next attempt: 1s, 2s, 4s.
func backoffDelay(attempt int) time.Duration {
	return time.Duration(1<<attempt) * time.Second
}
