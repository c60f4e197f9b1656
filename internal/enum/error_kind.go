package enum

// ErrorKind records how a per-recipient send failure was classified.
type ErrorKind string

const (
	ErrorKindRetryable    ErrorKind = "retryable"
	ErrorKindNonRetryable ErrorKind = "non_retryable"
)

func (t ErrorKind) String() string {
	return string(t)
}
