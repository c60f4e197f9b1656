package utils

// Truncate cuts s to at most max bytes, appending an ellipsis marker when
// content was dropped.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
