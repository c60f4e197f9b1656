package utils

import "strings"

// SplitRecipients parses the submitted recipients string, a ";"-separated
// list of addresses. Empty entries and surrounding whitespace are dropped;
// duplicates are kept (the scheduler collapses them).
func SplitRecipients(raw string) []string {
	parts := strings.Split(raw, ";")
	recipients := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		recipients = append(recipients, p)
	}
	return recipients
}

// DedupStrings removes duplicates by case-sensitive exact match, preserving
// first-seen order.
func DedupStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
