package utils

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// GenerateNanoIDWithPrefix returns an id like "job_x7f2..." with the given
// number of random characters after the prefix.
func GenerateNanoIDWithPrefix(prefix string, length int) string {
	id, err := gonanoid.Generate(idAlphabet, length)
	if err != nil {
		// gonanoid only fails when the RNG does; fall back to uuid
		id = strings.ReplaceAll(uuid.New().String(), "-", "")[:length]
	}
	return fmt.Sprintf("%s_%s", prefix, id)
}

// GenerateMessageID builds an RFC 5322 Message-ID for the given sending domain.
func GenerateMessageID(domain string) string {
	return fmt.Sprintf("<%s@%s>", uuid.New().String(), domain)
}
