package usecase

import (
	"crypto/rand"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	base36Chars  = "0123456789abcdefghijklmnopqrstuvwxyz"
	randomSuffix = 6
	uuidFragment = 8
)

// generateActivationCode builds TIMESTAMP-RANDOM-UUIDFRAG, upper-cased.
// TIMESTAMP is base-36 milliseconds, RANDOM is six base-36 characters from
// crypto/rand and UUIDFRAG is the first eight hex digits of a random UUID.
// Uniqueness is probabilistic; collisions surface as ErrDuplicateCode on insert.
func generateActivationCode(now time.Time) (string, error) {
	ts := strconv.FormatInt(now.UnixMilli(), 36)

	buf := make([]byte, randomSuffix)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", err
	}
	for i := range buf {
		buf[i] = base36Chars[int(buf[i])%len(base36Chars)]
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	frag := strings.ReplaceAll(id.String(), "-", "")[:uuidFragment]

	return strings.ToUpper(ts + "-" + string(buf) + "-" + frag), nil
}

// normalizeCode canonicalizes caller input before lookup.
func normalizeCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
