package idgen

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const suffixChars = "abcdefghijklmnopqrstuvwxyz0123456789"

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewULID returns a time-ordered identifier. Used for connection ids.
func NewULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), entropy).String()
}

// NewSlugSuffix returns n random lowercase alphanumerics, suitable for
// appending to a slug.
func NewSlugSuffix(n int) (string, error) {
	return suffixFrom(rand.Reader, n)
}

// maxUnbiased is the largest multiple of len(suffixChars) that fits in a byte;
// bytes at or above it are redrawn so every character is equally likely.
const maxUnbiased = 256 - 256%len(suffixChars)

func suffixFrom(r io.Reader, n int) (string, error) {
	out := make([]byte, 0, n)
	buf := make([]byte, n+n/2+1)
	for len(out) < n {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", err
		}
		for _, c := range buf {
			if int(c) >= maxUnbiased {
				continue
			}
			out = append(out, suffixChars[int(c)%len(suffixChars)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

// Generator produces slug suffixes. RoomService takes one so tests can pin it.
type Generator struct{ Length int }

// NewSuffix returns Length random characters, 6 when Length is unset.
func (g Generator) NewSuffix() (string, error) {
	n := g.Length
	if n <= 0 {
		n = 6
	}
	return NewSlugSuffix(n)
}
