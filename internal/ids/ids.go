package ids

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// MaxForwardedLen bounds request ids accepted from upstream proxies.
const MaxForwardedLen = 128

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// New returns a monotonic ULID for a request that arrived without an id.
func New() string {
	return NewAt(time.Now())
}

// NewAt returns a ULID stamped with t.
func NewAt(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// Forwarded returns the trimmed request id set by an edge proxy, or false when it is
// empty, too long or carries anything outside printable ASCII.
func Forwarded(raw string) (string, bool) {
	id := strings.TrimSpace(raw)
	if id == "" || len(id) > MaxForwardedLen {
		return "", false
	}
	for i := 0; i < len(id); i++ {
		if c := id[i]; c < 0x21 || c > 0x7e {
			return "", false
		}
	}
	return id, true
}
