package logship

import (
	"crypto/rand"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/oklog/ulid"
)

// newSenderID generates sender identities in strictly increasing order.
var newSenderID = monotonicULIDGenerator()

func monotonicULIDGenerator() func() ulid.ULID {
	var m sync.Mutex
	entropy := ulid.Monotonic(rand.Reader, 0)

	return func() (uid ulid.ULID) {
		m.Lock()
		uid = ulid.MustNew(ulid.Now(), entropy)
		m.Unlock()
		return
	}
}

// DefaultInstanceDescriptor identifies this process instance as
// "<hostname>-<first uuid segment>".
func DefaultInstanceDescriptor() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	id := uuid.New().String()
	return host + "-" + id[:8]
}
