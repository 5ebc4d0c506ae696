package ids

import (
	"sync"

	"github.com/oklog/ulid/v2"
)

var entropyLock sync.Mutex

// NewULID generates a new ULID with mutex protection so concurrent
// callers never produce the same identifier.
func NewULID() ulid.ULID {
	entropyLock.Lock()
	defer entropyLock.Unlock()
	return ulid.Make()
}

// NewULIDString generates a new ULID as a string.
func NewULIDString() string {
	return NewULID().String()
}
