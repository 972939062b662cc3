package capture

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	idMu      sync.Mutex
	idEntropy io.Reader = ulid.Monotonic(rand.Reader, 0)
)

// NewID generates a ULID for an entry captured at t. IDs generated within
// the same millisecond stay ordered.
func NewID(t time.Time) (string, error) {
	idMu.Lock()
	defer idMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(t), idEntropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
