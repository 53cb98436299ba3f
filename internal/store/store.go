// Package store is the message store: durable, file-backed persistence for
// sessions, messages, parts, and snapshot references. It is the only state
// shared across turns; writes are serialized per session while reads stay
// concurrent for streaming observers.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/lodestar-ai/lodestar/internal/bus"
)

// Store owns all persisted engine state.
type Store struct {
	fs    *fileStore
	bus   *bus.Bus
	locks *SessionLocks

	// writers serializes message-level writes per session. Reads never
	// take these.
	writers sync.Map // sessionID -> *sync.Mutex
}

// New creates a store rooted at basePath, publishing mutations on b.
func New(basePath string, b *bus.Bus) *Store {
	return &Store{
		fs:    newFileStore(basePath),
		bus:   b,
		locks: NewSessionLocks(),
	}
}

func (s *Store) writeLock(sessionID string) *sync.Mutex {
	mu, _ := s.writers.LoadOrStore(sessionID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Locks exposes the per-session run locks that enforce the one-active-turn
// invariant.
func (s *Store) Locks() *SessionLocks {
	return s.locks
}

// NewID returns a ULID-based identifier with a kind prefix ("ses", "msg",
// "prt", "snp", "per"). ULIDs sort lexically by creation time, monotonic
// within a millisecond, which is what keeps message files replayable in
// order.
func NewID(kind string) string {
	return kind + "_" + ulid.Make().String()
}

// ProjectID derives the stable project identifier for a working directory:
// the first 16 hex characters of the SHA-256 of its cleaned absolute path.
func ProjectID(directory string) string {
	abs, err := filepath.Abs(directory)
	if err != nil {
		abs = directory
	}
	abs = filepath.Clean(abs)
	sum := sha256.Sum256([]byte(abs))
	return hex.EncodeToString(sum[:])[:16]
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// partKey formats a part index as a fixed-width key so directory order equals
// creation order. Six digits keeps lexical and numeric order aligned far past
// any realistic part count.
func partKey(index int) string {
	return fmt.Sprintf("%06d", index)
}

// ulidPart extracts the sortable portion of a prefixed ID.
func ulidPart(id string) string {
	if i := strings.IndexByte(id, '_'); i >= 0 {
		return id[i+1:]
	}
	return id
}
