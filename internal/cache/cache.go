package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// Key identifies a cache entry. Keys are derived from request parameters and
// never change once built.
type Key string

// NewKey returns a fingerprint of namespace and parts. Each part is length
// prefixed so that ("ab", "c") and ("a", "bc") never collide.
func NewKey(namespace string, parts ...string) Key {
	h := sha256.New()
	var lenBuf [8]byte
	for _, p := range append([]string{namespace}, parts...) {
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(p)))
		h.Write(lenBuf[:])
		h.Write([]byte(p))
	}
	return Key(hex.EncodeToString(h.Sum(nil)))
}

// Store maps keys to opaque values with a time to live. Implementations are
// safe for concurrent use and publish writes atomically: a reader sees either
// the previous value or the complete new one.
type Store interface {
	// Get returns the value for key. Expired entries are reported as absent.
	Get(ctx context.Context, key Key) ([]byte, bool, error)
	// Put stores value under key, replacing any previous entry. A
	// non-positive ttl disables caching for the call.
	Put(ctx context.Context, key Key, value []byte, ttl time.Duration) error
	// EvictExpired removes expired entries and returns how many were dropped.
	EvictExpired(ctx context.Context) (int, error)
	Close() error
}

// Error reports a failure of the underlying store. Callers treat it as a miss.
type Error struct {
	Backend string
	Op      string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("cache %s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("cache closed")

func wrapErr(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Backend: backend, Op: op, Err: err}
}
