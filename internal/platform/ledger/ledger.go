// Package ledger provides a tamper-evident anchor for audit entries. Each
// anchored payload is hashed together with the previous entry's hash, so the
// whole history can be re-derived and any edited or dropped entry breaks the
// chain from that point on.
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
)

// ErrChainBroken is returned by Verify when a stored hash does not match the
// hash derived from the entry content plus the previous hash.
var ErrChainBroken = errors.New("ledger: hash chain broken")

// ChainEntry pairs an anchored payload with the hash stored for it.
type ChainEntry struct {
	Payload []byte
	Hash    string
}

// Chain is an append-only sha256 hash chain. The zero previous hash is the
// genesis marker.
type Chain struct {
	mu       sync.Mutex
	prevHash string
}

func NewChain() *Chain {
	return &Chain{}
}

// Seed resumes the chain from the last hash recorded in durable storage.
// Called once at startup before any Anchor.
func (c *Chain) Seed(lastHash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prevHash = lastHash
}

// Anchor appends a payload to the chain and returns its hash.
func (c *Chain) Anchor(payload []byte) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := hashEntry(c.prevHash, payload)
	c.prevHash = h
	return h
}

// Head returns the hash of the most recently anchored entry.
func (c *Chain) Head() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prevHash
}

// Verify walks entries in append order and checks that every stored hash is
// derivable from its payload and the previous hash.
func Verify(entries []ChainEntry) error {
	prev := ""
	for i, e := range entries {
		want := hashEntry(prev, e.Payload)
		if e.Hash != want {
			return fmt.Errorf("%w: entry %d has hash %s, derived %s", ErrChainBroken, i, e.Hash, want)
		}
		prev = e.Hash
	}
	return nil
}

func hashEntry(prevHash string, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
