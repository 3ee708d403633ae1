// Package rng implements Component B (Randomness Adapter): a seeded,
// continuously-stirred CSPRNG with fork-derive support so a Client rekey
// never has to block on OS entropy.
//
// The construction is a small ratcheting stream generator: a 32-byte key
// drives a ChaCha20 keystream, and every draw immediately re-keys itself
// from a disjoint slice of that same keystream before returning bytes to
// the caller, so recovering the key after draw i reveals nothing about
// draw i-1 (backtracking resistance). Fresh state is seeded by mixing
// caller-supplied entropy with the OS source through HKDF; derived state
// mixes a parent's key with caller-supplied entropy through HKDF-Expand
// alone, with no OS draw.
package rng

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"
	"sync"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/hkdf"
)

// ErrFailed is returned when the OS entropy source is unavailable during
// Seed, or when the underlying stream cipher rejects the internal state
// (both conditions are unreachable in practice; they exist so the type
// never needs to panic).
var ErrFailed = errors.New("rng: failed")

const (
	keySize   = chacha20.KeySize
	nonceSize = chacha20.NonceSize
	// rekeyStreamLen is how much keystream is burned on every draw to
	// produce the next key, on top of whatever the caller asked for.
	rekeyStreamLen = keySize
)

// Generator is a seeded, stirred CSPRNG. The zero value is not usable;
// construct one with Seed or Derive. Draws on one Generator, and Derive
// reading it as a parent, are serialized by an internal mutex.
type Generator struct {
	mu  sync.Mutex
	key [keySize]byte
}

// Seed (re)initializes g by mixing seedBytes with fresh OS entropy through
// HKDF-SHA256. Blocks only here; Derive never does.
func Seed(seedBytes []byte) (*Generator, error) {
	osEntropy := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, osEntropy); err != nil {
		return nil, ErrFailed
	}
	reader := hkdf.New(sha256.New, osEntropy, seedBytes, []byte("snowshoe-tabby-rng-seed"))
	g := &Generator{}
	if _, err := io.ReadFull(reader, g.key[:]); err != nil {
		return nil, ErrFailed
	}
	return g, nil
}

// Derive initializes a child generator from parent's current key plus an
// optional seed, using HKDF-Expand only — it never touches the OS entropy
// source, which is what lets Client rekey avoid blocking.
func Derive(parent *Generator, seedBytes []byte) (*Generator, error) {
	parent.mu.Lock()
	parentKey := parent.key
	parent.mu.Unlock()

	reader := hkdf.Expand(sha256.New, parentKey[:], append([]byte("snowshoe-tabby-rng-derive"), seedBytes...))
	g := &Generator{}
	if _, err := io.ReadFull(reader, g.key[:]); err != nil {
		return nil, ErrFailed
	}
	// Immediately ratchet so the child's first draw cannot be correlated
	// with the parent's key by anyone who later learns parentKey.
	if err := g.ratchet(); err != nil {
		return nil, err
	}
	return g, nil
}

// Random fills out with len(out) uniform bytes and stirs the internal key
// before returning, so a later compromise of g cannot reveal this draw.
func (g *Generator) Random(out []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	stream := make([]byte, len(out)+rekeyStreamLen)
	if err := g.fillLocked(stream); err != nil {
		return err
	}
	copy(out, stream[:len(out)])
	copy(g.key[:], stream[len(out):])
	zeroBytes(stream)
	return nil
}

// ratchet advances the key without producing caller-visible output, used
// right after Derive to decorrelate a child from its parent.
func (g *Generator) ratchet() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	next := make([]byte, rekeyStreamLen)
	if err := g.fillLocked(next); err != nil {
		return err
	}
	copy(g.key[:], next)
	zeroBytes(next)
	return nil
}

// fillLocked expands the current key into out via a fresh all-zero-nonce
// ChaCha20 keystream. Caller must hold g.mu.
func (g *Generator) fillLocked(out []byte) error {
	var nonce [nonceSize]byte
	cipher, err := chacha20.NewUnauthenticatedCipher(g.key[:], nonce[:])
	if err != nil {
		return ErrFailed
	}
	for i := range out {
		out[i] = 0
	}
	cipher.XORKeyStream(out, out)
	return nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
