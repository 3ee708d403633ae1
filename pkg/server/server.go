// Package server implements Component C (Server State): the long-lived
// static key pair a Snowshoe/BLAKE2b deployment uses for every handshake,
// signature, and password challenge it serves.
package server

import (
	"errors"

	"golang.org/x/crypto/blake2b"

	"github.com/snowtabby/engine/pkg/curve"
	"github.com/snowtabby/engine/pkg/rng"
)

// ErrFailed is the engine's single externally-visible error for this
// package: uninitialized state, a tampered persisted record, or any
// underlying RNG/curve failure collapse to it.
var ErrFailed = errors.New("server: failed")

// PersistedSize is the size of the buffer Save/Load exchange: priv[32] ||
// pub[64] || signkey[32].
const PersistedSize = curve.ScalarSize + curve.PointSize + signKeySize

const signKeySize = 32

// signKeyPersonalization is the fixed BLAKE2b personalization string used
// to separate the signing sub-key from any other derivation that might one
// day hash the static private scalar.
var signKeyPersonalization = []byte("snowshoe-tabby-v1-signing-subkey")

// Server is an opaque record holding the static key pair, its derived
// signing sub-key, and a private RNG instance. The zero value is
// uninitialized; every method other than Generate and Load fails against
// it. A Server is owned by exactly one caller and is not safe for
// concurrent reuse across goroutines.
type Server struct {
	initialized bool
	priv        curve.Scalar
	pub         curve.Point
	signKey     [signKeySize]byte
	rng         *rng.Generator
}

// PublicKey returns the server's static public point. Requires Generate or
// Load to have succeeded.
func (s *Server) PublicKey() (curve.Point, error) {
	if !s.initialized {
		return curve.Point{}, ErrFailed
	}
	return s.pub, nil
}

// PrivateScalar returns the server's static private scalar, for use by the
// handshake and signature engines. Application code should prefer the
// handshake/signature/password package entry points that take a *Server
// directly rather than extracting and re-threading raw key material.
func (s *Server) PrivateScalar() (curve.Scalar, error) {
	if !s.initialized {
		return curve.Scalar{}, ErrFailed
	}
	return s.priv, nil
}

// SignKey returns the server's 32-byte signing sub-key.
func (s *Server) SignKey() ([signKeySize]byte, error) {
	if !s.initialized {
		return [signKeySize]byte{}, ErrFailed
	}
	return s.signKey, nil
}

// RNG returns the server's private randomness source, for use by the
// handshake and password engines when they need a server-side ephemeral
// draw.
func (s *Server) RNG() (*rng.Generator, error) {
	if !s.initialized {
		return nil, ErrFailed
	}
	return s.rng, nil
}

// Generate reseeds the server's RNG from seedBytes, draws a fresh static
// private scalar by rejection sampling, computes the cofactor-cleared
// public point, and derives the signing sub-key. On any failure the server
// is left uninitialized with its fields zeroized.
func Generate(seedBytes []byte) (*Server, error) {
	g, err := rng.Seed(seedBytes)
	if err != nil {
		return nil, ErrFailed
	}

	priv, pub, err := drawStaticKeyPair(g)
	if err != nil {
		return nil, ErrFailed
	}

	signKey, err := deriveSignKey(priv)
	if err != nil {
		zeroScalar(&priv)
		return nil, ErrFailed
	}

	return &Server{
		initialized: true,
		priv:        priv,
		pub:         pub,
		signKey:     signKey,
		rng:         g,
	}, nil
}

// Save writes the server's persisted state (priv || pub || signkey) to a
// PersistedSize-byte buffer. Requires the server to be initialized.
func (s *Server) Save() ([PersistedSize]byte, error) {
	var out [PersistedSize]byte
	if !s.initialized {
		return out, ErrFailed
	}
	privBytes := s.priv.Bytes()
	pubBytes := s.pub.Bytes()
	copy(out[:curve.ScalarSize], privBytes[:])
	copy(out[curve.ScalarSize:curve.ScalarSize+curve.PointSize], pubBytes[:])
	copy(out[curve.ScalarSize+curve.PointSize:], s.signKey[:])
	return out, nil
}

// Load parses a persisted buffer, validates that the stored public point is
// actually priv*G (cofactor-cleared), reseeds a fresh RNG from seedBytes,
// and marks the result initialized. It fails on any mismatch, which is the
// only signal a caller gets that the buffer was tampered with.
func Load(in []byte, seedBytes []byte) (*Server, error) {
	if len(in) != PersistedSize {
		return nil, ErrFailed
	}

	priv, err := curve.DecodeScalar(in[:curve.ScalarSize])
	if err != nil {
		return nil, ErrFailed
	}
	pub, err := curve.DecodePoint(in[curve.ScalarSize : curve.ScalarSize+curve.PointSize])
	if err != nil {
		return nil, ErrFailed
	}

	recomputed, err := curve.MulGen(priv, true)
	if err != nil || !recomputed.Equal(pub) {
		return nil, ErrFailed
	}

	var signKey [signKeySize]byte
	copy(signKey[:], in[curve.ScalarSize+curve.PointSize:])

	g, err := rng.Seed(seedBytes)
	if err != nil {
		return nil, ErrFailed
	}

	return &Server{
		initialized: true,
		priv:        priv,
		pub:         pub,
		signKey:     signKey,
		rng:         g,
	}, nil
}

// Clear zeroizes every secret field and transitions the server to
// uninitialized. It is idempotent.
//
// Scalar and point values here are immutable wrappers around the curve
// library's own types rather than raw byte slices, so "zeroize" means
// dropping every reference to them (letting the garbage collector reclaim
// the backing memory) rather than an in-place overwrite; the signing
// sub-key, which is a plain byte array, is overwritten directly.
func (s *Server) Clear() {
	zeroScalar(&s.priv)
	s.pub = curve.Point{}
	for i := range s.signKey {
		s.signKey[i] = 0
	}
	s.rng = nil
	s.initialized = false
}

// drawStaticKeyPair performs rejection sampling: draw 64 uniform bytes,
// reduce mod q, retry if the reduction lands on zero (negligible
// probability; the loop is bounded so a hostile RNG cannot spin forever).
func drawStaticKeyPair(g *rng.Generator) (curve.Scalar, curve.Point, error) {
	const maxAttempts = 64
	for i := 0; i < maxAttempts; i++ {
		var wide [64]byte
		if err := g.Random(wide[:]); err != nil {
			return curve.Scalar{}, curve.Point{}, ErrFailed
		}
		priv := curve.ModQ(wide)
		zeroBytes(wide[:])
		if priv.IsZero() {
			continue
		}
		pub, err := curve.MulGen(priv, true)
		if err != nil {
			continue
		}
		return priv, pub, nil
	}
	return curve.Scalar{}, curve.Point{}, ErrFailed
}

// deriveSignKey derives the signing sub-key by hashing the private scalar
// with BLAKE2b-32 under a fixed personalization, using priv's bytes as the
// BLAKE2b key.
func deriveSignKey(priv curve.Scalar) ([signKeySize]byte, error) {
	privBytes := priv.Bytes()
	h, err := blake2b.New(signKeySize, privBytes[:])
	if err != nil {
		return [signKeySize]byte{}, ErrFailed
	}
	h.Write(signKeyPersonalization)
	var out [signKeySize]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}

func zeroScalar(s *curve.Scalar) {
	*s = curve.Scalar{}
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
