// Package curve is the thin adapter over the external curve library that
// the rest of the engine is written against: generator and simultaneous
// multiplication, cofactor clearing, mod-q reduction, and the
// Elligator-style point mask used by the password engine.
//
// The underlying field and group arithmetic comes from filippo.io/edwards25519
// (the same library the Go standard library's own Ed25519 implementation is
// built on) plus the Elligator2 hash-to-curve suite from
// gitlab.com/yawning/edwards25519-extra.git/h2c. Every operation here is
// constant-time in its secret inputs except where the doc comment says
// otherwise; failure is the only signal callers observe.
package curve

import (
	"crypto/subtle"
	"errors"
	"sync"

	"filippo.io/edwards25519"
	"filippo.io/edwards25519/field"
	"gitlab.com/yawning/edwards25519-extra.git/h2c"
)

// Wire sizes, bit-exact.
const (
	// ScalarSize is the encoded size of a scalar reduced modulo q.
	ScalarSize = 32
	// PointSize is the encoded size of a packed affine point (X || Y).
	PointSize = 64
)

// Failure modes. Higher layers collapse all of these into one opaque
// error; this package keeps them distinguishable for its own tests and
// for whoever maintains it.
var (
	ErrInvalidEncoding = errors.New("curve: invalid point or scalar encoding")
	ErrZeroScalar      = errors.New("curve: scalar is zero")
	ErrIdentity        = errors.New("curve: result is the identity element")
)

var initOnce sync.Once

// elligatorDST is the domain-separation tag for the Elligator2 hash-to-curve
// map used to derive password masks. It is fixed for the lifetime of the
// process; EnsureInit does not rotate it.
var elligatorDST = []byte("snowshoe-tabby-v1-elligator-mask")

// EnsureInit performs the one-time, process-wide setup this package needs:
// constructing the curve's base point once. The Elligator domain tag is a
// fixed package variable and is not touched here. It is idempotent and safe to call from multiple goroutines; every
// exported constructor in this module calls it, so callers normally never
// need to invoke it directly.
func EnsureInit() {
	initOnce.Do(func() {
		// NewGeneratorPoint panics internally if the library's compiled-in
		// base point does not satisfy the curve equation; calling it once
		// here turns a corrupt build into an immediate, obvious failure
		// instead of a silent one deep inside a handshake.
		_ = edwards25519.NewGeneratorPoint()
	})
}

// Scalar is a 32-byte little-endian representative modulo q.
type Scalar struct {
	s *edwards25519.Scalar
}

// ScalarZero returns the additive identity scalar.
func ScalarZero() Scalar {
	EnsureInit()
	return Scalar{s: edwards25519.NewScalar()}
}

// ModQ reduces a 64-byte wide integer (e.g. a BLAKE2b-64 digest) to a scalar
// in [0, q). This never fails: every 64-byte string has a reduction.
func ModQ(wide [64]byte) Scalar {
	EnsureInit()
	s, err := edwards25519.NewScalar().SetUniformBytes(wide[:])
	if err != nil {
		// SetUniformBytes only rejects wrong-length input; wide is fixed-size.
		panic("curve: SetUniformBytes rejected a 64-byte input")
	}
	return Scalar{s: s}
}

// DecodeScalar parses a canonical, strictly-reduced 32-byte scalar.
func DecodeScalar(b []byte) (Scalar, error) {
	EnsureInit()
	if len(b) != ScalarSize {
		return Scalar{}, ErrInvalidEncoding
	}
	s, err := edwards25519.NewScalar().SetCanonicalBytes(b)
	if err != nil {
		return Scalar{}, ErrInvalidEncoding
	}
	return Scalar{s: s}, nil
}

// Bytes returns the canonical little-endian encoding of s.
func (s Scalar) Bytes() [ScalarSize]byte {
	var out [ScalarSize]byte
	copy(out[:], s.s.Bytes())
	return out
}

// IsZero reports, in constant time, whether s is the zero scalar.
func (s Scalar) IsZero() bool {
	var zero [ScalarSize]byte
	b := s.s.Bytes()
	return subtle.ConstantTimeCompare(b, zero[:]) == 1
}

// AddModQ computes a + b (mod q).
func AddModQ(a, b Scalar) Scalar {
	return Scalar{s: edwards25519.NewScalar().Add(a.s, b.s)}
}

// NegateScalar computes -s (mod q).
func NegateScalar(s Scalar) Scalar {
	return Scalar{s: edwards25519.NewScalar().Negate(s.s)}
}

// MulModQ computes a*b + c (mod q), the fused multiply-add the signing and
// handshake transcripts are built from.
func MulModQ(a, b, c Scalar) Scalar {
	return Scalar{s: edwards25519.NewScalar().MultiplyAdd(a.s, b.s, c.s)}
}

// Point is the curve's packed affine encoding: 64 bytes, X (32B LE) || Y
// (32B LE), recovered from the library's internal extended projective
// coordinates.
type Point struct {
	p *edwards25519.Point
}

// Generator returns the fixed base point G of the prime-order subgroup.
func Generator() Point {
	EnsureInit()
	return Point{p: edwards25519.NewGeneratorPoint()}
}

// Identity returns the group identity element.
func Identity() Point {
	EnsureInit()
	return Point{p: edwards25519.NewIdentityPoint()}
}

// DecodePoint parses a 64-byte packed affine point and validates it lies on
// the curve. Every point consumed from the wire must pass through here.
func DecodePoint(b []byte) (Point, error) {
	EnsureInit()
	if len(b) != PointSize {
		return Point{}, ErrInvalidEncoding
	}
	x := new(field.Element)
	y := new(field.Element)
	if _, err := x.SetBytes(b[:32]); err != nil {
		return Point{}, ErrInvalidEncoding
	}
	if _, err := y.SetBytes(b[32:]); err != nil {
		return Point{}, ErrInvalidEncoding
	}
	one := fieldOne()
	t := new(field.Element).Multiply(x, y)
	p, err := new(edwards25519.Point).SetExtendedCoordinates(x, y, one, t)
	if err != nil {
		return Point{}, ErrInvalidEncoding
	}
	return Point{p: p}, nil
}

// Bytes packs p into its 64-byte affine (X, Y) encoding.
func (p Point) Bytes() [PointSize]byte {
	x, y, z, _ := p.p.Extended()
	zInv := new(field.Element).Invert(z)
	ax := new(field.Element).Multiply(x, zInv)
	ay := new(field.Element).Multiply(y, zInv)
	var out [PointSize]byte
	copy(out[:32], ax.Bytes())
	copy(out[32:], ay.Bytes())
	return out
}

// X returns the affine X-coordinate, 32 bytes little-endian. Used to reject
// shared secrets whose X-coordinate is zero.
func (p Point) X() [32]byte {
	x, _, z, _ := p.p.Extended()
	zInv := new(field.Element).Invert(z)
	ax := new(field.Element).Multiply(x, zInv)
	var out [32]byte
	copy(out[:], ax.Bytes())
	return out
}

// IsZeroX reports, in constant time, whether p's affine X-coordinate is zero.
func (p Point) IsZeroX() bool {
	var zero [32]byte
	x := p.X()
	return subtle.ConstantTimeCompare(x[:], zero[:]) == 1
}

// Equal reports whether p and q are the same point, in constant time.
func (p Point) Equal(q Point) bool {
	return p.p.Equal(q.p) == 1
}

// IsIdentity reports whether p is the group identity.
func (p Point) IsIdentity() bool {
	return p.Equal(Identity())
}

// Neg returns -p.
func Neg(p Point) Point {
	return Point{p: new(edwards25519.Point).Negate(p.p)}
}

// Add returns p + q.
func Add(p, q Point) Point {
	return Point{p: new(edwards25519.Point).Add(p.p, q.p)}
}

// Sub returns p - q.
func Sub(p, q Point) Point {
	return Point{p: new(edwards25519.Point).Subtract(p.p, q.p)}
}

// MulGen computes k*G, optionally clearing the cofactor by a further
// multiplication by 8 (the edwards25519 cofactor). It fails iff k is the
// zero scalar.
func MulGen(k Scalar, clearCofactor bool) (Point, error) {
	if k.IsZero() {
		return Point{}, ErrZeroScalar
	}
	r := new(edwards25519.Point).ScalarBaseMult(k.s)
	if clearCofactor {
		r = new(edwards25519.Point).MultByCofactor(r)
	}
	return Point{p: r}, nil
}

// ScalarMult computes k*P in constant time.
func ScalarMult(k Scalar, p Point) Point {
	return Point{p: new(edwards25519.Point).ScalarMult(k.s, p.p)}
}

// SimulGen computes R = a*G + b*Q, constant-time in a and b (both are
// expected to depend on secret material). It fails if b is zero or the
// result is the identity element.
func SimulGen(a, b Scalar, q Point) (Point, error) {
	if b.IsZero() {
		return Point{}, ErrZeroScalar
	}
	left := new(edwards25519.Point).ScalarBaseMult(a.s)
	right := new(edwards25519.Point).ScalarMult(b.s, q.p)
	pt := Point{p: new(edwards25519.Point).Add(left, right)}
	if pt.IsIdentity() {
		return Point{}, ErrIdentity
	}
	return pt, nil
}

// Simul computes R = a*P + b*Q, constant-time in a and b. Used by the
// handshake engine to combine an ephemeral and a static contribution
// (both secret-dependent) in one call, and by the password engine's
// shared-secret recovery.
func Simul(a Scalar, p Point, b Scalar, q Point) (Point, error) {
	left := new(edwards25519.Point).ScalarMult(a.s, p.p)
	right := new(edwards25519.Point).ScalarMult(b.s, q.p)
	pt := Point{p: new(edwards25519.Point).Add(left, right)}
	if pt.IsIdentity() {
		return Point{}, ErrIdentity
	}
	return pt, nil
}

// VarTimeCombine computes a*P + b*Q using the curve library's variable-time
// double-scalar routine. Signature verification operates on public inputs
// and is allowed to run in variable time (only signing is constant-time in
// the secret key); this helper exists so that exception is visible at every
// call site instead of silently reusing the constant-time Simul path for
// public inputs. Do not call this with a secret-dependent scalar.
func VarTimeCombine(a Scalar, p Point, b Scalar, q Point) Point {
	return Point{p: new(edwards25519.Point).VarTimeMultiScalarMult(
		[]*edwards25519.Scalar{a.s, b.s},
		[]*edwards25519.Point{p.p, q.p},
	)}
}

// Elligator deterministically maps a 32-byte seed to a curve point suitable
// as an additive mask. It is the password engine's substitute for a fixed
// generator pair (compare SPAKE2+'s M/N points): instead of two constants
// baked into the ciphersuite, every (verifier, salt) pair gets its own mask.
func Elligator(seed [32]byte) (Point, error) {
	EnsureInit()
	p, err := h2c.Edwards25519_XMD_SHA512_ELL2_NU(elligatorDST, seed[:])
	if err != nil {
		return Point{}, ErrInvalidEncoding
	}
	return Point{p: p}, nil
}

// ElligatorEncrypt computes Y = y*G then Y' = Y + E. It fails (and the
// caller must retry with a fresh y) when either intermediate point is the
// identity element.
func ElligatorEncrypt(y Scalar, e Point) (yPoint, yMasked Point, err error) {
	yp, err := MulGen(y, false)
	if err != nil {
		return Point{}, Point{}, err
	}
	masked := Add(yp, e)
	if masked.IsIdentity() {
		return Point{}, Point{}, ErrIdentity
	}
	return yp, masked, nil
}

// ElligatorSecret recovers P = P' - E and computes Z = a*P, or Z = a*P + b*V
// when extraScalar/extraPoint are both non-nil. It fails if a is zero or the
// recovered point or result is the identity.
func ElligatorSecret(a Scalar, pMasked, e Point, extraScalar *Scalar, extraPoint *Point) (Point, error) {
	if a.IsZero() {
		return Point{}, ErrZeroScalar
	}
	p := Sub(pMasked, e)
	if p.IsIdentity() {
		return Point{}, ErrIdentity
	}
	var z Point
	if extraScalar != nil && extraPoint != nil {
		var err error
		z, err = Simul(a, p, *extraScalar, *extraPoint)
		if err != nil {
			return Point{}, err
		}
	} else {
		z = Point{p: new(edwards25519.Point).ScalarMult(a.s, p.p)}
		if z.IsIdentity() {
			return Point{}, ErrIdentity
		}
	}
	return z, nil
}

// fieldOne returns the field element 1, used as the Z coordinate when lifting
// an affine (X, Y) pair into extended projective coordinates.
func fieldOne() *field.Element {
	var one [32]byte
	one[0] = 1
	e, err := new(field.Element).SetBytes(one[:])
	if err != nil {
		panic("curve: failed to construct field element 1")
	}
	return e
}
