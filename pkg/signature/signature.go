// Package signature implements a deterministic-nonce Schnorr-style
// signature scheme over the server's static key, structurally identical to
// Ed25519 but built on the curve adapter in pkg/curve and BLAKE2b rather
// than SHA-512.
package signature

import (
	"errors"

	"golang.org/x/crypto/blake2b"

	"github.com/snowtabby/engine/pkg/curve"
	"github.com/snowtabby/engine/pkg/server"
)

// Size is the encoded signature size: R (64 bytes) || s (32 bytes).
const Size = curve.PointSize + curve.ScalarSize

// ErrFailed is the single opaque error this package returns.
var ErrFailed = errors.New("signature: failed")

// Sign produces a deterministic signature over message using srv's static
// key and signing sub-key. Signing is constant-time in the static private
// scalar. If the deterministic nonce reduces to zero — negligible
// probability — signing fails; the caller may retry with a modified
// message or accept the failure.
func Sign(srv *server.Server, message []byte) ([Size]byte, error) {
	var out [Size]byte

	signKey, err := srv.SignKey()
	if err != nil {
		return out, ErrFailed
	}
	priv, err := srv.PrivateScalar()
	if err != nil {
		return out, ErrFailed
	}
	pub, err := srv.PublicKey()
	if err != nil {
		return out, ErrFailed
	}

	h, err := blake2b.New512(signKey[:])
	if err != nil {
		return out, ErrFailed
	}
	h.Write(message)
	var rWide [64]byte
	copy(rWide[:], h.Sum(nil))
	r := curve.ModQ(rWide)
	if r.IsZero() {
		return out, ErrFailed
	}

	rPoint, err := curve.MulGen(r, true)
	if err != nil {
		return out, ErrFailed
	}

	pubBytes := pub.Bytes()
	rBytes := rPoint.Bytes()
	tDigest := blake2b.Sum512(concat3(pubBytes, rBytes, message))
	t := curve.ModQ(tDigest)

	// R = (8*r)*G and SP = (8*priv)*G both carry the cofactor, so s is
	// 8*(r + t*priv); Verify's s*G - t*SP then equals R.
	var cofactorWide [64]byte
	cofactorWide[0] = 8
	s := curve.MulModQ(curve.ModQ(cofactorWide), curve.MulModQ(t, priv, r), curve.ScalarZero())

	copy(out[:curve.PointSize], rBytes[:])
	sBytes := s.Bytes()
	copy(out[curve.PointSize:], sBytes[:])
	return out, nil
}

// Verify checks sig against message and the claimed static public key sp.
// Verification is not required to be constant-time, so it uses the curve
// adapter's variable-time combination routine.
func Verify(message []byte, sp curve.Point, sig []byte) bool {
	if len(sig) != Size {
		return false
	}
	r, err := curve.DecodePoint(sig[:curve.PointSize])
	if err != nil {
		return false
	}
	s, err := curve.DecodeScalar(sig[curve.PointSize:])
	if err != nil {
		return false
	}

	spBytes := sp.Bytes()
	rBytes := r.Bytes()
	tDigest := blake2b.Sum512(concat3(spBytes, rBytes, message))
	t := curve.ModQ(tDigest)

	// U = s*G - t*SP
	u := curve.VarTimeCombine(s, curve.Generator(), curve.NegateScalar(t), sp)
	return u.Equal(r)
}

func concat3(a, b [curve.PointSize]byte, c []byte) []byte {
	out := make([]byte, 0, len(a)+len(b)+len(c))
	out = append(out, a[:]...)
	out = append(out, b[:]...)
	out = append(out, c...)
	return out
}
