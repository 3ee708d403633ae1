// Package handshake implements the one-round augmented ephemeral-DH
// handshake with server-side proof of possession of its static key. A
// Client builds a request, a Server processes it and answers with a proof
// the Client verifies before trusting the derived session key.
package handshake

import (
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/blake2b"

	"github.com/snowtabby/engine/pkg/curve"
	"github.com/snowtabby/engine/pkg/rng"
	"github.com/snowtabby/engine/pkg/server"
)

// Wire sizes, bit-exact.
const (
	NonceSize          = 32
	ClientRequestSize  = curve.PointSize + NonceSize                // CP || CN
	ServerResponseSize = curve.PointSize + NonceSize + SessionKeySize // EP || SN || PROOF
	SessionKeySize     = 32
)

// ErrFailed is the single opaque error this package returns. Every
// validation this engine performs (uninitialized state, h = 0, d = 0,
// T.X = 0, proof mismatch, any underlying failure) collapses to it.
var ErrFailed = errors.New("handshake: failed")

const maxRetries = 64

// Client is an ephemeral record created for one connection attempt: an
// ephemeral key pair, a fresh nonce, and a private RNG. It is not safe to
// reuse after a handshake completes or for concurrent access.
type Client struct {
	initialized bool
	priv        curve.Scalar
	pub         curve.Point
	nonce       [NonceSize]byte
	rng         *rng.Generator
}

// NewClient draws a fresh ephemeral key pair and nonce, reseeding its RNG
// from seedBytes.
func NewClient(seedBytes []byte) (*Client, error) {
	g, err := rng.Seed(seedBytes)
	if err != nil {
		return nil, ErrFailed
	}
	return newClientFromRNG(g)
}

// RekeyClient derives a fresh Client from parent's RNG without drawing from
// the OS entropy source. It still always produces a fresh ephemeral key
// pair and nonce, so session keys never repeat even under identical input
// seeds across rekeys.
func RekeyClient(parent *Client, seedBytes []byte) (*Client, error) {
	if !parent.initialized {
		return nil, ErrFailed
	}
	g, err := rng.Derive(parent.rng, seedBytes)
	if err != nil {
		return nil, ErrFailed
	}
	return newClientFromRNG(g)
}

func newClientFromRNG(g *rng.Generator) (*Client, error) {
	priv, pub, err := drawEphemeralKeyPair(g)
	if err != nil {
		return nil, ErrFailed
	}
	var nonce [NonceSize]byte
	if err := g.Random(nonce[:]); err != nil {
		return nil, ErrFailed
	}
	return &Client{initialized: true, priv: priv, pub: pub, nonce: nonce, rng: g}, nil
}

// Request serializes this client's CP || CN as the 96-byte request message.
func (c *Client) Request() ([ClientRequestSize]byte, error) {
	var out [ClientRequestSize]byte
	if !c.initialized {
		return out, ErrFailed
	}
	pub := c.pub.Bytes()
	copy(out[:curve.PointSize], pub[:])
	copy(out[curve.PointSize:], c.nonce[:])
	return out, nil
}

// Clear zeroizes the client's secret fields and marks it uninitialized.
func (c *Client) Clear() {
	c.priv = curve.Scalar{}
	c.pub = curve.Point{}
	for i := range c.nonce {
		c.nonce[i] = 0
	}
	c.rng = nil
	c.initialized = false
}

// Respond processes a client request against srv's static key, returning
// the 128-byte server response and the derived session key. The server
// never retries once a response has been emitted; failures inside the
// bounded internal retry loop (an h = 0 or T.X = 0 transcript) are not
// visible to the caller.
func Respond(srv *server.Server, request []byte) (response [ServerResponseSize]byte, sessionKey [SessionKeySize]byte, err error) {
	if len(request) != ClientRequestSize {
		return response, sessionKey, ErrFailed
	}
	cp, err := curve.DecodePoint(request[:curve.PointSize])
	if err != nil {
		return response, sessionKey, ErrFailed
	}
	var cn [NonceSize]byte
	copy(cn[:], request[curve.PointSize:])

	priv, err := srv.PrivateScalar()
	if err != nil {
		return response, sessionKey, ErrFailed
	}
	sp, err := srv.PublicKey()
	if err != nil {
		return response, sessionKey, ErrFailed
	}
	g, err := srv.RNG()
	if err != nil {
		return response, sessionKey, ErrFailed
	}

	// SP is MulGen(priv, true) = (8*priv)*G, so the static term uses the
	// cofactor-scaled scalar 8*priv; otherwise this side's T would not match
	// the client's c*EP + h*c*SP.
	var cofactorWide [64]byte
	cofactorWide[0] = 8
	staticScalar := curve.MulModQ(priv, curve.ModQ(cofactorWide), curve.ScalarZero())

	for attempt := 0; attempt < maxRetries; attempt++ {
		var sn [NonceSize]byte
		if err := g.Random(sn[:]); err != nil {
			return response, sessionKey, ErrFailed
		}
		e, ep, err := drawEphemeralKeyPair(g)
		if err != nil {
			continue
		}

		transcript := blake2b.Sum512(concat(cp.Bytes(), cn, ep.Bytes(), sp.Bytes(), sn))
		h := curve.ModQ(transcript)
		if h.IsZero() {
			continue
		}

		d := curve.MulModQ(h, staticScalar, curve.ScalarZero())
		t, err := curve.Simul(e, cp, d, cp)
		if err != nil {
			continue
		}
		if t.IsZeroX() {
			continue
		}

		k, proof := deriveSessionMaterial(t, transcript)

		epBytes := ep.Bytes()
		copy(response[:curve.PointSize], epBytes[:])
		copy(response[curve.PointSize:curve.PointSize+NonceSize], sn[:])
		copy(response[curve.PointSize+NonceSize:], proof[:])
		sessionKey = k
		return response, sessionKey, nil
	}
	return response, sessionKey, ErrFailed
}

// Verify processes the server's response against c's own ephemeral state
// and the server's claimed static public key sp, returning the session key
// on success. Both h = 0 and d = 0 are rejected: since h = 0 is already
// excluded, d = 0 can only arise from a corrupted or zero client ephemeral
// scalar, which would otherwise enable a trivial subgroup fault.
func Verify(c *Client, sp curve.Point, response []byte) (sessionKey [SessionKeySize]byte, err error) {
	if !c.initialized {
		return sessionKey, ErrFailed
	}
	if len(response) != ServerResponseSize {
		return sessionKey, ErrFailed
	}

	ep, err := curve.DecodePoint(response[:curve.PointSize])
	if err != nil {
		return sessionKey, ErrFailed
	}
	var sn [NonceSize]byte
	copy(sn[:], response[curve.PointSize:curve.PointSize+NonceSize])
	var proof [SessionKeySize]byte
	copy(proof[:], response[curve.PointSize+NonceSize:])

	cp := c.pub

	transcript := blake2b.Sum512(concat(cp.Bytes(), c.nonce, ep.Bytes(), sp.Bytes(), sn))
	h := curve.ModQ(transcript)
	if h.IsZero() {
		return sessionKey, ErrFailed
	}

	d := curve.MulModQ(h, c.priv, curve.ScalarZero())
	if d.IsZero() {
		return sessionKey, ErrFailed
	}

	t, err := curve.Simul(c.priv, ep, d, sp)
	if err != nil {
		return sessionKey, ErrFailed
	}
	if t.IsZeroX() {
		return sessionKey, ErrFailed
	}

	k, expectedProof := deriveSessionMaterial(t, transcript)
	if subtle.ConstantTimeCompare(expectedProof[:], proof[:]) != 1 {
		return sessionKey, ErrFailed
	}
	return k, nil
}

// deriveSessionMaterial computes k || PROOF = BLAKE2b-64(T || H), splitting
// the 64-byte digest into the low 32 bytes (session key) and high 32 bytes
// (proof of static-key possession).
func deriveSessionMaterial(t curve.Point, transcript [64]byte) (sessionKey, proof [32]byte) {
	digest := blake2b.Sum512(concat2(t.Bytes(), transcript))
	copy(sessionKey[:], digest[:32])
	copy(proof[:], digest[32:])
	return sessionKey, proof
}

func drawEphemeralKeyPair(g *rng.Generator) (curve.Scalar, curve.Point, error) {
	for i := 0; i < maxRetries; i++ {
		var wide [64]byte
		if err := g.Random(wide[:]); err != nil {
			return curve.Scalar{}, curve.Point{}, ErrFailed
		}
		s := curve.ModQ(wide)
		zeroBytes(wide[:])
		if s.IsZero() {
			continue
		}
		p, err := curve.MulGen(s, false)
		if err != nil {
			continue
		}
		return s, p, nil
	}
	return curve.Scalar{}, curve.Point{}, ErrFailed
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func concat(cp [curve.PointSize]byte, cn [NonceSize]byte, ep [curve.PointSize]byte, sp [curve.PointSize]byte, sn [NonceSize]byte) []byte {
	out := make([]byte, 0, len(cp)+len(cn)+len(ep)+len(sp)+len(sn))
	out = append(out, cp[:]...)
	out = append(out, cn[:]...)
	out = append(out, ep[:]...)
	out = append(out, sp[:]...)
	out = append(out, sn[:]...)
	return out
}

func concat2(t [curve.PointSize]byte, h [64]byte) []byte {
	out := make([]byte, 0, len(t)+len(h))
	out = append(out, t[:]...)
	out = append(out, h[:]...)
	return out
}
