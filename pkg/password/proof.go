package password

import (
	"crypto/subtle"

	"golang.org/x/crypto/blake2b"

	"github.com/snowtabby/engine/pkg/curve"
	"github.com/snowtabby/engine/pkg/rng"
)

// Wire sizes for the two proof-exchange messages. These are independent of
// Profile: both profiles carry Y' and a 32-byte proof in the client
// message, and a 32-byte proof back from the server.
const (
	ClientMessageSize = curve.PointSize + 32
	ServerProofSize   = 32
)

// ClientProof recomputes the account's secret scalar from the credentials
// and the salt embedded in challenge, draws a fresh ephemeral y, and
// produces the message to send back to the server together with the server
// proof it should expect in return. sp is the server's static public key,
// bound into the proof transcript so a party that cannot prove possession
// of SP cannot complete a session even if it somehow learned V.
func ClientProof(profile Profile, seedBytes, username, realm, password []byte, sp curve.Point, challenge []byte) (message []byte, expectedServerProof [ServerProofSize]byte, err error) {
	if len(challenge) != profile.ChallengeSize() {
		return nil, expectedServerProof, ErrFailed
	}
	xPrime, err := curve.DecodePoint(challenge[:curve.PointSize])
	if err != nil {
		return nil, expectedServerProof, ErrFailed
	}
	salt := challenge[curve.PointSize:]

	v, err := deriveSecretScalar(profile, username, realm, password, salt)
	if err != nil || v.IsZero() {
		return nil, expectedServerProof, ErrFailed
	}
	vPoint, err := curve.MulGen(v, true)
	if err != nil {
		return nil, expectedServerProof, ErrFailed
	}
	e, err := deriveMask(vPoint, salt)
	if err != nil {
		return nil, expectedServerProof, ErrFailed
	}

	g, err := rng.Seed(seedBytes)
	if err != nil {
		return nil, expectedServerProof, ErrFailed
	}

	// V = MulGen(v, true) = (8*v)*G, so the proof scalar uses 8*v to match
	// the server's x*Y + x*h*V.
	var cofactorWide [64]byte
	cofactorWide[0] = 8
	vScaled := curve.MulModQ(v, curve.ModQ(cofactorWide), curve.ScalarZero())

	var yPrime curve.Point
	var z curve.Point
	found := false
	for attempt := 0; attempt < maxRetries; attempt++ {
		var wide [64]byte
		if err := g.Random(wide[:]); err != nil {
			return nil, expectedServerProof, ErrFailed
		}
		y := curve.ModQ(wide)
		zeroBytes(wide[:])
		if y.IsZero() {
			continue
		}
		_, yp, err := curve.ElligatorEncrypt(y, e)
		if err != nil {
			continue
		}

		h := bindingScalar(profile, e, xPrime, yp)
		candidate := curve.MulModQ(vScaled, h, y)
		zCandidate, err := curve.ElligatorSecret(candidate, xPrime, e, nil, nil)
		if err != nil {
			continue
		}

		yPrime, z = yp, zCandidate
		found = true
		break
	}
	if !found {
		return nil, expectedServerProof, ErrFailed
	}

	proof := transcriptProof(profile, e, xPrime, yPrime, sp, z)

	out := make([]byte, ClientMessageSize)
	yPrimeBytes := yPrime.Bytes()
	copy(out[:curve.PointSize], yPrimeBytes[:])
	copy(out[curve.PointSize:], proof[:32])
	copy(expectedServerProof[:], proof[32:])

	return out, expectedServerProof, nil
}

// ServerVerify completes the round srv began with ServerChallenge: it
// recovers Y from the client's masked Y', reconstructs Z using the
// server-side counter-scalar, checks the client's CPROOF in constant time,
// and — only if that check passes — returns the server_proof the client
// should check in turn.
func ServerVerify(secret *ChallengeSecret, sp curve.Point, message []byte) (serverProof [ServerProofSize]byte, err error) {
	if len(message) != ClientMessageSize {
		return serverProof, ErrFailed
	}
	yPrime, err := curve.DecodePoint(message[:curve.PointSize])
	if err != nil {
		return serverProof, ErrFailed
	}
	var clientProof [32]byte
	copy(clientProof[:], message[curve.PointSize:])

	h := bindingScalar(secret.profile, secret.e, secret.xPrime, yPrime)
	counter := curve.MulModQ(secret.x, h, curve.ScalarZero())
	z, err := curve.ElligatorSecret(secret.x, yPrime, secret.e, &counter, &secret.v)
	if err != nil {
		return serverProof, ErrFailed
	}

	proof := transcriptProof(secret.profile, secret.e, secret.xPrime, yPrime, sp, z)
	if subtle.ConstantTimeCompare(proof[:32], clientProof[:]) != 1 {
		return serverProof, ErrFailed
	}

	copy(serverProof[:], proof[32:])
	return serverProof, nil
}

// ClientVerifyServerProof constant-time compares the server_verifier held
// since ClientProof against the server_proof just received.
func ClientVerifyServerProof(serverVerifier, serverProof [ServerProofSize]byte) bool {
	return subtle.ConstantTimeCompare(serverVerifier[:], serverProof[:]) == 1
}

// bindingScalar computes the per-profile hash that ties the proof scalar to
// the round's ephemeral transcript. The mobile profile binds both masked
// points; the desktop profile binds only the password-derived mask, since
// its threat model already assumes a trusted local client process.
func bindingScalar(profile Profile, e, xPrime, yPrime curve.Point) curve.Scalar {
	switch profile {
	case Mobile:
		xb := xPrime.Bytes()
		yb := yPrime.Bytes()
		digest := blake2b.Sum512(append(append([]byte{}, xb[:]...), yb[:]...))
		return curve.ModQ(digest)
	default:
		eb := e.Bytes()
		digest := blake2b.Sum512(eb[:])
		return curve.ModQ(digest)
	}
}

// transcriptProof computes PROOF = BLAKE2b-64(transcript), the single
// 64-byte value both sides split identically: the low 32 bytes are CPROOF
// (sent from client to server) and the high 32 bytes are server_proof
// (returned from server to client).
func transcriptProof(profile Profile, e, xPrime, yPrime, sp, z curve.Point) [64]byte {
	eb := e.Bytes()
	spb := sp.Bytes()
	zb := z.Bytes()

	var transcript []byte
	if profile == Mobile {
		xb := xPrime.Bytes()
		yb := yPrime.Bytes()
		transcript = concatAll(eb[:], xb[:], yb[:], spb[:], zb[:])
	} else {
		transcript = concatAll(eb[:], spb[:], zb[:])
	}

	return blake2b.Sum512(transcript)
}

func concatAll(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
