package password

import (
	"golang.org/x/crypto/blake2b"

	"github.com/snowtabby/engine/pkg/curve"
	"github.com/snowtabby/engine/pkg/rng"
	"github.com/snowtabby/engine/pkg/server"
)

// ChallengeSecret is the server's scratch state for one in-flight PAKE
// round. It is never serialized; it exists only to carry E, x, and V from
// ServerChallenge to ServerVerify across whatever transport the caller uses
// to hold the round open.
type ChallengeSecret struct {
	profile Profile
	e       curve.Point
	x       curve.Scalar
	v       curve.Point
	xPrime  curve.Point
}

// ServerChallenge derives the Elligator mask E from the published verifier,
// draws a fresh ephemeral x, and returns the encoded challenge (X' || salt)
// to send to the client alongside the scratch state ServerVerify needs to
// complete the round.
func ServerChallenge(profile Profile, srv *server.Server, verifier []byte) (challenge []byte, secret *ChallengeSecret, err error) {
	v, salt, err := parseVerifier(profile, verifier)
	if err != nil {
		return nil, nil, ErrFailed
	}

	e, err := deriveMask(v, salt)
	if err != nil {
		return nil, nil, ErrFailed
	}

	g, err := srv.RNG()
	if err != nil {
		return nil, nil, ErrFailed
	}

	x, _, xPrime, err := drawMaskedKeyPair(g, e)
	if err != nil {
		return nil, nil, ErrFailed
	}

	out := make([]byte, profile.ChallengeSize())
	xPrimeBytes := xPrime.Bytes()
	copy(out[:curve.PointSize], xPrimeBytes[:])
	copy(out[curve.PointSize:], salt)

	return out, &ChallengeSecret{profile: profile, e: e, x: x, v: v, xPrime: xPrime}, nil
}

// deriveMask computes the seed BLAKE2b-32(V || salt) and maps it onto the
// curve through the Elligator adapter, giving both sides of the round a
// password-dependent mask neither can predict without knowing V.
func deriveMask(v curve.Point, salt []byte) (curve.Point, error) {
	vBytes := v.Bytes()
	seed := blake2b.Sum256(append(append([]byte{}, vBytes[:]...), salt...))
	return curve.Elligator(seed)
}

func drawMaskedKeyPair(g *rng.Generator, e curve.Point) (scalar curve.Scalar, point, masked curve.Point, err error) {
	for attempt := 0; attempt < maxRetries; attempt++ {
		var wide [64]byte
		if err := g.Random(wide[:]); err != nil {
			return curve.Scalar{}, curve.Point{}, curve.Point{}, ErrFailed
		}
		s := curve.ModQ(wide)
		zeroBytes(wide[:])
		if s.IsZero() {
			continue
		}
		p, pMasked, err := curve.ElligatorEncrypt(s, e)
		if err != nil {
			continue
		}
		return s, p, pMasked, nil
	}
	return curve.Scalar{}, curve.Point{}, curve.Point{}, ErrFailed
}
