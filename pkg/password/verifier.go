package password

import (
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/blake2b"

	"github.com/snowtabby/engine/pkg/curve"
	"github.com/snowtabby/engine/pkg/rng"
)

// GenerateVerifier derives a fresh password_verifier for (username, realm,
// password) under profile, drawing a random salt from seedBytes. The salt
// draw is retried, bounded, when the derived scalar reduces to zero mod q:
// at enrollment time no verifier has been published yet, whereas
// ClientProof, which must use the salt it was given, fails outright on a
// zero scalar.
func GenerateVerifier(profile Profile, seedBytes, username, realm, password []byte) ([]byte, error) {
	g, err := rng.Seed(seedBytes)
	if err != nil {
		return nil, ErrFailed
	}

	salt := make([]byte, profile.SaltSize())
	var v curve.Scalar
	ok := false
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := g.Random(salt); err != nil {
			return nil, ErrFailed
		}
		v, err = deriveSecretScalar(profile, username, realm, password, salt)
		if err != nil {
			return nil, ErrFailed
		}
		if !v.IsZero() {
			ok = true
			break
		}
	}
	if !ok {
		return nil, ErrFailed
	}

	vPoint, err := curve.MulGen(v, true)
	if err != nil {
		return nil, ErrFailed
	}

	out := make([]byte, profile.VerifierSize())
	vBytes := vPoint.Bytes()
	copy(out[:curve.PointSize], vBytes[:])
	copy(out[curve.PointSize:], salt)
	return out, nil
}

// parseVerifier splits an encoded password_verifier into its public point
// and salt.
func parseVerifier(profile Profile, verifier []byte) (curve.Point, []byte, error) {
	if len(verifier) != profile.VerifierSize() {
		return curve.Point{}, nil, ErrFailed
	}
	v, err := curve.DecodePoint(verifier[:curve.PointSize])
	if err != nil {
		return curve.Point{}, nil, ErrFailed
	}
	salt := append([]byte(nil), verifier[curve.PointSize:]...)
	return v, salt, nil
}

// deriveSecretScalar folds username, realm, password, and salt through
// BLAKE2b into a fixed-size block, stretches it through Argon2 under the
// profile's cost parameters — standing in for the system's memory-hard
// password hash — and reduces the result mod q.
func deriveSecretScalar(profile Profile, username, realm, password, salt []byte) (curve.Scalar, error) {
	pre := blake2b.Sum512(joinFields(username, realm, password, salt))
	params := profile.lyra()
	wide := argon2.IDKey(pre[:], salt, params.timeCost, params.memoryKiB, 1, 64)
	var wideArr [64]byte
	copy(wideArr[:], wide)
	return curve.ModQ(wideArr), nil
}

func joinFields(username, realm, password, salt []byte) []byte {
	out := make([]byte, 0, len(username)+len(realm)+len(password)+len(salt)+3)
	out = append(out, username...)
	out = append(out, 0)
	out = append(out, realm...)
	out = append(out, 0)
	out = append(out, password...)
	out = append(out, 0)
	out = append(out, salt...)
	return out
}
