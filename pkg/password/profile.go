// Package password implements the augmented password-authenticated key
// exchange. Two wire profiles exist — Desktop and Mobile — differing in
// salt size, Lyra-class cost parameters, and what the proof transcript
// binds. An implementation must not mix the two within one deployment;
// Profile is threaded through every call here specifically so the two can
// never be cross-wired by accident.
package password

import (
	"errors"

	"github.com/snowtabby/engine/pkg/curve"
)

// Profile selects one of the two fixed parameter sets this package supports.
type Profile int

const (
	// Desktop uses an 8-byte salt and a CPU-heavy, memory-light Lyra cost
	// (T=1000, M=32KB).
	Desktop Profile = iota
	// Mobile uses a 16-byte salt and a memory-heavy Lyra cost (T=2,
	// M=12MB), trading CPU iterations for resistance to custom ASICs.
	Mobile
)

// lyraParams is this profile's (time cost, memory cost in KiB) pair, fed to
// the memory-hard password hash.
type lyraParams struct {
	timeCost   uint32
	memoryKiB  uint32
}

func (p Profile) lyra() lyraParams {
	switch p {
	case Desktop:
		return lyraParams{timeCost: 1000, memoryKiB: 32}
	case Mobile:
		return lyraParams{timeCost: 2, memoryKiB: 3000 * 4}
	default:
		panic("password: unknown profile")
	}
}

// SaltSize returns the profile's fixed salt length.
func (p Profile) SaltSize() int {
	switch p {
	case Desktop:
		return 8
	case Mobile:
		return 16
	default:
		panic("password: unknown profile")
	}
}

// VerifierSize returns the encoded password_verifier size: V || salt.
func (p Profile) VerifierSize() int {
	return curve.PointSize + p.SaltSize()
}

// ChallengeSize returns the encoded challenge size: X' || salt.
func (p Profile) ChallengeSize() int {
	return curve.PointSize + p.SaltSize()
}

// ErrFailed is the single opaque error this package returns.
var ErrFailed = errors.New("password: failed")

const maxRetries = 64

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
