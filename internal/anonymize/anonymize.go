// Package anonymize derives irreversible device tokens from raw radio
// addresses under a rotating secret.
//
// A token is the keyed BLAKE3 hash of the raw address under the current
// epoch secret, hex encoded and truncated to 32 characters (128 bits —
// collision-free for the tens-to-hundreds of concurrent devices a single
// sensor sees). Tokens are deterministic within an epoch and unlinkable
// across epochs: rotation replaces the secret and the caller must drop
// every piece of state keyed by old tokens in the same step.
package anonymize

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/zeebo/blake3"
)

// TokenLen is the length of a token in hex characters.
const TokenLen = 32

// Epoch holds the active secret and its rotation schedule. It is owned
// by the cycle scheduler; nothing else touches it.
type Epoch struct {
	secret         [32]byte
	activatedAt    time.Time
	rotationPeriod time.Duration
}

// NewEpoch generates a fresh secret and activates it at now. It fails
// only when the system randomness source does — the caller must treat
// that as fatal rather than fall back to a weak salt.
func NewEpoch(rotationPeriod time.Duration, now time.Time) (*Epoch, error) {
	e := &Epoch{rotationPeriod: rotationPeriod}
	if err := e.reseed(now); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Epoch) reseed(now time.Time) error {
	if _, err := rand.Read(e.secret[:]); err != nil {
		return fmt.Errorf("generating salt secret: %w", err)
	}
	e.activatedAt = now
	return nil
}

// Token derives the anonymized token for a raw radio address.
func (e *Epoch) Token(addr string) string {
	// NewKeyed only errors on a wrong key length, which the fixed-size
	// secret rules out.
	hasher, err := blake3.NewKeyed(e.secret[:])
	if err != nil {
		panic("anonymize: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write([]byte(addr))
	sum := hasher.Sum(nil)
	return hex.EncodeToString(sum)[:TokenLen]
}

// Due reports whether the epoch has outlived its rotation period.
func (e *Epoch) Due(now time.Time) bool {
	return now.Sub(e.activatedAt) >= e.rotationPeriod
}

// Rotate replaces the secret and resets the activation time. On error
// the old secret remains in place untouched; the caller must halt, not
// continue, since the rotation deadline has passed.
func (e *Epoch) Rotate(now time.Time) error {
	var next [32]byte
	if _, err := rand.Read(next[:]); err != nil {
		return fmt.Errorf("generating salt secret: %w", err)
	}
	e.secret = next
	e.activatedAt = now
	return nil
}

// ActivatedAt returns when the current secret became active.
func (e *Epoch) ActivatedAt() time.Time { return e.activatedAt }

// Age returns how long the current secret has been active.
func (e *Epoch) Age(now time.Time) time.Duration { return now.Sub(e.activatedAt) }
