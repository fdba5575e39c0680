package linkauth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Hasher performs one-way password hashing with bcrypt. The zero value uses
// bcrypt's default cost.
type Hasher struct {
	// Cost is the bcrypt work factor. Higher costs slow down verification
	// (and brute forcing) exponentially.
	Cost int
}

// NewHasher returns a Hasher with the given work factor, falling back to
// bcrypt.DefaultCost when cost is not positive.
func NewHasher(cost int) *Hasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{Cost: cost}
}

func (h *Hasher) cost() int {
	if h.Cost <= 0 {
		return bcrypt.DefaultCost
	}
	return h.Cost
}

// Hash returns a salted hash of plaintext. Each call salts independently, so
// hashing the same plaintext twice yields different values that both verify.
func (h *Hasher) Hash(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost())
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Verify recomputes the hash using the salt embedded in hashed and compares.
// A mismatch is (false, nil); only a malformed stored hash is an error,
// reported as ErrCorruptCredential.
func (h *Hasher) Verify(plaintext, hashed string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plaintext))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, fmt.Errorf("%w: %v", ErrCorruptCredential, err)
}
