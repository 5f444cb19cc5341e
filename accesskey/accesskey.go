// Package accesskey generates the opaque codes the system hands out: the
// per-event access keys stamped on approved enrollments and the single-use
// administrator invitation tokens.
package accesskey

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const (
	MinKeyLength   = 12
	MinTokenLength = 16

	// minDistinct is the minimum number of distinct characters an
	// invitation token must contain.
	minDistinct = 8
)

var ErrTooShort = errors.New("requested length below minimum")

// NewKey returns an uppercase-alphanumeric access key of the given length.
func NewKey(length int) (string, error) {
	if length < MinKeyLength {
		return "", fmt.Errorf("access key: %w", ErrTooShort)
	}
	return randomString(length)
}

// NewToken returns an invitation token that satisfies the predictability
// rules: at least 16 characters, at least 8 distinct characters and no run of
// 3 ordinally consecutive characters. Generation retries until a candidate
// passes; with a 36-character alphabet rejections are rare.
func NewToken(length int) (string, error) {
	if length < MinTokenLength {
		return "", fmt.Errorf("invitation token: %w", ErrTooShort)
	}
	for {
		candidate, err := randomString(length)
		if err != nil {
			return "", err
		}
		if ValidToken(candidate) {
			return candidate, nil
		}
	}
}

// ValidToken reports whether a token satisfies the predictability rules.
func ValidToken(token string) bool {
	if len(token) < MinTokenLength {
		return false
	}
	distinct := map[byte]bool{}
	for i := 0; i < len(token); i++ {
		c := token[i]
		if !validChar(c) {
			return false
		}
		distinct[c] = true
		if i >= 2 && token[i-1] == c-1 && token[i-2] == c-2 {
			return false
		}
	}
	return len(distinct) >= minDistinct
}

func validChar(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func randomString(length int) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = alphabet[n.Int64()]
	}
	return string(out), nil
}
