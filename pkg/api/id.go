package api

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	runIDPrefix  = "run_"
	callIDPrefix = "call_"

	callIDRandomLength = 24
	alphanumeric       = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// NewRunID generates a time-ordered run identifier with the "run_" prefix.
func NewRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return runIDPrefix + uuid.NewString()
	}
	return runIDPrefix + id.String()
}

// NewCallID generates a tool call identifier with the "call_" prefix.
// Used when the model backend does not supply one.
func NewCallID() string {
	return callIDPrefix + randomAlphanumeric(callIDRandomLength)
}

// IsCallID reports whether id looks like an identifier from NewCallID.
func IsCallID(id string) bool {
	rest, ok := strings.CutPrefix(id, callIDPrefix)
	if !ok || len(rest) != callIDRandomLength {
		return false
	}
	for _, r := range rest {
		if !strings.ContainsRune(alphanumeric, r) {
			return false
		}
	}
	return true
}

func randomAlphanumeric(n int) string {
	max := big.NewInt(int64(len(alphanumeric)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("crypto/rand failed: " + err.Error())
		}
		b[i] = alphanumeric[idx.Int64()]
	}
	return string(b)
}
