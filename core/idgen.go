package core

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// suffixBytes gives 128 bits of entropy per generated ID, enough that
// collisions are negligible without any coordination between callers.
const suffixBytes = 16

// GenerateID returns "<prefix>_<32 hex chars>". The suffix is drawn from
// the platform CSPRNG; there is no shared state, so it is safe to call
// from any number of goroutines.
func GenerateID(prefix string) (string, error) {
	buf := make([]byte, suffixBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	if prefix == "" {
		return hex.EncodeToString(buf), nil
	}
	return prefix + "_" + hex.EncodeToString(buf), nil
}
