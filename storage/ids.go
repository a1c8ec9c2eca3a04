package storage

import (
	"crypto/rand"
	"encoding/hex"
)

// idBytes is the amount of entropy in a content id (48 bits).
const idBytes = 6

// GenerateID returns a random lowercase hex content id.
func GenerateID() string {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand only fails when the OS entropy source is unusable.
		panic("storage: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(b)
}
