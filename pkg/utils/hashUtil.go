package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

func HashString(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// ShortHash returns the first n hex characters of HashString(data).
func ShortHash(data string, n int) string {
	h := HashString(data)
	if n <= 0 || n > len(h) {
		return h
	}
	return h[:n]
}
