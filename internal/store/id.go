package store

import "crypto/rand"

// idAlphabet is the exact 64-character base64url alphabet spec.md §6
// requires for post/user ids: "0-9a-zA-Z-_".
const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ-_"

// GenID returns a fresh 10-character id: ten independent 6-bit draws
// mapped into idAlphabet. Collision probability is negligible at target
// scale (spec.md §6).
func GenID() (string, error) {
	buf := make([]byte, 10)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	id := make([]byte, 10)
	for i, b := range buf {
		id[i] = idAlphabet[b&0x3f]
	}
	return string(id), nil
}
