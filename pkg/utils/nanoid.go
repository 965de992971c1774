package utils

import "crypto/rand"

// idAlphabet has 64 symbols so a random byte masks cleanly to one
// character.
var idAlphabet = []byte("_-0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")

const idLength = 8

// NewNanoID returns a short random identifier used to tag observer
// attachments in logs.
func NewNanoID() string {
	buf := make([]byte, idLength)

	// crypto/rand.Read never returns a partial read without an error
	rand.Read(buf)

	for i, b := range buf {
		buf[i] = idAlphabet[b&63]
	}
	return string(buf)
}
