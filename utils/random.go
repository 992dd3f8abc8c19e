// utils/random.go

package utils

import (
	"crypto/rand"
	"encoding/hex"
	"io"
)

// randReader is swapped out in tests to simulate a broken entropy source.
var randReader io.Reader = rand.Reader

// RandomHex returns byteLen random bytes hex-encoded (2*byteLen lowercase
// characters). Unlike a panicking helper, the error is returned: a dead
// entropy source must surface as nonce_generation_failed, not crash the
// process.
func RandomHex(byteLen int) (string, error) {
	bytes := make([]byte, byteLen)
	if _, err := io.ReadFull(randReader, bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
