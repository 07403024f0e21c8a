package utils

import (
	"encoding/hex"

	"github.com/minio/highwayhash"
)

// fingerprintKey is fixed so fingerprints stay stable across restarts and
// between processes sharing one result cache.
var fingerprintKey = []byte("fleetlens-chart-fingerprint-v01!")

// Fingerprint returns a short hex HighwayHash of data. It identifies cache
// content; it is not a security primitive.
func Fingerprint(data []byte) string {
	h, err := highwayhash.New64(fingerprintKey)
	if err != nil {
		// only fails for a key that is not 32 bytes long
		panic(err)
	}
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// FingerprintString is Fingerprint for string input.
func FingerprintString(s string) string {
	return Fingerprint([]byte(s))
}
