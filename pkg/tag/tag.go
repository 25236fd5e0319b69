// Package tag computes the audit tag that ties a plotted piece encoding
// to its nonce, shared by the plot store (which indexes by tag) and the
// ledger (which re-derives a proof's tag during validation).
package tag

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"

	"github.com/klingon-tech/plotchain/pkg/types"
)

// Compute derives an 8-byte audit tag from an encoding and the nonce used
// to plot it: tag = HMAC-SHA256(key=nonce_LE, encoding)[0:8].
func Compute(encoding []byte, nonce uint64) [types.TagSize]byte {
	var nonceBytes [8]byte
	binary.LittleEndian.PutUint64(nonceBytes[:], nonce)

	mac := hmac.New(sha256.New, nonceBytes[:])
	mac.Write(encoding)
	sum := mac.Sum(nil)

	var t [types.TagSize]byte
	copy(t[:], sum[:types.TagSize])
	return t
}

// ToUint64 reads a tag as a big-endian integer — big-endian is what makes
// lexicographic key iteration match integer order for range scans.
func ToUint64(t [types.TagSize]byte) uint64 {
	return binary.BigEndian.Uint64(t[:])
}

// FromUint64 is ToUint64's inverse.
func FromUint64(v uint64) [types.TagSize]byte {
	var t [types.TagSize]byte
	binary.BigEndian.PutUint64(t[:], v)
	return t
}
