package sloth

import "github.com/zeebo/blake3"

// ExpandIV derives a Sloth expanded_iv from a farmer's public key using
// BLAKE3 as an extendable-output function. The spec leaves expanded_iv's
// derivation unstated; original_source's ExpandedIV is exactly one Sloth
// block (see DESIGN.md), so size is normally types.PrimeSizeBytes.
func ExpandIV(publicKey []byte, size int) []byte {
	h := blake3.New()
	h.Write(publicKey)
	out := make([]byte, size)
	d := h.Digest()
	d.Read(out)
	return out
}
