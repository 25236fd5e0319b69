package plot

import (
	"github.com/klingon-tech/plotchain/pkg/tag"
	"github.com/klingon-tech/plotchain/pkg/types"
)

func computeTag(encoding []byte, nonce uint64) [types.TagSize]byte {
	return tag.Compute(encoding, nonce)
}

func tagToUint64(t [types.TagSize]byte) uint64 {
	return tag.ToUint64(t)
}

func uint64ToTag(v uint64) [types.TagSize]byte {
	return tag.FromUint64(v)
}
