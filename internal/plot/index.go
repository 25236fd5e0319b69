package plot

import "github.com/klingon-tech/plotchain/pkg/types"

// NonceForIndex derives the Sloth nonce a plotted entry at store index
// was written with. The plotting workflow (external to this package, per
// spec §1) and the farmer must agree on a single deterministic mapping
// from a flat store index to a nonce without the store itself persisting
// nonces; index % ReplicationFactor is that mapping, consuming the
// ReplicationFactor distinct re-encodings spec §3's data model reserves
// per logical piece index.
func NonceForIndex(index uint64) uint64 {
	return index % types.ReplicationFactor
}
