// Package metablocks is the ledger's content-addressed registry of staged
// blocks: proof-id keyed, with a content-id index and parent-to-children
// tracking, persisted to a storage.DB.
package metablocks

import (
	"fmt"

	"github.com/klingon-tech/plotchain/internal/storage"
	"github.com/klingon-tech/plotchain/pkg/codec"
	"github.com/klingon-tech/plotchain/pkg/types"
)

var (
	prefixByProof   = []byte("p/") // p/<proof_id(32)> -> cbor(MetaBlock)
	prefixByContent = []byte("c/") // c/<content_id(32)> -> proof_id(32)
)

// Registry is the arena/registry keyed by proof-id that replaces the
// cyclic parent<->children pointer graph a naive port of the original
// block tree would need: every reference between blocks is a proof-id
// looked up through this store, never a Go pointer.
type Registry struct {
	db storage.DB
}

// New creates a registry backed by db.
func New(db storage.DB) *Registry {
	return &Registry{db: db}
}

func proofKey(proofID types.Hash) []byte {
	k := make([]byte, len(prefixByProof)+types.HashSize)
	copy(k, prefixByProof)
	copy(k[len(prefixByProof):], proofID[:])
	return k
}

func contentKey(contentID types.Hash) []byte {
	k := make([]byte, len(prefixByContent)+types.HashSize)
	copy(k, prefixByContent)
	copy(k[len(prefixByContent):], contentID[:])
	return k
}

// Put stores (or overwrites) mb, indexed by both its proof-id and its
// content-id.
func (r *Registry) Put(mb types.MetaBlock) error {
	data, err := codec.Marshal(mb)
	if err != nil {
		return fmt.Errorf("metablocks: marshal: %w", err)
	}
	if err := r.db.Put(proofKey(mb.ProofID), data); err != nil {
		return fmt.Errorf("metablocks: put by proof-id: %w", err)
	}
	if err := r.db.Put(contentKey(mb.ContentID), mb.ProofID[:]); err != nil {
		return fmt.Errorf("metablocks: put content index: %w", err)
	}
	return nil
}

// Get returns the metablock stored under proofID.
func (r *Registry) Get(proofID types.Hash) (types.MetaBlock, error) {
	data, err := r.db.Get(proofKey(proofID))
	if err != nil {
		return types.MetaBlock{}, fmt.Errorf("metablocks: get %x: %w", proofID, err)
	}
	var mb types.MetaBlock
	if err := codec.Unmarshal(data, &mb); err != nil {
		return types.MetaBlock{}, fmt.Errorf("metablocks: unmarshal %x: %w", proofID, err)
	}
	return mb, nil
}

// GetByContentID resolves contentID to its proof-id and returns the
// associated metablock.
func (r *Registry) GetByContentID(contentID types.Hash) (types.MetaBlock, error) {
	proofIDBytes, err := r.db.Get(contentKey(contentID))
	if err != nil {
		return types.MetaBlock{}, fmt.Errorf("metablocks: content index get %x: %w", contentID, err)
	}
	if len(proofIDBytes) != types.HashSize {
		return types.MetaBlock{}, fmt.Errorf("metablocks: corrupt content index for %x", contentID)
	}
	var proofID types.Hash
	copy(proofID[:], proofIDBytes)
	return r.Get(proofID)
}

// Exists reports whether proofID is already registered — the basis for
// the invariant that a proof-id uniquely determines a block.
func (r *Registry) Exists(proofID types.Hash) (bool, error) {
	ok, err := r.db.Has(proofKey(proofID))
	if err != nil {
		return false, fmt.Errorf("metablocks: has %x: %w", proofID, err)
	}
	return ok, nil
}

// Delete removes mb's entries from both the proof-id and content-id
// indexes. Once deleted, neither Get(proofID) nor GetByContentID(contentID)
// resolve it again — the registry no longer treats it as a live block.
func (r *Registry) Delete(proofID, contentID types.Hash) error {
	if err := r.db.Delete(proofKey(proofID)); err != nil {
		return fmt.Errorf("metablocks: delete by proof-id: %w", err)
	}
	if err := r.db.Delete(contentKey(contentID)); err != nil {
		return fmt.Errorf("metablocks: delete content index: %w", err)
	}
	return nil
}

// AddChild records childProofID as a child of the block at
// parentProofID.
func (r *Registry) AddChild(parentProofID, childProofID types.Hash) error {
	parent, err := r.Get(parentProofID)
	if err != nil {
		return err
	}
	for _, c := range parent.Children {
		if c == childProofID {
			return nil
		}
	}
	parent.Children = append(parent.Children, childProofID)
	return r.Put(parent)
}
