package plot

import "github.com/klingon-tech/plotchain/pkg/types"

// Write appends encoding at the file tail, retires any prior entry at
// index, and records the (tag, index) pair so later audits can find it.
func (s *Store) Write(index, nonce uint64, encoding [types.PieceSize]byte) error {
	result := make(chan error, 1)
	s.submitWrite(&writeRequest{index: index, nonce: nonce, encoding: encoding, result: result})
	return <-result
}

// Read returns the piece stored at index, or ErrNotFound if absent.
func (s *Store) Read(index uint64) ([types.PieceSize]byte, error) {
	result := make(chan readResult, 1)
	s.submitRead(&readRequest{index: index, result: result})
	r := <-result
	return r.piece, r.err
}

// Remove deletes index's index_map entry, orphaning its bytes in the
// plot file. No compaction is performed.
func (s *Store) Remove(index uint64) error {
	result := make(chan error, 1)
	s.submitWrite(&removeRequest{index: index, result: result})
	return <-result
}

// FindByTag returns the stored tag nearest to (>=, wrapping) target in
// big-endian order, with its piece index.
func (s *Store) FindByTag(target uint64) (TagMatch, error) {
	result := make(chan findByTagResultV, 1)
	s.submitRead(&findByTagRequest{tag: target, result: result})
	r := <-result
	return r.match, r.err
}

// FindByRange returns every stored (tag, index) within range/2 of target
// under u64 wrap-around distance.
func (s *Store) FindByRange(target, rang uint64) ([]TagMatch, error) {
	result := make(chan findByRangeResult, 1)
	s.submitRead(&findByRangeRequest{target: target, rang: rang, result: result})
	r := <-result
	return r.matches, r.err
}

// IsEmpty reports whether the plot has no pieces stored.
func (s *Store) IsEmpty() bool {
	result := make(chan bool, 1)
	s.submitRead(&isEmptyRequest{result: result})
	return <-result
}

// GetKeys returns every stored tag as an integer, sorted ascending.
func (s *Store) GetKeys() ([]uint64, error) {
	result := make(chan getKeysResultV, 1)
	s.submitRead(&getKeysRequest{result: result})
	r := <-result
	return r.tags, r.err
}
