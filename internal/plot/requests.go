package plot

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/klingon-tech/plotchain/pkg/types"
)

// ErrNotFound is returned by Read for an index with no entry in index_map.
var ErrNotFound = errors.New("plot: piece not found")

type writeRequest struct {
	index    uint64
	nonce    uint64
	encoding [types.PieceSize]byte
	result   chan error
}

func (r *writeRequest) handle(s *Store) {
	r.result <- s.writeEncoding(r.index, r.nonce, r.encoding)
}

func (s *Store) writeEncoding(index, nonce uint64, encoding [types.PieceSize]byte) error {
	// A prior encoding at this index is superseded: its bytes are orphaned
	// in the file (compaction is out of scope, per spec §4.2) and its
	// index_map entry is dropped before the new one lands. Deleting an
	// absent key is a no-op on both Badger and bbolt.
	if err := s.indexMap.Delete(indexKey(index)); err != nil {
		return fmt.Errorf("plot: delete prior index_map entry: %w", err)
	}

	offset, err := s.file.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("plot: seek to tail: %w", err)
	}
	if _, err := s.file.Write(encoding[:]); err != nil {
		return fmt.Errorf("plot: write encoding: %w", err)
	}

	tag := computeTag(encoding[:], nonce)

	if err := s.tagMap.Put(tag[:], encodePieceIndex(index)); err != nil {
		return fmt.Errorf("plot: update tag map: %w", err)
	}
	if err := s.indexMap.Put(indexKey(index), encodeOffset(uint64(offset))); err != nil {
		return fmt.Errorf("plot: update index map: %w", err)
	}
	return nil
}

func encodeOffset(offset uint64) []byte {
	return indexKey(offset)
}

type readRequest struct {
	index  uint64
	result chan readResult
}

type readResult struct {
	piece [types.PieceSize]byte
	err   error
}

func (r *readRequest) handle(s *Store) {
	piece, err := s.readEncoding(r.index)
	r.result <- readResult{piece: piece, err: err}
}

func (s *Store) readEncoding(index uint64) ([types.PieceSize]byte, error) {
	var piece [types.PieceSize]byte

	offsetBytes, err := s.indexMap.Get(indexKey(index))
	if err != nil {
		return piece, ErrNotFound
	}
	offset, err := decodeOffset(offsetBytes)
	if err != nil {
		return piece, err
	}

	if _, err := s.file.Seek(int64(offset), io.SeekStart); err != nil {
		return piece, fmt.Errorf("plot: seek to offset %d: %w", offset, err)
	}
	if _, err := io.ReadFull(s.file, piece[:]); err != nil {
		return piece, fmt.Errorf("plot: read piece at offset %d: %w", offset, err)
	}
	return piece, nil
}

type removeRequest struct {
	index  uint64
	result chan error
}

func (r *removeRequest) handle(s *Store) {
	r.result <- s.indexMap.Delete(indexKey(r.index))
}

// TagMatch is one (tag, piece_index) pair returned by a tag query.
type TagMatch struct {
	Tag        [types.TagSize]byte
	PieceIndex uint64
}

type findByTagRequest struct {
	tag    uint64
	result chan findByTagResultV
}

type findByTagResultV struct {
	match TagMatch
	err   error
}

func (r *findByTagRequest) handle(s *Store) {
	match, err := s.findByTag(r.tag)
	r.result <- findByTagResultV{match: match, err: err}
}

// findByTag returns the first stored tag >= target in big-endian
// (lexicographic) order, wrapping to the smallest stored tag if target
// exceeds every stored tag.
func (s *Store) findByTag(target uint64) (TagMatch, error) {
	targetBytes := uint64ToTag(target)

	var found *TagMatch
	err := s.tagMap.ForEach(nil, func(key, value []byte) error {
		if len(key) != types.TagSize {
			return nil
		}
		if string(key) < string(targetBytes[:]) {
			return nil
		}
		if found != nil {
			return errStopIteration
		}
		idx, err := decodePieceIndex(value)
		if err != nil {
			return err
		}
		var tag [types.TagSize]byte
		copy(tag[:], key)
		found = &TagMatch{Tag: tag, PieceIndex: idx}
		return errStopIteration
	})
	if err != nil && !errors.Is(err, errStopIteration) {
		return TagMatch{}, err
	}
	if found == nil {
		// Wrap around: no stored tag is >= target, so the nearest is the
		// smallest stored tag.
		var first *TagMatch
		err := s.tagMap.ForEach(nil, func(key, value []byte) error {
			if len(key) != types.TagSize {
				return nil
			}
			idx, err := decodePieceIndex(value)
			if err != nil {
				return err
			}
			var tag [types.TagSize]byte
			copy(tag[:], key)
			first = &TagMatch{Tag: tag, PieceIndex: idx}
			return errStopIteration
		})
		if err != nil && !errors.Is(err, errStopIteration) {
			return TagMatch{}, err
		}
		if first == nil {
			return TagMatch{}, ErrNotFound
		}
		return *first, nil
	}
	return *found, nil
}

var errStopIteration = errors.New("plot: stop iteration")

type findByRangeRequest struct {
	target uint64
	rang   uint64
	result chan findByRangeResult
}

type findByRangeResult struct {
	matches []TagMatch
	err     error
}

func (r *findByRangeRequest) handle(s *Store) {
	matches, err := s.findByRange(r.target, r.rang)
	r.result <- findByRangeResult{matches: matches, err: err}
}

// findByRange returns every (tag, index) with distance(tag, target) <=
// range/2 under u64 wrap-around arithmetic. When the window straddles the
// u64 boundary it is served as two scans: [0, upper] then [lower,
// maxU64], matching the reference plotter's two-scan split.
func (s *Store) findByRange(target, rang uint64) ([]TagMatch, error) {
	half := rang / 2
	lower, lowerUnderflowed := subOverflow(target, half)
	upper, upperOverflowed := addOverflow(target, half)

	var matches []TagMatch
	collect := func(key, value []byte) error {
		if len(key) != types.TagSize {
			return nil
		}
		idx, err := decodePieceIndex(value)
		if err != nil {
			return err
		}
		var tag [types.TagSize]byte
		copy(tag[:], key)
		matches = append(matches, TagMatch{Tag: tag, PieceIndex: idx})
		return nil
	}

	if lowerUnderflowed || upperOverflowed {
		upperBytes := uint64ToTag(upper)
		err := s.tagMap.ForEach(nil, func(key, value []byte) error {
			if string(key) > string(upperBytes[:]) {
				return errStopIteration
			}
			return collect(key, value)
		})
		if err != nil && !errors.Is(err, errStopIteration) {
			return nil, err
		}

		lowerBytes := uint64ToTag(lower)
		err = s.tagMap.ForEach(nil, func(key, value []byte) error {
			if string(key) < string(lowerBytes[:]) {
				return nil
			}
			return collect(key, value)
		})
		if err != nil {
			return nil, err
		}
		return matches, nil
	}

	lowerBytes := uint64ToTag(lower)
	upperBytes := uint64ToTag(upper)
	err := s.tagMap.ForEach(nil, func(key, value []byte) error {
		if string(key) < string(lowerBytes[:]) {
			return nil
		}
		if string(key) > string(upperBytes[:]) {
			return errStopIteration
		}
		return collect(key, value)
	})
	if err != nil && !errors.Is(err, errStopIteration) {
		return nil, err
	}
	return matches, nil
}

func subOverflow(a, b uint64) (uint64, bool) {
	return a - b, b > a
}

func addOverflow(a, b uint64) (uint64, bool) {
	sum := a + b
	return sum, sum < a
}

type isEmptyRequest struct {
	result chan bool
}

func (r *isEmptyRequest) handle(s *Store) {
	empty := true
	_ = s.indexMap.ForEach(nil, func(key, value []byte) error {
		empty = false
		return errStopIteration
	})
	r.result <- empty
}

type getKeysRequest struct {
	result chan getKeysResultV
}

type getKeysResultV struct {
	tags []uint64
	err  error
}

func (r *getKeysRequest) handle(s *Store) {
	var tags []uint64
	err := s.tagMap.ForEach(nil, func(key, value []byte) error {
		if len(key) != types.TagSize {
			return nil
		}
		var tag [types.TagSize]byte
		copy(tag[:], key)
		tags = append(tags, tagToUint64(tag))
		return nil
	})
	if err == nil {
		sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	}
	r.result <- getKeysResultV{tags: tags, err: err}
}
