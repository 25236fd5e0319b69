// Package plot implements the plot store: the append-only file of encoded
// pieces a farmer reads during solving, plotted once and read many times.
//
// A single broker goroutine owns both the plot file and its two index
// databases. Callers never touch either directly; they submit requests on
// one of two queues and the broker serves them under a fixed discipline —
// drain every pending read, then serve at most one write, repeat — so a
// plotter streaming writes never starves farmers auditing the plot.
package plot

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/klingon-tech/plotchain/internal/storage"
)

const (
	plotFileName  = "plot.bin"
	indexMapFile  = "index_map.bbolt"
	tagMapFile    = "tag_map.bbolt"
	requestBuffer = 256
)

// request is submitted to one of the broker's two queues. Read requests
// never mutate state; write requests may mutate the plot file and both
// index databases.
type request interface {
	handle(s *Store)
}

// Store is the plot store's public handle: safe for concurrent use, with
// all actual I/O serialized through the broker goroutine.
type Store struct {
	log zerolog.Logger

	file     *os.File
	indexMap storage.DB // piece_index (LE u64) -> file offset (LE u64)
	tagMap   storage.DB // tag (BE 8 bytes)     -> piece_index (LE u64)

	readCh  chan request
	writeCh chan request
	wake    chan struct{}
	done    chan struct{}
	closed  chan struct{}
}

// Open opens or creates a plot store rooted at dataDir, starting its
// broker goroutine.
func Open(dataDir string, log zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("plot: create data dir: %w", err)
	}

	file, err := os.OpenFile(filepath.Join(dataDir, plotFileName), os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("plot: open plot file: %w", err)
	}

	indexMap, err := storage.NewBbolt(filepath.Join(dataDir, indexMapFile))
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("plot: open index map: %w", err)
	}

	tagMap, err := storage.NewBbolt(filepath.Join(dataDir, tagMapFile))
	if err != nil {
		file.Close()
		indexMap.Close()
		return nil, fmt.Errorf("plot: open tag map: %w", err)
	}

	s := &Store{
		log:      log.With().Str("component", "plot").Logger(),
		file:     file,
		indexMap: indexMap,
		tagMap:   tagMap,
		readCh:   make(chan request, requestBuffer),
		writeCh:  make(chan request, requestBuffer),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		closed:   make(chan struct{}),
	}
	go s.run()
	return s, nil
}

// Close stops the broker and flushes/closes the underlying file and
// index databases. In-flight writes already submitted are served before
// shutdown.
func (s *Store) Close() error {
	close(s.done)
	<-s.closed

	var firstErr error
	if err := s.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.indexMap.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.tagMap.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// run is the broker's main loop: drain every pending read, serve at most
// one write, repeat, then block until woken or cancelled.
func (s *Store) run() {
	defer close(s.closed)
	for {
		select {
		case <-s.done:
			s.drainOnShutdown()
			return
		case <-s.wake:
		}

		for {
			didRead := s.drainReads()
			didWrite := s.serveOneWrite()
			if !didRead && !didWrite {
				break
			}
		}
	}
}

// drainOnShutdown serves any writes still queued so nothing submitted
// before Close is silently dropped, then returns once both queues are
// empty.
func (s *Store) drainOnShutdown() {
	for {
		select {
		case req := <-s.writeCh:
			req.handle(s)
			continue
		default:
		}
		select {
		case req := <-s.readCh:
			req.handle(s)
			continue
		default:
		}
		return
	}
}

func (s *Store) drainReads() bool {
	did := false
	for {
		select {
		case req := <-s.readCh:
			req.handle(s)
			did = true
		default:
			return did
		}
	}
}

func (s *Store) serveOneWrite() bool {
	select {
	case req := <-s.writeCh:
		req.handle(s)
		return true
	default:
		return false
	}
}

func (s *Store) submitRead(req request) {
	s.readCh <- req
	s.signal()
}

func (s *Store) submitWrite(req request) {
	s.writeCh <- req
	s.signal()
}

func (s *Store) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// indexKey encodes a piece index as an index_map key (little-endian).
func indexKey(index uint64) []byte {
	var b [8]byte
	le := b[:]
	for i := 0; i < 8; i++ {
		le[i] = byte(index >> (8 * uint(i)))
	}
	return le
}

func decodeOffset(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("plot: corrupt offset entry (%d bytes)", len(b))
	}
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * uint(i))
	}
	return v, nil
}

func decodePieceIndex(b []byte) (uint64, error) {
	return decodeOffset(b)
}

func encodePieceIndex(index uint64) []byte {
	return indexKey(index)
}
