//go:build debug

package chunked

import (
	"fmt"

	"github.com/dolthub/maphash"
)

// liveSet tracks which chunk identities are currently checked out of a
// node, purely as a debug-mode consistency check that no chunk is ever
// in the free queue and in a live ChunkedBlock at the same time. It
// costs nothing in production builds (see liveset_release.go); in debug
// builds Alloc and Free update it on every call and it panics on a
// violation.
//
// chunkPair is an arbitrary comparable struct, not a byte slice, so
// this hashes it with dolthub/maphash's generic Hasher, the same way a
// swiss-table-style map keys on an arbitrary comparable type, rather
// than keying a native Go map on the struct directly.
type liveSet struct {
	hasher maphash.Hasher[chunkPair]
	set    map[uint64]chunkPair
}

func (s *liveSet) ensure() {
	if s.set == nil {
		s.hasher = maphash.NewHasher[chunkPair]()
		s.set = make(map[uint64]chunkPair)
	}
}

func (s *liveSet) insert(p chunkPair) {
	s.ensure()

	h := s.hasher.Hash(p)
	if existing, dup := s.set[h]; dup {
		panic(fmt.Sprintf("gfxmem: chunked: chunk %v already checked out", existing))
	}

	s.set[h] = p
}

func (s *liveSet) remove(p chunkPair) {
	s.ensure()

	h := s.hasher.Hash(p)
	if _, ok := s.set[h]; !ok {
		panic("gfxmem: chunked: free of a chunk that was not live")
	}

	delete(s.set, h)
}
