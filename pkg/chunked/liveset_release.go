//go:build !debug

package chunked

// liveSet is a no-op outside debug builds — see liveset_debug.go.
type liveSet struct{}

func (s *liveSet) insert(chunkPair) {}
func (s *liveSet) remove(chunkPair) {}
