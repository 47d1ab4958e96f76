package block

import "fmt"

// ArenaBlock is the block type returned by an arena allocator: the raw
// slice plus the id of the arena it was bumped from.
type ArenaBlock struct {
	RawBlock

	ArenaIndex uint64
}

// ChunkedBlock is the block type returned by a chunked allocator: the raw
// chunk plus the index of the upstream backing block it was carved from,
// within its size-class node.
type ChunkedBlock struct {
	RawBlock

	BackingIndex int
}

// kind discriminates the three sub-allocators a CombinedBlock may have
// come from.
type kind int

const (
	kindRoot kind = iota
	kindArena
	kindChunked
)

// Tag records which of Combined's three sub-allocators produced a block.
// Unlike pkg/either.Either, which marks its variant by which pointer field
// is set, Tag is a kind-discriminated struct with plain value fields, since
// a block can come from Arena, Chunked, or Root and Either only models a
// two-way choice.
type Tag struct {
	kind         kind
	arenaIndex   uint64
	backingIndex int
}

// ArenaTag tags a block as having come from the arena sub-allocator.
func ArenaTag(arenaIndex uint64) Tag { return Tag{kind: kindArena, arenaIndex: arenaIndex} }

// ChunkedTag tags a block as having come from the chunked sub-allocator.
func ChunkedTag(backingIndex int) Tag { return Tag{kind: kindChunked, backingIndex: backingIndex} }

// RootTag tags a block as having come straight from the root allocator.
func RootTag() Tag { return Tag{kind: kindRoot} }

// HasArena reports whether the tag is the Arena variant.
func (t Tag) HasArena() bool { return t.kind == kindArena }

// HasChunked reports whether the tag is the Chunked variant.
func (t Tag) HasChunked() bool { return t.kind == kindChunked }

// HasRoot reports whether the tag is the Root variant.
func (t Tag) HasRoot() bool { return t.kind == kindRoot }

// ArenaIndex returns the tagged arena id. Panics if the tag is not the
// Arena variant.
func (t Tag) ArenaIndex() uint64 {
	if !t.HasArena() {
		panic("gfxmem: block: Tag.ArenaIndex on a non-Arena tag")
	}

	return t.arenaIndex
}

// BackingIndex returns the tagged backing-block index. Panics if the tag
// is not the Chunked variant.
func (t Tag) BackingIndex() int {
	if !t.HasChunked() {
		panic("gfxmem: block: Tag.BackingIndex on a non-Chunked tag")
	}

	return t.backingIndex
}

func (t Tag) String() string {
	switch t.kind {
	case kindArena:
		return fmt.Sprintf("Arena(%d)", t.arenaIndex)
	case kindChunked:
		return fmt.Sprintf("Chunked(%d)", t.backingIndex)
	default:
		return "Root"
	}
}

// CombinedBlock is the block type returned by a combined allocator: the
// raw block plus a Tag saying which sub-allocator to route Free through.
type CombinedBlock struct {
	RawBlock

	Tag Tag
}

// SmartBlock is the block type returned by the smart allocator: a
// CombinedBlock plus the index of the memory type (and thus the Combined
// instance) it was drawn from.
type SmartBlock struct {
	CombinedBlock

	TypeIndex int
}
