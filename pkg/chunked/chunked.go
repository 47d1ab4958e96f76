// Package chunked implements the chunked buddy-style pool of the
// suballocator stack: requests are rounded up to a power-of-two size
// class, each class recycles fixed-size chunks carved out of upstream
// backing blocks, and nodes are created lazily the first time a class is
// touched.
//
// The free-list shape here — a sparse, lazily-grown sequence indexed by
// size-class exponent, one free list per class, grown on demand — mirrors
// a common host-memory recycling pool that keeps one free list per size
// class and threads freed memory into a singly-linked list using the
// first machine word of the block itself. That trick only works because
// host memory is addressable; device memory isn't, so each node here
// keeps an explicit slice of (backing-block-index, chunk-index) pairs
// instead, using pkg/tuple.Tuple2 for the pair.
package chunked

import (
	"fmt"
	"math/bits"

	"github.com/kvark/gfx-mem/internal/debug"
	"github.com/kvark/gfx-mem/pkg/block"
	"github.com/kvark/gfx-mem/pkg/device"
	"github.com/kvark/gfx-mem/pkg/either"
	"github.com/kvark/gfx-mem/pkg/gfxerr"
	"github.com/kvark/gfx-mem/pkg/res"
	"github.com/kvark/gfx-mem/pkg/tuple"
)

// Config tunes one Allocator.
type Config struct {
	// ChunksPerBlock is the fixed number of chunks carved from every
	// upstream backing block, for every size class.
	ChunksPerBlock int

	// MinChunkSize is the chunk size of size class 0. Must be a power of
	// two.
	MinChunkSize uint64

	// MaxChunkSize caps the largest class this allocator will serve.
	// Must be a power of two multiple of MinChunkSize.
	MaxChunkSize uint64

	// TypeID is the memory type this allocator serves.
	TypeID device.TypeID
}

func isPow2(n uint64) bool { return n != 0 && n&(n-1) == 0 }

// NewConfig validates that cfg's chunk sizes are powers of two and
// ChunksPerBlock is positive, rejecting an invalid configuration at
// construction rather than failing later on the first Alloc call.
func NewConfig(chunksPerBlock int, minChunkSize, maxChunkSize uint64, typeID device.TypeID) res.Result[Config] {
	if chunksPerBlock <= 0 {
		return res.Err[Config](fmt.Errorf("gfxmem: chunked: ChunksPerBlock must be > 0"))
	}

	if !isPow2(minChunkSize) {
		return res.Err[Config](fmt.Errorf("gfxmem: chunked: MinChunkSize must be a power of two, got %d", minChunkSize))
	}

	if !isPow2(maxChunkSize) {
		return res.Err[Config](fmt.Errorf("gfxmem: chunked: MaxChunkSize must be a power of two, got %d", maxChunkSize))
	}

	if maxChunkSize < minChunkSize {
		return res.Err[Config](fmt.Errorf("gfxmem: chunked: MaxChunkSize must be >= MinChunkSize"))
	}

	return res.Ok(Config{
		ChunksPerBlock: chunksPerBlock,
		MinChunkSize:   minChunkSize,
		MaxChunkSize:   maxChunkSize,
		TypeID:         typeID,
	})
}

// chunkPair names a free chunk by (backing-block index, chunk index
// within that block).
type chunkPair = tuple.Tuple2[int, int]

// backing is one upstream block a node has carved chunks from.
type backing struct {
	memory device.Handle
}

// node is one size class: a fixed chunk size, the backing blocks it has
// grown to, and a queue of currently-free chunks.
type node struct {
	chunkSize uint64
	blocks    []backing
	free      []chunkPair
	live      liveSet
}

func (n *node) idle(chunksPerBlock int) bool {
	return len(n.free) == chunksPerBlock*len(n.blocks)
}

// Owner is whatever upstream allocator can hand this Allocator
// backing-sized blocks on demand. It is passed per call, never stored, so
// that Chunked and its owner never form a reference cycle.
type Owner interface {
	Alloc(dev device.Device, reqs device.Requirements) res.Result[block.RawBlock]
	Free(dev device.Device, b block.RawBlock)
}

// Allocator is a sparse sequence of size-class nodes.
type Allocator struct {
	cfg      Config
	nodes    []*node // indexed by class exponent k; nil until first touched
	disposed bool
}

// New returns a ready-to-use chunked allocator with no nodes yet created.
func New(cfg Config) *Allocator {
	return &Allocator{cfg: cfg}
}

// classIndex computes k = ceil(log2(effSize / minChunkSize)), clamped at 0.
func classIndex(effSize, minChunkSize uint64) int {
	if effSize <= minChunkSize {
		return 0
	}

	n := (effSize + minChunkSize - 1) / minChunkSize // ceil(effSize / minChunkSize)
	if n <= 1 {
		return 0
	}

	return bits.Len64(n - 1)
}

// classIndexForSize recovers k from a chunk size that is known to equal
// minChunkSize * 2^k exactly (true of every size() chunked ever returns).
func (a *Allocator) classIndexForSize(size uint64) int {
	ratio := size / a.cfg.MinChunkSize

	return bits.Len64(ratio) - 1
}

func (a *Allocator) ensureNode(k int) *node {
	for len(a.nodes) <= k {
		a.nodes = append(a.nodes, nil)
	}

	if a.nodes[k] == nil {
		a.nodes[k] = &node{chunkSize: a.cfg.MinChunkSize << uint(k)}
	}

	return a.nodes[k]
}

// Alloc returns a chunk from the size class that fits max(reqs.Size,
// reqs.Alignment), growing a fresh backing block from owner if the class's
// free queue is empty.
func (a *Allocator) Alloc(owner Owner, dev device.Device, reqs device.Requirements) res.Result[block.ChunkedBlock] {
	debug.Assert(!a.disposed, "chunked: Alloc called after Dispose")

	if !reqs.Accepts(a.cfg.TypeID) {
		return res.Err[block.ChunkedBlock](gfxerr.NoCompatibleMemoryType)
	}

	if reqs.Size > a.cfg.MaxChunkSize {
		return res.Err[block.ChunkedBlock](gfxerr.OutOfMemory)
	}

	eff := reqs.Size
	if reqs.Alignment > eff {
		eff = reqs.Alignment
	}

	k := classIndex(eff, a.cfg.MinChunkSize)
	n := a.ensureNode(k)

	// Whether this call must grow a fresh backing block or can reuse a
	// chunk already sitting in the free queue is a genuine two-way choice,
	// so it is modeled with either.Either instead of a second bool: Left
	// carries the requirements for a backing block that still needs to be
	// grown, Right carries a chunkPair that is already free to take.
	var source either.Either[device.Requirements, chunkPair]
	if len(n.free) == 0 {
		source = either.Left[device.Requirements, chunkPair](device.Requirements{
			Size:      n.chunkSize * uint64(a.cfg.ChunksPerBlock),
			Alignment: n.chunkSize,
			TypeMask:  1 << uint(a.cfg.TypeID),
		})
	} else {
		source = either.Right[device.Requirements, chunkPair](n.free[0])
	}

	outcome := either.Reduce(source,
		func(backingReqs device.Requirements) tuple.Tuple2[chunkPair, error] {
			r := owner.Alloc(dev, backingReqs)
			if r.IsErr() {
				return tuple.Tuple2[chunkPair, error]{V1: r.Err}
			}

			raw := r.Unwrap()
			blockIndex := len(n.blocks)
			n.blocks = append(n.blocks, backing{memory: raw.Memory()})
			raw.Consume()

			for c := 1; c < a.cfg.ChunksPerBlock; c++ {
				n.free = append(n.free, tuple.New2(blockIndex, c)) // push-back: ascending initial layout
			}

			return tuple.Tuple2[chunkPair, error]{V0: tuple.New2(blockIndex, 0)}
		},
		func(p chunkPair) tuple.Tuple2[chunkPair, error] {
			n.free = n.free[1:]

			return tuple.Tuple2[chunkPair, error]{V0: p}
		},
	)

	pair, err := outcome.Unpack()
	if err != nil {
		return res.Err[block.ChunkedBlock](err)
	}

	n.live.insert(pair)

	blockIndex, chunkIndex := pair.Unpack()
	offset := uint64(chunkIndex) * n.chunkSize
	mem := n.blocks[blockIndex].memory
	raw := block.New(mem, offset, offset+n.chunkSize)

	return res.Ok(block.ChunkedBlock{RawBlock: raw, BackingIndex: blockIndex})
}

// Free recomputes b's size class from its size and pushes it to the front
// of that class's free queue, so the most recently freed chunk is the
// next one handed out.
func (a *Allocator) Free(dev device.Device, b block.ChunkedBlock) {
	size := b.RawBlock.Size()
	k := a.classIndexForSize(size)

	debug.Assert(k >= 0 && k < len(a.nodes) && a.nodes[k] != nil, "chunked: Free given a block of unknown size class (size=%d)", size)

	n := a.nodes[k]
	start, _ := b.RawBlock.Range()
	chunkIndex := int(start / n.chunkSize)
	pair := tuple.New2(b.BackingIndex, chunkIndex)

	n.live.remove(pair)
	n.free = append([]chunkPair{pair}, n.free...)

	b.RawBlock.Consume()
}

// NodeCount returns the number of size-class nodes created so far.
func (a *Allocator) NodeCount() int {
	n := 0
	for _, node := range a.nodes {
		if node != nil {
			n++
		}
	}
	return n
}

// IsUsed reports whether any size-class node has an outstanding chunk.
func (a *Allocator) IsUsed() bool {
	for _, n := range a.nodes {
		if n != nil && !n.idle(a.cfg.ChunksPerBlock) {
			return true
		}
	}

	return false
}

// Dispose consumes the allocator, returning every backing block of every
// node to owner. It fails, handing the allocator back unchanged, if any
// node still has an outstanding chunk.
func (a *Allocator) Dispose(owner Owner, dev device.Device) res.Result[*Allocator] {
	if a.IsUsed() {
		return res.Err[*Allocator](&gfxerr.StillInUse[*Allocator]{Allocator: a})
	}

	for _, n := range a.nodes {
		if n == nil {
			continue
		}

		backingSize := n.chunkSize * uint64(a.cfg.ChunksPerBlock)

		for _, blk := range n.blocks {
			owner.Free(dev, block.New(blk.memory, 0, backingSize))
		}
	}

	a.nodes = nil
	a.disposed = true

	return res.Ok(a)
}
