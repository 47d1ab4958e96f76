// Package combined implements the lifetime-hint router of the
// suballocator stack: one memory type's Arena and Chunked children,
// sharing a single Root as their upstream, dispatched by whether a
// request is short-lived, general, or too large for the chunked pool.
package combined

import (
	"github.com/kvark/gfx-mem/internal/debug"
	"github.com/kvark/gfx-mem/pkg/arena"
	"github.com/kvark/gfx-mem/pkg/block"
	"github.com/kvark/gfx-mem/pkg/chunked"
	"github.com/kvark/gfx-mem/pkg/device"
	"github.com/kvark/gfx-mem/pkg/gfxerr"
	"github.com/kvark/gfx-mem/pkg/res"
	"github.com/kvark/gfx-mem/pkg/root"
)

// Type is the lifetime hint a caller attaches to a request.
type Type int

const (
	// ShortLived requests are routed to the arena: a bump allocator with
	// no per-slice free, appropriate for allocations that will all die
	// together.
	ShortLived Type = iota

	// General requests are routed to the chunked pool, unless they are
	// larger than the pool's MaxChunkSize, in which case they go
	// straight to root.
	General
)

func (t Type) String() string {
	if t == ShortLived {
		return "ShortLived"
	}

	return "General"
}

// Config is the tuning configuration of one Combined instance: a memory
// type and the parameters of its Arena and Chunked children.
type Config struct {
	TypeID  device.TypeID
	Arena   arena.Config
	Chunked chunked.Config
}

// Allocator owns one Root, shared as the upstream of its Arena and
// Chunked children. The Root reference is never cached inside the
// children — it is passed to them per call, keeping the object graph
// acyclic.
type Allocator struct {
	cfg      Config
	root     *root.Allocator
	arena    *arena.Allocator
	chunked  *chunked.Allocator
	disposed bool
}

// New constructs a Combined allocator from cfg.
func New(cfg Config) *Allocator {
	return &Allocator{
		cfg:     cfg,
		root:    root.New(cfg.TypeID),
		arena:   arena.New(cfg.Arena),
		chunked: chunked.New(cfg.Chunked),
	}
}

// Alloc routes the request to Arena, Chunked, or Root based on the
// lifetime hint and, for General requests, the requested size.
func (a *Allocator) Alloc(dev device.Device, typ Type, reqs device.Requirements) res.Result[block.CombinedBlock] {
	debug.Assert(!a.disposed, "combined: Alloc called after Dispose")

	switch {
	case typ == ShortLived:
		r := a.arena.Alloc(a.root, dev, reqs)
		if r.IsErr() {
			return res.Err[block.CombinedBlock](r.Err)
		}

		ab := r.Unwrap()

		return res.Ok(block.CombinedBlock{RawBlock: ab.RawBlock, Tag: block.ArenaTag(ab.ArenaIndex)})

	case reqs.Size > a.cfg.Chunked.MaxChunkSize:
		r := a.root.Alloc(dev, reqs)
		if r.IsErr() {
			return res.Err[block.CombinedBlock](r.Err)
		}

		return res.Ok(block.CombinedBlock{RawBlock: r.Unwrap(), Tag: block.RootTag()})

	default:
		r := a.chunked.Alloc(a.root, dev, reqs)
		if r.IsErr() {
			return res.Err[block.CombinedBlock](r.Err)
		}

		cb := r.Unwrap()

		return res.Ok(block.CombinedBlock{RawBlock: cb.RawBlock, Tag: block.ChunkedTag(cb.BackingIndex)})
	}
}

// Free dispatches on b's tag to the sub-allocator that produced it.
func (a *Allocator) Free(dev device.Device, b block.CombinedBlock) {
	switch {
	case b.Tag.HasArena():
		a.arena.Free(a.root, dev, block.ArenaBlock{RawBlock: b.RawBlock, ArenaIndex: b.Tag.ArenaIndex()})

	case b.Tag.HasChunked():
		a.chunked.Free(dev, block.ChunkedBlock{RawBlock: b.RawBlock, BackingIndex: b.Tag.BackingIndex()})

	case b.Tag.HasRoot():
		a.root.Free(dev, b.RawBlock)

	default:
		panic("gfxmem: combined: block carries no tag")
	}
}

// ArenaCount returns the number of arenas the child Arena allocator
// currently holds.
func (a *Allocator) ArenaCount() int { return a.arena.ArenaCount() }

// ChunkNodeCount returns the number of size-class nodes the child Chunked
// allocator has created so far.
func (a *Allocator) ChunkNodeCount() int { return a.chunked.NodeCount() }

// IsUsed reports whether either child has an outstanding block. It also
// asserts that Root's own usage agrees — the two should never diverge,
// since Root only ever serves this Combined's two children.
func (a *Allocator) IsUsed() bool {
	used := a.arena.IsUsed() || a.chunked.IsUsed()

	debug.Assert(used == a.root.IsUsed(), "combined: root usage (%v) disagrees with children (%v)", a.root.IsUsed(), used)

	return used
}

// Dispose consumes the allocator: Arena and Chunked release their
// remaining arenas/backing blocks to Root, then Root itself is disposed.
// If either child (equivalently, Root) is still used, Dispose fails and
// returns the receiver unchanged via gfxerr.StillInUse, rather than
// rebuilding a fresh instance — Go's reference semantics mean nothing was
// destructively moved out of a in the first place, so there is nothing to
// reconstruct.
func (a *Allocator) Dispose(dev device.Device) res.Result[*Allocator] {
	if a.IsUsed() {
		return res.Err[*Allocator](&gfxerr.StillInUse[*Allocator]{Allocator: a})
	}

	arenaResult := a.arena.Dispose(a.root, dev)
	debug.Assert(arenaResult.IsOk(), "combined: arena Dispose failed after IsUsed reported false")

	chunkedResult := a.chunked.Dispose(a.root, dev)
	debug.Assert(chunkedResult.IsOk(), "combined: chunked Dispose failed after IsUsed reported false")

	rootResult := a.root.Dispose(dev)
	debug.Assert(rootResult.IsOk(), "combined: root Dispose failed after children were drained")

	a.disposed = true

	return res.Ok(a)
}
