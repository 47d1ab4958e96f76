// Package arena implements the linear bump allocator of the suballocator
// stack: fixed-size arenas handed out by an upstream owner, bump-allocated
// front-to-back, and retired whole once every slice cut from one has been
// freed.
//
// Unlike a byte-slice bump allocator that bumps a Go []byte and lets the
// GC reclaim it, this arena bumps offsets within an opaque device.Handle
// it does not own outright — it borrows arena-sized blocks from an Owner
// (normally a root.Allocator) and returns them once fully drained. The
// FIFO-of-arenas structure, the monotonic id counter, and the "retire
// from the front" reclamation loop follow that same bump-and-retire
// shape; the reflection-based chunk tricks used to make Go's GC trace
// arena memory have no analogue here, since device memory is never
// GC-visible.
package arena

import (
	"fmt"

	"github.com/kvark/gfx-mem/internal/debug"
	"github.com/kvark/gfx-mem/pkg/block"
	"github.com/kvark/gfx-mem/pkg/device"
	"github.com/kvark/gfx-mem/pkg/gfxerr"
	"github.com/kvark/gfx-mem/pkg/res"
)

// Config tunes one Allocator.
type Config struct {
	// ArenaSize is the fixed size, in bytes, of every arena this
	// allocator requests from its owner.
	ArenaSize uint64

	// TypeID is the memory type this allocator serves.
	TypeID device.TypeID

	// Alignment is the minimum alignment requested for a fresh arena's
	// backing block — implementation-chosen, but must be at least the
	// largest alignment this allocator is expected to ever see in a
	// request.
	Alignment uint64
}

// NewConfig validates cfg's power-of-two fields and returns it wrapped in
// a Result, rejecting an invalid configuration at construction rather
// than failing later on the first Alloc call.
func NewConfig(arenaSize uint64, typeID device.TypeID, alignment uint64) res.Result[Config] {
	if arenaSize == 0 {
		return res.Err[Config](fmt.Errorf("gfxmem: arena: ArenaSize must be > 0"))
	}

	if alignment == 0 || alignment&(alignment-1) != 0 {
		return res.Err[Config](fmt.Errorf("gfxmem: arena: Alignment must be a power of two, got %d", alignment))
	}

	return res.Ok(Config{ArenaSize: arenaSize, TypeID: typeID, Alignment: alignment})
}

// instance is one arena in the FIFO.
type instance struct {
	id        uint64
	memory    device.Handle
	used      uint64
	allocated int
	freed     int
}

func (i *instance) idle() bool { return i.allocated == i.freed }

// Owner is whatever upstream allocator can hand this Allocator
// arena-sized blocks on demand. It is passed per call, never stored, so
// that Arena and its owner never form a reference cycle.
type Owner interface {
	Alloc(dev device.Device, reqs device.Requirements) res.Result[block.RawBlock]
	Free(dev device.Device, b block.RawBlock)
}

// Allocator is a linear bump allocator over fixed-size arenas.
type Allocator struct {
	cfg      Config
	arenas   []instance
	nextID   uint64
	disposed bool
}

// New returns a ready-to-use arena allocator. It owns no arenas until the
// first Alloc call.
func New(cfg Config) *Allocator {
	return &Allocator{cfg: cfg}
}

func alignUp(off, alignment uint64) uint64 {
	if alignment == 0 {
		return off
	}

	return (off + alignment - 1) &^ (alignment - 1)
}

// Alloc bump-allocates reqs.Size bytes, aligned to reqs.Alignment, from the
// newest arena, growing a fresh one from owner if none has room.
func (a *Allocator) Alloc(owner Owner, dev device.Device, reqs device.Requirements) res.Result[block.ArenaBlock] {
	debug.Assert(!a.disposed, "arena: Alloc called after Dispose")

	if !reqs.Accepts(a.cfg.TypeID) {
		return res.Err[block.ArenaBlock](gfxerr.NoCompatibleMemoryType)
	}

	for {
		if n := len(a.arenas); n > 0 {
			back := &a.arenas[n-1]
			candidate := alignUp(back.used, reqs.Alignment)

			if candidate+reqs.Size <= a.cfg.ArenaSize {
				back.used = candidate + reqs.Size
				back.allocated++

				raw := block.New(back.memory, candidate, candidate+reqs.Size)

				return res.Ok(block.ArenaBlock{RawBlock: raw, ArenaIndex: back.id})
			}
		}

		align := a.cfg.Alignment
		if reqs.Alignment > align {
			align = reqs.Alignment
		}

		r := owner.Alloc(dev, device.Requirements{
			Size:      a.cfg.ArenaSize,
			Alignment: align,
			TypeMask:  1 << uint(a.cfg.TypeID),
		})
		if r.IsErr() {
			return res.Err[block.ArenaBlock](r.Err)
		}

		raw := r.Unwrap()
		id := a.nextID
		a.nextID++

		a.arenas = append(a.arenas, instance{id: id, memory: raw.Memory()})
		raw.Consume()
	}
}

func (a *Allocator) indexOf(id uint64) int {
	for i := range a.arenas {
		if a.arenas[i].id == id {
			return i
		}
	}

	return -1
}

// Free returns b's slice to its arena. If that drains the arena (and every
// arena before it in the FIFO that was already drained), the freed
// arenas' backing blocks are returned to owner, front to back, stopping at
// the first arena that is either still live or is the current allocation
// target.
func (a *Allocator) Free(owner Owner, dev device.Device, b block.ArenaBlock) {
	idx := a.indexOf(b.ArenaIndex)
	debug.Assert(idx >= 0, "arena: Free given a block from unknown arena id %d", b.ArenaIndex)

	a.arenas[idx].freed++
	b.RawBlock.Consume()

	for len(a.arenas) > 1 && a.arenas[0].idle() {
		front := a.arenas[0]
		owner.Free(dev, block.New(front.memory, 0, a.cfg.ArenaSize))
		a.arenas = a.arenas[1:]
	}
}

// ArenaCount returns the number of arenas currently held, retired ones
// excluded.
func (a *Allocator) ArenaCount() int { return len(a.arenas) }

// IsUsed reports whether any arena has an allocation that has not yet been
// freed.
func (a *Allocator) IsUsed() bool {
	for i := range a.arenas {
		if !a.arenas[i].idle() {
			return true
		}
	}

	return false
}

// Dispose consumes the allocator, returning all held arenas to owner. It
// fails, handing the allocator back unchanged, if any arena still has a
// live allocation.
func (a *Allocator) Dispose(owner Owner, dev device.Device) res.Result[*Allocator] {
	if a.IsUsed() {
		return res.Err[*Allocator](&gfxerr.StillInUse[*Allocator]{Allocator: a})
	}

	for _, inst := range a.arenas {
		owner.Free(dev, block.New(inst.memory, 0, a.cfg.ArenaSize))
	}

	a.arenas = nil
	a.disposed = true

	return res.Ok(a)
}
