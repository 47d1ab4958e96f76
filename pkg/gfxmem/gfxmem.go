// Package gfxmem assembles root, arena, chunked, combined, and smart into
// the single entry point most callers need: one Allocator per device,
// built from the backend's advertised memory properties and a
// per-memory-type tuning config.
package gfxmem

import (
	"github.com/kvark/gfx-mem/pkg/block"
	"github.com/kvark/gfx-mem/pkg/combined"
	"github.com/kvark/gfx-mem/pkg/device"
	"github.com/kvark/gfx-mem/pkg/res"
	"github.com/kvark/gfx-mem/pkg/smart"
)

// Request is re-exported from smart so callers of gfxmem need not import
// it directly.
type Request = smart.Request

// Type, ShortLived, and General are re-exported from smart/combined.
type Type = smart.Type

const (
	ShortLived = smart.ShortLived
	General    = smart.General
)

// Allocator is the assembled suballocator stack for one device.
type Allocator struct {
	smart *smart.Allocator
}

// New builds an Allocator from the backend's memory properties and one
// combined.Config per memory type, in the same order as props.Types.
func New(props device.Properties, cfgs []combined.Config) res.Result[*Allocator] {
	r := smart.New(props, cfgs)
	if r.IsErr() {
		return res.Err[*Allocator](r.Err)
	}

	return res.Ok(&Allocator{smart: r.Unwrap()})
}

// Alloc allocates a block satisfying reqs, routed through whichever memory
// type and sub-allocator req and reqs select.
func (a *Allocator) Alloc(dev device.Device, req Request, reqs device.Requirements) res.Result[block.SmartBlock] {
	return a.smart.Alloc(dev, req, reqs)
}

// Free returns b to the sub-allocator that produced it.
func (a *Allocator) Free(dev device.Device, b block.SmartBlock) {
	a.smart.Free(dev, b)
}

// IsUsed reports whether any block allocated from this Allocator is still
// outstanding.
func (a *Allocator) IsUsed() bool { return a.smart.IsUsed() }

// Dispose consumes the allocator, returning all held device memory. If
// any block is still outstanding it fails and leaves the allocator
// unchanged; the returned gfxerr.StillInUse error carries the underlying
// *smart.Allocator, not this facade.
func (a *Allocator) Dispose(dev device.Device) res.Result[*Allocator] {
	r := a.smart.Dispose(dev)
	if r.IsErr() {
		return res.Err[*Allocator](r.Err)
	}

	return res.Ok(a)
}

// Stats is a read-only snapshot of the allocator's bookkeeping, for
// diagnostics. It reports the same counters Alloc already maintains for
// its own routing and feasibility decisions; nothing here is collected
// specially for this call.
type Stats struct {
	// Arenas is the number of live arenas across every memory type's
	// Combined instance.
	Arenas int

	// ChunkNodes is the number of size-class nodes created so far across
	// every memory type's Combined instance.
	ChunkNodes int

	// HeapsUsed is a (used, size) snapshot of every backend heap.
	HeapsUsed []smart.Usage
}

// combinedAllocators exposes smart's per-type Combined instances so Stats can walk
// them; smart keeps the slice unexported, so this reaches in through the
// one accessor smart provides for exactly this purpose.
func (a *Allocator) combinedAllocators() []*combined.Allocator { return a.smart.Combined() }

// Stats aggregates arena and chunk-node counts across every memory type's
// Combined instance, alongside the heap accounting smart already tracks.
func (a *Allocator) Stats() Stats {
	var s Stats

	for _, c := range a.combinedAllocators() {
		s.Arenas += c.ArenaCount()
		s.ChunkNodes += c.ChunkNodeCount()
	}

	s.HeapsUsed = a.smart.HeapUsage()

	return s
}
