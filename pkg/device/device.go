// Package device defines the contract gfx-mem expects of the backend: raw
// memory allocation, the memory-type/heap layout the backend advertises at
// startup, and the per-resource requirements the backend hands back for a
// buffer or image.
//
// Nothing in this package touches an actual GPU API. Backends (Vulkan,
// Metal, D3D12, or a test double) implement [Device] and describe their
// layout with a [Properties] value; everything else in gfx-mem is written
// against those two types alone.
package device

// Handle identifies one backend memory allocation. It must be comparable
// (a pointer or an integer handle works) and its identity must remain
// stable for as long as the allocation is live: two live allocations must
// never compare equal, and a handle must never be duplicated onto two
// allocations at once.
type Handle any

// TypeID indexes one entry of Properties.Types. A Requirements.TypeMask bit
// at position id says "this type is acceptable."
type TypeID uint32

// PropertyFlags is a bitset of capabilities a memory type offers (e.g.
// device-local, host-visible, host-coherent). The bit layout is defined by
// the backend; gfx-mem only ever tests for a superset relationship.
type PropertyFlags uint32

// HasAll reports whether flags contains every bit set in required.
func (flags PropertyFlags) HasAll(required PropertyFlags) bool {
	return flags&required == required
}

// MemoryType is one backend-advertised kind of device memory.
type MemoryType struct {
	Properties PropertyFlags
	HeapIndex  int
}

// Properties is the backend's memory layout, supplied once at
// initialization. Types is ordered by the backend's own preference:
// callers (Smart, in particular) pick the first feasible compatible entry,
// so the backend should list its most desirable types first.
type Properties struct {
	Types     []MemoryType
	HeapSizes []uint64
}

// Requirements is the per-allocation constraint triple the backend returns
// for a buffer or image.
type Requirements struct {
	Size      uint64 // bytes, > 0
	Alignment uint64 // power of two, > 0
	TypeMask  uint32 // bitset of acceptable TypeIDs
}

// Accepts reports whether id participates in the requirement's type mask.
func (r Requirements) Accepts(id TypeID) bool {
	return r.TypeMask&(1<<uint(id)) != 0
}

// Device is the backend contract gfx-mem consumes. AllocateMemory must
// produce a handle whose address/identity is stable and distinct from all
// other outstanding handles; the returned region's alignment is at least
// the type's natural maximum. FreeMemory is idempotent release; calling it
// while a block still references the handle is undefined behavior on the
// backend side, which is exactly why gfx-mem tracks block lifetime so
// carefully upstream of this call.
type Device interface {
	AllocateMemory(id TypeID, size uint64) (Handle, error)
	FreeMemory(h Handle)
}
