// Package regsim implements a simulated register space for host side testing
// of register level code. Every access is recorded in an ordered trace.
package regsim

import (
	"fmt"
	"strconv"

	"github.com/soypat/f4lan/regs"
)

var _ regs.Bus = (*Bus)(nil) // compile time guarantee of interface implementation.

// Op is the kind of a register access.
type Op uint8

const (
	OpLoad Op = iota + 1
	OpStore
)

func (op Op) String() string {
	switch op {
	case OpLoad:
		return "LD"
	case OpStore:
		return "ST"
	}
	return "Op(" + strconv.Itoa(int(op)) + ")"
}

// Access is a single recorded register access. For loads Value is the value
// returned to the caller, for stores the value written by the caller.
type Access struct {
	Op    Op
	Addr  uintptr
	Value uint32
}

// LoadHook is called on a load of an address. v is the current content of
// the register and the returned value is handed to the caller.
type LoadHook func(b *Bus, addr uintptr, v uint32) uint32

// StoreHook is called on a store to an address. The returned value is what
// ends up stored in the register.
type StoreHook func(b *Bus, addr uintptr, old, v uint32) uint32

// Bus is a sparse simulated register space. The zero value is ready for use,
// every register reads as zero until written or given a reset value.
type Bus struct {
	mem     map[uintptr]uint32
	onLoad  map[uintptr]LoadHook
	onStore map[uintptr]StoreHook
	names   map[uintptr]string
	trace   []Access
	loads   map[uintptr]int
	noTrace bool
}

func (b *Bus) init() {
	if b.mem == nil {
		b.mem = make(map[uintptr]uint32)
		b.onLoad = make(map[uintptr]LoadHook)
		b.onStore = make(map[uintptr]StoreHook)
		b.names = make(map[uintptr]string)
		b.loads = make(map[uintptr]int)
	}
}

// Load implements [regs.Bus].
func (b *Bus) Load(addr uintptr) uint32 {
	b.init()
	v := b.mem[addr]
	if hook := b.onLoad[addr]; hook != nil {
		v = hook(b, addr, v)
	}
	b.loads[addr]++
	b.record(OpLoad, addr, v)
	return v
}

// Store implements [regs.Bus].
func (b *Bus) Store(addr uintptr, v uint32) {
	b.init()
	b.record(OpStore, addr, v)
	if hook := b.onStore[addr]; hook != nil {
		v = hook(b, addr, b.mem[addr], v)
	}
	b.mem[addr] = v
}

func (b *Bus) record(op Op, addr uintptr, v uint32) {
	if !b.noTrace {
		b.trace = append(b.trace, Access{Op: op, Addr: addr, Value: v})
	}
}

// Peek returns the register content without tracing or running hooks.
func (b *Bus) Peek(addr uintptr) uint32 {
	b.init()
	return b.mem[addr]
}

// Poke sets the register content without tracing or running hooks.
// Use it to set reset values and to model hardware side effects from hooks.
func (b *Bus) Poke(addr uintptr, v uint32) {
	b.init()
	b.mem[addr] = v
}

// OnLoad installs hook for loads of addr, replacing any previous hook.
func (b *Bus) OnLoad(addr uintptr, hook LoadHook) {
	b.init()
	b.onLoad[addr] = hook
}

// OnStore installs hook for stores to addr, replacing any previous hook.
func (b *Bus) OnStore(addr uintptr, hook StoreHook) {
	b.init()
	b.onStore[addr] = hook
}

// Name assigns a human readable name to addr used by [Bus.Format].
func (b *Bus) Name(addr uintptr, name string) {
	b.init()
	b.names[addr] = name
}

// NameOf returns the name given to addr or its hexadecimal representation.
func (b *Bus) NameOf(addr uintptr) string {
	b.init()
	if name, ok := b.names[addr]; ok {
		return name
	}
	return "0x" + strconv.FormatUint(uint64(addr), 16)
}

// DisableTrace stops recording of accesses when disable is true.
func (b *Bus) DisableTrace(disable bool) { b.noTrace = disable }

// Trace returns the recorded accesses in order. The slice is shared with the Bus.
func (b *Bus) Trace() []Access { return b.trace }

// ResetTrace clears recorded accesses and load counters.
func (b *Bus) ResetTrace() {
	b.init()
	b.trace = b.trace[:0]
	clear(b.loads)
}

// Loads returns the number of loads of addr since the last [Bus.ResetTrace].
func (b *Bus) Loads(addr uintptr) int {
	b.init()
	return b.loads[addr]
}

// Stores returns the recorded stores to addr in order.
func (b *Bus) Stores(addr uintptr) []uint32 {
	var vals []uint32
	for _, a := range b.trace {
		if a.Op == OpStore && a.Addr == addr {
			vals = append(vals, a.Value)
		}
	}
	return vals
}

// Format returns a single line description of a.
func (b *Bus) Format(a Access) string {
	return fmt.Sprintf("%s %-16s %#08x", a.Op, b.NameOf(a.Addr), a.Value)
}
