// Package regs models memory mapped peripheral registers behind a Bus so that
// bring-up sequences can run against real hardware or a simulated register set.
//
// A Bus is the ownership token for the peripheral register set. Code that
// receives a Bus may assume it is the only user of it for the duration of the call.
package regs

// Bus provides 32-bit access to a memory mapped register space.
type Bus interface {
	// Load reads the 32-bit register at addr.
	Load(addr uintptr) uint32
	// Store writes v to the 32-bit register at addr.
	Store(addr uintptr, v uint32)
}

// Reg is a single 32-bit register on a Bus. Its method set mirrors
// TinyGo's runtime/volatile.Register32.
type Reg struct {
	Bus  Bus
	Addr uintptr
}

// At returns the register at addr on bus.
func At(bus Bus, addr uintptr) Reg {
	return Reg{Bus: bus, Addr: addr}
}

// Get reads the register.
func (r Reg) Get() uint32 { return r.Bus.Load(r.Addr) }

// Set writes v to the register.
func (r Reg) Set(v uint32) { r.Bus.Store(r.Addr, v) }

// SetBits sets the bits in mask with a read-modify-write.
func (r Reg) SetBits(mask uint32) {
	r.Set(r.Get() | mask)
}

// ClearBits clears the bits in mask with a read-modify-write.
func (r Reg) ClearBits(mask uint32) {
	r.Set(r.Get() &^ mask)
}

// HasBits reports whether all bits in mask are set. Zero mask reports false.
func (r Reg) HasBits(mask uint32) bool {
	return mask != 0 && r.Get()&mask == mask
}

// ReplaceBits replaces the bits selected by mask<<pos with value<<pos.
func (r Reg) ReplaceBits(value, mask uint32, pos uint8) {
	r.Set(r.Get()&^(mask<<pos) | (value&mask)<<pos)
}

// Modify performs a read-modify-write with fn.
func (r Reg) Modify(fn func(v uint32) uint32) {
	r.Set(fn(r.Get()))
}

// Field is a contiguous bit field inside a 32-bit register.
type Field struct {
	Pos   uint8
	Width uint8
}

// Mask returns the field mask shifted into position.
func (f Field) Mask() uint32 {
	return (1<<f.Width - 1) << f.Pos
}

// Max returns the largest value the field can hold.
func (f Field) Max() uint32 {
	return 1<<f.Width - 1
}

// Get extracts the field value from v.
func (f Field) Get(v uint32) uint32 {
	return (v & f.Mask()) >> f.Pos
}

// Put returns v with the field set to x. Bits of x outside the field width are dropped.
func (f Field) Put(v, x uint32) uint32 {
	return v&^f.Mask() | (x<<f.Pos)&f.Mask()
}

// Read reads the field from r.
func (r Reg) Read(f Field) uint32 {
	return f.Get(r.Get())
}

// Write sets the field f in r to x with a read-modify-write.
func (r Reg) Write(f Field, x uint32) {
	r.Set(f.Put(r.Get(), x))
}
