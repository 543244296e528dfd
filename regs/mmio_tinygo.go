//go:build tinygo

package regs

import (
	"runtime/volatile"
	"unsafe"
)

var _ Bus = MMIO{}

// MMIO accesses the physical address space with volatile loads and stores.
// It must only be used on the target device.
type MMIO struct{}

func (MMIO) Load(addr uintptr) uint32 {
	return (*volatile.Register32)(unsafe.Pointer(addr)).Get()
}

func (MMIO) Store(addr uintptr, v uint32) {
	(*volatile.Register32)(unsafe.Pointer(addr)).Set(v)
}
