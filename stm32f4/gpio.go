package stm32f4

import (
	"errors"

	"github.com/soypat/f4lan/regs"
)

// Pin is a GPIO pin identified by port (0 for A) and number within the port.
type Pin struct {
	Port uint8
	Num  uint8
}

// Port letters.
const (
	PortA uint8 = iota
	PortB
	PortC
	PortD
	PortE
	PortF
	PortG
	PortH
	PortI
)

// P returns the pin Pxn for a port letter such as 'A'.
func P(port byte, n uint8) Pin {
	return Pin{Port: port - 'A', Num: n}
}

func (p Pin) String() string {
	if p.Num < 10 {
		return string([]byte{'P', 'A' + p.Port, '0' + p.Num})
	}
	return string([]byte{'P', 'A' + p.Port, '1', '0' + p.Num - 10})
}

// Valid reports whether p names an existing pin.
func (p Pin) Valid() bool { return p.Port < NumPorts && p.Num < 16 }

// Mode is the GPIO MODER setting.
type Mode uint8

const (
	ModeInput Mode = iota
	ModeOutput
	ModeAltFunc
	ModeAnalog
)

// OutputType is the GPIO OTYPER setting.
type OutputType uint8

const (
	PushPull OutputType = iota
	OpenDrain
)

// Pull is the GPIO PUPDR setting.
type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// Speed is the GPIO OSPEEDR slew rate setting.
type Speed uint8

const (
	SpeedLow Speed = iota
	SpeedMedium
	SpeedHigh
	SpeedVeryHigh
)

// PinConfig is the full electrical configuration of a pin.
type PinConfig struct {
	Mode   Mode
	OType  OutputType
	Pull   Pull
	Speed  Speed
	AltFun uint8 // Alternate function number, only used with ModeAltFunc.
}

var errInvalidPin = errors.New("invalid GPIO pin or configuration")

// Configure writes cfg to the pin registers. Alternate function, output type,
// pull and speed are written before the mode so the pin never drives with a
// stale electrical configuration.
func (p Pin) Configure(bus regs.Bus, cfg PinConfig) error {
	if !p.Valid() || cfg.Mode > ModeAnalog || cfg.AltFun > 15 || cfg.Pull > PullDown || cfg.Speed > SpeedVeryHigh {
		return errInvalidPin
	}
	base := GPIOBase(p.Port)
	pos2 := 2 * p.Num
	if cfg.Mode == ModeAltFunc {
		afr := regs.At(bus, base+GPIO_AFRL)
		n := p.Num
		if n >= 8 {
			afr = regs.At(bus, base+GPIO_AFRH)
			n -= 8
		}
		afr.ReplaceBits(uint32(cfg.AltFun), 0xf, 4*n)
	}
	if cfg.Mode == ModeOutput || cfg.Mode == ModeAltFunc {
		regs.At(bus, base+GPIO_OTYPER).ReplaceBits(uint32(cfg.OType), 1, p.Num)
		regs.At(bus, base+GPIO_OSPEEDR).ReplaceBits(uint32(cfg.Speed), 0b11, pos2)
	}
	regs.At(bus, base+GPIO_PUPDR).ReplaceBits(uint32(cfg.Pull), 0b11, pos2)
	regs.At(bus, base+GPIO_MODER).ReplaceBits(uint32(cfg.Mode), 0b11, pos2)
	return nil
}

// Set drives an output pin high or low through the atomic BSRR register.
func (p Pin) Set(bus regs.Bus, high bool) {
	bit := uint32(1) << p.Num
	if !high {
		bit <<= 16
	}
	regs.At(bus, GPIOBase(p.Port)+GPIO_BSRR).Set(bit)
}

// High drives the pin high.
func (p Pin) High(bus regs.Bus) { p.Set(bus, true) }

// Low drives the pin low.
func (p Pin) Low(bus regs.Bus) { p.Set(bus, false) }

// EnablePortClocks enables the AHB1 clock of every port present in pins.
func EnablePortClocks(bus regs.Bus, pins ...Pin) {
	var mask uint32
	for _, p := range pins {
		mask |= RCC_AHB1ENR_GPIOAEN << p.Port
	}
	if mask != 0 {
		regs.At(bus, RCC_AHB1ENR).SetBits(mask)
	}
}
