package eth

import (
	"errors"
	"strconv"

	"github.com/soypat/f4lan/stm32f4"
)

// AFEth is the alternate function number of the Ethernet MAC on STM32F4 pins.
const AFEth = 11

// Signal is an RMII or SMI signal of the MAC.
type Signal uint8

const (
	SigRefClk Signal = iota // 50MHz reference clock from the PHY
	SigMDIO                 // SMI data, open drain with external pull-up
	SigMDC                  // SMI clock
	SigCRSDV                // carrier sense / receive data valid
	SigRXD0
	SigRXD1
	SigTXEN
	SigTXD0
	SigTXD1
	numSignals
)

var signalNames = [numSignals]string{
	SigRefClk: "REF_CLK",
	SigMDIO:   "MDIO",
	SigMDC:    "MDC",
	SigCRSDV:  "CRS_DV",
	SigRXD0:   "RXD0",
	SigRXD1:   "RXD1",
	SigTXEN:   "TX_EN",
	SigTXD0:   "TXD0",
	SigTXD1:   "TXD1",
}

func (s Signal) String() string {
	if s < numSignals {
		return signalNames[s]
	}
	return "Signal(" + strconv.Itoa(int(s)) + ")"
}

// PinMux is the electrical configuration required by one MAC signal.
type PinMux struct {
	Signal Signal
	Pin    stm32f4.Pin
	Config stm32f4.PinConfig
}

// RMIIPins assigns a GPIO pin to every RMII and SMI signal.
type RMIIPins [numSignals]stm32f4.Pin

// DefaultRMIIPins returns the STM32F407 pin assignment with TX on port B.
func DefaultRMIIPins() RMIIPins {
	return RMIIPins{
		SigRefClk: stm32f4.P('A', 1),
		SigMDIO:   stm32f4.P('A', 2),
		SigCRSDV:  stm32f4.P('A', 7),
		SigMDC:    stm32f4.P('C', 1),
		SigRXD0:   stm32f4.P('C', 4),
		SigRXD1:   stm32f4.P('C', 5),
		SigTXEN:   stm32f4.P('B', 11),
		SigTXD0:   stm32f4.P('B', 12),
		SigTXD1:   stm32f4.P('B', 13),
	}
}

// PinMuxSpec returns the configuration of every signal pin. The management
// data line is open drain relying on the board pull-up, all other lines are
// push-pull with the highest slew rate.
func (pins RMIIPins) PinMuxSpec() []PinMux {
	spec := make([]PinMux, 0, numSignals)
	for sig, pin := range pins {
		cfg := stm32f4.PinConfig{
			Mode:   stm32f4.ModeAltFunc,
			OType:  stm32f4.PushPull,
			Pull:   stm32f4.PullNone,
			Speed:  stm32f4.SpeedVeryHigh,
			AltFun: AFEth,
		}
		if Signal(sig) == SigMDIO {
			cfg.OType = stm32f4.OpenDrain
		}
		spec = append(spec, PinMux{Signal: Signal(sig), Pin: pin, Config: cfg})
	}
	return spec
}

// Board describes how the LAN8720 is wired to the microcontroller.
type Board struct {
	Pins RMIIPins
	// PHYReset is the GPIO driving the PHY's active low nRST input.
	PHYReset stm32f4.Pin
	// PHYAddr is the SMI address strapped on the PHY.
	PHYAddr uint8
}

// DefaultBoard returns an STM32F407 with a LAN8720 at SMI address 0 and its
// reset line on PE2.
func DefaultBoard() Board {
	return Board{
		Pins:     DefaultRMIIPins(),
		PHYReset: stm32f4.P('E', 2),
		PHYAddr:  0,
	}
}

var errAliasedPins = errors.New("aliased pins, check pin definitions")

// Validate checks that every pin exists and no two signals share a pin.
func (b Board) Validate() error {
	if b.PHYAddr > 31 {
		return errors.New("PHY address out of range")
	}
	seen := make(map[stm32f4.Pin]bool, numSignals+1)
	for _, pin := range append(b.Pins[:], b.PHYReset) {
		if !pin.Valid() {
			return errors.New("invalid pin " + pin.String())
		}
		if seen[pin] {
			return errAliasedPins
		}
		seen[pin] = true
	}
	return nil
}

// allPins returns every GPIO the bring-up touches.
func (b Board) allPins() []stm32f4.Pin {
	return append(b.Pins[:], b.PHYReset)
}
