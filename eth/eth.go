// Package eth brings the STM32F4 Ethernet MAC out of reset in RMII mode and
// configures the attached LAN8720 PHY over the station management interface.
//
// The clock tree must already run from the PLL (see package rcc) since the SMI
// clock divider is derived from HCLK.
package eth

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/soypat/f4lan/internal"
	"github.com/soypat/f4lan/lan8720"
	"github.com/soypat/f4lan/regs"
	"github.com/soypat/f4lan/stm32f4"
)

var (
	// ErrUnexpectedPHYID is returned when the PHY identifier does not match a LAN8720.
	ErrUnexpectedPHYID = lan8720.ErrUnexpectedPHYID
	// ErrResetTimeout is returned when the PHY soft reset does not complete.
	ErrResetTimeout = lan8720.ErrResetTimeout
	// ErrDMAResetTimeout is returned when the MAC DMA software reset does not complete.
	// This usually means the RMII reference clock from the PHY is missing.
	ErrDMAResetTimeout = errors.New("DMA software reset timeout")

	errAlreadyRan = errors.New("bring-up already ran")
)

// State is the position of a Bringup in the sequence. It only ever advances.
type State uint8

const (
	StateIdle State = iota
	StateClockEnable
	StatePHYResetRelease
	StateMACReset
	StatePinMux
	StateMACEnable
	StateDMAReset
	StateMACStart
	StateSMISetup
	StatePHYConfigure
	StateReady
)

var stateNames = [...]string{
	StateIdle:            "idle",
	StateClockEnable:     "clock-enable",
	StatePHYResetRelease: "phy-reset-release",
	StateMACReset:        "mac-reset",
	StatePinMux:          "pin-mux",
	StateMACEnable:       "mac-enable",
	StateDMAReset:        "dma-reset",
	StateMACStart:        "mac-start",
	StateSMISetup:        "smi-setup",
	StatePHYConfigure:    "phy-configure",
	StateReady:           "ready",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "State(" + strconv.Itoa(int(s)) + ")"
}

// Error reports the state in which the Ethernet bring-up failed.
type Error struct {
	State State
	Err   error
}

func (e *Error) Error() string {
	return "eth: " + e.State.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

const macClocks = stm32f4.RCC_AHB1ENR_ETHMACEN | stm32f4.RCC_AHB1ENR_ETHMACTXEN | stm32f4.RCC_AHB1ENR_ETHMACRXEN

// Bringup takes the MAC from reset to a configured PHY. A Bringup runs once.
type Bringup struct {
	Bus   regs.Bus
	Board Board
	// HCLK is the AHB clock frequency reached by the clock sequence.
	HCLK uint32
	// MaxPolls bounds SMI busy waits and the DMA reset wait. Zero selects DefaultMaxPolls.
	MaxPolls int
	// PollWait, if not nil, is called between polls of a busy flag.
	PollWait func()
	// PHY configures the LAN8720. Its PHYAddr is taken from Board.
	PHY    lan8720.Config
	Logger *slog.Logger

	state State
	smi   SMI
	dev   lan8720.PHY
}

// State returns the current position in the sequence.
func (b *Bringup) State() State { return b.state }

// SMI returns the management interface used to talk to the PHY.
func (b *Bringup) SMI() *SMI { return &b.smi }

// PHY returns the PHY device. It is usable once Run succeeded.
func (b *Bringup) PHY() *lan8720.PHY { return &b.dev }

// Run performs the bring-up:
//
// Phase A, reset and pins: enable GPIO and SYSCFG clocks, release the PHY
// reset line, hold the MAC in reset while selecting RMII, multiplex every
// RMII/SMI pin, then release the MAC from reset and enable its clocks. The
// MAC DMA is soft reset and the MAC transmitter and receiver enabled.
//
// Phase B, SMI handshake: program the MDC divider and let the lan8720 package
// check the PHY identity, override its strap mode and soft reset it.
//
// On failure the returned error is an *[Error] and the MAC is left in reset
// with its clocks gated.
func (b *Bringup) Run() (lan8720.Identity, error) {
	if b.state != StateIdle {
		return lan8720.Identity{}, &Error{State: b.state, Err: errAlreadyRan}
	}
	if err := b.Board.Validate(); err != nil {
		return lan8720.Identity{}, &Error{State: b.state, Err: err}
	}
	if _, err := ClockRange(b.HCLK); err != nil {
		return lan8720.Identity{}, &Error{State: b.state, Err: err}
	}
	if err := b.resetMAC(); err != nil {
		return lan8720.Identity{}, b.fail(err)
	}
	if err := b.resetDMA(); err != nil {
		return lan8720.Identity{}, b.fail(err)
	}
	// DMA software reset clears the MAC configuration so the
	// transmitter and receiver are enabled afterwards.
	b.advance(StateMACStart)
	regs.At(b.Bus, stm32f4.ETH_MACCR).SetBits(stm32f4.ETH_MACCR_TE | stm32f4.ETH_MACCR_RE)
	id, err := b.configurePHY()
	if err != nil {
		return id, b.fail(err)
	}
	b.advance(StateReady)
	return id, nil
}

// resetMAC is phase A. It does not poll.
func (b *Bringup) resetMAC() error {
	var (
		rstr   = regs.At(b.Bus, stm32f4.RCC_AHB1RSTR)
		enr    = regs.At(b.Bus, stm32f4.RCC_AHB1ENR)
		pmc    = regs.At(b.Bus, stm32f4.SYSCFG_PMC)
		apbenr = regs.At(b.Bus, stm32f4.RCC_APB2ENR)
	)
	b.advance(StateClockEnable)
	stm32f4.EnablePortClocks(b.Bus, b.Board.allPins()...)
	apbenr.SetBits(stm32f4.RCC_APB2ENR_SYSCFGEN)

	// Drive the line high before switching it to output so nRST never glitches low.
	b.advance(StatePHYResetRelease)
	nrst := b.Board.PHYReset
	nrst.High(b.Bus)
	err := nrst.Configure(b.Bus, stm32f4.PinConfig{Mode: stm32f4.ModeOutput, Speed: stm32f4.SpeedLow})
	if err != nil {
		return err
	}

	// RMII selection is only sampled while the MAC is in reset with clocks off.
	b.advance(StateMACReset)
	rstr.SetBits(stm32f4.RCC_AHB1RSTR_ETHMACRST)
	pmc.SetBits(stm32f4.SYSCFG_PMC_MII_RMII_SEL)

	b.advance(StatePinMux)
	for _, mux := range b.Board.Pins.PinMuxSpec() {
		err = mux.Pin.Configure(b.Bus, mux.Config)
		if err != nil {
			return err
		}
		if internal.LogEnabled(b.Logger, internal.LevelTrace) {
			internal.LogAttrs(b.Logger, internal.LevelTrace, "eth:pinmux",
				slog.String("sig", mux.Signal.String()),
				slog.String("pin", mux.Pin.String()),
			)
		}
	}

	b.advance(StateMACEnable)
	enr.SetBits(macClocks)
	rstr.ClearBits(stm32f4.RCC_AHB1RSTR_ETHMACRST)
	return nil
}

func (b *Bringup) resetDMA() error {
	b.advance(StateDMAReset)
	bmr := regs.At(b.Bus, stm32f4.ETH_DMABMR)
	bmr.SetBits(stm32f4.ETH_DMABMR_SR)
	maxPolls := b.MaxPolls
	if maxPolls <= 0 {
		maxPolls = DefaultMaxPolls
	}
	for i := 0; i < maxPolls; i++ {
		if !bmr.HasBits(stm32f4.ETH_DMABMR_SR) {
			return nil
		}
		if b.PollWait != nil {
			b.PollWait()
		}
	}
	return ErrDMAResetTimeout
}

// configurePHY is phase B.
func (b *Bringup) configurePHY() (lan8720.Identity, error) {
	b.advance(StateSMISetup)
	b.smi = SMI{
		Bus:      b.Bus,
		MaxPolls: b.MaxPolls,
		PollWait: b.PollWait,
		Logger:   b.Logger,
	}
	err := b.smi.Setup(b.HCLK, b.Board.PHYAddr)
	if err != nil {
		return lan8720.Identity{}, err
	}

	b.advance(StatePHYConfigure)
	cfg := b.PHY
	cfg.PHYAddr = b.Board.PHYAddr
	if cfg.Logger == nil {
		cfg.Logger = b.Logger
	}
	return b.dev.Configure(&b.smi, cfg)
}

// fail leaves the MAC in reset with clocks gated and wraps err.
func (b *Bringup) fail(err error) error {
	regs.At(b.Bus, stm32f4.RCC_AHB1RSTR).SetBits(stm32f4.RCC_AHB1RSTR_ETHMACRST)
	regs.At(b.Bus, stm32f4.RCC_AHB1ENR).ClearBits(macClocks)
	internal.LogAttrs(b.Logger, slog.LevelError, "eth:fault",
		slog.String("state", b.state.String()),
		slog.String("err", err.Error()),
	)
	return &Error{State: b.state, Err: err}
}

func (b *Bringup) advance(next State) {
	b.state = next
	internal.LogAttrs(b.Logger, slog.LevelDebug, "eth:state", slog.String("state", next.String()))
}
