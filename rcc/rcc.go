// Package rcc brings the STM32F4 clock tree from its reset state (16MHz HSI)
// to a PLL derived system clock fed by the external oscillator.
package rcc

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/soypat/f4lan/internal"
	"github.com/soypat/f4lan/regs"
	"github.com/soypat/f4lan/stm32f4"
)

var errAlreadyRan = errors.New("sequencer already ran")

// DefaultMaxPolls bounds every ready-flag poll when Sequencer.MaxPolls is zero.
const DefaultMaxPolls = 100_000

// State is the position of a Sequencer in the bring-up sequence.
// It only ever advances.
type State uint8

const (
	StateIdle State = iota
	StateOscillatorEnable
	StateOscillatorWait
	StateFlashConfig
	StateBusPrescale
	StatePLLConfig
	StatePLLEnable
	StatePLLWait
	StateSwitchSysclk
	StateVerifySwitch
	StateReady
)

var stateNames = [...]string{
	StateIdle:             "idle",
	StateOscillatorEnable: "oscillator-enable",
	StateOscillatorWait:   "oscillator-wait",
	StateFlashConfig:      "flash-config",
	StateBusPrescale:      "bus-prescale",
	StatePLLConfig:        "pll-config",
	StatePLLEnable:        "pll-enable",
	StatePLLWait:          "pll-wait",
	StateSwitchSysclk:     "switch-sysclk",
	StateVerifySwitch:     "verify-switch",
	StateReady:            "ready",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "State(" + strconv.Itoa(int(s)) + ")"
}

// Sequencer switches the system clock to the PLL. A Sequencer runs once.
type Sequencer struct {
	Bus regs.Bus
	// MaxPolls bounds each ready-flag wait. Zero selects DefaultMaxPolls.
	MaxPolls int
	// PollWait, if not nil, is called between two polls of a ready flag.
	PollWait func()
	Logger   *slog.Logger

	state State
	polls int
}

// State returns the current position in the sequence.
func (s *Sequencer) State() State { return s.state }

// Polls returns the number of ready-flag reads performed by the last Run.
func (s *Sequencer) Polls() int { return s.polls }

// Run configures the clock tree according to plan and switches SYSCLK to the PLL.
// An invalid plan is rejected before any register is accessed. On failure the
// returned error is an *[Error] wrapping a [Fault] and the clock tree is left
// running from HSI.
func (s *Sequencer) Run(plan Plan) error {
	if s.state != StateIdle {
		return &Error{State: s.state, Err: errAlreadyRan}
	}
	if err := plan.Validate(); err != nil {
		return &Error{State: s.state, Err: err}
	}
	var (
		cr    = regs.At(s.Bus, stm32f4.RCC_CR)
		cfgr  = regs.At(s.Bus, stm32f4.RCC_CFGR)
		acr   = regs.At(s.Bus, stm32f4.FLASH_ACR)
		pllcf = regs.At(s.Bus, stm32f4.RCC_PLLCFGR)
	)

	s.advance(StateOscillatorEnable)
	on := uint32(stm32f4.RCC_CR_HSEON)
	if plan.CSS {
		on |= stm32f4.RCC_CR_CSSON
	}
	cr.SetBits(on)

	s.advance(StateOscillatorWait)
	if !s.poll(cr, stm32f4.RCC_CR_HSERDY) {
		cr.ClearBits(stm32f4.RCC_CR_HSEON | stm32f4.RCC_CR_CSSON)
		return s.fail(ErrOscillatorTimeout, "")
	}

	s.advance(StateFlashConfig)
	acr.Modify(func(v uint32) uint32 {
		v = stm32f4.FLASH_ACR_LATENCY.Put(v, uint32(plan.FlashLatency))
		return v | stm32f4.FLASH_ACR_PRFTEN | stm32f4.FLASH_ACR_ICEN | stm32f4.FLASH_ACR_DCEN
	})

	s.advance(StateBusPrescale)
	cfgr.Modify(func(v uint32) uint32 {
		v = stm32f4.RCC_CFGR_HPRE.Put(v, hpreBits(plan.AHBDiv))
		v = stm32f4.RCC_CFGR_PPRE2.Put(v, ppreBits(plan.APB2Div))
		return stm32f4.RCC_CFGR_PPRE1.Put(v, ppreBits(plan.APB1Div))
	})

	s.advance(StatePLLConfig)
	pllcf.Modify(func(v uint32) uint32 {
		v |= stm32f4.RCC_PLLCFGR_PLLSRC
		v = stm32f4.RCC_PLLCFGR_PLLM.Put(v, uint32(plan.M))
		v = stm32f4.RCC_PLLCFGR_PLLN.Put(v, uint32(plan.N))
		v = stm32f4.RCC_PLLCFGR_PLLP.Put(v, uint32(plan.P/2-1))
		return stm32f4.RCC_PLLCFGR_PLLQ.Put(v, uint32(plan.Q))
	})

	s.advance(StatePLLEnable)
	cr.SetBits(stm32f4.RCC_CR_PLLON)

	s.advance(StatePLLWait)
	if !s.poll(cr, stm32f4.RCC_CR_PLLRDY) {
		s.fallback()
		return s.fail(ErrPLLTimeout, "")
	}

	s.advance(StateSwitchSysclk)
	cfgr.Write(stm32f4.RCC_CFGR_SW, stm32f4.SW_PLL)

	s.advance(StateVerifySwitch)
	if sws := cfgr.Read(stm32f4.RCC_CFGR_SWS); sws != stm32f4.SW_PLL {
		s.fallback()
		return s.fail(ErrSwitchFailed, "SWS="+strconv.Itoa(int(sws)))
	}
	s.advance(StateReady)
	internal.LogAttrs(s.Logger, slog.LevelInfo, "rcc:ready",
		slog.Uint64("sysclk", uint64(plan.SysClk())),
		slog.Uint64("hclk", uint64(plan.HCLK())),
		slog.Uint64("pclk1", uint64(plan.PCLK1())),
		slog.Uint64("pclk2", uint64(plan.PCLK2())),
		slog.Uint64("pll48", uint64(plan.PLL48())),
		slog.Int("polls", s.polls),
	)
	return nil
}

// poll reads reg until all of mask is set or MaxPolls reads were done.
func (s *Sequencer) poll(reg regs.Reg, mask uint32) bool {
	maxPolls := s.MaxPolls
	if maxPolls <= 0 {
		maxPolls = DefaultMaxPolls
	}
	for i := 0; i < maxPolls; i++ {
		s.polls++
		if reg.HasBits(mask) {
			return true
		}
		if s.PollWait != nil {
			s.PollWait()
		}
	}
	return false
}

// fallback selects HSI as system clock and stops the PLL.
func (s *Sequencer) fallback() {
	regs.At(s.Bus, stm32f4.RCC_CFGR).Write(stm32f4.RCC_CFGR_SW, stm32f4.SW_HSI)
	regs.At(s.Bus, stm32f4.RCC_CR).ClearBits(stm32f4.RCC_CR_PLLON)
}

func (s *Sequencer) advance(next State) {
	s.state = next
	internal.LogAttrs(s.Logger, slog.LevelDebug, "rcc:state", slog.String("state", next.String()))
}

func (s *Sequencer) fail(f Fault, detail string) error {
	internal.LogAttrs(s.Logger, slog.LevelError, "rcc:fault",
		slog.String("state", s.state.String()),
		slog.String("fault", f.Error()),
		slog.String("detail", detail),
	)
	var err error = f
	if detail != "" {
		err = &detailErr{f: f, detail: detail}
	}
	return &Error{State: s.state, Err: err}
}

type detailErr struct {
	f      Fault
	detail string
}

func (e *detailErr) Error() string { return e.f.Error() + " (" + e.detail + ")" }
func (e *detailErr) Unwrap() error { return e.f }

// DeInit returns the clock tree to its reset configuration: SYSCLK from HSI
// with all prescalers at /1, PLL and external oscillator off. Run requires
// this state, so DeInit must be called first when a runtime already
// configured the clocks before main. Flash wait states are left untouched.
func DeInit(bus regs.Bus, maxPolls int) error {
	if maxPolls <= 0 {
		maxPolls = DefaultMaxPolls
	}
	var (
		cr   = regs.At(bus, stm32f4.RCC_CR)
		cfgr = regs.At(bus, stm32f4.RCC_CFGR)
	)
	cr.SetBits(stm32f4.RCC_CR_HSION)
	ready := false
	for i := 0; i < maxPolls && !ready; i++ {
		ready = cr.HasBits(stm32f4.RCC_CR_HSIRDY)
	}
	if !ready {
		return &Error{State: StateIdle, Err: ErrOscillatorTimeout}
	}
	cfgr.Write(stm32f4.RCC_CFGR_SW, stm32f4.SW_HSI)
	switched := false
	for i := 0; i < maxPolls && !switched; i++ {
		switched = cfgr.Read(stm32f4.RCC_CFGR_SWS) == stm32f4.SW_HSI
	}
	if !switched {
		return &Error{State: StateIdle, Err: ErrSwitchFailed}
	}
	cfgr.Set(0)
	cr.ClearBits(stm32f4.RCC_CR_PLLON | stm32f4.RCC_CR_CSSON | stm32f4.RCC_CR_HSEON)
	regs.At(bus, stm32f4.RCC_PLLCFGR).Set(stm32f4.RCC_PLLCFGR_Reset)
	return nil
}
