package rcc

import (
	"fmt"
	"math"

	"github.com/soypat/f4lan/internal"
)

const (
	MHz = 1_000_000

	// Datasheet limits for the STM32F405/407 at 2.7-3.6V.
	minHSE        = 4 * MHz
	maxHSE        = 26 * MHz
	minVCOInput   = 1 * MHz
	maxVCOInput   = 2 * MHz
	minVCO        = 100 * MHz
	maxVCO        = 432 * MHz
	maxSysClk     = 168 * MHz
	maxPLL48      = 48 * MHz
	maxPCLK2      = 84 * MHz
	maxPCLK1      = 42 * MHz
	hclkPerWait   = 30 * MHz // HCLK covered by each flash wait state.
	maxFlashWaits = 7
)

var (
	ahbDivs = []uint16{1, 2, 4, 8, 16, 64, 128, 256, 512}
	apbDivs = []uint16{1, 2, 4, 8, 16}
)

// Plan describes a PLL derived clock tree.
//
//	VCO    = HSE / M * N
//	SYSCLK = VCO / P
//	PLL48  = VCO / Q (USB OTG FS, SDIO, RNG)
type Plan struct {
	HSE uint32 // External oscillator frequency in Hz.
	M   uint8  // PLL input divider, 2..63.
	N   uint16 // VCO multiplier, 50..432.
	P   uint8  // System clock divider, one of 2, 4, 6, 8.
	Q   uint8  // 48MHz domain divider, 2..15.

	AHBDiv  uint16 // HCLK = SYSCLK / AHBDiv.
	APB1Div uint16 // PCLK1 = HCLK / APB1Div.
	APB2Div uint16 // PCLK2 = HCLK / APB2Div.

	// FlashLatency is the number of flash wait states.
	FlashLatency uint8
	// CSS enables the clock security system on the external oscillator.
	CSS bool
}

// Plan168MHz returns the plan for an 8MHz crystal running the core at 168MHz.
//
//	VCO    = 8MHz / 8 * 336 = 336MHz
//	SYSCLK = 336MHz / 2    = 168MHz = HCLK
//	PLL48  = 336MHz / 7    = 48MHz
//	PCLK2  = 168MHz / 2    = 84MHz
//	PCLK1  = 168MHz / 4    = 42MHz
func Plan168MHz() Plan {
	return Plan{
		HSE:          8 * MHz,
		M:            8,
		N:            336,
		P:            2,
		Q:            7,
		AHBDiv:       1,
		APB1Div:      4,
		APB2Div:      2,
		FlashLatency: 5,
		CSS:          true,
	}
}

// Derived frequencies in Hz. They are exact for valid plans and saturate at
// math.MaxUint32 otherwise.
func (p Plan) VCOInput() uint32 { return p.HSE / uint32(max(p.M, 1)) }
func (p Plan) VCO() uint32      { return sat32(p.vco()) }
func (p Plan) SysClk() uint32   { return sat32(p.sysClk()) }
func (p Plan) PLL48() uint32    { return sat32(p.vco() / uint64(max(p.Q, 1))) }
func (p Plan) HCLK() uint32     { return sat32(p.hclk()) }
func (p Plan) PCLK1() uint32    { return sat32(p.hclk() / uint64(max(p.APB1Div, 1))) }
func (p Plan) PCLK2() uint32    { return sat32(p.hclk() / uint64(max(p.APB2Div, 1))) }

func (p Plan) vco() uint64    { return uint64(p.VCOInput()) * uint64(p.N) }
func (p Plan) sysClk() uint64 { return p.vco() / uint64(max(p.P, 1)) }
func (p Plan) hclk() uint64   { return p.sysClk() / uint64(max(p.AHBDiv, 1)) }

func sat32(v uint64) uint32 {
	if v > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(v)
}

// Validate checks every divider against its legal range and every derived
// frequency against its rated maximum. The returned error wraps [ErrInvalidPlan].
func (p Plan) Validate() error {
	switch {
	case !internal.InRange(p.HSE, minHSE, maxHSE):
		return planErr("HSE %dHz outside [4,26]MHz", p.HSE)
	case !internal.InRange(p.M, 2, 63):
		return planErr("PLLM=%d outside [2,63]", p.M)
	case !internal.InRange(p.N, 50, 432):
		return planErr("PLLN=%d outside [50,432]", p.N)
	case !internal.OneOf(p.P, 2, 4, 6, 8):
		return planErr("PLLP=%d not one of 2,4,6,8", p.P)
	case !internal.InRange(p.Q, 2, 15):
		return planErr("PLLQ=%d outside [2,15]", p.Q)
	case !internal.OneOf(p.AHBDiv, ahbDivs...):
		return planErr("AHB prescaler /%d not supported", p.AHBDiv)
	case !internal.OneOf(p.APB1Div, apbDivs...):
		return planErr("APB1 prescaler /%d not supported", p.APB1Div)
	case !internal.OneOf(p.APB2Div, apbDivs...):
		return planErr("APB2 prescaler /%d not supported", p.APB2Div)
	case p.FlashLatency > maxFlashWaits:
		return planErr("flash latency %d exceeds %d", p.FlashLatency, maxFlashWaits)
	}
	switch {
	case !internal.InRange(p.VCOInput(), minVCOInput, maxVCOInput):
		return planErr("VCO input %dHz outside [1,2]MHz", p.VCOInput())
	case !internal.InRange(p.VCO(), minVCO, maxVCO):
		return planErr("VCO %dHz outside [100,432]MHz", p.VCO())
	case p.SysClk() > maxSysClk:
		return planErr("SYSCLK %dHz exceeds 168MHz", p.SysClk())
	case p.PLL48() > maxPLL48:
		return planErr("PLL48 %dHz exceeds 48MHz", p.PLL48())
	case p.PCLK2() > maxPCLK2:
		return planErr("PCLK2 %dHz exceeds 84MHz", p.PCLK2())
	case p.PCLK1() > maxPCLK1:
		return planErr("PCLK1 %dHz exceeds 42MHz", p.PCLK1())
	case p.HCLK() > hclkPerWait*(uint32(p.FlashLatency)+1):
		return planErr("HCLK %dHz needs more than %d flash wait states", p.HCLK(), p.FlashLatency)
	}
	return nil
}

func planErr(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidPlan}, args...)...)
}

// hpreBits returns the RCC_CFGR HPRE encoding of an AHB divider.
func hpreBits(div uint16) uint32 {
	if div <= 1 {
		return 0
	}
	return 0b1000 | uint32(internal.IndexOf(div, ahbDivs...)-1)
}

// ppreBits returns the RCC_CFGR PPRE1/PPRE2 encoding of an APB divider.
func ppreBits(div uint16) uint32 {
	if div <= 1 {
		return 0
	}
	return 0b100 | uint32(internal.IndexOf(div, apbDivs...)-1)
}
