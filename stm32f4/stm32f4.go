// Package stm32f4 holds the subset of the STM32F405/407 register map used
// during clock and Ethernet bring-up. See RM0090.
package stm32f4

import "github.com/soypat/f4lan/regs"

// Peripheral base addresses.
const (
	GPIOABase  uintptr = 0x4002_0000
	gpioStride uintptr = 0x400
	RCCBase    uintptr = 0x4002_3800
	FLASHBase  uintptr = 0x4002_3C00
	SYSCFGBase uintptr = 0x4001_3800
	ETHBase    uintptr = 0x4002_8000
)

// RCC registers.
const (
	RCC_CR       = RCCBase + 0x00
	RCC_PLLCFGR  = RCCBase + 0x04
	RCC_CFGR     = RCCBase + 0x08
	RCC_AHB1RSTR = RCCBase + 0x10
	RCC_AHB1ENR  = RCCBase + 0x30
	RCC_APB1ENR  = RCCBase + 0x40
	RCC_APB2ENR  = RCCBase + 0x44
)

// RCC_CR bits.
const (
	RCC_CR_HSION  = 1 << 0
	RCC_CR_HSIRDY = 1 << 1
	RCC_CR_HSEON  = 1 << 16
	RCC_CR_HSERDY = 1 << 17
	RCC_CR_HSEBYP = 1 << 18
	RCC_CR_CSSON  = 1 << 19
	RCC_CR_PLLON  = 1 << 24
	RCC_CR_PLLRDY = 1 << 25
)

// RCC_PLLCFGR fields. PLLP is encoded as P/2-1.
var (
	RCC_PLLCFGR_PLLM = regs.Field{Pos: 0, Width: 6}
	RCC_PLLCFGR_PLLN = regs.Field{Pos: 6, Width: 9}
	RCC_PLLCFGR_PLLP = regs.Field{Pos: 16, Width: 2}
	RCC_PLLCFGR_PLLQ = regs.Field{Pos: 24, Width: 4}
)

const (
	RCC_PLLCFGR_PLLSRC = 1 << 22 // Set selects HSE as PLL input.
	// RCC_PLLCFGR_Reset is the PLLCFGR value after reset.
	RCC_PLLCFGR_Reset = 0x2400_3010
)

// RCC_CFGR fields.
var (
	RCC_CFGR_SW    = regs.Field{Pos: 0, Width: 2}
	RCC_CFGR_SWS   = regs.Field{Pos: 2, Width: 2}
	RCC_CFGR_HPRE  = regs.Field{Pos: 4, Width: 4}
	RCC_CFGR_PPRE1 = regs.Field{Pos: 10, Width: 3}
	RCC_CFGR_PPRE2 = regs.Field{Pos: 13, Width: 3}
)

// System clock switch values for RCC_CFGR SW and SWS.
const (
	SW_HSI = 0b00
	SW_HSE = 0b01
	SW_PLL = 0b10
)

// RCC_AHB1RSTR and RCC_AHB1ENR bits.
const (
	RCC_AHB1ENR_GPIOAEN    = 1 << 0 // GPIOxEN is GPIOAEN << port index.
	RCC_AHB1ENR_ETHMACEN   = 1 << 25
	RCC_AHB1ENR_ETHMACTXEN = 1 << 26
	RCC_AHB1ENR_ETHMACRXEN = 1 << 27

	RCC_AHB1RSTR_ETHMACRST = 1 << 25

	RCC_APB2ENR_SYSCFGEN = 1 << 14
)

// FLASH_ACR.
const (
	FLASH_ACR        = FLASHBase + 0x00
	FLASH_ACR_PRFTEN = 1 << 8
	FLASH_ACR_ICEN   = 1 << 9
	FLASH_ACR_DCEN   = 1 << 10
)

var FLASH_ACR_LATENCY = regs.Field{Pos: 0, Width: 3}

// SYSCFG.
const (
	SYSCFG_PMC              = SYSCFGBase + 0x04
	SYSCFG_PMC_MII_RMII_SEL = 1 << 23
)

// Ethernet MAC and DMA registers.
const (
	ETH_MACCR    = ETHBase + 0x0000
	ETH_MACMIIAR = ETHBase + 0x0010
	ETH_MACMIIDR = ETHBase + 0x0014
	ETH_DMABMR   = ETHBase + 0x1000

	ETH_MACCR_RE = 1 << 2
	ETH_MACCR_TE = 1 << 3

	ETH_MACMIIAR_MB = 1 << 0 // MII busy.
	ETH_MACMIIAR_MW = 1 << 1 // MII write.

	ETH_DMABMR_SR = 1 << 0 // DMA software reset, cleared by hardware.

	// Reset values.
	ETH_MACCR_Reset  = 0x0000_8000
	ETH_DMABMR_Reset = 0x0000_2100 // Once the reset has completed.
)

var (
	ETH_MACMIIAR_CR = regs.Field{Pos: 2, Width: 3}
	ETH_MACMIIAR_MR = regs.Field{Pos: 6, Width: 5}
	ETH_MACMIIAR_PA = regs.Field{Pos: 11, Width: 5}
	ETH_MACMIIDR_MD = regs.Field{Pos: 0, Width: 16}
)

// GPIO register offsets.
const (
	GPIO_MODER   = 0x00
	GPIO_OTYPER  = 0x04
	GPIO_OSPEEDR = 0x08
	GPIO_PUPDR   = 0x0C
	GPIO_IDR     = 0x10
	GPIO_ODR     = 0x14
	GPIO_BSRR    = 0x18
	GPIO_AFRL    = 0x20
	GPIO_AFRH    = 0x24
)

// GPIOBase returns the base address of GPIO port. Port 0 is GPIOA.
func GPIOBase(port uint8) uintptr {
	return GPIOABase + uintptr(port)*gpioStride
}

// NumPorts is the number of GPIO ports A through I.
const NumPorts = 9
