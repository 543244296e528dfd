// Package f4sim simulates the behaviour of the STM32F407 registers touched
// during clock and Ethernet bring-up on top of a [regsim.Bus], with a LAN8720
// attached to the MAC's station management interface.
package f4sim

import (
	"fmt"

	"github.com/soypat/f4lan/regs/regsim"
	"github.com/soypat/f4lan/stm32f4"
)

// Config selects the timing and fault behaviour of a simulated board.
type Config struct {
	// HSEReadyAfter is the number of RCC_CR reads after HSEON is set, the last
	// of which sees HSERDY. Values below 1 mean the oscillator never starts.
	HSEReadyAfter int
	// PLLReadyAfter is the same for PLLON and PLLRDY.
	PLLReadyAfter int
	// SwitchStuck keeps RCC_CFGR SWS at HSI regardless of SW.
	SwitchStuck bool
	// MIIBusyLoads is the number of MACMIIAR reads after issuing an SMI
	// transaction that still see the busy flag set.
	MIIBusyLoads int
	// MIIStuck keeps the SMI busy forever once a transaction is issued.
	MIIStuck bool
	// DMAResetLoads is the number of ETH_DMABMR reads that still see SR set.
	// Negative values keep the DMA in reset forever.
	DMAResetLoads int
	// PHY is attached to the SMI. A nil PHY leaves the management bus undriven.
	PHY *PHY
}

// DefaultConfig returns a healthy board with a LAN8720 at address 0.
func DefaultConfig() Config {
	p := NewPHY(0)
	p.ResetPolls = 3
	return Config{
		HSEReadyAfter: 3,
		PLLReadyAfter: 5,
		MIIBusyLoads:  2,
		DMAResetLoads: 1,
		PHY:           p,
	}
}

// Transaction is an SMI transaction as seen by the simulated MAC.
type Transaction struct {
	PHYAddr uint8
	Reg     uint8
	Write   bool
	Value   uint16 // Written value or value read back.
}

func (t Transaction) String() string {
	dir := "RD"
	if t.Write {
		dir = "WR"
	}
	return fmt.Sprintf("SMI %s phy=%d reg=%d val=%#04x", dir, t.PHYAddr, t.Reg, t.Value)
}

// Board is a simulated STM32F407 board.
type Board struct {
	Bus regsim.Bus
	cfg Config

	hsePolls int
	pllPolls int

	miiBusy  bool
	miiLeft  int
	miiCur   Transaction
	txs      []Transaction
	dmaLeft  int
	problems []string
}

// New returns a board with reset register values and hooks installed.
func New(cfg Config) *Board {
	b := &Board{cfg: cfg}
	bus := &b.Bus
	bus.Poke(stm32f4.RCC_CR, 0x0000_0083) // HSION, HSIRDY, HSITRIM=16.
	bus.Poke(stm32f4.RCC_PLLCFGR, stm32f4.RCC_PLLCFGR_Reset)
	b.resetMAC(bus)
	bus.OnLoad(stm32f4.RCC_CR, b.loadCR)
	bus.OnStore(stm32f4.RCC_CR, b.storeCR)
	bus.OnStore(stm32f4.RCC_CFGR, b.storeCFGR)
	bus.OnStore(stm32f4.RCC_AHB1RSTR, b.storeAHB1RSTR)
	bus.OnLoad(stm32f4.ETH_MACMIIAR, b.loadMIIAR)
	bus.OnStore(stm32f4.ETH_MACMIIAR, b.storeMIIAR)
	bus.OnLoad(stm32f4.ETH_MACMIIDR, b.loadMIIDR)
	bus.OnStore(stm32f4.ETH_MACMIIDR, b.storeMIIDR)
	bus.OnLoad(stm32f4.ETH_DMABMR, b.loadDMABMR)
	bus.OnStore(stm32f4.ETH_DMABMR, b.storeDMABMR)
	for port := uint8(0); port < stm32f4.NumPorts; port++ {
		bsrr := stm32f4.GPIOBase(port) + stm32f4.GPIO_BSRR
		bus.OnStore(bsrr, b.storeBSRR)
		b.nameGPIO(port)
	}
	for addr, name := range map[uintptr]string{
		stm32f4.RCC_CR: "RCC_CR", stm32f4.RCC_PLLCFGR: "RCC_PLLCFGR", stm32f4.RCC_CFGR: "RCC_CFGR",
		stm32f4.RCC_AHB1RSTR: "RCC_AHB1RSTR", stm32f4.RCC_AHB1ENR: "RCC_AHB1ENR",
		stm32f4.RCC_APB1ENR: "RCC_APB1ENR", stm32f4.RCC_APB2ENR: "RCC_APB2ENR",
		stm32f4.FLASH_ACR: "FLASH_ACR", stm32f4.SYSCFG_PMC: "SYSCFG_PMC",
		stm32f4.ETH_MACCR: "ETH_MACCR", stm32f4.ETH_MACMIIAR: "ETH_MACMIIAR",
		stm32f4.ETH_MACMIIDR: "ETH_MACMIIDR", stm32f4.ETH_DMABMR: "ETH_DMABMR",
	} {
		bus.Name(addr, name)
	}
	return b
}

func (b *Board) nameGPIO(port uint8) {
	prefix := "GPIO" + string(rune('A'+port)) + "_"
	base := stm32f4.GPIOBase(port)
	for off, name := range map[uintptr]string{
		stm32f4.GPIO_MODER: "MODER", stm32f4.GPIO_OTYPER: "OTYPER", stm32f4.GPIO_OSPEEDR: "OSPEEDR",
		stm32f4.GPIO_PUPDR: "PUPDR", stm32f4.GPIO_IDR: "IDR", stm32f4.GPIO_ODR: "ODR", stm32f4.GPIO_BSRR: "BSRR",
		stm32f4.GPIO_AFRL: "AFRL", stm32f4.GPIO_AFRH: "AFRH",
	} {
		b.Bus.Name(base+off, prefix+name)
	}
}

// Transactions returns the SMI transactions completed or issued so far.
func (b *Board) Transactions() []Transaction { return b.txs }

// Violations returns descriptions of register protocol violations such as an
// SMI transaction issued while the interface was busy.
func (b *Board) Violations() []string { return b.problems }

// StatusPolls returns the number of RCC_CR reads made while waiting on HSE and PLL.
func (b *Board) StatusPolls() (hse, pll int) { return b.hsePolls, b.pllPolls }

// PHY returns the attached PHY model.
func (b *Board) PHY() *PHY { return b.cfg.PHY }

func (b *Board) violation(format string, args ...any) {
	b.problems = append(b.problems, fmt.Sprintf(format, args...))
}

func (b *Board) loadCR(bus *regsim.Bus, addr uintptr, v uint32) uint32 {
	if v&stm32f4.RCC_CR_HSEON != 0 && v&stm32f4.RCC_CR_HSERDY == 0 {
		b.hsePolls++
		if b.cfg.HSEReadyAfter > 0 && b.hsePolls >= b.cfg.HSEReadyAfter {
			v |= stm32f4.RCC_CR_HSERDY
		}
	}
	if v&stm32f4.RCC_CR_PLLON != 0 && v&stm32f4.RCC_CR_PLLRDY == 0 {
		b.pllPolls++
		if b.cfg.PLLReadyAfter > 0 && b.pllPolls >= b.cfg.PLLReadyAfter {
			v |= stm32f4.RCC_CR_PLLRDY
		}
	}
	bus.Poke(addr, v)
	return v
}

func (b *Board) storeCR(bus *regsim.Bus, addr uintptr, old, v uint32) uint32 {
	const readOnly = stm32f4.RCC_CR_HSIRDY | stm32f4.RCC_CR_HSERDY | stm32f4.RCC_CR_PLLRDY
	v = v&^readOnly | old&readOnly
	if v&stm32f4.RCC_CR_HSEON == 0 {
		v &^= stm32f4.RCC_CR_HSERDY
	}
	if v&stm32f4.RCC_CR_PLLON == 0 {
		v &^= stm32f4.RCC_CR_PLLRDY
	}
	if v&stm32f4.RCC_CR_PLLON != 0 && old&stm32f4.RCC_CR_PLLON == 0 {
		cfg := bus.Peek(stm32f4.RCC_PLLCFGR)
		if stm32f4.RCC_PLLCFGR_PLLSRC&cfg != 0 && v&stm32f4.RCC_CR_HSERDY == 0 {
			b.violation("PLL enabled with HSE source before HSE ready")
		}
	}
	return v
}

func (b *Board) storeCFGR(bus *regsim.Bus, addr uintptr, old, v uint32) uint32 {
	sw := stm32f4.RCC_CFGR_SW.Get(v)
	sws := stm32f4.RCC_CFGR_SWS.Get(old)
	if !b.cfg.SwitchStuck {
		cr := bus.Peek(stm32f4.RCC_CR)
		switch {
		case sw == stm32f4.SW_PLL && cr&stm32f4.RCC_CR_PLLRDY != 0:
			sws = stm32f4.SW_PLL
		case sw == stm32f4.SW_HSE && cr&stm32f4.RCC_CR_HSERDY != 0:
			sws = stm32f4.SW_HSE
		case sw == stm32f4.SW_HSI:
			sws = stm32f4.SW_HSI
		}
	}
	return stm32f4.RCC_CFGR_SWS.Put(v, sws)
}

func (b *Board) storeBSRR(bus *regsim.Bus, addr uintptr, old, v uint32) uint32 {
	odr := addr - stm32f4.GPIO_BSRR + stm32f4.GPIO_ODR
	out := bus.Peek(odr)
	out &^= v >> 16
	out |= v & 0xffff
	bus.Poke(odr, out)
	return 0
}

func (b *Board) storeMIIAR(bus *regsim.Bus, addr uintptr, old, v uint32) uint32 {
	if v&stm32f4.ETH_MACMIIAR_MB == 0 {
		if b.miiBusy {
			b.violation("MACMIIAR written while SMI busy")
			return v | stm32f4.ETH_MACMIIAR_MB
		}
		return v
	}
	if b.miiBusy {
		b.violation("SMI transaction issued while busy: %#08x", v)
		return old
	}
	if bus.Peek(stm32f4.RCC_AHB1ENR)&stm32f4.RCC_AHB1ENR_ETHMACEN == 0 || bus.Peek(stm32f4.RCC_AHB1RSTR)&stm32f4.RCC_AHB1RSTR_ETHMACRST != 0 {
		b.violation("SMI transaction issued with MAC clock gated or in reset")
	}
	tx := Transaction{
		PHYAddr: uint8(stm32f4.ETH_MACMIIAR_PA.Get(v)),
		Reg:     uint8(stm32f4.ETH_MACMIIAR_MR.Get(v)),
		Write:   v&stm32f4.ETH_MACMIIAR_MW != 0,
	}
	if tx.Write {
		tx.Value = uint16(bus.Peek(stm32f4.ETH_MACMIIDR))
		if b.cfg.PHY != nil {
			b.cfg.PHY.Write(tx.PHYAddr, 0, uint16(tx.Reg), tx.Value)
		}
	}
	b.miiBusy = true
	b.miiLeft = b.cfg.MIIBusyLoads
	b.miiCur = tx
	return v
}

func (b *Board) loadMIIAR(bus *regsim.Bus, addr uintptr, v uint32) uint32 {
	if !b.miiBusy {
		return v
	}
	if b.miiLeft > 0 || b.cfg.MIIStuck {
		b.miiLeft--
		return v | stm32f4.ETH_MACMIIAR_MB
	}
	b.miiBusy = false
	tx := b.miiCur
	if !tx.Write {
		tx.Value = 0xffff
		if b.cfg.PHY != nil {
			tx.Value, _ = b.cfg.PHY.Read(tx.PHYAddr, 0, uint16(tx.Reg))
		}
		bus.Poke(stm32f4.ETH_MACMIIDR, uint32(tx.Value))
	}
	b.txs = append(b.txs, tx)
	v &^= stm32f4.ETH_MACMIIAR_MB
	bus.Poke(addr, v)
	return v
}

func (b *Board) loadMIIDR(bus *regsim.Bus, addr uintptr, v uint32) uint32 {
	if b.miiBusy {
		b.violation("MACMIIDR read while SMI busy")
	}
	return v
}

func (b *Board) storeMIIDR(bus *regsim.Bus, addr uintptr, old, v uint32) uint32 {
	if b.miiBusy {
		b.violation("MACMIIDR written while SMI busy")
	}
	return v & 0xffff
}

// storeAHB1RSTR returns the MAC registers to their reset values while
// ETHMACRST is set.
func (b *Board) storeAHB1RSTR(bus *regsim.Bus, addr uintptr, old, v uint32) uint32 {
	if v&stm32f4.RCC_AHB1RSTR_ETHMACRST != 0 {
		b.resetMAC(bus)
	}
	return v
}

func (b *Board) resetMAC(bus *regsim.Bus) {
	bus.Poke(stm32f4.ETH_MACMIIAR, 0)
	bus.Poke(stm32f4.ETH_MACMIIDR, 0)
	bus.Poke(stm32f4.ETH_MACCR, stm32f4.ETH_MACCR_Reset)
	bus.Poke(stm32f4.ETH_DMABMR, stm32f4.ETH_DMABMR_Reset)
	b.miiBusy = false
}

// storeDMABMR models the DMA software reset which also resets the MAC registers.
func (b *Board) storeDMABMR(bus *regsim.Bus, addr uintptr, old, v uint32) uint32 {
	if v&stm32f4.ETH_DMABMR_SR != 0 {
		b.resetMAC(bus)
		b.dmaLeft = b.cfg.DMAResetLoads
		return stm32f4.ETH_DMABMR_Reset | stm32f4.ETH_DMABMR_SR
	}
	return v
}

func (b *Board) loadDMABMR(bus *regsim.Bus, addr uintptr, v uint32) uint32 {
	if v&stm32f4.ETH_DMABMR_SR == 0 || b.dmaLeft < 0 {
		return v
	}
	if b.dmaLeft > 0 {
		b.dmaLeft--
		return v
	}
	v &^= stm32f4.ETH_DMABMR_SR
	bus.Poke(addr, v)
	return v
}
