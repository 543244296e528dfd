package eth

import (
	"errors"
	"log/slog"

	"github.com/soypat/f4lan/internal"
	"github.com/soypat/f4lan/regs"
	"github.com/soypat/f4lan/stm32f4"
	"github.com/soypat/lneto/phy"
)

var _ phy.MDIOBus = (*SMI)(nil) // compile time guarantee of interface implementation.

// DefaultMaxPolls bounds busy flag polls when no limit is configured.
const DefaultMaxPolls = 100_000

var (
	// ErrSMITimeout means the SMI busy flag did not clear in time.
	ErrSMITimeout = errors.New("SMI busy timeout")
	// ErrClause45 is returned for Clause 45 accesses which the MAC does not support.
	ErrClause45      = errors.New("clause 45 access not supported")
	errSMIAddr       = errors.New("SMI PHY or register address out of range")
	errSMIClockRange = errors.New("HCLK outside SMI clock range table")
)

// MHz is one megahertz.
const MHz = 1_000_000

// ClockRange returns the MACMIIAR CR field for the given HCLK so that MDC
// stays below 2.5MHz.
func ClockRange(hclk uint32) (uint32, error) {
	switch {
	case internal.InRange(hclk, 20*MHz, 35*MHz-1):
		return 0b010, nil // HCLK/16
	case internal.InRange(hclk, 35*MHz, 60*MHz-1):
		return 0b011, nil // HCLK/26
	case internal.InRange(hclk, 60*MHz, 100*MHz-1):
		return 0b000, nil // HCLK/42
	case internal.InRange(hclk, 100*MHz, 150*MHz-1):
		return 0b001, nil // HCLK/62
	case internal.InRange(hclk, 150*MHz, 168*MHz):
		return 0b100, nil // HCLK/102
	}
	return 0, errSMIClockRange
}

// SMI drives the station management interface of the Ethernet MAC. It
// implements [phy.MDIOBus] for Clause 22 devices.
//
// Only one transaction is ever outstanding: every Read and Write waits for
// the busy flag to clear before issuing and again before returning.
type SMI struct {
	Bus regs.Bus
	// MaxPolls bounds each busy flag wait. Zero selects DefaultMaxPolls.
	MaxPolls int
	// PollWait, if not nil, is called between two polls of the busy flag.
	PollWait func()
	Logger   *slog.Logger

	cr  uint32
	txs int
}

// Setup programs the MDC clock divider for hclk and preselects phyAddr.
func (s *SMI) Setup(hclk uint32, phyAddr uint8) error {
	cr, err := ClockRange(hclk)
	if err != nil {
		return err
	}
	if phyAddr > 31 {
		return errSMIAddr
	}
	if err = s.waitIdle(); err != nil {
		return err
	}
	s.cr = cr
	miiar := regs.At(s.Bus, stm32f4.ETH_MACMIIAR)
	miiar.Modify(func(v uint32) uint32 {
		v = stm32f4.ETH_MACMIIAR_CR.Put(v, cr)
		return stm32f4.ETH_MACMIIAR_PA.Put(v, uint32(phyAddr))
	})
	s.trace("smi:setup", slog.Uint64("cr", uint64(cr)), slog.Uint64("pa", uint64(phyAddr)))
	return nil
}

// Transactions returns the number of transactions issued.
func (s *SMI) Transactions() int { return s.txs }

// Read implements [phy.MDIOBus].
func (s *SMI) Read(phyAddr, devAddr uint8, regAddr uint16) (uint16, error) {
	if err := s.checkAddr(phyAddr, devAddr, regAddr); err != nil {
		return 0, err
	}
	if err := s.waitIdle(); err != nil {
		return 0, err
	}
	s.issue(phyAddr, regAddr, false)
	if err := s.waitIdle(); err != nil {
		return 0, err
	}
	value := uint16(regs.At(s.Bus, stm32f4.ETH_MACMIIDR).Read(stm32f4.ETH_MACMIIDR_MD))
	s.trace("smi:read", slog.Uint64("reg", uint64(regAddr)), slog.Uint64("val", uint64(value)))
	return value, nil
}

// Write implements [phy.MDIOBus].
func (s *SMI) Write(phyAddr, devAddr uint8, regAddr, value uint16) error {
	if err := s.checkAddr(phyAddr, devAddr, regAddr); err != nil {
		return err
	}
	if err := s.waitIdle(); err != nil {
		return err
	}
	regs.At(s.Bus, stm32f4.ETH_MACMIIDR).Set(uint32(value))
	s.issue(phyAddr, regAddr, true)
	s.trace("smi:write", slog.Uint64("reg", uint64(regAddr)), slog.Uint64("val", uint64(value)))
	return s.waitIdle()
}

func (s *SMI) checkAddr(phyAddr, devAddr uint8, regAddr uint16) error {
	if devAddr != 0 {
		return ErrClause45
	} else if phyAddr > 31 || regAddr > 31 {
		return errSMIAddr
	}
	return nil
}

// issue starts a transaction. The caller must have observed the busy flag clear.
func (s *SMI) issue(phyAddr uint8, regAddr uint16, write bool) {
	v := stm32f4.ETH_MACMIIAR_CR.Put(0, s.cr)
	v = stm32f4.ETH_MACMIIAR_PA.Put(v, uint32(phyAddr))
	v = stm32f4.ETH_MACMIIAR_MR.Put(v, uint32(regAddr))
	if write {
		v |= stm32f4.ETH_MACMIIAR_MW
	}
	regs.At(s.Bus, stm32f4.ETH_MACMIIAR).Set(v | stm32f4.ETH_MACMIIAR_MB)
	s.txs++
}

func (s *SMI) waitIdle() error {
	maxPolls := s.MaxPolls
	if maxPolls <= 0 {
		maxPolls = DefaultMaxPolls
	}
	miiar := regs.At(s.Bus, stm32f4.ETH_MACMIIAR)
	for i := 0; i < maxPolls; i++ {
		if !miiar.HasBits(stm32f4.ETH_MACMIIAR_MB) {
			return nil
		}
		if s.PollWait != nil {
			s.PollWait()
		}
	}
	return ErrSMITimeout
}

func (s *SMI) trace(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(s.Logger, internal.LevelTrace, msg, attrs...)
}
