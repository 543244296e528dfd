package f4sim

import (
	"errors"

	"github.com/soypat/lneto/phy"
)

var _ phy.MDIOBus = (*PHY)(nil)

// LAN8720 identifier and vendor register values.
const (
	LAN8720ID1 = 0x0007
	LAN8720ID2 = 0xC0F1 // Model 0xF, revision 1.

	regSMR = 0x12 // Special modes register.
)

// PHY is a register level model of a LAN8720 transceiver. It implements
// [phy.MDIOBus] so it can be driven directly or through the simulated MAC.
type PHY struct {
	// Addr is the strapped SMI address the PHY answers to.
	Addr uint8
	// ResetPolls is the number of BMCR reads after a soft reset that still
	// return the reset bit set. Negative values keep the PHY in reset forever.
	ResetPolls int
	// Regs holds the 32 Clause 22 registers.
	Regs [32]uint16

	resetLeft int
	inReset   bool
	bmcrReads int
	writes    []RegWrite
}

// RegWrite is a recorded PHY register write.
type RegWrite struct {
	Reg   uint8
	Value uint16
}

// NewPHY returns a LAN8720 at addr with link up at 100M full duplex.
func NewPHY(addr uint8) *PHY {
	p := &PHY{Addr: addr}
	p.Regs[phy.AddrBMCR] = uint16(phy.BMCRSpeed100 | phy.BMCRANEnable | phy.BMCRFullDuplex)
	p.Regs[phy.AddrBMSR] = uint16(phy.BMSR100Full | phy.BMSR100Half | phy.BMSR10Full | phy.BMSR10Half |
		phy.BMSRANCap | phy.BMSRExtCap | phy.BMSRLinkStatus | phy.BMSRANComplete)
	p.Regs[2] = LAN8720ID1
	p.Regs[3] = LAN8720ID2
	p.Regs[phy.AddrANAR] = uint16(phy.NewANAR().With10M().With100M())
	p.Regs[phy.AddrANLPAR] = uint16(phy.NewANAR().With10M().With100M() | phy.ANARAck)
	p.Regs[regSMR] = 0x6000 | uint16(addr)
	return p
}

var errNoPHY = errors.New("no PHY at address")

// Read implements [phy.MDIOBus]. Addresses other than Addr read 0xffff as an
// undriven bus would.
func (p *PHY) Read(phyAddr, devAddr uint8, regAddr uint16) (uint16, error) {
	if phyAddr != p.Addr || devAddr != 0 || regAddr > 31 {
		return 0xffff, nil
	}
	if regAddr == phy.AddrBMCR {
		p.bmcrReads++
		if p.inReset {
			if p.resetLeft == 0 {
				p.inReset = false
				p.Regs[phy.AddrBMCR] &^= uint16(phy.BMCRReset)
			} else if p.resetLeft > 0 {
				p.resetLeft--
			}
		}
	}
	return p.Regs[regAddr], nil
}

// Write implements [phy.MDIOBus].
func (p *PHY) Write(phyAddr, devAddr uint8, regAddr, value uint16) error {
	if phyAddr != p.Addr || devAddr != 0 || regAddr > 31 {
		return errNoPHY
	}
	p.writes = append(p.writes, RegWrite{Reg: uint8(regAddr), Value: value})
	switch regAddr {
	case 1, 2, 3:
		return nil // Read only.
	case phy.AddrBMCR:
		if value&uint16(phy.BMCRReset) != 0 {
			p.softReset()
			return nil
		}
	}
	p.Regs[regAddr] = value
	return nil
}

// softReset reloads BMCR from the special modes register MODE field.
func (p *PHY) softReset() {
	bmcr := phy.BMCRReset
	switch (p.Regs[regSMR] >> 5) & 0b111 {
	case 0b000:
	case 0b001:
		bmcr |= phy.BMCRFullDuplex
	case 0b010:
		bmcr |= phy.BMCRSpeed100
	case 0b011:
		bmcr |= phy.BMCRSpeed100 | phy.BMCRFullDuplex
	case 0b100:
		bmcr |= phy.BMCRSpeed100 | phy.BMCRANEnable
	case 0b110:
		bmcr |= phy.BMCRPowerDown
	default:
		bmcr |= phy.BMCRSpeed100 | phy.BMCRFullDuplex | phy.BMCRANEnable
	}
	p.Regs[phy.AddrBMCR] = uint16(bmcr)
	p.inReset = true
	p.resetLeft = p.ResetPolls
	p.bmcrReads = 0
}

// BMCRReads returns the number of BMCR reads since the last soft reset.
func (p *PHY) BMCRReads() int { return p.bmcrReads }

// Writes returns the register writes received in order.
func (p *PHY) Writes() []RegWrite { return p.writes }

// InReset reports whether a soft reset is still in progress.
func (p *PHY) InReset() bool { return p.inReset }
