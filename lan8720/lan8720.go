// Package lan8720 brings up a LAN8720 Ethernet PHY transceiver over its
// station management interface (SMI/MDIO).
//
// The LAN8720 is a low-power 10BASE-T/100BASE-TX Ethernet PHY commonly used
// with RMII (Reduced Media Independent Interface) to connect microcontrollers
// to Ethernet networks. Its power-on configuration is latched from strap pins
// that double as RMII signals; this package overrides that configuration
// through the Special Modes register and soft resets the PHY so it takes effect.
package lan8720

import (
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/soypat/f4lan/internal"
	"github.com/soypat/lneto/phy"
)

// Identifier register values of a LAN8720. The low nibble of PHYID2 holds the
// silicon revision and is not checked.
const (
	ExpectedID1 = 0x0007
	ExpectedID2 = 0xC0F0
	ID2Mask     = 0xFFF0
)

// regSMR is the Special Modes register. Its MODE field is loaded into BMCR
// on soft reset.
const regSMR = 0x12

// Mode selects the transceiver configuration the PHY takes on soft reset.
// The zero value is ModeAllCapable.
type Mode uint8

const (
	ModeAllCapable    Mode = iota // All capable, autonegotiation enabled
	Mode10HDX                     // 10BASE-T half duplex, autonegotiation disabled
	Mode10FDX                     // 10BASE-T full duplex, autonegotiation disabled
	Mode100HDX                    // 100BASE-TX half duplex, autonegotiation disabled
	Mode100FDX                    // 100BASE-TX full duplex, autonegotiation disabled
	Mode100HDXAutoneg             // 100BASE-TX half duplex advertised, autonegotiation enabled
	ModePowerDown                 // Power down
)

// modeBits maps Mode to the Special Modes register MODE field.
var modeBits = [...]uint16{
	ModeAllCapable:    0b111,
	Mode10HDX:         0b000,
	Mode10FDX:         0b001,
	Mode100HDX:        0b010,
	Mode100FDX:        0b011,
	Mode100HDXAutoneg: 0b100,
	ModePowerDown:     0b110,
}

// smrReserved is bit 14 of the Special Modes register which must be written as 1.
const smrReserved = 1 << 14

// Valid reports whether m is one of the defined modes.
func (m Mode) Valid() bool { return int(m) < len(modeBits) }

// SMR returns the Special Modes register value for mode at phyAddr.
// For ModeAllCapable at address 0 this is 0x40E0. Modes that are not
// [Mode.Valid] encode as ModeAllCapable.
func (m Mode) SMR(phyAddr uint8) uint16 {
	bits := modeBits[ModeAllCapable]
	if m.Valid() {
		bits = modeBits[m]
	}
	return smrReserved | bits<<5 | uint16(phyAddr&0x1f)
}

// Default bounds of the reset completion poll.
const (
	DefaultMaxResetPolls = 5000
)

// Config holds the configuration parameters for bringing up a LAN8720 device.
type Config struct {
	// PHYAddr is the SMI address of the PHY. It is fixed by strap pins on
	// the board. Valid range is 0-31.
	PHYAddr uint8
	// Mode is written to the Special Modes register before the soft reset.
	Mode Mode
	// MaxResetPolls bounds the number of BMCR reads waiting for the soft
	// reset to complete. Zero selects DefaultMaxResetPolls.
	MaxResetPolls int
	// PollWait, if not nil, is called between two reset completion polls.
	PollWait func()
	// Logger receives diagnostic read-back values. May be nil.
	Logger *slog.Logger
}

// Identity holds the two identifier registers read back from the PHY.
type Identity struct {
	ID1 uint16
	ID2 uint16
}

// OUI returns the 22 significant bits of the organizationally unique
// identifier stored across PHYID1 and PHYID2.
func (id Identity) OUI() uint32 {
	return uint32(id.ID1)<<6 | uint32(id.ID2>>10)
}

// Model returns the 6-bit model number.
func (id Identity) Model() uint8 { return uint8(id.ID2>>4) & 0x3f }

// Revision returns the 4-bit silicon revision.
func (id Identity) Revision() uint8 { return uint8(id.ID2) & 0xf }

func (id Identity) String() string {
	return "PHYID1=0x" + strconv.FormatUint(uint64(id.ID1), 16) + " PHYID2=0x" + strconv.FormatUint(uint64(id.ID2), 16)
}

// CheckIdentity returns nil if id1 and id2 identify a LAN8720. The revision
// bits of id2 are ignored. The returned error wraps ErrUnexpectedPHYID.
func CheckIdentity(id1, id2 uint16) error {
	if id1 != ExpectedID1 || id2&ID2Mask != ExpectedID2 {
		return &IDError{Got: Identity{ID1: id1, ID2: id2}}
	}
	return nil
}

var (
	// ErrUnexpectedPHYID means the PHY identifier did not match a LAN8720:
	// wrong PHY address, unpowered PHY, wiring fault or wrong board.
	ErrUnexpectedPHYID = errors.New("unexpected PHY identifier")
	// ErrResetTimeout means the PHY soft reset bit did not clear in time.
	ErrResetTimeout = errors.New("PHY reset timeout")
	errInvalidAddr  = errors.New("invalid PHY address")
	errInvalidMode  = errors.New("invalid PHY mode")
)

// IDError is returned when the PHY identifier does not match.
type IDError struct {
	Got Identity
}

func (e *IDError) Error() string {
	return ErrUnexpectedPHYID.Error() + ": " + e.Got.String()
}

func (e *IDError) Unwrap() error { return ErrUnexpectedPHYID }

// PHY represents a LAN8720 Ethernet PHY. It wraps the generic PHY device
// from the phy package and provides LAN8720-specific functionality.
// Use Configure to initialize the device before use.
type PHY struct {
	phy.Device
	id         Identity
	bootStatus phy.BMSR
	resetPolls int
	log        *slog.Logger
}

// Configure identifies the PHY, overrides its strap configuration and soft
// resets it, waiting for the reset to complete. The sequence is:
//  1. Read PHYID1 and check it.
//  2. Read PHYID2 and check it.
//  3. Read BMSR for diagnostics.
//  4. Write the Special Modes register with cfg.Mode.
//  5. Write BMCR with the soft reset bit set.
//  6. Read BMCR until the reset bit clears.
//
// The mdio bus must serialize transactions. No register is written unless
// both identifier checks pass.
func (d *PHY) Configure(mdio phy.MDIOBus, cfg Config) (Identity, error) {
	if cfg.PHYAddr > 31 {
		return Identity{}, errInvalidAddr
	} else if !cfg.Mode.Valid() {
		return Identity{}, errInvalidMode
	}
	err := d.Device.ConfigureAs22(mdio, cfg.PHYAddr)
	if err != nil {
		return Identity{}, err
	}
	d.log = cfg.Logger
	d.id = Identity{}
	d.resetPolls = 0

	id1, err := d.ID1()
	if err != nil {
		return Identity{}, err
	}
	d.id.ID1 = id1
	internal.LogAttrs(d.log, slog.LevelInfo, "lan8720:id1", slog.Uint64("val", uint64(id1)))
	if id1 != ExpectedID1 {
		return d.id, CheckIdentity(id1, 0)
	}
	id2, err := d.ID2()
	if err != nil {
		return d.id, err
	}
	d.id.ID2 = id2
	internal.LogAttrs(d.log, slog.LevelInfo, "lan8720:id2", slog.Uint64("val", uint64(id2)))
	if err = CheckIdentity(id1, id2); err != nil {
		return d.id, err
	}

	bsr, err := d.BasicStatus()
	if err != nil {
		return d.id, err
	}
	d.bootStatus = bsr
	internal.LogAttrs(d.log, slog.LevelInfo, "lan8720:bmsr", slog.Uint64("val", uint64(bsr)))

	smr := cfg.Mode.SMR(cfg.PHYAddr)
	err = mdio.Write(cfg.PHYAddr, 0, regSMR, smr)
	if err != nil {
		return d.id, err
	}
	d.debug("lan8720:smr", slog.Uint64("val", uint64(smr)))
	err = mdio.Write(cfg.PHYAddr, 0, phy.AddrBMCR, uint16(phy.BMCRReset))
	if err != nil {
		return d.id, err
	}
	err = d.waitReset(cfg)
	if err != nil {
		return d.id, err
	}
	internal.LogAttrs(d.log, slog.LevelInfo, "lan8720:ready",
		slog.Uint64("id1", uint64(d.id.ID1)),
		slog.Uint64("id2", uint64(d.id.ID2)),
		slog.Int("resetpolls", d.resetPolls),
	)
	return d.id, nil
}

// waitReset reads BMCR until the self clearing reset bit reads back clear.
func (d *PHY) waitReset(cfg Config) error {
	maxPolls := cfg.MaxResetPolls
	if maxPolls <= 0 {
		maxPolls = DefaultMaxResetPolls
	}
	for d.resetPolls < maxPolls {
		d.resetPolls++
		ctl, err := d.BasicControl()
		if err != nil {
			return err
		}
		if ctl&phy.BMCRReset == 0 {
			d.debug("lan8720:bmcr", slog.Uint64("val", uint64(ctl)))
			return nil
		}
		if cfg.PollWait != nil {
			cfg.PollWait()
		}
	}
	return ErrResetTimeout
}

// Identity returns the identifier read by the last Configure call.
func (d *PHY) Identity() Identity { return d.id }

// BootStatus returns the BMSR value read for diagnostics during Configure.
func (d *PHY) BootStatus() phy.BMSR { return d.bootStatus }

// ResetPolls returns the number of BMCR reads the last Configure needed to
// observe the end of the soft reset.
func (d *PHY) ResetPolls() int { return d.resetPolls }

// WaitAutoNegotiation waits for auto-negotiation to complete and link to establish.
// The timeout specifies the maximum duration to wait. On success, returns the
// negotiated link mode. Returns an error if timeout expires or PHY communication fails.
//
// It is suggested the timeout be at least 2 seconds to give LAN8720 enough time to autonegotiate.
func (d *PHY) WaitAutoNegotiation(timeout time.Duration) (phy.LinkMode, error) {
	deadline := time.Now().Add(timeout)
	linkUp, err := d.Device.WaitForLinkWithDeadline(deadline)
	if err != nil {
		return phy.LinkDown, err
	}
	if !linkUp {
		return phy.LinkDown, errors.New("auto-negotiation timeout")
	}
	return d.Device.NegotiatedLink()
}

func (d *PHY) debug(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(d.log, slog.LevelDebug, msg, attrs...)
}
