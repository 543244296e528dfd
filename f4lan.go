// Package f4lan brings an STM32F407 with a LAN8720 Ethernet PHY from power-on
// reset to a configured link: first the clock tree (package rcc), then the
// Ethernet MAC and PHY (package eth).
//
// Init must run exactly once, before any other code touches peripherals.
package f4lan

import (
	"errors"
	"log/slog"

	"github.com/soypat/f4lan/eth"
	"github.com/soypat/f4lan/internal"
	"github.com/soypat/f4lan/lan8720"
	"github.com/soypat/f4lan/rcc"
	"github.com/soypat/f4lan/regs"
	"github.com/soypat/f4lan/stm32f4"
)

var errInvalidLED = errors.New("invalid LED pin")

// Config holds the board wiring and bring-up parameters.
type Config struct {
	// Plan is the clock tree to switch to.
	Plan rcc.Plan
	// Board describes how the PHY is wired.
	Board eth.Board
	// PHY configures the LAN8720 strap override and reset wait.
	PHY lan8720.Config
	// ResetClocks returns the clock tree to its reset state before the clock
	// sequence. Set it when a runtime configured the clocks before main.
	ResetClocks bool
	// MaxPolls bounds every busy or ready flag poll. Zero selects the
	// package defaults.
	MaxPolls int
	// PollWait, if not nil, is called between two polls of a hardware flag.
	PollWait func()
	Logger   *slog.Logger
}

// DefaultConfig returns the configuration for an STM32F407 with an 8MHz
// crystal running at 168MHz and a LAN8720 at SMI address 0.
func DefaultConfig() Config {
	return Config{
		Plan:  rcc.Plan168MHz(),
		Board: eth.DefaultBoard(),
		PHY:   lan8720.Config{Mode: lan8720.ModeAllCapable},
	}
}

// Init runs the clock sequence followed by the Ethernet bring-up over bus.
// No Ethernet register is touched if the clock sequence fails. Errors are
// *rcc.Error or *eth.Error values wrapping the fault kind.
func Init(bus regs.Bus, cfg Config) (lan8720.Identity, error) {
	_, id, err := bringup(bus, cfg)
	return id, err
}

// Bringup runs Init and returns the Ethernet bring-up so the caller can keep
// using the PHY, for example to wait for link.
func Bringup(bus regs.Bus, cfg Config) (*eth.Bringup, lan8720.Identity, error) {
	return bringup(bus, cfg)
}

func bringup(bus regs.Bus, cfg Config) (*eth.Bringup, lan8720.Identity, error) {
	seq := rcc.Sequencer{
		Bus:      bus,
		MaxPolls: cfg.MaxPolls,
		PollWait: cfg.PollWait,
		Logger:   cfg.Logger,
	}
	if cfg.ResetClocks {
		if err := rcc.DeInit(bus, cfg.MaxPolls); err != nil {
			return nil, lan8720.Identity{}, err
		}
	}
	err := seq.Run(cfg.Plan)
	if err != nil {
		return nil, lan8720.Identity{}, err
	}
	if cfg.PHY.MaxResetPolls == 0 && cfg.MaxPolls > 0 {
		cfg.PHY.MaxResetPolls = cfg.MaxPolls
	}
	if cfg.PHY.PollWait == nil {
		cfg.PHY.PollWait = cfg.PollWait
	}
	eb := &eth.Bringup{
		Bus:      bus,
		Board:    cfg.Board,
		HCLK:     cfg.Plan.HCLK(),
		MaxPolls: cfg.MaxPolls,
		PollWait: cfg.PollWait,
		PHY:      cfg.PHY,
		Logger:   cfg.Logger,
	}
	id, err := eb.Run()
	if err != nil {
		return eb, id, err
	}
	internal.LogAttrs(cfg.Logger, slog.LevelInfo, "f4lan:ready",
		slog.Uint64("id1", uint64(id.ID1)),
		slog.Uint64("id2", uint64(id.ID2)),
		slog.Uint64("hclk", uint64(cfg.Plan.HCLK())),
	)
	return eb, id, nil
}

// Indicate configures led as a push-pull output and drives it high.
func Indicate(bus regs.Bus, led stm32f4.Pin) error {
	if !led.Valid() {
		return errInvalidLED
	}
	stm32f4.EnablePortClocks(bus, led)
	err := led.Configure(bus, stm32f4.PinConfig{Mode: stm32f4.ModeOutput, OType: stm32f4.PushPull})
	if err != nil {
		return err
	}
	led.High(bus)
	return nil
}
