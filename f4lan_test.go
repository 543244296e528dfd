package f4lan

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/soypat/f4lan/eth"
	"github.com/soypat/f4lan/internal"
	"github.com/soypat/f4lan/lan8720"
	"github.com/soypat/f4lan/rcc"
	"github.com/soypat/f4lan/stm32f4"
	"github.com/soypat/f4lan/stm32f4/f4sim"
	"github.com/soypat/lneto/phy"
)

func TestInit(t *testing.T) {
	var buf bytes.Buffer
	board := f4sim.New(f4sim.DefaultConfig())
	cfg := DefaultConfig()
	cfg.Logger = slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: internal.LevelTrace}))
	id, err := Init(&board.Bus, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := lan8720.CheckIdentity(id.ID1, id.ID2); err != nil {
		t.Error(err)
	}
	if v := board.Violations(); len(v) != 0 {
		t.Errorf("violations: %v", v)
	}
	if hse, pll := board.StatusPolls(); hse != 3 || pll != 5 {
		t.Errorf("status polls %d %d", hse, pll)
	}
	if cr := stm32f4.ETH_MACMIIAR_CR.Get(board.Bus.Peek(stm32f4.ETH_MACMIIAR)); cr != 0b100 {
		t.Errorf("SMI clock range %#b for 168MHz", cr)
	}
	logs := buf.String()
	for _, msg := range []string{"rcc:ready", "lan8720:id1", "lan8720:id2", "lan8720:bmsr", "eth:pinmux", "f4lan:ready"} {
		if !strings.Contains(logs, msg) {
			t.Errorf("missing %q log", msg)
		}
	}

	// Clocks are settled before the first Ethernet register access.
	firstETH, switched := -1, -1
	for i, a := range board.Bus.Trace() {
		if a.Addr >= stm32f4.ETHBase && firstETH < 0 {
			firstETH = i
		}
		if a.Addr == stm32f4.RCC_CFGR && stm32f4.RCC_CFGR_SWS.Get(a.Value) == stm32f4.SW_PLL && switched < 0 {
			switched = i
		}
	}
	if switched < 0 || firstETH < switched {
		t.Errorf("ETH accessed at %d before clock switch at %d", firstETH, switched)
	}
}

func TestInitClockFault(t *testing.T) {
	simcfg := f4sim.DefaultConfig()
	simcfg.HSEReadyAfter = 0
	board := f4sim.New(simcfg)
	cfg := DefaultConfig()
	cfg.MaxPolls = 20
	_, err := Init(&board.Bus, cfg)
	if !errors.Is(err, rcc.ErrOscillatorTimeout) {
		t.Fatalf("want oscillator timeout, got %v", err)
	}
	for _, a := range board.Bus.Trace() {
		if a.Addr >= stm32f4.ETHBase || a.Addr == stm32f4.RCC_AHB1ENR || a.Addr == stm32f4.SYSCFG_PMC {
			t.Fatalf("Ethernet bring-up ran after clock fault: %s", board.Bus.Format(a))
		}
	}
	if len(board.PHY().Writes()) != 0 || len(board.Transactions()) != 0 {
		t.Error("PHY accessed after clock fault")
	}
}

func TestInitEthernetFault(t *testing.T) {
	simcfg := f4sim.DefaultConfig()
	simcfg.PHY.Regs[2] = 0x0181 // Not a LAN8720.
	board := f4sim.New(simcfg)
	_, err := Init(&board.Bus, DefaultConfig())
	var eerr *eth.Error
	if !errors.As(err, &eerr) || !errors.Is(err, eth.ErrUnexpectedPHYID) {
		t.Fatalf("want unexpected PHY ID, got %v", err)
	}
	if eerr.State != eth.StatePHYConfigure {
		t.Errorf("failed in %s", eerr.State)
	}
	// Clock tree stays up, the MAC is quiesced.
	if sws := stm32f4.RCC_CFGR_SWS.Get(board.Bus.Peek(stm32f4.RCC_CFGR)); sws != stm32f4.SW_PLL {
		t.Errorf("SWS=%d", sws)
	}
	if board.Bus.Peek(stm32f4.RCC_AHB1RSTR)&stm32f4.RCC_AHB1RSTR_ETHMACRST == 0 {
		t.Error("MAC not held in reset")
	}
}

func TestInitHCLKFromPlan(t *testing.T) {
	board := f4sim.New(f4sim.DefaultConfig())
	cfg := DefaultConfig()
	cfg.Plan = rcc.Plan{HSE: 25 * rcc.MHz, M: 25, N: 240, P: 2, Q: 5, AHBDiv: 1, APB1Div: 4, APB2Div: 2, FlashLatency: 3}
	if _, err := Init(&board.Bus, cfg); err != nil {
		t.Fatal(err)
	}
	if cr := stm32f4.ETH_MACMIIAR_CR.Get(board.Bus.Peek(stm32f4.ETH_MACMIIAR)); cr != 0b001 {
		t.Errorf("SMI clock range %#b for 120MHz", cr)
	}
}

func TestBringupLink(t *testing.T) {
	board := f4sim.New(f4sim.DefaultConfig())
	eb, _, err := Bringup(&board.Bus, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	mode, err := eb.PHY().WaitAutoNegotiation(time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if mode != phy.Link100FDX {
		t.Errorf("link %v", mode)
	}
}

func TestIndicate(t *testing.T) {
	board := f4sim.New(f4sim.DefaultConfig())
	led := stm32f4.P('D', 15)
	if err := Indicate(&board.Bus, led); err != nil {
		t.Fatal(err)
	}
	base := stm32f4.GPIOBase(led.Port)
	if board.Bus.Peek(base+stm32f4.GPIO_ODR) != 1<<15 {
		t.Error("LED off")
	}
	if mode := board.Bus.Peek(base+stm32f4.GPIO_MODER) >> 30; mode != uint32(stm32f4.ModeOutput) {
		t.Errorf("LED mode %d", mode)
	}
	if board.Bus.Peek(stm32f4.RCC_AHB1ENR)&(1<<stm32f4.PortD) == 0 {
		t.Error("GPIOD clock off")
	}
	if err := Indicate(&board.Bus, stm32f4.Pin{Port: 12}); err == nil {
		t.Error("invalid pin accepted")
	}
}

func TestInitResetClocks(t *testing.T) {
	board := f4sim.New(f4sim.DefaultConfig())
	if _, err := Init(&board.Bus, DefaultConfig()); err != nil {
		t.Fatal(err)
	}
	// Running from the PLL already, as after a runtime clock init.
	cfg := DefaultConfig()
	cfg.ResetClocks = true
	id, err := Init(&board.Bus, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if id.ID1 != f4sim.LAN8720ID1 {
		t.Errorf("identity %s", id)
	}
	if v := board.Violations(); len(v) != 0 {
		t.Errorf("violations: %v", v)
	}
}
