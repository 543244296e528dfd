// bringupsim runs the STM32F407 clock and LAN8720 Ethernet bring-up against a
// simulated board and prints the register accesses it performed.
//
// Usage:
//
//	go run ./cmd/bringupsim
//	go run ./cmd/bringupsim -plan "hse=25000000 m=25 n=240 q=5 flash=3" -trace
//	go run ./cmd/bringupsim -phy-reset -1 -max-polls 200 -v debug
//	go run ./cmd/bringupsim -step
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"
	tty "github.com/mattn/go-tty"
	"github.com/soypat/f4lan"
	"github.com/soypat/f4lan/internal"
	"github.com/soypat/f4lan/rcc"
	"github.com/soypat/f4lan/regs/regsim"
	"github.com/soypat/f4lan/stm32f4/f4sim"
)

func main() {
	var (
		planFlag  = flag.String("plan", "", "clock plan overrides as key=value pairs: hse m n p q ahb apb1 apb2 flash css")
		verbosity = flag.String("v", "info", "log level (trace, debug, info, warn, error)")
		trace     = flag.Bool("trace", false, "print every register access")
		step      = flag.Bool("step", false, "print register accesses one at a time, press q to stop")
		maxPolls  = flag.Int("max-polls", 1000, "bound of every status poll")
		hseAfter  = flag.Int("hse", 3, "polls until HSE is ready, 0 never")
		pllAfter  = flag.Int("pll", 5, "polls until PLL is locked, 0 never")
		stuckSW   = flag.Bool("stuck-switch", false, "system clock switch never takes effect")
		miiBusy   = flag.Int("mii-busy", 2, "MACMIIAR reads with busy set per SMI transaction")
		miiStuck  = flag.Bool("mii-stuck", false, "SMI never completes")
		dmaLoads  = flag.Int("dma", 1, "DMABMR reads until DMA reset completes, -1 never")
		phyAddr   = flag.Uint("phy-addr", 0, "strapped SMI address of the simulated PHY")
		phyID1    = flag.String("phy-id1", "0x0007", "PHYID1 of the simulated PHY")
		phyReset  = flag.Int("phy-reset", 3, "BMCR reads with reset set after soft reset, -1 never")
		noPHY     = flag.Bool("no-phy", false, "leave the management bus undriven")
		linkWait  = flag.Duration("link-wait", time.Second, "time to wait for autonegotiation after bring-up")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags]\n\nRun the STM32F407 + LAN8720 bring-up on a simulated board.\n\nFlags:\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	level, err := parseLevel(*verbosity)
	if err != nil {
		fatalf("%v\n", err)
	}
	plan, err := parsePlan(rcc.Plan168MHz(), *planFlag)
	if err != nil {
		fatalf("plan: %v\n", err)
	}
	id1, err := strconv.ParseUint(*phyID1, 0, 16)
	if err != nil {
		fatalf("phy-id1: %v\n", err)
	}

	simcfg := f4sim.Config{
		HSEReadyAfter: *hseAfter,
		PLLReadyAfter: *pllAfter,
		SwitchStuck:   *stuckSW,
		MIIBusyLoads:  *miiBusy,
		MIIStuck:      *miiStuck,
		DMAResetLoads: *dmaLoads,
	}
	if !*noPHY {
		simcfg.PHY = f4sim.NewPHY(uint8(*phyAddr))
		simcfg.PHY.ResetPolls = *phyReset
		simcfg.PHY.Regs[2] = uint16(id1)
	}
	board := f4sim.New(simcfg)

	cfg := f4lan.DefaultConfig()
	cfg.Plan = plan
	cfg.MaxPolls = *maxPolls
	cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := plan.Validate(); err != nil {
		fmt.Printf("plan: %v\n", err)
	} else {
		fmt.Printf("plan: SYSCLK=%dMHz HCLK=%dMHz PCLK1=%dMHz PCLK2=%dMHz PLL48=%dMHz\n",
			plan.SysClk()/rcc.MHz, plan.HCLK()/rcc.MHz, plan.PCLK1()/rcc.MHz, plan.PCLK2()/rcc.MHz, plan.PLL48()/rcc.MHz)
	}
	start := time.Now()
	eb, id, initErr := f4lan.Bringup(&board.Bus, cfg)
	elapsed := time.Since(start)

	accesses := board.Bus.Trace()
	switch {
	case *step:
		err = stepTrace(&board.Bus, accesses)
		if err != nil {
			fatalf("step: %v\n", err)
		}
	case *trace:
		for i, a := range accesses {
			fmt.Printf("%5d %s\n", i, board.Bus.Format(a))
		}
	}
	for _, tx := range board.Transactions() {
		fmt.Println(tx)
	}
	hse, pll := board.StatusPolls()
	fmt.Printf("accesses=%d smi=%d hse-polls=%d pll-polls=%d in %s\n",
		len(accesses), len(board.Transactions()), hse, pll, elapsed.Round(time.Microsecond))
	for _, v := range board.Violations() {
		fmt.Printf("VIOLATION: %s\n", v)
	}
	if initErr != nil {
		fatalf("bring-up failed: %v\n", initErr)
	}
	fmt.Printf("ready: %s model=%#x rev=%d\n", id, id.Model(), id.Revision())
	link, err := eb.PHY().WaitAutoNegotiation(*linkWait)
	if err != nil {
		fmt.Printf("link: %v\n", err)
	} else {
		fmt.Printf("link: %s\n", link)
	}
	if len(board.Violations()) > 0 {
		os.Exit(2)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(1)
}

func parseLevel(s string) (slog.Level, error) {
	if strings.EqualFold(s, "trace") {
		return internal.LevelTrace, nil
	}
	var level slog.Level
	err := level.UnmarshalText([]byte(s))
	return level, err
}

var errPlanSyntax = errors.New("want key=value")

// parsePlan applies space separated key=value overrides to base. Values may
// be quoted and use any integer base prefix accepted by strconv.
func parsePlan(base rcc.Plan, s string) (rcc.Plan, error) {
	fields, err := shlex.Split(s)
	if err != nil {
		return base, err
	}
	p := base
	for _, field := range fields {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			return base, fmt.Errorf("%q: %w", field, errPlanSyntax)
		}
		if key == "css" {
			p.CSS, err = strconv.ParseBool(value)
			if err != nil {
				return base, err
			}
			continue
		}
		v, err := strconv.ParseUint(value, 0, planKeyBits(key))
		if err != nil {
			return base, fmt.Errorf("%s: %w", key, err)
		}
		switch key {
		case "hse":
			p.HSE = uint32(v)
		case "m":
			p.M = uint8(v)
		case "n":
			p.N = uint16(v)
		case "p":
			p.P = uint8(v)
		case "q":
			p.Q = uint8(v)
		case "ahb":
			p.AHBDiv = uint16(v)
		case "apb1":
			p.APB1Div = uint16(v)
		case "apb2":
			p.APB2Div = uint16(v)
		case "flash":
			p.FlashLatency = uint8(v)
		default:
			return base, fmt.Errorf("unknown plan key %q", key)
		}
	}
	return p, nil
}

// planKeyBits returns the width of the Plan field set by key.
func planKeyBits(key string) int {
	switch key {
	case "hse":
		return 32
	case "n", "ahb", "apb1", "apb2":
		return 16
	}
	return 8
}

// stepTrace prints accesses one keypress at a time.
func stepTrace(bus *regsim.Bus, accesses []regsim.Access) error {
	t, err := tty.Open()
	if err != nil {
		return err
	}
	defer t.Close()
	out := t.Output()
	fmt.Fprintf(out, "%d accesses. Any key steps, c continues, q stops.\r\n", len(accesses))
	stepping := true
	for i, a := range accesses {
		fmt.Fprintf(out, "%5d %s\r\n", i, bus.Format(a))
		if !stepping {
			continue
		}
		r, err := t.ReadRune()
		if err != nil {
			return err
		}
		switch r {
		case 'q':
			return nil
		case 'c':
			stepping = false
		}
	}
	return nil
}
