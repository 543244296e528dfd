package eth

import (
	"errors"
	"testing"

	"github.com/soypat/f4lan/regs/regsim"
	"github.com/soypat/f4lan/stm32f4"
	"github.com/soypat/f4lan/stm32f4/f4sim"
)

func TestClockRange(t *testing.T) {
	tests := []struct {
		hclk uint32
		cr   uint32
		ok   bool
	}{
		{hclk: 19 * MHz},
		{hclk: 20 * MHz, cr: 0b010, ok: true},
		{hclk: 25 * MHz, cr: 0b010, ok: true},
		{hclk: 35 * MHz, cr: 0b011, ok: true},
		{hclk: 48 * MHz, cr: 0b011, ok: true},
		{hclk: 60 * MHz, cr: 0b000, ok: true},
		{hclk: 84 * MHz, cr: 0b000, ok: true},
		{hclk: 100 * MHz, cr: 0b001, ok: true},
		{hclk: 120 * MHz, cr: 0b001, ok: true},
		{hclk: 150 * MHz, cr: 0b100, ok: true},
		{hclk: 168 * MHz, cr: 0b100, ok: true},
		{hclk: 180 * MHz},
	}
	for _, tc := range tests {
		cr, err := ClockRange(tc.hclk)
		if tc.ok != (err == nil) {
			t.Errorf("%dHz: error %v", tc.hclk, err)
		} else if tc.ok && cr != tc.cr {
			t.Errorf("%dHz: CR=%#b, want %#b", tc.hclk, cr, tc.cr)
		}
	}
}

// newSMIBoard returns a simulated board with the MAC clocked and out of reset.
func newSMIBoard(cfg f4sim.Config) *f4sim.Board {
	board := f4sim.New(cfg)
	board.Bus.Poke(stm32f4.RCC_AHB1ENR, macClocks)
	return board
}

// checkSMIDiscipline walks the register trace and fails if a transaction was
// issued or its data read without first observing the busy flag clear.
func checkSMIDiscipline(t *testing.T, trace []regsim.Access) {
	t.Helper()
	idle := true // Last observation of MACMIIAR.MB.
	for i, a := range trace {
		switch {
		case a.Addr == stm32f4.ETH_MACMIIAR && a.Op == regsim.OpLoad:
			idle = a.Value&stm32f4.ETH_MACMIIAR_MB == 0
		case a.Addr == stm32f4.ETH_MACMIIAR && a.Op == regsim.OpStore && a.Value&stm32f4.ETH_MACMIIAR_MB != 0:
			if !idle {
				t.Fatalf("access %d: transaction issued while busy", i)
			}
			idle = false
		case a.Addr == stm32f4.ETH_MACMIIDR && !idle:
			t.Fatalf("access %d: data register accessed while busy", i)
		}
	}
}

func TestSMIReadWrite(t *testing.T) {
	board := newSMIBoard(f4sim.DefaultConfig())
	smi := SMI{Bus: &board.Bus}
	err := smi.Setup(168*MHz, 0)
	if err != nil {
		t.Fatal(err)
	}
	err = smi.Write(0, 0, 4, 0x01e1)
	if err != nil {
		t.Fatal(err)
	}
	v, err := smi.Read(0, 0, 4)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0x01e1 {
		t.Errorf("read back %#04x", v)
	}
	id1, _ := smi.Read(0, 0, 2)
	if id1 != f4sim.LAN8720ID1 {
		t.Errorf("ID1=%#04x", id1)
	}
	if smi.Transactions() != 3 || len(board.Transactions()) != 3 {
		t.Errorf("transactions %d/%d, want 3", smi.Transactions(), len(board.Transactions()))
	}
	if got := stm32f4.ETH_MACMIIAR_CR.Get(board.Bus.Peek(stm32f4.ETH_MACMIIAR)); got != 0b100 {
		t.Errorf("CR=%#b", got)
	}
	if v := board.Violations(); len(v) != 0 {
		t.Errorf("violations: %v", v)
	}
	checkSMIDiscipline(t, board.Bus.Trace())
}

func TestSMIAddressing(t *testing.T) {
	board := newSMIBoard(f4sim.DefaultConfig())
	smi := SMI{Bus: &board.Bus}
	if err := smi.Setup(168*MHz, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := smi.Read(0, 1, 0); !errors.Is(err, ErrClause45) {
		t.Errorf("clause 45 read: %v", err)
	}
	if err := smi.Write(0, 0, 32, 0); err == nil {
		t.Error("register 32 accepted")
	}
	if _, err := smi.Read(32, 0, 0); err == nil {
		t.Error("PHY address 32 accepted")
	}
	if err := smi.Setup(10*MHz, 0); err == nil {
		t.Error("10MHz HCLK accepted")
	}
	if smi.Transactions() != 0 {
		t.Error("rejected access issued a transaction")
	}
	// No PHY answers at address 3.
	v, err := smi.Read(3, 0, 2)
	if err != nil || v != 0xffff {
		t.Errorf("undriven read %#04x %v", v, err)
	}
}

func TestSMITimeout(t *testing.T) {
	cfg := f4sim.DefaultConfig()
	cfg.MIIStuck = true
	board := newSMIBoard(cfg)
	waits := 0
	smi := SMI{Bus: &board.Bus, MaxPolls: 10, PollWait: func() { waits++ }}
	if err := smi.Setup(168*MHz, 0); err != nil {
		t.Fatal(err)
	}
	_, err := smi.Read(0, 0, 2)
	if !errors.Is(err, ErrSMITimeout) {
		t.Fatalf("want ErrSMITimeout, got %v", err)
	}
	if waits != 10 {
		t.Errorf("waits=%d", waits)
	}
	// The stuck transaction blocks the next one from being issued.
	err = smi.Write(0, 0, 0, 0x8000)
	if !errors.Is(err, ErrSMITimeout) {
		t.Fatalf("want ErrSMITimeout, got %v", err)
	}
	if smi.Transactions() != 1 {
		t.Errorf("transactions=%d, want 1", smi.Transactions())
	}
	if v := board.Violations(); len(v) != 0 {
		t.Errorf("violations: %v", v)
	}
	if len(board.PHY().Writes()) != 0 {
		t.Error("write reached PHY")
	}
}
