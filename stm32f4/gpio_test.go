package stm32f4

import (
	"testing"

	"github.com/soypat/f4lan/regs/regsim"
)

func TestPinString(t *testing.T) {
	tests := []struct {
		pin  Pin
		want string
	}{
		{P('A', 1), "PA1"},
		{P('B', 12), "PB12"},
		{P('E', 2), "PE2"},
		{P('D', 15), "PD15"},
	}
	for _, tc := range tests {
		if got := tc.pin.String(); got != tc.want {
			t.Errorf("got %q, want %q", got, tc.want)
		}
		if !tc.pin.Valid() {
			t.Errorf("%s not valid", tc.want)
		}
	}
	if (Pin{Port: NumPorts}).Valid() || (Pin{Num: 16}).Valid() {
		t.Error("out of range pin reported valid")
	}
}

func TestPinConfigureAltFunc(t *testing.T) {
	var bus regsim.Bus
	pin := P('B', 12)
	base := GPIOBase(PortB)
	err := pin.Configure(&bus, PinConfig{Mode: ModeAltFunc, OType: OpenDrain, Speed: SpeedVeryHigh, Pull: PullUp, AltFun: 11})
	if err != nil {
		t.Fatal(err)
	}
	checks := []struct {
		name string
		off  uintptr
		want uint32
	}{
		{"AFRH", GPIO_AFRH, 11 << 16},
		{"AFRL", GPIO_AFRL, 0},
		{"OTYPER", GPIO_OTYPER, 1 << 12},
		{"OSPEEDR", GPIO_OSPEEDR, 0b11 << 24},
		{"PUPDR", GPIO_PUPDR, 0b01 << 24},
		{"MODER", GPIO_MODER, 0b10 << 24},
	}
	for _, c := range checks {
		if got := bus.Peek(base + c.off); got != c.want {
			t.Errorf("%s=%#x, want %#x", c.name, got, c.want)
		}
	}
	trace := bus.Trace()
	if last := trace[len(trace)-1]; last.Op != regsim.OpStore || last.Addr != base+GPIO_MODER {
		t.Errorf("mode not written last: %s", bus.Format(last))
	}
}

func TestPinConfigureKeepsNeighbours(t *testing.T) {
	var bus regsim.Bus
	base := GPIOBase(PortA)
	bus.Poke(base+GPIO_MODER, 0xA800_0000) // Debug pins after reset.
	err := P('A', 1).Configure(&bus, PinConfig{Mode: ModeAltFunc, AltFun: 11})
	if err != nil {
		t.Fatal(err)
	}
	if got := bus.Peek(base + GPIO_MODER); got != 0xA800_0008 {
		t.Errorf("MODER=%#x", got)
	}
	if got := bus.Peek(base + GPIO_AFRL); got != 11<<4 {
		t.Errorf("AFRL=%#x", got)
	}
}

func TestPinConfigureInvalid(t *testing.T) {
	var bus regsim.Bus
	bad := []struct {
		pin Pin
		cfg PinConfig
	}{
		{Pin{Port: NumPorts}, PinConfig{}},
		{P('A', 16), PinConfig{}},
		{P('A', 1), PinConfig{Mode: ModeAnalog + 1}},
		{P('A', 1), PinConfig{Mode: ModeAltFunc, AltFun: 16}},
	}
	for _, tc := range bad {
		if err := tc.pin.Configure(&bus, tc.cfg); err == nil {
			t.Errorf("%+v %+v: expected error", tc.pin, tc.cfg)
		}
	}
	if len(bus.Trace()) != 0 {
		t.Error("invalid configuration touched registers")
	}
}

func TestPinSetAndPortClocks(t *testing.T) {
	var bus regsim.Bus
	pin := P('E', 2)
	pin.High(&bus)
	pin.Low(&bus)
	bsrr := bus.Stores(GPIOBase(PortE) + GPIO_BSRR)
	if len(bsrr) != 2 || bsrr[0] != 1<<2 || bsrr[1] != 1<<18 {
		t.Errorf("BSRR stores %#x", bsrr)
	}
	EnablePortClocks(&bus, P('A', 1), P('C', 4), P('A', 7), pin)
	want := uint32(1<<PortA | 1<<PortC | 1<<PortE)
	if got := bus.Peek(RCC_AHB1ENR); got != want {
		t.Errorf("AHB1ENR=%#x, want %#x", got, want)
	}
}
