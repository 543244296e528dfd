package rcc

import (
	"errors"
	"math"
	"testing"
)

func TestPlan168MHz(t *testing.T) {
	p := Plan168MHz()
	if err := p.Validate(); err != nil {
		t.Fatal(err)
	}
	freqs := []struct {
		name string
		got  uint32
		want uint32
	}{
		{"VCOInput", p.VCOInput(), 1 * MHz},
		{"VCO", p.VCO(), 336 * MHz},
		{"SysClk", p.SysClk(), 168 * MHz},
		{"PLL48", p.PLL48(), 48 * MHz},
		{"HCLK", p.HCLK(), 168 * MHz},
		{"PCLK1", p.PCLK1(), 42 * MHz},
		{"PCLK2", p.PCLK2(), 84 * MHz},
	}
	for _, f := range freqs {
		if f.got != f.want {
			t.Errorf("%s=%d, want %d", f.name, f.got, f.want)
		}
	}
}

func TestPlanFrequenciesNoWrap(t *testing.T) {
	p := Plan168MHz()
	p.HSE = 26 * MHz
	p.M = 2
	p.N = 432 // 5.616GHz VCO.
	if p.VCO() != math.MaxUint32 {
		t.Errorf("VCO=%d, want saturation", p.VCO())
	}
	if p.SysClk() != 2808*MHz || p.HCLK() != 2808*MHz {
		t.Errorf("SysClk=%d HCLK=%d, want 2808MHz", p.SysClk(), p.HCLK())
	}
	if p.PCLK1() != 702*MHz || p.PCLK2() != 1404*MHz {
		t.Errorf("PCLK1=%d PCLK2=%d", p.PCLK1(), p.PCLK2())
	}
	if err := p.Validate(); !errors.Is(err, ErrInvalidPlan) {
		t.Errorf("got %v, want %v", err, ErrInvalidPlan)
	}
}

func TestPlanValidate(t *testing.T) {
	mod := func(fn func(p *Plan)) Plan {
		p := Plan168MHz()
		fn(&p)
		return p
	}
	tests := []struct {
		name  string
		plan  Plan
		valid bool
	}{
		{"168MHz", Plan168MHz(), true},
		{"120MHz 25MHz crystal", Plan{HSE: 25 * MHz, M: 25, N: 240, P: 2, Q: 5, AHBDiv: 1, APB1Div: 4, APB2Div: 2, FlashLatency: 3}, true},
		{"zero", Plan{}, false},
		{"HSE low", mod(func(p *Plan) { p.HSE = 3 * MHz; p.M = 3 }), false},
		{"HSE high", mod(func(p *Plan) { p.HSE = 27 * MHz }), false},
		{"M low", mod(func(p *Plan) { p.M = 1 }), false},
		{"M high", mod(func(p *Plan) { p.M = 64 }), false},
		{"N low", mod(func(p *Plan) { p.N = 49 }), false},
		{"N high", mod(func(p *Plan) { p.N = 433 }), false},
		{"P odd", mod(func(p *Plan) { p.P = 3 }), false},
		{"Q low", mod(func(p *Plan) { p.Q = 1 }), false},
		{"Q high", mod(func(p *Plan) { p.Q = 16 }), false},
		{"VCO input high", mod(func(p *Plan) { p.M = 2; p.N = 84 }), false},
		{"SYSCLK high", mod(func(p *Plan) { p.N = 432; p.Q = 9 }), false},
		{"PLL48 high", mod(func(p *Plan) { p.Q = 6 }), false},
		{"PCLK1 high", mod(func(p *Plan) { p.APB1Div = 2 }), false},
		{"PCLK2 high", mod(func(p *Plan) { p.APB2Div = 1 }), false},
		{"AHB div", mod(func(p *Plan) { p.AHBDiv = 3 }), false},
		{"APB div", mod(func(p *Plan) { p.APB1Div = 32 }), false},
		{"too few wait states", mod(func(p *Plan) { p.FlashLatency = 4 }), false},
		{"too many wait states", mod(func(p *Plan) { p.FlashLatency = 8 }), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.plan.Validate()
			if tc.valid && err != nil {
				t.Fatalf("unexpected error: %v", err)
			} else if !tc.valid && !errors.Is(err, ErrInvalidPlan) {
				t.Fatalf("want ErrInvalidPlan, got %v", err)
			}
		})
	}
}

// Every plan accepted by Validate yields frequencies inside the rated bounds.
func TestPlanValidateBounds(t *testing.T) {
	p := Plan{HSE: 8 * MHz, Q: 15, AHBDiv: 1, APB1Div: 4, APB2Div: 2, FlashLatency: 7}
	accepted := 0
	for m := uint8(2); m <= 63; m++ {
		for n := uint16(50); n <= 432; n++ {
			for _, pdiv := range []uint8{2, 4, 6, 8} {
				p.M, p.N, p.P = m, n, pdiv
				if p.Validate() != nil {
					continue
				}
				accepted++
				if vco := p.VCO(); vco < minVCO || vco > maxVCO {
					t.Fatalf("%+v: VCO %d out of bounds", p, vco)
				}
				if in := p.VCOInput(); in < minVCOInput || in > maxVCOInput {
					t.Fatalf("%+v: VCO input %d out of bounds", p, in)
				}
				if sys := p.SysClk(); sys > maxSysClk {
					t.Fatalf("%+v: SYSCLK %d out of bounds", p, sys)
				}
			}
		}
	}
	if accepted == 0 {
		t.Fatal("no plan accepted")
	}
}

func TestPrescalerBits(t *testing.T) {
	hpre := map[uint16]uint32{1: 0, 2: 0b1000, 4: 0b1001, 16: 0b1011, 64: 0b1100, 512: 0b1111}
	for div, want := range hpre {
		if got := hpreBits(div); got != want {
			t.Errorf("hpreBits(%d)=%#b, want %#b", div, got, want)
		}
	}
	ppre := map[uint16]uint32{1: 0, 2: 0b100, 4: 0b101, 8: 0b110, 16: 0b111}
	for div, want := range ppre {
		if got := ppreBits(div); got != want {
			t.Errorf("ppreBits(%d)=%#b, want %#b", div, got, want)
		}
	}
}
