package main

import (
	"errors"
	"log/slog"
	"strconv"
	"testing"

	"github.com/soypat/f4lan/internal"
	"github.com/soypat/f4lan/rcc"
)

func TestParsePlan(t *testing.T) {
	base := rcc.Plan168MHz()
	p, err := parsePlan(base, `hse=25000000 m=25 n=240 q=5 'flash=3' css=false`)
	if err != nil {
		t.Fatal(err)
	}
	want := rcc.Plan{HSE: 25 * rcc.MHz, M: 25, N: 240, P: 2, Q: 5, AHBDiv: 1, APB1Div: 4, APB2Div: 2, FlashLatency: 3}
	if p != want {
		t.Errorf("got %+v, want %+v", p, want)
	}
	if err := p.Validate(); err != nil {
		t.Error(err)
	}
	p, err = parsePlan(base, "")
	if err != nil || p != base {
		t.Errorf("empty overrides changed plan: %+v %v", p, err)
	}
	p, err = parsePlan(base, "m=0x8 n=0o520")
	if err != nil || p.M != 8 || p.N != 336 {
		t.Errorf("prefixed integers: %+v %v", p, err)
	}

	bad := []string{"m", "m=x", "z=1", "css=maybe", `m="8`}
	for _, s := range bad {
		if _, err := parsePlan(base, s); err == nil {
			t.Errorf("%q: expected error", s)
		}
	}
	// Values wider than their field must not wrap into a valid plan.
	overflow := []string{"m=264", "p=258", "q=263", "flash=261", "n=65872", "apb1=65540", "hse=0x100000000"}
	for _, s := range overflow {
		p, err := parsePlan(base, s)
		if !errors.Is(err, strconv.ErrRange) {
			t.Errorf("%q: got %v, want range error", s, err)
		}
		if p != base {
			t.Errorf("%q: plan changed to %+v", s, p)
		}
	}
	if _, err := parsePlan(base, "m"); !errors.Is(err, errPlanSyntax) {
		t.Errorf("missing value: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		s    string
		want slog.Level
	}{
		{"trace", internal.LevelTrace},
		{"TRACE", internal.LevelTrace},
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"ERROR", slog.LevelError},
	}
	for _, tc := range tests {
		got, err := parseLevel(tc.s)
		if err != nil || got != tc.want {
			t.Errorf("%q: got %v %v", tc.s, got, err)
		}
	}
	if _, err := parseLevel("loud"); err == nil {
		t.Error("expected error")
	}
}
