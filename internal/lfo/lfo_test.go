package lfo

import (
	"math"
	"testing"
)

func TestValueBeforeStartIsZero(t *testing.T) {
	if v := Value(1.0, 5.0, 0.5); v != 0 {
		t.Fatalf("expected 0 before start, got %v", v)
	}
}

func TestValueTriangleShapeAtKnownPhases(t *testing.T) {
	cases := []struct {
		now  float64
		want float64
	}{
		{0.0, -1.0},
		{0.25, 0.0},
		{0.5, 1.0},
		{0.75, 0.0},
		{1.0, -1.0},
	}
	for _, c := range cases {
		got := Value(0, 1.0, c.now)
		if math.Abs(got-c.want) > 1e-9 {
			t.Fatalf("at t=%v: got %v want %v", c.now, got, c.want)
		}
	}
}

func TestValueRespectsStartOffset(t *testing.T) {
	got := Value(2.0, 1.0, 2.0)
	if math.Abs(got-(-1.0)) > 1e-9 {
		t.Fatalf("expected phase-zero triangle value at start, got %v", got)
	}
}

func TestValueZeroFreqIsZero(t *testing.T) {
	if v := Value(0, 0, 1); v != 0 {
		t.Fatalf("expected 0 at zero frequency, got %v", v)
	}
}

func TestConfigSampleAppliesDelayAndDepth(t *testing.T) {
	c := Config{DelaySec: 0.5, FreqHz: 1.0, Depth: 2.0}
	if v := c.Sample(0, 0.3); v != 0 {
		t.Fatalf("expected 0 during delay, got %v", v)
	}
	v := c.Sample(0, 0.5)
	if math.Abs(v-(-2.0)) > 1e-9 {
		t.Fatalf("expected -2.0 at delayed phase zero, got %v", v)
	}
}

func TestConfigZeroDepthIsZero(t *testing.T) {
	c := Config{FreqHz: 5.0, Depth: 0}
	if v := c.Sample(0, 10); v != 0 {
		t.Fatalf("expected 0 at zero depth, got %v", v)
	}
}
