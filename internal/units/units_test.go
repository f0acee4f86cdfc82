package units

import "testing"

func TestTimecentsToSecondsSentinel(t *testing.T) {
	if s := TimecentsToSeconds(-12000); s != 0 {
		t.Fatalf("expected 0, got %v", s)
	}
	if s := TimecentsToSeconds(-20000); s != 0 {
		t.Fatalf("expected 0 below sentinel, got %v", s)
	}
}

func TestTimecentsToSecondsZero(t *testing.T) {
	if s := TimecentsToSeconds(0); s != 1 {
		t.Fatalf("expected 1 second at 0 timecents, got %v", s)
	}
}

func TestAbsCentsToHzReferencePitch(t *testing.T) {
	hz := AbsCentsToHz(6900)
	if diff := hz - 440.0; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected 440Hz at 6900 cents, got %v", hz)
	}
}

func TestAbsCentsToHzOctaveUp(t *testing.T) {
	hz := AbsCentsToHz(6900 + 1200)
	if diff := hz - 880.0; diff > 1e-6 || diff < -1e-6 {
		t.Fatalf("expected 880Hz an octave up, got %v", hz)
	}
}

func TestCentibelsToGainZeroIsUnity(t *testing.T) {
	if g := CentibelsToGain(0); g != 1 {
		t.Fatalf("expected unity gain at 0cB, got %v", g)
	}
}

func TestCentibelsToGainMonotonicDecreasing(t *testing.T) {
	prev := CentibelsToGain(0)
	for _, cb := range []float64{10, 100, 500, 1000, 1440, 2000} {
		g := CentibelsToGain(cb)
		if g > prev {
			t.Fatalf("gain not monotonically decreasing at %vcB: %v > %v", cb, g, prev)
		}
		prev = g
	}
}

func TestCentibelsToGainMatchesFormulaBeyondTable(t *testing.T) {
	got := CentibelsToGain(2000)
	want := 1e-10 // 10^(-2000/200)
	if diff := got - want; diff > 1e-12 || diff < -1e-12 {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestDecibelToAmplitude(t *testing.T) {
	if a := DecibelToAmplitude(0); a != 1 {
		t.Fatalf("expected unity amplitude at 0dB, got %v", a)
	}
	if a := DecibelToAmplitude(-20); diffAbs(a, 0.1) > 1e-9 {
		t.Fatalf("expected 0.1 at -20dB, got %v", a)
	}
}

func diffAbs(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}
