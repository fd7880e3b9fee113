package gesture

import (
	"math"
	"testing"

	"github.com/panhanyan804/AI-Christmas-Tree/internal/detector"
)

const epsilon = 1e-12

func TestDeriver_InitialDefaults(t *testing.T) {
	d := NewDeriver(DefaultTuning())

	sig := d.Snapshot()
	if sig.Openness != 1.0 {
		t.Errorf("initial Openness = %v, want 1.0", sig.Openness)
	}
	if sig.CenterX != 0 || sig.CenterY != 0 {
		t.Errorf("initial center = (%v, %v), want (0, 0)", sig.CenterX, sig.CenterY)
	}
}

func TestOpenness_MeanOfFingertipDistances(t *testing.T) {
	hand := detector.HandLandmarks{}
	hand.Points[detector.Wrist] = detector.Point3D{X: 0, Y: 0, Z: 0}

	// Four fingertips at hand-picked offsets with known distances:
	// 1, 2, 3 and 5 from the wrist, mean 2.75.
	hand.Points[detector.IndexTip] = detector.Point3D{X: 1, Y: 0, Z: 0}
	hand.Points[detector.MiddleTip] = detector.Point3D{X: 0, Y: 2, Z: 0}
	hand.Points[detector.RingTip] = detector.Point3D{X: 0, Y: 0, Z: 3}
	hand.Points[detector.PinkyTip] = detector.Point3D{X: 3, Y: 4, Z: 0}

	d := NewDeriver(DefaultTuning())
	d.Observe(&hand)

	got := d.Snapshot().Openness
	if math.Abs(got-2.75) > epsilon {
		t.Errorf("Openness = %v, want 2.75", got)
	}
}

func TestOpenness_Fixtures(t *testing.T) {
	d := NewDeriver(DefaultTuning())

	fist := detector.FistLandmarks()
	d.Observe(&fist)
	closed := d.Snapshot().Openness

	open := detector.OpenPalmLandmarks()
	d.Observe(&open)
	spread := d.Snapshot().Openness

	if closed >= DefaultTuning().ClosedThreshold {
		t.Errorf("fist openness = %v, want < %v", closed, DefaultTuning().ClosedThreshold)
	}
	if spread <= closed {
		t.Errorf("open palm openness (%v) should exceed fist (%v)", spread, closed)
	}
}

func TestCenter_Remap(t *testing.T) {
	tests := []struct {
		name         string
		x, y         float64
		wantX, wantY float64
	}{
		{"frame center maps to origin", 0.5, 0.5, 0, 0},
		{"left edge mirrors to +1", 0.0, 0.5, 1.0, 0},
		{"right edge mirrors to -1", 1.0, 0.5, -1.0, 0},
		{"top edge maps to -1", 0.5, 0.0, 0, -1.0},
		{"bottom edge maps to +1", 0.5, 1.0, 0, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hand := detector.CenteredHandLandmarks(tt.x, tt.y)
			d := NewDeriver(DefaultTuning())
			d.Observe(&hand)

			sig := d.Snapshot()
			if math.Abs(sig.CenterX-tt.wantX) > epsilon {
				t.Errorf("CenterX = %v, want %v", sig.CenterX, tt.wantX)
			}
			if math.Abs(sig.CenterY-tt.wantY) > epsilon {
				t.Errorf("CenterY = %v, want %v", sig.CenterY, tt.wantY)
			}
		})
	}
}

func TestCenter_MidpointOfWristAndKnuckle(t *testing.T) {
	hand := detector.HandLandmarks{}
	hand.Points[detector.Wrist] = detector.Point3D{X: 0.3, Y: 0.7}
	hand.Points[detector.MiddleMCP] = detector.Point3D{X: 0.5, Y: 0.5}

	d := NewDeriver(DefaultTuning())
	d.Observe(&hand)

	// Midpoint (0.4, 0.6): x' = (0.4-0.5)*-2 = 0.2, y' = (0.6-0.5)*2 = 0.2
	sig := d.Snapshot()
	if math.Abs(sig.CenterX-0.2) > epsilon {
		t.Errorf("CenterX = %v, want 0.2", sig.CenterX)
	}
	if math.Abs(sig.CenterY-0.2) > epsilon {
		t.Errorf("CenterY = %v, want 0.2", sig.CenterY)
	}
}

func TestObserve_AbsentHandOpennessFallback(t *testing.T) {
	d := NewDeriver(DefaultTuning())

	fist := detector.FistLandmarks()
	d.Observe(&fist)
	start := d.Snapshot().Openness

	// Each absent tick adds the fallback step, clamped at the open value.
	for n := 1; n <= 30; n++ {
		d.Observe(nil)
		want := start + 0.05*float64(n)
		if want > 1.0 {
			want = 1.0
		}
		got := d.Snapshot().Openness
		if math.Abs(got-want) > epsilon {
			t.Fatalf("after %d absent ticks: Openness = %v, want %v", n, got, want)
		}
	}

	if got := d.Snapshot().Openness; got != 1.0 {
		t.Errorf("final Openness = %v, want exactly 1.0", got)
	}
}

func TestObserve_AbsentHandCenterDecay(t *testing.T) {
	d := NewDeriver(DefaultTuning())

	// Place the hand so the remapped center lands at (0.4, -0.4):
	// x' = 0.4 => cx = 0.3; y' = -0.4 => cy = 0.3.
	hand := detector.CenteredHandLandmarks(0.3, 0.3)
	d.Observe(&hand)

	sig := d.Snapshot()
	if math.Abs(sig.CenterX-0.4) > epsilon || math.Abs(sig.CenterY-(-0.4)) > epsilon {
		t.Fatalf("setup center = (%v, %v), want (0.4, -0.4)", sig.CenterX, sig.CenterY)
	}

	for n := 1; n <= 50; n++ {
		d.Observe(nil)
		decay := math.Pow(0.95, float64(n))
		sig = d.Snapshot()
		if math.Abs(sig.CenterX-0.4*decay) > 1e-9 {
			t.Fatalf("after %d ticks: CenterX = %v, want %v", n, sig.CenterX, 0.4*decay)
		}
		if math.Abs(sig.CenterY-(-0.4)*decay) > 1e-9 {
			t.Fatalf("after %d ticks: CenterY = %v, want %v", n, sig.CenterY, -0.4*decay)
		}
	}

	// The decay approaches the origin but never lands on it.
	sig = d.Snapshot()
	if sig.CenterX == 0 || sig.CenterY == 0 {
		t.Errorf("center reached origin exactly: (%v, %v)", sig.CenterX, sig.CenterY)
	}
}

func TestObserve_DiscardedAfterClose(t *testing.T) {
	d := NewDeriver(DefaultTuning())

	fist := detector.FistLandmarks()
	d.Observe(&fist)
	before := d.Snapshot()

	d.Close()

	// A late in-flight result must not mutate the published signal.
	open := detector.OpenPalmLandmarks()
	d.Observe(&open)
	d.Observe(nil)

	after := d.Snapshot()
	if after != before {
		t.Errorf("signal changed after Close: %+v -> %+v", before, after)
	}
}

func TestObserve_PublishesUpdates(t *testing.T) {
	d := NewDeriver(DefaultTuning())

	var published []Signal
	d.OnUpdate = func(s Signal) { published = append(published, s) }

	fist := detector.FistLandmarks()
	d.Observe(&fist)
	d.Observe(nil)

	if len(published) != 2 {
		t.Fatalf("published %d updates, want 2", len(published))
	}
	if published[1].Openness <= published[0].Openness {
		t.Errorf("fallback tick should raise openness: %v -> %v",
			published[0].Openness, published[1].Openness)
	}

	// No update fires once the deriver is closed.
	d.Close()
	d.Observe(&fist)
	if len(published) != 2 {
		t.Errorf("published %d updates after Close, want 2", len(published))
	}
}
