// Package gesture derives continuous control signals from hand landmarks.
package gesture

import (
	"sync"

	"github.com/panhanyan804/AI-Christmas-Tree/internal/detector"
)

// Tuning holds the gesture-response constants. They are named here rather
// than inlined so the feel is tunable and testable apart from the engine.
type Tuning struct {
	// OpenValue is the openness of a fully open hand and the resting
	// value while no hand is visible.
	OpenValue float64

	// FallbackStep is added to openness per tick while no hand is
	// detected, easing back toward OpenValue instead of snapping.
	FallbackStep float64

	// CenterDecay multiplies the hand center per tick while no hand is
	// detected, drifting it back toward the frame origin.
	CenterDecay float64

	// ClosedThreshold is the openness below which the hand counts as
	// closed and the scene gathers into its formed shape.
	ClosedThreshold float64
}

// DefaultTuning returns the stock gesture-response constants.
func DefaultTuning() Tuning {
	return Tuning{
		OpenValue:       1.0,
		FallbackStep:    0.05,
		CenterDecay:     0.95,
		ClosedThreshold: 0.2,
	}
}

// Signal is the published per-frame output of the pipeline.
//
// Openness is the mean 3D distance from the wrist to the four fingertips,
// in detector-normalized units. CenterX and CenterY place the hand in
// roughly [-1,1], x mirrored to compensate for the mirrored camera feed.
type Signal struct {
	Openness float64 `json:"openness"`
	CenterX  float64 `json:"centerX"`
	CenterY  float64 `json:"centerY"`
}

// Deriver turns per-frame detection results into a Signal. One Deriver is
// fed by a single pipeline goroutine; readers may snapshot from anywhere.
type Deriver struct {
	tuning Tuning

	mu    sync.RWMutex
	sig   Signal
	alive bool

	// OnUpdate, if set, is invoked with each published Signal. Set it
	// before the pipeline starts; it runs on the pipeline goroutine.
	OnUpdate func(Signal)
}

// NewDeriver creates a Deriver with the initial open-hand signal.
func NewDeriver(tuning Tuning) *Deriver {
	return &Deriver{
		tuning: tuning,
		sig:    Signal{Openness: tuning.OpenValue},
		alive:  true,
	}
}

// Tuning returns the deriver's gesture-response constants.
func (d *Deriver) Tuning() Tuning {
	return d.tuning
}

// Observe processes one detection result. A nil hand means no hand was
// visible this frame. Results delivered after Close are discarded.
func (d *Deriver) Observe(hand *detector.HandLandmarks) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.alive {
		return
	}

	if hand != nil {
		// Raw per-frame values; both fields change together. The
		// consumer eases toward them, so no smoothing happens here.
		d.sig = Signal{Openness: openness(hand)}
		d.sig.CenterX, d.sig.CenterY = center(hand)
	} else {
		d.sig.Openness += d.tuning.FallbackStep
		if d.sig.Openness > d.tuning.OpenValue {
			d.sig.Openness = d.tuning.OpenValue
		}
		d.sig.CenterX *= d.tuning.CenterDecay
		d.sig.CenterY *= d.tuning.CenterDecay
	}

	if d.OnUpdate != nil {
		d.OnUpdate(d.sig)
	}
}

// Snapshot returns the current published signal.
func (d *Deriver) Snapshot() Signal {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.sig
}

// State returns the target formation for the current signal.
func (d *Deriver) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return TargetState(d.sig.Openness, d.tuning)
}

// Alive reports whether the deriver still accepts results.
func (d *Deriver) Alive() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.alive
}

// Close marks the deriver dead. Any detection result still in flight when
// the owner tears down is discarded rather than applied.
func (d *Deriver) Close() {
	d.mu.Lock()
	d.alive = false
	d.mu.Unlock()
}

// openness is the arithmetic mean of the 3D distances from the wrist to
// the index, middle, ring and pinky fingertips.
func openness(hand *detector.HandLandmarks) float64 {
	wrist := hand.Points[detector.Wrist]
	var sum float64
	for _, tip := range detector.Fingertips {
		sum += detector.Distance(hand.Points[tip], wrist)
	}
	return sum / float64(len(detector.Fingertips))
}

// center stabilizes the hand position as the wrist / middle-MCP midpoint,
// then remaps detector space [0,1] to [-1,1]. X is negated because the
// camera feed is mirrored.
func center(hand *detector.HandLandmarks) (x, y float64) {
	wrist := hand.Points[detector.Wrist]
	knuckle := hand.Points[detector.MiddleMCP]

	cx := (wrist.X + knuckle.X) / 2
	cy := (wrist.Y + knuckle.Y) / 2

	return (cx - 0.5) * -2, (cy - 0.5) * 2
}
