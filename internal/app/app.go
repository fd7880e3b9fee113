// Package app wires the capture, detection and signal-derivation pieces of
// the gesture pipeline and owns their lifecycle.
package app

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/panhanyan804/AI-Christmas-Tree/internal/assets"
	"github.com/panhanyan804/AI-Christmas-Tree/internal/capture"
	"github.com/panhanyan804/AI-Christmas-Tree/internal/detector"
	"github.com/panhanyan804/AI-Christmas-Tree/internal/gesture"
)

// Pipeline timing constants.
const (
	// IdleFPS is the frame rate while nothing is moving in front of the
	// camera; detection is skipped and the signal decays toward rest.
	IdleFPS = 5
	// ActiveFPS is the frame rate during active detection.
	ActiveFPS = 15
	// IdleTimeoutMs is how long motion must be absent before dropping
	// back to the idle rate.
	IdleTimeoutMs = 2000
)

// Config holds configuration options for the application.
type Config struct {
	Loader       *assets.Loader
	CameraID     int
	MotionThresh float64
	Tuning       gesture.Tuning

	// Camera and Detector override the defaults; tests inject fakes
	// here so no hardware or engine runtime is needed.
	Camera   capture.Camera
	Detector detector.Detector

	// OnSignal, if set, receives every published gesture signal.
	OnSignal func(gesture.Signal)
}

// App owns one activation of the gesture pipeline: asset bootstrap, the
// detection engine, the camera and the signal deriver.
type App struct {
	config Config
	camera capture.Camera
	motion *capture.MotionDetector

	mu       sync.RWMutex
	detector detector.Detector
	deriver  *gesture.Deriver
	ready    bool
	stopCh   chan struct{}
}

// Snapshot is the published pipeline state the rendering layer reads every
// render tick.
type Snapshot struct {
	Ready        bool          `json:"ready"`
	CameraActive bool          `json:"cameraActive"`
	Openness     float64       `json:"openness"`
	CenterX      float64       `json:"centerX"`
	CenterY      float64       `json:"centerY"`
	State        gesture.State `json:"state"`
}

// New creates an App with the given configuration. Nothing starts until
// Start is called.
func New(config Config) *App {
	motionThreshold := config.MotionThresh
	if motionThreshold <= 0 {
		motionThreshold = 1.0 // 1% pixel change
	}
	if config.Tuning == (gesture.Tuning{}) {
		config.Tuning = gesture.DefaultTuning()
	}

	camera := config.Camera
	if camera == nil {
		camera = capture.NewCamera(config.CameraID)
	}

	a := &App{
		config:  config,
		camera:  camera,
		motion:  capture.NewMotionDetector(motionThreshold),
		deriver: gesture.NewDeriver(config.Tuning),
	}
	a.deriver.OnUpdate = config.OnSignal

	return a
}

// Start runs the bootstrap sequence: fetch the engine's runtime assets,
// launch the engine and wait for its readiness probe, open the camera,
// then start the pipeline loop. On any failure it unwinds what it created
// and the app simply never becomes ready; there is no automatic retry.
// Starting an already started app is a no-op.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopCh != nil {
		return nil
	}

	if err := a.bootstrap(ctx); err != nil {
		log.Printf("Pipeline bootstrap failed: %v", err)
		return err
	}

	a.camera.SetFPS(IdleFPS)
	a.ready = true
	a.stopCh = make(chan struct{})
	go a.runPipeline(a.stopCh, a.deriver)

	log.Println("Gesture pipeline started")
	return nil
}

// bootstrap performs the ordered startup sequence under a.mu.
func (a *App) bootstrap(ctx context.Context) error {
	if a.config.Loader != nil {
		if err := a.config.Loader.LoadAll(ctx, assets.BundleURLs()); err != nil {
			return fmt.Errorf("load engine assets: %w", err)
		}
	}

	if a.detector == nil {
		if a.config.Detector != nil {
			a.detector = a.config.Detector
		} else {
			assetDir := ""
			if a.config.Loader != nil {
				assetDir = a.config.Loader.Dir()
			}
			eng, err := detector.NewEngine(detector.DefaultConfig(), assetDir)
			if err != nil {
				return fmt.Errorf("start detection engine: %w", err)
			}
			if err := eng.WaitReady(); err != nil {
				eng.Close()
				a.detector = nil
				return fmt.Errorf("detection engine never became ready: %w", err)
			}
			a.detector = eng
		}
	}

	if err := a.camera.Open(); err != nil {
		if a.detector != nil {
			a.detector.Close()
			a.detector = nil
		}
		return fmt.Errorf("open camera: %w", err)
	}

	if !a.deriver.Alive() {
		// Restarting after a Stop: the old deriver is dead for good so
		// late results stay discarded; publish through a fresh one.
		a.deriver = gesture.NewDeriver(a.config.Tuning)
		a.deriver.OnUpdate = a.config.OnSignal
	}

	return nil
}

// Stop tears the pipeline down. The deriver's liveness flag drops first so
// a detection still in flight discards its result instead of mutating the
// published signal, then capture stops and the engine closes.
func (a *App) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopCh == nil {
		return
	}

	a.deriver.Close()
	a.ready = false

	close(a.stopCh)
	a.stopCh = nil

	if err := a.camera.Close(); err != nil {
		log.Printf("Error closing camera: %v", err)
	}

	a.motion.Close()

	if a.detector != nil {
		if err := a.detector.Close(); err != nil {
			log.Printf("Error closing detector: %v", err)
		}
		a.detector = nil
	}

	log.Println("Gesture pipeline stopped")
}

// Ready reports whether bootstrap completed and the pipeline is running.
func (a *App) Ready() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ready
}

// Snapshot returns the current published pipeline state.
func (a *App) Snapshot() Snapshot {
	a.mu.RLock()
	deriver := a.deriver
	ready := a.ready
	a.mu.RUnlock()

	sig := deriver.Snapshot()
	return Snapshot{
		Ready:        ready,
		CameraActive: a.camera.IsOpen(),
		Openness:     sig.Openness,
		CenterX:      sig.CenterX,
		CenterY:      sig.CenterY,
		State:        gesture.TargetState(sig.Openness, deriver.Tuning()),
	}
}

// Camera returns the camera instance.
func (a *App) Camera() capture.Camera {
	return a.camera
}

// Deriver returns the current signal deriver.
func (a *App) Deriver() *gesture.Deriver {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.deriver
}

// Detector returns the hand detector, or nil before bootstrap.
func (a *App) Detector() detector.Detector {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.detector
}

// frameInterval converts a frame rate to a ticker period.
func frameInterval(fps int) time.Duration {
	return time.Second / time.Duration(fps)
}
