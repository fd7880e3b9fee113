// Package tray provides a system tray control for the gesture daemon.
package tray

import (
	"sync"

	"github.com/getlantern/systray"

	"github.com/panhanyan804/AI-Christmas-Tree/internal/gesture"
)

// Tray shows the daemon state in the system tray: a camera toggle, the
// current formation state and a quit entry.
type Tray struct {
	onToggle func(active bool)
	onScene  func()
	onQuit   func()
	active   bool
	state    string
	mu       sync.RWMutex

	menuToggle *systray.MenuItem
	menuState  *systray.MenuItem
}

// New creates a new Tray with the camera marked active.
func New() *Tray {
	return &Tray{
		active: true,
		state:  string(gesture.StateScattered),
	}
}

// OnToggle sets the callback invoked when the camera is toggled.
func (t *Tray) OnToggle(fn func(active bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnScene sets the callback invoked when the open-scene item is clicked.
func (t *Tray) OnScene(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onScene = fn
}

// OnQuit sets the callback invoked when the quit item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// onReady sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("Tree")
	systray.SetTooltip("Hand-gesture tree control")

	t.menuToggle = systray.AddMenuItem("● Camera on", "Toggle the camera")
	systray.AddSeparator()

	t.menuState = systray.AddMenuItem("Scene: "+t.State(), "Current formation state")
	t.menuState.Disable()
	systray.AddSeparator()

	menuScene := systray.AddMenuItem("Open Scene...", "Open the 3D scene in the browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit the gesture daemon")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuScene.ClickedCh:
				t.handleScene()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

// handleToggle flips the camera state and notifies the daemon.
func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.active = !t.active
	active := t.active

	if active {
		t.menuToggle.SetTitle("● Camera on")
	} else {
		t.menuToggle.SetTitle("○ Camera off")
	}

	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(active)
	}
}

func (t *Tray) handleScene() {
	t.mu.RLock()
	callback := t.onScene
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetState updates the formation readout in the menu. Repeating the
// current state is a no-op, so the hook can be called on every signal.
func (t *Tray) SetState(state string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if state == t.state {
		return
	}
	t.state = state
	if t.menuState != nil {
		t.menuState.SetTitle("Scene: " + state)
	}
}

// State returns the formation state last shown in the menu.
func (t *Tray) State() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// TrackSignals returns a signal hook that keeps the formation readout
// current. It is meant to run alongside the pipeline's publisher.
func (t *Tray) TrackSignals(tuning gesture.Tuning) func(gesture.Signal) {
	return func(sig gesture.Signal) {
		t.SetState(string(gesture.TargetState(sig.Openness, tuning)))
	}
}

// IsActive returns whether the camera toggle is on.
func (t *Tray) IsActive() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.active
}
