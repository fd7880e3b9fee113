package detector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Readiness polling policy: the engine runtime announces itself
// asynchronously after launch, so callers poll on a fixed interval up to a
// bounded retry count before giving up.
const (
	ReadyPollInterval = 100 * time.Millisecond
	ReadyPollRetries  = 50
)

// ErrNotReady is returned by WaitReady when the engine runtime never
// announced readiness within the polling bound.
var ErrNotReady = errors.New("detection engine not ready")

// Engine implements Detector by driving the MediaPipe hands runtime in a
// subprocess. Frames go in as length-prefixed JPEG; landmark sets come back
// as one JSON line per frame.
type Engine struct {
	config   Config
	assetDir string

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	mu     sync.Mutex

	readyMu sync.Mutex
	ready   bool

	// sleep is replaceable so readiness-wait tests can inject a fast clock.
	sleep func(time.Duration)
}

// NewEngine launches the detection engine runtime bound to the given asset
// directory and begins the configuration handshake. The runtime becomes
// usable only after WaitReady succeeds.
func NewEngine(config Config, assetDir string) (*Engine, error) {
	scriptPath := findEngineScript()
	if scriptPath == "" {
		return nil, fmt.Errorf("hands_service.py not found")
	}

	pythonPath := findVenvPython()
	if pythonPath == "" {
		pythonPath = "python3"
	}

	e := &Engine{
		config:   config,
		assetDir: assetDir,
		sleep:    time.Sleep,
	}

	e.cmd = exec.Command(pythonPath, scriptPath, "--assets", assetDir)

	stdin, err := e.cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := e.cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}

	e.cmd.Stderr = os.Stderr

	if err := e.cmd.Start(); err != nil {
		return nil, fmt.Errorf("start engine runtime: %w", err)
	}

	e.stdin = stdin
	e.stdout = bufio.NewReader(stdout)

	if err := e.sendConfig(); err != nil {
		e.stdin.Close()
		e.cmd.Wait()
		return nil, err
	}

	// The runtime prints a single READY line once its model assets have
	// loaded. Consume it off the main path so WaitReady can poll.
	go e.awaitHandshake()

	return e, nil
}

// sendConfig writes the fixed detection policy as the first message of the
// session.
func (e *Engine) sendConfig() error {
	msg, err := json.Marshal(map[string]any{
		"max_num_hands":            e.config.MaxHands,
		"model_complexity":         e.config.ModelComplexity,
		"min_detection_confidence": e.config.MinConfidence,
		"min_tracking_confidence":  e.config.MinTrackingConf,
	})
	if err != nil {
		return fmt.Errorf("encode engine config: %w", err)
	}

	if _, err := e.stdin.Write(append(msg, '\n')); err != nil {
		return fmt.Errorf("write engine config: %w", err)
	}
	return nil
}

func (e *Engine) awaitHandshake() {
	line, err := e.stdout.ReadString('\n')
	if err != nil {
		return
	}
	if line == "READY\n" {
		e.setReady(true)
	}
}

func (e *Engine) setReady(v bool) {
	e.readyMu.Lock()
	e.ready = v
	e.readyMu.Unlock()
}

// Ready reports whether the engine runtime has completed its handshake.
func (e *Engine) Ready() bool {
	e.readyMu.Lock()
	defer e.readyMu.Unlock()
	return e.ready
}

// WaitReady polls Ready on a fixed interval up to a bounded retry count
// (ReadyPollInterval x ReadyPollRetries, a 5s ceiling by default).
// It returns ErrNotReady if the runtime never announced itself.
func (e *Engine) WaitReady() error {
	return waitReady(e.Ready, ReadyPollInterval, ReadyPollRetries, e.sleep)
}

// waitReady is the polling loop shared with tests, which supply their own
// probe, interval and sleeper.
func waitReady(probe func() bool, interval time.Duration, retries int, sleep func(time.Duration)) error {
	for i := 0; i < retries; i++ {
		if probe() {
			return nil
		}
		sleep(interval)
	}
	if probe() {
		return nil
	}
	return ErrNotReady
}

// Detect analyzes a frame and returns detected hand landmarks.
// At most one detection is in flight at a time; callers block until the
// runtime answers for their frame.
func (e *Engine) Detect(frame *gocv.Mat) ([]HandLandmarks, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.Ready() {
		return nil, ErrNotReady
	}

	buf, err := gocv.IMEncode(".jpg", *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	data := buf.GetBytes()

	// Length-prefixed payload: 4 bytes big-endian, then the JPEG bytes.
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	if _, err := e.stdin.Write(length); err != nil {
		return nil, fmt.Errorf("write length: %w", err)
	}
	if _, err := e.stdin.Write(data); err != nil {
		return nil, fmt.Errorf("write data: %w", err)
	}

	line, err := e.stdout.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var response struct {
		Hands []jsonHand `json:"hands"`
	}
	if err := json.Unmarshal([]byte(line), &response); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	result := make([]HandLandmarks, len(response.Hands))
	for i, h := range response.Hands {
		result[i] = h.toHandLandmarks()
	}

	return result, nil
}

// Close shuts down the engine runtime.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.setReady(false)

	if e.stdin != nil {
		e.stdin.Close()
		e.stdin = nil
	}

	if e.cmd == nil {
		return nil
	}
	err := e.cmd.Wait()
	e.cmd = nil
	e.stdout = nil

	return err
}

func findEngineScript() string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		"scripts/hands_service.py",
		"../scripts/hands_service.py",
		filepath.Join(execDir, "scripts/hands_service.py"),
		filepath.Join(os.Getenv("HOME"), ".christmastree/scripts/hands_service.py"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// findVenvPython looks for a Python interpreter in a virtual environment
// near the executable or under the app's home directory.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".christmastree/venv/bin/python"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// jsonHand mirrors one hand in the runtime's JSON response.
type jsonHand struct {
	Points     []jsonPoint `json:"points"`
	Handedness string      `json:"handedness"`
	Score      float64     `json:"score"`
}

type jsonPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (h jsonHand) toHandLandmarks() HandLandmarks {
	lm := HandLandmarks{
		Handedness: h.Handedness,
		Score:      h.Score,
	}

	for i := 0; i < NumLandmarks && i < len(h.Points); i++ {
		lm.Points[i] = Point3D{
			X: h.Points[i].X,
			Y: h.Points[i].Y,
			Z: h.Points[i].Z,
		}
	}

	return lm
}
