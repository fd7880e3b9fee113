package app

import (
	"log"
	"time"

	"github.com/panhanyan804/AI-Christmas-Tree/internal/detector"
	"github.com/panhanyan804/AI-Christmas-Tree/internal/gesture"
)

// runPipeline is the frame loop. It reads one frame per tick, runs motion
// gating and hand detection, and feeds the result to the deriver.
//
// Two properties the consumer relies on hold by construction here:
//   - one-in-flight: the next frame is not read until the detector has
//     answered for the previous one, so results apply in capture order;
//   - every tick produces exactly one Observe call, so the no-hand
//     fallback decay advances even while detection is skipped.
func (a *App) runPipeline(stopCh chan struct{}, deriver *gesture.Deriver) {
	activeMode := false
	lastMotionTime := time.Now()

	ticker := time.NewTicker(frameInterval(IdleFPS))
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			frame, err := a.camera.ReadFrame()
			if err != nil {
				log.Printf("Error reading frame: %v", err)
				continue
			}

			motionDetected, _ := a.motion.Detect(frame)

			if motionDetected {
				lastMotionTime = time.Now()

				if !activeMode {
					activeMode = true
					a.camera.SetFPS(ActiveFPS)
					ticker.Reset(frameInterval(ActiveFPS))
					log.Println("Switched to active mode")
				}
			} else if activeMode {
				if time.Since(lastMotionTime) > time.Duration(IdleTimeoutMs)*time.Millisecond {
					activeMode = false
					a.camera.SetFPS(IdleFPS)
					ticker.Reset(frameInterval(IdleFPS))
					log.Println("Switched to idle mode")
				}
			}

			det := a.Detector()
			if !activeMode || det == nil {
				frame.Close()
				deriver.Observe(nil)
				continue
			}

			hands, err := det.Detect(frame)
			frame.Close()

			if err != nil {
				// One bad frame must not halt the capture loop.
				log.Printf("Error detecting hands: %v", err)
				continue
			}

			// A hand held perfectly still produces no frame motion;
			// count it as activity so detection keeps running.
			if len(hands) > 0 {
				lastMotionTime = time.Now()
			}

			deriver.Observe(firstHand(hands))
		}
	}
}

// firstHand picks the single tracked hand out of a detection result, or
// nil when no hand was visible.
func firstHand(hands []detector.HandLandmarks) *detector.HandLandmarks {
	if len(hands) == 0 {
		return nil
	}
	return &hands[0]
}
