package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/panhanyan804/AI-Christmas-Tree/internal/capture"
	"gocv.io/x/gocv"
)

// streamBoundary separates the MJPEG parts.
const streamBoundary = "frame"

// StreamHandler serves the raw camera feed as MJPEG so the page can show
// it next to the scene.
type StreamHandler struct {
	camera   capture.Camera
	interval time.Duration
}

// NewStreamHandler creates a StreamHandler paced at the capture rate.
func NewStreamHandler(camera capture.Camera) *StreamHandler {
	return &StreamHandler{
		camera:   camera,
		interval: time.Second / capture.DefaultFPS,
	}
}

func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+streamBoundary)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		// Skip failed reads; the next tick retries without tearing
		// down the connection.
		frame, err := h.camera.ReadFrame()
		if err != nil {
			continue
		}

		buf, err := gocv.IMEncode(".jpg", *frame)
		frame.Close()
		if err != nil {
			continue
		}

		fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n",
			streamBoundary, buf.Len())
		w.Write(buf.GetBytes())
		fmt.Fprint(w, "\r\n")
		buf.Close()

		flusher.Flush()
	}
}
