package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/panhanyan804/AI-Christmas-Tree/internal/app"
	"github.com/panhanyan804/AI-Christmas-Tree/internal/assets"
	"github.com/panhanyan804/AI-Christmas-Tree/internal/gesture"
	"github.com/panhanyan804/AI-Christmas-Tree/internal/server"
	"github.com/panhanyan804/AI-Christmas-Tree/internal/store"
	"github.com/panhanyan804/AI-Christmas-Tree/internal/tray"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	cameraID := flag.Int("camera", -1, "camera device ID (-1 = stored setting)")
	withTray := flag.Bool("tray", false, "run with a system tray icon")
	flag.Parse()

	fmt.Println("AI Christmas Tree - gesture daemon")

	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Fatalf("Failed to get home directory: %v", err)
	}

	dataDir := filepath.Join(homeDir, ".christmastree")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	st, err := store.New(filepath.Join(dataDir, "christmastree.db"))
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer st.Close()

	settings := st.Settings()

	tuning := gesture.DefaultTuning()
	tuning.FallbackStep = settings.GetFloat(store.SettingFallbackStep, tuning.FallbackStep)
	tuning.CenterDecay = settings.GetFloat(store.SettingCenterDecay, tuning.CenterDecay)
	tuning.ClosedThreshold = settings.GetFloat(store.SettingClosedThreshold, tuning.ClosedThreshold)

	device := *cameraID
	if device < 0 {
		device = settings.GetInt(store.SettingCameraID, 0)
	}

	loader := assets.NewLoader(filepath.Join(dataDir, "assets"), nil, st.Assets())
	if cached, err := st.Assets().List(); err == nil && len(cached) > 0 {
		fmt.Printf("Engine assets cached: %d\n", len(cached))
	}

	hub := server.NewSignalHub(tuning)

	var tr *tray.Tray
	onSignal := hub.Publish
	if *withTray {
		tr = tray.New()
		track := tr.TrackSignals(tuning)
		onSignal = func(sig gesture.Signal) {
			hub.Publish(sig)
			track(sig)
		}
	}

	a := app.New(app.Config{
		Loader:   loader,
		CameraID: device,
		Tuning:   tuning,
		OnSignal: onSignal,
	})

	// Bootstrap off the main path: on failure the daemon keeps serving
	// and the scene sees ready=false until a restart.
	go func() {
		if err := a.Start(context.Background()); err != nil {
			log.Printf("Gesture pipeline unavailable: %v", err)
		}
	}()

	webDir := findWebDir(dataDir)
	if webDir != "" {
		fmt.Printf("Serving scene from: %s\n", webDir)
	}

	srv := server.New(server.Config{
		StaticDir: webDir,
		Store:     st,
		Camera:    a.Camera(),
		Signals:   a,
		Hub:       hub,
	})

	if !*withTray {
		fmt.Printf("Starting server on %s\n", *addr)
		if err := srv.ListenAndServe(*addr); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
		return
	}

	go func() {
		fmt.Printf("Starting server on %s\n", *addr)
		if err := srv.ListenAndServe(*addr); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	tr.OnToggle(func(active bool) {
		if active {
			go func() {
				if err := a.Start(context.Background()); err != nil {
					log.Printf("Gesture pipeline unavailable: %v", err)
				}
			}()
		} else {
			a.Stop()
		}
	})
	tr.OnScene(func() {
		openBrowser(sceneURL(*addr))
	})
	tr.OnQuit(func() {
		a.Stop()
	})

	// systray must own the main thread
	tr.Run()
}

// sceneURL turns the HTTP listen address into a browsable URL.
func sceneURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://localhost:8080"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// openBrowser opens the URL with the platform's default browser.
func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		log.Printf("Failed to open browser: %v", err)
	}
}

// findWebDir searches for the built scene bundle in common locations.
func findWebDir(dataDir string) string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeWebDir := filepath.Join(dataDir, "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
