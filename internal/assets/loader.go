// Package assets downloads and caches the detection engine's runtime assets.
//
// The engine's runtime bundle lives on a public CDN. A Loader fetches each
// URL at most once for its lifetime: concurrent and later callers share the
// first caller's completion, including a failed one. The cache is owned by
// the Loader value rather than package state so the process-wide singleton
// is an explicit wiring decision and tests can construct fresh loaders.
package assets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sync"
)

// The engine's runtime bundle: four fixed assets on a public CDN host.
const (
	CDNHost = "https://cdn.jsdelivr.net/npm/@mediapipe"

	handsBundleURL  = CDNHost + "/hands/hands.js"
	cameraUtilsURL  = CDNHost + "/camera_utils/camera_utils.js"
	controlUtilsURL = CDNHost + "/control_utils/control_utils.js"
	drawingUtilsURL = CDNHost + "/drawing_utils/drawing_utils.js"
)

// BundleURLs returns the engine runtime asset URLs in load order.
func BundleURLs() []string {
	return []string{handsBundleURL, cameraUtilsURL, controlUtilsURL, drawingUtilsURL}
}

// AssetURL resolves an engine-internal asset filename against the CDN host,
// mirroring the runtime's own file resolution.
func AssetURL(filename string) string {
	return CDNHost + "/hands/" + filename
}

// Manifest records completed downloads and answers what checksum a URL was
// recorded with. The sqlite store implements it; a nil manifest disables
// recording and on-disk verification.
type Manifest interface {
	Record(url, path, checksum string) error
	Checksum(url string) (string, error)
}

// entry tracks one URL's load. done is closed when the outcome (path or
// err) is final; the outcome is never retried or invalidated.
type entry struct {
	done chan struct{}
	path string
	err  error
}

// Loader fetches engine runtime assets into a local directory, at most once
// per URL per Loader.
type Loader struct {
	dir      string
	client   *http.Client
	manifest Manifest

	mu      sync.Mutex
	entries map[string]*entry
}

// NewLoader creates a Loader that caches downloads under dir.
// A nil client falls back to http.DefaultClient.
func NewLoader(dir string, client *http.Client, manifest Manifest) *Loader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Loader{
		dir:      dir,
		client:   client,
		manifest: manifest,
		entries:  make(map[string]*entry),
	}
}

// Dir returns the local cache directory.
func (l *Loader) Dir() string {
	return l.dir
}

// LoadAll fetches all of the given URLs concurrently and waits for every
// load to settle. It returns the first failure, if any.
func (l *Loader) LoadAll(ctx context.Context, urls []string) error {
	var wg sync.WaitGroup
	errs := make([]error, len(urls))

	for i, u := range urls {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			_, errs[i] = l.Load(ctx, u)
		}(i, u)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Load fetches one URL, or joins an earlier load of the same URL. All
// callers observe the same outcome; a URL that failed once fails the same
// way for every later caller.
func (l *Loader) Load(ctx context.Context, rawURL string) (string, error) {
	l.mu.Lock()
	e, ok := l.entries[rawURL]
	if !ok {
		e = &entry{done: make(chan struct{})}
		l.entries[rawURL] = e
		l.mu.Unlock()

		e.path, e.err = l.fetch(ctx, rawURL)
		close(e.done)
		return e.path, e.err
	}
	l.mu.Unlock()

	select {
	case <-e.done:
		return e.path, e.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// fetch downloads one asset. A file already on disk satisfies the load
// without re-fetching, provided it still matches the manifest's recorded
// checksum; a stale or unrecorded file is downloaded again.
func (l *Loader) fetch(ctx context.Context, rawURL string) (string, error) {
	dest, err := l.destPath(rawURL)
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(dest); err == nil && l.verified(rawURL, dest) {
		return dest, nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", fmt.Errorf("create asset dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request for %s: %w", rawURL, err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", rawURL, err)
	}

	tmp := dest + ".partial"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("write %s: %w", dest, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return "", fmt.Errorf("commit %s: %w", dest, err)
	}

	if l.manifest != nil {
		sum := sha256.Sum256(data)
		if err := l.manifest.Record(rawURL, dest, hex.EncodeToString(sum[:])); err != nil {
			return "", fmt.Errorf("record %s: %w", rawURL, err)
		}
	}

	return dest, nil
}

// verified reports whether the file at dest matches the checksum the
// manifest recorded for rawURL. Without a manifest there is no recorded
// checksum and presence on disk is enough.
func (l *Loader) verified(rawURL, dest string) bool {
	if l.manifest == nil {
		return true
	}

	want, err := l.manifest.Checksum(rawURL)
	if err != nil {
		return false
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		return false
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]) == want
}

// destPath maps a URL to its cache location, preserving the last two path
// elements (package dir and filename) to keep bundles apart.
func (l *Loader) destPath(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse asset url %s: %w", rawURL, err)
	}

	dir, file := path.Split(u.Path)
	pkg := path.Base(path.Clean(dir))
	if file == "" {
		return "", fmt.Errorf("asset url %s has no filename", rawURL)
	}

	return filepath.Join(l.dir, pkg, file), nil
}
