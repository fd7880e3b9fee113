package assets

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
)

func TestLoader_LoadOnce(t *testing.T) {
	var fetches int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fetches, 1)
		w.Write([]byte("bundle contents"))
	}))
	defer ts.Close()

	l := NewLoader(t.TempDir(), ts.Client(), nil)
	url := ts.URL + "/hands/hands.js"

	path1, err := l.Load(context.Background(), url)
	if err != nil {
		t.Fatalf("first Load() error = %v", err)
	}
	path2, err := l.Load(context.Background(), url)
	if err != nil {
		t.Fatalf("second Load() error = %v", err)
	}

	if path1 != path2 {
		t.Errorf("paths differ: %q vs %q", path1, path2)
	}
	if n := atomic.LoadInt32(&fetches); n != 1 {
		t.Errorf("fetched %d times, want 1", n)
	}

	data, err := os.ReadFile(path1)
	if err != nil {
		t.Fatalf("read cached asset: %v", err)
	}
	if string(data) != "bundle contents" {
		t.Errorf("cached contents = %q", data)
	}
}

func TestLoader_ConcurrentLoadersShareOneFetch(t *testing.T) {
	var fetches int32
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fetches, 1)
		<-release
		w.Write([]byte("bundle"))
	}))
	defer ts.Close()

	l := NewLoader(t.TempDir(), ts.Client(), nil)
	url := ts.URL + "/hands/hands.js"

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = l.Load(context.Background(), url)
		}(i)
	}

	close(release)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("caller %d: Load() error = %v", i, err)
		}
	}
	if n := atomic.LoadInt32(&fetches); n != 1 {
		t.Errorf("fetched %d times, want 1", n)
	}
}

func TestLoader_FailureIsCached(t *testing.T) {
	var fetches int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fetches, 1)
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer ts.Close()

	l := NewLoader(t.TempDir(), ts.Client(), nil)
	url := ts.URL + "/hands/hands.js"

	_, err1 := l.Load(context.Background(), url)
	if err1 == nil {
		t.Fatal("first Load() succeeded, want error")
	}

	// A later caller must observe the same failure without a re-fetch.
	_, err2 := l.Load(context.Background(), url)
	if err2 == nil {
		t.Fatal("second Load() succeeded, want cached failure")
	}
	if !errors.Is(err2, err1) && err2.Error() != err1.Error() {
		t.Errorf("cached failure differs: %v vs %v", err2, err1)
	}
	if n := atomic.LoadInt32(&fetches); n != 1 {
		t.Errorf("fetched %d times, want 1", n)
	}
}

func TestLoader_ExistingFileSatisfiesLoad(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected fetch for pre-cached asset")
	}))
	defer ts.Close()

	dir := t.TempDir()
	if err := os.MkdirAll(dir+"/hands", 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dir+"/hands/hands.js", []byte("cached"), 0644); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(dir, ts.Client(), nil)
	path, err := l.Load(context.Background(), ts.URL+"/hands/hands.js")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "cached" {
		t.Errorf("contents = %q, want pre-cached file untouched", data)
	}
}

type recordingManifest struct {
	mu      sync.Mutex
	records [][3]string
}

func (m *recordingManifest) Record(url, path, checksum string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, [3]string{url, path, checksum})
	return nil
}

func (m *recordingManifest) Checksum(url string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec[0] == url {
			return rec[2], nil
		}
	}
	return "", errors.New("not recorded")
}

func TestLoader_RecordsManifest(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("bundle"))
	}))
	defer ts.Close()

	m := &recordingManifest{}
	l := NewLoader(t.TempDir(), ts.Client(), m)
	url := ts.URL + "/hands/hands.js"

	if _, err := l.Load(context.Background(), url); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(m.records) != 1 {
		t.Fatalf("recorded %d entries, want 1", len(m.records))
	}
	if m.records[0][0] != url {
		t.Errorf("recorded url = %q, want %q", m.records[0][0], url)
	}
	if len(m.records[0][2]) != 64 {
		t.Errorf("checksum length = %d, want 64 hex chars", len(m.records[0][2]))
	}
}

func TestLoader_VerifiedFileSkipsFetch(t *testing.T) {
	var fetches int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fetches, 1)
		w.Write([]byte("bundle"))
	}))
	defer ts.Close()

	dir := t.TempDir()
	m := &recordingManifest{}
	url := ts.URL + "/hands/hands.js"

	if _, err := NewLoader(dir, ts.Client(), m).Load(context.Background(), url); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// A fresh loader over the same directory and manifest trusts the
	// checksum and never touches the network.
	if _, err := NewLoader(dir, ts.Client(), m).Load(context.Background(), url); err != nil {
		t.Fatalf("Load() with warm cache error = %v", err)
	}
	if n := atomic.LoadInt32(&fetches); n != 1 {
		t.Errorf("fetched %d times, want 1", n)
	}
}

func TestLoader_StaleFileIsRefetched(t *testing.T) {
	var fetches int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fetches, 1)
		w.Write([]byte("bundle"))
	}))
	defer ts.Close()

	dir := t.TempDir()
	m := &recordingManifest{}
	url := ts.URL + "/hands/hands.js"

	path, err := NewLoader(dir, ts.Client(), m).Load(context.Background(), url)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Corrupt the cached file; the next loader must notice the checksum
	// mismatch and download again.
	if err := os.WriteFile(path, []byte("truncated"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewLoader(dir, ts.Client(), m).Load(context.Background(), url); err != nil {
		t.Fatalf("Load() over stale file error = %v", err)
	}
	if n := atomic.LoadInt32(&fetches); n != 2 {
		t.Errorf("fetched %d times, want 2", n)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "bundle" {
		t.Errorf("contents after refetch = %q, want %q", data, "bundle")
	}
}

func TestLoader_LoadAll(t *testing.T) {
	var fetches int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fetches, 1)
		w.Write([]byte("ok"))
	}))
	defer ts.Close()

	l := NewLoader(t.TempDir(), ts.Client(), nil)
	urls := []string{
		ts.URL + "/hands/hands.js",
		ts.URL + "/camera_utils/camera_utils.js",
		ts.URL + "/control_utils/control_utils.js",
		ts.URL + "/drawing_utils/drawing_utils.js",
	}

	if err := l.LoadAll(context.Background(), urls); err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if n := atomic.LoadInt32(&fetches); n != 4 {
		t.Errorf("fetched %d times, want 4", n)
	}

	// A second pass touches the network zero further times.
	if err := l.LoadAll(context.Background(), urls); err != nil {
		t.Fatalf("second LoadAll() error = %v", err)
	}
	if n := atomic.LoadInt32(&fetches); n != 4 {
		t.Errorf("fetched %d times after second pass, want 4", n)
	}
}

func TestBundleURLs(t *testing.T) {
	urls := BundleURLs()
	if len(urls) != 4 {
		t.Fatalf("len(BundleURLs()) = %d, want 4", len(urls))
	}
	for _, u := range urls {
		if u == "" {
			t.Error("empty bundle URL")
		}
	}
}
