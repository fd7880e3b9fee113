package store

import (
	"errors"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return s
}

func TestSettings_SetGet(t *testing.T) {
	s := newTestStore(t)

	if err := s.Settings().Set(SettingCameraID, "2"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := s.Settings().Get(SettingCameraID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "2" {
		t.Errorf("Get() = %q, want %q", got, "2")
	}

	// Upsert overwrites
	if err := s.Settings().Set(SettingCameraID, "0"); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}
	got, _ = s.Settings().Get(SettingCameraID)
	if got != "0" {
		t.Errorf("Get() after overwrite = %q, want %q", got, "0")
	}
}

func TestSettings_GetMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Settings().Get("nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestSettings_TypedHelpers(t *testing.T) {
	s := newTestStore(t)

	if got := s.Settings().GetFloat(SettingCenterDecay, 0.95); got != 0.95 {
		t.Errorf("GetFloat() missing key = %v, want fallback 0.95", got)
	}

	if err := s.Settings().SetFloat(SettingCenterDecay, 0.9); err != nil {
		t.Fatalf("SetFloat() error = %v", err)
	}
	if got := s.Settings().GetFloat(SettingCenterDecay, 0.95); got != 0.9 {
		t.Errorf("GetFloat() = %v, want 0.9", got)
	}

	if got := s.Settings().GetInt(SettingCameraID, 0); got != 0 {
		t.Errorf("GetInt() missing key = %d, want fallback 0", got)
	}
	if err := s.Settings().SetInt(SettingCameraID, 3); err != nil {
		t.Fatalf("SetInt() error = %v", err)
	}
	if got := s.Settings().GetInt(SettingCameraID, 0); got != 3 {
		t.Errorf("GetInt() = %d, want 3", got)
	}

	// Malformed values fall back
	s.Settings().Set(SettingCameraID, "not a number")
	if got := s.Settings().GetInt(SettingCameraID, 7); got != 7 {
		t.Errorf("GetInt() malformed = %d, want fallback 7", got)
	}
}

func TestSettings_AllAndDelete(t *testing.T) {
	s := newTestStore(t)

	s.Settings().Set("a", "1")
	s.Settings().Set("b", "2")

	all, err := s.Settings().All()
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(all) != 2 || all["a"] != "1" || all["b"] != "2" {
		t.Errorf("All() = %v", all)
	}

	if err := s.Settings().Delete("a"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Settings().Get("a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after Delete error = %v, want ErrNotFound", err)
	}

	// Deleting an absent key is fine
	if err := s.Settings().Delete("nope"); err != nil {
		t.Errorf("Delete() absent key error = %v", err)
	}
}

func TestAssets_RecordAndGet(t *testing.T) {
	s := newTestStore(t)

	url := "https://cdn.jsdelivr.net/npm/@mediapipe/hands/hands.js"
	if err := s.Assets().Record(url, "/cache/hands/hands.js", "abc123"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	a, err := s.Assets().GetByURL(url)
	if err != nil {
		t.Fatalf("GetByURL() error = %v", err)
	}
	if a.Path != "/cache/hands/hands.js" {
		t.Errorf("Path = %q", a.Path)
	}
	if a.Checksum != "abc123" {
		t.Errorf("Checksum = %q", a.Checksum)
	}
	if a.ID == "" {
		t.Error("ID is empty")
	}
	if a.FetchedAt.IsZero() {
		t.Error("FetchedAt is zero")
	}
}

func TestAssets_RecordUpsertsByURL(t *testing.T) {
	s := newTestStore(t)

	url := "https://cdn.jsdelivr.net/npm/@mediapipe/hands/hands.js"
	s.Assets().Record(url, "/old/path", "old")
	s.Assets().Record(url, "/new/path", "new")

	list, err := s.Assets().List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("List() returned %d entries, want 1", len(list))
	}
	if list[0].Checksum != "new" {
		t.Errorf("Checksum = %q, want %q", list[0].Checksum, "new")
	}
}

func TestAssets_GetMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Assets().GetByURL("https://example.com/none.js")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByURL() error = %v, want ErrNotFound", err)
	}
}

func TestAssets_Checksum(t *testing.T) {
	s := newTestStore(t)

	url := "https://cdn.jsdelivr.net/npm/@mediapipe/hands/hands.js"
	if _, err := s.Assets().Checksum(url); !errors.Is(err, ErrNotFound) {
		t.Errorf("Checksum() before Record error = %v, want ErrNotFound", err)
	}

	s.Assets().Record(url, "/cache/hands/hands.js", "abc123")
	sum, err := s.Assets().Checksum(url)
	if err != nil {
		t.Fatalf("Checksum() error = %v", err)
	}
	if sum != "abc123" {
		t.Errorf("Checksum() = %q, want %q", sum, "abc123")
	}
}
