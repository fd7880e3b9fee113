package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// EngineAsset is one downloaded engine runtime asset.
type EngineAsset struct {
	ID        string
	URL       string
	Path      string
	Checksum  string
	FetchedAt time.Time
}

// AssetRepository records downloaded engine assets. It implements the
// asset loader's Manifest interface.
type AssetRepository struct {
	db *sql.DB
}

// Assets returns the asset repository for this store.
func (s *Store) Assets() *AssetRepository {
	return &AssetRepository{db: s.db}
}

// Record inserts or refreshes a manifest entry for a downloaded asset.
func (r *AssetRepository) Record(url, path, checksum string) error {
	_, err := r.db.Exec(
		`INSERT INTO engine_assets (id, url, path, checksum, fetched_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(url) DO UPDATE SET
		 	path = excluded.path,
		 	checksum = excluded.checksum,
		 	fetched_at = excluded.fetched_at`,
		uuid.NewString(), url, path, checksum, time.Now(),
	)
	return err
}

// Checksum returns the checksum recorded for an asset URL, or ErrNotFound
// when the asset was never downloaded. The loader uses it to decide whether
// a file already on disk still satisfies a load.
func (r *AssetRepository) Checksum(url string) (string, error) {
	a, err := r.GetByURL(url)
	if err != nil {
		return "", err
	}
	return a.Checksum, nil
}

// GetByURL retrieves a manifest entry by asset URL.
func (r *AssetRepository) GetByURL(url string) (*EngineAsset, error) {
	a := &EngineAsset{}
	err := r.db.QueryRow(
		`SELECT id, url, path, checksum, fetched_at FROM engine_assets WHERE url = ?`,
		url,
	).Scan(&a.ID, &a.URL, &a.Path, &a.Checksum, &a.FetchedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

// List returns all manifest entries ordered by URL.
func (r *AssetRepository) List() ([]EngineAsset, error) {
	rows, err := r.db.Query(
		`SELECT id, url, path, checksum, fetched_at FROM engine_assets ORDER BY url`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EngineAsset
	for rows.Next() {
		var a EngineAsset
		if err := rows.Scan(&a.ID, &a.URL, &a.Path, &a.Checksum, &a.FetchedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
