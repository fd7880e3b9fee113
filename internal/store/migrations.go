package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Settings table - daemon settings as key-value pairs
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		// Engine assets table - manifest of downloaded runtime assets
		`CREATE TABLE IF NOT EXISTS engine_assets (
			id TEXT PRIMARY KEY,
			url TEXT NOT NULL UNIQUE,
			path TEXT NOT NULL,
			checksum TEXT NOT NULL,
			fetched_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_engine_assets_url ON engine_assets(url)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
