package store

import (
	"database/sql"
	"os"
	"path/filepath"

	"doodleclass/internal/logger"
)

// OpenDefaultDB opens the run database under the user cache dir,
// creating the directory when missing.
func OpenDefaultDB() (*sql.DB, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return nil, err
	}
	dbPath := filepath.Join(cacheDir, "doodleclass", "doodleclass.db")
	logger.Debug("dbPath: %s", dbPath)

	os.MkdirAll(filepath.Dir(dbPath), 0755)

	db, err := sql.Open("libsql", "file:"+dbPath)
	if err != nil {
		return nil, err
	}

	return db, nil
}
