package sheetdb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"orderline/internal/migrate"
)

const dbFileName = "orderline.db"

// Path returns the database file location under the workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".orderline", dbFileName)
}

// Open creates the workspace directory if missing, opens the SQLite
// database, and brings the schema up to date, so a fresh workspace
// works without a separate setup step. The engine is the single
// writer; WAL plus a busy timeout keeps readers such as a log tail
// from tripping over it.
func Open(workspace string) (*Store, error) {
	path := Path(workspace)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return New(conn), nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}
