// Package storecheck verifies what the helper persisted in the collection
// database. Rows are looked up by business key (artwork source, platform
// ids) and compared field by field against the submitted request.
package storecheck

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"grimm.is/adderprobe/internal/logging"
)

// DatabaseFile is the collection database name inside the data home.
const DatabaseFile = "db.sqlite3"

// Store is a read-only handle on a collection.
type Store struct {
	db       *sql.DB
	dataHome string
	logger   *logging.Logger
}

// DatabasePath returns the database location for a data home.
func DatabasePath(dataHome string) string {
	return filepath.Join(dataHome, DatabaseFile)
}

// ReadOnlyDSN returns a SQLite URI opening path read-only.
func ReadOnlyDSN(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs), RawQuery: "mode=ro"}
	return u.String(), nil
}

// Open opens the collection under dataHome read-only.
// The helper must have exited; no writer coordination is done.
func Open(dataHome string, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.WithComponent("storecheck")
	}
	path := DatabasePath(dataHome)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("collection database: %w", err)
	}

	dsn, err := ReadOnlyDSN(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	logger.Debug("opened collection", "path", path, "driver", DriverName)
	return &Store{db: db, dataHome: dataHome, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DataHome returns the directory downloads are relative to.
func (s *Store) DataHome() string {
	return s.dataHome
}

// Tables whose row count can be compared with the submitted requests.
var CountedTables = []string{"artworks", "accounts", "tags", "art_acc_links", "art_tag_links"}

func (s *Store) count(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

// row fetches a single row as loosely typed values. It returns nil, nil
// when no row matches.
func (s *Store) row(ctx context.Context, query string, args ...any) ([]any, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if !rows.Next() {
		return nil, rows.Err()
	}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	return vals, nil
}
