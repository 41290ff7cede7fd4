package sqliteutil

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

type Config struct {
	// a filesystem path, `:memory:`, or a `libsql://` / `https://` url to a remote libsql database
	File string `json:"file"`
}

func isRemote(path string) bool {
	return strings.HasPrefix(path, "libsql://") ||
		strings.HasPrefix(path, "https://") ||
		strings.HasPrefix(path, "http://")
}

// OpenDB opens the database described by the config and applies the schema.
func (config Config) OpenDB(schema string) (*sql.DB, error) {
	if config.File == "" {
		return nil, fmt.Errorf("a path was not specified")
	}
	return OpenDB(schema, config.File)
}

// OpenDB opens (creating if needed) a sqlite database at path and applies the schema.
func OpenDB(schema, path string) (*sql.DB, error) {
	if isRemote(path) {
		db, err := sql.Open("libsql", path)
		if err != nil {
			return nil, err
		}
		_, err = db.Exec(schema)
		if err != nil {
			db.Close()
			return nil, err
		}
		return db, nil
	}

	if path != ":memory:" {
		err := os.MkdirAll(filepath.Dir(path), 0o755)
		if err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// see this stackoverflow post for information on why the following
	// lines exist: https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
	db.SetMaxOpenConns(1)
	if path != ":memory:" {
		_, err = db.Exec("PRAGMA journal_mode=WAL")
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	_, err = db.Exec(schema)
	if err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
