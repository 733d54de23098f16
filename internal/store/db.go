package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadySubscribed  = errors.New("email is already subscribed")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrAdminExists        = errors.New("admin already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrSetupComplete      = errors.New("setup already completed")
)

// goose keeps its dialect and filesystem in package globals.
var migrateMu sync.Mutex

// DB is the subscriber and admin store.
type DB struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at path and applies pending
// migrations.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func migrate(db *sql.DB) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}
