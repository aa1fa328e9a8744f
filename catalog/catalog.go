// Package catalog indexes generated tables in a SQLite database
package catalog

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

var ErrNotFound = errors.New("table not registered")

// Entry describes one generated table file
type Entry struct {
	ID        string
	Method    string
	Reference string
	Path      string
	Header    string
	Strategy  string
	Levels    int // Deepest refinement level reached
	Nodes     int
	Converged bool
	Created   time.Time
}

// Catalog is the index of the tables generated on this machine
type Catalog struct {
	db *sql.DB
}

// Open creates the database at path if needed and applies the schema
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to catalog: %w", err)
	}
	// SQLite has a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply catalog schema: %w", err)
	}
	return &Catalog{db: db}, nil
}

func (c *Catalog) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Register inserts e, assigning an id and a creation time when missing.
// Registering the same id twice keeps the first entry.
func (c *Catalog) Register(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.Must(uuid.NewV7()).String()
	}
	if e.Created.IsZero() {
		e.Created = time.Now()
	}
	e.Created = e.Created.UTC()
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO tables
		(id, method, reference, path, header, strategy, levels, nodes, converged, created)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		e.ID, e.Method, e.Reference, e.Path, e.Header, e.Strategy,
		e.Levels, e.Nodes, e.Converged, e.Created.Format(time.RFC3339Nano),
	)
	if err != nil {
		return e, fmt.Errorf("register table: %w", err)
	}
	return e, nil
}

const selectEntry = `SELECT id, method, reference, path, header, strategy, levels, nodes, converged, created FROM tables`

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (e Entry, err error) {
	var created string
	if err = row.Scan(&e.ID, &e.Method, &e.Reference, &e.Path, &e.Header, &e.Strategy,
		&e.Levels, &e.Nodes, &e.Converged, &created); err != nil {
		return
	}
	if e.Created, err = time.Parse(time.RFC3339Nano, created); err != nil {
		err = fmt.Errorf("table %s has a bad creation time %q: %w", e.ID, created, err)
	}
	return
}

// Get returns the entry with the given id
func (c *Catalog) Get(ctx context.Context, id string) (e Entry, err error) {
	e, err = scan(c.db.QueryRowContext(ctx, selectEntry+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		err = fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return
}

// List returns every entry in creation order, restricted to one reference when it is not empty
func (c *Catalog) List(ctx context.Context, reference string) (entries []Entry, err error) {
	var rows *sql.Rows
	if reference == "" {
		rows, err = c.db.QueryContext(ctx, selectEntry+` ORDER BY created, id`)
	} else {
		rows, err = c.db.QueryContext(ctx, selectEntry+` WHERE reference = ? ORDER BY created, id`, reference)
	}
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e Entry
		if e, err = scan(rows); err != nil {
			return nil, fmt.Errorf("list tables: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
