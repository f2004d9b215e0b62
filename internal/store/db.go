// Package store persists the derived tables of the latest run to a sqlite
// warehouse.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"go-customer-intel/internal/errors"
	"go-customer-intel/internal/logger"
	"go-customer-intel/internal/model"
)

// Warehouse is a sqlite database holding exported tables plus a catalog
// describing them. Writes are serialised through a single connection.
type Warehouse struct {
	db   *sql.DB
	path string
}

// Open creates or opens the warehouse at path.
func Open(path string) (*Warehouse, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrap(err, "failed to create warehouse directory")
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open warehouse")
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to connect to %s", path)
	}

	w := &Warehouse{db: db, path: path}
	if err := w.init(); err != nil {
		db.Close()
		return nil, err
	}
	logger.Named("store").Infow("Warehouse ready", "path", path)
	return w, nil
}

const catalogTable = "warehouse_tables"

func (w *Warehouse) init() error {
	catalog := `
	CREATE TABLE IF NOT EXISTS ` + catalogTable + ` (
		name TEXT PRIMARY KEY,
		columns TEXT,
		row_count INTEGER,
		updated_at DATETIME
	);
	`
	if _, err := w.db.Exec(catalog); err != nil {
		return errors.Wrap(err, "failed to create warehouse schema")
	}
	return nil
}

// Path returns the database file.
func (w *Warehouse) Path() string { return w.path }

// Close releases the database.
func (w *Warehouse) Close() error {
	return w.db.Close()
}

// ------------------- Derived tables -------------------

// WriteTable replaces the table t.Name with the contents of t in one
// transaction.
func (w *Warehouse) WriteTable(ctx context.Context, t model.Table) error {
	if t.Name == "" || len(t.Columns) == 0 {
		return errors.InvalidParameter("table needs a name and at least one column")
	}
	if t.Name == catalogTable {
		return errors.InvalidParameter("table name %q is reserved", t.Name)
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	name := quote(t.Name)
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
		return errors.Wrapf(err, "failed to drop %s", t.Name)
	}

	defs := make([]string, len(t.Columns))
	cols := make([]string, len(t.Columns))
	marks := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = quote(c)
		defs[i] = cols[i] + " " + columnType(t, i)
		marks[i] = "?"
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", name, strings.Join(defs, ", "))); err != nil {
		return errors.Wrapf(err, "failed to create %s", t.Name)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		name, strings.Join(cols, ", "), strings.Join(marks, ", ")))
	if err != nil {
		return errors.Wrapf(err, "failed to prepare insert into %s", t.Name)
	}
	defer stmt.Close()

	args := make([]interface{}, len(t.Columns))
	for r, row := range t.Rows {
		for i := range args {
			args[i] = nil
			if i < len(row) {
				args[i] = row[i]
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return errors.Wrapf(err, "failed to insert row %d into %s", r+1, t.Name)
		}
	}

	columns, _ := json.Marshal(t.Columns)
	_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO `+catalogTable+` (name, columns, row_count, updated_at)
		VALUES (?, ?, ?, ?)`, t.Name, string(columns), len(t.Rows), time.Now().UTC())
	if err != nil {
		return errors.Wrapf(err, "failed to catalog %s", t.Name)
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrapf(err, "failed to commit %s", t.Name)
	}
	logger.Named("store").Debugw("Table written", "table", t.Name, "rows", len(t.Rows))
	return nil
}

// columnType infers the sqlite affinity of column i from its non-nil values.
func columnType(t model.Table, i int) string {
	kind := ""
	for _, row := range t.Rows {
		if i >= len(row) || row[i] == nil {
			continue
		}
		switch row[i].(type) {
		case int, int32, int64, bool:
			if kind == "" {
				kind = "INTEGER"
			}
		case float32, float64:
			if kind != "TEXT" {
				kind = "REAL"
			}
		default:
			return "TEXT"
		}
	}
	if kind == "" {
		return "TEXT"
	}
	return kind
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// TableInfo describes one derived table held in the warehouse.
type TableInfo struct {
	Name      string    `json:"name"`
	Columns   []string  `json:"columns"`
	RowCount  int       `json:"row_count"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Tables lists the cataloged tables by name.
func (w *Warehouse) Tables(ctx context.Context) ([]TableInfo, error) {
	rows, err := w.db.QueryContext(ctx, `SELECT name, columns, row_count, updated_at
		FROM `+catalogTable+` ORDER BY name`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list tables")
	}
	defer rows.Close()

	tables := []TableInfo{}
	for rows.Next() {
		var (
			info    TableInfo
			columns string
		)
		if err := rows.Scan(&info.Name, &columns, &info.RowCount, &info.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan table info")
		}
		if err := json.Unmarshal([]byte(columns), &info.Columns); err != nil {
			return nil, errors.Wrapf(err, "corrupt column list for %s", info.Name)
		}
		tables = append(tables, info)
	}
	return tables, rows.Err()
}

// Count returns the number of rows of table.
func (w *Warehouse) Count(ctx context.Context, table string) (int, error) {
	var n int
	if err := w.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quote(table)).Scan(&n); err != nil {
		return 0, errors.Wrapf(err, "failed to count %s", table)
	}
	return n, nil
}
