package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"pricenorm/internal"
)

type DB struct {
	conn *sql.DB
}

// SaveResult reports how many records were stored and which ones collided
// with an existing (source, code, base date) key.
type SaveResult struct {
	Inserted  int
	Conflicts []internal.ServiceRecord
}

type ProcessedFile struct {
	Path      string
	Hash      string
	Status    internal.WorkbookStatus
	Authority internal.Authority
	Accepted  int
	Rejected  int
	Error     string
	UpdatedAt string
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS services (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  source TEXT NOT NULL,
  service_code TEXT NOT NULL,
  base_date TEXT NOT NULL,
  description TEXT NOT NULL,
  unit TEXT,
  tax_loaded INTEGER NOT NULL,
  unit_value TEXT NOT NULL,
  overhead_value TEXT,
  overhead_rate TEXT,
  quantity TEXT,
  aux_json TEXT NOT NULL,
  origin_file TEXT NOT NULL,
  sheet TEXT,
  row_no INTEGER,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(source, service_code, base_date)
);
CREATE INDEX IF NOT EXISTS idx_services_code ON services(service_code);

CREATE TABLE IF NOT EXISTS processed_files (
  path TEXT PRIMARY KEY,
  hash TEXT NOT NULL,
  status TEXT NOT NULL,
  authority TEXT,
  accepted INTEGER NOT NULL DEFAULT 0,
  rejected INTEGER NOT NULL DEFAULT 0,
  error TEXT,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  timingsJson TEXT NOT NULL,
  countsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

// SaveServices inserts accepted records in one transaction. A record whose
// key is already stored is left untouched and returned as a conflict.
func (d *DB) SaveServices(records []internal.ServiceRecord) (SaveResult, error) {
	var res SaveResult

	tx, err := d.conn.Begin()
	if err != nil {
		return res, err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
INSERT INTO services (
  source, service_code, base_date, description, unit, tax_loaded,
  unit_value, overhead_value, overhead_rate, quantity, aux_json, origin_file, sheet, row_no
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(source, service_code, base_date) DO NOTHING
`)
	if err != nil {
		return res, err
	}
	defer stmt.Close()

	for _, r := range records {
		if r.UnitValue == nil {
			return res, fmt.Errorf("service %s has no unit value", r.Key())
		}
		auxJSON, _ := json.Marshal(r.Aux)
		result, err := stmt.Exec(
			string(r.Authority), r.Code, r.BaseDate.Format(time.DateOnly), r.Description, r.Unit, r.TaxLoaded,
			r.UnitValue.StringFixed(2), nullDecimal(r.OverheadValue), nullDecimal(r.OverheadRate), nullDecimal(r.Quantity),
			string(auxJSON), r.OriginFile, r.Sheet, r.Row,
		)
		if err != nil {
			return res, err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return res, err
		}
		if n == 0 {
			res.Conflicts = append(res.Conflicts, r)
			continue
		}
		res.Inserted++
	}

	if err := tx.Commit(); err != nil {
		return SaveResult{}, err
	}
	return res, nil
}

func (d *DB) ListServices(source internal.Authority) ([]internal.ServiceRecord, error) {
	rows, err := d.conn.Query(`
SELECT source, service_code, base_date, description, unit, tax_loaded,
       unit_value, overhead_value, overhead_rate, quantity, aux_json, origin_file, sheet, row_no
FROM services WHERE source = ? ORDER BY service_code, base_date`, string(source))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.ServiceRecord
	for rows.Next() {
		var (
			r                         internal.ServiceRecord
			src, baseDate, auxJSON    string
			unit, overhead, rate, qty decimal.NullDecimal
		)
		if err := rows.Scan(
			&src, &r.Code, &baseDate, &r.Description, &r.Unit, &r.TaxLoaded,
			&unit, &overhead, &rate, &qty, &auxJSON, &r.OriginFile, &r.Sheet, &r.Row,
		); err != nil {
			return nil, err
		}
		r.Authority = internal.Authority(src)
		r.BaseDate, _ = time.Parse(time.DateOnly, baseDate)
		r.UnitValue = decimalPtr(unit)
		r.OverheadValue = decimalPtr(overhead)
		r.OverheadRate = decimalPtr(rate)
		r.Quantity = decimalPtr(qty)
		_ = json.Unmarshal([]byte(auxJSON), &r.Aux)
		out = append(out, r)
	}

	return out, rows.Err()
}

func (d *DB) UpsertProcessedFile(f ProcessedFile) error {
	_, err := d.conn.Exec(`
INSERT INTO processed_files (path, hash, status, authority, accepted, rejected, error)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(path) DO UPDATE SET
  hash=excluded.hash,
  status=excluded.status,
  authority=excluded.authority,
  accepted=excluded.accepted,
  rejected=excluded.rejected,
  error=excluded.error,
  updatedAt=CURRENT_TIMESTAMP
`, f.Path, f.Hash, string(f.Status), string(f.Authority), f.Accepted, f.Rejected, f.Error)
	return err
}

func (d *DB) GetProcessedFile(path string) (*ProcessedFile, error) {
	var (
		f                       ProcessedFile
		status                  string
		authority, errorMessage sql.NullString
	)
	err := d.conn.QueryRow(`
SELECT path, hash, status, authority, accepted, rejected, error, updatedAt
FROM processed_files WHERE path = ?
`, path).Scan(&f.Path, &f.Hash, &status, &authority, &f.Accepted, &f.Rejected, &errorMessage, &f.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	f.Status = internal.WorkbookStatus(status)
	f.Authority = internal.Authority(authority.String)
	f.Error = errorMessage.String
	return &f, nil
}

func (d *DB) InsertRun(traceID string, timings map[string]float64, counts map[string]int) error {
	timingsJSON, _ := json.Marshal(timings)
	countsJSON, _ := json.Marshal(counts)
	_, err := d.conn.Exec(`INSERT INTO runs (traceId, timingsJson, countsJson) VALUES (?, ?, ?)`, traceID, string(timingsJSON), string(countsJSON))
	return err
}

func (d *DB) CountRuns() (int, error) {
	var n int
	err := d.conn.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&n)
	return n, err
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func nullDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func decimalPtr(n decimal.NullDecimal) *decimal.Decimal {
	if !n.Valid {
		return nil
	}
	d := n.Decimal
	return &d
}
