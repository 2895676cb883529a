/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	// PostgreSQL through database/sql
	_ "github.com/jackc/pgx/v5/stdlib"
	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"

	"gonovel/internal/engine"
	applog "gonovel/internal/log"
	"gonovel/internal/version"
)

// Supported save store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// schemaVersion tracks the save store schema. Bump it when adding migrations.
const schemaVersion = 2

// ErrSlotNotFound is returned by Load and Delete for unknown slots.
var ErrSlotNotFound = errors.New("save slot not found")

// Record is one stored save slot.
type Record struct {
	ID      string
	Slot    string
	SavedAt time.Time
	State   engine.Snapshot
}

// SaveStore keeps named save slots in a SQL database.
type SaveStore struct {
	db     *sql.DB
	driver string
	log    *slog.Logger
}

// OpenStore opens the save database and makes sure the schema is current.
// For sqlite, dsn is a file path; for pgx, a PostgreSQL connection string.
func OpenStore(ctx context.Context, driver, dsn string) (*SaveStore, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "store_open").With(slog.String("driver", driver))
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("save store dsn is required")
	}
	var db *sql.DB
	var err error
	switch driver {
	case DriverSQLite, "":
		driver = DriverSQLite
		db, err = openSQLite(ctx, dsn)
	case DriverPostgres:
		db, err = sql.Open("pgx", dsn)
		if err == nil {
			err = db.PingContext(ctx)
			if err != nil {
				_ = db.Close()
			}
		}
	default:
		return nil, fmt.Errorf("unknown save store driver %q", driver)
	}
	if err != nil {
		l.Error("open failed", slog.Any("err", err))
		return nil, fmt.Errorf("open save store: %w", err)
	}
	s := &SaveStore{db: db, driver: driver, log: applog.WithComponent("storage")}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		l.Error("ensure schema failed", slog.Any("err", err))
		return nil, err
	}
	l.Info("save store ready")
	return s, nil
}

func openSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create save dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	return db, nil
}

// Close releases the database.
func (s *SaveStore) Close() error { return s.db.Close() }

// Driver returns the database driver name.
func (s *SaveStore) Driver() string { return s.driver }

// rebind rewrites ? placeholders to $N for PostgreSQL.
func (s *SaveStore) rebind(q string) string {
	if s.driver != DriverPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

func (s *SaveStore) ensureSchema(ctx context.Context) error {
	ddl := []string{
		// language=SQL
		`CREATE TABLE IF NOT EXISTS version (
			id         INTEGER PRIMARY KEY CHECK(id=1),
			schema     INTEGER NOT NULL,
			app        TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		// language=SQL
		`CREATE TABLE IF NOT EXISTS saves (
			slot     TEXT PRIMARY KEY,
			id       TEXT NOT NULL,
			chapter  TEXT NOT NULL,
			progress INTEGER NOT NULL,
			state    TEXT NOT NULL,
			saved_at TEXT NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	var cur int
	err := s.db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// fresh database starts at version 1 and migrates forward
		cur = 1
		if _, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, ?, ?, ?, ?)`), cur, version.String(), now, now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		if _, err := s.db.ExecContext(ctx, s.rebind(`UPDATE version SET app=?, updated_at=? WHERE id=1`), version.String(), now); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}
	return s.migrate(ctx, cur)
}

// migrate applies incremental schema migrations up to schemaVersion.
func (s *SaveStore) migrate(ctx context.Context, cur int) error {
	for cur < schemaVersion {
		next := cur + 1
		var stmts []string
		switch next {
		case 2:
			stmts = []string{`CREATE INDEX IF NOT EXISTS idx_saves_saved_at ON saves(saved_at);`}
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", next, err)
		}
		for _, q := range stmts {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d stmt failed: %w", next, err)
			}
		}
		if _, err := tx.ExecContext(ctx, s.rebind(`UPDATE version SET schema=?, updated_at=? WHERE id=1`), next, time.Now().UTC().Format(time.RFC3339)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d update version: %w", next, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d commit: %w", next, err)
		}
		s.log.Debug("migrated save store", slog.Int("schema", next))
		cur = next
	}
	return nil
}

// SchemaVersion reports the schema version recorded in the database.
func (s *SaveStore) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&v)
	return v, err
}

// Save writes state into slot, replacing what was there.
func (s *SaveStore) Save(ctx context.Context, slot string, st engine.Snapshot) (Record, error) {
	slot = strings.TrimSpace(slot)
	if slot == "" {
		return Record{}, errors.New("slot name is required")
	}
	payload, err := json.Marshal(st)
	if err != nil {
		return Record{}, fmt.Errorf("marshal state: %w", err)
	}
	rec := Record{ID: uuid.NewString(), Slot: slot, SavedAt: time.Now().UTC(), State: st}
	// language=SQL
	q := `INSERT INTO saves (slot, id, chapter, progress, state, saved_at) VALUES(?, ?, ?, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET id=excluded.id, chapter=excluded.chapter, progress=excluded.progress,
			state=excluded.state, saved_at=excluded.saved_at`
	if _, err := s.db.ExecContext(ctx, s.rebind(q), slot, rec.ID, st.ChapterName, st.ChapterProgress, string(payload), rec.SavedAt.Format(time.RFC3339Nano)); err != nil {
		return Record{}, fmt.Errorf("save slot %s: %w", slot, err)
	}
	s.log.Info("saved", slog.String("slot", slot), slog.String("chapter", st.ChapterName), slog.Int("progress", st.ChapterProgress))
	return rec, nil
}

// Load reads the state stored in slot.
func (s *SaveStore) Load(ctx context.Context, slot string) (Record, error) {
	// language=SQL
	q := `SELECT slot, id, state, saved_at FROM saves WHERE slot=?`
	rec, err := scanRecord(s.db.QueryRowContext(ctx, s.rebind(q), slot))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrSlotNotFound, slot)
	}
	if err != nil {
		return Record{}, fmt.Errorf("load slot %s: %w", slot, err)
	}
	return rec, nil
}

// List returns all slots, newest first.
func (s *SaveStore) List(ctx context.Context) ([]Record, error) {
	// language=SQL
	rows, err := s.db.QueryContext(ctx, `SELECT slot, id, state, saved_at FROM saves ORDER BY saved_at DESC, slot`)
	if err != nil {
		return nil, fmt.Errorf("list saves: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("list saves: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Delete removes a slot.
func (s *SaveStore) Delete(ctx context.Context, slot string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM saves WHERE slot=?`), slot)
	if err != nil {
		return fmt.Errorf("delete slot %s: %w", slot, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrSlotNotFound, slot)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(r rowScanner) (Record, error) {
	var rec Record
	var payload, savedAt string
	if err := r.Scan(&rec.Slot, &rec.ID, &payload, &savedAt); err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal([]byte(payload), &rec.State); err != nil {
		return Record{}, fmt.Errorf("decode state: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, savedAt)
	if err != nil {
		return Record{}, fmt.Errorf("decode saved_at: %w", err)
	}
	rec.SavedAt = t
	return rec, nil
}
