// Package creds stores repository network credentials keyed by build, for
// optional netrc injection into a job's sandbox before its commands run.
package creds

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/r3t51w/abstruse/internal/pipeline"
	_ "modernc.org/sqlite"
)

// Store is a sqlite-backed credential source. It implements
// pipeline.CredentialSource.
type Store struct {
	dbPath string

	mu sync.Mutex
}

func Open(dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, errors.New("credential database path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create credential database directory: %w", err)
	}

	store := &Store{dbPath: dbPath}
	if err := store.initDB(context.Background()); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Store) initDB(ctx context.Context) error {
	db, err := sql.Open("sqlite", s.dbPath)
	if err != nil {
		return fmt.Errorf("open credential database %q: %w", s.dbPath, err)
	}
	defer db.Close()

	_, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS credentials (
			build_id INTEGER PRIMARY KEY,
			machine TEXT NOT NULL,
			login TEXT NOT NULL,
			password TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("initialise credential schema: %w", err)
	}
	return nil
}

// Put stores or replaces the credential for a build.
func (s *Store) Put(ctx context.Context, buildID uint, cred pipeline.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := sql.Open("sqlite", s.dbPath)
	if err != nil {
		return fmt.Errorf("open credential database %q: %w", s.dbPath, err)
	}
	defer db.Close()

	_, err = db.ExecContext(ctx, `
		INSERT INTO credentials (build_id, machine, login, password)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(build_id) DO UPDATE SET
			machine = excluded.machine,
			login = excluded.login,
			password = excluded.password
	`, buildID, cred.Machine, cred.Login, cred.Password)
	if err != nil {
		return fmt.Errorf("store credential for build %d: %w", buildID, err)
	}
	return nil
}

// Lookup returns the credential stored for a build, or false when the build
// has none.
func (s *Store) Lookup(ctx context.Context, buildID uint) (pipeline.Credential, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := sql.Open("sqlite", s.dbPath)
	if err != nil {
		return pipeline.Credential{}, false, fmt.Errorf("open credential database %q: %w", s.dbPath, err)
	}
	defer db.Close()

	row := db.QueryRowContext(ctx, `
		SELECT machine, login, password FROM credentials WHERE build_id = ?
	`, buildID)

	var cred pipeline.Credential
	if err := row.Scan(&cred.Machine, &cred.Login, &cred.Password); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return pipeline.Credential{}, false, nil
		}
		return pipeline.Credential{}, false, fmt.Errorf("look up credential for build %d: %w", buildID, err)
	}
	return cred, true, nil
}

// Delete removes the credential for a build, if present.
func (s *Store) Delete(ctx context.Context, buildID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := sql.Open("sqlite", s.dbPath)
	if err != nil {
		return fmt.Errorf("open credential database %q: %w", s.dbPath, err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, `DELETE FROM credentials WHERE build_id = ?`, buildID); err != nil {
		return fmt.Errorf("delete credential for build %d: %w", buildID, err)
	}
	return nil
}
