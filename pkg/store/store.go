// Package store persists the account database: a mapping from account name
// to base32 secret, loaded and saved as a whole.
package store

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// Store is the persistence boundary used by the front end.
type Store interface {
	Load() (*Database, error)
	Save(db *Database) error
}

// FileStore keeps the database in a single file. A nil Passphrase reads
// and writes plain databases.
type FileStore struct {
	Path       string
	Passphrase []byte
	Logger     *slog.Logger
}

func NewFileStore(path string, passphrase []byte, logger *slog.Logger) *FileStore {
	return &FileStore{Path: path, Passphrase: passphrase, Logger: logger}
}

func (s *FileStore) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s.Logger
}

// Exists reports whether the database file has been created.
func (s *FileStore) Exists() bool {
	_, err := os.Stat(s.Path)
	return err == nil
}

// Load returns an empty database when the file does not exist yet.
func (s *FileStore) Load() (*Database, error) {
	db, err := Load(s.Path, s.Passphrase)
	if errors.Is(err, os.ErrNotExist) {
		s.logger().Debug("database not found, starting empty", slog.String("path", s.Path))
		return NewDatabase(), nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "cannot load %s", s.Path)
	}
	s.logger().Debug("database loaded", slog.String("path", s.Path), slog.Int("accounts", len(db.Accounts)))
	return db, nil
}

// Save writes to a temporary file in the same directory and renames it over
// the database so an interrupted save never truncates existing accounts.
func (s *FileStore) Save(db *Database) error {
	var dir = filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.Wrap(err, "cannot create database directory")
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.Path)+".*")
	if err != nil {
		return errors.Wrap(err, "cannot create temporary file")
	}
	var tmpName = tmp.Name()
	defer os.Remove(tmpName)

	if err = tmp.Chmod(0600); err != nil {
		tmp.Close()
		return err
	}
	if err = Write(tmp, db, s.Passphrase); err != nil {
		tmp.Close()
		return errors.Wrap(err, "cannot write database")
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Rename(tmpName, s.Path); err != nil {
		return errors.Wrapf(err, "cannot replace %s", s.Path)
	}
	s.logger().Debug("database saved",
		slog.String("path", s.Path),
		slog.Int("accounts", len(db.Accounts)),
		slog.Bool("encrypted", s.Passphrase != nil))
	return nil
}

// MemoryStore holds an encoded database in memory. It round-trips through
// the file format so callers observe the same copy semantics as FileStore.
type MemoryStore struct {
	mu   sync.Mutex
	data []byte
}

func (s *MemoryStore) Load() (*Database, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return NewDatabase(), nil
	}
	return Read(bytes.NewReader(s.data), nil)
}

func (s *MemoryStore) Save(db *Database) error {
	var buf bytes.Buffer
	if err := Write(&buf, db, nil); err != nil {
		return err
	}
	s.mu.Lock()
	s.data = buf.Bytes()
	s.mu.Unlock()
	return nil
}
