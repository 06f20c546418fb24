package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps the state as a single JSON document on disk. Writes go
// through a temp file and rename so a crash mid-write never leaves a
// truncated store. A process-local mutex serializes transactions; the file
// is not safe for concurrent use from multiple processes.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore opens (or prepares to create) the store at path. The parent
// directory is created if missing; the file itself is created lazily on the
// first edit.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("store path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &FileStore{path: path}, nil
}

// GetAccount returns a copy of the named account record.
func (f *FileStore) GetAccount(ctx context.Context, name string) (*Record, error) {
	st, err := f.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return getAccount(st, name)
}

// AddAccount creates a record for a never-seen account name.
func (f *FileStore) AddAccount(ctx context.Context, name string, rec Record) error {
	return f.Edit(ctx, func(st *State) error {
		if _, ok := st.Accounts[name]; ok {
			return ErrAccountExists
		}
		rec.Name = ""
		st.Accounts[name] = rec
		return nil
	})
}

// MainAccount returns the currently active account.
func (f *FileStore) MainAccount(ctx context.Context) (*Record, error) {
	st, err := f.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return mainAccount(st)
}

// SetMainAccount marks an existing account as active.
func (f *FileStore) SetMainAccount(ctx context.Context, name string) error {
	return f.Edit(ctx, func(st *State) error {
		if _, ok := st.Accounts[name]; !ok {
			return ErrAccountNotFound
		}
		st.Main = name
		return nil
	})
}

// Edit loads the state, applies fn, and persists the result. An error from
// fn aborts the transaction and nothing is written.
func (f *FileStore) Edit(ctx context.Context, fn func(*State) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	st, err := f.load()
	if err != nil {
		return err
	}
	if err := fn(st); err != nil {
		return err
	}
	return f.save(st)
}

func (f *FileStore) snapshot(ctx context.Context) (*State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load()
}

func (f *FileStore) load() (*State, error) {
	st := &State{}
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			st.init()
			return st, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := json.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("%w: corrupt store: %v", ErrUnavailable, err)
	}
	st.init()
	return st, nil
}

func (f *FileStore) save(st *State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".vapor-store-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
