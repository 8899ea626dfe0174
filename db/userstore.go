package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	app "github.com/etitcombe/tweeter"
	"github.com/etitcombe/tweeter/record"
)

// handleStem guards the filesystem. The stricter 2-20 rule for new handles
// lives with registration.
var handleStem = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// UserStoreFile implements the UserStore interface against the file system,
// one file per user in dir.
type UserStoreFile struct {
	dir  string
	lock LockConfig
}

// NewUserStoreFile creates and returns a new instance of a UserStoreFile,
// creating dir when missing.
func NewUserStoreFile(dir string, lock LockConfig) (*UserStoreFile, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create users dir: %w", err)
	}
	return &UserStoreFile{dir: dir, lock: lock}, nil
}

func (s *UserStoreFile) path(handle string) (string, bool) {
	if !handleStem.MatchString(handle) {
		return "", false
	}
	return filepath.Join(s.dir, handle+recordExt), true
}

// Exists reports whether a record exists for handle.
func (s *UserStoreFile) Exists(ctx context.Context, handle string) (bool, error) {
	path, ok := s.path(handle)
	if !ok {
		return false, nil
	}
	found, err := exists(path)
	if err != nil {
		return false, &app.StorageError{Op: "stat user " + handle, Err: err}
	}
	return found, nil
}

// Get reads the user with the given handle. A missing record is
// app.ErrNotFound; callers that display profiles fall back to app.Guest.
func (s *UserStoreFile) Get(ctx context.Context, handle string) (app.User, error) {
	path, ok := s.path(handle)
	if !ok {
		return app.User{}, app.ErrNotFound
	}
	return s.read(handle, path)
}

func (s *UserStoreFile) read(handle, path string) (app.User, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return app.User{}, app.ErrNotFound
		}
		return app.User{}, &app.StorageError{Op: "read user " + handle, Err: err}
	}
	return record.DecodeUser(handle, data), nil
}

// Create writes a new user record. It fails with app.ErrAlreadyExists when
// the handle is taken; of two concurrent creates for one handle exactly one
// succeeds.
func (s *UserStoreFile) Create(ctx context.Context, u app.User) error {
	path, ok := s.path(u.Handle)
	if !ok {
		return app.Validation("Invalid handle.")
	}
	return withFileLock(ctx, s.lock, path, func() error {
		found, err := exists(path)
		if err != nil {
			return &app.StorageError{Op: "stat user " + u.Handle, Err: err}
		}
		if found {
			return app.ErrAlreadyExists
		}
		if err := writeFileAtomic(path, record.EncodeUser(u), 0o644); err != nil {
			return &app.StorageError{Op: "write user " + u.Handle, Err: err}
		}
		return nil
	})
}

// Update overwrites an existing user record with u. Nothing is merged.
func (s *UserStoreFile) Update(ctx context.Context, u app.User) error {
	_, err := s.Modify(ctx, u.Handle, func(old *app.User) error {
		*old = u
		return nil
	})
	return err
}

// Modify reads the record for handle, applies fn and writes the result, all
// under the record lock. When fn returns an error nothing is written.
func (s *UserStoreFile) Modify(ctx context.Context, handle string, fn func(*app.User) error) (app.User, error) {
	path, ok := s.path(handle)
	if !ok {
		return app.User{}, app.ErrNotFound
	}
	var u app.User
	err := withFileLock(ctx, s.lock, path, func() error {
		var err error
		if u, err = s.read(handle, path); err != nil {
			return err
		}
		if err := fn(&u); err != nil {
			return err
		}
		u.Handle = handle
		if err := writeFileAtomic(path, record.EncodeUser(u), 0o644); err != nil {
			return &app.StorageError{Op: "write user " + handle, Err: err}
		}
		return nil
	})
	if err != nil {
		return app.User{}, err
	}
	return u, nil
}

// List returns every user, sorted by handle.
func (s *UserStoreFile) List(ctx context.Context) ([]app.User, error) {
	handles, err := recordStems(s.dir, handleStem.MatchString)
	if err != nil {
		return nil, &app.StorageError{Op: "list users", Err: err}
	}
	sort.Strings(handles)

	users := make([]app.User, 0, len(handles))
	for _, h := range handles {
		u, err := s.read(h, filepath.Join(s.dir, h+recordExt))
		if errors.Is(err, app.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}
