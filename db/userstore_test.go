package db

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	app "github.com/etitcombe/tweeter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUserStore(t *testing.T) (*UserStoreFile, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "users")
	s, err := NewUserStoreFile(dir, LockConfig{})
	require.NoError(t, err)
	return s, dir
}

func TestUserStore_CreateGet(t *testing.T) {
	s, dir := newUserStore(t)
	ctx := context.Background()

	u := app.User{Handle: "alice", Display: "Alice", Bio: app.DefaultBio, PasswordHash: "hash"}
	require.NoError(t, s.Create(ctx, u))

	got, err := s.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, u, got)

	data, err := os.ReadFile(filepath.Join(dir, "alice.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Alice\nNew around here.\nhash\n\n0\n0\n", string(data))

	found, err := s.Exists(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestUserStore_CreateDuplicate(t *testing.T) {
	s, _ := newUserStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, app.User{Handle: "bob", PasswordHash: "one"}))
	err := s.Create(ctx, app.User{Handle: "bob", PasswordHash: "two"})
	require.ErrorIs(t, err, app.ErrAlreadyExists)

	got, err := s.Get(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "one", got.PasswordHash)
}

func TestUserStore_ConcurrentCreateHasOneWinner(t *testing.T) {
	s, _ := newUserStore(t)
	ctx := context.Background()

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Create(ctx, app.User{Handle: "race", Display: "racer"})
		}(i)
	}
	wg.Wait()

	var ok, dup int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, app.ErrAlreadyExists):
			dup++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, dup)
}

func TestUserStore_GetMissingAndUnsafe(t *testing.T) {
	s, _ := newUserStore(t)
	ctx := context.Background()

	for _, h := range []string{"nobody", "../etc/passwd", "", "UPPER"} {
		_, err := s.Get(ctx, h)
		assert.ErrorIs(t, err, app.ErrNotFound, h)
		found, err := s.Exists(ctx, h)
		require.NoError(t, err)
		assert.False(t, found, h)
	}

	var ve *app.ValidationError
	assert.ErrorAs(t, s.Create(ctx, app.User{Handle: "../x"}), &ve)
}

func TestUserStore_ModifyAndUpdate(t *testing.T) {
	s, _ := newUserStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, app.User{Handle: "carol", Display: "Carol"}))

	u, err := s.Modify(ctx, "carol", func(u *app.User) error {
		u.Verified = !u.Verified
		return nil
	})
	require.NoError(t, err)
	assert.True(t, u.Verified)

	stop := errors.New("stop")
	_, err = s.Modify(ctx, "carol", func(u *app.User) error {
		u.Verified = false
		return stop
	})
	require.ErrorIs(t, err, stop)
	got, err := s.Get(ctx, "carol")
	require.NoError(t, err)
	assert.True(t, got.Verified, "failed modify must not write")

	require.NoError(t, s.Update(ctx, app.User{Handle: "carol", Display: "C", Admin: true}))
	got, err = s.Get(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, app.User{Handle: "carol", Display: "C", Admin: true}, got)

	assert.ErrorIs(t, s.Update(ctx, app.User{Handle: "ghost"}), app.ErrNotFound)
}

func TestUserStore_ListSkipsForeignFiles(t *testing.T) {
	s, dir := newUserStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, app.User{Handle: "zed"}))
	require.NoError(t, s.Create(ctx, app.User{Handle: "amy"}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".zed.txt.123.tmp"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Bad Name.txt"), []byte("x"), 0o644))

	users, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "amy", users[0].Handle)
	assert.Equal(t, "zed", users[1].Handle)
}
