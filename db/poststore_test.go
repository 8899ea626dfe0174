package db

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	app "github.com/etitcombe/tweeter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPostStore(t *testing.T) (*PostStoreFile, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "posts")
	s, err := NewPostStoreFile(dir, LockConfig{})
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC) }
	return s, dir
}

func TestPostStore_CreateGet(t *testing.T) {
	s, dir := newPostStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, app.Post{Author: "alice", Content: "hello world"})
	require.NoError(t, err)
	id := created.ID
	assert.Regexp(t, `^20240309-140507-000000000-[0-9a-f]{8}$`, id)
	assert.True(t, ValidPostID(id))

	p, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, app.Post{ID: id, Author: "alice", Date: "2024-03-09 14:05", Content: "hello world"}, p)
	assert.Equal(t, p, created)

	data, err := os.ReadFile(filepath.Join(dir, id+".txt"))
	require.NoError(t, err)
	assert.Equal(t, "alice\n2024-03-09 14:05\nhello world\n0\n0\n", string(data))
}

func TestPostStore_KeepsGivenDate(t *testing.T) {
	s, _ := newPostStore(t)
	p, err := s.Create(context.Background(), app.Post{Author: "alice", Date: "2020-01-01 00:00", Content: "x"})
	require.NoError(t, err)
	assert.Equal(t, "2020-01-01 00:00", p.Date)
}

func TestPostStore_SameSecondIDsFollowCreationOrder(t *testing.T) {
	s, _ := newPostStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 50; i++ {
		p, err := s.Create(ctx, app.Post{Author: "a", Content: "x"})
		require.NoError(t, err)
		if len(ids) > 0 {
			require.Greater(t, p.ID, ids[len(ids)-1], "ids must sort in creation order")
		}
		ids = append(ids, p.ID)
	}
	posts, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, posts, 50)
}

func TestPostStore_IDsStayOrderedWhenClockStepsBack(t *testing.T) {
	s, _ := newPostStore(t)
	ctx := context.Background()
	clock := time.Date(2024, 3, 9, 14, 5, 7, 500, time.UTC)
	s.now = func() time.Time { return clock }

	first, err := s.Create(ctx, app.Post{Author: "a", Content: "x"})
	require.NoError(t, err)
	clock = clock.Add(-time.Second)
	second, err := s.Create(ctx, app.Post{Author: "a", Content: "y"})
	require.NoError(t, err)

	assert.Greater(t, second.ID, first.ID)
	assert.Equal(t, first.Date, second.Date)
}

func TestPostStore_ConcurrentLikesAreNotLost(t *testing.T) {
	s, _ := newPostStore(t)
	ctx := context.Background()
	created, err := s.Create(ctx, app.Post{Author: "alice", Content: "popular"})
	require.NoError(t, err)
	id := created.ID

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := s.IncrementLikes(ctx, id)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := s.IncrementRetweets(ctx, id)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	p, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, n, p.Likes)
	assert.Equal(t, n, p.Retweets)
}

func TestPostStore_RejectsForeignIDs(t *testing.T) {
	s, dir := newPostStore(t)
	ctx := context.Background()
	require.NoError(t, os.WriteFile(filepath.Join(t.TempDir(), "secret.txt"), []byte("x\n"), 0o644))

	for _, id := range []string{
		"",
		"../secret",
		"20240309-140507-abcd/../../x",
		"20240309-140507-ABCD",
		"20240309-140507-ab",
		"20240309-140507-12345-abcd1234",
		"nope",
	} {
		_, err := s.Get(ctx, id)
		assert.ErrorIs(t, err, app.ErrNotFound, id)
		_, err = s.IncrementLikes(ctx, id)
		assert.ErrorIs(t, err, app.ErrNotFound, id)
	}

	_, err := s.IncrementRetweets(ctx, "20240309-140507-abcd")
	assert.ErrorIs(t, err, app.ErrNotFound)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "failed increments must not leave files behind")
}

func TestPostStore_ReadsLegacyRecords(t *testing.T) {
	s, dir := newPostStore(t)
	ctx := context.Background()
	id := "20230101-090000-ab12"
	require.NoError(t, os.WriteFile(filepath.Join(dir, id+".txt"), []byte("olduser\n2023-01-01 09:00\nfirst!\n"), 0o644))

	p, err := s.IncrementLikes(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Likes)
	assert.Equal(t, "first!", p.Content)

	data, err := os.ReadFile(filepath.Join(dir, id+".txt"))
	require.NoError(t, err)
	assert.Equal(t, "olduser\n2023-01-01 09:00\nfirst!\n1\n0\n", string(data))
}
