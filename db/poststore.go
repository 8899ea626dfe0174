package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	app "github.com/etitcombe/tweeter"
	"github.com/etitcombe/tweeter/rand"
	"github.com/etitcombe/tweeter/record"
)

const (
	idTimeLayout   = "20060102-150405"
	dateLayout     = "2006-01-02 15:04"
	idSuffixBytes  = 4
	createAttempts = 5
)

// postID matches the ids this store generates: date, time, nanoseconds and
// a random suffix. Older posts have no nanosecond part and a 4 digit suffix.
var postID = regexp.MustCompile(`^[0-9]{8}-[0-9]{6}(-[0-9]{9})?-[0-9a-f]{4,16}$`)


// ValidPostID reports whether id has the shape of a generated post id. Only
// such ids are ever turned into a path.
func ValidPostID(id string) bool {
	return postID.MatchString(id)
}

// PostStoreFile implements the PostStore interface against the file system,
// one file per post in dir.
type PostStoreFile struct {
	dir  string
	lock LockConfig
	now  func() time.Time

	clockMu sync.Mutex
	last    int64
}

// NewPostStoreFile creates and returns a new instance of a PostStoreFile,
// creating dir when missing.
func NewPostStoreFile(dir string, lock LockConfig) (*PostStoreFile, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create posts dir: %w", err)
	}
	return &PostStoreFile{dir: dir, lock: lock, now: time.Now}, nil
}

func (s *PostStoreFile) path(id string) (string, bool) {
	if !ValidPostID(id) {
		return "", false
	}
	return filepath.Join(s.dir, id+recordExt), true
}

// instant returns a strictly increasing creation time so that ids from this
// store sort in creation order even when the clock stalls or steps back.
func (s *PostStoreFile) instant() time.Time {
	t := s.now()
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	if n := t.UnixNano(); n > s.last {
		s.last = n
		return t
	}
	s.last++
	return time.Unix(0, s.last).In(t.Location())
}

func (s *PostStoreFile) newID(t time.Time) (string, error) {
	suffix, err := rand.Hex(idSuffixBytes)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%09d-%s", t.Format(idTimeLayout), t.Nanosecond(), suffix), nil
}

// Create stores p under a freshly generated id and returns the stored post.
// An empty p.Date is set from the same instant the id is derived from.
func (s *PostStoreFile) Create(ctx context.Context, p app.Post) (app.Post, error) {
	stamp := p.Date == ""
	for i := 0; i < createAttempts; i++ {
		now := s.instant()
		if stamp {
			p.Date = now.Format(dateLayout)
		}
		id, err := s.newID(now)
		if err != nil {
			return app.Post{}, &app.StorageError{Op: "generate post id", Err: err}
		}
		path, _ := s.path(id)
		p.ID = id
		err = withFileLock(ctx, s.lock, path, func() error {
			found, err := exists(path)
			if err != nil {
				return &app.StorageError{Op: "stat post " + id, Err: err}
			}
			if found {
				return app.ErrAlreadyExists
			}
			if err := writeFileAtomic(path, record.EncodePost(p), 0o644); err != nil {
				return &app.StorageError{Op: "write post " + id, Err: err}
			}
			return nil
		})
		if errors.Is(err, app.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return app.Post{}, err
		}
		return p, nil
	}
	return app.Post{}, &app.StorageError{Op: "create post", Err: errors.New("could not allocate a unique id")}
}

// Get reads the post with the given id. Malformed ids are app.ErrNotFound.
func (s *PostStoreFile) Get(ctx context.Context, id string) (app.Post, error) {
	path, ok := s.path(id)
	if !ok {
		return app.Post{}, app.ErrNotFound
	}
	return s.read(id, path)
}

func (s *PostStoreFile) read(id, path string) (app.Post, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return app.Post{}, app.ErrNotFound
		}
		return app.Post{}, &app.StorageError{Op: "read post " + id, Err: err}
	}
	return record.DecodePost(id, data), nil
}

// IncrementLikes adds one like to the post and returns the updated post.
func (s *PostStoreFile) IncrementLikes(ctx context.Context, id string) (app.Post, error) {
	return s.modify(ctx, id, func(p *app.Post) { p.Likes++ })
}

// IncrementRetweets adds one retweet to the post and returns the updated post.
func (s *PostStoreFile) IncrementRetweets(ctx context.Context, id string) (app.Post, error) {
	return s.modify(ctx, id, func(p *app.Post) { p.Retweets++ })
}

// modify holds the record lock across the whole read-modify-write so that
// concurrent increments are never lost.
func (s *PostStoreFile) modify(ctx context.Context, id string, fn func(*app.Post)) (app.Post, error) {
	path, ok := s.path(id)
	if !ok {
		return app.Post{}, app.ErrNotFound
	}
	var p app.Post
	err := withFileLock(ctx, s.lock, path, func() error {
		var err error
		if p, err = s.read(id, path); err != nil {
			return err
		}
		fn(&p)
		if err := writeFileAtomic(path, record.EncodePost(p), 0o644); err != nil {
			return &app.StorageError{Op: "write post " + id, Err: err}
		}
		return nil
	})
	if err != nil {
		return app.Post{}, err
	}
	return p, nil
}

// List returns every post in directory order. Callers sort for display.
func (s *PostStoreFile) List(ctx context.Context) ([]app.Post, error) {
	ids, err := recordStems(s.dir, ValidPostID)
	if err != nil {
		return nil, &app.StorageError{Op: "list posts", Err: err}
	}
	posts := make([]app.Post, 0, len(ids))
	for _, id := range ids {
		p, err := s.read(id, filepath.Join(s.dir, id+recordExt))
		if errors.Is(err, app.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, nil
}
