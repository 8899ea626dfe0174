package board

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	app "github.com/etitcombe/tweeter"
	"github.com/etitcombe/tweeter/record"
)

// MaxPostRunes is the longest post, counted after trimming.
const MaxPostRunes = 200

// Engine applies one validated action per request to the stores.
type Engine struct {
	users app.UserStore
	posts app.PostStore
	log   *slog.Logger
}

// NewEngine creates an Engine. A nil logger means slog.Default().
func NewEngine(users app.UserStore, posts app.PostStore, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{users: users, posts: posts, log: log}
}

// Publish creates a post by the acting user. Content is trimmed, must be
// 1-200 characters and has line breaks replaced with spaces.
func (e *Engine) Publish(ctx context.Context, id Identity, content string) (app.Post, error) {
	if !id.Authenticated() {
		return app.Post{}, app.ErrUnauthenticated
	}
	content = strings.TrimSpace(content)
	if n := utf8.RuneCountInString(content); n == 0 || n > MaxPostRunes {
		return app.Post{}, app.Validation("Posts must be between 1 and 200 characters.")
	}
	p, err := e.posts.Create(ctx, app.Post{
		Author:  id.Handle(),
		Content: record.StripLineBreaks(content),
	})
	if err != nil {
		return app.Post{}, e.fail(ctx, "publish", err, "handle", id.Handle())
	}
	e.log.InfoContext(ctx, "post published", "handle", id.Handle(), "post_id", p.ID)
	return p, nil
}

// Like adds a like to the post. Repeated likes all count.
func (e *Engine) Like(ctx context.Context, id Identity, postID string) (app.Post, error) {
	if !id.Authenticated() {
		return app.Post{}, app.ErrUnauthenticated
	}
	p, err := e.posts.IncrementLikes(ctx, postID)
	if err != nil {
		return app.Post{}, e.fail(ctx, "like", err, "post_id", postID)
	}
	return p, nil
}

// Retweet adds a retweet to the post. Repeated retweets all count.
func (e *Engine) Retweet(ctx context.Context, id Identity, postID string) (app.Post, error) {
	if !id.Authenticated() {
		return app.Post{}, app.ErrUnauthenticated
	}
	p, err := e.posts.IncrementRetweets(ctx, postID)
	if err != nil {
		return app.Post{}, e.fail(ctx, "retweet", err, "post_id", postID)
	}
	return p, nil
}

// ToggleVerified flips the verified flag of target. Only admins may do it.
func (e *Engine) ToggleVerified(ctx context.Context, id Identity, target string) (app.User, error) {
	if !id.IsAdmin() {
		return app.User{}, app.ErrForbidden
	}
	target = NormalizeHandle(target)
	u, err := e.users.Modify(ctx, target, func(u *app.User) error {
		u.Verified = !u.Verified
		return nil
	})
	if err != nil {
		return app.User{}, e.fail(ctx, "toggle verified", err, "target", target)
	}
	e.log.InfoContext(ctx, "verified toggled", "admin", id.Handle(), "target", target, "verified", u.Verified)
	return u, nil
}

// Timeline returns every post joined with its author, newest first. Authors
// without a record are shown with a guest profile.
func (e *Engine) Timeline(ctx context.Context) ([]app.PostView, error) {
	posts, err := e.posts.List(ctx)
	if err != nil {
		return nil, e.fail(ctx, "timeline", err)
	}
	sort.Slice(posts, func(i, j int) bool {
		if posts[i].Date != posts[j].Date {
			return posts[i].Date > posts[j].Date
		}
		return posts[i].ID > posts[j].ID
	})

	authors := make(map[string]app.User)
	views := make([]app.PostView, 0, len(posts))
	for _, p := range posts {
		u, ok := authors[p.Author]
		if !ok && (p.Author == "" || p.Author == app.GuestHandle) {
			u, ok = app.Guest(p.Author), true
		}
		if !ok {
			u, err = e.users.Get(ctx, p.Author)
			if errors.Is(err, app.ErrNotFound) {
				u, err = app.Guest(p.Author), nil
			}
			if err != nil {
				return nil, e.fail(ctx, "timeline", err, "handle", p.Author)
			}
			authors[p.Author] = u
		}
		views = append(views, app.PostView{
			Post:     p,
			Display:  u.Display,
			Bio:      u.Bio,
			Avatar:   u.Avatar,
			Verified: u.Verified,
		})
	}
	return views, nil
}

// Users lists every account, sorted by handle, for admins.
func (e *Engine) Users(ctx context.Context, id Identity) ([]app.User, error) {
	if !id.IsAdmin() {
		return nil, app.ErrForbidden
	}
	users, err := e.users.List(ctx)
	if err != nil {
		return nil, e.fail(ctx, "list users", err)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Handle < users[j].Handle })
	return users, nil
}

func (e *Engine) fail(ctx context.Context, op string, err error, args ...any) error {
	if app.IsStorageFailure(err) {
		e.log.ErrorContext(ctx, "storage failure", append([]any{"op", op, "err", err}, args...)...)
	}
	return err
}
