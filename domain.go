package app

import "context"

// DefaultBio is shown for users who never set a bio and for authors whose
// record no longer exists.
const DefaultBio = "New around here."

// GuestHandle is displayed for posts that carry no author.
const GuestHandle = "guest"

// User represents a registered account.
type User struct {
	Handle       string
	Display      string
	Bio          string
	PasswordHash string
	Avatar       string
	Verified     bool
	Admin        bool
}

// Post represents a published message.
type Post struct {
	ID       string
	Author   string
	Date     string
	Content  string
	Likes    int
	Retweets int
}

// PostView is a post joined with its author's profile for display.
type PostView struct {
	Post
	Display  string
	Bio      string
	Avatar   string
	Verified bool
}

// Guest synthesizes the profile shown for a handle with no backing record.
func Guest(handle string) User {
	if handle == "" {
		handle = GuestHandle
	}
	return User{Handle: handle, Display: handle, Bio: DefaultBio}
}

// UserStore represents the actions that can be taken about users.
type UserStore interface {
	Exists(ctx context.Context, handle string) (bool, error)
	Get(ctx context.Context, handle string) (User, error)
	Create(ctx context.Context, u User) error
	Update(ctx context.Context, u User) error
	Modify(ctx context.Context, handle string, fn func(*User) error) (User, error)
	List(ctx context.Context) ([]User, error)
}

// PostStore represents the actions that can be taken about posts.
type PostStore interface {
	Create(ctx context.Context, p Post) (Post, error)
	Get(ctx context.Context, id string) (Post, error)
	IncrementLikes(ctx context.Context, id string) (Post, error)
	IncrementRetweets(ctx context.Context, id string) (Post, error)
	List(ctx context.Context) ([]Post, error)
}

// SessionStore binds opaque remember tokens to handles.
type SessionStore interface {
	Create(ctx context.Context, handle string) (string, error)
	Handle(ctx context.Context, token string) (string, error)
	Delete(ctx context.Context, token string) error
}
