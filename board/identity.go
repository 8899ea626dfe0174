// Package board holds the posting board's rules: who the acting user is and
// what they may do to the user and post stores.
package board

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	app "github.com/etitcombe/tweeter"
	"github.com/etitcombe/tweeter/record"
)

const (
	maxDisplayRunes   = 50
	maxPasswordBytes  = 128
	defaultMinPassLen = 6
)

var handlePattern = regexp.MustCompile(`^[a-z0-9_]{2,20}$`)

// ValidHandle reports whether h is an acceptable handle for a new account.
// app.GuestHandle is reserved for posts without an author.
func ValidHandle(h string) bool {
	return h != app.GuestHandle && handlePattern.MatchString(h)
}

// NormalizeHandle trims and lowercases a handle typed by a user.
func NormalizeHandle(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}

// Identity is the acting user of a request. The zero value is anonymous.
type Identity struct {
	User app.User
}

// Anonymous is the identity of a request without a valid session.
var Anonymous = Identity{}

// Authenticated reports whether the identity is bound to a user.
func (i Identity) Authenticated() bool {
	return i.User.Handle != ""
}

// Handle returns the acting handle, empty when anonymous.
func (i Identity) Handle() string {
	return i.User.Handle
}

// IsAdmin reports whether the acting user carries the admin flag.
func (i Identity) IsAdmin() bool {
	return i.Authenticated() && i.User.Admin
}

// Session is the result of a successful register or login: the token the
// caller must bind to the client and the identity it resolves to.
type Session struct {
	Token    string
	Identity Identity
}

// Registration holds the form fields of the register action. Avatar is a
// reference already produced by the image store, or empty.
type Registration struct {
	Handle   string
	Password string
	Display  string
	Avatar   string
}

// Resolver owns the Anonymous/Authenticated transitions.
type Resolver struct {
	users    app.UserStore
	sessions app.SessionStore
	pepper   string
	log      *slog.Logger

	// PasswordMinLength is the shortest accepted password.
	PasswordMinLength int
	// HashCost is the bcrypt cost for new hashes; zero means the default.
	HashCost int

	dummyOnce sync.Once
	dummyHash string
}

// NewResolver creates a Resolver. A nil logger means slog.Default().
func NewResolver(users app.UserStore, sessions app.SessionStore, pepper string, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		users:             users,
		sessions:          sessions,
		pepper:            pepper,
		log:               log,
		PasswordMinLength: defaultMinPassLen,
	}
}

// Register validates reg, creates the user and opens a session for it. All
// checks run before anything is written.
func (r *Resolver) Register(ctx context.Context, reg Registration) (Session, error) {
	handle := NormalizeHandle(reg.Handle)
	display := strings.TrimSpace(record.StripLineBreaks(reg.Display))

	var msgs []string
	if !ValidHandle(handle) {
		msgs = append(msgs, "Choose a handle with 2-20 letters, numbers, or underscores.")
	}
	if utf8.RuneCountInString(reg.Password) < r.PasswordMinLength {
		msgs = append(msgs, fmt.Sprintf("Passwords must be at least %d characters.", r.PasswordMinLength))
	}
	if len(reg.Password) > maxPasswordBytes {
		msgs = append(msgs, fmt.Sprintf("Passwords must be at most %d characters.", maxPasswordBytes))
	}
	if utf8.RuneCountInString(display) > maxDisplayRunes {
		msgs = append(msgs, fmt.Sprintf("Display names must be at most %d characters.", maxDisplayRunes))
	}
	if err := app.Validation(msgs...); err != nil {
		return Session{}, err
	}

	taken, err := r.users.Exists(ctx, handle)
	if err != nil {
		return Session{}, r.fail(ctx, "register", handle, err)
	}
	if taken {
		return Session{}, app.ErrAlreadyExists
	}

	if display == "" {
		display = handle
	}
	hash, err := HashPassword(r.pepper, reg.Password, r.HashCost)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}
	u := app.User{
		Handle:       handle,
		Display:      display,
		Bio:          app.DefaultBio,
		PasswordHash: hash,
		Avatar:       reg.Avatar,
	}
	if err := r.users.Create(ctx, u); err != nil {
		return Session{}, r.fail(ctx, "register", handle, err)
	}
	r.log.InfoContext(ctx, "user registered", "handle", handle)
	return r.open(ctx, u)
}

// Login checks the credentials and opens a session. An unknown handle and a
// wrong password both yield app.ErrInvalidCredentials after the same amount
// of hashing work.
func (r *Resolver) Login(ctx context.Context, handle, password string) (Session, error) {
	handle = NormalizeHandle(handle)

	u, err := r.users.Get(ctx, handle)
	if errors.Is(err, app.ErrNotFound) {
		CheckPassword(r.dummy(), r.pepper, password)
		return Session{}, app.ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, r.fail(ctx, "login", handle, err)
	}
	if !CheckPassword(u.PasswordHash, r.pepper, password) {
		return Session{}, app.ErrInvalidCredentials
	}
	return r.open(ctx, u)
}

// Logout discards the session bound to token.
func (r *Resolver) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := r.sessions.Delete(ctx, token); err != nil {
		return r.fail(ctx, "logout", "", err)
	}
	return nil
}

// Resolve maps a session token to the live user record. Unknown tokens and
// tokens whose user record is gone resolve to Anonymous. Only storage
// failures are returned as errors.
func (r *Resolver) Resolve(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Anonymous, nil
	}
	handle, err := r.sessions.Handle(ctx, token)
	if errors.Is(err, app.ErrNotFound) {
		return Anonymous, nil
	}
	if err != nil {
		return Anonymous, r.fail(ctx, "resolve session", "", err)
	}
	u, err := r.users.Get(ctx, handle)
	if errors.Is(err, app.ErrNotFound) {
		r.log.WarnContext(ctx, "session bound to missing user", "handle", handle)
		return Anonymous, nil
	}
	if err != nil {
		return Anonymous, r.fail(ctx, "resolve user", handle, err)
	}
	return Identity{User: u}, nil
}

func (r *Resolver) open(ctx context.Context, u app.User) (Session, error) {
	token, err := r.sessions.Create(ctx, u.Handle)
	if err != nil {
		return Session{}, r.fail(ctx, "open session", u.Handle, err)
	}
	return Session{Token: token, Identity: Identity{User: u}}, nil
}

func (r *Resolver) dummy() string {
	r.dummyOnce.Do(func() {
		h, err := HashPassword(r.pepper, "not a real password", r.HashCost)
		if err != nil {
			r.log.Error("dummy hash", "err", err)
		}
		r.dummyHash = h
	})
	return r.dummyHash
}

func (r *Resolver) fail(ctx context.Context, op, handle string, err error) error {
	if app.IsStorageFailure(err) {
		r.log.ErrorContext(ctx, "storage failure", "op", op, "handle", handle, "err", err)
	}
	return err
}
