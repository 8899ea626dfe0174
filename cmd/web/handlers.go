package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	app "github.com/etitcombe/tweeter"
	"github.com/etitcombe/tweeter/board"
)

type homePage struct {
	Errors []string
	Posts  []app.PostView
	Users  []app.User
}

func (s *server) handleHome() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			s.clientError(w, http.StatusNotFound, "")
			return
		}
		switch r.Method {
		case http.MethodGet, http.MethodHead:
			s.renderHome(w, r, http.StatusOK, nil)
		case http.MethodPost:
			s.dispatch(w, r)
		default:
			s.clientError(w, http.StatusMethodNotAllowed, "")
		}
	}
}

// dispatch is the front controller: it runs exactly one action and
// redirects back home, or re-renders home with the action's messages.
func (s *server) dispatch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxAvatarBytes+1<<20)
	if err := r.ParseMultipartForm(s.maxAvatarBytes + 1<<20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		s.clientError(w, http.StatusBadRequest, err.Error())
		return
	}

	var err error
	switch r.PostFormValue("action") {
	case "register":
		err = s.register(w, r)
	case "login":
		err = s.login(w, r)
	case "logout":
		err = s.logout(w, r)
	case "post":
		_, err = s.engine.Publish(r.Context(), s.identity(r), r.PostFormValue("content"))
	case "like":
		_, err = s.engine.Like(r.Context(), s.identity(r), r.PostFormValue("post_id"))
	case "retweet":
		_, err = s.engine.Retweet(r.Context(), s.identity(r), r.PostFormValue("post_id"))
	case "verify":
		_, err = s.engine.ToggleVerified(r.Context(), s.identity(r), r.PostFormValue("handle"))
	default:
		s.clientError(w, http.StatusBadRequest, "unknown action")
		return
	}
	if err != nil {
		s.actionError(w, r, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *server) actionError(w http.ResponseWriter, r *http.Request, err error) {
	msgs := app.Messages(err)
	if msgs == nil {
		s.serverError(w, r, err)
		return
	}
	var ve *app.ValidationError
	status := http.StatusUnprocessableEntity
	switch {
	case errors.As(err, &ve):
	case errors.Is(err, app.ErrAlreadyExists):
		status = http.StatusConflict
	case errors.Is(err, app.ErrInvalidCredentials), errors.Is(err, app.ErrUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, app.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, app.ErrNotFound):
		status = http.StatusNotFound
	}
	s.renderHome(w, r, status, msgs)
}

func (s *server) renderHome(w http.ResponseWriter, r *http.Request, status int, msgs []string) {
	posts, err := s.engine.Timeline(r.Context())
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	page := homePage{Errors: msgs, Posts: posts}
	if id := s.identity(r); id.IsAdmin() {
		if page.Users, err = s.engine.Users(r.Context(), id); err != nil {
			s.serverError(w, r, err)
			return
		}
	}
	s.render(w, r, status, "home", "Tweeter", page)
}

func (s *server) register(w http.ResponseWriter, r *http.Request) error {
	handle := board.NormalizeHandle(r.PostFormValue("handle"))

	avatar, err := s.saveAvatar(r, handle)
	if err != nil {
		return err
	}
	sess, err := s.resolver.Register(r.Context(), board.Registration{
		Handle:   handle,
		Password: r.PostFormValue("password"),
		Display:  r.PostFormValue("display"),
		Avatar:   avatar,
	})
	if err != nil {
		if avatar != "" {
			if rmErr := s.images.Remove(avatar); rmErr != nil {
				s.log.ErrorContext(r.Context(), "remove orphaned avatar", "ref", avatar, "err", rmErr)
			}
		}
		return err
	}
	s.setSession(w, sess.Token)
	return nil
}

// saveAvatar stores the uploaded avatar, if any. Nothing is stored for a
// handle that registration is going to reject anyway.
func (s *server) saveAvatar(r *http.Request, handle string) (string, error) {
	if !board.ValidHandle(handle) {
		return "", nil
	}
	f, _, err := r.FormFile("avatar")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return "", nil
	}
	if err != nil {
		return "", app.Validation("Could not read the avatar upload.")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, s.maxAvatarBytes+1))
	if err != nil {
		return "", app.Validation("Could not read the avatar upload.")
	}
	return s.images.Save(handle, data)
}

func (s *server) login(w http.ResponseWriter, r *http.Request) error {
	if r.PostFormValue("handle") == "" || r.PostFormValue("password") == "" {
		return app.Validation("Handle and password are required.")
	}
	sess, err := s.resolver.Login(r.Context(), r.PostFormValue("handle"), r.PostFormValue("password"))
	if err != nil {
		return err
	}
	s.setSession(w, sess.Token)
	return nil
}

func (s *server) logout(w http.ResponseWriter, r *http.Request) error {
	if c, err := r.Cookie(rememberCookieName); err == nil {
		if err := s.resolver.Logout(r.Context(), c.Value); err != nil {
			return err
		}
	}
	http.SetCookie(w, &http.Cookie{
		HttpOnly: true,
		Name:     rememberCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (s *server) setSession(w http.ResponseWriter, token string) {
	c := http.Cookie{
		HttpOnly: true,
		Name:     rememberCookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().AddDate(1, 0, 0),
		MaxAge:   365 * 24 * 60 * 60,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	}
	http.SetCookie(w, &c)
}

func (s *server) handleImage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			s.clientError(w, http.StatusMethodNotAllowed, "")
			return
		}
		path, err := s.images.Path(strings.TrimPrefix(r.URL.Path, "/imgs/"))
		if err != nil {
			s.clientError(w, http.StatusNotFound, "")
			return
		}
		http.ServeFile(w, r, path)
	}
}

func (s *server) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			s.clientError(w, http.StatusMethodNotAllowed, "")
			return
		}
		id := s.identity(r)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(struct {
			Handle    string `json:"handle,omitempty"`
			Anonymous bool   `json:"anonymous"`
			Admin     bool   `json:"admin"`
		}{id.Handle(), !id.Authenticated(), id.IsAdmin()})
	}
}
