package main

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log"
	"log/slog"
	"net/http"
	"runtime/debug"
	"unicode/utf8"

	"github.com/etitcombe/tweeter/board"
	"github.com/etitcombe/tweeter/db"
)

type contextKey string

const (
	rememberCookieName string = "tweeter-remember"

	identityKey  contextKey = "identity"
	requestIDKey contextKey = "request_id"
)

//go:embed templates/*.gohtml
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

type server struct {
	log      *slog.Logger
	infoLog  *log.Logger
	errorLog *log.Logger

	router http.Handler

	resolver *board.Resolver
	engine   *board.Engine
	images   *db.ImageStore

	templateCache map[string]*template.Template

	maxAvatarBytes int64
	secureCookies  bool
}

type viewModel struct {
	Title    string
	Identity board.Identity
	Yield    interface{}
}

func newServer(logger *slog.Logger, res *board.Resolver, eng *board.Engine, images *db.ImageStore, maxAvatarBytes int64, secureCookies bool) *server {
	srv := &server{
		log:            logger,
		infoLog:        slog.NewLogLogger(logger.Handler(), slog.LevelInfo),
		errorLog:       slog.NewLogLogger(logger.Handler(), slog.LevelError),
		resolver:       res,
		engine:         eng,
		images:         images,
		maxAvatarBytes: maxAvatarBytes,
		secureCookies:  secureCookies,
	}
	srv.parseTemplates()
	srv.registerRoutes()
	return srv
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *server) clientError(w http.ResponseWriter, status int, message string) {
	errorMessage := http.StatusText(status)
	if message != "" {
		errorMessage += ": " + message
	}
	http.Error(w, errorMessage, status)
}

func (s *server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	trace := fmt.Sprintf("%s\n%s", err.Error(), debug.Stack())
	s.log.ErrorContext(r.Context(), "server error", "err", err, "path", r.URL.Path)
	s.errorLog.Output(2, trace)

	errorMessage := http.StatusText(http.StatusInternalServerError)
	if s.identity(r).IsAdmin() {
		errorMessage += "\n" + trace
	}
	http.Error(w, errorMessage, http.StatusInternalServerError)
}

func (s *server) identity(r *http.Request) board.Identity {
	if temp := r.Context().Value(identityKey); temp != nil {
		if id, ok := temp.(board.Identity); ok {
			return id
		}
		s.errorLog.Printf("identity context.value is not an Identity: %v", temp)
	}
	return board.Anonymous
}

func initial(handle string) string {
	r, _ := utf8.DecodeRuneInString(handle)
	if r == utf8.RuneError {
		return "t"
	}
	return string(r)
}

func (s *server) parseTemplates() {
	funcs := template.FuncMap{"initial": initial}
	cache := map[string]*template.Template{}
	cache["home"] = template.Must(template.New("home").Funcs(funcs).ParseFS(templateFS, "templates/layout.gohtml", "templates/home.gohtml"))
	s.templateCache = cache
}

func (s *server) render(w http.ResponseWriter, r *http.Request, status int, name, title string, data interface{}) {
	ts, ok := s.templateCache[name]
	if !ok {
		s.serverError(w, r, fmt.Errorf("template %s does not exist", name))
		return
	}

	viewModel := viewModel{
		Title:    title,
		Identity: s.identity(r),
		Yield:    data,
	}

	buf := bytes.Buffer{}

	err := ts.ExecuteTemplate(&buf, "layout", viewModel)
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}
