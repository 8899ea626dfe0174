package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/etitcombe/logifymw"
	"github.com/google/uuid"
)

func (s *server) registerRoutes() {
	mux := http.NewServeMux()
	mux.Handle("/", s.authenticate(s.handleHome()))
	mux.Handle("/imgs/", s.handleImage())
	mux.Handle("/status", s.authenticate(s.handleStatus()))
	addFileHandler(mux, "/style.css")

	s.router = s.recoverPanicMw(requestIDMw(logifymw.LogIt2(s.infoLog, headersMw(mux))))
}

func addFileHandler(mux *http.ServeMux, file string) {
	mux.HandleFunc(file, func(w http.ResponseWriter, r *http.Request) {
		http.ServeFileFS(w, r, staticFS, "static"+file)
	})
}

// authenticate resolves the remember cookie to an identity and stores it in
// the request context. Requests without a valid session continue anonymous.
func (s *server) authenticate(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(rememberCookieName)
		if err != nil {
			// When the cookie doesn't exist the err will be "http: named cookie not present"
			h.ServeHTTP(w, r)
			return
		}

		id, err := s.resolver.Resolve(r.Context(), c.Value)
		if err != nil {
			s.serverError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, id)
		h.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDMw(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := uuid.NewString()
		w.Header().Set("X-Request-ID", rid)
		ctx := context.WithValue(r.Context(), requestIDKey, rid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func headersMw(next http.Handler) http.Handler {
	var headers = map[string]string{
		"Referrer-Policy":        "no-referrer-when-downgrade",
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "SAMEORIGIN",
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for k, v := range headers {
			w.Header().Set(k, v)
		}

		next.ServeHTTP(w, r)
	})
}

func (s *server) recoverPanicMw(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				w.Header().Set("Connection", "close")
				s.serverError(w, r, fmt.Errorf("%s", err))
			}
		}()

		next.ServeHTTP(w, r)
	})
}
