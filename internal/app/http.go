package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/maitracle/mindnote-server/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	logger     zerolog.Logger
}

func NewHTTPServer(service *Service, corsOrigin string, logger zerolog.Logger) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin, logger: logger}
}

func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-ID"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(s.cors)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, detailBody(msgNotFound, "NOT_FOUND"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, detailBody(fmt.Sprintf("Method %q not allowed.", r.Method), "METHOD_NOT_ALLOWED"))
	})

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Route("/users", func(r chi.Router) {
		r.Post("/", s.handleSignUp)
		r.Post("/tokens", s.handleSignIn)
		r.Post("/google", s.handleGoogleSignIn)
		r.Get("/my-profile", s.handleMyProfile)
		r.Patch("/{userID}", s.handleUpdateUser)
		r.Delete("/{userID}", s.handleDeleteUser)
	})

	r.Route("/articles", func(r chi.Router) {
		r.Post("/", s.handleCreateArticle)
		r.Get("/my-list", s.handleMyArticles)
		r.Get("/search", s.handleSearch)
		r.Get("/{articleID}", s.handleGetArticle)
		r.Patch("/{articleID}", s.handleUpdateArticle)
		r.Delete("/{articleID}", s.handleDeleteArticle)
	})

	r.Route("/notes", func(r chi.Router) {
		r.Post("/", s.handleCreateNote)
		r.Get("/", s.handleListNotes)
		r.Patch("/{noteID}", s.handleUpdateNote)
		r.Delete("/{noteID}", s.handleDeleteNote)
	})

	r.Route("/connections", func(r chi.Router) {
		r.Post("/", s.handleCreateConnection)
		r.Patch("/{connectionID}", s.handleUpdateConnection)
		r.Delete("/{connectionID}", s.handleDeleteConnection)
	})

	return r
}

func (s *HTTPServer) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w.Header(), s.corsOrigin)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{}
	for name, err := range s.service.Ping(ctx) {
		if err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks[name] = map[string]any{"status": "error", "error": err.Error()}
			continue
		}
		checks[name] = map[string]any{"status": "ok"}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var body signUpPayload
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	session, err := s.service.SignUp(r.Context(), body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewSession(session, false))
}

func (s *HTTPServer) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var body signInPayload
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	session, err := s.service.SignIn(r.Context(), body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewSession(session, false))
}

func (s *HTTPServer) handleGoogleSignIn(w http.ResponseWriter, r *http.Request) {
	var body googleSignInPayload
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	session, err := s.service.GoogleSignIn(r.Context(), body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if session.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, viewSession(session, true))
}

func (s *HTTPServer) handleMyProfile(w http.ResponseWriter, r *http.Request) {
	user, _, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewUser(*user))
}

func (s *HTTPServer) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	user, _, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	userID, ok := s.pathID(w, r, "userID")
	if !ok {
		return
	}
	var body userPatch
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	updated, err := s.service.UpdateUser(r.Context(), user, userID, body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewUser(updated))
}

func (s *HTTPServer) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	user, key, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	userID, ok := s.pathID(w, r, "userID")
	if !ok {
		return
	}
	if err := s.service.DeleteUser(r.Context(), user, userID, key); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleCreateArticle(w http.ResponseWriter, r *http.Request) {
	user, _, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var body articlePayload
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	created, err := s.service.CreateArticle(r.Context(), user, body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewArticle(created))
}

func (s *HTTPServer) handleMyArticles(w http.ResponseWriter, r *http.Request) {
	user, _, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	items, err := s.service.MyArticles(r.Context(), user)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewArticles(items))
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	user, _, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	response, err := s.service.Search(r.Context(), user, SearchParams{
		Query:  query.Get("q"),
		Type:   query.Get("type"),
		Limit:  query.Get("limit"),
		Offset: query.Get("offset"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleGetArticle(w http.ResponseWriter, r *http.Request) {
	user, _, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	articleID, ok := s.pathID(w, r, "articleID")
	if !ok {
		return
	}
	detail, err := s.service.GetArticle(r.Context(), user, articleID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewArticleDetail(detail))
}

func (s *HTTPServer) handleUpdateArticle(w http.ResponseWriter, r *http.Request) {
	user, _, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	articleID, ok := s.pathID(w, r, "articleID")
	if !ok {
		return
	}
	var body articlePatch
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	updated, err := s.service.UpdateArticle(r.Context(), user, articleID, body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewArticle(updated))
}

func (s *HTTPServer) handleDeleteArticle(w http.ResponseWriter, r *http.Request) {
	user, _, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	articleID, ok := s.pathID(w, r, "articleID")
	if !ok {
		return
	}
	if err := s.service.DeleteArticle(r.Context(), user, articleID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	user, _, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var body notePayload
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	created, err := s.service.CreateNote(r.Context(), user, body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewNote(created))
}

func (s *HTTPServer) handleListNotes(w http.ResponseWriter, r *http.Request) {
	// The filter is checked before the caller is identified.
	if !r.URL.Query().Has("article") {
		s.writeError(w, r, fieldError("article", msgRequired))
		return
	}
	user, _, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	notes, err := s.service.ListNotes(r.Context(), user, r.URL.Query().Get("article"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewNotes(notes))
}

func (s *HTTPServer) handleUpdateNote(w http.ResponseWriter, r *http.Request) {
	user, _, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	noteID, ok := s.pathID(w, r, "noteID")
	if !ok {
		return
	}
	var body notePatch
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	updated, err := s.service.UpdateNote(r.Context(), user, noteID, body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewNote(updated))
}

func (s *HTTPServer) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	user, _, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	noteID, ok := s.pathID(w, r, "noteID")
	if !ok {
		return
	}
	if err := s.service.DeleteNote(r.Context(), user, noteID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleCreateConnection(w http.ResponseWriter, r *http.Request) {
	user, _, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var body connectionPayload
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	created, err := s.service.CreateConnection(r.Context(), user, body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewConnection(created))
}

func (s *HTTPServer) handleUpdateConnection(w http.ResponseWriter, r *http.Request) {
	user, _, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	connectionID, ok := s.pathID(w, r, "connectionID")
	if !ok {
		return
	}
	var body connectionPatch
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	updated, err := s.service.UpdateConnection(r.Context(), user, connectionID, body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewConnection(updated))
}

func (s *HTTPServer) handleDeleteConnection(w http.ResponseWriter, r *http.Request) {
	user, _, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	connectionID, ok := s.pathID(w, r, "connectionID")
	if !ok {
		return
	}
	if err := s.service.DeleteConnection(r.Context(), user, connectionID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// requireUser authenticates the request and writes a 401 when it cannot.
func (s *HTTPServer) requireUser(w http.ResponseWriter, r *http.Request) (*store.User, string, bool) {
	user, key, err := s.service.Authenticate(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		s.writeError(w, r, err)
		return nil, "", false
	}
	return &user, key, true
}

// pathID parses a numeric URL parameter; anything else is a 404.
func (s *HTTPServer) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := parseID(chi.URLParam(r, name))
	if err != nil {
		writeJSON(w, http.StatusNotFound, detailBody(msgNotFound, "NOT_FOUND"))
		return 0, false
	}
	return id, true
}

func (s *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	mapped := mapError(err)
	switch {
	case mapped.Status >= http.StatusInternalServerError:
		hlog.FromRequest(r).Error().Err(err).Msg("request failed")
	case mapped.Status == http.StatusUnauthorized:
		w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	}
	if len(mapped.Fields) > 0 {
		writeJSON(w, mapped.Status, mapped.Fields)
		return
	}
	writeJSON(w, mapped.Status, detailBody(mapped.Message, mapped.Code))
}

func detailBody(detail, code string) map[string]string {
	return map[string]string{"detail": detail, "code": code}
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// decodeBody treats an empty body as an empty object.
func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	err := json.NewDecoder(r.Body).Decode(target)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return fieldError(typeErr.Field, "Not a valid string.")
	}
	return domainError(http.StatusBadRequest, "INVALID_BODY", msgMalformedPayload)
}
