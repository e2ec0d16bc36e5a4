package web

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/auth"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/generation"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/history"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/notify"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/prompt"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/studio"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/upload"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/wizard"
)

const (
	defaultMaxUploadBytes = 25 << 20
	maxJSONBytes          = 1 << 20
)

type Options struct {
	Studio *studio.Service
	Auth   auth.Provider
	// Files serves stored objects; it is mounted under /files/.
	Files          http.Handler
	MaxUploadBytes int64
	Logger         *slog.Logger
}

type Server struct {
	studio         *studio.Service
	auth           auth.Provider
	maxUploadBytes int64
	logger         *slog.Logger
	mux            *http.ServeMux
}

type apiError struct {
	Error   string          `json:"error"`
	Notices []notify.Notice `json:"notices,omitempty"`
}

type loginResponse struct {
	Token string        `json:"token"`
	User  auth.Identity `json:"user"`
	Page  auth.Page     `json:"page"`
}

type sessionResponse struct {
	auth.State
	Page auth.Page `json:"page"`
}

type option struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type catalogResponse struct {
	Styles      []option `json:"styles"`
	Backgrounds []option `json:"backgrounds"`
}

type wizardResponse struct {
	State   wizard.State    `json:"state"`
	Allowed []wizard.Event  `json:"allowed"`
	Notices []notify.Notice `json:"notices"`
}

type uploadResponse struct {
	wizardResponse
	Failed []string `json:"failed,omitempty"`
}

type historyResponse struct {
	Generations []history.Entry `json:"generations"`
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}

	s := &Server{
		studio:         opts.Studio,
		auth:           opts.Auth,
		maxUploadBytes: maxUpload,
		logger:         logger,
		mux:            http.NewServeMux(),
	}

	s.mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	s.mux.HandleFunc("POST /api/auth/logout", s.handleLogout)
	s.mux.HandleFunc("GET /api/session", s.handleSession)
	s.mux.HandleFunc("GET /api/catalog", s.handleCatalog)

	s.mux.Handle("GET /api/wizard", s.requireAuth(s.handleWizard))
	s.mux.Handle("POST /api/wizard/events/{event}", s.requireAuth(s.handleEvent))
	s.mux.Handle("POST /api/wizard/style", s.requireAuth(s.handleStyle))
	s.mux.Handle("POST /api/wizard/background", s.requireAuth(s.handleBackground))
	s.mux.Handle("POST /api/wizard/terms", s.requireAuth(s.handleTerms))
	s.mux.Handle("POST /api/wizard/uploads", s.requireAuth(s.handleUploads))
	s.mux.Handle("POST /api/wizard/generate", s.requireAuth(s.handleGenerate))
	s.mux.Handle("GET /api/history", s.requireAuth(s.handleHistory))

	if opts.Files != nil {
		s.mux.Handle("GET /files/", http.StripPrefix("/files", opts.Files))
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return withLogging(s.mux, s.logger)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds auth.Credentials
	if !decodeJSON(w, r, &creds) {
		return
	}

	id, token, err := s.auth.Login(r.Context(), creds)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
			return
		}
		s.logger.Error("login failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "login failed"})
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token: token,
		User:  id,
		Page:  auth.Route(auth.State{Identity: &id}, auth.PageAuth),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, apiError{Error: auth.ErrUnauthenticated.Error()})
		return
	}
	if err := s.auth.Logout(r.Context(), token); err != nil && !errors.Is(err, auth.ErrUnauthenticated) {
		s.logger.Error("logout failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "logout failed"})
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Page: auth.PageLanding})
}

// handleSession never fails: an unknown or missing token is an anonymous
// session.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	var st auth.State
	if token := bearerToken(r); token != "" {
		if id, err := s.auth.Authenticate(r.Context(), token); err == nil {
			st.Identity = &id
		}
	}

	current, _ := auth.ParsePage(r.URL.Query().Get("page"))
	writeJSON(w, http.StatusOK, sessionResponse{State: st, Page: auth.Route(st, current)})
}

func (s *Server) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, catalogResponse{
		Styles:      options(prompt.Styles()),
		Backgrounds: options(prompt.Backgrounds()),
	})
}

func (s *Server) handleWizard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newWizardResponse(s.studio.State(identity(r).ID), nil))
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	ev, ok := wizard.ParseEvent(r.PathValue("event"))
	if !ok {
		writeJSON(w, http.StatusNotFound, apiError{Error: "unknown event"})
		return
	}

	var notices notify.Collector
	st, err := s.studio.Fire(id.ID, ev, &notices)
	s.respond(w, st, notices.Notices(), err)
}

type selectRequest struct {
	ID string `json:"id"`
}

func (s *Server) handleStyle(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	var req selectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var notices notify.Collector
	st, err := s.studio.SelectStyle(id.ID, req.ID, &notices)
	s.respond(w, st, notices.Notices(), err)
}

func (s *Server) handleBackground(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	var req selectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var notices notify.Collector
	st, err := s.studio.SelectBackground(id.ID, req.ID, &notices)
	s.respond(w, st, notices.Notices(), err)
}

type termsRequest struct {
	Accepted bool `json:"accepted"`
}

func (s *Server) handleTerms(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	var req termsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var notices notify.Collector
	st, err := s.studio.AcceptTerms(id.ID, req.Accepted, &notices)
	s.respond(w, st, notices.Notices(), err)
}

func (s *Server) handleUploads(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid multipart form"})
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["images"]
	if len(headers) == 0 {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "missing images"})
		return
	}

	files := make([]upload.File, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, apiError{Error: "failed to read image"})
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, apiError{Error: "failed to read image"})
			return
		}
		files = append(files, upload.File{
			Name:        h.Filename,
			ContentType: strings.TrimSpace(h.Header.Get("Content-Type")),
			Data:        data,
		})
	}

	var notices notify.Collector
	st, res, err := s.studio.Upload(r.Context(), id.ID, files, &notices)
	if err != nil {
		s.respond(w, st, notices.Notices(), err)
		return
	}

	out := uploadResponse{wizardResponse: newWizardResponse(st, notices.Notices())}
	for _, f := range res.Failed {
		out.Failed = append(out.Failed, f.Name)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGenerate blocks until the generation settles. Clients poll
// GET /api/wizard meanwhile for progress.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	var notices notify.Collector
	st, err := s.studio.Generate(r.Context(), id.ID, &notices)
	if err != nil {
		s.logger.Warn("generation failed", "user_id", id.ID, "err", err)
	}
	s.respond(w, st, notices.Notices(), err)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	entries := s.studio.History(r.Context(), id.ID)
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Generations: entries})
}

// respond writes the wizard state on success. Failures still carry the
// notices the action produced.
func (s *Server) respond(w http.ResponseWriter, st wizard.State, notices []notify.Notice, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, newWizardResponse(st, notices))
		return
	}
	writeJSON(w, statusFor(err), apiError{Error: err.Error(), Notices: notices})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, studio.ErrUnknownOption),
		errors.Is(err, studio.ErrNotNavigation),
		errors.Is(err, upload.ErrNoFiles):
		return http.StatusBadRequest
	case errors.Is(err, wizard.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, wizard.ErrNoUploads),
		errors.Is(err, wizard.ErrNoStyle),
		errors.Is(err, wizard.ErrNoBackground),
		errors.Is(err, wizard.ErrTermsRequired),
		errors.Is(err, wizard.ErrNoResults),
		errors.Is(err, generation.ErrInvalidRequest):
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadGateway
}

func newWizardResponse(st wizard.State, notices []notify.Notice) wizardResponse {
	if notices == nil {
		notices = []notify.Notice{}
	}
	return wizardResponse{State: st, Allowed: wizard.Allowed(st.Step), Notices: notices}
}

func options(in []prompt.Option) []option {
	out := make([]option, len(in))
	for i, o := range in {
		out[i] = option{ID: o.ID, Name: o.Name, Description: o.Description}
	}
	return out
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBytes))
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid json body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withLogging(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("http", "method", r.Method, "path", r.URL.Path, "status", rec.status, "dur_ms", time.Since(start).Milliseconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
