// Package console serves the local admin console on top of the orchestrator.
package console

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/spec-kit/folio/internal/client/authstate"
	"github.com/spec-kit/folio/internal/client/guard"
	"github.com/spec-kit/folio/internal/client/health"
)

const (
	loginPath = "/login"
	adminPath = "/admin"
)

// Orchestrator is the slice of authstate.Orchestrator the console drives.
type Orchestrator interface {
	State() authstate.State
	Login(ctx context.Context, email, password string, rememberMe bool) (authstate.LoginResult, error)
	Logout(ctx context.Context) error
	CheckConnection(ctx context.Context) health.Result
}

// Server is the console HTTP handler.
type Server struct {
	orch   Orchestrator
	logger *zap.Logger
	router chi.Router
}

// New builds the console router.
func New(orch Orchestrator, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{orch: orch, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, adminPath, http.StatusSeeOther)
	})
	r.Get(loginPath, s.loginForm)
	r.Post(loginPath, s.login)
	r.Post("/logout", s.logout)
	r.Post("/retry", s.retry)
	r.Get("/status", s.status)

	r.Group(func(r chi.Router) {
		r.Use(guard.Middleware(orch, loginPath))
		r.Get(adminPath, s.dashboard)
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("console request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

type loginView struct {
	Next    string
	Email   string
	Error   string
	State   authstate.State
	Offline bool
}

func (s *Server) loginForm(w http.ResponseWriter, r *http.Request) {
	next := guard.SafeNext(r.URL.Query().Get("next"), adminPath)
	st := s.orch.State()
	if !st.Loading && st.IsAuthenticated() {
		http.Redirect(w, r, next, http.StatusSeeOther)
		return
	}
	s.render(w, http.StatusOK, loginTemplate, loginView{
		Next:    next,
		State:   st,
		Offline: st.BackendStatus == health.StatusDisconnected,
	})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	email := r.PostForm.Get("email")
	next := guard.SafeNext(r.PostForm.Get("next"), adminPath)

	_, err := s.orch.Login(r.Context(), email, r.PostForm.Get("password"), r.PostForm.Get("remember") != "")
	if err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, authstate.ErrBusy) {
			status = http.StatusConflict
		}
		st := s.orch.State()
		s.render(w, status, loginTemplate, loginView{
			Next:    next,
			Email:   email,
			Error:   authstate.Message(err),
			State:   st,
			Offline: st.BackendStatus == health.StatusDisconnected,
		})
		return
	}
	http.Redirect(w, r, next, http.StatusSeeOther)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.Logout(r.Context()); err != nil {
		if errors.Is(err, authstate.ErrBusy) {
			http.Error(w, authstate.ErrBusy.Error(), http.StatusConflict)
			return
		}
		s.logger.Warn("logout", zap.Error(err))
	}
	http.Redirect(w, r, loginPath, http.StatusSeeOther)
}

func (s *Server) retry(w http.ResponseWriter, r *http.Request) {
	res := s.orch.CheckConnection(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"reachable":     res.Reachable,
		"detail":        res.Detail,
		"backendStatus": res.Status(),
	})
}

type statusView struct {
	authstate.State
	IsAuthenticated bool `json:"isAuthenticated"`
	IsDemoMode      bool `json:"isDemoMode"`
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	st := s.orch.State()
	writeJSON(w, http.StatusOK, statusView{State: st, IsAuthenticated: st.IsAuthenticated(), IsDemoMode: st.IsDemoMode()})
}

func (s *Server) dashboard(w http.ResponseWriter, _ *http.Request) {
	st := s.orch.State()
	s.render(w, http.StatusOK, dashboardTemplate, statusView{State: st, IsAuthenticated: st.IsAuthenticated(), IsDemoMode: st.IsDemoMode()})
}

func (s *Server) render(w http.ResponseWriter, status int, tmpl *template.Template, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.Execute(w, data); err != nil {
		s.logger.Error("render template", zap.String("template", tmpl.Name()), zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
