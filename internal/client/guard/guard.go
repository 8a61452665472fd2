// Package guard gates privileged pages on the orchestrator state.
package guard

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/spec-kit/folio/internal/client/authstate"
)

// Action is what the guard tells the caller to do.
type Action int

const (
	// Render shows the protected content.
	Render Action = iota
	// Loading shows a neutral placeholder while the state settles.
	Loading
	// Redirect sends the caller to the login entry point.
	Redirect
)

func (a Action) String() string {
	switch a {
	case Render:
		return "render"
	case Loading:
		return "loading"
	default:
		return "redirect"
	}
}

// Decision carries the action and, for Redirect, the location to return to after login.
type Decision struct {
	Action Action
	Target string
}

// StateSource provides the current auth state.
type StateSource interface {
	State() authstate.State
}

// Decide never renders protected content or the login prompt while loading.
func Decide(state authstate.State, location string) Decision {
	switch {
	case state.Loading:
		return Decision{Action: Loading}
	case state.IsAuthenticated():
		return Decision{Action: Render}
	default:
		return Decision{Action: Redirect, Target: location}
	}
}

// LoginURL builds loginPath?next=<target>.
func LoginURL(loginPath, target string) string {
	if target == "" {
		return loginPath
	}
	return loginPath + "?next=" + url.QueryEscape(target)
}

// SafeNext returns next if it is a local path, otherwise fallback.
func SafeNext(next, fallback string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return fallback
	}
	return next
}

const loadingPage = `<!doctype html><html><head><meta http-equiv="refresh" content="1"><title>Loading</title></head><body><p>Loading&hellip;</p></body></html>`

// Middleware wraps handlers that need an authenticated session.
func Middleware(source StateSource, loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := Decide(source.State(), r.URL.RequestURI())
			switch decision.Action {
			case Render:
				next.ServeHTTP(w, r)
			case Loading:
				w.Header().Set("Retry-After", "1")
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(loadingPage))
			default:
				http.Redirect(w, r, LoginURL(loginPath, decision.Target), http.StatusSeeOther)
			}
		})
	}
}
