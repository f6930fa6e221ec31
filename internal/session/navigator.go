package session

import (
	"net/url"
	"strings"
)

// Mode is how a navigation affects history.
type Mode int

const (
	// Push adds an entry to history.
	Push Mode = iota
	// Replace swaps the current entry, so back does not return to it.
	Replace
	// Hard is a full reload-style navigation that re-evaluates cookies and
	// drops any in-app router state.
	Hard
)

func (m Mode) String() string {
	switch m {
	case Push:
		return "push"
	case Replace:
		return "replace"
	case Hard:
		return "hard"
	default:
		return "unknown"
	}
}

// Navigation is a forced move to Path.
type Navigation struct {
	Path string
	Mode Mode
}

// Navigator performs navigations. Navigations are fire-and-forget.
type Navigator interface {
	Navigate(n Navigation)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(n Navigation)

func (f NavigatorFunc) Navigate(n Navigation) { f(n) }

// Routes names the paths the guards care about.
type Routes struct {
	Login          string `json:"login"`
	Signup         string `json:"signup"`
	ForgotPassword string `json:"forgotPassword"`
	TwoFactor      string `json:"twoFactor"`
	Dashboard      string `json:"dashboard"`
}

// DefaultRoutes returns the application's route names.
func DefaultRoutes() Routes {
	return Routes{
		Login:          "/acessar",
		Signup:         "/cadastre-se",
		ForgotPassword: "/recuperar-senha",
		TwoFactor:      "/verificar-2fa",
		Dashboard:      "/dashboard",
	}
}

// WithDefaults fills empty fields from DefaultRoutes.
func (r Routes) WithDefaults() Routes {
	d := DefaultRoutes()
	if r.Login == "" {
		r.Login = d.Login
	}
	if r.Signup == "" {
		r.Signup = d.Signup
	}
	if r.ForgotPassword == "" {
		r.ForgotPassword = d.ForgotPassword
	}
	if r.TwoFactor == "" {
		r.TwoFactor = d.TwoFactor
	}
	if r.Dashboard == "" {
		r.Dashboard = d.Dashboard
	}
	return r
}

// IsAuthOnly reports whether path is a page meant only for signed-out users.
func (r Routes) IsAuthOnly(path string) bool {
	path = cleanPath(path)
	return path == r.Login || path == r.Signup || path == r.ForgotPassword
}

// LoginWithRedirect returns the login path carrying a return target.
func (r Routes) LoginWithRedirect(target string) string {
	target = SafeRedirect(target)
	if target == "" || target == r.Login {
		return r.Login
	}
	return r.Login + "?redirect=" + url.QueryEscape(target)
}

// SafeRedirect returns target if it is a local absolute path, else "".
// Scheme-relative and absolute URLs are rejected.
func SafeRedirect(target string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return ""
	}
	return target
}

func cleanPath(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	return path
}
