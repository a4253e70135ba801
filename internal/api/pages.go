package api

import (
	"embed"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/bluemap-render/internal/account"
	"github.com/JakeFAU/bluemap-render/internal/config"
	"github.com/JakeFAU/bluemap-render/internal/render"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

const tokenCookie = "token"

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type presetOption struct {
	Name     string
	Selected bool
}

type renderPage struct {
	Topbar  []config.URLItem
	Source  string
	Target  string
	Presets []presetOption
}

type errorPage struct {
	Topbar  []config.URLItem
	Status  int
	Kind    string
	Message string
}

func staticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

// handleRenderPage serves the page that drives one render of source into blue/target.
func (s *Server) handleRenderPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	source := strings.Trim(r.URL.Query().Get("source"), "/")
	target := strings.Trim(r.URL.Query().Get("target"), "/")

	requester, ok := s.session(w, r)
	if !ok {
		return
	}

	tgt, failure := s.resolve(ctx, requester, source, target)
	if failure != nil {
		s.renderError(w, failure)
		return
	}
	if done, _ := s.files.Exists(ctx, accountPath(tgt.account.ID, tgt.to)); done {
		http.Redirect(w, r, "/fs/"+target, http.StatusTemporaryRedirect)
		return
	}
	if present, _ := s.files.Exists(ctx, accountPath(tgt.account.ID, tgt.from)); !present {
		s.renderError(w, render.NewFailure(render.KindFileNotFound))
		return
	}

	names, err := s.presets.List()
	if err != nil {
		s.logger.Error("list presets failed", zap.Error(err))
		s.renderError(w, render.External("list presets"))
		return
	}
	options := make([]presetOption, 0, len(names))
	for _, name := range names {
		options = append(options, presetOption{Name: name, Selected: name == s.cfg.Render.DefaultPreset})
	}
	s.renderTemplate(w, http.StatusOK, "render.html", renderPage{
		Topbar:  s.cfg.Topbar.URLs,
		Source:  source,
		Target:  target,
		Presets: options,
	})
}

// session returns the verified account behind the token cookie. Otherwise it writes
// the login or error page and reports false.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (account.Account, bool) {
	cookie, err := r.Cookie(tokenCookie)
	if err != nil || cookie.Value == "" {
		s.renderTemplate(w, http.StatusOK, "login.html", nil)
		return account.Account{}, false
	}
	acct, err := s.accounts.ByToken(r.Context(), cookie.Value)
	if errors.Is(err, account.ErrNotFound) {
		s.renderTemplate(w, http.StatusOK, "login.html", nil)
		return account.Account{}, false
	}
	if err != nil {
		s.logger.Error("account lookup failed", zap.Error(err))
		s.renderError(w, render.External("account lookup failed"))
		return account.Account{}, false
	}
	if !acct.Verified {
		s.renderError(w, render.NewFailure(render.KindNotVerified))
		return account.Account{}, false
	}
	return acct, true
}

func (s *Server) renderError(w http.ResponseWriter, failure *render.Failure) {
	status := StatusForKind(failure.Kind.Type)
	s.renderTemplate(w, status, "error.html", errorPage{
		Topbar:  s.cfg.Topbar.URLs,
		Status:  status,
		Kind:    failure.Kind.Type,
		Message: failure.Kind.Content,
	})
}

func (s *Server) renderTemplate(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		s.logger.Error("render template failed", zap.String("template", name), zap.Error(err))
	}
}
