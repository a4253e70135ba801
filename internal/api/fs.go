package api

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/bluemap-render/internal/account"
	"github.com/JakeFAU/bluemap-render/internal/config"
	"github.com/JakeFAU/bluemap-render/internal/render"
)

type crumb struct {
	Name string
	Href string
}

type fsEntry struct {
	Name   string
	Href   string
	IsFile bool
	Size   int64
}

type fsPage struct {
	Topbar []config.URLItem
	Title  string
	Crumbs []crumb
	Items  []fsEntry
	// Viewer is set when the path names a file.
	Viewer string
}

type setupPage struct {
	AllowCreate bool
}

// handleHome sends signed-in users with the blue service to their file tree.
func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(tokenCookie)
	if err != nil || cookie.Value == "" {
		s.renderTemplate(w, http.StatusOK, "login.html", nil)
		return
	}
	acct, err := s.accounts.ByToken(r.Context(), cookie.Value)
	if errors.Is(err, account.ErrNotFound) {
		s.renderTemplate(w, http.StatusOK, "loggedout.html", nil)
		return
	}
	if err != nil {
		s.logger.Error("account lookup failed", zap.Error(err))
		s.renderError(w, render.External("account lookup failed"))
		return
	}
	if !acct.HasService(account.ServiceBlue) {
		s.renderTemplate(w, http.StatusOK, "setup.html", setupPage{AllowCreate: s.cfg.Render.AllowCreate})
		return
	}
	http.Redirect(w, r, "/fs", http.StatusTemporaryRedirect)
}

// handleFS browses the blue tree. Directories are listed and files get a viewer page.
// Requests that do not accept HTML, or carry ?raw, receive the file itself.
func (s *Server) handleFS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rel := strings.Trim(chi.URLParam(r, "*"), "/")

	requester, ok := s.session(w, r)
	if !ok {
		return
	}
	owner, inner, failure := s.fsOwner(r, requester, rel)
	if failure != nil {
		s.renderError(w, failure)
		return
	}
	if hasDotDot(inner) || firstComponent(inner) == systemDir {
		s.renderError(w, render.NewFailure(render.KindPermissionDenied))
		return
	}

	full := accountPath(owner.ID, path.Join(blueDir, inner))
	isDir, err := s.files.Stat(ctx, full)
	if errors.Is(err, fs.ErrNotExist) {
		s.renderError(w, render.NewFailure(render.KindFileNotFound))
		return
	}
	if err != nil {
		s.logger.Error("stat failed", zap.String("path", full), zap.Error(err))
		s.renderError(w, render.NewFailure(render.KindPermissionDenied))
		return
	}

	page := fsPage{
		Topbar: s.cfg.Topbar.URLs,
		Title:  strconv.FormatInt(requester.ID, 10) + "/" + rel,
		Crumbs: crumbs(rel),
	}
	if !isDir {
		if _, raw := r.URL.Query()["raw"]; raw || !acceptsHTML(r) {
			s.serveFile(w, r, full)
			return
		}
		page.Viewer = fsHref(rel) + "?raw"
		s.renderTemplate(w, http.StatusOK, "fs.html", page)
		return
	}

	items, err := s.files.List(ctx, full)
	if err != nil {
		s.logger.Error("list directory failed", zap.String("path", full), zap.Error(err))
		s.renderError(w, render.External("list directory"))
		return
	}
	for _, item := range items {
		// Guests do not see what the owner was shared.
		if owner.ID != requester.ID && firstComponent(path.Join(inner, item.Name)) == sharedDir {
			continue
		}
		page.Items = append(page.Items, fsEntry{
			Name:   item.Name,
			Href:   fsHref(path.Join(rel, item.Name)),
			IsFile: item.IsFile,
			Size:   item.Size,
		})
	}
	s.renderTemplate(w, http.StatusOK, "fs.html", page)
}

// fsOwner maps Shared/<user>/... onto that user's tree when they grant the requester file access.
func (s *Server) fsOwner(r *http.Request, requester account.Account, rel string) (account.Account, string, *render.Failure) {
	parts := strings.Split(rel, "/")
	if len(parts) < 2 || parts[0] != sharedDir {
		if failure := s.ensureBlue(r.Context(), &requester); failure != nil {
			return account.Account{}, "", failure
		}
		return requester, rel, nil
	}
	owner, err := s.accounts.ByUsername(r.Context(), parts[1])
	if errors.Is(err, account.ErrNotFound) {
		return account.Account{}, "", render.NewFailure(render.KindFileNotFound)
	}
	if err != nil {
		s.logger.Error("shared owner lookup failed", zap.Error(err))
		return account.Account{}, "", render.External("account lookup failed")
	}
	if owner.ID != requester.ID &&
		(!owner.Verified || !owner.HasService(account.ServiceBlue) || !owner.Grants(account.AccessFile, requester.ID)) {
		return account.Account{}, "", render.NewFailure(render.KindFileNotFound)
	}
	return owner, strings.Join(parts[2:], "/"), nil
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, full string) {
	f, err := s.files.Open(r.Context(), full)
	if err != nil {
		s.logger.Error("open file failed", zap.String("path", full), zap.Error(err))
		s.renderError(w, render.NewFailure(render.KindFileNotFound))
		return
	}
	defer func() { _ = f.Close() }()
	info, err := f.Stat()
	if err != nil {
		s.renderError(w, render.External("stat file"))
		return
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// handleDirItems lists a directory of the caller's tree, relative to the account root.
func (s *Server) handleDirItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	acct, failure := s.authenticate(ctx, chi.URLParam(r, "token"))
	if failure != nil {
		s.writeFailure(w, failure)
		return
	}
	if !acct.HasService(account.ServiceBlue) {
		s.writeFailure(w, render.NewFailure(render.KindNotCreated))
		return
	}
	rel := strings.Trim(chi.URLParam(r, "*"), "/")
	if hasDotDot(rel) || hasComponent(rel, systemDir) {
		s.writeFailure(w, render.NewFailure(render.KindPermissionDenied))
		return
	}

	full := accountPath(acct.ID, rel)
	isDir, err := s.files.Stat(ctx, full)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.writeFailure(w, render.NewFailure(render.KindFileNotFound))
		return
	case err != nil:
		s.logger.Error("stat failed", zap.String("path", full), zap.Error(err))
		s.writeFailure(w, render.NewFailure(render.KindPermissionDenied))
		return
	case !isDir:
		s.writeFailure(w, render.NewFailure(render.KindTypeMismatch))
		return
	}
	items, err := s.files.List(ctx, full)
	if err != nil {
		s.logger.Error("list directory failed", zap.String("path", full), zap.Error(err))
		s.writeFailure(w, render.External("list directory"))
		return
	}
	writeJSON(w, http.StatusOK, render.DirItemsResponse{Type: render.TypeDirItems, Content: items})
}

// handleCreate enables the blue service for the token's account.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Render.AllowCreate {
		s.writeFailure(w, render.NewFailure(render.KindFeatureDisabled))
		return
	}
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyLen)).Decode(&req); err != nil {
		s.writeFailure(w, render.NewFailure(render.KindBadRequest))
		return
	}
	ctx := r.Context()
	acct, failure := s.authenticate(ctx, req.Token)
	if failure != nil {
		s.writeFailure(w, failure)
		return
	}
	if acct.HasService(account.ServiceBlue) {
		s.writeFailure(w, render.NewFailure(render.KindAlreadyCreated))
		return
	}
	if failure := s.ensureBlue(ctx, &acct); failure != nil {
		s.writeFailure(w, failure)
		return
	}
	s.logger.Info("blue service created",
		zap.String("request_id", RequestID(ctx)),
		zap.Int64("account_id", acct.ID),
	)
	writeJSON(w, http.StatusOK, render.Response{Type: render.TypeCreated})
}

func crumbs(rel string) []crumb {
	out := []crumb{{Name: blueDir, Href: "/fs"}}
	if rel == "" {
		return out
	}
	parts := strings.Split(rel, "/")
	for i, part := range parts {
		out = append(out, crumb{Name: part, Href: fsHref(strings.Join(parts[:i+1], "/"))})
	}
	return out
}

func fsHref(rel string) string {
	parts := strings.Split(rel, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return "/fs/" + strings.Join(parts, "/")
}

func acceptsHTML(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return accept == "" || strings.Contains(accept, "html")
}
