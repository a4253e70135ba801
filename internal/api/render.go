package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/bluemap-render/internal/account"
	"github.com/JakeFAU/bluemap-render/internal/jobs"
	"github.com/JakeFAU/bluemap-render/internal/metrics"
	"github.com/JakeFAU/bluemap-render/internal/render"
)

const (
	blueDir    = account.ServiceBlue
	sharedDir  = "Shared"
	systemDir  = ".system"
	maxBodyLen = 64 << 10
)

// kindStatus maps error kinds to HTTP status codes.
var kindStatus = map[string]int{
	render.KindBadRequest:       http.StatusBadRequest,
	render.KindInvalidToken:     http.StatusUnauthorized,
	render.KindNotVerified:      http.StatusForbidden,
	render.KindFileNotFound:     http.StatusNotFound,
	render.KindPermissionDenied: http.StatusForbidden,
	render.KindPathOccupied:     http.StatusConflict,
	render.KindPresetNotFound:   http.StatusNotFound,
	render.KindQueueFull:        http.StatusServiceUnavailable,
	render.KindTooManyRequests:  http.StatusTooManyRequests,
	render.KindTimedOut:         http.StatusGatewayTimeout,
	render.KindExternal:         http.StatusInternalServerError,
	render.KindTypeMismatch:     http.StatusBadRequest,
	render.KindFeatureDisabled:  http.StatusForbidden,
	render.KindAlreadyCreated:   http.StatusConflict,
	render.KindNotCreated:       http.StatusForbidden,
}

// StatusForKind returns the HTTP status used for an error kind.
func StatusForKind(kind string) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// target is a resolved render request: whose tree it runs in and the paths inside it.
type target struct {
	account account.Account
	from    string
	to      string
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	var req render.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyLen)).Decode(&req); err != nil {
		s.writeFailure(w, render.NewFailure(render.KindBadRequest))
		return
	}
	token := ""
	if req.Token != nil {
		token = *req.Token
	}
	if s.throttle != nil && !s.throttle.Allow(token) {
		s.writeFailure(w, render.NewFailure(render.KindTooManyRequests))
		return
	}

	ctx := r.Context()
	requester, failure := s.authenticate(ctx, token)
	if failure != nil {
		s.writeFailure(w, failure)
		return
	}

	preset := strings.TrimLeft(req.Preset, "/")
	tgt, failure := s.resolve(ctx, requester, req.From, req.To)
	if failure == nil && hasDotDot(preset) {
		failure = render.NewFailure(render.KindPermissionDenied)
	}
	if failure != nil {
		s.writeFailure(w, failure)
		return
	}
	if failure := s.ensureBlue(ctx, &tgt.account); failure != nil {
		s.writeFailure(w, failure)
		return
	}
	if preset == "" {
		preset = s.cfg.Render.DefaultPreset
	}
	if failure := s.checkPaths(ctx, tgt, preset); failure != nil {
		s.writeFailure(w, failure)
		return
	}

	task := render.Task{AccountID: tgt.account.ID, From: tgt.from, To: tgt.to, Preset: preset}
	logger := s.logger.With(
		zap.String("request_id", RequestID(ctx)),
		zap.Int64("account_id", tgt.account.ID),
		zap.Int64("requester_id", requester.ID),
	)
	logger.Info("render requested", zap.String("from", task.From), zap.String("to", task.To), zap.String("preset", preset))

	res, err := s.runner.Run(ctx, tgt.account.ID, task, s.limitsFor(tgt.account), s.cfg.RenderTimeout())
	if err != nil {
		logger.Warn("render rejected", zap.Error(err))
		s.writeFailure(w, failureFromRun(err))
		return
	}
	writeJSON(w, http.StatusOK, render.Response{
		Type:    render.TypeRendered,
		NewPath: res.NewPath,
		ID:      res.JobID,
	})
}

func (s *Server) authenticate(ctx context.Context, token string) (account.Account, *render.Failure) {
	if token == "" {
		return account.Account{}, render.NewFailure(render.KindInvalidToken)
	}
	acct, err := s.accounts.ByToken(ctx, token)
	if errors.Is(err, account.ErrNotFound) {
		return account.Account{}, render.NewFailure(render.KindInvalidToken)
	}
	if err != nil {
		s.logger.Error("account lookup failed", zap.Error(err))
		return account.Account{}, render.External("account lookup failed")
	}
	if !acct.Verified {
		return account.Account{}, render.NewFailure(render.KindNotVerified)
	}
	return acct, nil
}

// resolve applies shared-folder redirection and the path safety rules.
// from is relative to the account root; to gains the blue/ prefix.
func (s *Server) resolve(ctx context.Context, requester account.Account, rawFrom, rawTo string) (target, *render.Failure) {
	from := strings.TrimLeft(rawFrom, "/")
	userTo := strings.TrimLeft(rawTo, "/")
	if from == "" || userTo == "" {
		return target{}, render.NewFailure(render.KindBadRequest)
	}
	tgt := target{account: requester, from: from, to: blueDir + "/" + userTo}

	if parts := strings.Split(from, "/"); len(parts) >= 3 && parts[1] == sharedDir {
		owner, err := s.accounts.ByUsername(ctx, parts[2])
		if err != nil {
			if !errors.Is(err, account.ErrNotFound) {
				s.logger.Error("shared owner lookup failed", zap.Error(err))
				return target{}, render.External("account lookup failed")
			}
			return target{}, render.NewFailure(render.KindFileNotFound)
		}
		if !owner.Verified || !owner.Grants(account.AccessFile, requester.ID) {
			return target{}, render.NewFailure(render.KindFileNotFound)
		}
		tgt.account = owner
		tgt.from = strings.Join(append([]string{parts[0]}, parts[3:]...), "/")
	}

	if parts := strings.Split(tgt.to, "/"); len(parts) >= 3 && parts[1] == sharedDir {
		if !strings.EqualFold(parts[2], tgt.account.Username) {
			return target{}, render.NewFailure(render.KindPermissionDenied)
		}
		tgt.to = strings.Join(append([]string{blueDir}, parts[3:]...), "/")
	}

	fromParts := strings.Split(tgt.from, "/")
	if hasDotDot(tgt.from) || hasDotDot(tgt.to) ||
		(len(fromParts) > 1 && fromParts[1] == systemDir) ||
		firstComponent(userTo) == systemDir {
		return target{}, render.NewFailure(render.KindPermissionDenied)
	}
	return tgt, nil
}

// ensureBlue enables the blue service on first use.
func (s *Server) ensureBlue(ctx context.Context, acct *account.Account) *render.Failure {
	if acct.HasService(account.ServiceBlue) {
		return nil
	}
	if !s.cfg.Render.AllowCreate {
		return render.NewFailure(render.KindPermissionDenied)
	}
	if err := s.files.EnsureDir(ctx, accountPath(acct.ID, blueDir)); err != nil {
		s.logger.Error("create blue directory failed", zap.Int64("account_id", acct.ID), zap.Error(err))
		return render.External("create blue directory")
	}
	if err := s.accounts.EnableService(ctx, acct.ID, account.ServiceBlue); err != nil {
		s.logger.Error("enable blue service failed", zap.Int64("account_id", acct.ID), zap.Error(err))
		return render.External("enable blue service")
	}
	acct.Services = append(acct.Services, account.ServiceBlue)
	return nil
}

func (s *Server) checkPaths(ctx context.Context, tgt target, preset string) *render.Failure {
	occupied, err := s.files.Exists(ctx, accountPath(tgt.account.ID, tgt.to))
	if err != nil {
		return render.NewFailure(render.KindPermissionDenied)
	}
	if occupied {
		return render.NewFailure(render.KindPathOccupied)
	}
	present, err := s.files.Exists(ctx, accountPath(tgt.account.ID, tgt.from))
	if err != nil || !present {
		return render.NewFailure(render.KindFileNotFound)
	}
	if preset == "" || !s.presets.Exists(preset) {
		return render.NewFailure(render.KindPresetNotFound)
	}
	return nil
}

func (s *Server) limitsFor(acct account.Account) jobs.Limits {
	if l, ok := s.cfg.Jobs.Limits[acct.Limit]; ok && acct.Limit != "" {
		return jobs.Limits{MaxConcurrent: l.MaxConcurrent, QueueLimit: l.QueueLimit}
	}
	return jobs.Limits{MaxConcurrent: s.cfg.Jobs.MaxConcurrent, QueueLimit: s.cfg.Jobs.QueueLimit}
}

func failureFromRun(err error) *render.Failure {
	var failure *render.Failure
	switch {
	case errors.As(err, &failure):
		return failure
	case errors.Is(err, jobs.ErrQueueFull):
		return render.NewFailure(render.KindQueueFull)
	case errors.Is(err, jobs.ErrTimedOut):
		return render.NewFailure(render.KindTimedOut)
	default:
		return render.External(err.Error())
	}
}

func (s *Server) writeFailure(w http.ResponseWriter, failure *render.Failure) {
	metrics.ObserveRejection(failure.Kind.Type)
	writeJSON(w, StatusForKind(failure.Kind.Type), render.ErrorResponse(failure.Kind.Type, failure.Kind.Content))
}

func accountPath(accountID int64, rel string) string {
	return path.Join(strconv.FormatInt(accountID, 10), rel)
}

func hasDotDot(p string) bool {
	return hasComponent(p, "..")
}

func hasComponent(p, name string) bool {
	for _, part := range strings.Split(p, "/") {
		if part == name {
			return true
		}
	}
	return false
}

func firstComponent(p string) string {
	first, _, _ := strings.Cut(p, "/")
	return first
}
