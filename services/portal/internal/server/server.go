package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"teamhub/internal/metrics"
	"teamhub/internal/ratelimit"
	"teamhub/internal/util"
	"teamhub/pkg/domain"
	"teamhub/services/portal/internal/app"
	"teamhub/services/portal/internal/security"
)

const (
	maxJSONBodyBytes = 1 << 20
	// multipartSlack leaves room for boundaries and headers around the file part.
	multipartSlack = 1 << 20
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	Redis          redis.UniversalClient
	Metrics        *metrics.Metrics
	Alerter        *security.AuditAlerter
	TrustedProxies *util.TrustedProxies
	CORSOrigins    []string

	RegisterRateLimitPerMinute int
	LoginRateLimitPerMinute    int
}

// Server exposes the portal HTTP API.
type Server struct {
	app             *app.App
	mux             *http.ServeMux
	metrics         *metrics.Metrics
	alerter         *security.AuditAlerter
	trustedProxies  *util.TrustedProxies
	corsOrigins     []string
	registerLimiter *ratelimit.FixedWindowLimiter
	loginLimiter    *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app is required")
	}
	if cfg.Redis == nil {
		return nil, errors.New("redis client is required for rate limiting")
	}
	registerLimit := cfg.RegisterRateLimitPerMinute
	if registerLimit <= 0 {
		registerLimit = 5
	}
	loginLimit := cfg.LoginRateLimitPerMinute
	if loginLimit <= 0 {
		loginLimit = 10
	}
	newLimiter := func(name string, limit int) (*ratelimit.FixedWindowLimiter, error) {
		limiter, err := ratelimit.NewFixedWindowLimiter(cfg.Redis, "teamhub:portal:ratelimit:"+name, limit, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init %s limiter: %w", name, err)
		}
		return limiter, nil
	}
	registerLimiter, err := newLimiter("register", registerLimit)
	if err != nil {
		return nil, err
	}
	loginLimiter, err := newLimiter("login", loginLimit)
	if err != nil {
		return nil, err
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.New("teamhub")
	}
	s := &Server{
		app:             cfg.App,
		mux:             http.NewServeMux(),
		metrics:         m,
		alerter:         cfg.Alerter,
		trustedProxies:  cfg.TrustedProxies,
		corsOrigins:     cfg.CORSOrigins,
		registerLimiter: registerLimiter,
		loginLimiter:    loginLimiter,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	var h http.Handler = s.mux
	h = util.WithCORS(s.corsOrigins, h)
	h = util.WithSecurityHeaders(h)
	h = util.WithRequestLog("portal", h)
	h = util.WithRequestID(h)
	return s.metrics.Middleware(h)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", s.metrics.Handler())

	// auth
	s.mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	s.mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	s.mux.Handle("GET /api/auth/me", s.authenticated(s.handleMe))

	// teams
	s.mux.Handle("GET /api/teams", s.activeOnly(s.handleListTeams))
	s.mux.Handle("POST /api/teams", s.adminOnly(s.handleCreateTeams))
	s.mux.Handle("DELETE /api/teams", s.adminOnly(s.handleResetTeams))
	s.mux.Handle("GET /api/teams/me", s.activeOnly(s.handleMyTeam))
	s.mux.Handle("POST /api/teams/me/topic", s.activeOnly(s.handleDrawTopic))
	s.mux.Handle("PUT /api/teams/me/name", s.activeOnly(s.handleRenameTeam))
	s.mux.Handle("PUT /api/teams/me/sub-theme", s.activeOnly(s.handleProposeSubTheme))
	s.mux.Handle("POST /api/teams/me/logo", s.activeOnly(s.handleUploadLogo))
	s.mux.Handle("GET /api/teams/{id}", s.activeOnly(s.handleGetTeam))
	s.mux.Handle("PATCH /api/teams/{id}", s.adminOnly(s.handleSetTeamStatus))
	s.mux.Handle("GET /api/teams/{id}/logo", s.activeOnly(s.handleTeamLogo))
	s.mux.Handle("POST /api/teams/{id}/members", s.adminOnly(s.handleAssignMember))
	s.mux.Handle("POST /api/teams/{id}/sub-theme", s.adminOnly(s.handleDecideSubTheme))
	s.mux.Handle("GET /api/teams/{id}/documents", s.activeOnly(s.handleTeamDocuments))

	// documents
	s.mux.Handle("POST /api/documents", s.activeOnly(s.handleSubmitDocument))
	s.mux.Handle("GET /api/documents/me", s.activeOnly(s.handleMyDocuments))
	s.mux.Handle("GET /api/documents/{id}/download", s.activeOnly(s.handleDownloadDocument))
	s.mux.Handle("POST /api/documents/{id}/review", s.adminOnly(s.handleReviewDocument))

	// admin
	s.mux.Handle("GET /api/admin/dashboard", s.adminOnly(s.handleDashboard))
	s.mux.Handle("GET /api/admin/users", s.adminOnly(s.handleListUsers))
	s.mux.Handle("POST /api/admin/users/{id}/approve", s.adminOnly(s.handleApproveUser))
	s.mux.Handle("PATCH /api/admin/users/{id}", s.adminOnly(s.handleUpdateUser))
	s.mux.Handle("DELETE /api/admin/users/{id}", s.adminOnly(s.handleDeleteUser))
	s.mux.Handle("GET /api/admin/documents/pending", s.adminOnly(s.handlePendingDocuments))
	s.mux.Handle("GET /api/admin/activity", s.adminOnly(s.handleActivity))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, domain.User)

// authenticated resolves the bearer token. Inactive accounts pass.
func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.authorize(r)
		if err != nil {
			s.audit(r, security.EventAuthorize, security.OutcomeFail, "reason", errorCode(err))
			s.writeAppError(w, r, err)
			return
		}
		next(w, r, user)
	})
}

// activeOnly additionally rejects accounts awaiting approval.
func (s *Server) activeOnly(next authHandler) http.Handler {
	return s.authenticated(func(w http.ResponseWriter, r *http.Request, user domain.User) {
		if err := app.RequireActive(user); err != nil {
			s.audit(r, security.EventAuthorize, security.OutcomeFail, "user_id", user.ID, "reason", errorCode(err))
			s.writeAppError(w, r, err)
			return
		}
		next(w, r, user)
	})
}

func (s *Server) adminOnly(next authHandler) http.Handler {
	return s.authenticated(func(w http.ResponseWriter, r *http.Request, user domain.User) {
		err := app.RequireRole(user, domain.RoleAdmin)
		if err == nil {
			err = app.RequireActive(user)
		}
		if err != nil {
			s.audit(r, security.EventAdminAuthorize, security.OutcomeFail, "user_id", user.ID, "reason", errorCode(err))
			s.writeAppError(w, r, err)
			return
		}
		s.audit(r, security.EventAdminAuthorize, security.OutcomeSuccess, "user_id", user.ID)
		next(w, r, user)
	})
}

func (s *Server) authorize(r *http.Request) (domain.User, error) {
	token, ok := bearerToken(r)
	if !ok {
		return domain.User{}, app.ErrInvalidToken.WithMessage("missing bearer token")
	}
	return s.app.Authenticate(r.Context(), token)
}

// auth handlers
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.registerLimiter, security.EventRegister, "too many registration attempts") {
		return
	}
	var req registerRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	user, token, err := s.app.Register(r.Context(), app.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FullName:  req.FullName,
		AdminCode: req.AdminCode,
	})
	if err != nil {
		s.audit(r, security.EventRegister, security.OutcomeFail, "reason", errorCode(err))
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, security.EventRegister, security.OutcomeSuccess, "user_id", user.ID, "role", user.Role)
	writeJSON(w, http.StatusCreated, s.authResponse(token, user))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.loginLimiter, security.EventLogin, "too many login attempts") {
		return
	}
	var req loginRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	user, token, err := s.app.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.audit(r, security.EventLogin, security.OutcomeFail, "reason", errorCode(err))
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, security.EventLogin, security.OutcomeSuccess, "user_id", user.ID)
	writeJSON(w, http.StatusOK, s.authResponse(token, user))
}

func (s *Server) handleMe(w http.ResponseWriter, _ *http.Request, user domain.User) {
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) authResponse(token string, user domain.User) authResponse {
	return authResponse{
		Token:     token,
		TokenType: "bearer",
		ExpiresIn: int64(s.app.TokenTTL() / time.Second),
		User:      user,
	}
}

// team handlers
func (s *Server) handleListTeams(w http.ResponseWriter, r *http.Request, _ domain.User) {
	teams, err := s.app.ListTeams(r.Context())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeList(w, teams)
}

func (s *Server) handleCreateTeams(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req createTeamsRequest
	if r.ContentLength != 0 && !s.decodeJSON(w, r, &req) {
		return
	}
	teams, err := s.app.CreateTeams(r.Context(), user, req.Count)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"items": teams,
		"count": len(teams),
	})
}

func (s *Server) handleResetTeams(w http.ResponseWriter, r *http.Request, user domain.User) {
	deleted, err := s.app.ResetTeams(r.Context(), user)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

func (s *Server) handleMyTeam(w http.ResponseWriter, r *http.Request, user domain.User) {
	team, err := s.app.MyTeam(r.Context(), user)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, team)
}

func (s *Server) handleDrawTopic(w http.ResponseWriter, r *http.Request, user domain.User) {
	team, err := s.app.DrawTopic(r.Context(), user)
	if err != nil {
		s.metrics.RecordTopicDraw(errorCode(err))
		s.writeAppError(w, r, err)
		return
	}
	s.metrics.RecordTopicDraw("drawn")
	writeJSON(w, http.StatusOK, team)
}

func (s *Server) handleRenameTeam(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req renameTeamRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	team, err := s.app.RenameTeam(r.Context(), user, req.Name)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, team)
}

func (s *Server) handleProposeSubTheme(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req subThemeRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	team, err := s.app.ProposeSubTheme(r.Context(), user, req.SubTheme)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, team)
}

func (s *Server) handleUploadLogo(w http.ResponseWriter, r *http.Request, user domain.User) {
	filename, data, ok := s.readUpload(w, r, s.app.LogoMaxBytes())
	if !ok {
		return
	}
	team, err := s.app.UploadLogo(r.Context(), user, filename, data)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, team)
}

func (s *Server) handleGetTeam(w http.ResponseWriter, r *http.Request, _ domain.User) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	team, err := s.app.GetTeam(r.Context(), id)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, team)
}

func (s *Server) handleSetTeamStatus(w http.ResponseWriter, r *http.Request, user domain.User) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var req teamStatusRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	status, valid := domain.ParseTeamStatus(req.Status)
	if !valid {
		s.writeAppError(w, r, app.ErrInvalidInput.WithMessage("status must be active or completed"))
		return
	}
	team, err := s.app.SetTeamStatus(r.Context(), user, id, status)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, team)
}

func (s *Server) handleTeamLogo(w http.ResponseWriter, r *http.Request, _ domain.User) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	body, contentType, err := s.app.TeamLogo(r.Context(), id)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	defer body.Close()
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		util.LoggerFromContext(r.Context()).Warn("logo stream interrupted", "team_id", id, "err", err)
	}
}

func (s *Server) handleAssignMember(w http.ResponseWriter, r *http.Request, user domain.User) {
	teamID, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var req assignMemberRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	member, err := s.app.AssignMember(r.Context(), user, req.UserID, teamID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

func (s *Server) handleDecideSubTheme(w http.ResponseWriter, r *http.Request, user domain.User) {
	teamID, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var req decisionRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	team, err := s.app.DecideSubTheme(r.Context(), user, teamID, parseDecision(req.Decision))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, team)
}

func (s *Server) handleTeamDocuments(w http.ResponseWriter, r *http.Request, user domain.User) {
	teamID, ok := s.pathID(w, r)
	if !ok {
		return
	}
	docs, err := s.app.ListTeamDocuments(r.Context(), user, teamID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeList(w, docs)
}

// document handlers
func (s *Server) handleSubmitDocument(w http.ResponseWriter, r *http.Request, user domain.User) {
	filename, data, ok := s.readUpload(w, r, s.app.DocumentMaxBytes())
	if !ok {
		return
	}
	doc, err := s.app.SubmitDocument(r.Context(), user, filename, data)
	if err != nil {
		s.metrics.RecordSubmission(errorCode(err), int64(len(data)))
		s.writeAppError(w, r, err)
		return
	}
	s.metrics.RecordSubmission("accepted", doc.SizeBytes)
	writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleMyDocuments(w http.ResponseWriter, r *http.Request, user domain.User) {
	docs, err := s.app.MyDocuments(r.Context(), user)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeList(w, docs)
}

func (s *Server) handleDownloadDocument(w http.ResponseWriter, r *http.Request, user domain.User) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	doc, body, err := s.app.DownloadDocument(r.Context(), user, id)
	if err != nil {
		s.audit(r, security.EventDownload, security.OutcomeFail, "user_id", user.ID, "document_id", id, "reason", errorCode(err))
		s.writeAppError(w, r, err)
		return
	}
	defer body.Close()
	s.audit(r, security.EventDownload, security.OutcomeSuccess, "user_id", user.ID, "document_id", id)

	w.Header().Set("Content-Type", app.ContentTypeFor(doc.Filename))
	w.Header().Set("Content-Disposition", attachmentDisposition(doc.Filename))
	if doc.SizeBytes > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(doc.SizeBytes, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		util.LoggerFromContext(r.Context()).Warn("document stream interrupted", "document_id", id, "err", err)
	}
}

func (s *Server) handleReviewDocument(w http.ResponseWriter, r *http.Request, user domain.User) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var req reviewRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	doc, err := s.app.ReviewDocument(r.Context(), user, id, parseDecision(req.Decision), req.Comment)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	s.metrics.RecordReview(string(doc.Status))
	writeJSON(w, http.StatusOK, doc)
}

// admin handlers
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, user domain.User) {
	stats, err := s.app.Dashboard(r.Context(), user)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request, user domain.User) {
	query := app.UserQuery{}
	values := r.URL.Query()
	if raw := strings.TrimSpace(values.Get("role")); raw != "" {
		role, ok := domain.ParseUserRole(raw)
		if !ok {
			s.writeAppError(w, r, app.ErrInvalidInput.WithMessage("unknown role"))
			return
		}
		query.Role = role
	}
	if raw := strings.TrimSpace(values.Get("pending")); raw != "" {
		pending, err := strconv.ParseBool(raw)
		if err != nil {
			s.writeAppError(w, r, app.ErrInvalidInput.WithMessage("pending must be a boolean"))
			return
		}
		query.PendingOnly = pending
	}
	users, err := s.app.ListUsers(r.Context(), user, query)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeList(w, users)
}

func (s *Server) handleApproveUser(w http.ResponseWriter, r *http.Request, user domain.User) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	approved, err := s.app.Approve(r.Context(), user, id)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, approved)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request, user domain.User) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var req updateUserRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	patch := app.UserPatch{
		FullName: req.FullName,
		Email:    req.Email,
		IsActive: req.IsActive,
	}
	if req.Role != nil {
		role, valid := domain.ParseUserRole(*req.Role)
		if !valid {
			s.writeAppError(w, r, app.ErrInvalidInput.WithMessage("unknown role"))
			return
		}
		patch.Role = &role
	}
	updated, err := s.app.UpdateUser(r.Context(), user, id, patch)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request, user domain.User) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if err := s.app.DeleteUser(r.Context(), user, id); err != nil {
		s.audit(r, security.EventUserDelete, security.OutcomeFail, "user_id", user.ID, "target_id", id, "reason", errorCode(err))
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, security.EventUserDelete, security.OutcomeSuccess, "user_id", user.ID, "target_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePendingDocuments(w http.ResponseWriter, r *http.Request, user domain.User) {
	docs, err := s.app.PendingDocuments(r.Context(), user)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeList(w, docs)
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request, user domain.User) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeAppError(w, r, app.ErrInvalidInput.WithMessage("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	entries, err := s.app.Activity(r.Context(), user, limit)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeList(w, entries)
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FullName  string `json:"fullName"`
	AdminCode string `json:"adminCode,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token     string      `json:"token"`
	TokenType string      `json:"tokenType"`
	ExpiresIn int64       `json:"expiresIn"`
	User      domain.User `json:"user"`
}

type createTeamsRequest struct {
	Count int `json:"count"`
}

type renameTeamRequest struct {
	Name string `json:"name"`
}

type subThemeRequest struct {
	SubTheme string `json:"subTheme"`
}

type teamStatusRequest struct {
	Status string `json:"status"`
}

type assignMemberRequest struct {
	UserID int64 `json:"userId"`
}

type decisionRequest struct {
	Decision string `json:"decision"`
}

type reviewRequest struct {
	Decision string  `json:"decision"`
	Comment  *string `json:"comment"`
}

type updateUserRequest struct {
	FullName *string `json:"fullName"`
	Email    *string `json:"email"`
	Role     *string `json:"role"`
	IsActive *bool   `json:"isActive"`
}

// parseDecision leaves validation to the app, which rejects anything other
// than approved or rejected.
func parseDecision(raw string) domain.ReviewStatus {
	status, _ := domain.ParseReviewStatus(raw)
	return status
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBodyBytes)).Decode(dst); err != nil {
		s.writeAppError(w, r, app.ErrInvalidInput.WithMessage("invalid JSON body"))
		return false
	}
	return true
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeAppError(w, r, app.ErrInvalidInput.WithMessage("invalid id"))
		return 0, false
	}
	return id, true
}

// readUpload extracts the multipart "file" field. The app enforces the exact
// size limit; the body cap here only stops clients streaming far beyond it.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request, limit int64) (string, []byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartSlack)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeAppError(w, r, app.ErrTooLarge)
			return "", nil, false
		}
		s.writeAppError(w, r, app.ErrInvalidInput.WithMessage("invalid form data"))
		return "", nil, false
	}
	defer r.MultipartForm.RemoveAll()
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeAppError(w, r, app.ErrInvalidInput.WithMessage("file is required (field: file)"))
		return "", nil, false
	}
	defer file.Close()
	data, err := app.ReadUpload(file, limit)
	if err != nil {
		s.writeAppError(w, r, fmt.Errorf("read upload: %w", err))
		return "", nil, false
	}
	return header.Filename, data, true
}

func attachmentDisposition(filename string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
		return v
	}
	return "attachment"
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if len(authHeader) < len("Bearer ") || !strings.EqualFold(authHeader[:len("Bearer ")], "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(authHeader[len("Bearer "):])
	if token == "" {
		return "", false
	}
	return token, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeList[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"error": msg, "code": code})
}

// writeAppError maps classified errors to their status. Anything else is
// logged and reported as an opaque internal error.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *app.Error
	if !errors.As(err, &appErr) {
		util.LoggerFromContext(r.Context()).Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	writeError(w, statusFor(appErr.Kind), appErr.Code, appErr.Message)
}

func statusFor(kind app.Kind) int {
	switch kind {
	case app.KindNotFound, app.KindIntegrity:
		return http.StatusNotFound
	case app.KindForbidden:
		return http.StatusForbidden
	case app.KindUnauthenticated:
		return http.StatusUnauthorized
	case app.KindConflict, app.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func errorCode(err error) string {
	var appErr *app.Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "internal"
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	ip := s.clientIP(r)
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", ip,
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == security.OutcomeSuccess {
		logger.Info("security_event", logAttrs...)
	} else {
		logger.Warn("security_event", logAttrs...)
	}
	if s.alerter == nil {
		return
	}
	result, err := s.alerter.Observe(r.Context(), event, outcome, ip)
	if err != nil {
		logger.Warn("security_alert_check_failed", "event", event, "outcome", outcome, "err", err)
		return
	}
	if result.Triggered {
		s.metrics.RecordAlert(event, outcome)
		logger.Error("security_alert",
			"event", event,
			"outcome", outcome,
			"ip", ip,
			"count", result.Count,
			"threshold", result.Threshold,
			"window", result.Window.String(),
		)
	}
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, event, msg string) bool {
	key := r.URL.Path + "|" + s.clientIP(r)
	decision := limiter.Allow(r.Context(), key)
	if decision.Allowed {
		return true
	}
	retryAfter := int(math.Ceil(decision.RetryAfter.Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	s.audit(r, event, security.OutcomeRateLimited)
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	writeError(w, http.StatusTooManyRequests, "rate_limited", msg)
	return false
}

func (s *Server) clientIP(r *http.Request) string {
	return util.ClientIP(r, s.trustedProxies)
}
