package authhandler

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"payhub/internal/domain/audit"
	"payhub/internal/domain/auth"
	"payhub/internal/platform/email"
	"payhub/internal/platform/requestctx"
	"payhub/internal/transport/http/api"
	"payhub/internal/transport/http/middleware"
	"payhub/internal/transport/http/shared"
)

type Handler struct {
	DB         *pgxpool.Pool
	Secret     string
	SessionTTL time.Duration
	Mailer     email.Mailer
	EmailFrom  string
}

func NewHandler(db *pgxpool.Pool, secret string, sessionTTL time.Duration, mailer email.Mailer, emailFrom string) *Handler {
	return &Handler{DB: db, Secret: secret, SessionTTL: sessionTTL, Mailer: mailer, EmailFrom: emailFrom}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/login", h.HandleLogin)
	r.Post("/logout", h.HandleLogout)
	r.Get("/me", h.HandleMe)
	r.Get("/navigation", h.HandleNavigation)
	r.Post("/change-password", h.HandleChangePassword)
	r.Post("/request-reset", h.HandleRequestReset)
	r.Post("/reset", h.HandleResetPassword)
	r.Post("/impersonate", h.HandleImpersonate)
	r.Delete("/impersonate", h.HandleClearImpersonation)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type resetRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type impersonateRequest struct {
	CompanyID string `json:"companyId"`
}

type userPayload struct {
	ID                 string `json:"id"`
	Email              string `json:"email"`
	FullName           string `json:"fullName"`
	Role               string `json:"role"`
	CompanyID          string `json:"companyId,omitempty"`
	MustChangePassword bool   `json:"mustChangePassword"`
	ImpersonateCompany string `json:"impersonateCompanyId,omitempty"`
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var payload loginRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestctx.GetRequestID(r.Context()))
		return
	}

	v := shared.NewValidator()
	v.Required("email", payload.Email, "email is required")
	v.Required("password", payload.Password, "password is required")
	if v.Reject(w, requestctx.GetRequestID(r.Context())) {
		return
	}

	var user userPayload
	var hash string
	err := h.DB.QueryRow(r.Context(), `
    SELECT id, email, full_name, role, COALESCE(company_id::text, ''), password_hash, must_change_password
    FROM users
    WHERE email = $1 AND status = 'ACTIVE'
  `, strings.ToLower(strings.TrimSpace(payload.Email))).Scan(
		&user.ID, &user.Email, &user.FullName, &user.Role, &user.CompanyID, &hash, &user.MustChangePassword)
	if err != nil {
		api.Fail(w, http.StatusUnauthorized, "invalid_credentials", "Email or password incorrect", requestctx.GetRequestID(r.Context()))
		return
	}

	if err := auth.CheckPassword(hash, payload.Password); err != nil {
		api.Fail(w, http.StatusUnauthorized, "invalid_credentials", "Email or password incorrect", requestctx.GetRequestID(r.Context()))
		return
	}
	user.Role = auth.NormalizeRole(user.Role)

	sessionID, err := generateToken()
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "token_error", "failed to issue token", requestctx.GetRequestID(r.Context()))
		return
	}
	if _, err := h.DB.Exec(r.Context(), `
    INSERT INTO sessions (user_id, token_hash, expires_at)
    VALUES ($1, $2, $3)
  `, user.ID, auth.HashToken(sessionID), time.Now().Add(h.SessionTTL)); err != nil {
		api.Fail(w, http.StatusInternalServerError, "session_error", "failed to start session", requestctx.GetRequestID(r.Context()))
		return
	}

	token, err := auth.GenerateToken(h.Secret, auth.Claims{
		UserID:    user.ID,
		CompanyID: user.CompanyID,
		Role:      user.Role,
		SessionID: sessionID,
	}, h.SessionTTL)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "token_error", "failed to issue token", requestctx.GetRequestID(r.Context()))
		return
	}

	if _, err := h.DB.Exec(r.Context(), "UPDATE users SET last_login = now() WHERE id = $1", user.ID); err != nil {
		slog.Warn("update last_login failed", "userId", user.ID, "err", err)
	}

	api.Success(w, map[string]any{
		"token":      token,
		"user":       user,
		"navigation": auth.Navigation(user.Role),
	}, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if user, ok := middleware.GetUser(r.Context()); ok && user.SessionID != "" {
		if _, err := h.DB.Exec(r.Context(), "UPDATE sessions SET revoked_at = now() WHERE token_hash = $1", auth.HashToken(user.SessionID)); err != nil {
			slog.Warn("logout session revoke failed", "userId", user.UserID, "err", err)
		}
		if user.ImpersonateCompany != "" {
			if _, err := h.DB.Exec(r.Context(), "UPDATE users SET impersonate_company_id = NULL WHERE id = $1", user.UserID); err != nil {
				slog.Warn("logout impersonation clear failed", "userId", user.UserID, "err", err)
			}
		}
	}
	api.Success(w, map[string]string{"status": "logged_out"}, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}

	var me userPayload
	err := h.DB.QueryRow(r.Context(), `
    SELECT id, email, full_name, role, COALESCE(company_id::text, ''), must_change_password, COALESCE(impersonate_company_id::text, '')
    FROM users
    WHERE id = $1
  `, user.UserID).Scan(&me.ID, &me.Email, &me.FullName, &me.Role, &me.CompanyID, &me.MustChangePassword, &me.ImpersonateCompany)
	if err != nil {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}
	me.Role = auth.NormalizeRole(me.Role)

	api.Success(w, map[string]any{
		"user":       me,
		"navigation": auth.Navigation(me.Role),
	}, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) HandleNavigation(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}
	api.Success(w, auth.Navigation(user.Role), requestctx.GetRequestID(r.Context()))
}

func (h *Handler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}

	var payload changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestctx.GetRequestID(r.Context()))
		return
	}

	v := shared.NewValidator()
	v.Required("currentPassword", payload.CurrentPassword, "current password is required")
	v.Required("newPassword", payload.NewPassword, "new password is required")
	if len(payload.NewPassword) > 0 && len(payload.NewPassword) < 8 {
		v.Add("newPassword", "must be at least 8 characters")
	}
	if v.Reject(w, requestctx.GetRequestID(r.Context())) {
		return
	}

	var hash string
	if err := h.DB.QueryRow(r.Context(), "SELECT password_hash FROM users WHERE id = $1", user.UserID).Scan(&hash); err != nil {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}
	if err := auth.CheckPassword(hash, payload.CurrentPassword); err != nil {
		api.Fail(w, http.StatusUnauthorized, "invalid_credentials", "Email or password incorrect", requestctx.GetRequestID(r.Context()))
		return
	}

	newHash, err := auth.HashPassword(payload.NewPassword)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "hash_error", "failed to update password", requestctx.GetRequestID(r.Context()))
		return
	}
	if _, err := h.DB.Exec(r.Context(), `
    UPDATE users SET password_hash = $1, must_change_password = false WHERE id = $2
  `, newHash, user.UserID); err != nil {
		api.Fail(w, http.StatusInternalServerError, "update_failed", "failed to update password", requestctx.GetRequestID(r.Context()))
		return
	}

	// Other sessions die immediately; the current one stays valid.
	if _, err := h.DB.Exec(r.Context(), `
    UPDATE sessions SET revoked_at = now()
    WHERE user_id = $1 AND token_hash <> $2 AND revoked_at IS NULL
  `, user.UserID, auth.HashToken(user.SessionID)); err != nil {
		slog.Warn("session sweep after password change failed", "userId", user.UserID, "err", err)
	}

	if err := audit.New(h.DB).Record(r.Context(), user.CompanyID, user.UserID, "auth.password.change", "user", user.UserID, requestctx.GetRequestID(r.Context()), shared.ClientIP(r), nil, nil); err != nil {
		slog.Warn("audit auth.password.change failed", "err", err)
	}

	api.Success(w, map[string]string{"status": "password_changed"}, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) HandleRequestReset(w http.ResponseWriter, r *http.Request) {
	var payload resetRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestctx.GetRequestID(r.Context()))
		return
	}

	var userID, userEmail string
	err := h.DB.QueryRow(r.Context(), "SELECT id, email FROM users WHERE email = $1 AND status = 'ACTIVE'", strings.ToLower(strings.TrimSpace(payload.Email))).Scan(&userID, &userEmail)
	if err == nil {
		token, err := generateToken()
		if err != nil {
			slog.Warn("password reset token generation failed", "userId", userID, "err", err)
			api.Success(w, map[string]string{"status": "reset_requested"}, requestctx.GetRequestID(r.Context()))
			return
		}
		expires := time.Now().Add(2 * time.Hour)
		if _, err := h.DB.Exec(r.Context(), "INSERT INTO password_resets (user_id, token_hash, expires_at) VALUES ($1, $2, $3)", userID, auth.HashToken(token), expires); err != nil {
			slog.Warn("password reset insert failed", "userId", userID, "err", err)
		} else if h.Mailer != nil {
			body := "A password reset was requested for your account.\r\n\r\nReset token: " + token + "\r\n\r\nThe token expires in 2 hours. Ignore this message if you did not request it."
			if err := h.Mailer.Send(r.Context(), h.EmailFrom, userEmail, "Password reset", body); err != nil {
				slog.Warn("password reset email failed", "userId", userID, "err", err)
			}
		}
	}

	// The response never discloses whether the email exists.
	api.Success(w, map[string]string{"status": "reset_requested"}, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var payload resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestctx.GetRequestID(r.Context()))
		return
	}

	v := shared.NewValidator()
	v.Required("token", payload.Token, "token is required")
	v.Required("newPassword", payload.NewPassword, "new password is required")
	if len(payload.NewPassword) > 0 && len(payload.NewPassword) < 8 {
		v.Add("newPassword", "must be at least 8 characters")
	}
	if v.Reject(w, requestctx.GetRequestID(r.Context())) {
		return
	}

	var userID string
	err := h.DB.QueryRow(r.Context(), `
    SELECT user_id
    FROM password_resets
    WHERE token_hash = $1 AND expires_at > now() AND used_at IS NULL
  `, auth.HashToken(payload.Token)).Scan(&userID)
	if err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_token", "invalid or expired token", requestctx.GetRequestID(r.Context()))
		return
	}

	hash, err := auth.HashPassword(payload.NewPassword)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "hash_error", "failed to update password", requestctx.GetRequestID(r.Context()))
		return
	}
	if _, err := h.DB.Exec(r.Context(), "UPDATE users SET password_hash = $1, must_change_password = false WHERE id = $2", hash, userID); err != nil {
		api.Fail(w, http.StatusInternalServerError, "update_failed", "failed to update password", requestctx.GetRequestID(r.Context()))
		return
	}
	if _, err := h.DB.Exec(r.Context(), "UPDATE password_resets SET used_at = now() WHERE token_hash = $1", auth.HashToken(payload.Token)); err != nil {
		slog.Warn("password reset mark used failed", "err", err)
	}
	if _, err := h.DB.Exec(r.Context(), "UPDATE sessions SET revoked_at = now() WHERE user_id = $1 AND revoked_at IS NULL", userID); err != nil {
		slog.Warn("session sweep after password reset failed", "userId", userID, "err", err)
	}

	api.Success(w, map[string]string{"status": "password_reset"}, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) HandleImpersonate(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}
	if user.Role != auth.RoleSuperAdmin {
		api.Fail(w, http.StatusForbidden, "forbidden", "insufficient permissions", requestctx.GetRequestID(r.Context()))
		return
	}

	var payload impersonateRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestctx.GetRequestID(r.Context()))
		return
	}

	v := shared.NewValidator()
	v.Required("companyId", payload.CompanyID, "companyId is required")
	if v.Reject(w, requestctx.GetRequestID(r.Context())) {
		return
	}

	var companyName string
	if err := h.DB.QueryRow(r.Context(), "SELECT name FROM companies WHERE id = $1 AND status = 'ACTIVE'", payload.CompanyID).Scan(&companyName); err != nil {
		api.Fail(w, http.StatusNotFound, "not_found", "company not found", requestctx.GetRequestID(r.Context()))
		return
	}

	if _, err := h.DB.Exec(r.Context(), "UPDATE users SET impersonate_company_id = $1 WHERE id = $2", payload.CompanyID, user.UserID); err != nil {
		api.Fail(w, http.StatusInternalServerError, "impersonate_failed", "failed to set impersonation", requestctx.GetRequestID(r.Context()))
		return
	}

	if err := audit.New(h.DB).Record(r.Context(), payload.CompanyID, user.UserID, "auth.impersonate.set", "company", payload.CompanyID, requestctx.GetRequestID(r.Context()), shared.ClientIP(r), nil, map[string]string{"companyId": payload.CompanyID}); err != nil {
		slog.Warn("audit auth.impersonate.set failed", "err", err)
	}

	api.Success(w, map[string]string{"companyId": payload.CompanyID, "companyName": companyName}, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) HandleClearImpersonation(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestctx.GetRequestID(r.Context()))
		return
	}
	if user.Role != auth.RoleSuperAdmin {
		api.Fail(w, http.StatusForbidden, "forbidden", "insufficient permissions", requestctx.GetRequestID(r.Context()))
		return
	}

	if _, err := h.DB.Exec(r.Context(), "UPDATE users SET impersonate_company_id = NULL WHERE id = $1", user.UserID); err != nil {
		api.Fail(w, http.StatusInternalServerError, "impersonate_failed", "failed to clear impersonation", requestctx.GetRequestID(r.Context()))
		return
	}

	if err := audit.New(h.DB).Record(r.Context(), user.ImpersonateCompany, user.UserID, "auth.impersonate.clear", "company", user.ImpersonateCompany, requestctx.GetRequestID(r.Context()), shared.ClientIP(r), nil, nil); err != nil {
		slog.Warn("audit auth.impersonate.clear failed", "err", err)
	}

	api.Success(w, map[string]string{"status": "cleared"}, requestctx.GetRequestID(r.Context()))
}

func generateToken() (string, error) {
	buff := make([]byte, 32)
	if _, err := rand.Read(buff); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buff), nil
}
