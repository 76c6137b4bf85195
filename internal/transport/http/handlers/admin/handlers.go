package adminhandler

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgconn"
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
	DB        *pgxpool.Pool
	Mailer    email.Mailer
	EmailFrom string
}

func NewHandler(db *pgxpool.Pool, mailer email.Mailer, emailFrom string) *Handler {
	return &Handler{DB: db, Mailer: mailer, EmailFrom: emailFrom}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(middleware.RequirePermission(auth.ResourceUsers, auth.ActionView)).Get("/", h.HandleList)
	r.With(middleware.RequirePermission(auth.ResourceUsers, auth.ActionCreate)).Post("/", h.HandleCreate)
	r.Route("/{userID}", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.ResourceUsers, auth.ActionView)).Get("/", h.handleGet)
		r.With(middleware.RequirePermission(auth.ResourceUsers, auth.ActionEdit)).Put("/", h.handleUpdate)
		r.With(middleware.RequirePermission(auth.ResourceUsers, auth.ActionDelete)).Delete("/", h.handleDelete)
	})
}

type userRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	CompanyID string `json:"companyId"`
}

type userResponse struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	CompanyID string `json:"companyId,omitempty"`
	Status    string `json:"status"`
}

const userColumns = "id, first_name, last_name, email, role, COALESCE(company_id::text, ''), status"

// HandleList is also mounted at /auth/users for the older console routes.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := requestctx.GetRequestID(r.Context())
	page := shared.ParsePagination(r, 50, 200)

	query := "SELECT " + userColumns + " FROM users WHERE status <> 'DELETED'"
	args := []any{}
	if user.Role != auth.RoleSuperAdmin {
		// Admins manage only their own company's cashiers.
		query += fmt.Sprintf(" AND company_id = $%d AND role = $%d", len(args)+1, len(args)+2)
		args = append(args, user.CompanyID, auth.RoleCashier)
	}
	query += fmt.Sprintf(" ORDER BY last_name, first_name LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, page.Limit, page.Offset)

	rows, err := h.DB.Query(r.Context(), query, args...)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "user_list_failed", "failed to list users", reqID)
		return
	}
	defer rows.Close()

	users := make([]userResponse, 0)
	for rows.Next() {
		var u userResponse
		if err := rows.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.Role, &u.CompanyID, &u.Status); err != nil {
			api.Fail(w, http.StatusInternalServerError, "user_list_failed", "failed to list users", reqID)
			return
		}
		u.Role = auth.NormalizeRole(u.Role)
		users = append(users, u)
	}
	api.Success(w, users, reqID)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.GetUser(r.Context())
	reqID := requestctx.GetRequestID(r.Context())

	var u userResponse
	err := h.DB.QueryRow(r.Context(), "SELECT "+userColumns+" FROM users WHERE id = $1 AND status <> 'DELETED'", chi.URLParam(r, "userID")).Scan(
		&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.Role, &u.CompanyID, &u.Status)
	if err != nil {
		api.Fail(w, http.StatusNotFound, "not_found", "user not found", reqID)
		return
	}
	u.Role = auth.NormalizeRole(u.Role)
	if caller.Role != auth.RoleSuperAdmin && (u.CompanyID != caller.CompanyID || u.Role != auth.RoleCashier) {
		api.Fail(w, http.StatusNotFound, "not_found", "user not found", reqID)
		return
	}
	api.Success(w, u, reqID)
}

func (h *Handler) validateRequest(w http.ResponseWriter, r *http.Request, payload *userRequest) bool {
	payload.FirstName = strings.TrimSpace(payload.FirstName)
	payload.LastName = strings.TrimSpace(payload.LastName)
	payload.Email = strings.ToLower(strings.TrimSpace(payload.Email))
	payload.Role = auth.NormalizeRole(strings.ToUpper(strings.TrimSpace(payload.Role)))

	v := shared.NewValidator()
	v.Required("firstName", payload.FirstName, "firstName is required")
	v.Required("lastName", payload.LastName, "lastName is required")
	v.Required("email", payload.Email, "email is required")
	v.Email("email", payload.Email)
	v.Required("role", payload.Role, "role is required")
	if payload.Role != "" && !auth.ValidRole(payload.Role) {
		v.Add("role", "must be one of SUPER_ADMIN, ADMIN, CASHIER")
	}
	switch payload.Role {
	case auth.RoleSuperAdmin:
		if payload.CompanyID != "" {
			v.Add("companyId", "must be empty for SUPER_ADMIN")
		}
	case auth.RoleAdmin, auth.RoleCashier:
		v.Required("companyId", payload.CompanyID, "companyId is required for this role")
	}
	return !v.Reject(w, requestctx.GetRequestID(r.Context()))
}

// HandleCreate is also mounted at /auth/create-user for the older console
// routes.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.GetUser(r.Context())
	reqID := requestctx.GetRequestID(r.Context())

	var payload userRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}
	if !h.validateRequest(w, r, &payload) {
		return
	}
	if caller.Role != auth.RoleSuperAdmin {
		if payload.Role != auth.RoleCashier || payload.CompanyID != caller.CompanyID {
			api.Fail(w, http.StatusForbidden, "forbidden", "insufficient permissions", reqID)
			return
		}
	}

	tempPassword, err := generatePassword()
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "user_create_failed", "failed to create user", reqID)
		return
	}
	hashed, err := auth.HashPassword(tempPassword)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "user_create_failed", "failed to create user", reqID)
		return
	}

	var id string
	err = h.DB.QueryRow(r.Context(), `
    INSERT INTO users (email, password_hash, first_name, last_name, role, company_id, status, must_change_password)
    VALUES ($1, $2, $3, $4, $5, NULLIF($6, '')::uuid, 'ACTIVE', true)
    RETURNING id
  `, payload.Email, hashed, payload.FirstName, payload.LastName, payload.Role, payload.CompanyID).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			api.Fail(w, http.StatusConflict, "user_exists", "email already exists", reqID)
			return
		}
		api.Fail(w, http.StatusInternalServerError, "user_create_failed", "failed to create user", reqID)
		return
	}

	if h.Mailer != nil {
		body := fmt.Sprintf("An account was created for you.\r\n\r\nEmail: %s\r\nTemporary password: %s\r\n\r\nYou will be asked to change it on first login.", payload.Email, tempPassword)
		if err := h.Mailer.Send(r.Context(), h.EmailFrom, payload.Email, "Your account", body); err != nil {
			slog.Warn("temp password email failed", "userId", id, "err", err)
		}
	}

	if err := audit.New(h.DB).Record(r.Context(), payload.CompanyID, caller.UserID, "user.create", "user", id, reqID, shared.ClientIP(r), nil, map[string]string{"email": payload.Email, "role": payload.Role}); err != nil {
		slog.Warn("audit user.create failed", "err", err)
	}

	api.Created(w, map[string]string{"id": id}, reqID)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.GetUser(r.Context())
	reqID := requestctx.GetRequestID(r.Context())
	userID := chi.URLParam(r, "userID")

	var before userResponse
	err := h.DB.QueryRow(r.Context(), "SELECT "+userColumns+" FROM users WHERE id = $1 AND status <> 'DELETED'", userID).Scan(
		&before.ID, &before.FirstName, &before.LastName, &before.Email, &before.Role, &before.CompanyID, &before.Status)
	if err != nil {
		api.Fail(w, http.StatusNotFound, "not_found", "user not found", reqID)
		return
	}
	before.Role = auth.NormalizeRole(before.Role)
	if caller.Role != auth.RoleSuperAdmin && (before.CompanyID != caller.CompanyID || before.Role != auth.RoleCashier) {
		api.Fail(w, http.StatusNotFound, "not_found", "user not found", reqID)
		return
	}

	var payload userRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}
	if !h.validateRequest(w, r, &payload) {
		return
	}
	if caller.Role != auth.RoleSuperAdmin && (payload.Role != auth.RoleCashier || payload.CompanyID != caller.CompanyID) {
		api.Fail(w, http.StatusForbidden, "forbidden", "insufficient permissions", reqID)
		return
	}

	if _, err := h.DB.Exec(r.Context(), `
    UPDATE users
    SET first_name = $1, last_name = $2, email = $3, role = $4, company_id = NULLIF($5, '')::uuid
    WHERE id = $6
  `, payload.FirstName, payload.LastName, payload.Email, payload.Role, payload.CompanyID, userID); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			api.Fail(w, http.StatusConflict, "user_exists", "email already exists", reqID)
			return
		}
		api.Fail(w, http.StatusInternalServerError, "user_update_failed", "failed to update user", reqID)
		return
	}

	if err := audit.New(h.DB).Record(r.Context(), payload.CompanyID, caller.UserID, "user.update", "user", userID, reqID, shared.ClientIP(r), before, payload); err != nil {
		slog.Warn("audit user.update failed", "err", err)
	}

	api.Success(w, map[string]string{"id": userID}, reqID)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.GetUser(r.Context())
	reqID := requestctx.GetRequestID(r.Context())
	userID := chi.URLParam(r, "userID")

	if userID == caller.UserID {
		api.Fail(w, http.StatusBadRequest, "invalid_state", "cannot delete the current user", reqID)
		return
	}

	var before userResponse
	err := h.DB.QueryRow(r.Context(), "SELECT "+userColumns+" FROM users WHERE id = $1 AND status <> 'DELETED'", userID).Scan(
		&before.ID, &before.FirstName, &before.LastName, &before.Email, &before.Role, &before.CompanyID, &before.Status)
	if err != nil {
		api.Fail(w, http.StatusNotFound, "not_found", "user not found", reqID)
		return
	}
	before.Role = auth.NormalizeRole(before.Role)
	if caller.Role != auth.RoleSuperAdmin && (before.CompanyID != caller.CompanyID || before.Role != auth.RoleCashier) {
		api.Fail(w, http.StatusNotFound, "not_found", "user not found", reqID)
		return
	}

	if _, err := h.DB.Exec(r.Context(), "UPDATE users SET status = 'DELETED' WHERE id = $1", userID); err != nil {
		api.Fail(w, http.StatusInternalServerError, "user_delete_failed", "failed to delete user", reqID)
		return
	}
	if _, err := h.DB.Exec(r.Context(), "UPDATE sessions SET revoked_at = now() WHERE user_id = $1 AND revoked_at IS NULL", userID); err != nil {
		slog.Warn("session sweep after user delete failed", "userId", userID, "err", err)
	}

	if err := audit.New(h.DB).Record(r.Context(), before.CompanyID, caller.UserID, "user.delete", "user", userID, reqID, shared.ClientIP(r), before, nil); err != nil {
		slog.Warn("audit user.delete failed", "err", err)
	}

	api.Success(w, map[string]string{"status": "deleted"}, reqID)
}

func generatePassword() (string, error) {
	buff := make([]byte, 9)
	if _, err := rand.Read(buff); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buff), nil
}
