package employeehandler

import (
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
	"payhub/internal/domain/employee"
	cryptoutil "payhub/internal/platform/crypto"
	"payhub/internal/platform/requestctx"
	"payhub/internal/transport/http/api"
	"payhub/internal/transport/http/middleware"
	"payhub/internal/transport/http/shared"
)

type Handler struct {
	DB     *pgxpool.Pool
	Crypto *cryptoutil.Service
}

func NewHandler(db *pgxpool.Pool, crypto *cryptoutil.Service) *Handler {
	return &Handler{DB: db, Crypto: crypto}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(middleware.RequirePermission(auth.ResourceEmployees, auth.ActionView)).Get("/", h.handleList)
	r.With(middleware.RequirePermission(auth.ResourceEmployees, auth.ActionCreate)).Post("/", h.handleCreate)
	r.Route("/{employeeID}", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.ResourceEmployees, auth.ActionView)).Get("/", h.handleGet)
		r.With(middleware.RequirePermission(auth.ResourceEmployees, auth.ActionEdit)).Put("/", h.handleUpdate)
		r.With(middleware.RequirePermission(auth.ResourceEmployees, auth.ActionDelete)).Delete("/", h.handleDelete)
		r.With(middleware.RequirePermission(auth.ResourceEmployees, auth.ActionEdit)).Patch("/activate", h.handleActivate)
		r.With(middleware.RequirePermission(auth.ResourceEmployees, auth.ActionEdit)).Patch("/deactivate", h.handleDeactivate)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	companyID, scoped := auth.EffectiveCompany(user, r.URL.Query().Get("companyId"))
	page := shared.ParsePagination(r, 50, 200)

	query := `
    SELECT id, company_id, full_name, COALESCE(position, ''), contract_type, rate_or_salary, bank_details_enc, is_active, created_at, updated_at
    FROM employees
    WHERE 1=1`
	args := []any{}
	if scoped {
		query += fmt.Sprintf(" AND company_id = $%d", len(args)+1)
		args = append(args, companyID)
	}
	if raw := r.URL.Query().Get("isActive"); raw != "" {
		query += fmt.Sprintf(" AND is_active = $%d", len(args)+1)
		args = append(args, raw == "true")
	}
	if raw := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("contractType"))); raw != "" {
		query += fmt.Sprintf(" AND contract_type = $%d", len(args)+1)
		args = append(args, raw)
	}
	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		query += fmt.Sprintf(" AND (full_name ILIKE $%d OR position ILIKE $%d)", len(args)+1, len(args)+1)
		args = append(args, "%"+q+"%")
	}
	query += fmt.Sprintf(" ORDER BY full_name LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, page.Limit, page.Offset)

	rows, err := h.DB.Query(r.Context(), query, args...)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "employee_list_failed", "failed to list employees", requestctx.GetRequestID(r.Context()))
		return
	}
	defer rows.Close()

	employees := make([]employee.Employee, 0)
	for rows.Next() {
		var emp employee.Employee
		var bankEnc []byte
		if err := rows.Scan(&emp.ID, &emp.CompanyID, &emp.FullName, &emp.Position, &emp.ContractType, &emp.RateOrSalary, &bankEnc, &emp.IsActive, &emp.CreatedAt, &emp.UpdatedAt); err != nil {
			api.Fail(w, http.StatusInternalServerError, "employee_list_failed", "failed to list employees", requestctx.GetRequestID(r.Context()))
			return
		}
		emp.BankDetails = h.decryptBank(bankEnc, emp.ID)
		employees = append(employees, emp)
	}
	api.Success(w, employees, requestctx.GetRequestID(r.Context()))
}

// loadScoped fetches an employee and enforces the caller's company scope with
// a uniform not_found, so cross-company ids are indistinguishable from
// missing ones.
func (h *Handler) loadScoped(w http.ResponseWriter, r *http.Request, employeeID string) (employee.Employee, bool) {
	user, _ := middleware.GetUser(r.Context())
	reqID := requestctx.GetRequestID(r.Context())

	var emp employee.Employee
	var bankEnc []byte
	err := h.DB.QueryRow(r.Context(), `
    SELECT id, company_id, full_name, COALESCE(position, ''), contract_type, rate_or_salary, bank_details_enc, is_active, created_at, updated_at
    FROM employees
    WHERE id = $1
  `, employeeID).Scan(&emp.ID, &emp.CompanyID, &emp.FullName, &emp.Position, &emp.ContractType, &emp.RateOrSalary, &bankEnc, &emp.IsActive, &emp.CreatedAt, &emp.UpdatedAt)
	if err != nil {
		api.Fail(w, http.StatusNotFound, "not_found", "employee not found", reqID)
		return employee.Employee{}, false
	}
	if companyID, scoped := auth.EffectiveCompany(user, emp.CompanyID); scoped && emp.CompanyID != companyID {
		api.Fail(w, http.StatusNotFound, "not_found", "employee not found", reqID)
		return employee.Employee{}, false
	}
	emp.BankDetails = h.decryptBank(bankEnc, emp.ID)
	return emp, true
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	emp, ok := h.loadScoped(w, r, chi.URLParam(r, "employeeID"))
	if !ok {
		return
	}
	api.Success(w, emp, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) validatePayload(w http.ResponseWriter, r *http.Request, payload *employee.Employee) bool {
	payload.FullName = strings.TrimSpace(payload.FullName)
	payload.ContractType = strings.ToUpper(strings.TrimSpace(payload.ContractType))

	v := shared.NewValidator()
	v.Required("fullName", payload.FullName, "fullName is required")
	v.Required("contractType", payload.ContractType, "contractType is required")
	if payload.ContractType != "" && !employee.ValidContractType(payload.ContractType) {
		v.Add("contractType", "contractType must be one of DAILY, FIXED, FREELANCE")
	}
	v.Positive("rateOrSalary", payload.RateOrSalary, "rateOrSalary must be positive")
	return !v.Reject(w, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := requestctx.GetRequestID(r.Context())

	var payload employee.Employee
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}
	if !h.validatePayload(w, r, &payload) {
		return
	}

	companyID, scoped := auth.EffectiveCompany(user, payload.CompanyID)
	if !scoped || companyID == "" {
		api.Fail(w, http.StatusBadRequest, "company_required", "companyId is required", reqID)
		return
	}

	bankEnc, err := h.Crypto.EncryptString(payload.BankDetails)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "employee_create_failed", "failed to create employee", reqID)
		return
	}

	var id string
	err = h.DB.QueryRow(r.Context(), `
    INSERT INTO employees (company_id, full_name, position, contract_type, rate_or_salary, bank_details_enc, is_active)
    VALUES ($1, $2, $3, $4, $5, $6, true)
    RETURNING id
  `, companyID, payload.FullName, payload.Position, payload.ContractType, payload.RateOrSalary, bankEnc).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			api.Fail(w, http.StatusBadRequest, "company_required", "companyId does not exist", reqID)
			return
		}
		api.Fail(w, http.StatusInternalServerError, "employee_create_failed", "failed to create employee", reqID)
		return
	}

	if err := audit.New(h.DB).Record(r.Context(), companyID, user.UserID, "employee.create", "employee", id, reqID, shared.ClientIP(r), nil, map[string]any{"fullName": payload.FullName, "contractType": payload.ContractType}); err != nil {
		slog.Warn("audit employee.create failed", "err", err)
	}

	api.Created(w, map[string]string{"id": id}, reqID)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := requestctx.GetRequestID(r.Context())

	before, ok := h.loadScoped(w, r, chi.URLParam(r, "employeeID"))
	if !ok {
		return
	}

	var payload employee.Employee
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}
	if !h.validatePayload(w, r, &payload) {
		return
	}

	bankEnc, err := h.Crypto.EncryptString(payload.BankDetails)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "employee_update_failed", "failed to update employee", reqID)
		return
	}

	if _, err := h.DB.Exec(r.Context(), `
    UPDATE employees
    SET full_name = $1, position = $2, contract_type = $3, rate_or_salary = $4, bank_details_enc = $5, updated_at = now()
    WHERE id = $6
  `, payload.FullName, payload.Position, payload.ContractType, payload.RateOrSalary, bankEnc, before.ID); err != nil {
		api.Fail(w, http.StatusInternalServerError, "employee_update_failed", "failed to update employee", reqID)
		return
	}

	auditBefore := before
	auditBefore.BankDetails = ""
	if err := audit.New(h.DB).Record(r.Context(), before.CompanyID, user.UserID, "employee.update", "employee", before.ID, reqID, shared.ClientIP(r), auditBefore, map[string]any{"fullName": payload.FullName, "contractType": payload.ContractType, "rateOrSalary": payload.RateOrSalary}); err != nil {
		slog.Warn("audit employee.update failed", "err", err)
	}

	api.Success(w, map[string]string{"id": before.ID}, reqID)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := requestctx.GetRequestID(r.Context())

	before, ok := h.loadScoped(w, r, chi.URLParam(r, "employeeID"))
	if !ok {
		return
	}

	if _, err := h.DB.Exec(r.Context(), "DELETE FROM employees WHERE id = $1", before.ID); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			api.Fail(w, http.StatusConflict, "employee_has_history", "employee has payroll history; deactivate instead", reqID)
			return
		}
		api.Fail(w, http.StatusInternalServerError, "employee_delete_failed", "failed to delete employee", reqID)
		return
	}

	auditBefore := before
	auditBefore.BankDetails = ""
	if err := audit.New(h.DB).Record(r.Context(), before.CompanyID, user.UserID, "employee.delete", "employee", before.ID, reqID, shared.ClientIP(r), auditBefore, nil); err != nil {
		slog.Warn("audit employee.delete failed", "err", err)
	}

	api.Success(w, map[string]string{"status": "deleted"}, reqID)
}

func (h *Handler) handleActivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	user, _ := middleware.GetUser(r.Context())
	reqID := requestctx.GetRequestID(r.Context())

	emp, ok := h.loadScoped(w, r, chi.URLParam(r, "employeeID"))
	if !ok {
		return
	}

	if _, err := h.DB.Exec(r.Context(), "UPDATE employees SET is_active = $1, updated_at = now() WHERE id = $2", active, emp.ID); err != nil {
		api.Fail(w, http.StatusInternalServerError, "employee_update_failed", "failed to update employee", reqID)
		return
	}

	action := "employee.deactivate"
	if active {
		action = "employee.activate"
	}
	if err := audit.New(h.DB).Record(r.Context(), emp.CompanyID, user.UserID, action, "employee", emp.ID, reqID, shared.ClientIP(r), map[string]bool{"isActive": emp.IsActive}, map[string]bool{"isActive": active}); err != nil {
		slog.Warn("audit "+action+" failed", "err", err)
	}

	api.Success(w, map[string]any{"id": emp.ID, "isActive": active}, reqID)
}

func (h *Handler) decryptBank(bankEnc []byte, employeeID string) string {
	if len(bankEnc) == 0 {
		return ""
	}
	value, err := h.Crypto.DecryptString(bankEnc)
	if err != nil {
		slog.Warn("bank details decrypt failed", "employeeId", employeeID, "err", err)
		return ""
	}
	return value
}
