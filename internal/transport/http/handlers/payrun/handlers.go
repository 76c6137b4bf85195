package payrunhandler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"payhub/internal/domain/audit"
	"payhub/internal/domain/auth"
	"payhub/internal/domain/payrun"
	"payhub/internal/platform/jobs"
	"payhub/internal/platform/requestctx"
	"payhub/internal/transport/http/api"
	"payhub/internal/transport/http/middleware"
	"payhub/internal/transport/http/shared"
)

type Handler struct {
	DB   *pgxpool.Pool
	Jobs *jobs.Service
	PDF  *payrun.PDFService
}

func NewHandler(db *pgxpool.Pool, jobService *jobs.Service, pdf *payrun.PDFService) *Handler {
	return &Handler{DB: db, Jobs: jobService, PDF: pdf}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(middleware.RequirePermission(auth.ResourcePayRuns, auth.ActionView)).Get("/", h.handleList)
	r.With(middleware.RequirePermission(auth.ResourcePayRuns, auth.ActionCreate)).Post("/", h.handleCreate)
	r.Route("/{payRunID}", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.ResourcePayRuns, auth.ActionView)).Get("/", h.handleGet)
		r.With(middleware.RequirePermission(auth.ResourcePayRuns, auth.ActionEdit)).Put("/", h.handleUpdate)
		r.With(middleware.RequirePermission(auth.ResourcePayRuns, auth.ActionDelete)).Delete("/", h.handleDelete)
		r.With(middleware.RequirePermission(auth.ResourcePayRuns, auth.ActionEdit)).Patch("/approve", h.handleApprove)
		r.With(middleware.RequirePermission(auth.ResourcePayRuns, auth.ActionEdit)).Patch("/close", h.handleClose)
	})
}

type payRunRequest struct {
	CompanyID  string `json:"companyId"`
	Name       string `json:"name"`
	PeriodType string `json:"periodType"`
	StartDate  string `json:"startDate"`
	EndDate    string `json:"endDate"`
}

const payRunColumns = "id, company_id, name, period_type, start_date, end_date, status, total_gross, total_deductions, total_net, created_at"

func scanPayRun(row pgx.Row) (payrun.PayRun, error) {
	var run payrun.PayRun
	err := row.Scan(&run.ID, &run.CompanyID, &run.Name, &run.PeriodType, &run.StartDate, &run.EndDate, &run.Status, &run.TotalGross, &run.TotalDeductions, &run.TotalNet, &run.CreatedAt)
	return run, err
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	companyID, scoped := auth.EffectiveCompany(user, r.URL.Query().Get("companyId"))
	page := shared.ParsePagination(r, 50, 200)

	query := "SELECT " + payRunColumns + " FROM pay_runs WHERE 1=1"
	args := []any{}
	if scoped {
		query += fmt.Sprintf(" AND company_id = $%d", len(args)+1)
		args = append(args, companyID)
	}
	if status := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status"))); status != "" {
		query += fmt.Sprintf(" AND status = $%d", len(args)+1)
		args = append(args, status)
	}
	query += fmt.Sprintf(" ORDER BY start_date DESC, created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, page.Limit, page.Offset)

	rows, err := h.DB.Query(r.Context(), query, args...)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "payrun_list_failed", "failed to list pay runs", requestctx.GetRequestID(r.Context()))
		return
	}
	defer rows.Close()

	runs := make([]payrun.PayRun, 0)
	for rows.Next() {
		run, err := scanPayRun(rows)
		if err != nil {
			api.Fail(w, http.StatusInternalServerError, "payrun_list_failed", "failed to list pay runs", requestctx.GetRequestID(r.Context()))
			return
		}
		runs = append(runs, run)
	}
	api.Success(w, runs, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) loadScoped(w http.ResponseWriter, r *http.Request, payRunID string) (payrun.PayRun, bool) {
	user, _ := middleware.GetUser(r.Context())
	reqID := requestctx.GetRequestID(r.Context())

	run, err := scanPayRun(h.DB.QueryRow(r.Context(), "SELECT "+payRunColumns+" FROM pay_runs WHERE id = $1", payRunID))
	if err != nil {
		api.Fail(w, http.StatusNotFound, "not_found", "pay run not found", reqID)
		return payrun.PayRun{}, false
	}
	if companyID, scoped := auth.EffectiveCompany(user, run.CompanyID); scoped && run.CompanyID != companyID {
		api.Fail(w, http.StatusNotFound, "not_found", "pay run not found", reqID)
		return payrun.PayRun{}, false
	}
	return run, true
}

func (h *Handler) loadPayslips(ctx context.Context, payRunID string) ([]payrun.Payslip, error) {
	rows, err := h.DB.Query(ctx, `
    SELECT ps.id, ps.pay_run_id, ps.employee_id, e.full_name,
           ps.gross_salary, ps.total_deductions, ps.net_salary, ps.paid_amount, ps.payment_status, COALESCE(ps.file_url, '')
    FROM payslips ps
    JOIN employees e ON ps.employee_id = e.id
    WHERE ps.pay_run_id = $1
    ORDER BY e.full_name
  `, payRunID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payslips := make([]payrun.Payslip, 0)
	for rows.Next() {
		var slip payrun.Payslip
		if err := rows.Scan(&slip.ID, &slip.PayRunID, &slip.EmployeeID, &slip.EmployeeName, &slip.GrossSalary, &slip.TotalDeductions, &slip.NetSalary, &slip.PaidAmount, &slip.PaymentStatus, &slip.FileURL); err != nil {
			return nil, err
		}
		payslips = append(payslips, slip)
	}
	return payslips, nil
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadScoped(w, r, chi.URLParam(r, "payRunID"))
	if !ok {
		return
	}
	payslips, err := h.loadPayslips(r.Context(), run.ID)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "payrun_get_failed", "failed to load pay run", requestctx.GetRequestID(r.Context()))
		return
	}
	run.Payslips = payslips
	api.Success(w, run, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) parseRequest(w http.ResponseWriter, r *http.Request) (payRunRequest, time.Time, time.Time, bool) {
	reqID := requestctx.GetRequestID(r.Context())

	var payload payRunRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return payRunRequest{}, time.Time{}, time.Time{}, false
	}
	payload.Name = strings.TrimSpace(payload.Name)
	payload.PeriodType = strings.ToUpper(strings.TrimSpace(payload.PeriodType))

	v := shared.NewValidator()
	v.Required("name", payload.Name, "name is required")
	v.Required("periodType", payload.PeriodType, "periodType is required")
	v.Enum("periodType", payload.PeriodType, []string{"MONTHLY", "WEEKLY", "DAILY", "CUSTOM"}, "unknown periodType")
	start, startOK := v.Date("startDate", payload.StartDate)
	end, endOK := v.Date("endDate", payload.EndDate)
	if startOK && endOK {
		v.DateOrder("startDate", start, "endDate", end)
	}
	if v.Reject(w, reqID) {
		return payRunRequest{}, time.Time{}, time.Time{}, false
	}
	return payload, start, end, true
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := requestctx.GetRequestID(r.Context())

	payload, start, end, ok := h.parseRequest(w, r)
	if !ok {
		return
	}

	companyID, scoped := auth.EffectiveCompany(user, payload.CompanyID)
	if !scoped || companyID == "" {
		api.Fail(w, http.StatusBadRequest, "company_required", "companyId is required", reqID)
		return
	}

	tx, err := h.DB.Begin(r.Context())
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "payrun_create_failed", "failed to create pay run", reqID)
		return
	}
	defer tx.Rollback(r.Context())

	var runID string
	if err := tx.QueryRow(r.Context(), `
    INSERT INTO pay_runs (company_id, name, period_type, start_date, end_date, status)
    VALUES ($1, $2, $3, $4, $5, $6)
    RETURNING id
  `, companyID, payload.Name, payload.PeriodType, start, end, payrun.StatusDraft).Scan(&runID); err != nil {
		api.Fail(w, http.StatusInternalServerError, "payrun_create_failed", "failed to create pay run", reqID)
		return
	}

	totals, err := generatePayslips(r.Context(), tx, runID, companyID, start, end)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "payrun_create_failed", "failed to generate payslips", reqID)
		return
	}

	if _, err := tx.Exec(r.Context(), `
    UPDATE pay_runs SET total_gross = $1, total_deductions = $2, total_net = $3 WHERE id = $4
  `, totals.Gross, totals.Deductions, totals.Net, runID); err != nil {
		api.Fail(w, http.StatusInternalServerError, "payrun_create_failed", "failed to create pay run", reqID)
		return
	}

	if err := tx.Commit(r.Context()); err != nil {
		api.Fail(w, http.StatusInternalServerError, "payrun_create_failed", "failed to create pay run", reqID)
		return
	}

	if err := audit.New(h.DB).Record(r.Context(), companyID, user.UserID, "payrun.create", "payrun", runID, reqID, shared.ClientIP(r), nil, map[string]any{"name": payload.Name, "totalNet": totals.Net}); err != nil {
		slog.Warn("audit payrun.create failed", "err", err)
	}

	run, err := scanPayRun(h.DB.QueryRow(r.Context(), "SELECT "+payRunColumns+" FROM pay_runs WHERE id = $1", runID))
	if err != nil {
		api.Created(w, map[string]string{"id": runID}, reqID)
		return
	}
	if payslips, err := h.loadPayslips(r.Context(), runID); err == nil {
		run.Payslips = payslips
	}
	api.Created(w, run, reqID)
}

// generatePayslips creates one draft payslip per active employee of the
// company, gross computed by contract type over the run window.
func generatePayslips(ctx context.Context, tx pgx.Tx, runID, companyID string, start, end time.Time) (payrun.Totals, error) {
	rows, err := tx.Query(ctx, `
    SELECT id, contract_type, rate_or_salary
    FROM employees
    WHERE company_id = $1 AND is_active = true
  `, companyID)
	if err != nil {
		return payrun.Totals{}, err
	}

	type empRow struct {
		id           string
		contractType string
		rate         float64
	}
	var emps []empRow
	for rows.Next() {
		var e empRow
		if err := rows.Scan(&e.id, &e.contractType, &e.rate); err != nil {
			rows.Close()
			return payrun.Totals{}, err
		}
		emps = append(emps, e)
	}
	rows.Close()

	payslips := make([]payrun.Payslip, 0, len(emps))
	for _, e := range emps {
		gross := payrun.Gross(e.contractType, e.rate, start, end)
		deductions := 0.0
		net := payrun.Net(gross, deductions)
		if _, err := tx.Exec(ctx, `
      INSERT INTO payslips (pay_run_id, employee_id, gross_salary, total_deductions, net_salary, paid_amount, payment_status)
      VALUES ($1, $2, $3, $4, $5, 0, $6)
    `, runID, e.id, gross, deductions, net, payrun.PayslipPending); err != nil {
			return payrun.Totals{}, err
		}
		payslips = append(payslips, payrun.Payslip{GrossSalary: gross, TotalDeductions: deductions, NetSalary: net})
	}
	return payrun.Sum(payslips), nil
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := requestctx.GetRequestID(r.Context())

	before, ok := h.loadScoped(w, r, chi.URLParam(r, "payRunID"))
	if !ok {
		return
	}
	if err := payrun.CanUpdate(before.Status); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_state", err.Error(), reqID)
		return
	}

	payload, start, end, ok := h.parseRequest(w, r)
	if !ok {
		return
	}

	tx, err := h.DB.Begin(r.Context())
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "payrun_update_failed", "failed to update pay run", reqID)
		return
	}
	defer tx.Rollback(r.Context())

	// The window may have moved, so draft payslips are rebuilt from scratch.
	if _, err := tx.Exec(r.Context(), "DELETE FROM payslips WHERE pay_run_id = $1", before.ID); err != nil {
		api.Fail(w, http.StatusInternalServerError, "payrun_update_failed", "failed to update pay run", reqID)
		return
	}
	totals, err := generatePayslips(r.Context(), tx, before.ID, before.CompanyID, start, end)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "payrun_update_failed", "failed to update pay run", reqID)
		return
	}
	if _, err := tx.Exec(r.Context(), `
    UPDATE pay_runs
    SET name = $1, period_type = $2, start_date = $3, end_date = $4,
        total_gross = $5, total_deductions = $6, total_net = $7
    WHERE id = $8
  `, payload.Name, payload.PeriodType, start, end, totals.Gross, totals.Deductions, totals.Net, before.ID); err != nil {
		api.Fail(w, http.StatusInternalServerError, "payrun_update_failed", "failed to update pay run", reqID)
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		api.Fail(w, http.StatusInternalServerError, "payrun_update_failed", "failed to update pay run", reqID)
		return
	}

	if err := audit.New(h.DB).Record(r.Context(), before.CompanyID, user.UserID, "payrun.update", "payrun", before.ID, reqID, shared.ClientIP(r), before, map[string]any{"name": payload.Name, "totalNet": totals.Net}); err != nil {
		slog.Warn("audit payrun.update failed", "err", err)
	}

	run, err := scanPayRun(h.DB.QueryRow(r.Context(), "SELECT "+payRunColumns+" FROM pay_runs WHERE id = $1", before.ID))
	if err != nil {
		api.Success(w, map[string]string{"id": before.ID}, reqID)
		return
	}
	api.Success(w, run, reqID)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := requestctx.GetRequestID(r.Context())

	run, ok := h.loadScoped(w, r, chi.URLParam(r, "payRunID"))
	if !ok {
		return
	}
	if err := payrun.CanDelete(run.Status, user.Role); err != nil {
		api.Fail(w, http.StatusForbidden, "forbidden", err.Error(), reqID)
		return
	}

	tag, err := h.DB.Exec(r.Context(), "DELETE FROM pay_runs WHERE id = $1 AND status = $2", run.ID, payrun.StatusDraft)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "payrun_delete_failed", "failed to delete pay run", reqID)
		return
	}
	if tag.RowsAffected() == 0 {
		api.Fail(w, http.StatusBadRequest, "invalid_state", payrun.ErrNotDraft.Error(), reqID)
		return
	}

	if err := audit.New(h.DB).Record(r.Context(), run.CompanyID, user.UserID, "payrun.delete", "payrun", run.ID, reqID, shared.ClientIP(r), run, nil); err != nil {
		slog.Warn("audit payrun.delete failed", "err", err)
	}

	api.Success(w, map[string]string{"status": "deleted"}, reqID)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := requestctx.GetRequestID(r.Context())

	run, ok := h.loadScoped(w, r, chi.URLParam(r, "payRunID"))
	if !ok {
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")
	requestHash := middleware.RequestHash([]byte(run.ID))
	store := middleware.NewIdempotencyStore(h.DB)
	if idempotencyKey != "" {
		stored, found, err := store.Check(r.Context(), user.UserID, "payruns.approve", idempotencyKey, requestHash)
		if err != nil {
			slog.Warn("idempotency check failed", "err", err)
		}
		if found {
			api.Success(w, json.RawMessage(stored), reqID)
			return
		}
	}

	if err := payrun.CanApprove(run.Status); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_state", err.Error(), reqID)
		return
	}

	// The status guard in the UPDATE makes the transition atomic; a run that
	// moved on since the read above is rejected, not overwritten.
	tag, err := h.DB.Exec(r.Context(), "UPDATE pay_runs SET status = $1 WHERE id = $2 AND status = $3", payrun.StatusApproved, run.ID, payrun.StatusDraft)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "payrun_approve_failed", "failed to approve pay run", reqID)
		return
	}
	if tag.RowsAffected() == 0 {
		api.Fail(w, http.StatusBadRequest, "invalid_state", payrun.ErrNotDraft.Error(), reqID)
		return
	}

	h.enqueuePayslipPDFs(r.Context(), run)

	if err := audit.New(h.DB).Record(r.Context(), run.CompanyID, user.UserID, "payrun.approve", "payrun", run.ID, reqID, shared.ClientIP(r), map[string]string{"status": run.Status}, map[string]string{"status": payrun.StatusApproved}); err != nil {
		slog.Warn("audit payrun.approve failed", "err", err)
	}

	response := map[string]string{"id": run.ID, "status": payrun.StatusApproved}
	if idempotencyKey != "" {
		encoded, err := json.Marshal(response)
		if err != nil {
			slog.Warn("idempotency response marshal failed", "err", err)
		} else if err := store.Save(r.Context(), user.UserID, "payruns.approve", idempotencyKey, requestHash, encoded); err != nil {
			slog.Warn("idempotency save failed", "err", err)
		}
	}
	api.Success(w, response, reqID)
}

func (h *Handler) enqueuePayslipPDFs(ctx context.Context, run payrun.PayRun) {
	rows, err := h.DB.Query(ctx, "SELECT id FROM payslips WHERE pay_run_id = $1", run.ID)
	if err != nil {
		slog.Warn("payslip pdf enqueue query failed", "payRunId", run.ID, "err", err)
		return
	}
	defer rows.Close()

	for rows.Next() {
		var payslipID string
		if err := rows.Scan(&payslipID); err != nil {
			slog.Warn("payslip pdf enqueue scan failed", "err", err)
			continue
		}
		id := payslipID
		h.Jobs.Enqueue(jobs.JobPayslipPDF, run.CompanyID, func(ctx context.Context) (any, error) {
			fileURL, err := h.PDF.GeneratePayslipPDF(ctx, id)
			if err != nil {
				return nil, err
			}
			if _, err := h.DB.Exec(ctx, "UPDATE payslips SET file_url = $1 WHERE id = $2", fileURL, id); err != nil {
				return nil, err
			}
			return map[string]string{"payslipId": id, "fileUrl": fileURL}, nil
		})
	}
}

func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := requestctx.GetRequestID(r.Context())

	run, ok := h.loadScoped(w, r, chi.URLParam(r, "payRunID"))
	if !ok {
		return
	}
	if err := payrun.CanClose(run.Status); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_state", err.Error(), reqID)
		return
	}

	tag, err := h.DB.Exec(r.Context(), "UPDATE pay_runs SET status = $1 WHERE id = $2 AND status = $3", payrun.StatusClosed, run.ID, payrun.StatusApproved)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "payrun_close_failed", "failed to close pay run", reqID)
		return
	}
	if tag.RowsAffected() == 0 {
		api.Fail(w, http.StatusBadRequest, "invalid_state", payrun.ErrNotApproved.Error(), reqID)
		return
	}

	if err := audit.New(h.DB).Record(r.Context(), run.CompanyID, user.UserID, "payrun.close", "payrun", run.ID, reqID, shared.ClientIP(r), map[string]string{"status": run.Status}, map[string]string{"status": payrun.StatusClosed}); err != nil {
		slog.Warn("audit payrun.close failed", "err", err)
	}

	api.Success(w, map[string]string{"id": run.ID, "status": payrun.StatusClosed}, reqID)
}
