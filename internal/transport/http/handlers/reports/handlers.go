package reportshandler

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"payhub/internal/domain/auth"
	"payhub/internal/platform/requestctx"
	"payhub/internal/transport/http/api"
	"payhub/internal/transport/http/middleware"
	"payhub/internal/transport/http/shared"
)

type Handler struct {
	DB *pgxpool.Pool
}

func NewHandler(db *pgxpool.Pool) *Handler {
	return &Handler{DB: db}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(middleware.RequirePermission(auth.ResourceReports, auth.ActionView)).Get("/dashboard", h.handleDashboard)
	r.With(middleware.RequirePermission(auth.ResourceReports, auth.ActionView)).Get("/payroll/export", h.handlePayrollExport)
	r.With(middleware.RequirePermission(auth.ResourceReports, auth.ActionView)).Get("/payments/export", h.handlePaymentsExport)
}

type recentPayRun struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Status   string  `json:"status"`
	TotalNet float64 `json:"totalNet"`
}

type dashboard struct {
	CompanyCount    int            `json:"companyCount,omitempty"`
	ActiveEmployees int            `json:"activeEmployees"`
	TotalGross      float64        `json:"totalGross"`
	TotalNet        float64        `json:"totalNet"`
	TotalPaid       float64        `json:"totalPaid"`
	PendingAmount   float64        `json:"pendingAmount"`
	RecentPayRuns   []recentPayRun `json:"recentPayRuns"`
}

// handleDashboard aggregates headline numbers. Each block degrades to zero on
// query failure so one broken aggregate does not blank the whole dashboard.
func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	companyID, scoped := auth.EffectiveCompany(user, r.URL.Query().Get("companyId"))

	var out dashboard
	out.RecentPayRuns = make([]recentPayRun, 0)

	if !scoped {
		if err := h.DB.QueryRow(r.Context(), "SELECT COUNT(1) FROM companies WHERE status = 'ACTIVE'").Scan(&out.CompanyCount); err != nil {
			slog.Warn("dashboard company count failed", "err", err)
		}
	}

	out.ActiveEmployees = h.scopedCount(r.Context(), "SELECT COUNT(1) FROM employees WHERE is_active", "company_id", companyID, scoped)

	if err := h.queryTotals(r.Context(), companyID, scoped, &out); err != nil {
		slog.Warn("dashboard pay run totals failed", "err", err)
	}

	if err := h.queryPending(r.Context(), companyID, scoped, &out); err != nil {
		slog.Warn("dashboard pending amount failed", "err", err)
	}

	if err := h.queryRecentRuns(r.Context(), companyID, scoped, &out); err != nil {
		slog.Warn("dashboard recent pay runs failed", "err", err)
	}

	api.Success(w, out, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) scopedCount(ctx context.Context, base, column, companyID string, scoped bool) int {
	args := []any{}
	if scoped {
		base += " AND " + column + " = $1"
		args = append(args, companyID)
	}
	var n int
	if err := h.DB.QueryRow(ctx, base, args...).Scan(&n); err != nil {
		slog.Warn("dashboard count failed", "query", base, "err", err)
		return 0
	}
	return n
}

func (h *Handler) queryTotals(ctx context.Context, companyID string, scoped bool, out *dashboard) error {
	query := "SELECT COALESCE(SUM(total_gross), 0), COALESCE(SUM(total_net), 0) FROM pay_runs WHERE status <> 'DRAFT'"
	args := []any{}
	if scoped {
		query += " AND company_id = $1"
		args = append(args, companyID)
	}
	return h.DB.QueryRow(ctx, query, args...).Scan(&out.TotalGross, &out.TotalNet)
}

func (h *Handler) queryPending(ctx context.Context, companyID string, scoped bool, out *dashboard) error {
	query := `
    SELECT COALESCE(SUM(ps.paid_amount), 0), COALESCE(SUM(ps.net_salary - ps.paid_amount), 0)
    FROM payslips ps
    JOIN pay_runs pr ON ps.pay_run_id = pr.id
    WHERE pr.status = 'APPROVED'`
	args := []any{}
	if scoped {
		query += " AND pr.company_id = $1"
		args = append(args, companyID)
	}
	return h.DB.QueryRow(ctx, query, args...).Scan(&out.TotalPaid, &out.PendingAmount)
}

func (h *Handler) queryRecentRuns(ctx context.Context, companyID string, scoped bool, out *dashboard) error {
	query := "SELECT id, name, status, total_net FROM pay_runs WHERE 1=1"
	args := []any{}
	if scoped {
		query += " AND company_id = $1"
		args = append(args, companyID)
	}
	query += " ORDER BY start_date DESC LIMIT 5"

	rows, err := h.DB.Query(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var run recentPayRun
		if err := rows.Scan(&run.ID, &run.Name, &run.Status, &run.TotalNet); err != nil {
			return err
		}
		out.RecentPayRuns = append(out.RecentPayRuns, run)
	}
	return nil
}

func (h *Handler) handlePayrollExport(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := requestctx.GetRequestID(r.Context())

	payRunID := r.URL.Query().Get("payRunId")
	if payRunID == "" {
		api.Fail(w, http.StatusBadRequest, "validation_error", "payRunId is required", reqID)
		return
	}

	var runName, runCompany string
	err := h.DB.QueryRow(r.Context(), "SELECT name, company_id::text FROM pay_runs WHERE id = $1", payRunID).Scan(&runName, &runCompany)
	if err != nil {
		api.Fail(w, http.StatusNotFound, "not_found", "pay run not found", reqID)
		return
	}
	if companyID, scoped := auth.EffectiveCompany(user, runCompany); scoped && runCompany != companyID {
		api.Fail(w, http.StatusNotFound, "not_found", "pay run not found", reqID)
		return
	}

	rows, err := h.DB.Query(r.Context(), `
    SELECT e.full_name, e.contract_type, ps.gross_salary, ps.total_deductions, ps.net_salary, ps.paid_amount, ps.payment_status
    FROM payslips ps
    JOIN employees e ON ps.employee_id = e.id
    WHERE ps.pay_run_id = $1
    ORDER BY e.full_name
  `, payRunID)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "report_failed", "failed to export payroll", reqID)
		return
	}
	defer rows.Close()

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="payroll-`+payRunID+`.csv"`)

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"employee", "contractType", "gross", "deductions", "net", "paid", "status"})
	for rows.Next() {
		var name, contractType, status string
		var gross, deductions, net, paid float64
		if err := rows.Scan(&name, &contractType, &gross, &deductions, &net, &paid, &status); err != nil {
			slog.Warn("payroll export row failed", "payRunId", payRunID, "err", err)
			break
		}
		_ = cw.Write([]string{name, contractType, formatAmount(gross), formatAmount(deductions), formatAmount(net), formatAmount(paid), status})
	}
	cw.Flush()
}

func (h *Handler) handlePaymentsExport(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := requestctx.GetRequestID(r.Context())
	companyID, scoped := auth.EffectiveCompany(user, r.URL.Query().Get("companyId"))

	query := `
    SELECT e.full_name, p.amount, p.payment_method, COALESCE(p.reference, ''), p.paid_at
    FROM payments p
    JOIN payslips ps ON p.payslip_id = ps.id
    JOIN employees e ON ps.employee_id = e.id
    JOIN pay_runs pr ON ps.pay_run_id = pr.id
    WHERE 1=1`
	args := []any{}
	if scoped {
		query += fmt.Sprintf(" AND pr.company_id = $%d", len(args)+1)
		args = append(args, companyID)
	}
	if from, err := shared.ParseDate(r.URL.Query().Get("from")); err == nil && !from.IsZero() {
		query += fmt.Sprintf(" AND p.paid_at >= $%d", len(args)+1)
		args = append(args, from)
	}
	if to, err := shared.ParseDate(r.URL.Query().Get("to")); err == nil && !to.IsZero() {
		query += fmt.Sprintf(" AND p.paid_at < $%d", len(args)+1)
		args = append(args, to.AddDate(0, 0, 1))
	}
	query += " ORDER BY p.paid_at DESC LIMIT 5000"

	rows, err := h.DB.Query(r.Context(), query, args...)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "report_failed", "failed to export payments", reqID)
		return
	}
	defer rows.Close()

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="payments.csv"`)

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"employee", "amount", "method", "reference", "paidAt"})
	for rows.Next() {
		var name, method, reference string
		var amount float64
		var paidAt time.Time
		if err := rows.Scan(&name, &amount, &method, &reference, &paidAt); err != nil {
			slog.Warn("payments export row failed", "err", err)
			break
		}
		_ = cw.Write([]string{name, formatAmount(amount), method, reference, paidAt.Format("2006-01-02")})
	}
	cw.Flush()
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
