package paysliphandler

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"payhub/internal/domain/auth"
	"payhub/internal/domain/payrun"
	"payhub/internal/platform/requestctx"
	"payhub/internal/transport/http/api"
	"payhub/internal/transport/http/middleware"
	"payhub/internal/transport/http/shared"
)

type Handler struct {
	DB  *pgxpool.Pool
	PDF *payrun.PDFService
}

func NewHandler(db *pgxpool.Pool, pdf *payrun.PDFService) *Handler {
	return &Handler{DB: db, PDF: pdf}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(middleware.RequirePermission(auth.ResourcePayslips, auth.ActionView)).Get("/", h.handleList)
	r.Route("/{payslipID}", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.ResourcePayslips, auth.ActionView)).Get("/", h.handleGet)
		r.With(middleware.RequirePermission(auth.ResourcePayslips, auth.ActionView)).Get("/download", h.handleDownload)
	})
}

const payslipSelect = `
    SELECT ps.id, ps.pay_run_id, ps.employee_id, e.full_name,
           ps.gross_salary, ps.total_deductions, ps.net_salary, ps.paid_amount, ps.payment_status, COALESCE(ps.file_url, ''),
           pr.company_id
    FROM payslips ps
    JOIN employees e ON ps.employee_id = e.id
    JOIN pay_runs pr ON ps.pay_run_id = pr.id`

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	companyID, scoped := auth.EffectiveCompany(user, r.URL.Query().Get("companyId"))
	page := shared.ParsePagination(r, 50, 200)

	query := payslipSelect + " WHERE 1=1"
	args := []any{}
	if scoped {
		query += fmt.Sprintf(" AND pr.company_id = $%d", len(args)+1)
		args = append(args, companyID)
	}
	if payRunID := r.URL.Query().Get("payRunId"); payRunID != "" {
		query += fmt.Sprintf(" AND ps.pay_run_id = $%d", len(args)+1)
		args = append(args, payRunID)
	}
	if employeeID := r.URL.Query().Get("employeeId"); employeeID != "" {
		query += fmt.Sprintf(" AND ps.employee_id = $%d", len(args)+1)
		args = append(args, employeeID)
	}
	query += fmt.Sprintf(" ORDER BY e.full_name LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, page.Limit, page.Offset)

	rows, err := h.DB.Query(r.Context(), query, args...)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "payslip_list_failed", "failed to list payslips", requestctx.GetRequestID(r.Context()))
		return
	}
	defer rows.Close()

	payslips := make([]payrun.Payslip, 0)
	for rows.Next() {
		var slip payrun.Payslip
		var slipCompany string
		if err := rows.Scan(&slip.ID, &slip.PayRunID, &slip.EmployeeID, &slip.EmployeeName, &slip.GrossSalary, &slip.TotalDeductions, &slip.NetSalary, &slip.PaidAmount, &slip.PaymentStatus, &slip.FileURL, &slipCompany); err != nil {
			api.Fail(w, http.StatusInternalServerError, "payslip_list_failed", "failed to list payslips", requestctx.GetRequestID(r.Context()))
			return
		}
		payslips = append(payslips, slip)
	}
	api.Success(w, payslips, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) loadScoped(w http.ResponseWriter, r *http.Request, payslipID string) (payrun.Payslip, bool) {
	user, _ := middleware.GetUser(r.Context())
	reqID := requestctx.GetRequestID(r.Context())

	var slip payrun.Payslip
	var slipCompany string
	err := h.DB.QueryRow(r.Context(), payslipSelect+" WHERE ps.id = $1", payslipID).Scan(
		&slip.ID, &slip.PayRunID, &slip.EmployeeID, &slip.EmployeeName,
		&slip.GrossSalary, &slip.TotalDeductions, &slip.NetSalary, &slip.PaidAmount, &slip.PaymentStatus, &slip.FileURL, &slipCompany)
	if err != nil {
		api.Fail(w, http.StatusNotFound, "not_found", "payslip not found", reqID)
		return payrun.Payslip{}, false
	}
	if companyID, scoped := auth.EffectiveCompany(user, slipCompany); scoped && slipCompany != companyID {
		api.Fail(w, http.StatusNotFound, "not_found", "payslip not found", reqID)
		return payrun.Payslip{}, false
	}
	return slip, true
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	slip, ok := h.loadScoped(w, r, chi.URLParam(r, "payslipID"))
	if !ok {
		return
	}
	api.Success(w, slip, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	slip, ok := h.loadScoped(w, r, chi.URLParam(r, "payslipID"))
	if !ok {
		return
	}

	path := h.PDF.PayslipPath(slip.ID)
	if _, err := os.Stat(path); err != nil {
		// The background worker has not produced the file yet; render inline.
		generated, err := h.PDF.GeneratePayslipPDF(r.Context(), slip.ID)
		if err != nil {
			api.Fail(w, http.StatusInternalServerError, "payslip_pdf_failed", "failed to generate payslip", requestctx.GetRequestID(r.Context()))
			return
		}
		path = generated
		if _, err := h.DB.Exec(r.Context(), "UPDATE payslips SET file_url = $1 WHERE id = $2", path, slip.ID); err != nil {
			slog.Warn("payslip file url update failed", "payslipId", slip.ID, "err", err)
		}
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="payslip-`+slip.ID+`.pdf"`)
	http.ServeFile(w, r, path)
}
