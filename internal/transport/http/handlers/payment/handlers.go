package paymenthandler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jung-kurt/gofpdf"

	"payhub/internal/domain/audit"
	"payhub/internal/domain/auth"
	"payhub/internal/domain/payment"
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
}

func NewHandler(db *pgxpool.Pool, jobService *jobs.Service) *Handler {
	return &Handler{DB: db, Jobs: jobService}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(middleware.RequirePermission(auth.ResourcePayments, auth.ActionView)).Get("/", h.handleList)
	r.With(middleware.RequirePermission(auth.ResourcePayments, auth.ActionCreate)).Post("/", h.handleCreate)
	r.Route("/company/{companyID}", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.ResourcePayments, auth.ActionView)).Get("/", h.handleListByCompany)
		r.With(middleware.RequirePermission(auth.ResourcePayments, auth.ActionView)).Get("/export", h.handleExportRegister)
	})
	r.Route("/{paymentID}", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.ResourcePayments, auth.ActionView)).Get("/", h.handleGet)
		r.With(middleware.RequirePermission(auth.ResourcePayments, auth.ActionEdit)).Put("/", h.handleUpdate)
		r.With(middleware.RequirePermission(auth.ResourcePayments, auth.ActionDelete)).Delete("/", h.handleDelete)
		r.With(middleware.RequirePermission(auth.ResourcePayments, auth.ActionView)).Get("/receipt", h.handleReceipt)
	})
}

type paymentRequest struct {
	PayslipID     string  `json:"payslipId"`
	Amount        float64 `json:"amount"`
	PaymentMethod string  `json:"paymentMethod"`
	Reference     string  `json:"reference"`
	Notes         string  `json:"notes"`
	PaidAt        string  `json:"paidAt"`
}

// querier is satisfied by both the pool and a transaction so the payslip
// refresh can run inside the mutation's transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const paymentSelect = `
    SELECT p.id, p.payslip_id, p.amount, p.payment_method, COALESCE(p.reference, ''), COALESCE(p.notes, ''),
           p.paid_at, p.created_by, p.created_at, pr.company_id, pr.status
    FROM payments p
    JOIN payslips ps ON p.payslip_id = ps.id
    JOIN pay_runs pr ON ps.pay_run_id = pr.id`

func scanPayment(row interface{ Scan(...any) error }) (payment.Payment, string, string, error) {
	var pay payment.Payment
	var companyID, runStatus string
	err := row.Scan(&pay.ID, &pay.PayslipID, &pay.Amount, &pay.PaymentMethod, &pay.Reference, &pay.Notes,
		&pay.PaidAt, &pay.CreatedByUser, &pay.CreatedAt, &companyID, &runStatus)
	return pay, companyID, runStatus, err
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	companyID, scoped := auth.EffectiveCompany(user, r.URL.Query().Get("companyId"))
	h.listPayments(w, r, companyID, scoped)
}

func (h *Handler) handleListByCompany(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	requested := chi.URLParam(r, "companyID")
	companyID, scoped := auth.EffectiveCompany(user, requested)
	if scoped && companyID != requested {
		api.Fail(w, http.StatusForbidden, "forbidden", "insufficient permissions", requestctx.GetRequestID(r.Context()))
		return
	}
	h.listPayments(w, r, requested, true)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request, companyID string, scoped bool) {
	page := shared.ParsePagination(r, 50, 200)

	query := paymentSelect + " WHERE 1=1"
	args := []any{}
	if scoped {
		query += fmt.Sprintf(" AND pr.company_id = $%d", len(args)+1)
		args = append(args, companyID)
	}
	if payslipID := r.URL.Query().Get("payslipId"); payslipID != "" {
		query += fmt.Sprintf(" AND p.payslip_id = $%d", len(args)+1)
		args = append(args, payslipID)
	}
	if from, err := shared.ParseDate(r.URL.Query().Get("from")); err == nil && !from.IsZero() {
		query += fmt.Sprintf(" AND p.paid_at >= $%d", len(args)+1)
		args = append(args, from)
	}
	if to, err := shared.ParseDate(r.URL.Query().Get("to")); err == nil && !to.IsZero() {
		query += fmt.Sprintf(" AND p.paid_at < $%d", len(args)+1)
		args = append(args, to.AddDate(0, 0, 1))
	}
	query += fmt.Sprintf(" ORDER BY p.paid_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, page.Limit, page.Offset)

	rows, err := h.DB.Query(r.Context(), query, args...)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "payment_list_failed", "failed to list payments", requestctx.GetRequestID(r.Context()))
		return
	}
	defer rows.Close()

	payments := make([]payment.Payment, 0)
	for rows.Next() {
		pay, _, _, err := scanPayment(rows)
		if err != nil {
			api.Fail(w, http.StatusInternalServerError, "payment_list_failed", "failed to list payments", requestctx.GetRequestID(r.Context()))
			return
		}
		payments = append(payments, pay)
	}
	api.Success(w, payments, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) loadScoped(w http.ResponseWriter, r *http.Request, paymentID string) (payment.Payment, string, string, bool) {
	user, _ := middleware.GetUser(r.Context())
	reqID := requestctx.GetRequestID(r.Context())

	pay, companyID, runStatus, err := scanPayment(h.DB.QueryRow(r.Context(), paymentSelect+" WHERE p.id = $1", paymentID))
	if err != nil {
		api.Fail(w, http.StatusNotFound, "not_found", "payment not found", reqID)
		return payment.Payment{}, "", "", false
	}
	if scopeCompany, scoped := auth.EffectiveCompany(user, companyID); scoped && companyID != scopeCompany {
		api.Fail(w, http.StatusNotFound, "not_found", "payment not found", reqID)
		return payment.Payment{}, "", "", false
	}
	return pay, companyID, runStatus, true
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	pay, _, _, ok := h.loadScoped(w, r, chi.URLParam(r, "paymentID"))
	if !ok {
		return
	}
	api.Success(w, pay, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := requestctx.GetRequestID(r.Context())

	body, payload, ok := decodePayment(w, r)
	if !ok {
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")
	requestHash := middleware.RequestHash(body)
	store := middleware.NewIdempotencyStore(h.DB)
	if idempotencyKey != "" {
		stored, found, err := store.Check(r.Context(), user.UserID, "payments.create", idempotencyKey, requestHash)
		if err != nil {
			slog.Warn("idempotency check failed", "err", err)
		}
		if found {
			api.Success(w, json.RawMessage(stored), reqID)
			return
		}
	}

	v := shared.NewValidator()
	v.Required("payslipId", payload.PayslipID, "payslipId is required")
	v.Positive("amount", payload.Amount, "amount must be positive")
	v.Required("paymentMethod", payload.PaymentMethod, "paymentMethod is required")
	if payload.PaymentMethod != "" {
		if err := payment.ValidateMethod(payload.PaymentMethod); err != nil {
			v.Add("paymentMethod", err.Error())
		}
	}
	paidAt := time.Now()
	if payload.PaidAt != "" {
		if parsed, ok := v.Date("paidAt", payload.PaidAt); ok {
			paidAt = parsed
		}
	}
	if v.Reject(w, reqID) {
		return
	}

	tx, err := h.DB.Begin(r.Context())
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "payment_create_failed", "failed to record payment", reqID)
		return
	}
	defer tx.Rollback(r.Context())

	// The payslip row is locked so concurrent creates serialize on the
	// balance check.
	var companyID, runStatus string
	var net, paid float64
	err = tx.QueryRow(r.Context(), `
    SELECT pr.company_id, pr.status, ps.net_salary, ps.paid_amount
    FROM payslips ps
    JOIN pay_runs pr ON ps.pay_run_id = pr.id
    WHERE ps.id = $1
    FOR UPDATE OF ps
  `, payload.PayslipID).Scan(&companyID, &runStatus, &net, &paid)
	if err != nil {
		api.Fail(w, http.StatusNotFound, "not_found", "payslip not found", reqID)
		return
	}
	if scopeCompany, scoped := auth.EffectiveCompany(user, companyID); scoped && companyID != scopeCompany {
		api.Fail(w, http.StatusNotFound, "not_found", "payslip not found", reqID)
		return
	}
	if runStatus != payrun.StatusApproved {
		if runStatus == payrun.StatusClosed {
			api.Fail(w, http.StatusBadRequest, "invalid_state", payment.ErrPayRunClosed.Error(), reqID)
			return
		}
		api.Fail(w, http.StatusBadRequest, "invalid_state", "pay run is not approved", reqID)
		return
	}
	if err := payment.ValidateAmount(payload.Amount, net-paid); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_amount", err.Error(), reqID)
		return
	}

	var id string
	if err := tx.QueryRow(r.Context(), `
    INSERT INTO payments (payslip_id, amount, payment_method, reference, notes, paid_at, created_by)
    VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7)
    RETURNING id
  `, payload.PayslipID, payload.Amount, payload.PaymentMethod, payload.Reference, payload.Notes, paidAt, user.UserID).Scan(&id); err != nil {
		api.Fail(w, http.StatusInternalServerError, "payment_create_failed", "failed to record payment", reqID)
		return
	}

	if err := refreshPayslip(r.Context(), tx, payload.PayslipID); err != nil {
		api.Fail(w, http.StatusInternalServerError, "payment_create_failed", "failed to record payment", reqID)
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		api.Fail(w, http.StatusInternalServerError, "payment_create_failed", "failed to record payment", reqID)
		return
	}

	if err := audit.New(h.DB).Record(r.Context(), companyID, user.UserID, "payment.create", "payment", id, reqID, shared.ClientIP(r), nil, map[string]any{"payslipId": payload.PayslipID, "amount": payload.Amount, "method": payload.PaymentMethod}); err != nil {
		slog.Warn("audit payment.create failed", "err", err)
	}

	response := map[string]string{"id": id}
	if idempotencyKey != "" {
		encoded, err := json.Marshal(response)
		if err != nil {
			slog.Warn("idempotency response marshal failed", "err", err)
		} else if err := store.Save(r.Context(), user.UserID, "payments.create", idempotencyKey, requestHash, encoded); err != nil {
			slog.Warn("idempotency save failed", "err", err)
		}
	}
	api.Created(w, response, reqID)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := requestctx.GetRequestID(r.Context())

	before, companyID, runStatus, ok := h.loadScoped(w, r, chi.URLParam(r, "paymentID"))
	if !ok {
		return
	}
	if runStatus == payrun.StatusClosed {
		api.Fail(w, http.StatusBadRequest, "invalid_state", payment.ErrPayRunClosed.Error(), reqID)
		return
	}

	_, payload, ok := decodePayment(w, r)
	if !ok {
		return
	}

	v := shared.NewValidator()
	v.Positive("amount", payload.Amount, "amount must be positive")
	v.Required("paymentMethod", payload.PaymentMethod, "paymentMethod is required")
	if payload.PaymentMethod != "" {
		if err := payment.ValidateMethod(payload.PaymentMethod); err != nil {
			v.Add("paymentMethod", err.Error())
		}
	}
	paidAt := before.PaidAt
	if payload.PaidAt != "" {
		if parsed, ok := v.Date("paidAt", payload.PaidAt); ok {
			paidAt = parsed
		}
	}
	if v.Reject(w, reqID) {
		return
	}

	tx, err := h.DB.Begin(r.Context())
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "payment_update_failed", "failed to update payment", reqID)
		return
	}
	defer tx.Rollback(r.Context())

	var net, paid float64
	if err := tx.QueryRow(r.Context(), "SELECT net_salary, paid_amount FROM payslips WHERE id = $1 FOR UPDATE", before.PayslipID).Scan(&net, &paid); err != nil {
		api.Fail(w, http.StatusInternalServerError, "payment_update_failed", "failed to update payment", reqID)
		return
	}
	// The payment's current amount is re-read under the lock; the remaining
	// balance excludes this payment's own contribution.
	var currentAmount float64
	if err := tx.QueryRow(r.Context(), "SELECT amount FROM payments WHERE id = $1", before.ID).Scan(&currentAmount); err != nil {
		api.Fail(w, http.StatusNotFound, "not_found", "payment not found", reqID)
		return
	}
	if err := payment.ValidateAmount(payload.Amount, net-paid+currentAmount); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_amount", err.Error(), reqID)
		return
	}

	if _, err := tx.Exec(r.Context(), `
    UPDATE payments
    SET amount = $1, payment_method = $2, reference = NULLIF($3, ''), notes = NULLIF($4, ''), paid_at = $5
    WHERE id = $6
  `, payload.Amount, payload.PaymentMethod, payload.Reference, payload.Notes, paidAt, before.ID); err != nil {
		api.Fail(w, http.StatusInternalServerError, "payment_update_failed", "failed to update payment", reqID)
		return
	}

	if err := refreshPayslip(r.Context(), tx, before.PayslipID); err != nil {
		api.Fail(w, http.StatusInternalServerError, "payment_update_failed", "failed to update payment", reqID)
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		api.Fail(w, http.StatusInternalServerError, "payment_update_failed", "failed to update payment", reqID)
		return
	}

	if err := audit.New(h.DB).Record(r.Context(), companyID, user.UserID, "payment.update", "payment", before.ID, reqID, shared.ClientIP(r), before, map[string]any{"amount": payload.Amount, "method": payload.PaymentMethod}); err != nil {
		slog.Warn("audit payment.update failed", "err", err)
	}

	api.Success(w, map[string]string{"id": before.ID}, reqID)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := requestctx.GetRequestID(r.Context())

	before, companyID, runStatus, ok := h.loadScoped(w, r, chi.URLParam(r, "paymentID"))
	if !ok {
		return
	}
	if runStatus == payrun.StatusClosed {
		api.Fail(w, http.StatusBadRequest, "invalid_state", payment.ErrPayRunClosed.Error(), reqID)
		return
	}

	tx, err := h.DB.Begin(r.Context())
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "payment_delete_failed", "failed to delete payment", reqID)
		return
	}
	defer tx.Rollback(r.Context())

	var payslipID string
	if err := tx.QueryRow(r.Context(), "SELECT id FROM payslips WHERE id = $1 FOR UPDATE", before.PayslipID).Scan(&payslipID); err != nil {
		api.Fail(w, http.StatusInternalServerError, "payment_delete_failed", "failed to delete payment", reqID)
		return
	}
	if _, err := tx.Exec(r.Context(), "DELETE FROM payments WHERE id = $1", before.ID); err != nil {
		api.Fail(w, http.StatusInternalServerError, "payment_delete_failed", "failed to delete payment", reqID)
		return
	}
	if err := refreshPayslip(r.Context(), tx, before.PayslipID); err != nil {
		api.Fail(w, http.StatusInternalServerError, "payment_delete_failed", "failed to delete payment", reqID)
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		api.Fail(w, http.StatusInternalServerError, "payment_delete_failed", "failed to delete payment", reqID)
		return
	}

	if err := audit.New(h.DB).Record(r.Context(), companyID, user.UserID, "payment.delete", "payment", before.ID, reqID, shared.ClientIP(r), before, nil); err != nil {
		slog.Warn("audit payment.delete failed", "err", err)
	}

	api.Success(w, map[string]string{"status": "deleted"}, reqID)
}

// refreshPayslip recomputes the payslip's paid amount and status from its
// payments, inside the caller's transaction.
func refreshPayslip(ctx context.Context, db querier, payslipID string) error {
	var net, paid float64
	err := db.QueryRow(ctx, `
    SELECT ps.net_salary, COALESCE((SELECT SUM(amount) FROM payments WHERE payslip_id = ps.id), 0)
    FROM payslips ps
    WHERE ps.id = $1
  `, payslipID).Scan(&net, &paid)
	if err != nil {
		return err
	}
	status := payrun.PaymentStatus(net, paid)
	_, err = db.Exec(ctx, "UPDATE payslips SET paid_amount = $1, payment_status = $2 WHERE id = $3", paid, status, payslipID)
	return err
}

func (h *Handler) handleReceipt(w http.ResponseWriter, r *http.Request) {
	pay, companyID, _, ok := h.loadScoped(w, r, chi.URLParam(r, "paymentID"))
	if !ok {
		return
	}
	reqID := requestctx.GetRequestID(r.Context())

	var employeeName, runName, currency, companyName string
	err := h.DB.QueryRow(r.Context(), `
    SELECT e.full_name, pr.name, c.currency, c.name
    FROM payslips ps
    JOIN employees e ON ps.employee_id = e.id
    JOIN pay_runs pr ON ps.pay_run_id = pr.id
    JOIN companies c ON pr.company_id = c.id
    WHERE ps.id = $1
  `, pay.PayslipID).Scan(&employeeName, &runName, &currency, &companyName)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "receipt_failed", "failed to render receipt", reqID)
		return
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Payment receipt")
	pdf.Ln(12)
	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Company: %s", companyName))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Employee: %s", employeeName))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Pay run: %s", runName))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Paid at: %s", pay.PaidAt.Format("2006-01-02")))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Method: %s", pay.PaymentMethod))
	if pay.Reference != "" {
		pdf.Ln(7)
		pdf.Cell(0, 8, fmt.Sprintf("Reference: %s", pay.Reference))
	}
	pdf.Ln(10)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Amount: %.2f %s", pay.Amount, currency))

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="receipt-`+pay.ID+`.pdf"`)
	if err := pdf.Output(w); err != nil {
		slog.Warn("receipt pdf output failed", "paymentId", pay.ID, "companyId", companyID, "err", err)
	}
}

func (h *Handler) handleExportRegister(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := requestctx.GetRequestID(r.Context())
	requested := chi.URLParam(r, "companyID")
	if scopeCompany, scoped := auth.EffectiveCompany(user, requested); scoped && requested != scopeCompany {
		api.Fail(w, http.StatusForbidden, "forbidden", "insufficient permissions", reqID)
		return
	}

	var companyName, currency string
	if err := h.DB.QueryRow(r.Context(), "SELECT name, currency FROM companies WHERE id = $1", requested).Scan(&companyName, &currency); err != nil {
		api.Fail(w, http.StatusNotFound, "not_found", "company not found", reqID)
		return
	}

	// The export runs through the job ledger so operators can see who pulled
	// a register and whether it succeeded.
	if _, err := h.Jobs.RunNow(r.Context(), jobs.JobRunExport, requested, func(ctx context.Context) (any, error) {
		return h.renderRegister(ctx, w, requested, companyName, currency)
	}); err != nil {
		api.Fail(w, http.StatusInternalServerError, "export_failed", "failed to export payments", reqID)
	}
}

func (h *Handler) renderRegister(ctx context.Context, w http.ResponseWriter, companyID, companyName, currency string) (any, error) {
	rows, err := h.DB.Query(ctx, `
    SELECT e.full_name, p.amount, p.payment_method, p.paid_at
    FROM payments p
    JOIN payslips ps ON p.payslip_id = ps.id
    JOIN pay_runs pr ON ps.pay_run_id = pr.id
    JOIN employees e ON ps.employee_id = e.id
    WHERE pr.company_id = $1
    ORDER BY p.paid_at DESC
    LIMIT 500
  `, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 10, fmt.Sprintf("Payment register - %s", companyName))
	pdf.Ln(12)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(70, 7, "Employee", "1", 0, "", false, 0, "")
	pdf.CellFormat(35, 7, "Amount", "1", 0, "", false, 0, "")
	pdf.CellFormat(45, 7, "Method", "1", 0, "", false, 0, "")
	pdf.CellFormat(30, 7, "Date", "1", 1, "", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)

	total := 0.0
	count := 0
	for rows.Next() {
		var name, method string
		var amount float64
		var paidAt time.Time
		if err := rows.Scan(&name, &amount, &method, &paidAt); err != nil {
			return nil, err
		}
		total += amount
		count++
		pdf.CellFormat(70, 7, name, "1", 0, "", false, 0, "")
		pdf.CellFormat(35, 7, fmt.Sprintf("%.2f %s", amount, currency), "1", 0, "", false, 0, "")
		pdf.CellFormat(45, 7, method, "1", 0, "", false, 0, "")
		pdf.CellFormat(30, 7, paidAt.Format("2006-01-02"), "1", 1, "", false, 0, "")
	}
	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.Cell(0, 8, fmt.Sprintf("Total: %.2f %s", total, currency))

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="payments-`+companyID+`.pdf"`)
	if err := pdf.Output(w); err != nil {
		return nil, err
	}
	return map[string]any{"payments": count, "total": total}, nil
}

func decodePayment(w http.ResponseWriter, r *http.Request) ([]byte, paymentRequest, bool) {
	reqID := requestctx.GetRequestID(r.Context())
	body, err := readBody(r)
	if err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return nil, paymentRequest{}, false
	}
	var payload paymentRequest
	if err := json.Unmarshal(body, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return nil, paymentRequest{}, false
	}
	payload.PaymentMethod = strings.ToUpper(strings.TrimSpace(payload.PaymentMethod))
	return body, payload, true
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}
