package companyhandler

import (
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"payhub/internal/domain/audit"
	"payhub/internal/domain/auth"
	"payhub/internal/domain/company"
	"payhub/internal/platform/requestctx"
	"payhub/internal/transport/http/api"
	"payhub/internal/transport/http/middleware"
	"payhub/internal/transport/http/shared"
)

type Handler struct {
	DB           *pgxpool.Pool
	StorageDir   string
	MaxLogoBytes int64
}

func NewHandler(db *pgxpool.Pool, storageDir string, maxLogoBytes int64) *Handler {
	return &Handler{DB: db, StorageDir: storageDir, MaxLogoBytes: maxLogoBytes}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(middleware.RequirePermission(auth.ResourceCompanies, auth.ActionView)).Get("/", h.handleList)
	r.With(middleware.RequirePermission(auth.ResourceCompanies, auth.ActionCreate)).Post("/", h.handleCreate)
	r.Route("/{companyID}", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.ResourceCompanies, auth.ActionView)).Get("/", h.handleGet)
		r.With(middleware.RequirePermission(auth.ResourceCompanies, auth.ActionEdit)).Put("/", h.handleUpdate)
		r.With(middleware.RequirePermission(auth.ResourceCompanies, auth.ActionDelete)).Delete("/", h.handleDelete)
		r.Get("/logo", h.handleLogo)
		r.With(middleware.RequirePermission(auth.ResourceCompanies, auth.ActionView)).Get("/cashiers", h.handleCashiers)
	})
}

const companyColumns = "id, name, COALESCE(address, ''), currency, period_type, COALESCE(logo_url, ''), status, created_at"

func scanCompany(row pgx.Row) (company.Company, error) {
	var c company.Company
	err := row.Scan(&c.ID, &c.Name, &c.Address, &c.Currency, &c.PeriodType, &c.LogoURL, &c.Status, &c.CreatedAt)
	return c, err
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePagination(r, 50, 200)
	rows, err := h.DB.Query(r.Context(), `
    SELECT `+companyColumns+`
    FROM companies
    ORDER BY name
    LIMIT $1 OFFSET $2
  `, page.Limit, page.Offset)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "company_list_failed", "failed to list companies", requestctx.GetRequestID(r.Context()))
		return
	}
	defer rows.Close()

	companies := make([]company.Company, 0)
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			api.Fail(w, http.StatusInternalServerError, "company_list_failed", "failed to list companies", requestctx.GetRequestID(r.Context()))
			return
		}
		companies = append(companies, c)
	}
	api.Success(w, companies, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	companyID := chi.URLParam(r, "companyID")
	c, err := scanCompany(h.DB.QueryRow(r.Context(), "SELECT "+companyColumns+" FROM companies WHERE id = $1", companyID))
	if err != nil {
		api.Fail(w, http.StatusNotFound, "not_found", "company not found", requestctx.GetRequestID(r.Context()))
		return
	}
	api.Success(w, c, requestctx.GetRequestID(r.Context()))
}

type companyForm struct {
	Name       string
	Address    string
	Currency   string
	PeriodType string
	Logo       multipart.File
	LogoHeader *multipart.FileHeader
}

func (h *Handler) parseForm(w http.ResponseWriter, r *http.Request, requireAll bool) (companyForm, bool) {
	reqID := requestctx.GetRequestID(r.Context())
	if err := r.ParseMultipartForm(h.MaxLogoBytes + 64*1024); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid multipart payload", reqID)
		return companyForm{}, false
	}

	form := companyForm{
		Name:       strings.TrimSpace(r.FormValue("name")),
		Address:    strings.TrimSpace(r.FormValue("address")),
		Currency:   strings.ToUpper(strings.TrimSpace(r.FormValue("currency"))),
		PeriodType: strings.ToUpper(strings.TrimSpace(r.FormValue("periodType"))),
	}

	v := shared.NewValidator()
	if requireAll {
		v.Required("name", form.Name, "name is required")
		v.Required("address", form.Address, "address is required")
		v.Required("currency", form.Currency, "currency is required")
		v.Required("periodType", form.PeriodType, "periodType is required")
	}
	if form.PeriodType != "" && !company.ValidPeriodType(form.PeriodType) {
		v.Add("periodType", "periodType must be one of MONTHLY, WEEKLY, DAILY")
	}

	file, header, err := r.FormFile("logo")
	if err == nil {
		contentType := header.Header.Get("Content-Type")
		if !strings.HasPrefix(contentType, "image/") {
			v.Add("logo", "must be an image")
		}
		if header.Size > h.MaxLogoBytes {
			v.Add("logo", "must be at most 2 MiB")
		}
		form.Logo = file
		form.LogoHeader = header
	}

	if v.Reject(w, reqID) {
		if form.Logo != nil {
			form.Logo.Close()
		}
		return companyForm{}, false
	}
	return form, true
}

func (h *Handler) storeLogo(companyID string, form companyForm) (string, error) {
	if form.Logo == nil {
		return "", nil
	}
	defer form.Logo.Close()

	dir := filepath.Join(h.StorageDir, "logos")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	ext := filepath.Ext(form.LogoHeader.Filename)
	if ext == "" {
		ext = ".png"
	}
	path := filepath.Join(dir, companyID+ext)
	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, io.LimitReader(form.Logo, h.MaxLogoBytes)); err != nil {
		return "", err
	}
	return "/api/v1/company/" + companyID + "/logo", nil
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	form, ok := h.parseForm(w, r, true)
	if !ok {
		return
	}

	var id string
	err := h.DB.QueryRow(r.Context(), `
    INSERT INTO companies (name, address, currency, period_type, status)
    VALUES ($1, $2, $3, $4, 'ACTIVE')
    RETURNING id
  `, form.Name, form.Address, form.Currency, form.PeriodType).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			api.Fail(w, http.StatusConflict, "company_exists", "company name already exists", requestctx.GetRequestID(r.Context()))
			return
		}
		api.Fail(w, http.StatusInternalServerError, "company_create_failed", "failed to create company", requestctx.GetRequestID(r.Context()))
		return
	}

	logoURL, err := h.storeLogo(id, form)
	if err != nil {
		slog.Warn("logo store failed", "companyId", id, "err", err)
	} else if logoURL != "" {
		if _, err := h.DB.Exec(r.Context(), "UPDATE companies SET logo_url = $1 WHERE id = $2", logoURL, id); err != nil {
			slog.Warn("logo url update failed", "companyId", id, "err", err)
		}
	}

	if err := audit.New(h.DB).Record(r.Context(), id, user.UserID, "company.create", "company", id, requestctx.GetRequestID(r.Context()), shared.ClientIP(r), nil, map[string]string{"name": form.Name}); err != nil {
		slog.Warn("audit company.create failed", "err", err)
	}

	c, err := scanCompany(h.DB.QueryRow(r.Context(), "SELECT "+companyColumns+" FROM companies WHERE id = $1", id))
	if err != nil {
		api.Created(w, map[string]string{"id": id}, requestctx.GetRequestID(r.Context()))
		return
	}
	api.Created(w, c, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	companyID := chi.URLParam(r, "companyID")

	before, err := scanCompany(h.DB.QueryRow(r.Context(), "SELECT "+companyColumns+" FROM companies WHERE id = $1", companyID))
	if err != nil {
		api.Fail(w, http.StatusNotFound, "not_found", "company not found", requestctx.GetRequestID(r.Context()))
		return
	}

	form, ok := h.parseForm(w, r, false)
	if !ok {
		return
	}

	updated := before
	if form.Name != "" {
		updated.Name = form.Name
	}
	if form.Address != "" {
		updated.Address = form.Address
	}
	if form.Currency != "" {
		updated.Currency = form.Currency
	}
	if form.PeriodType != "" {
		updated.PeriodType = form.PeriodType
	}

	logoURL, err := h.storeLogo(companyID, form)
	if err != nil {
		slog.Warn("logo store failed", "companyId", companyID, "err", err)
	} else if logoURL != "" {
		updated.LogoURL = logoURL
	}

	if _, err := h.DB.Exec(r.Context(), `
    UPDATE companies
    SET name = $1, address = $2, currency = $3, period_type = $4, logo_url = NULLIF($5, '')
    WHERE id = $6
  `, updated.Name, updated.Address, updated.Currency, updated.PeriodType, updated.LogoURL, companyID); err != nil {
		api.Fail(w, http.StatusInternalServerError, "company_update_failed", "failed to update company", requestctx.GetRequestID(r.Context()))
		return
	}

	if err := audit.New(h.DB).Record(r.Context(), companyID, user.UserID, "company.update", "company", companyID, requestctx.GetRequestID(r.Context()), shared.ClientIP(r), before, updated); err != nil {
		slog.Warn("audit company.update failed", "err", err)
	}

	api.Success(w, updated, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	companyID := chi.URLParam(r, "companyID")

	before, err := scanCompany(h.DB.QueryRow(r.Context(), "SELECT "+companyColumns+" FROM companies WHERE id = $1", companyID))
	if err != nil {
		api.Fail(w, http.StatusNotFound, "not_found", "company not found", requestctx.GetRequestID(r.Context()))
		return
	}

	// Companies with payroll history are deactivated, never dropped.
	if _, err := h.DB.Exec(r.Context(), "UPDATE companies SET status = 'INACTIVE' WHERE id = $1", companyID); err != nil {
		api.Fail(w, http.StatusInternalServerError, "company_delete_failed", "failed to delete company", requestctx.GetRequestID(r.Context()))
		return
	}

	if err := audit.New(h.DB).Record(r.Context(), companyID, user.UserID, "company.delete", "company", companyID, requestctx.GetRequestID(r.Context()), shared.ClientIP(r), before, nil); err != nil {
		slog.Warn("audit company.delete failed", "err", err)
	}

	api.Success(w, map[string]string{"status": "deleted"}, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) handleLogo(w http.ResponseWriter, r *http.Request) {
	companyID := chi.URLParam(r, "companyID")
	var logoURL string
	if err := h.DB.QueryRow(r.Context(), "SELECT COALESCE(logo_url, '') FROM companies WHERE id = $1", companyID).Scan(&logoURL); err != nil || logoURL == "" {
		api.Fail(w, http.StatusNotFound, "not_found", "logo not found", requestctx.GetRequestID(r.Context()))
		return
	}

	matches, err := filepath.Glob(filepath.Join(h.StorageDir, "logos", companyID+".*"))
	if err != nil || len(matches) == 0 {
		api.Fail(w, http.StatusNotFound, "not_found", "logo not found", requestctx.GetRequestID(r.Context()))
		return
	}
	http.ServeFile(w, r, matches[0])
}

func (h *Handler) handleCashiers(w http.ResponseWriter, r *http.Request) {
	companyID := chi.URLParam(r, "companyID")
	rows, err := h.DB.Query(r.Context(), `
    SELECT id, email, full_name
    FROM users
    WHERE company_id = $1 AND role = $2 AND status = 'ACTIVE'
    ORDER BY full_name
  `, companyID, auth.RoleCashier)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "cashier_list_failed", "failed to list cashiers", requestctx.GetRequestID(r.Context()))
		return
	}
	defer rows.Close()

	type cashier struct {
		ID       string `json:"id"`
		Email    string `json:"email"`
		FullName string `json:"fullName"`
	}
	cashiers := make([]cashier, 0)
	for rows.Next() {
		var c cashier
		if err := rows.Scan(&c.ID, &c.Email, &c.FullName); err != nil {
			api.Fail(w, http.StatusInternalServerError, "cashier_list_failed", "failed to list cashiers", requestctx.GetRequestID(r.Context()))
			return
		}
		cashiers = append(cashiers, c)
	}
	api.Success(w, cashiers, requestctx.GetRequestID(r.Context()))
}
