package audithandler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"payhub/internal/domain/audit"
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
	r.With(middleware.RequirePermission(auth.ResourceAudit, auth.ActionView)).Get("/", h.handleList)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	reqID := requestctx.GetRequestID(r.Context())
	page := shared.ParsePagination(r, 50, 200)

	filter := audit.Filter{
		Action:     r.URL.Query().Get("action"),
		EntityType: r.URL.Query().Get("entityType"),
		ActorUser:  r.URL.Query().Get("actorUser"),
		CompanyID:  r.URL.Query().Get("companyId"),
	}
	includeDetails := r.URL.Query().Get("includeDetails") == "true"

	svc := audit.New(h.DB)
	total, err := svc.Count(r.Context(), filter)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "audit_list_failed", "failed to list audit events", reqID)
		return
	}
	events, err := svc.List(r.Context(), filter, includeDetails, page.Limit, page.Offset)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "audit_list_failed", "failed to list audit events", reqID)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}

	api.Success(w, map[string]any{
		"total":  total,
		"limit":  page.Limit,
		"offset": page.Offset,
		"events": events,
	}, reqID)
}
