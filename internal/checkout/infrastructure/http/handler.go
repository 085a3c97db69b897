package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	carthttp "github.com/mkarpenka/glowshop/internal/cart/infrastructure/http"
	"github.com/mkarpenka/glowshop/internal/checkout/application"
	"github.com/mkarpenka/glowshop/internal/checkout/domain"
)

type Handler struct {
	log     *slog.Logger
	service *application.Service
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
		tracer:  otel.Tracer("checkout-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/", h.createOrder)
	r.Get("/", h.listOrders)
	r.Get("/{code}", h.getOrder)
	r.Get("/{code}/status", h.statusLog)
	r.Post("/{code}/status", h.appendStatus)

	return r
}

type createOrderReq struct {
	ClientID  int64 `json:"client_id"`
	AddressID int64 `json:"address_id"`
}

type orderItemResp struct {
	ProductName string `json:"product_name"`
	PriceCents  int64  `json:"price_cents"`
	Quantity    int    `json:"quantity"`
}

type orderResp struct {
	Code       string          `json:"code"`
	Name       string          `json:"name"`
	Email      string          `json:"email"`
	Phone      string          `json:"phone"`
	Address    string          `json:"address"`
	TotalCents int64           `json:"total_cents"`
	CreatedAt  time.Time       `json:"created_at"`
	Items      []orderItemResp `json:"items"`
}

func toOrderResp(o domain.Order) orderResp {
	items := make([]orderItemResp, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemResp{
			ProductName: it.ProductName, PriceCents: it.PriceCents, Quantity: it.Quantity,
		})
	}
	return orderResp{
		Code: o.Code, Name: o.SnapshotName, Email: o.SnapshotEmail,
		Phone: o.SnapshotPhone, Address: o.SnapshotAddress,
		TotalCents: o.TotalCents, CreatedAt: o.CreatedAt, Items: items,
	}
}

type statusEntryResp struct {
	Status    string    `json:"status"`
	ChangedAt time.Time `json:"changed_at"`
	ChangedBy string    `json:"changed_by"`
	Comment   string    `json:"comment,omitempty"`
}

func toStatusEntryResp(e domain.StatusEntry) statusEntryResp {
	return statusEntryResp{
		Status: e.Status.String(), ChangedAt: e.ChangedAt,
		ChangedBy: e.ChangedBy, Comment: e.Comment,
	}
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateOrder")
	defer span.End()

	owner, err := carthttp.OwnerFromRequest(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ClientID <= 0 || req.AddressID <= 0 {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	order, err := h.service.CreateOrder(ctx, owner, req.ClientID, req.AddressID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(toOrderResp(order))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListOrders")
	defer span.End()

	summaries, err := h.service.Orders(ctx)
	if err != nil {
		h.writeError(w, err)
		return
	}

	type summaryResp struct {
		Code       string    `json:"code"`
		CreatedAt  time.Time `json:"created_at"`
		TotalCents int64     `json:"total_cents"`
		Status     string    `json:"status"`
	}
	resp := make([]summaryResp, 0, len(summaries))
	for _, s := range summaries {
		resp = append(resp, summaryResp{
			Code: s.Code, CreatedAt: s.CreatedAt,
			TotalCents: s.TotalCents, Status: s.Status.String(),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetOrder")
	defer span.End()

	order, err := h.service.OrderByCode(ctx, chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toOrderResp(order))
}

func (h *Handler) statusLog(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "OrderStatusLog")
	defer span.End()

	code := chi.URLParam(r, "code")
	current, err := h.service.CurrentStatus(ctx, code)
	if err != nil {
		h.writeError(w, err)
		return
	}
	log, err := h.service.StatusLog(ctx, code)
	if err != nil {
		h.writeError(w, err)
		return
	}

	entries := make([]statusEntryResp, 0, len(log))
	for _, e := range log {
		entries = append(entries, toStatusEntryResp(e))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"current": toStatusEntryResp(current),
		"history": entries,
	})
}

type appendStatusReq struct {
	Status  string `json:"status"`
	Actor   string `json:"actor"`
	Comment string `json:"comment"`
}

func (h *Handler) appendStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "AppendOrderStatus")
	defer span.End()

	var req appendStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	status, err := domain.ParseStatus(req.Status)
	if err != nil {
		http.Error(w, "unknown status", http.StatusBadRequest)
		return
	}

	entry, appended, err := h.service.AppendStatus(ctx, chi.URLParam(r, "code"), status, req.Actor, req.Comment)
	if err != nil {
		h.writeError(w, err)
		return
	}
	code := http.StatusCreated
	if !appended {
		code = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(toStatusEntryResp(entry))
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := err.Error()
	switch {
	case errors.Is(err, application.ErrInsufficientStock):
		status = http.StatusConflict
		msg = "item no longer available"
	case errors.Is(err, application.ErrEmptyCart):
		status = http.StatusBadRequest
	case errors.Is(err, application.ErrClientNotFound):
		status = http.StatusNotFound
	case errors.Is(err, application.ErrAddressMismatch):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrCodesExhausted):
		status = http.StatusServiceUnavailable
	case errors.Is(err, application.ErrCodeContention):
		status = http.StatusServiceUnavailable
		msg = "checkout busy, please retry"
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		// Storage errors stay in the log; the client gets nothing to parse.
		h.log.Error("checkout request failed", "err", err)
		msg = "internal error"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
