package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/mkarpenka/glowshop/internal/cart/application"
	"github.com/mkarpenka/glowshop/internal/cart/domain"
)

const (
	HeaderClientID     = "X-Client-ID"
	HeaderSessionToken = "X-Session-Token"
)

// OwnerFromRequest resolves the cart owner from request headers. An
// authenticated client id wins over a session token; a visitor with
// neither gets a fresh token, echoed back so the browser can keep it.
func OwnerFromRequest(w http.ResponseWriter, r *http.Request) (domain.Owner, error) {
	if raw := r.Header.Get(HeaderClientID); raw != "" {
		clientID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || clientID <= 0 {
			return domain.Owner{}, domain.ErrNoOwner
		}
		return domain.ClientOwner(clientID), nil
	}
	if token := r.Header.Get(HeaderSessionToken); token != "" {
		return domain.SessionOwner(token), nil
	}
	token := uuid.NewString()
	w.Header().Set(HeaderSessionToken, token)
	return domain.SessionOwner(token), nil
}

type Handler struct {
	log     *slog.Logger
	service *application.Service
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
		tracer:  otel.Tracer("cart-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.viewCart)
	r.Post("/items", h.addItem)
	r.Put("/items/{productID}", h.setQuantity)
	r.Delete("/items/{productID}", h.removeItem)

	return r
}

type addItemReq struct {
	ProductID int64 `json:"product_id"`
}

type setQuantityReq struct {
	Quantity int `json:"quantity"`
}

type lineResp struct {
	ProductID  int64  `json:"product_id"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	Quantity   int    `json:"quantity"`
}

type viewResp struct {
	Lines      []lineResp `json:"lines"`
	TotalCents int64      `json:"total_cents"`
}

func (h *Handler) viewCart(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ViewCart")
	defer span.End()

	owner, err := OwnerFromRequest(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	view, err := h.service.View(ctx, owner)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := viewResp{Lines: make([]lineResp, 0, len(view.Lines)), TotalCents: view.TotalCents}
	for _, l := range view.Lines {
		resp.Lines = append(resp.Lines, lineResp{
			ProductID: l.ProductID, Name: l.Name, PriceCents: l.PriceCents, Quantity: l.Quantity,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "AddCartItem")
	defer span.End()

	owner, err := OwnerFromRequest(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req addItemReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProductID <= 0 {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if err := h.service.AddProduct(ctx, owner, req.ProductID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "SetCartQuantity")
	defer span.End()

	owner, err := OwnerFromRequest(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid product id", http.StatusBadRequest)
		return
	}

	var req setQuantityReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if err := h.service.SetQuantity(ctx, owner, productID, req.Quantity); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "RemoveCartItem")
	defer span.End()

	owner, err := OwnerFromRequest(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid product id", http.StatusBadRequest)
		return
	}

	if err := h.service.RemoveProduct(ctx, owner, productID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrOutOfStock):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrNoOwner), errors.Is(err, domain.ErrBadQuantity):
		status = http.StatusBadRequest
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.log.Error("cart request failed", "err", err)
		msg = "internal error"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
