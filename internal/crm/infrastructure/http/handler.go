package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/mkarpenka/glowshop/internal/crm/domain"
	crmpg "github.com/mkarpenka/glowshop/internal/crm/infrastructure/postgres"
)

// Handler serves the back-office client lookups used while taking orders
// over the phone.
type Handler struct {
	log    *slog.Logger
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

func NewHandler(log *slog.Logger, pool *pgxpool.Pool) *Handler {
	return &Handler{
		log:    log,
		pool:   pool,
		tracer: otel.Tracer("crm-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/{id}", h.getClient)
	r.Get("/{id}/addresses", h.listAddresses)

	return r
}

type clientResp struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	IsActive bool   `json:"is_active"`
}

type addressResp struct {
	ID         int64  `json:"id"`
	City       string `json:"city"`
	Street     string `json:"street"`
	PostOffice string `json:"post_office"`
	IsPrimary  bool   `json:"is_primary"`
}

func (h *Handler) getClient(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetClient")
	defer span.End()

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid client id", http.StatusBadRequest)
		return
	}
	c, err := crmpg.ClientByID(ctx, h.pool, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(clientResp{
		ID: c.ID, FullName: c.FullName, Email: c.Email, Phone: c.Phone, IsActive: c.IsActive,
	})
}

func (h *Handler) listAddresses(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListClientAddresses")
	defer span.End()

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid client id", http.StatusBadRequest)
		return
	}
	addresses, err := crmpg.AddressesByClient(ctx, h.pool, id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := make([]addressResp, 0, len(addresses))
	for _, a := range addresses {
		resp = append(resp, addressResp{
			ID: a.ID, City: a.City, Street: a.Street,
			PostOffice: a.PostOffice, IsPrimary: a.IsPrimary,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := err.Error()
	if errors.Is(err, domain.ErrNotFound) {
		status = http.StatusNotFound
	} else {
		h.log.Error("crm request failed", "err", err)
		msg = "internal error"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
