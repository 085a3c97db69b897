package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	cartdomain "github.com/mkarpenka/glowshop/internal/cart/domain"
	"github.com/mkarpenka/glowshop/internal/checkout/domain"
	crmdomain "github.com/mkarpenka/glowshop/internal/crm/domain"
	"github.com/mkarpenka/glowshop/pkg/metrics"
	"github.com/mkarpenka/glowshop/pkg/tracing"
)

// codeRetries bounds whole-transaction retries after an order-code
// collision. Collisions need two checkouts racing the same serial, so one
// or two retries normally settle it.
const codeRetries = 3

const systemActor = "system"

type Service struct {
	log     *slog.Logger
	store   Store
	metrics *metrics.Checkout
	now     func() time.Time
}

func NewService(log *slog.Logger, store Store, m *metrics.Checkout) *Service {
	return &Service{
		log:     log,
		store:   store,
		metrics: m,
		now:     time.Now,
	}
}

// CreateOrder converts the owner's cart into a priced, stock-decrementing
// order in one atomic transaction: consistent cart read, snapshot copy,
// stock reservation per line, frozen item rows, cart clearing and the
// initial NEW status entry all commit together or not at all.
func (s *Service) CreateOrder(ctx context.Context, owner cartdomain.Owner, clientID, addressID int64) (domain.Order, error) {
	var (
		order domain.Order
		err   error
	)
	for attempt := 0; attempt <= codeRetries; attempt++ {
		order, err = s.assemble(ctx, owner, clientID, addressID)
		if errors.Is(err, ErrOrderCodeTaken) {
			s.log.Warn("order code collision, retrying", "attempt", attempt)
			continue
		}
		break
	}
	if errors.Is(err, ErrOrderCodeTaken) {
		err = ErrCodeContention
	}
	if err != nil {
		s.metrics.CheckoutFailures.WithLabelValues(failureReason(err)).Inc()
		return domain.Order{}, err
	}

	s.metrics.OrdersCreated.Inc()
	s.log.Info("order created", "code", order.Code, "total_cents", order.TotalCents, "items", len(order.Items))
	return order, nil
}

func (s *Service) assemble(ctx context.Context, owner cartdomain.Owner, clientID, addressID int64) (domain.Order, error) {
	var order domain.Order
	err := s.store.RunInTx(ctx, func(tx Tx) error {
		cart, err := tx.CartByOwner(ctx, owner)
		if errors.Is(err, cartdomain.ErrNotFound) {
			return ErrEmptyCart
		}
		if err != nil {
			return fmt.Errorf("resolve cart: %w", err)
		}

		lines, err := tx.CartLines(ctx, cart.ID)
		if err != nil {
			return fmt.Errorf("read cart lines: %w", err)
		}
		if len(lines) == 0 {
			return ErrEmptyCart
		}

		client, err := tx.ClientByID(ctx, clientID)
		if errors.Is(err, crmdomain.ErrNotFound) {
			return ErrClientNotFound
		}
		if err != nil {
			return fmt.Errorf("resolve client: %w", err)
		}

		address, err := tx.AddressForClient(ctx, addressID, client.ID)
		if errors.Is(err, crmdomain.ErrNotFound) {
			return ErrAddressMismatch
		}
		if err != nil {
			return fmt.Errorf("resolve address: %w", err)
		}

		day := s.now().UTC()
		last, err := tx.LastOrderSerial(ctx, day)
		if err != nil {
			return fmt.Errorf("last order serial: %w", err)
		}
		if last >= domain.SerialMax {
			return domain.ErrCodesExhausted
		}

		order = domain.NewOrder(
			domain.OrderCode(day, last+1),
			client.ID, address.ID,
			client.FullName, client.Email, client.Phone, address.Snapshot(),
			lines,
		)
		if err := tx.InsertOrder(ctx, &order); err != nil {
			return err
		}

		for _, line := range lines {
			if err := tx.ReserveStock(ctx, line.ProductID, line.Quantity); err != nil {
				return err
			}
		}

		if err := tx.InsertOrderItems(ctx, order.ID, order.Items); err != nil {
			return fmt.Errorf("insert order items: %w", err)
		}
		if err := tx.ClearCart(ctx, cart); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}

		entry := domain.StatusEntry{OrderID: order.ID, Status: domain.StatusNew, ChangedBy: systemActor}
		if err := tx.AppendStatus(ctx, &entry); err != nil {
			return fmt.Errorf("append initial status: %w", err)
		}

		payload, err := json.Marshal(domain.OrderCreated{
			OrderID:    order.ID,
			Code:       order.Code,
			TotalCents: order.TotalCents,
			Items:      itemEvents(order.Items),
		})
		if err != nil {
			return fmt.Errorf("marshal order event: %w", err)
		}
		return tx.SaveEvent(ctx, order.Code, domain.EventOrderCreated, payload, tracing.Traceparent(ctx))
	})
	if err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// AppendStatus records a transition on the order's audit log. Appending
// the current status again is a no-op; the returned bool reports whether
// an entry was written.
func (s *Service) AppendStatus(ctx context.Context, orderCode string, status domain.Status, actor, comment string) (domain.StatusEntry, bool, error) {
	if !status.Valid() {
		return domain.StatusEntry{}, false, fmt.Errorf("invalid status %d", int(status))
	}
	if actor == "" {
		actor = systemActor
	}

	order, err := s.store.OrderByCode(ctx, orderCode)
	if err != nil {
		return domain.StatusEntry{}, false, err
	}

	current, err := s.store.CurrentStatus(ctx, order.ID)
	if err != nil {
		return domain.StatusEntry{}, false, err
	}
	if current.Status == status {
		return current, false, nil
	}

	entry := domain.StatusEntry{
		OrderID:   order.ID,
		Status:    status,
		ChangedBy: actor,
		Comment:   comment,
	}
	payload, err := json.Marshal(domain.OrderStatusChanged{
		OrderID: order.ID,
		Code:    order.Code,
		Status:  status.String(),
		Actor:   actor,
	})
	if err != nil {
		return domain.StatusEntry{}, false, fmt.Errorf("marshal status event: %w", err)
	}

	if err := s.store.AppendStatusLogged(ctx, order.Code, &entry, payload, tracing.Traceparent(ctx)); err != nil {
		return domain.StatusEntry{}, false, err
	}

	s.metrics.StatusTransitions.Inc()
	s.log.Info("order status appended", "code", order.Code, "status", status.String(), "actor", actor)
	return entry, true, nil
}

// CurrentStatus derives the order's effective status from the latest log
// entry.
func (s *Service) CurrentStatus(ctx context.Context, orderCode string) (domain.StatusEntry, error) {
	order, err := s.store.OrderByCode(ctx, orderCode)
	if err != nil {
		return domain.StatusEntry{}, err
	}
	return s.store.CurrentStatus(ctx, order.ID)
}

func (s *Service) OrderByCode(ctx context.Context, code string) (domain.Order, error) {
	return s.store.OrderByCode(ctx, code)
}

func (s *Service) Orders(ctx context.Context) ([]domain.Summary, error) {
	return s.store.Orders(ctx)
}

func (s *Service) StatusLog(ctx context.Context, orderCode string) ([]domain.StatusEntry, error) {
	order, err := s.store.OrderByCode(ctx, orderCode)
	if err != nil {
		return nil, err
	}
	return s.store.StatusLog(ctx, order.ID)
}

func itemEvents(items []domain.OrderItem) []domain.OrderItemEvent {
	out := make([]domain.OrderItemEvent, 0, len(items))
	for _, it := range items {
		out = append(out, domain.OrderItemEvent{
			ProductName: it.ProductName,
			PriceCents:  it.PriceCents,
			Quantity:    it.Quantity,
		})
	}
	return out
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, ErrClientNotFound):
		return "client_not_found"
	case errors.Is(err, ErrAddressMismatch):
		return "address_mismatch"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrCodesExhausted):
		return "codes_exhausted"
	case errors.Is(err, ErrCodeContention):
		return "code_contention"
	default:
		return "internal"
	}
}
