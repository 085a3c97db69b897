package application

import (
	"context"
	"errors"
	"time"

	cartdomain "github.com/mkarpenka/glowshop/internal/cart/domain"
	"github.com/mkarpenka/glowshop/internal/checkout/domain"
	crmdomain "github.com/mkarpenka/glowshop/internal/crm/domain"
)

// Checkout error taxonomy. Everything here is recovered at the request
// boundary and turned into a user-facing message.
var (
	ErrEmptyCart         = errors.New("cart is empty")
	ErrClientNotFound    = errors.New("client not found")
	ErrAddressMismatch   = errors.New("address not found or not owned by client")
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrOrderCodeTaken is internal feedback from the storage unique
	// constraint; the assembler retries with the next serial.
	ErrOrderCodeTaken = errors.New("order code taken")

	// ErrCodeContention is what callers see when every retry lost the
	// order-code race; the checkout is safe to resubmit.
	ErrCodeContention = errors.New("order code contention")
)

// Store is the checkout persistence port. RunInTx executes fn inside one
// database transaction: fn's effects become visible all together on commit
// or not at all.
type Store interface {
	RunInTx(ctx context.Context, fn func(tx Tx) error) error

	OrderByCode(ctx context.Context, code string) (domain.Order, error)
	Orders(ctx context.Context) ([]domain.Summary, error)
	CurrentStatus(ctx context.Context, orderID int64) (domain.StatusEntry, error)
	StatusLog(ctx context.Context, orderID int64) ([]domain.StatusEntry, error)

	// AppendStatusLogged appends one status entry plus its outbox event in
	// a short transaction of its own, independent of order assembly. The
	// order code keys the event to its aggregate.
	AppendStatusLogged(ctx context.Context, orderCode string, entry *domain.StatusEntry, eventPayload []byte, traceparent string) error
}

// Tx is the set of operations available inside the assembly transaction.
type Tx interface {
	CartByOwner(ctx context.Context, owner cartdomain.Owner) (cartdomain.Cart, error)
	CartLines(ctx context.Context, cartID int64) ([]cartdomain.Line, error)
	ClientByID(ctx context.Context, clientID int64) (crmdomain.Client, error)
	AddressForClient(ctx context.Context, addressID, clientID int64) (crmdomain.DeliveryAddress, error)

	// LastOrderSerial returns the highest serial issued on the given day,
	// zero when none.
	LastOrderSerial(ctx context.Context, day time.Time) (int, error)
	InsertOrder(ctx context.Context, o *domain.Order) error
	InsertOrderItems(ctx context.Context, orderID int64, items []domain.OrderItem) error

	// ReserveStock atomically decrements stock when enough is available
	// and fails with ErrInsufficientStock otherwise, mutating nothing.
	ReserveStock(ctx context.Context, productID int64, quantity int) error

	// ClearCart deletes the cart's items; anonymous session carts are
	// dropped entirely so the token detaches.
	ClearCart(ctx context.Context, cart cartdomain.Cart) error

	AppendStatus(ctx context.Context, entry *domain.StatusEntry) error
	SaveEvent(ctx context.Context, aggregateID, eventType string, payload []byte, traceparent string) error
}
