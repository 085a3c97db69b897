package domain

import (
	"errors"
	"time"

	cartdomain "github.com/mkarpenka/glowshop/internal/cart/domain"
)

var ErrNotFound = errors.New("order not found")

// Order is immutable after creation apart from its derived current status.
// ClientID and AddressID are reporting references that read as zero once
// the underlying record is deleted; the Snapshot fields are the
// contractual source of truth either way.
type Order struct {
	ID        int64
	Code      string
	ClientID  int64
	AddressID int64

	SnapshotName    string
	SnapshotEmail   string
	SnapshotPhone   string
	SnapshotAddress string

	TotalCents int64
	CreatedAt  time.Time
	Items      []OrderItem
}

// OrderItem is a frozen copy of the product at purchase time, deliberately
// holding the name rather than a product reference so catalog edits never
// rewrite history.
type OrderItem struct {
	ID          int64
	OrderID     int64
	ProductName string
	PriceCents  int64
	Quantity    int
}

// Summary is the back-office list row: the order plus its effective status.
type Summary struct {
	ID         int64
	Code       string
	CreatedAt  time.Time
	TotalCents int64
	Status     Status
}

// NewOrder freezes cart lines and client/address data into an order. Total
// is the integer sum of price*quantity; inputs are already minor units so
// no rounding ever happens.
func NewOrder(code string, clientID, addressID int64, name, email, phone, address string, lines []cartdomain.Line) Order {
	items := make([]OrderItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, OrderItem{
			ProductName: l.Name,
			PriceCents:  l.PriceCents,
			Quantity:    l.Quantity,
		})
	}
	return Order{
		Code:            code,
		ClientID:        clientID,
		AddressID:       addressID,
		SnapshotName:    name,
		SnapshotEmail:   email,
		SnapshotPhone:   phone,
		SnapshotAddress: address,
		TotalCents:      cartdomain.Total(lines),
		Items:           items,
	}
}
