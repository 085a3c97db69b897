package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound covers both a missing client and an address that does not
// belong to the client asking for it.
var ErrNotFound = errors.New("not found")

// Client is the buyer identity referenced by orders. Orders snapshot the
// contact fields at creation time, so later edits here never change a
// placed order.
type Client struct {
	ID       int64
	FullName string
	Email    string
	Phone    string
	IsActive bool
}

// DeliveryAddress belongs to exactly one client.
type DeliveryAddress struct {
	ID         int64
	ClientID   int64
	City       string
	Street     string
	PostOffice string
	IsPrimary  bool
}

// Snapshot renders the address the way it is frozen onto an order.
func (a DeliveryAddress) Snapshot() string {
	return fmt.Sprintf("%s, %s", a.City, a.Street)
}
