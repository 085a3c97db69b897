package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrNoOwner     = errors.New("cart owner not set")
	ErrOutOfStock  = errors.New("quantity exceeds available stock")
	ErrBadQuantity = errors.New("quantity must not be negative")
)

type OwnerKind int

const (
	OwnerClient OwnerKind = iota + 1
	OwnerSession
)

// Owner is the tagged either-or of who holds a cart: an authenticated
// client or an anonymous session token. Exactly one side is ever set.
type Owner struct {
	kind     OwnerKind
	clientID int64
	token    string
}

func ClientOwner(clientID int64) Owner {
	return Owner{kind: OwnerClient, clientID: clientID}
}

func SessionOwner(token string) Owner {
	return Owner{kind: OwnerSession, token: token}
}

func (o Owner) Kind() OwnerKind { return o.kind }

func (o Owner) ClientID() (int64, bool) {
	return o.clientID, o.kind == OwnerClient
}

func (o Owner) Token() (string, bool) {
	return o.token, o.kind == OwnerSession
}

func (o Owner) Valid() bool {
	switch o.kind {
	case OwnerClient:
		return o.clientID > 0
	case OwnerSession:
		return o.token != ""
	}
	return false
}

func (o Owner) String() string {
	switch o.kind {
	case OwnerClient:
		return fmt.Sprintf("client:%d", o.clientID)
	case OwnerSession:
		return fmt.Sprintf("session:%s", o.token)
	}
	return "unowned"
}

type Cart struct {
	ID        int64
	Owner     Owner
	CreatedAt time.Time
}

// Line is a cart item joined with the product fields checkout needs. Price
// and name here are live catalog values; they are frozen onto the order
// only at assembly time.
type Line struct {
	ProductID  int64
	Name       string
	PriceCents int64
	Quantity   int
	Stock      int
}

// Total sums price*quantity over lines in integer minor units.
func Total(lines []Line) int64 {
	var total int64
	for _, l := range lines {
		total += l.PriceCents * int64(l.Quantity)
	}
	return total
}
