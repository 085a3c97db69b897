package application

import (
	"context"

	"github.com/mkarpenka/glowshop/internal/cart/domain"
)

// CartRepository runs each mutation as its own short transaction; no locks
// are held between requests.
type CartRepository interface {
	// GetOrCreate resolves the owner's cart, creating it on first touch.
	// Concurrent first touches must collapse to one cart per owner.
	GetOrCreate(ctx context.Context, owner domain.Owner) (domain.Cart, error)
	AddOne(ctx context.Context, cartID, productID int64) error
	SetQuantity(ctx context.Context, cartID, productID int64, quantity int) error
	Remove(ctx context.Context, cartID, productID int64) error
	Lines(ctx context.Context, cartID int64) ([]domain.Line, error)
}
