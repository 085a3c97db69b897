package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mkarpenka/glowshop/internal/cart/domain"
)

type Service struct {
	log  *slog.Logger
	repo CartRepository
}

func NewService(log *slog.Logger, repo CartRepository) *Service {
	return &Service{log: log, repo: repo}
}

// View is the cart page payload: current lines plus the running total.
type View struct {
	CartID     int64
	Lines      []domain.Line
	TotalCents int64
}

// AddProduct puts one more unit of the product into the owner's cart,
// creating the cart lazily. The increment is refused when it would exceed
// live stock.
func (s *Service) AddProduct(ctx context.Context, owner domain.Owner, productID int64) error {
	if !owner.Valid() {
		return domain.ErrNoOwner
	}
	cart, err := s.repo.GetOrCreate(ctx, owner)
	if err != nil {
		return fmt.Errorf("resolve cart: %w", err)
	}
	if err := s.repo.AddOne(ctx, cart.ID, productID); err != nil {
		return err
	}
	s.log.Debug("cart item added", "owner", owner.String(), "product_id", productID)
	return nil
}

// SetQuantity pins a line to an exact quantity. Zero removes the line; a
// zero-quantity row is never persisted.
func (s *Service) SetQuantity(ctx context.Context, owner domain.Owner, productID int64, quantity int) error {
	if !owner.Valid() {
		return domain.ErrNoOwner
	}
	if quantity < 0 {
		return domain.ErrBadQuantity
	}
	cart, err := s.repo.GetOrCreate(ctx, owner)
	if err != nil {
		return fmt.Errorf("resolve cart: %w", err)
	}
	if quantity == 0 {
		return s.repo.Remove(ctx, cart.ID, productID)
	}
	return s.repo.SetQuantity(ctx, cart.ID, productID, quantity)
}

func (s *Service) RemoveProduct(ctx context.Context, owner domain.Owner, productID int64) error {
	if !owner.Valid() {
		return domain.ErrNoOwner
	}
	cart, err := s.repo.GetOrCreate(ctx, owner)
	if err != nil {
		return fmt.Errorf("resolve cart: %w", err)
	}
	return s.repo.Remove(ctx, cart.ID, productID)
}

func (s *Service) View(ctx context.Context, owner domain.Owner) (View, error) {
	if !owner.Valid() {
		return View{}, domain.ErrNoOwner
	}
	cart, err := s.repo.GetOrCreate(ctx, owner)
	if err != nil {
		return View{}, fmt.Errorf("resolve cart: %w", err)
	}
	lines, err := s.repo.Lines(ctx, cart.ID)
	if err != nil {
		return View{}, err
	}
	return View{CartID: cart.ID, Lines: lines, TotalCents: domain.Total(lines)}, nil
}
