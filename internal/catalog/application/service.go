package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mkarpenka/glowshop/internal/catalog/domain"
)

// codeAttempts caps rejection sampling; hitting it means the 5-digit space
// is effectively saturated.
const codeAttempts = 100

type Service struct {
	log  *slog.Logger
	repo ProductRepository
}

func NewService(log *slog.Logger, repo ProductRepository) *Service {
	return &Service{log: log, repo: repo}
}

// CreateProduct inserts a product under a freshly drawn catalog code,
// redrawing while the storage unique constraint reports a collision.
func (s *Service) CreateProduct(ctx context.Context, name, brand string, priceCents int64, stock int) (domain.Product, error) {
	if priceCents < 0 {
		return domain.Product{}, fmt.Errorf("price must not be negative")
	}
	if stock < 0 {
		return domain.Product{}, fmt.Errorf("stock must not be negative")
	}

	p := domain.Product{
		Name:       name,
		Brand:      brand,
		PriceCents: priceCents,
		Stock:      stock,
	}
	for attempt := 0; attempt < codeAttempts; attempt++ {
		p.Code = domain.NewCatalogCode()
		err := s.repo.Insert(ctx, &p)
		if errors.Is(err, ErrCodeTaken) {
			continue
		}
		if err != nil {
			return domain.Product{}, fmt.Errorf("insert product: %w", err)
		}
		s.log.Info("product created", "product_id", p.ID, "code", p.Code)
		return p, nil
	}
	s.log.Error("catalog code space saturated", "attempts", codeAttempts)
	return domain.Product{}, domain.ErrCodesExhausted
}

func (s *Service) Product(ctx context.Context, id int64) (domain.Product, error) {
	return s.repo.ByID(ctx, id)
}

func (s *Service) ProductByCode(ctx context.Context, code int) (domain.Product, error) {
	return s.repo.ByCode(ctx, code)
}

// Restock adds delta units to a product's available stock.
func (s *Service) Restock(ctx context.Context, id int64, delta int) error {
	if delta <= 0 {
		return fmt.Errorf("restock delta must be positive")
	}
	if err := s.repo.Restock(ctx, id, delta); err != nil {
		return err
	}
	s.log.Info("product restocked", "product_id", id, "delta", delta)
	return nil
}

// ListInStockFirst is the storefront listing order: sellable products
// first, sold-out last. Callers wanting another order query the repository
// directly.
func (s *Service) ListInStockFirst(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListInStockFirst(ctx)
}
