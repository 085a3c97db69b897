package application

import (
	"context"
	"errors"

	"github.com/mkarpenka/glowshop/internal/catalog/domain"
)

// ErrCodeTaken reports a catalog-code collision on insert; the service
// redraws and retries.
var ErrCodeTaken = errors.New("catalog code taken")

type ProductRepository interface {
	Insert(ctx context.Context, p *domain.Product) error
	ByID(ctx context.Context, id int64) (domain.Product, error)
	ByCode(ctx context.Context, code int) (domain.Product, error)
	Restock(ctx context.Context, id int64, delta int) error
	ListInStockFirst(ctx context.Context) ([]domain.Product, error)
}
