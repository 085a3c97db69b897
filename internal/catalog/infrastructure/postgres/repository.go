package postgres

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkarpenka/glowshop/internal/catalog/application"
	"github.com/mkarpenka/glowshop/internal/catalog/domain"
	"github.com/mkarpenka/glowshop/pkg/postgres"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) Insert(ctx context.Context, p *domain.Product) error {
	err := r.pool.QueryRow(ctx, `INSERT INTO products (code, name, brand, price_cents, stock)
		VALUES ($1,$2,$3,$4,$5) RETURNING id, created_at`,
		p.Code, p.Name, p.Brand, p.PriceCents, p.Stock).
		Scan(&p.ID, &p.CreatedAt)
	if postgres.UniqueViolation(err, "products_code_key") {
		return application.ErrCodeTaken
	}
	return err
}

func (r *Repository) ByID(ctx context.Context, id int64) (domain.Product, error) {
	return r.scanOne(ctx, `SELECT id, code, name, brand, price_cents, stock, created_at
		FROM products WHERE id=$1`, id)
}

func (r *Repository) ByCode(ctx context.Context, code int) (domain.Product, error) {
	return r.scanOne(ctx, `SELECT id, code, name, brand, price_cents, stock, created_at
		FROM products WHERE code=$1`, code)
}

func (r *Repository) Restock(ctx context.Context, id int64, delta int) error {
	ct, err := r.pool.Exec(ctx, `UPDATE products SET stock = stock + $2 WHERE id=$1`, id, delta)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repository) ListInStockFirst(ctx context.Context) ([]domain.Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, name, brand, price_cents, stock, created_at
		FROM products ORDER BY (stock = 0), id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Brand, &p.PriceCents, &p.Stock, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repository) scanOne(ctx context.Context, sql string, arg any) (domain.Product, error) {
	var p domain.Product
	err := r.pool.QueryRow(ctx, sql, arg).
		Scan(&p.ID, &p.Code, &p.Name, &p.Brand, &p.PriceCents, &p.Stock, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Product{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Product{}, err
	}
	return p, nil
}
