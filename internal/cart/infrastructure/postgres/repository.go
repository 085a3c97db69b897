package postgres

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkarpenka/glowshop/internal/cart/domain"
	"github.com/mkarpenka/glowshop/pkg/postgres"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

// GetOrCreate is idempotent under a lost create race: the partial unique
// indexes on owner columns make the second insert fail, and the loser
// re-reads the winner's row.
func (r *Repository) GetOrCreate(ctx context.Context, owner domain.Owner) (domain.Cart, error) {
	cart, err := r.byOwner(ctx, r.pool, owner)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Cart{}, err
	}

	cart, err = r.insert(ctx, owner)
	if postgres.UniqueViolation(err, "") {
		return r.byOwner(ctx, r.pool, owner)
	}
	return cart, err
}

func (r *Repository) insert(ctx context.Context, owner domain.Owner) (domain.Cart, error) {
	cart := domain.Cart{Owner: owner}
	var row pgx.Row
	if clientID, ok := owner.ClientID(); ok {
		row = r.pool.QueryRow(ctx,
			`INSERT INTO carts (client_id) VALUES ($1) RETURNING id, created_at`, clientID)
	} else if token, ok := owner.Token(); ok {
		row = r.pool.QueryRow(ctx,
			`INSERT INTO carts (session_token) VALUES ($1) RETURNING id, created_at`, token)
	} else {
		return domain.Cart{}, domain.ErrNoOwner
	}
	if err := row.Scan(&cart.ID, &cart.CreatedAt); err != nil {
		return domain.Cart{}, err
	}
	return cart, nil
}

func (r *Repository) byOwner(ctx context.Context, q postgres.Querier, owner domain.Owner) (domain.Cart, error) {
	cart, err := CartByOwner(ctx, q, owner)
	if err != nil {
		return domain.Cart{}, err
	}
	return cart, nil
}

// CartByOwner resolves an owner's cart through any querier, including the
// checkout transaction.
func CartByOwner(ctx context.Context, q postgres.Querier, owner domain.Owner) (domain.Cart, error) {
	var (
		row  pgx.Row
		cart = domain.Cart{Owner: owner}
	)
	if clientID, ok := owner.ClientID(); ok {
		row = q.QueryRow(ctx, `SELECT id, created_at FROM carts WHERE client_id=$1`, clientID)
	} else if token, ok := owner.Token(); ok {
		row = q.QueryRow(ctx, `SELECT id, created_at FROM carts WHERE session_token=$1`, token)
	} else {
		return domain.Cart{}, domain.ErrNoOwner
	}
	err := row.Scan(&cart.ID, &cart.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Cart{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Cart{}, err
	}
	return cart, nil
}

// CartLines reads the cart's items joined with live product name, price
// and stock.
func CartLines(ctx context.Context, q postgres.Querier, cartID int64) ([]domain.Line, error) {
	rows, err := q.Query(ctx, `SELECT p.id, p.name, p.price_cents, ci.quantity, p.stock
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id=$1
		ORDER BY ci.id`, cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []domain.Line
	for rows.Next() {
		var l domain.Line
		if err := rows.Scan(&l.ProductID, &l.Name, &l.PriceCents, &l.Quantity, &l.Stock); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *Repository) AddOne(ctx context.Context, cartID, productID int64) error {
	return r.bumpQuantity(ctx, cartID, productID, func(current, stock int) (int, error) {
		if current+1 > stock {
			return 0, domain.ErrOutOfStock
		}
		return current + 1, nil
	})
}

func (r *Repository) SetQuantity(ctx context.Context, cartID, productID int64, quantity int) error {
	return r.bumpQuantity(ctx, cartID, productID, func(_, stock int) (int, error) {
		if quantity > stock {
			return 0, domain.ErrOutOfStock
		}
		return quantity, nil
	})
}

// bumpQuantity runs one short transaction: lock the product row, read the
// current line, compute the next quantity against live stock, upsert.
func (r *Repository) bumpQuantity(ctx context.Context, cartID, productID int64, next func(current, stock int) (int, error)) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var stock int
	err = tx.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1 FOR UPDATE`, productID).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}

	var current int
	err = tx.QueryRow(ctx, `SELECT quantity FROM cart_items WHERE cart_id=$1 AND product_id=$2`,
		cartID, productID).Scan(&current)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	quantity, err := next(current, stock)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `INSERT INTO cart_items (cart_id, product_id, quantity)
		VALUES ($1,$2,$3)
		ON CONFLICT (cart_id, product_id) DO UPDATE SET quantity=$3`,
		cartID, productID, quantity)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) Remove(ctx context.Context, cartID, productID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM cart_items WHERE cart_id=$1 AND product_id=$2`,
		cartID, productID)
	return err
}

func (r *Repository) Lines(ctx context.Context, cartID int64) ([]domain.Line, error) {
	return CartLines(ctx, r.pool, cartID)
}
