package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	cartdomain "github.com/mkarpenka/glowshop/internal/cart/domain"
	cartpg "github.com/mkarpenka/glowshop/internal/cart/infrastructure/postgres"
	"github.com/mkarpenka/glowshop/internal/checkout/application"
	"github.com/mkarpenka/glowshop/internal/checkout/domain"
	crmdomain "github.com/mkarpenka/glowshop/internal/crm/domain"
	crmpg "github.com/mkarpenka/glowshop/internal/crm/infrastructure/postgres"
	"github.com/mkarpenka/glowshop/pkg/postgres"
)

// Store persists orders, their status log and outbox events. Checkout runs
// as a single transaction through RunInTx; reads and status appends open
// their own short-lived transactions.
type Store struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewStore(log *slog.Logger, pool *pgxpool.Pool) *Store {
	return &Store{log: log, pool: pool}
}

func (s *Store) RunInTx(ctx context.Context, fn func(tx application.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(&storeTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) OrderByCode(ctx context.Context, code string) (domain.Order, error) {
	var (
		o                   domain.Order
		clientID, addressID *int64
	)
	err := s.pool.QueryRow(ctx, `SELECT id, code, client_id, address_id,
			snapshot_name, snapshot_email, snapshot_phone, snapshot_address,
			total_cents, created_at
		FROM orders WHERE code=$1`, code).
		Scan(&o.ID, &o.Code, &clientID, &addressID,
			&o.SnapshotName, &o.SnapshotEmail, &o.SnapshotPhone, &o.SnapshotAddress,
			&o.TotalCents, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Order{}, err
	}
	// References go NULL when the client or address is deleted; the
	// snapshot columns carry the order from then on.
	if clientID != nil {
		o.ClientID = *clientID
	}
	if addressID != nil {
		o.AddressID = *addressID
	}

	rows, err := s.pool.Query(ctx, `SELECT id, order_id, product_name, price_cents, quantity
		FROM order_items WHERE order_id=$1 ORDER BY id`, o.ID)
	if err != nil {
		return domain.Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductName, &it.PriceCents, &it.Quantity); err != nil {
			return domain.Order{}, err
		}
		o.Items = append(o.Items, it)
	}
	return o, rows.Err()
}

// Orders lists every order newest first with its effective status, derived
// from the latest log entry per order.
func (s *Store) Orders(ctx context.Context) ([]domain.Summary, error) {
	rows, err := s.pool.Query(ctx, `SELECT o.id, o.code, o.created_at, o.total_cents, l.status
		FROM orders o
		JOIN LATERAL (
			SELECT status FROM order_status_log
			WHERE order_id = o.id
			ORDER BY changed_at DESC, id DESC
			LIMIT 1
		) l ON true
		ORDER BY o.created_at DESC, o.id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Summary
	for rows.Next() {
		var sum domain.Summary
		if err := rows.Scan(&sum.ID, &sum.Code, &sum.CreatedAt, &sum.TotalCents, &sum.Status); err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *Store) CurrentStatus(ctx context.Context, orderID int64) (domain.StatusEntry, error) {
	var e domain.StatusEntry
	err := s.pool.QueryRow(ctx, `SELECT id, order_id, status, changed_at, changed_by, comment
		FROM order_status_log
		WHERE order_id=$1
		ORDER BY changed_at DESC, id DESC
		LIMIT 1`, orderID).
		Scan(&e.ID, &e.OrderID, &e.Status, &e.ChangedAt, &e.ChangedBy, &e.Comment)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.StatusEntry{}, domain.ErrNotFound
	}
	return e, err
}

func (s *Store) StatusLog(ctx context.Context, orderID int64) ([]domain.StatusEntry, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, order_id, status, changed_at, changed_by, comment
		FROM order_status_log
		WHERE order_id=$1
		ORDER BY changed_at, id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.StatusEntry
	for rows.Next() {
		var e domain.StatusEntry
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Status, &e.ChangedAt, &e.ChangedBy, &e.Comment); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// AppendStatusLogged writes the log entry and its outbox event atomically.
func (s *Store) AppendStatusLogged(ctx context.Context, orderCode string, entry *domain.StatusEntry, eventPayload []byte, traceparent string) error {
	return s.RunInTx(ctx, func(tx application.Tx) error {
		if err := tx.AppendStatus(ctx, entry); err != nil {
			return err
		}
		return tx.SaveEvent(ctx, orderCode, domain.EventOrderStatusChanged, eventPayload, traceparent)
	})
}

type storeTx struct {
	tx pgx.Tx
}

func (t *storeTx) CartByOwner(ctx context.Context, owner cartdomain.Owner) (cartdomain.Cart, error) {
	return cartpg.CartByOwner(ctx, t.tx, owner)
}

func (t *storeTx) CartLines(ctx context.Context, cartID int64) ([]cartdomain.Line, error) {
	return cartpg.CartLines(ctx, t.tx, cartID)
}

func (t *storeTx) ClientByID(ctx context.Context, clientID int64) (crmdomain.Client, error) {
	return crmpg.ClientByID(ctx, t.tx, clientID)
}

func (t *storeTx) AddressForClient(ctx context.Context, addressID, clientID int64) (crmdomain.DeliveryAddress, error) {
	return crmpg.AddressForClient(ctx, t.tx, addressID, clientID)
}

// LastOrderSerial reads the highest serial issued today. The returned value
// is only a candidate; the unique index on code is the real arbiter.
func (t *storeTx) LastOrderSerial(ctx context.Context, day time.Time) (int, error) {
	var code string
	err := t.tx.QueryRow(ctx, `SELECT code FROM orders
		WHERE code LIKE $1
		ORDER BY code DESC
		LIMIT 1`, domain.CodeDayPrefix(day)+"%").Scan(&code)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return domain.SerialOf(code)
}

func (t *storeTx) InsertOrder(ctx context.Context, o *domain.Order) error {
	err := t.tx.QueryRow(ctx, `INSERT INTO orders
			(code, client_id, address_id, snapshot_name, snapshot_email, snapshot_phone, snapshot_address, total_cents)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id, created_at`,
		o.Code, o.ClientID, o.AddressID,
		o.SnapshotName, o.SnapshotEmail, o.SnapshotPhone, o.SnapshotAddress,
		o.TotalCents).
		Scan(&o.ID, &o.CreatedAt)
	if postgres.UniqueViolation(err, "orders_code_key") {
		return application.ErrOrderCodeTaken
	}
	return err
}

func (t *storeTx) InsertOrderItems(ctx context.Context, orderID int64, items []domain.OrderItem) error {
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(`INSERT INTO order_items (order_id, product_name, price_cents, quantity)
			VALUES ($1,$2,$3,$4)`,
			orderID, it.ProductName, it.PriceCents, it.Quantity)
	}
	return t.tx.SendBatch(ctx, batch).Close()
}

// ReserveStock checks and decrements in one statement; the stock guard in
// the WHERE clause makes concurrent oversells impossible.
func (t *storeTx) ReserveStock(ctx context.Context, productID int64, quantity int) error {
	ct, err := t.tx.Exec(ctx, `UPDATE products SET stock = stock - $2
		WHERE id=$1 AND stock >= $2`, productID, quantity)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return application.ErrInsufficientStock
	}
	return nil
}

// ClearCart empties the cart. Session carts are dropped entirely so the
// browser token detaches from the purchase.
func (t *storeTx) ClearCart(ctx context.Context, cart cartdomain.Cart) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id=$1`, cart.ID); err != nil {
		return err
	}
	if _, anonymous := cart.Owner.Token(); anonymous {
		_, err := t.tx.Exec(ctx, `DELETE FROM carts WHERE id=$1`, cart.ID)
		return err
	}
	return nil
}

func (t *storeTx) AppendStatus(ctx context.Context, entry *domain.StatusEntry) error {
	return t.tx.QueryRow(ctx, `INSERT INTO order_status_log (order_id, status, changed_by, comment)
		VALUES ($1,$2,$3,$4)
		RETURNING id, changed_at`,
		entry.OrderID, entry.Status, entry.ChangedBy, entry.Comment).
		Scan(&entry.ID, &entry.ChangedAt)
}

func (t *storeTx) SaveEvent(ctx context.Context, aggregateID, eventType string, payload []byte, traceparent string) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, traceparent, status)
		VALUES ($1,$2,$3,$4,$5,'pending')`,
		"order", aggregateID, eventType, payload, traceparent)
	return err
}
