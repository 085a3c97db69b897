package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/mkarpenka/glowshop/internal/crm/domain"
	"github.com/mkarpenka/glowshop/pkg/postgres"
)

// Queries run against any pgx querier so the checkout transaction can read
// clients and addresses through the same connection it writes orders on.

func ClientByID(ctx context.Context, q postgres.Querier, id int64) (domain.Client, error) {
	var c domain.Client
	err := q.QueryRow(ctx, `SELECT id, full_name, email, phone, is_active FROM clients WHERE id=$1`, id).
		Scan(&c.ID, &c.FullName, &c.Email, &c.Phone, &c.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Client{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Client{}, err
	}
	return c, nil
}

// AddressForClient returns the address only when it belongs to the client.
func AddressForClient(ctx context.Context, q postgres.Querier, addressID, clientID int64) (domain.DeliveryAddress, error) {
	var a domain.DeliveryAddress
	err := q.QueryRow(ctx, `SELECT id, client_id, city, street, post_office, is_primary
		FROM delivery_addresses WHERE id=$1 AND client_id=$2`, addressID, clientID).
		Scan(&a.ID, &a.ClientID, &a.City, &a.Street, &a.PostOffice, &a.IsPrimary)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DeliveryAddress{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.DeliveryAddress{}, err
	}
	return a, nil
}

func AddressesByClient(ctx context.Context, q postgres.Querier, clientID int64) ([]domain.DeliveryAddress, error) {
	rows, err := q.Query(ctx, `SELECT id, client_id, city, street, post_office, is_primary
		FROM delivery_addresses WHERE client_id=$1 ORDER BY is_primary DESC, id`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.DeliveryAddress
	for rows.Next() {
		var a domain.DeliveryAddress
		if err := rows.Scan(&a.ID, &a.ClientID, &a.City, &a.Street, &a.PostOffice, &a.IsPrimary); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
