package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/address"
)

const (
	addressColumns = `id, user_id, name, mobile, pincode, area, city, state, address_type, is_default, created_at`

	listAddressesSQL = `SELECT ` + addressColumns + `
		FROM addresses WHERE user_id = $1 ORDER BY created_at, id`

	createAddressSQL = `INSERT INTO addresses (` + addressColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	updateAddressSQL = `UPDATE addresses
		SET name = $3, mobile = $4, pincode = $5, area = $6, city = $7, state = $8, address_type = $9
		WHERE id = $1 AND user_id = $2`

	deleteAddressSQL = `DELETE FROM addresses WHERE id = $1 AND user_id = $2`

	clearDefaultAddressSQL = `UPDATE addresses SET is_default = FALSE WHERE user_id = $1 AND is_default`

	setDefaultAddressSQL = `UPDATE addresses SET is_default = TRUE WHERE id = $1 AND user_id = $2`
)

var _ address.Repository = (*AddressRepository)(nil)

// AddressRepository implements address.Repository backed by PostgreSQL.
type AddressRepository struct {
	pool *pgxpool.Pool
}

// NewAddressRepository returns an AddressRepository that uses the given pool.
func NewAddressRepository(pool *pgxpool.Pool) *AddressRepository {
	return &AddressRepository{pool: pool}
}

// List returns userID's addresses, oldest first.
func (r *AddressRepository) List(ctx context.Context, userID string) ([]address.Address, error) {
	rows, err := r.pool.Query(ctx, listAddressesSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing addresses of %q: %w", userID, err)
	}
	list, err := pgx.CollectRows(rows, scanAddress)
	if err != nil {
		return nil, fmt.Errorf("listing addresses of %q: %w", userID, err)
	}
	return list, nil
}

// Create inserts a.
func (r *AddressRepository) Create(ctx context.Context, a *address.Address) error {
	_, err := r.pool.Exec(ctx, createAddressSQL,
		a.ID, a.UserID, a.Name, a.Mobile, a.Pincode, a.Area, a.City, a.State,
		string(a.AddressType), a.IsDefault, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating address %q: %w", a.ID, err)
	}
	return nil
}

// Update rewrites the editable fields of a.
func (r *AddressRepository) Update(ctx context.Context, a *address.Address) error {
	tag, err := r.pool.Exec(ctx, updateAddressSQL,
		a.ID, a.UserID, a.Name, a.Mobile, a.Pincode, a.Area, a.City, a.State, string(a.AddressType),
	)
	if err != nil {
		return fmt.Errorf("updating address %q: %w", a.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return address.ErrNotFound
	}
	return nil
}

// Delete removes address id of userID.
func (r *AddressRepository) Delete(ctx context.Context, userID, id string) error {
	tag, err := r.pool.Exec(ctx, deleteAddressSQL, id, userID)
	if err != nil {
		return fmt.Errorf("deleting address %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return address.ErrNotFound
	}
	return nil
}

// SetDefault clears the current default and marks id, in one transaction.
// An empty id only clears.
func (r *AddressRepository) SetDefault(ctx context.Context, userID, id string) (rerr error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if rerr != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err := tx.Exec(ctx, clearDefaultAddressSQL, userID); err != nil {
		return fmt.Errorf("clearing default address of %q: %w", userID, err)
	}
	if id != "" {
		tag, err := tx.Exec(ctx, setDefaultAddressSQL, id, userID)
		if err != nil {
			return fmt.Errorf("setting default address %q: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			return address.ErrNotFound
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit")
	}
	return nil
}

func scanAddress(row pgx.CollectableRow) (address.Address, error) {
	var (
		a           address.Address
		addressType string
	)
	err := row.Scan(
		&a.ID, &a.UserID, &a.Name, &a.Mobile, &a.Pincode, &a.Area, &a.City, &a.State,
		&addressType, &a.IsDefault, &a.CreatedAt,
	)
	a.AddressType = address.Type(addressType)
	return a, err
}
