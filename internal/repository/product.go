package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/product"
)

const (
	getProductsByIDsSQL = `SELECT id, name, price, category
		FROM products WHERE id = ANY($1) ORDER BY id`

	getVariantsByProductIDsSQL = `SELECT product_id, size, color, batch_no, stock
		FROM product_variants WHERE product_id = ANY($1) ORDER BY product_id, size, color`

	upsertProductSQL = `INSERT INTO products (id, name, price, category)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price, category = EXCLUDED.category`

	upsertVariantSQL = `INSERT INTO product_variants (product_id, size, color, batch_no, stock)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (product_id, size, color) DO UPDATE SET batch_no = EXCLUDED.batch_no, stock = EXCLUDED.stock`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// GetByID returns a single product with its variants.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	products, err := r.GetByIDs(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, product.ErrNotFound
	}
	return &products[0], nil
}

// GetByIDs returns the products matching any of ids, each with its variants.
// Unknown ids are skipped.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	if len(products) == 0 {
		return products, nil
	}

	rows, err = r.pool.Query(ctx, getVariantsByProductIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting variants: %w", err)
	}
	variants, err := pgx.CollectRows(rows, scanVariant)
	if err != nil {
		return nil, fmt.Errorf("getting variants: %w", err)
	}

	byProduct := make(map[string]int, len(products))
	for i, p := range products {
		byProduct[p.ID] = i
	}
	for _, v := range variants {
		if i, ok := byProduct[v.productID]; ok {
			products[i].Variants = append(products[i].Variants, v.Variant)
		}
	}
	return products, nil
}

// Upsert inserts or replaces p and its variants in one transaction.
func (r *ProductRepository) Upsert(ctx context.Context, p product.Product) (rerr error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if rerr != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err := tx.Exec(ctx, upsertProductSQL, p.ID, p.Name, p.Price, p.Category); err != nil {
		return fmt.Errorf("upserting product %q: %w", p.ID, err)
	}
	for _, v := range p.Variants {
		if _, err := tx.Exec(ctx, upsertVariantSQL, p.ID, v.Size, v.Color, v.BatchNo, v.Stock); err != nil {
			return fmt.Errorf("upserting variant %s/%s of %q: %w", v.Size, v.Color, p.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit")
	}
	return nil
}

type variantRow struct {
	productID string
	product.Variant
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p     product.Product
		price decimal.Decimal
	)
	err := row.Scan(&p.ID, &p.Name, &price, &p.Category)
	p.Price = price
	return p, err
}

func scanVariant(row pgx.CollectableRow) (variantRow, error) {
	var (
		v     variantRow
		stock int32
	)
	err := row.Scan(&v.productID, &v.Size, &v.Color, &v.BatchNo, &stock)
	v.Stock = int(stock)
	return v, err
}
