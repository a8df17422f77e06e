package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// ErrVariantNotFound is returned when a product has no variant with the
// requested size and color.
var ErrVariantNotFound = errors.New("variant not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID       string
	Name     string
	Price    decimal.Decimal
	Category string
	Variants []Variant
}

// Variant is a (size, color, batch) combination of a product with its own
// stock count.
type Variant struct {
	Size    string
	Color   string
	BatchNo string
	Stock   int
}

// Variant returns the variant matching size and color.
func (p *Product) Variant(size, color string) (Variant, error) {
	for _, v := range p.Variants {
		if v.Size == size && v.Color == color {
			return v, nil
		}
	}
	return Variant{}, ErrVariantNotFound
}

// Repository defines read operations for the product catalog.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
