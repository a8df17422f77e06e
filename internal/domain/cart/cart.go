// Package cart implements the shopper's cart: a stock-aware aggregate of
// variant-keyed lines that is persisted across sessions.
package cart

import (
	"context"
	"net/url"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Key identifies a cart line. Two adds with the same key merge into one line.
type Key struct {
	ProductID string
	Size      string
	Color     string
}

// String encodes the key as "productId:size:color" with each component
// query-escaped, so it is usable as a single URL path segment.
func (k Key) String() string {
	return url.QueryEscape(k.ProductID) + ":" + url.QueryEscape(k.Size) + ":" + url.QueryEscape(k.Color)
}

// ParseKey decodes a key produced by Key.String.
func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return Key{}, errors.Errorf("malformed line key %q", s)
	}
	var (
		k   Key
		err error
	)
	if k.ProductID, err = url.QueryUnescape(parts[0]); err != nil {
		return Key{}, errors.Wrap(err, "product id")
	}
	if k.Size, err = url.QueryUnescape(parts[1]); err != nil {
		return Key{}, errors.Wrap(err, "size")
	}
	if k.Color, err = url.QueryUnescape(parts[2]); err != nil {
		return Key{}, errors.Wrap(err, "color")
	}
	if k.ProductID == "" {
		return Key{}, errors.Errorf("malformed line key %q", s)
	}
	return k, nil
}

// Line is a single cart entry: one product variant and the quantity selected.
// Quantity is always in (0, StockCeiling].
type Line struct {
	ProductID    string
	Name         string
	Size         string
	Color        string
	BatchNo      string
	UnitPrice    decimal.Decimal
	Quantity     int
	StockCeiling int
}

// Key returns the identity of the line.
func (l Line) Key() Key {
	return Key{ProductID: l.ProductID, Size: l.Size, Color: l.Color}
}

// Total returns UnitPrice * Quantity.
func (l Line) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// ValidationError reports a line that cannot be added to the cart. Message is
// meant for the shopper.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Persister stores the encoded line list under a single durable key.
// Load returns (nil, nil) when nothing has been stored yet.
type Persister interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

func validate(l Line) error {
	switch {
	case l.ProductID == "":
		return &ValidationError{Field: "productId", Message: "product is required"}
	case l.Size == "":
		return &ValidationError{Field: "size", Message: "please select a size"}
	case l.Color == "":
		return &ValidationError{Field: "color", Message: "please select a color"}
	case l.StockCeiling <= 0:
		return &ValidationError{Field: "stock", Message: "this variant is out of stock"}
	case l.UnitPrice.IsNegative():
		return &ValidationError{Field: "unitPrice", Message: "price must not be negative"}
	}
	return nil
}

// clamp bounds n to [1, ceiling].
func clamp(n, ceiling int) int {
	if n < 1 {
		n = 1
	}
	if n > ceiling {
		n = ceiling
	}
	return n
}
