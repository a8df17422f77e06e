// Package address implements the shopper's address book.
package address

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when an address does not exist for the shopper.
var ErrNotFound = errors.New("address not found")

// Type labels an address.
type Type string

const (
	TypeHome  Type = "home"
	TypeWork  Type = "work"
	TypeOther Type = "other"
)

// Address is a shipping destination owned by one shopper.
type Address struct {
	ID          string
	UserID      string
	Name        string
	Mobile      string
	Pincode     string
	Area        string
	City        string
	State       string
	AddressType Type
	IsDefault   bool
	CreatedAt   time.Time
}

// Flatten renders the address as the single line snapshotted onto orders.
func (a Address) Flatten() string {
	return fmt.Sprintf("%s, %s, %s, %s - %s, Mobile: %s",
		a.Name, a.Area, a.City, a.State, a.Pincode, a.Mobile)
}

// ValidationError reports a malformed address field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Validate checks the shopper-editable fields.
func (a Address) Validate() error {
	switch {
	case strings.TrimSpace(a.Name) == "":
		return &ValidationError{Field: "name", Message: "name is required"}
	case !digits(a.Mobile, 10):
		return &ValidationError{Field: "mobile", Message: "mobile must be a 10 digit number"}
	case !digits(a.Pincode, 6):
		return &ValidationError{Field: "pincode", Message: "pincode must be a 6 digit number"}
	case strings.TrimSpace(a.Area) == "":
		return &ValidationError{Field: "area", Message: "area is required"}
	case strings.TrimSpace(a.City) == "":
		return &ValidationError{Field: "city", Message: "city is required"}
	case strings.TrimSpace(a.State) == "":
		return &ValidationError{Field: "state", Message: "state is required"}
	}
	switch a.AddressType {
	case TypeHome, TypeWork, TypeOther:
	default:
		return &ValidationError{Field: "addressType", Message: "address type must be home, work or other"}
	}
	return nil
}

func digits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Repository persists addresses. List returns a user's addresses in stable
// creation order.
type Repository interface {
	List(ctx context.Context, userID string) ([]Address, error)
	Create(ctx context.Context, a *Address) error
	Update(ctx context.Context, a *Address) error
	Delete(ctx context.Context, userID, id string) error
	// SetDefault makes id the only default address of userID. An empty id
	// clears the default.
	SetDefault(ctx context.Context, userID, id string) error
}
