package address

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// Service applies address book rules on top of a Repository. Every mutating
// method returns the refreshed list.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a Service backed by repo.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// List returns the shopper's addresses.
func (s *Service) List(ctx context.Context, userID string) ([]Address, error) {
	list, err := s.repo.List(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list addresses")
	}
	return list, nil
}

// Add stores a new address. It becomes the default only when it is the
// shopper's first address.
func (s *Service) Add(ctx context.Context, userID string, a Address) (*Address, []Address, error) {
	if err := a.Validate(); err != nil {
		return nil, nil, err
	}
	existing, err := s.List(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	a.ID = uuid.NewString()
	a.UserID = userID
	a.IsDefault = len(existing) == 0
	a.CreatedAt = s.now().UTC()
	if err := s.repo.Create(ctx, &a); err != nil {
		return nil, nil, errors.Wrap(err, "create address")
	}

	list, err := s.List(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return &a, list, nil
}

// Update replaces the editable fields of an address in place. The default
// flag is left as is; use SetDefault to change it.
func (s *Service) Update(ctx context.Context, userID string, a Address) ([]Address, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	existing, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	cur, ok := find(existing, a.ID)
	if !ok {
		return nil, ErrNotFound
	}

	a.UserID = userID
	a.IsDefault = cur.IsDefault
	a.CreatedAt = cur.CreatedAt
	if err := s.repo.Update(ctx, &a); err != nil {
		return nil, errors.Wrap(err, "update address")
	}
	return s.List(ctx, userID)
}

// Delete removes an address. Deleting the default promotes the first
// remaining address, if any.
func (s *Service) Delete(ctx context.Context, userID, id string) ([]Address, error) {
	existing, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	cur, ok := find(existing, id)
	if !ok {
		return nil, ErrNotFound
	}

	if err := s.repo.Delete(ctx, userID, id); err != nil {
		return nil, errors.Wrap(err, "delete address")
	}

	list, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cur.IsDefault && len(list) > 0 && !hasDefault(list) {
		if err := s.repo.SetDefault(ctx, userID, list[0].ID); err != nil {
			return nil, errors.Wrap(err, "promote default address")
		}
		return s.List(ctx, userID)
	}
	return list, nil
}

// SetDefault makes id the shopper's only default address.
func (s *Service) SetDefault(ctx context.Context, userID, id string) ([]Address, error) {
	existing, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, ok := find(existing, id); !ok {
		return nil, ErrNotFound
	}
	if err := s.repo.SetDefault(ctx, userID, id); err != nil {
		return nil, errors.Wrap(err, "set default address")
	}
	return s.List(ctx, userID)
}

func find(list []Address, id string) (Address, bool) {
	for _, a := range list {
		if a.ID == id {
			return a, true
		}
	}
	return Address{}, false
}

func hasDefault(list []Address) bool {
	for _, a := range list {
		if a.IsDefault {
			return true
		}
	}
	return false
}
