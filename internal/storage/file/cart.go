// Package file stores shopper carts as files in a local directory.
package file

import (
	"context"
	"net/url"
	"os"
	"path/filepath"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/cart"
)

// CartStore keeps each shopper's encoded cart in "<dir>/<userID>.json".
type CartStore struct {
	dir string
}

// NewCartStore creates dir if needed and returns a CartStore over it.
func NewCartStore(dir string) (*CartStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.Wrap(err, "create cart dir")
	}
	return &CartStore{dir: dir}, nil
}

// For returns the persister of userID's cart.
func (s *CartStore) For(userID string) cart.Persister {
	return &persister{path: filepath.Join(s.dir, url.PathEscape(userID)+".json")}
}

type persister struct {
	path string
}

var _ cart.Persister = (*persister)(nil)

func (p *persister) Load(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read cart")
	}
	return data, nil
}

// Save writes through a temporary file and renames it into place so a crash
// never leaves a truncated cart behind.
func (p *persister) Save(_ context.Context, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(p.path), ".cart-*")
	if err != nil {
		return errors.Wrap(err, "create temp")
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return errors.Wrap(err, "write temp")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return errors.Wrap(err, "close temp")
	}
	if err := os.Rename(tmp.Name(), p.path); err != nil {
		_ = os.Remove(tmp.Name())
		return errors.Wrap(err, "rename")
	}
	return nil
}
