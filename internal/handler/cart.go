package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/cart"
)

var errLineNotFound = errors.New("cart line not found")

func (h *Handler) writeCart(w http.ResponseWriter, c *cart.Store) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCart(e, c) })
}

// GetCart handles GET /cart.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	s, release, ok := h.session(w, r)
	if !ok {
		return
	}
	defer release()
	h.writeCart(w, s.Cart)
}

// AddLine handles POST /cart/lines {productId, size, color, quantity}.
// Name, price, batch and stock come from the catalog, never the client.
func (h *Handler) AddLine(w http.ResponseWriter, r *http.Request) {
	s, release, ok := h.session(w, r)
	if !ok {
		return
	}
	defer release()

	line := cart.Line{Quantity: 1}
	if err := decodeBody(w, r, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "productId":
			line.ProductID, err = d.Str()
		case "size":
			line.Size, err = d.Str()
		case "color":
			line.Color, err = d.Str()
		case "quantity":
			line.Quantity, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}
	if line.ProductID == "" {
		writeError(w, r, &cart.ValidationError{Field: "productId", Message: "product is required"})
		return
	}

	p, err := h.products.GetByID(r.Context(), line.ProductID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	line.Name = p.Name
	line.UnitPrice = p.Price
	if line.Size != "" && line.Color != "" {
		v, err := p.Variant(line.Size, line.Color)
		if err != nil {
			writeError(w, r, err)
			return
		}
		line.BatchNo = v.BatchNo
		line.StockCeiling = v.Stock
	}

	if err := s.Cart.Add(line); err != nil {
		writeError(w, r, err)
		return
	}
	h.writeCart(w, s.Cart)
}

func lineKey(r *http.Request) (cart.Key, error) {
	k, err := cart.ParseKey(chi.URLParam(r, "key"))
	if err != nil {
		return cart.Key{}, errors.Wrap(errMalformed, err.Error())
	}
	return k, nil
}

// SetLineQuantity handles PUT /cart/lines/{key} {quantity}. Zero or less
// removes the line.
func (h *Handler) SetLineQuantity(w http.ResponseWriter, r *http.Request) {
	s, release, ok := h.session(w, r)
	if !ok {
		return
	}
	defer release()
	key, err := lineKey(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var (
		quantity int
		set      bool
	)
	if err := decodeBody(w, r, func(d *jx.Decoder, k string) (err error) {
		if k != "quantity" {
			return d.Skip()
		}
		set = true
		quantity, err = d.Int()
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}
	if !set {
		writeError(w, r, errors.Wrap(errMalformed, "quantity is required"))
		return
	}
	if _, ok := s.Cart.Line(key); !ok {
		writeError(w, r, errLineNotFound)
		return
	}

	s.Cart.SetQuantity(key, quantity)
	h.writeCart(w, s.Cart)
}

// RemoveLine handles DELETE /cart/lines/{key}.
func (h *Handler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	s, release, ok := h.session(w, r)
	if !ok {
		return
	}
	defer release()
	key, err := lineKey(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, ok := s.Cart.Line(key); !ok {
		writeError(w, r, errLineNotFound)
		return
	}
	s.Cart.Remove(key)
	h.writeCart(w, s.Cart)
}

// ClearCart handles DELETE /cart.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	s, release, ok := h.session(w, r)
	if !ok {
		return
	}
	defer release()
	s.Cart.Clear()
	h.writeCart(w, s.Cart)
}
