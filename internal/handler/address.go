package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/address"
)

func decodeAddress(w http.ResponseWriter, r *http.Request) (address.Address, error) {
	var a address.Address
	err := decodeBody(w, r, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "name":
			a.Name, err = d.Str()
		case "mobile":
			a.Mobile, err = d.Str()
		case "pincode":
			a.Pincode, err = d.Str()
		case "area":
			a.Area, err = d.Str()
		case "city":
			a.City, err = d.Str()
		case "state":
			a.State, err = d.Str()
		case "addressType":
			var t string
			t, err = d.Str()
			a.AddressType = address.Type(t)
		default:
			err = d.Skip()
		}
		return err
	})
	return a, err
}

func writeAddresses(w http.ResponseWriter, status int, list []address.Address) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("addresses")
		encodeAddresses(e, list)
		e.ObjEnd()
	})
}

// ListAddresses handles GET /addresses.
func (h *Handler) ListAddresses(w http.ResponseWriter, r *http.Request) {
	s, release, ok := h.session(w, r)
	if !ok {
		return
	}
	defer release()
	writeAddresses(w, http.StatusOK, h.checkout.View(s).Addresses)
}

// AddAddress handles POST /addresses.
func (h *Handler) AddAddress(w http.ResponseWriter, r *http.Request) {
	s, release, ok := h.session(w, r)
	if !ok {
		return
	}
	defer release()
	a, err := decodeAddress(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	added, list, err := h.checkout.AddAddress(r.Context(), s, a)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("address")
		encodeAddress(e, *added)
		e.FieldStart("addresses")
		encodeAddresses(e, list)
		e.ObjEnd()
	})
}

// EditAddress handles PUT /addresses/{id}.
func (h *Handler) EditAddress(w http.ResponseWriter, r *http.Request) {
	s, release, ok := h.session(w, r)
	if !ok {
		return
	}
	defer release()
	a, err := decodeAddress(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	a.ID = chi.URLParam(r, "id")
	list, err := h.checkout.EditAddress(r.Context(), s, a)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeAddresses(w, http.StatusOK, list)
}

// DeleteAddress handles DELETE /addresses/{id}.
func (h *Handler) DeleteAddress(w http.ResponseWriter, r *http.Request) {
	s, release, ok := h.session(w, r)
	if !ok {
		return
	}
	defer release()
	list, err := h.checkout.DeleteAddress(r.Context(), s, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeAddresses(w, http.StatusOK, list)
}

// SetDefaultAddress handles POST /addresses/{id}/default.
func (h *Handler) SetDefaultAddress(w http.ResponseWriter, r *http.Request) {
	s, release, ok := h.session(w, r)
	if !ok {
		return
	}
	defer release()
	list, err := h.checkout.SetDefaultAddress(r.Context(), s, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeAddresses(w, http.StatusOK, list)
}
