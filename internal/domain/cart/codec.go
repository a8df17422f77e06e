package cart

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// EncodeLines serializes lines as a flat JSON array. Prices are written as
// strings to keep decimal precision.
func EncodeLines(lines []Line) ([]byte, error) {
	var e jx.Encoder
	e.ArrStart()
	for _, l := range lines {
		e.ObjStart()
		e.FieldStart("productId")
		e.Str(l.ProductID)
		e.FieldStart("name")
		e.Str(l.Name)
		e.FieldStart("size")
		e.Str(l.Size)
		e.FieldStart("color")
		e.Str(l.Color)
		e.FieldStart("batchNo")
		e.Str(l.BatchNo)
		e.FieldStart("unitPrice")
		e.Str(l.UnitPrice.String())
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		e.FieldStart("stock")
		e.Int(l.StockCeiling)
		e.ObjEnd()
	}
	e.ArrEnd()
	return e.Bytes(), nil
}

// DecodeLines parses data produced by EncodeLines. Unknown fields are
// skipped.
func DecodeLines(data []byte) ([]Line, error) {
	d := jx.DecodeBytes(data)
	var lines []Line
	if err := d.Arr(func(d *jx.Decoder) error {
		var l Line
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "productId":
				l.ProductID, err = d.Str()
			case "name":
				l.Name, err = d.Str()
			case "size":
				l.Size, err = d.Str()
			case "color":
				l.Color, err = d.Str()
			case "batchNo":
				l.BatchNo, err = d.Str()
			case "unitPrice":
				var s string
				if s, err = d.Str(); err == nil {
					l.UnitPrice, err = decimal.NewFromString(s)
				}
			case "quantity":
				l.Quantity, err = d.Int()
			case "stock":
				l.StockCeiling, err = d.Int()
			default:
				err = d.Skip()
			}
			if err != nil {
				return errors.Wrapf(err, "field %q", key)
			}
			return nil
		}); err != nil {
			return err
		}
		lines = append(lines, l)
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode cart lines")
	}
	return lines, nil
}
