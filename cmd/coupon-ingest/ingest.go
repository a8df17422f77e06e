package main

import (
	"bufio"
	"context"
	"os"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/coupon"
)

const maxLineBytes = 64 << 10

var hundred = decimal.NewFromInt(100)

// sourcedRule is a parsed rule with the file it came from.
type sourcedRule struct {
	coupon.Rule
	file string
}

// decodeRule parses one coupon line:
//
//	{"code","discountType","value","minOrderAmount","maxDiscount",
//	 "description","validFrom","validUntil","maxUses"}
//
// Amounts may be numbers or numeric strings; times are RFC 3339.
func decodeRule(line []byte) (coupon.Rule, error) {
	var r coupon.Rule
	if err := jx.DecodeBytes(line).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			var s string
			s, err = d.Str()
			r.Code = coupon.Normalize(s)
		case "discountType":
			var s string
			s, err = d.Str()
			r.DiscountType = coupon.DiscountType(s)
		case "value":
			r.Value, err = decodeAmount(d)
		case "minOrderAmount":
			r.MinOrderAmount, err = decodeAmount(d)
		case "maxDiscount":
			r.MaxDiscount, err = decodeAmount(d)
		case "description":
			r.Description, err = d.Str()
		case "validFrom":
			r.ValidFrom, err = decodeTime(d)
		case "validUntil":
			r.ValidUntil, err = decodeTime(d)
		case "maxUses":
			r.MaxUses, err = d.Int()
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	}); err != nil {
		return coupon.Rule{}, err
	}
	return r, validateRule(r)
}

func validateRule(r coupon.Rule) error {
	switch {
	case r.Code == "":
		return errors.New("code is required")
	case r.DiscountType != coupon.DiscountPercentage && r.DiscountType != coupon.DiscountFixed:
		return errors.Errorf("unknown discount type %q", r.DiscountType)
	case !r.Value.IsPositive():
		return errors.New("value must be positive")
	case r.DiscountType == coupon.DiscountPercentage && r.Value.GreaterThan(hundred):
		return errors.New("percentage must not exceed 100")
	case r.MinOrderAmount.IsNegative(), r.MaxDiscount.IsNegative():
		return errors.New("amounts must not be negative")
	case r.MaxUses < 0:
		return errors.New("maxUses must not be negative")
	case r.ValidFrom != nil && r.ValidUntil != nil && r.ValidUntil.Before(*r.ValidFrom):
		return errors.New("validUntil is before validFrom")
	}
	return nil
}

func decodeAmount(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(n.String())
	case jx.Null:
		return decimal.Zero, d.Null()
	default:
		return decimal.Decimal{}, errors.New("expected amount")
	}
}

func decodeTime(d *jx.Decoder) (*time.Time, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	s, err := d.Str()
	if err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// streamFile decodes every line of a gzip-compressed JSON lines file. Lines
// that fail to decode are reported to skip and ignored; emit errors abort.
func streamFile(ctx context.Context, path string, emit func(coupon.Rule) error, skip func(line int, err error)) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return 0, errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)

	var line, n int
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		line++
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		r, err := decodeRule(data)
		if err != nil {
			skip(line, err)
			continue
		}
		if err := emit(r); err != nil {
			return n, err
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return n, errors.Wrapf(err, "scan %s", path)
	}
	return n, nil
}

// upserter stores coupon rules.
type upserter interface {
	Upsert(ctx context.Context, rules ...coupon.Rule) error
}

// writer batches rules into upserts. A code seen twice keeps its first
// definition.
type writer struct {
	repo  upserter
	size  int
	lg    *zap.Logger
	seen  map[string]string
	batch []coupon.Rule

	written    int
	duplicates int
}

func newWriter(repo upserter, size int, lg *zap.Logger) *writer {
	if size < 1 {
		size = 1
	}
	return &writer{repo: repo, size: size, lg: lg, seen: map[string]string{}}
}

func (w *writer) add(ctx context.Context, r sourcedRule) error {
	if first, ok := w.seen[r.Code]; ok {
		w.duplicates++
		w.lg.Warn("Duplicate coupon code",
			zap.String("code", r.Code),
			zap.String("file", r.file),
			zap.String("first_file", first),
		)
		return nil
	}
	w.seen[r.Code] = r.file
	w.batch = append(w.batch, r.Rule)
	if len(w.batch) >= w.size {
		return w.flush(ctx)
	}
	return nil
}

func (w *writer) flush(ctx context.Context) error {
	if len(w.batch) == 0 {
		return nil
	}
	if err := w.repo.Upsert(ctx, w.batch...); err != nil {
		return errors.Wrapf(err, "upsert %d coupons", len(w.batch))
	}
	w.written += len(w.batch)
	w.batch = w.batch[:0]
	return nil
}
