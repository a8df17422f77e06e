// Command seed-db loads a development catalog and coupons and prints a
// shopper token for local testing.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/repository"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

func main() {
	var (
		databaseURL  string
		productsFile string
		jwtSecret    string
		userID       string
		tokenTTL     time.Duration
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&jwtSecret, "jwt-secret", "", "secret to sign a development token (or STOREFRONT_JWT_SECRET env)")
	flag.StringVar(&userID, "user", "dev-shopper", "shopper id of the development token")
	flag.DurationVar(&tokenTTL, "token-ttl", 24*time.Hour, "development token lifetime")
	flag.Parse()

	lg, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	if jwtSecret == "" {
		jwtSecret = os.Getenv("STOREFRONT_JWT_SECRET")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, productsFile); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}

	if jwtSecret != "" {
		now := time.Now()
		token, err := httpmiddleware.NewTokenVerifier([]byte(jwtSecret)).Sign(jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		})
		if err != nil {
			lg.Fatal("Sign development token", zap.Error(err))
		}
		lg.Info("Development token", zap.String("user_id", userID), zap.String("token", token))
	}

	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, productsFile string) error {
	lg.Info("Connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, lg, repository.NewProductRepository(pool), productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedCoupons(ctx, lg, repository.NewCouponRepository(pool)); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	return nil
}

func seedProducts(ctx context.Context, lg *zap.Logger, repo *repository.ProductRepository, productsFile string) error {
	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}
	products, err := decodeProducts(data)
	if err != nil {
		return errors.Wrap(err, "parse products")
	}

	for _, p := range products {
		if err := repo.Upsert(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
		lg.Info("Upserted product",
			zap.String("id", p.ID),
			zap.String("name", p.Name),
			zap.Int("variants", len(p.Variants)),
		)
	}
	return nil
}

// decodeProducts parses
// [{"id","name","price","category","variants":[{"size","color","batchNo","stock"}]}].
func decodeProducts(data []byte) ([]product.Product, error) {
	var out []product.Product
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		var p product.Product
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "id":
				p.ID, err = d.Str()
			case "name":
				p.Name, err = d.Str()
			case "price":
				var s string
				if s, err = d.Str(); err == nil {
					p.Price, err = decimal.NewFromString(s)
				}
			case "category":
				p.Category, err = d.Str()
			case "variants":
				err = d.Arr(func(d *jx.Decoder) error {
					var v product.Variant
					if err := d.Obj(func(d *jx.Decoder, key string) error {
						var err error
						switch key {
						case "size":
							v.Size, err = d.Str()
						case "color":
							v.Color, err = d.Str()
						case "batchNo":
							v.BatchNo, err = d.Str()
						case "stock":
							v.Stock, err = d.Int()
						default:
							err = d.Skip()
						}
						return err
					}); err != nil {
						return err
					}
					p.Variants = append(p.Variants, v)
					return nil
				})
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
		if p.ID == "" {
			return errors.New("product without id")
		}
		out = append(out, p)
		return nil
	})
	return out, err
}

func seedCoupons(ctx context.Context, lg *zap.Logger, repo *repository.CouponRepository) error {
	until := time.Now().AddDate(1, 0, 0).UTC()
	rules := []coupon.Rule{
		{
			Code:         "WELCOME10",
			DiscountType: coupon.DiscountPercentage,
			Value:        decimal.NewFromInt(10),
			MaxDiscount:  decimal.NewFromInt(300),
			Description:  "10% off your first order, up to 300",
		},
		{
			Code:           "FLAT200",
			DiscountType:   coupon.DiscountFixed,
			Value:          decimal.NewFromInt(200),
			MinOrderAmount: decimal.NewFromInt(1500),
			Description:    "200 off orders above 1500",
			ValidUntil:     &until,
		},
		{
			Code:         "LIMITED50",
			DiscountType: coupon.DiscountPercentage,
			Value:        decimal.NewFromInt(50),
			MaxDiscount:  decimal.NewFromInt(500),
			MaxUses:      100,
			Description:  "50% off, first 100 orders",
		},
	}

	if err := repo.Upsert(ctx, rules...); err != nil {
		return errors.Wrap(err, "upsert coupons")
	}
	for _, r := range rules {
		lg.Info("Upserted coupon", zap.String("code", r.Code), zap.String("description", r.Description))
	}
	return nil
}
