// Command coupon-ingest loads coupon campaigns from gzip-compressed JSON
// lines files into the coupons table.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/repository"
)

func main() {
	var (
		dataDir     string
		pattern     string
		databaseURL string
		batchSize   int
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing coupon files")
	flag.StringVar(&pattern, "pattern", "*.jsonl.gz", "coupon file glob inside data-dir")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&batchSize, "batch", 500, "coupons per upsert batch")
	flag.Parse()

	lg, err := zap.NewProduction()
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

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, dataDir, pattern, databaseURL, batchSize); err != nil {
		lg.Fatal("Coupon ingest failed", zap.Error(err))
	}
	lg.Info("Coupon ingest completed")
}

func run(ctx context.Context, lg *zap.Logger, dataDir, pattern, databaseURL string, batchSize int) error {
	files, err := filepath.Glob(filepath.Join(dataDir, pattern))
	if err != nil {
		return errors.Wrap(err, "glob coupon files")
	}
	if len(files) == 0 {
		lg.Info("No coupon files found", zap.String("dir", dataDir), zap.String("pattern", pattern))
		return nil
	}

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	repo := repository.NewCouponRepository(pool)

	// Files are parsed concurrently; a single writer dedupes and batches.
	rules := make(chan sourcedRule, batchSize)
	g, gCtx := errgroup.WithContext(ctx)

	parsers, pCtx := errgroup.WithContext(gCtx)
	for _, f := range files {
		parsers.Go(func() error {
			n, err := streamFile(pCtx, f, func(r coupon.Rule) error {
				select {
				case rules <- sourcedRule{Rule: r, file: f}:
					return nil
				case <-pCtx.Done():
					return pCtx.Err()
				}
			}, func(line int, err error) {
				lg.Warn("Skip coupon line", zap.String("file", f), zap.Int("line", line), zap.Error(err))
			})
			if err != nil {
				return err
			}
			lg.Info("File parsed", zap.String("file", f), zap.Int("coupons", n))
			return nil
		})
	}
	g.Go(func() error {
		defer close(rules)
		return parsers.Wait()
	})

	g.Go(func() error {
		w := newWriter(repo, batchSize, lg)
		for r := range rules {
			if err := w.add(gCtx, r); err != nil {
				return err
			}
		}
		if err := w.flush(gCtx); err != nil {
			return err
		}
		lg.Info("Coupons written", zap.Int("written", w.written), zap.Int("duplicates", w.duplicates))
		return nil
	})

	return g.Wait()
}
