// Command stock-import sets available quantities from gzipped CSV feeds.
//
// Each feed line is product_id,variant_id,quantity. Files are scanned
// concurrently; when several files list the same product and variant, the
// file given last wins.
package main

import (
	"cmp"
	"context"
	"flag"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"slices"

	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-backoffice/internal/storage/postgres"
)

const (
	bloomFPR      = 0.001
	progressEvery = 10_000
)

func main() {
	var databaseURL string

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Usage = func() {
		_, _ = os.Stderr.WriteString("usage: stock-import [-database-url URL] feed.csv.gz [feed.csv.gz ...]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, flag.Args()); err != nil {
		slog.Error("stock import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("stock import completed successfully")
}

func run(ctx context.Context, databaseURL string, files []string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	products := postgres.NewProductRepository(pool)
	stocks := postgres.NewStockRepository(pool)

	ids, err := products.ListIDs(ctx)
	if err != nil {
		return errors.Wrap(err, "list products")
	}
	filter := newCatalogFilter(ids)
	slog.Info("catalog filter built", slog.Int("products", len(ids)))

	results := make([]fileResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			res, err := scanFile(gctx, f, filter)
			if err != nil {
				return err
			}
			slog.Info("file scanned",
				slog.String("file", f),
				slog.Uint64("rows", res.scanned),
				slog.Uint64("skipped", res.skipped),
			)
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "scan feeds")
	}

	merged := merge(results)
	if len(merged) == 0 {
		slog.Info("no stock rows to import")
		return nil
	}

	// The bloom filter lets through a few unknown ids; confirm the survivors.
	candidates := make(map[int64]struct{})
	for k := range merged {
		candidates[k.productID] = struct{}{}
	}
	found, err := products.GetByIDs(ctx, slices.Sorted(maps.Keys(candidates)))
	if err != nil {
		return errors.Wrap(err, "confirm products")
	}
	known := make(map[int64]bool, len(found))
	for _, p := range found {
		known[p.ID] = true
	}

	keys := slices.SortedFunc(maps.Keys(merged), func(a, b stockKey) int {
		if c := cmp.Compare(a.productID, b.productID); c != 0 {
			return c
		}
		return cmp.Compare(a.variantID, b.variantID)
	})

	slog.Info("writing stock", slog.Int("rows", len(keys)))

	return postgres.NewTxManager(pool).RunInTx(ctx, func(ctx context.Context) error {
		touched := make(map[int64]struct{})
		written := 0
		for _, k := range keys {
			if !known[k.productID] {
				continue
			}
			if err := stocks.SetQuantity(ctx, k.productID, k.variantID, merged[k]); err != nil {
				return err
			}
			touched[k.productID] = struct{}{}
			written++
			if written%progressEvery == 0 {
				slog.Info("write progress", slog.Int("written", written), slog.Int("total", len(keys)))
			}
		}

		for id := range touched {
			if err := stocks.Synchronize(ctx, id); err != nil {
				return err
			}
		}

		slog.Info("stock written",
			slog.Int("rows", written),
			slog.Int("unknown", len(keys)-written),
			slog.Int("products", len(touched)),
		)
		return nil
	})
}
