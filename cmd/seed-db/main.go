// Command seed-db loads the reference catalog and a back-office API key.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-backoffice/internal/domain/auth"
	"github.com/xenking/kart-backoffice/internal/domain/invoice"
	"github.com/xenking/kart-backoffice/internal/domain/product"
	"github.com/xenking/kart-backoffice/internal/handler"
	"github.com/xenking/kart-backoffice/internal/storage/postgres"
)

type options struct {
	databaseURL  string
	catalogFile  string
	apiKey       string
	apiKeyName   string
	apiKeyScopes string
	apiKeyPepper string
	shopID       int64
	invoiceStart int64
}

func main() {
	var opts options

	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.catalogFile, "catalog-file", "db/seed/catalog.json", "path to catalog JSON file")
	flag.StringVar(&opts.apiKey, "api-key", "", "API key to seed (or BACKOFFICE_SEED_API_KEY env)")
	flag.StringVar(&opts.apiKeyName, "api-key-name", "back-office", "name of the seeded API key")
	flag.StringVar(&opts.apiKeyScopes, "api-key-scopes", auth.ScopeAll, "comma-separated scopes of the seeded API key")
	flag.StringVar(&opts.apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or BACKOFFICE_API_KEY_PEPPER env)")
	flag.Int64Var(&opts.shopID, "shop-id", 1, "shop whose invoice counter is initialized")
	flag.Int64Var(&opts.invoiceStart, "invoice-start", 0, "raise the invoice counter to at least this value")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if opts.apiKey == "" {
		opts.apiKey = os.Getenv("BACKOFFICE_SEED_API_KEY")
	}
	if opts.apiKey == "" {
		slog.Error("API key is required: set --api-key or BACKOFFICE_SEED_API_KEY")
		os.Exit(1)
	}
	if opts.apiKeyPepper == "" {
		opts.apiKeyPepper = os.Getenv("BACKOFFICE_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, opts options) error {
	data, err := os.ReadFile(opts.catalogFile)
	if err != nil {
		return errors.Wrap(err, "read catalog file")
	}
	c, err := decodeCatalog(data)
	if err != nil {
		return err
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// The catalog is loaded atomically: a bad row leaves the database as it was.
	err = postgres.NewTxManager(pool).RunInTx(ctx, func(ctx context.Context) error {
		if err := seedCatalog(ctx, pool, c); err != nil {
			return errors.Wrap(err, "seed catalog")
		}
		if err := seedAPIKey(ctx, pool, opts); err != nil {
			return errors.Wrap(err, "seed api key")
		}
		if opts.invoiceStart > 0 {
			name := invoice.CounterName(opts.shopID)
			if err := postgres.NewCounterRepository(pool).Reset(ctx, name, opts.invoiceStart); err != nil {
				return err
			}
			slog.Info("invoice counter initialized", slog.String("counter", name), slog.Int64("value", opts.invoiceStart))
		}
		return nil
	})
	return err
}

func seedCatalog(ctx context.Context, pool *pgxpool.Pool, c *catalog) error {
	repo := postgres.NewCatalogRepository(pool)
	stocks := postgres.NewStockRepository(pool)

	for _, cur := range c.Currencies {
		if _, err := repo.UpsertCurrency(ctx, strings.ToUpper(cur.ISO), cur.Precision); err != nil {
			return err
		}
		slog.Info("upserted currency", slog.String("iso", cur.ISO))
	}

	groups := make(map[string]int64, len(c.TaxGroups))
	for _, g := range c.TaxGroups {
		rules := make([]postgres.TaxRule, len(g.Rules))
		for i, r := range g.Rules {
			rules[i] = postgres.TaxRule{CountryISO: strings.ToUpper(r.Country), RateName: r.Rate, Percent: r.Percent}
		}
		id, err := repo.UpsertTaxGroup(ctx, g.Name, g.Method, rules)
		if err != nil {
			return err
		}
		groups[g.Name] = id
		slog.Info("upserted tax group", slog.String("name", g.Name), slog.Int("rules", len(rules)))
	}
	groupID := func(name string) (int64, error) {
		if name == "" {
			return 0, nil
		}
		id, ok := groups[name]
		if !ok {
			return 0, errors.Errorf("unknown tax group %q", name)
		}
		return id, nil
	}

	for _, cr := range c.Carriers {
		gid, err := groupID(cr.TaxGroup)
		if err != nil {
			return errors.Wrapf(err, "carrier %q", cr.Name)
		}
		if _, err := repo.UpsertCarrier(ctx, cr.Name, cr.ShippingCost, gid); err != nil {
			return err
		}
		slog.Info("upserted carrier", slog.String("name", cr.Name))
	}

	for _, ps := range c.Products {
		gid, err := groupID(ps.TaxGroup)
		if err != nil {
			return errors.Wrapf(err, "product %s", ps.Reference)
		}
		p := &product.Product{
			Name:              ps.Name,
			Reference:         ps.Reference,
			Price:             ps.Price,
			MinimalQuantity:   ps.MinimalQuantity,
			Weight:            ps.Weight,
			Active:            true,
			AvailableForOrder: true,
			OutOfStock:        ps.OutOfStock,
		}
		if err := repo.UpsertProduct(ctx, p, gid); err != nil {
			return err
		}

		if len(ps.Variants) == 0 {
			if err := stocks.SetQuantity(ctx, p.ID, 0, ps.Stock); err != nil {
				return err
			}
		}
		for _, vs := range ps.Variants {
			v := &product.Variant{
				ProductID:       p.ID,
				Reference:       vs.Reference,
				MinimalQuantity: vs.MinimalQuantity,
				PriceImpact:     vs.PriceImpact,
				WeightImpact:    vs.WeightImpact,
			}
			if err := repo.UpsertVariant(ctx, v); err != nil {
				return err
			}
			if err := stocks.SetQuantity(ctx, p.ID, v.ID, vs.Stock); err != nil {
				return err
			}
		}
		if err := stocks.Synchronize(ctx, p.ID); err != nil {
			return err
		}

		slog.Info("upserted product",
			slog.Int64("id", p.ID),
			slog.String("reference", p.Reference),
			slog.Int("variants", len(ps.Variants)),
		)
	}
	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, opts options) error {
	var scopes []string
	for _, s := range strings.Split(opts.apiKeyScopes, ",") {
		if s = strings.TrimSpace(s); s != "" {
			scopes = append(scopes, s)
		}
	}

	info := &auth.APIKeyInfo{
		KeyHash: handler.HashKey([]byte(opts.apiKeyPepper), opts.apiKey),
		Name:    opts.apiKeyName,
		Scopes:  scopes,
	}
	if err := postgres.NewAPIKeyRepository(pool).Upsert(ctx, info); err != nil {
		return err
	}

	slog.Info("upserted API key", slog.Int64("id", info.ID), slog.String("name", info.Name), slog.Any("scopes", scopes))
	return nil
}
