package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/kart-promo/db"
	"github.com/xenking/kart-promo/internal/domain/auth"
	"github.com/xenking/kart-promo/internal/domain/coupon"
	"github.com/xenking/kart-promo/internal/domain/pricing"
	"github.com/xenking/kart-promo/internal/domain/sale"
	"github.com/xenking/kart-promo/internal/storage/postgres"
)

type options struct {
	databaseURL  string
	productsFile string
	adminKey     string
	checkoutKey  string
	pepper       string
}

func main() {
	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.productsFile, "products-file", "", "path to products JSON file (defaults to the embedded catalog)")
	flag.StringVar(&opts.adminKey, "api-key", "", "admin API key to seed (or PROMO_SEED_API_KEY env)")
	flag.StringVar(&opts.checkoutKey, "checkout-key", "", "optional checkout-scoped API key to seed")
	flag.StringVar(&opts.pepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or PROMO_API_KEY_PEPPER env)")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	opts.databaseURL = orEnv(opts.databaseURL, "DATABASE_URL")
	opts.adminKey = orEnv(opts.adminKey, "PROMO_SEED_API_KEY")
	opts.pepper = orEnv(opts.pepper, "PROMO_API_KEY_PEPPER")
	if opts.databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	if opts.adminKey == "" {
		lg.Fatal("API key is required: set --api-key or PROMO_SEED_API_KEY")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(zctx.Base(ctx, lg), opts); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func orEnv(v, key string) string {
	if v != "" {
		return v
	}
	return os.Getenv(key)
}

func run(ctx context.Context, opts options) error {
	lg := zctx.From(ctx)
	lg.Info("Connecting to database")

	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool, opts.productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedSales(ctx, pool); err != nil {
		return errors.Wrap(err, "seed sales")
	}
	if err := seedCoupons(ctx, pool); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	if err := seedAPIKeys(ctx, pool, opts); err != nil {
		return errors.Wrap(err, "seed api keys")
	}
	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, path string) error {
	lg := zctx.From(ctx)

	data := db.SeedProducts
	if path != "" {
		lg.Info("Reading products file", zap.String("path", path))
		b, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrap(err, "read products file")
		}
		data = b
	}
	products, err := db.ParseProducts(data)
	if err != nil {
		return err
	}

	repo := postgres.NewProductRepository(pool)
	for _, p := range products {
		if err := repo.Upsert(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
	}
	lg.Info("Upserted products", zap.Int("count", len(products)))
	return nil
}

func dec(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func seedSales(ctx context.Context, pool *pgxpool.Pool) error {
	lg := zctx.From(ctx)
	svc := sale.NewService(postgres.NewSaleRepository(pool))

	existing, err := svc.List(ctx, sale.ListFilter{})
	if err != nil {
		return err
	}
	names := make(map[string]struct{}, len(existing))
	for _, s := range existing {
		names[s.Name] = struct{}{}
	}

	now := time.Now().UTC()
	end := now.AddDate(0, 1, 0)
	sales := []sale.Input{
		{
			Name:        "Festive Ethnic Wear",
			Description: "20% off ethnic wear, up to 300",
			IsFeatured:  true,
			Rule: pricing.PriceRule{
				Kind:        pricing.DiscountPercentage,
				Value:       decimal.NewFromInt(20),
				MaxDiscount: dec("300"),
				ValidFrom:   &now,
				ValidUntil:  &end,
				Scope:       pricing.Scope{Kind: pricing.ScopeCategory, TargetID: "ethnic-wear"},
			},
		},
		{
			Name:        "Storewide 5%",
			Description: "5% off everything",
			Rule: pricing.PriceRule{
				Kind:  pricing.DiscountPercentage,
				Value: decimal.NewFromInt(5),
				Scope: pricing.GlobalScope(),
			},
		},
	}
	for _, in := range sales {
		if _, ok := names[in.Name]; ok {
			lg.Info("Sale already seeded", zap.String("sale.name", in.Name))
			continue
		}
		s, err := svc.Create(ctx, in)
		if err != nil {
			return errors.Wrapf(err, "create sale %q", in.Name)
		}
		lg.Info("Created sale", zap.String("sale.id", s.ID), zap.String("sale.name", s.Name))
	}
	return nil
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool) error {
	lg := zctx.From(ctx)
	repo := postgres.NewCouponRepository(pool)
	svc, err := coupon.NewService(repo, repo, coupon.ServiceConfig{})
	if err != nil {
		return err
	}

	one := 1
	five := 5
	coupons := []coupon.Input{
		{
			Code:        "SAVE200",
			Description: "200 off orders of 1000 or more",
			Rule: pricing.PriceRule{
				Kind:           pricing.DiscountFlatAmount,
				Value:          decimal.NewFromInt(200),
				MinOrderAmount: dec("1000"),
				Scope:          pricing.GlobalScope(),
			},
			PerUserLimit: &one,
		},
		{
			Code:        "WELCOME10",
			Description: "10% off, capped at 150",
			Rule: pricing.PriceRule{
				Kind:        pricing.DiscountPercentage,
				Value:       decimal.NewFromInt(10),
				MaxDiscount: dec("150"),
				Scope:       pricing.GlobalScope(),
			},
			UsageLimit:   &five,
			PerUserLimit: &one,
		},
	}
	for _, in := range coupons {
		c, err := svc.Create(ctx, in)
		switch {
		case errors.Is(err, coupon.ErrCodeExists):
			lg.Info("Coupon already seeded", zap.String("coupon.code", in.Code))
		case err != nil:
			return errors.Wrapf(err, "create coupon %s", in.Code)
		default:
			lg.Info("Created coupon", zap.String("coupon.id", c.ID), zap.String("coupon.code", c.Code))
		}
	}
	return nil
}

func seedAPIKeys(ctx context.Context, pool *pgxpool.Pool, opts options) error {
	lg := zctx.From(ctx)
	repo := postgres.NewAPIKeyRepository(pool)
	pepper := []byte(opts.pepper)

	keys := []auth.APIKeyInfo{{
		ID:      "admin",
		Name:    "Seeded admin key",
		KeyHash: auth.HashKey(pepper, opts.adminKey),
		Scopes:  []string{auth.ScopeAdmin},
	}}
	if opts.checkoutKey != "" {
		keys = append(keys, auth.APIKeyInfo{
			ID:      "checkout",
			Name:    "Seeded checkout key",
			KeyHash: auth.HashKey(pepper, opts.checkoutKey),
			Scopes:  []string{auth.ScopeCheckout},
		})
	}
	for _, k := range keys {
		if err := repo.Upsert(ctx, k); err != nil {
			return errors.Wrapf(err, "upsert api key %s", k.ID)
		}
		lg.Info("Upserted API key", zap.String("id", k.ID), zap.Strings("scopes", k.Scopes))
	}
	return nil
}
