package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/kart-promo/internal/domain/coupon"
	"github.com/xenking/kart-promo/internal/domain/pricing"
	"github.com/xenking/kart-promo/internal/ingest"
	"github.com/xenking/kart-promo/internal/storage/postgres"
)

type options struct {
	databaseURL  string
	pattern      string
	kind         string
	value        string
	maxDiscount  string
	minOrder     string
	validFrom    string
	validUntil   string
	description  string
	usageLimit   int
	perUserLimit int
	batchSize    int
	expected     uint
}

func main() {
	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.pattern, "files", "data/coupons*.gz", "glob of code files, one code per line; .gz files are decompressed")
	flag.StringVar(&opts.kind, "kind", string(pricing.DiscountPercentage), "discount kind: percentage or flat_amount")
	flag.StringVar(&opts.value, "value", "10", "discount value")
	flag.StringVar(&opts.maxDiscount, "max-discount", "", "optional discount cap")
	flag.StringVar(&opts.minOrder, "min-order", "", "optional minimum order amount")
	flag.StringVar(&opts.validFrom, "valid-from", "", "optional RFC3339 start of validity")
	flag.StringVar(&opts.validUntil, "valid-until", "", "optional RFC3339 end of validity")
	flag.StringVar(&opts.description, "description", "Bulk imported coupon", "coupon description")
	flag.IntVar(&opts.usageLimit, "usage-limit", 1, "total redemptions per code")
	flag.IntVar(&opts.perUserLimit, "per-user-limit", 1, "redemptions per user per code")
	flag.IntVar(&opts.batchSize, "batch-size", 1000, "codes per insert batch")
	flag.UintVar(&opts.expected, "expected-codes", 10_000_000, "expected number of codes, sizes the bloom filter")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(zctx.Base(ctx, lg), opts); err != nil {
		lg.Fatal("Ingest failed", zap.Error(err))
	}
}

func (o options) template() (coupon.Input, error) {
	value, err := decimal.NewFromString(o.value)
	if err != nil {
		return coupon.Input{}, errors.Wrap(err, "value")
	}
	in := coupon.Input{
		Description:  o.description,
		UsageLimit:   &o.usageLimit,
		PerUserLimit: &o.perUserLimit,
		Rule: pricing.PriceRule{
			Kind:  pricing.DiscountKind(o.kind),
			Value: value,
			Scope: pricing.GlobalScope(),
		},
	}
	if in.Rule.MaxDiscount, err = optDecimal(o.maxDiscount); err != nil {
		return in, errors.Wrap(err, "max-discount")
	}
	if in.Rule.MinOrderAmount, err = optDecimal(o.minOrder); err != nil {
		return in, errors.Wrap(err, "min-order")
	}
	if in.Rule.ValidFrom, err = optTime(o.validFrom); err != nil {
		return in, errors.Wrap(err, "valid-from")
	}
	if in.Rule.ValidUntil, err = optTime(o.validUntil); err != nil {
		return in, errors.Wrap(err, "valid-until")
	}
	return in, nil
}

func optDecimal(s string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func optTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}

func run(ctx context.Context, opts options) error {
	lg := zctx.From(ctx)

	tmpl, err := opts.template()
	if err != nil {
		return errors.Wrap(err, "coupon template")
	}

	paths, err := filepath.Glob(opts.pattern)
	if err != nil {
		return errors.Wrap(err, "glob")
	}
	if len(paths) == 0 {
		return errors.Errorf("no files match %q", opts.pattern)
	}
	sources := make([]ingest.Source, len(paths))
	for i, p := range paths {
		sources[i] = ingest.FileSource(p)
	}

	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	im, err := ingest.NewImporter(postgres.NewCouponRepository(pool), ingest.Config{
		Template:      tmpl,
		BatchSize:     opts.batchSize,
		ExpectedCodes: opts.expected,
	})
	if err != nil {
		return err
	}

	lg.Info("Starting ingest", zap.Strings("files", paths))
	start := time.Now()
	stats, err := im.Run(ctx, sources)
	lg.Info("Ingest finished",
		zap.Int64("read", stats.Read),
		zap.Int64("invalid", stats.Invalid),
		zap.Int64("existing", stats.Existing),
		zap.Int64("duplicates", stats.Duplicates),
		zap.Int64("inserted", stats.Inserted),
		zap.Duration("elapsed", time.Since(start)),
	)
	return err
}
