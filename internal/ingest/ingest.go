// Package ingest bulk-loads single-use coupon codes from line-oriented,
// optionally gzip-compressed files.
package ingest

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-promo/internal/domain/coupon"
)

const (
	minCodeLen = 4
	maxCodeLen = 32
)

// Store is the persistence surface the importer needs.
type Store interface {
	ScanCodes(ctx context.Context, fn func(code string)) error
	ExistingCodes(ctx context.Context, codes []string) ([]string, error)
	CreateBatch(ctx context.Context, coupons []coupon.Coupon) (int, error)
}

// Source is one input stream of codes, one per line.
type Source struct {
	Name string
	Gzip bool
	Open func() (io.ReadCloser, error)
}

// FileSource reads path, decompressing it when it ends in ".gz".
func FileSource(path string) Source {
	return Source{
		Name: path,
		Gzip: strings.HasSuffix(path, ".gz"),
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}
}

// Config describes the coupons created for imported codes.
type Config struct {
	// Template supplies everything but the code. Nil limits default to
	// single use.
	Template coupon.Input
	// BatchSize is the number of codes written per round trip.
	BatchSize int
	// ExpectedCodes sizes the bloom filter of known codes.
	ExpectedCodes uint
	// FalsePositiveRate of the bloom filter.
	FalsePositiveRate float64
}

func (c *Config) setDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 1000
	}
	if c.ExpectedCodes == 0 {
		c.ExpectedCodes = 1_000_000
	}
	if c.FalsePositiveRate <= 0 || c.FalsePositiveRate >= 1 {
		c.FalsePositiveRate = 0.001
	}
	if c.Template.UsageLimit == nil {
		c.Template.UsageLimit = intPtr(1)
	}
	if c.Template.PerUserLimit == nil {
		c.Template.PerUserLimit = intPtr(1)
	}
}

// Stats summarizes an import run.
type Stats struct {
	Read       int64
	Invalid    int64
	Existing   int64
	Duplicates int64
	Inserted   int64
}

type counters struct {
	read, invalid, existing, duplicates, inserted atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Read:       c.read.Load(),
		Invalid:    c.invalid.Load(),
		Existing:   c.existing.Load(),
		Duplicates: c.duplicates.Load(),
		Inserted:   c.inserted.Load(),
	}
}

// Importer streams codes from sources into a Store.
type Importer struct {
	store Store
	cfg   Config
	now   func() time.Time
	newID func() string
}

// NewImporter validates the coupon template and returns an Importer.
func NewImporter(store Store, cfg Config) (*Importer, error) {
	cfg.setDefaults()
	im := &Importer{
		store: store,
		cfg:   cfg,
		now:   time.Now,
		newID: uuid.NewString,
	}
	sample := im.coupon("SAMPLE", im.now())
	if err := sample.Validate(); err != nil {
		return nil, errors.Wrap(err, "coupon template")
	}
	return im, nil
}

func (im *Importer) coupon(code string, now time.Time) coupon.Coupon {
	t := im.cfg.Template
	return coupon.Coupon{
		ID:           im.newID(),
		Code:         code,
		Description:  t.Description,
		Rule:         t.Rule,
		UsageLimit:   t.UsageLimit,
		PerUserLimit: t.PerUserLimit,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Run imports every source. Sources are read concurrently and written by
// a single batching writer.
//
// Known codes are loaded into a bloom filter first. Codes the filter has
// not seen are inserted directly; the rest are confirmed with an exact
// lookup so a false positive never drops a new code.
func (im *Importer) Run(ctx context.Context, sources []Source) (Stats, error) {
	lg := zctx.From(ctx)
	var stats counters

	known := bloom.NewWithEstimates(im.cfg.ExpectedCodes, im.cfg.FalsePositiveRate)
	var loaded int
	if err := im.store.ScanCodes(ctx, func(code string) {
		known.AddString(code)
		loaded++
	}); err != nil {
		return stats.snapshot(), errors.Wrap(err, "load existing codes")
	}
	lg.Info("Loaded existing codes", zap.Int("count", loaded))

	codes := make(chan string, im.cfg.BatchSize)
	g, gctx := errgroup.WithContext(ctx)

	readers, rctx := errgroup.WithContext(gctx)
	for _, src := range sources {
		readers.Go(func() error {
			return im.read(rctx, src, codes, &stats)
		})
	}
	g.Go(func() error {
		defer close(codes)
		return readers.Wait()
	})
	g.Go(func() error {
		return im.write(gctx, known, codes, &stats)
	})

	err := g.Wait()
	return stats.snapshot(), err
}

func (im *Importer) read(ctx context.Context, src Source, out chan<- string, stats *counters) error {
	f, err := src.Open()
	if err != nil {
		return errors.Wrapf(err, "open %s", src.Name)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if src.Gzip {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return errors.Wrapf(err, "gzip %s", src.Name)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	lg := zctx.From(ctx).With(zap.String("source", src.Name))
	sc := bufio.NewScanner(r)
	var lines int
	for sc.Scan() {
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		lines++
		stats.read.Add(1)

		code := coupon.NormalizeCode(raw)
		if !ValidCode(code) {
			stats.invalid.Add(1)
			lg.Debug("Skipping invalid code", zap.String("code", raw))
			continue
		}
		select {
		case out <- code:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := sc.Err(); err != nil {
		return errors.Wrapf(err, "read %s", src.Name)
	}
	lg.Info("Source read", zap.Int("lines", lines))
	return nil
}

func (im *Importer) write(ctx context.Context, known *bloom.BloomFilter, codes <-chan string, stats *counters) error {
	batch := make([]string, 0, im.cfg.BatchSize)
	for code := range codes {
		batch = append(batch, code)
		if len(batch) < im.cfg.BatchSize {
			continue
		}
		if err := im.flush(ctx, known, batch, stats); err != nil {
			return err
		}
		batch = batch[:0]
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}
	return im.flush(ctx, known, batch, stats)
}

func (im *Importer) flush(ctx context.Context, known *bloom.BloomFilter, batch []string, stats *counters) error {
	var fresh, maybe []string
	for _, code := range batch {
		if known.TestString(code) {
			maybe = append(maybe, code)
		} else {
			fresh = append(fresh, code)
		}
	}

	if len(maybe) > 0 {
		existing, err := im.store.ExistingCodes(ctx, maybe)
		if err != nil {
			return errors.Wrap(err, "check existing codes")
		}
		taken := make(map[string]struct{}, len(existing))
		for _, code := range existing {
			taken[code] = struct{}{}
		}
		for _, code := range maybe {
			if _, ok := taken[code]; ok {
				stats.existing.Add(1)
				continue
			}
			fresh = append(fresh, code)
		}
	}
	if len(fresh) == 0 {
		return nil
	}

	now := im.now().UTC()
	coupons := make([]coupon.Coupon, len(fresh))
	for i, code := range fresh {
		coupons[i] = im.coupon(code, now)
	}
	inserted, err := im.store.CreateBatch(ctx, coupons)
	if err != nil {
		return errors.Wrap(err, "insert batch")
	}
	for _, code := range fresh {
		known.AddString(code)
	}
	stats.inserted.Add(int64(inserted))
	stats.duplicates.Add(int64(len(fresh) - inserted))

	zctx.From(ctx).Debug("Batch written",
		zap.Int("batch", len(batch)),
		zap.Int("inserted", inserted),
	)
	return nil
}

// ValidCode reports whether a normalized code is importable: 4 to 32
// characters of A-Z, 0-9, '-' or '_'.
func ValidCode(code string) bool {
	if len(code) < minCodeLen || len(code) > maxCodeLen {
		return false
	}
	for _, r := range code {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

func intPtr(v int) *int { return &v }
