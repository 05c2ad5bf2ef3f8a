package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/kart-promo/internal/domain/pricing"
)

// Input holds the admin-editable fields of a coupon.
type Input struct {
	Code         string
	Description  string
	Rule         pricing.PriceRule
	UsageLimit   *int
	PerUserLimit *int
}

// ServiceConfig tunes Service.
type ServiceConfig struct {
	// RedeemTimeout bounds a single Redeem call. Zero disables the bound.
	RedeemTimeout  time.Duration
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

// Service implements coupon admin CRUD, validation and redemption.
type Service struct {
	repo      Repository
	ledger    Ledger
	validator *Validator
	timeout   time.Duration
	now       func() time.Time

	tracer      trace.Tracer
	redemptions metric.Int64Counter
	latency     metric.Float64Histogram
}

// NewService creates a coupon Service.
func NewService(repo Repository, ledger Ledger, cfg ServiceConfig) (*Service, error) {
	meter := cfg.MeterProvider.Meter("kart-promo/coupon")
	redemptions, err := meter.Int64Counter("coupon.redemptions",
		metric.WithDescription("Coupon redemption attempts by result"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create redemptions counter")
	}
	latency, err := meter.Float64Histogram("coupon.redeem.duration",
		metric.WithDescription("Coupon redeem latency"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create redeem latency histogram")
	}

	return &Service{
		repo:        repo,
		ledger:      ledger,
		validator:   NewValidator(repo),
		timeout:     cfg.RedeemTimeout,
		now:         time.Now,
		tracer:      cfg.TracerProvider.Tracer("kart-promo/coupon"),
		redemptions: redemptions,
		latency:     latency,
	}, nil
}

// Validate checks eligibility of code for userID at the current time.
func (s *Service) Validate(ctx context.Context, code, userID string, orderAmount decimal.Decimal) (*Coupon, error) {
	return s.ValidateAt(ctx, code, userID, orderAmount, s.now())
}

// ValidateAt checks eligibility of code for userID at now.
func (s *Service) ValidateAt(ctx context.Context, code, userID string, orderAmount decimal.Decimal, now time.Time) (*Coupon, error) {
	ctx, span := s.tracer.Start(ctx, "coupon.Validate", trace.WithAttributes(
		attribute.String("coupon.code", NormalizeCode(code)),
		attribute.String("user.id", userID),
	))
	defer span.End()

	c, err := s.validator.Validate(ctx, code, userID, orderAmount, now)
	if err != nil {
		span.SetAttributes(attribute.String("coupon.result", string(KindOf(err))))
		if !IsRejection(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, err
	}
	return c, nil
}

// Redeem records a redemption through the ledger. Retrying with the same
// OrderID returns the original usage.
func (s *Service) Redeem(ctx context.Context, req RedeemRequest) (*Usage, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "coupon.Redeem", trace.WithAttributes(
		attribute.String("coupon.id", req.CouponID),
		attribute.String("user.id", req.UserID),
		attribute.String("order.id", req.OrderID),
	))
	defer span.End()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	u, err := s.ledger.Redeem(ctx, req)
	elapsed := time.Since(start).Seconds()

	result := "ok"
	if err != nil {
		result = string(KindOf(err))
	}
	attrs := metric.WithAttributes(attribute.String("result", result))
	s.redemptions.Add(ctx, 1, attrs)
	s.latency.Record(ctx, elapsed, attrs)
	span.SetAttributes(attribute.String("coupon.result", result))

	lg := zctx.From(ctx).With(
		zap.String("coupon.id", req.CouponID),
		zap.String("user.id", req.UserID),
		zap.String("order.id", req.OrderID),
	)
	switch {
	case err == nil:
		lg.Debug("Coupon redeemed", zap.String("usage.id", u.ID))
		return u, nil
	case errors.Is(err, ErrConcurrentLimitRace):
		lg.Info("Coupon redeem lost limit race", zap.Error(err))
		return nil, err
	case IsRejection(err) || errors.Is(err, ErrInvalidArgument):
		lg.Info("Coupon redeem rejected", zap.String("reason", result))
		return nil, err
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, errors.Wrap(err, "redeem coupon")
	}
}

// Create validates and stores a new, active coupon.
func (s *Service) Create(ctx context.Context, in Input) (*Coupon, error) {
	now := s.now().UTC()
	c := &Coupon{
		ID:           uuid.NewString(),
		Code:         NormalizeCode(in.Code),
		Description:  in.Description,
		Rule:         in.Rule,
		UsageLimit:   in.UsageLimit,
		PerUserLimit: in.PerUserLimit,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, c); err != nil {
		if errors.Is(err, ErrCodeExists) {
			return nil, err
		}
		return nil, errors.Wrap(err, "create coupon")
	}

	zctx.From(ctx).Info("Coupon created",
		zap.String("coupon.id", c.ID),
		zap.String("coupon.code", c.Code),
	)
	return c, nil
}

// Update replaces the editable fields of an existing coupon. The active
// flag is left untouched.
func (s *Service) Update(ctx context.Context, id string, in Input) (*Coupon, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	c.Code = NormalizeCode(in.Code)
	c.Description = in.Description
	c.Rule = in.Rule
	c.UsageLimit = in.UsageLimit
	c.PerUserLimit = in.PerUserLimit
	c.UpdatedAt = s.now().UTC()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, c); err != nil {
		if errors.Is(err, ErrCodeExists) {
			return nil, err
		}
		return nil, errors.Wrap(err, "update coupon")
	}
	return c, nil
}

// Deactivate soft-deletes a coupon; its ledger is kept.
func (s *Service) Deactivate(ctx context.Context, id string) (*Coupon, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.IsActive {
		return c, nil
	}

	c.IsActive = false
	c.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, errors.Wrap(err, "deactivate coupon")
	}

	zctx.From(ctx).Info("Coupon deactivated", zap.String("coupon.id", c.ID))
	return c, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Coupon, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByCode looks a coupon up by code regardless of its state.
func (s *Service) GetByCode(ctx context.Context, code string) (*Coupon, error) {
	return s.repo.GetByCode(ctx, NormalizeCode(code))
}

// Redemption returns the usage recorded for orderID, or ErrNotFound.
func (s *Service) Redemption(ctx context.Context, couponID, orderID string) (*Usage, error) {
	return s.repo.GetUsage(ctx, couponID, orderID)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Coupon, error) {
	return s.repo.List(ctx, filter)
}

// ListUsages returns the redemption ledger of a coupon, oldest first.
func (s *Service) ListUsages(ctx context.Context, couponID string) ([]Usage, error) {
	if _, err := s.repo.GetByID(ctx, couponID); err != nil {
		return nil, err
	}
	return s.repo.ListUsages(ctx, couponID)
}
