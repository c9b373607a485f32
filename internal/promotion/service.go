package promotion

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/checkout-engine/internal/customer"
	"github.com/noah-isme/checkout-engine/internal/obs"
	"github.com/noah-isme/checkout-engine/internal/pricing"
)

// ValidateInput carries the checkout context a promotion is validated against.
type ValidateInput struct {
	PromotionID string
	// Snapshot is the promotion as held by the caller (e.g. stored on the
	// cart). When set it is validated as-is and the catalog is only consulted
	// to confirm the id is still known.
	Snapshot            *Promotion
	CustomerID          string
	Subtotal            pricing.Money
	Lines               []pricing.Line
	ActivePromotionName string
}

// Service gathers the facts required by Check from the catalog and usage
// ledger and records redemptions.
type Service struct {
	Catalog Catalog
	Ledger  Ledger
	Now     func() time.Time
	Logger  zerolog.Logger
}

// Validate evaluates the promotion for the given checkout. Rejections are
// reported through Result; only storage failures produce an error.
func (s *Service) Validate(ctx context.Context, in ValidateInput) (Result, error) {
	if s == nil || s.Catalog == nil || s.Ledger == nil {
		return Result{}, errors.New("promotion service not configured")
	}
	ctx, span := otel.Tracer("promotion.Service").Start(ctx, "PromotionService.Validate")
	defer span.End()

	id := strings.TrimSpace(in.PromotionID)
	if in.Snapshot != nil && id == "" {
		id = in.Snapshot.ID
	}
	span.SetAttributes(attribute.String("promotion.id", id))

	facts := Facts{
		Now:                 s.now(),
		Subtotal:            in.Subtotal,
		Lines:               in.Lines,
		ActivePromotionName: in.ActivePromotionName,
	}

	var promo *Promotion
	if in.Snapshot != nil {
		prepared := in.Snapshot.Prepared()
		promo = &prepared
		if _, err := s.Catalog.FindByID(ctx, id); err == nil {
			facts.InCatalog = true
		} else if !errors.Is(err, ErrNotFound) {
			return Result{}, fmt.Errorf("find promotion %s: %w", id, err)
		}
	} else if id != "" {
		found, err := s.Catalog.FindByID(ctx, id)
		switch {
		case err == nil:
			promo = found
			facts.InCatalog = true
		case !errors.Is(err, ErrNotFound):
			return Result{}, fmt.Errorf("find promotion %s: %w", id, err)
		}
	}

	if promo != nil && facts.InCatalog {
		if cid := strings.TrimSpace(in.CustomerID); cid != "" {
			usage, err := s.Ledger.CustomerUsage(ctx, cid)
			if err != nil {
				return Result{}, fmt.Errorf("customer usage: %w", err)
			}
			facts.CustomerRedeemed = slices.ContainsFunc(usage, func(u Usage) bool { return u.PromotionID == promo.ID })
		}
		if promo.GlobalLimit != nil {
			used, err := s.Ledger.GlobalUsage(ctx, promo.ID)
			if err != nil {
				return Result{}, fmt.Errorf("global usage: %w", err)
			}
			facts.GlobalUsed = used
		}
	}

	result := Check(promo, facts)
	label := "valid"
	if !result.Valid {
		label = string(result.Reason)
	}
	span.SetAttributes(attribute.String("promotion.result", label))
	if obs.PromotionValidationTotal != nil {
		obs.PromotionValidationTotal.WithLabelValues(label).Inc()
	}
	s.Logger.Debug().
		Str("promotion_id", id).
		Str("customer_id", in.CustomerID).
		Str("result", label).
		Int64("discount", result.Discount).
		Msg("promotion validated")
	return result, nil
}

// RecordUsage marks the promotion as redeemed by the customer. Ledgers that
// support it check first-use and the global limit atomically, returning
// ErrAlreadyRedeemed or ErrGlobalLimitReached instead of over-counting.
func (s *Service) RecordUsage(ctx context.Context, customerID string, p *Promotion) error {
	if s == nil || s.Ledger == nil {
		return errors.New("promotion service not configured")
	}
	if p == nil || strings.TrimSpace(customerID) == "" {
		return nil
	}
	if atomic, ok := s.Ledger.(AtomicLedger); ok {
		return atomic.RecordUsageWithin(ctx, customerID, p.ID, p.GlobalLimit)
	}
	return s.Ledger.RecordUsage(ctx, customerID, p.ID)
}

// ReleaseUsage gives back a redemption recorded by RecordUsage. Ledgers
// without release support report an error so the caller can log the leak.
func (s *Service) ReleaseUsage(ctx context.Context, customerID string, p *Promotion) error {
	if s == nil || s.Ledger == nil {
		return errors.New("promotion service not configured")
	}
	if p == nil || strings.TrimSpace(customerID) == "" {
		return nil
	}
	releaser, ok := s.Ledger.(UsageReleaser)
	if !ok {
		return errors.New("ledger cannot release usage")
	}
	return releaser.ReleaseUsage(ctx, customerID, p.ID)
}

// ActiveForCustomer lists catalog promotions assigned to the customer that are
// active right now, in catalog order.
func (s *Service) ActiveForCustomer(ctx context.Context, account customer.Account) ([]Promotion, error) {
	if s == nil || s.Catalog == nil {
		return nil, errors.New("promotion service not configured")
	}
	all, err := s.Catalog.Promotions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list promotions: %w", err)
	}
	now := s.now()
	out := make([]Promotion, 0, len(account.AssignedPromotionIDs))
	for _, p := range all {
		if account.HasPromotion(p.ID) && p.ActiveAt(now) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
