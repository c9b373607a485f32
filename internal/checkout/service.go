package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/checkout-engine/internal/common"
	"github.com/noah-isme/checkout-engine/internal/customer"
	"github.com/noah-isme/checkout-engine/internal/events"
	"github.com/noah-isme/checkout-engine/internal/fulfillment"
	"github.com/noah-isme/checkout-engine/internal/obs"
	"github.com/noah-isme/checkout-engine/internal/pricing"
	"github.com/noah-isme/checkout-engine/internal/promotion"
)

// Locker serializes work per key across processes.
type Locker interface {
	CheckoutKey(customerID string) string
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

type QuoteInput struct {
	CustomerID          string                    `json:"customerId" validate:"required"`
	Lines               []pricing.Line            `json:"lines" validate:"required,min=1,dive"`
	PromotionID         string                    `json:"promotionId"`
	ActivePromotionName string                    `json:"activePromotionName"`
	Delivery            pricing.DeliverySelection `json:"delivery"`
	RequestedPoints     int64                     `json:"requestedPoints" validate:"gte=0"`
}

type Quote struct {
	CustomerID        string                 `json:"customerId"`
	Subtotal          pricing.Money          `json:"subtotal"`
	Delivery          pricing.DeliveryQuote  `json:"delivery"`
	Promotion         *promotion.Result      `json:"promotion,omitempty"`
	Discount          pricing.Money          `json:"discount"`
	EffectiveDelivery pricing.Money          `json:"effectiveDelivery"`
	Price             pricing.PriceBreakdown `json:"price"`
	PointsBalance     int64                  `json:"pointsBalance"`
}

type CompleteInput struct {
	QuoteInput
	OrderID string `json:"orderId"`
}

// Receipt is the outcome of a completed checkout. It is returned even when
// stock reduction partly failed; see StockUpdateSuccess and Errors.
type Receipt struct {
	OrderID   string                `json:"orderId"`
	Delivery  pricing.DeliveryQuote `json:"delivery"`
	Promotion *promotion.Result     `json:"promotion,omitempty"`
	fulfillment.CompleteResult
}

type Service struct {
	Customers   customer.Store
	Promotions  *promotion.Service
	Coordinator *fulfillment.Coordinator
	Fees        pricing.FeeSchedule
	Locker      Locker
	LockTTL     time.Duration
	Events      *events.Bus
	// BlockOnStockShortage refuses completion before any mutation when the
	// cart cannot be fulfilled from current stock.
	BlockOnStockShortage bool
	Logger               zerolog.Logger
}

type priced struct {
	account   customer.Account
	quote     Quote
	promotion *promotion.Promotion
}

// Quote prices a cart without mutating anything.
func (s *Service) Quote(ctx context.Context, in QuoteInput) (Quote, error) {
	if s == nil || s.Customers == nil || s.Promotions == nil {
		return Quote{}, errors.New("checkout service not configured")
	}
	ctx, span := otel.Tracer("checkout.Service").Start(ctx, "CheckoutService.Quote")
	defer span.End()
	span.SetAttributes(attribute.String("customer.id", in.CustomerID))

	p, err := s.price(ctx, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "quote failed")
		return Quote{}, err
	}
	return p.quote, nil
}

// Complete settles a paid checkout under the customer's lock. The promotion is
// re-validated and its usage reserved, then the order is finalized and the
// customer saved before stock is reduced. A failed save releases the
// reservation and aborts with nothing else changed.
func (s *Service) Complete(ctx context.Context, in CompleteInput) (Receipt, error) {
	if s == nil || s.Customers == nil || s.Promotions == nil || s.Coordinator == nil {
		return Receipt{}, errors.New("checkout service not configured")
	}
	if strings.TrimSpace(in.CustomerID) == "" {
		return Receipt{}, common.NewAppError(common.CodeBadRequest, "customerId is required", http.StatusBadRequest, nil)
	}
	ctx, span := otel.Tracer("checkout.Service").Start(ctx, "CheckoutService.Complete")
	defer span.End()

	orderID := strings.TrimSpace(in.OrderID)
	if orderID == "" {
		orderID = uuid.NewString()
	}
	span.SetAttributes(attribute.String("customer.id", in.CustomerID), attribute.String("order.id", orderID))

	var receipt Receipt
	run := func(ctx context.Context) error {
		var err error
		receipt, err = s.complete(ctx, orderID, in)
		return err
	}
	var err error
	if s.Locker != nil {
		err = s.Locker.WithLock(ctx, s.Locker.CheckoutKey(in.CustomerID), s.LockTTL, run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		if common.IsAppError(err) {
			countCompletion("rejected")
		} else {
			countCompletion("failed")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "checkout not completed")
		return Receipt{}, err
	}

	result := "completed"
	if !receipt.StockUpdateSuccess {
		result = "stock_failed"
	}
	countCompletion(result)
	if obs.CheckoutFinalTotal != nil {
		obs.CheckoutFinalTotal.Observe(float64(receipt.FinalTotal))
	}
	if obs.LoyaltyPointsTotal != nil {
		obs.LoyaltyPointsTotal.WithLabelValues("spent").Add(float64(receipt.PointsSpent))
		obs.LoyaltyPointsTotal.WithLabelValues("earned").Add(float64(receipt.PointsEarned))
	}
	span.SetAttributes(attribute.Int64("checkout.final_total", receipt.FinalTotal), attribute.String("checkout.result", result))
	return receipt, nil
}

func (s *Service) complete(ctx context.Context, orderID string, in CompleteInput) (Receipt, error) {
	p, err := s.price(ctx, in.QuoteInput)
	if err != nil {
		return Receipt{}, err
	}
	if res := p.quote.Promotion; res != nil && !res.Valid {
		return Receipt{}, common.NewAppError(common.CodePromotionRejected, res.Reason.Message(), http.StatusUnprocessableEntity, nil).
			WithDetails(map[string]any{"reason": res.Reason, "promotionId": in.PromotionID})
	}

	if s.BlockOnStockShortage {
		check, err := s.Coordinator.ValidateOrderFulfillment(ctx, in.Lines)
		if err != nil {
			return Receipt{}, fmt.Errorf("validate fulfillment: %w", err)
		}
		if !check.CanFulfill {
			s.emit(ctx, events.TopicStockShortage, orderID, map[string]any{
				"orderId":    orderID,
				"customerId": in.CustomerID,
				"issues":     check.Issues,
				"blocked":    true,
			})
			return Receipt{}, common.NewAppError(common.CodeStockShortage, "insufficient stock for one or more items", http.StatusConflict, nil).
				WithDetails(check.Issues)
		}
	}

	promotionID := ""
	if p.promotion != nil {
		promotionID = p.promotion.ID
		if err := s.reserveUsage(ctx, in.CustomerID, p.promotion); err != nil {
			return Receipt{}, err
		}
	}
	result, err := s.Coordinator.CompleteOrder(ctx, fulfillment.CompleteInput{
		Finalize: pricing.FinalizeInput{
			Customer:          p.account,
			PromotionID:       promotionID,
			Subtotal:          p.quote.Subtotal,
			TotalDeliveryFee:  p.quote.Delivery.TotalFee,
			EffectiveDelivery: p.quote.EffectiveDelivery,
			Discount:          p.quote.Discount,
			RequestedPoints:   in.RequestedPoints,
		},
		Lines: in.Lines,
		Commit: func(ctx context.Context, f pricing.Finalization) error {
			return s.Customers.Save(ctx, f.UpdatedCustomer)
		},
	})
	if err != nil {
		s.Logger.Error().Err(err).Str("order_id", orderID).Str("customer_id", in.CustomerID).Msg("failed to save customer, checkout aborted")
		if p.promotion != nil {
			if rerr := s.Promotions.ReleaseUsage(context.WithoutCancel(ctx), in.CustomerID, p.promotion); rerr != nil {
				s.Logger.Error().Err(rerr).Str("order_id", orderID).Str("promotion_id", promotionID).Msg("reserved promotion usage not released")
			}
		}
		return Receipt{}, fmt.Errorf("complete order: %w", err)
	}
	receipt := Receipt{OrderID: orderID, Delivery: p.quote.Delivery, Promotion: p.quote.Promotion, CompleteResult: result}

	if p.promotion != nil {
		s.emit(ctx, events.TopicPromotionRedeemed, promotionID, map[string]any{
			"promotionId": promotionID,
			"customerId":  in.CustomerID,
			"orderId":     orderID,
			"discount":    result.Discount,
		})
	}

	if !result.Fulfillment.CanFulfill && len(result.Fulfillment.Issues) > 0 {
		s.emit(ctx, events.TopicStockShortage, orderID, map[string]any{
			"orderId":    orderID,
			"customerId": in.CustomerID,
			"issues":     result.Fulfillment.Issues,
			"blocked":    false,
		})
	}
	s.emit(ctx, events.TopicCheckoutCompleted, orderID, map[string]any{
		"orderId":            orderID,
		"customerId":         in.CustomerID,
		"promotionId":        promotionID,
		"finalTotal":         result.FinalTotal,
		"pointsSpent":        result.PointsSpent,
		"pointsEarned":       result.PointsEarned,
		"stockUpdateSuccess": result.StockUpdateSuccess,
	})

	s.Logger.Info().
		Str("order_id", orderID).
		Str("customer_id", in.CustomerID).
		Int64("final_total", result.FinalTotal).
		Bool("stock_update_success", result.StockUpdateSuccess).
		Msg("checkout completed")
	return receipt, nil
}

// reserveUsage records the redemption before anything is committed. The
// ledger re-checks first use and the global limit, so a slot taken by a
// concurrent checkout since validation rejects this one.
func (s *Service) reserveUsage(ctx context.Context, customerID string, p *promotion.Promotion) error {
	err := s.Promotions.RecordUsage(ctx, customerID, p)
	var reason promotion.Reason
	switch {
	case err == nil:
		return nil
	case errors.Is(err, promotion.ErrGlobalLimitReached):
		reason = promotion.ReasonExceededGlobalLimit
	case errors.Is(err, promotion.ErrAlreadyRedeemed):
		reason = promotion.ReasonExceededUsageLimit
	default:
		return fmt.Errorf("reserve promotion usage: %w", err)
	}
	return common.NewAppError(common.CodePromotionRejected, reason.Message(), http.StatusUnprocessableEntity, err).
		WithDetails(map[string]any{"reason": reason, "promotionId": p.ID})
}

// price loads the customer and prices the cart, validating the promotion when
// one is selected.
func (s *Service) price(ctx context.Context, in QuoteInput) (priced, error) {
	account, err := s.Customers.Get(ctx, strings.TrimSpace(in.CustomerID))
	if err != nil {
		if errors.Is(err, customer.ErrNotFound) {
			return priced{}, common.NewAppError(common.CodeCustomerNotFound, "customer not found", http.StatusNotFound, err)
		}
		return priced{}, fmt.Errorf("load customer: %w", err)
	}

	subtotal := pricing.Subtotal(in.Lines)
	delivery := s.fees().Compute(in.Lines, in.Delivery)
	out := priced{account: account}
	out.quote = Quote{
		CustomerID:        account.ID,
		Subtotal:          subtotal,
		Delivery:          delivery,
		EffectiveDelivery: delivery.TotalFee,
		PointsBalance:     account.LoyaltyPoints,
	}

	if id := strings.TrimSpace(in.PromotionID); id != "" {
		res, err := s.Promotions.Validate(ctx, promotion.ValidateInput{
			PromotionID:         id,
			CustomerID:          account.ID,
			Subtotal:            subtotal,
			Lines:               in.Lines,
			ActivePromotionName: in.ActivePromotionName,
		})
		if err != nil {
			return priced{}, err
		}
		out.quote.Promotion = &res
		if res.Valid {
			promo, err := s.Promotions.Catalog.FindByID(ctx, id)
			if err != nil {
				return priced{}, fmt.Errorf("find promotion %s: %w", id, err)
			}
			out.promotion = promo
			out.quote.Discount = res.Discount
			out.quote.EffectiveDelivery = promotion.EffectiveDelivery(promo, delivery.TotalFee)
		}
	}

	out.quote.Price = pricing.ComputeFinalPrice(subtotal, out.quote.Discount, in.RequestedPoints, out.quote.EffectiveDelivery, account.LoyaltyPoints)
	return out, nil
}

func (s *Service) fees() pricing.FeeSchedule {
	if s.Fees == (pricing.FeeSchedule{}) {
		return pricing.DefaultFeeSchedule
	}
	return s.Fees
}

func (s *Service) emit(ctx context.Context, topic, aggregateID string, payload any) {
	if s.Events == nil {
		return
	}
	if _, err := s.Events.Emit(ctx, topic, aggregateID, payload); err != nil {
		s.Logger.Warn().Err(err).Str("topic", topic).Str("aggregate_id", aggregateID).Msg("failed to emit event")
	}
}

func countCompletion(result string) {
	if obs.CheckoutCompletedTotal != nil {
		obs.CheckoutCompletedTotal.WithLabelValues(result).Inc()
	}
}
