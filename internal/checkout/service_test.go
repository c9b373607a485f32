package checkout_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/checkout-engine/internal/checkout"
	"github.com/noah-isme/checkout-engine/internal/common"
	"github.com/noah-isme/checkout-engine/internal/customer"
	"github.com/noah-isme/checkout-engine/internal/events"
	"github.com/noah-isme/checkout-engine/internal/fulfillment"
	"github.com/noah-isme/checkout-engine/internal/lock"
	"github.com/noah-isme/checkout-engine/internal/pricing"
	"github.com/noah-isme/checkout-engine/internal/promotion"
	"github.com/noah-isme/checkout-engine/internal/store/memory"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc       *checkout.Service
	products  *memory.Products
	customers *memory.Customers
	ledger    *memory.Ledger
	events    *memory.Events
}

func activePromotion(id, name string, kind promotion.Kind) promotion.Promotion {
	return promotion.Promotion{ID: id, Name: name, Kind: kind, StartDate: testNow.AddDate(0, -1, 0), EndDate: testNow.AddDate(0, 1, 0)}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		products: memory.NewProducts(
			fulfillment.Product{ID: "P001", Name: "iPhone 15 Pro Max", Price: pricing.Baht(1000), ShopID: "SHOP001", StockQuantity: 25, Category: "Electronics"},
			fulfillment.Product{ID: "P002", Name: "Nike Air Max", Price: pricing.Baht(500), ShopID: "SHOP002", StockQuantity: 50, Category: "Fashion"},
		),
		customers: memory.NewCustomers(customer.Account{
			ID:                   "CUST001",
			Name:                 "Somchai",
			LoyaltyPoints:        500,
			AssignedPromotionIDs: []string{"PROMO001", "PROMO003"},
		}),
		ledger: memory.NewLedger(),
		events: &memory.Events{},
	}
	catalog := memory.NewPromotions(
		activePromotion("PROMO001", "P15C100", promotion.KindPercentage),
		activePromotion("PROMO003", "FREESHIP", promotion.KindFreeDelivery),
	)
	f.svc = &checkout.Service{
		Customers:   f.customers,
		Promotions:  &promotion.Service{Catalog: catalog, Ledger: f.ledger, Now: func() time.Time { return testNow }},
		Coordinator: &fulfillment.Coordinator{Catalog: f.products, Stock: f.products},
		Fees:        pricing.DefaultFeeSchedule,
		Events:      &events.Bus{Store: f.events, Now: func() time.Time { return testNow }},
	}
	return f
}

func cartLines() []pricing.Line {
	return []pricing.Line{
		{ProductID: "P001", ShopID: "SHOP001", Category: "Electronics", UnitPrice: pricing.Baht(1000), Quantity: 1},
		{ProductID: "P002", ShopID: "SHOP002", Category: "Fashion", UnitPrice: pricing.Baht(500), Quantity: 2},
	}
}

func topics(list []events.Event) []string {
	out := make([]string, 0, len(list))
	for _, ev := range list {
		out = append(out, ev.Topic)
	}
	return out
}

func TestQuoteDoesNotMutate(t *testing.T) {
	f := newFixture(t)
	q, err := f.svc.Quote(context.Background(), checkout.QuoteInput{
		CustomerID:      "CUST001",
		Lines:           cartLines(),
		PromotionID:     "PROMO001",
		RequestedPoints: 505,
	})
	require.NoError(t, err)
	require.Equal(t, pricing.Baht(2000), q.Subtotal)
	require.Equal(t, pricing.Baht(38), q.Delivery.TotalFee)
	require.True(t, q.Promotion.Valid)
	require.Equal(t, pricing.Baht(100), q.Discount)

	want := pricing.PriceBreakdown{
		PayableBeforePoints: pricing.Baht(1938),
		PointsSpent:         500,
		PointsDiscount:      pricing.Baht(50),
		FinalTotal:          pricing.Baht(1888),
	}
	if diff := cmp.Diff(want, q.Price); diff != "" {
		t.Fatalf("price mismatch (-want +got):\n%s", diff)
	}

	acct, err := f.customers.Get(context.Background(), "CUST001")
	require.NoError(t, err)
	require.Equal(t, int64(500), acct.LoyaltyPoints)
	require.Empty(t, f.events.List())
}

func TestQuoteFreeDeliveryZeroesDelivery(t *testing.T) {
	f := newFixture(t)
	q, err := f.svc.Quote(context.Background(), checkout.QuoteInput{
		CustomerID:  "CUST001",
		Lines:       cartLines(),
		PromotionID: "PROMO003",
		Delivery:    pricing.DeliverySelection{"SHOP001": pricing.TierPriority},
	})
	require.NoError(t, err)
	require.Equal(t, pricing.Baht(48), q.Delivery.TotalFee)
	require.Zero(t, q.EffectiveDelivery)
	require.Zero(t, q.Discount)
	require.Equal(t, pricing.Baht(2000), q.Price.FinalTotal)
}

func TestQuoteUnknownCustomer(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Quote(context.Background(), checkout.QuoteInput{CustomerID: "CUST404", Lines: cartLines()})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "CUSTOMER_NOT_FOUND", appErr.Code)
	require.Equal(t, http.StatusNotFound, appErr.HTTPStatus)
}

func TestCompleteSettlesCheckout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	receipt, err := f.svc.Complete(ctx, checkout.CompleteInput{
		QuoteInput: checkout.QuoteInput{
			CustomerID:      "CUST001",
			Lines:           cartLines(),
			PromotionID:     "PROMO001",
			RequestedPoints: 505,
		},
		OrderID: "ORD-1",
	})
	require.NoError(t, err)
	require.Equal(t, "ORD-1", receipt.OrderID)
	require.Equal(t, pricing.Baht(1888), receipt.FinalTotal)
	require.Equal(t, int64(18), receipt.PointsEarned)
	require.True(t, receipt.StockUpdateSuccess)
	require.True(t, receipt.PostPaymentSuccess)
	require.Empty(t, receipt.Errors)

	acct, err := f.customers.Get(ctx, "CUST001")
	require.NoError(t, err)
	require.Equal(t, int64(18), acct.LoyaltyPoints)
	require.Equal(t, []string{"PROMO003"}, acct.AssignedPromotionIDs)

	usage, err := f.ledger.CustomerUsage(ctx, "CUST001")
	require.NoError(t, err)
	require.Len(t, usage, 1)
	require.Equal(t, "PROMO001", usage[0].PromotionID)

	stock, err := f.products.Products(ctx)
	require.NoError(t, err)
	require.Equal(t, 24, stock[0].StockQuantity)
	require.Equal(t, 48, stock[1].StockQuantity)

	require.Equal(t, []string{events.TopicPromotionRedeemed, events.TopicCheckoutCompleted}, topics(f.events.List()))
}

func TestCompleteRejectsReusedPromotion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := checkout.CompleteInput{QuoteInput: checkout.QuoteInput{CustomerID: "CUST001", Lines: cartLines(), PromotionID: "PROMO001"}}
	_, err := f.svc.Complete(ctx, in)
	require.NoError(t, err)
	before, err := f.customers.Get(ctx, "CUST001")
	require.NoError(t, err)

	_, err = f.svc.Complete(ctx, in)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "PROMOTION_REJECTED", appErr.Code)
	require.Equal(t, http.StatusUnprocessableEntity, appErr.HTTPStatus)
	details, ok := appErr.Details.(map[string]any)
	require.True(t, ok)
	require.Equal(t, promotion.ReasonExceededUsageLimit, details["reason"])

	after, err := f.customers.Get(ctx, "CUST001")
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestCompleteBestEffortOnShortage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	receipt, err := f.svc.Complete(ctx, checkout.CompleteInput{QuoteInput: checkout.QuoteInput{
		CustomerID: "CUST001",
		Lines: []pricing.Line{
			{ProductID: "P001", ShopID: "SHOP001", UnitPrice: pricing.Baht(1000), Quantity: 30},
			{ProductID: "P404", ShopID: "SHOP009", UnitPrice: pricing.Baht(10), Quantity: 1},
		},
	}})
	require.NoError(t, err)
	require.False(t, receipt.Fulfillment.CanFulfill)
	require.False(t, receipt.StockUpdateSuccess)
	require.NotEmpty(t, receipt.Errors)
	require.Equal(t, pricing.Baht(30_010+38), receipt.FinalTotal)

	stock, err := f.products.Products(ctx)
	require.NoError(t, err)
	require.Zero(t, stock[0].StockQuantity)
	require.Contains(t, topics(f.events.List()), events.TopicStockShortage)
}

func TestCompleteBlocksOnShortageWhenConfigured(t *testing.T) {
	f := newFixture(t)
	f.svc.BlockOnStockShortage = true
	ctx := context.Background()
	_, err := f.svc.Complete(ctx, checkout.CompleteInput{QuoteInput: checkout.QuoteInput{
		CustomerID: "CUST001",
		Lines:      []pricing.Line{{ProductID: "P001", ShopID: "SHOP001", UnitPrice: pricing.Baht(1000), Quantity: 30}},
	}})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "STOCK_SHORTAGE", appErr.Code)

	stock, err := f.products.Products(ctx)
	require.NoError(t, err)
	require.Equal(t, 25, stock[0].StockQuantity)
	acct, err := f.customers.Get(ctx, "CUST001")
	require.NoError(t, err)
	require.Equal(t, int64(500), acct.LoyaltyPoints)
	require.Equal(t, []string{events.TopicStockShortage}, topics(f.events.List()))
}

// rivalLedger lets another customer redeem the promotion right after the
// global counter has been read for validation.
type rivalLedger struct {
	*memory.Ledger
	rival string
	once  sync.Once
}

func (l *rivalLedger) GlobalUsage(ctx context.Context, promotionID string) (int, error) {
	used, err := l.Ledger.GlobalUsage(ctx, promotionID)
	l.once.Do(func() { _ = l.Ledger.RecordUsage(ctx, l.rival, promotionID) })
	return used, err
}

func TestCompleteRejectsPromotionTakenByConcurrentCheckout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	limited := activePromotion("PROMO009", "F100", promotion.KindFixed)
	limited.GlobalLimit = intPtr(1)
	ledger := &rivalLedger{Ledger: f.ledger, rival: "CUST002"}
	f.svc.Promotions = &promotion.Service{
		Catalog: memory.NewPromotions(limited),
		Ledger:  ledger,
		Now:     func() time.Time { return testNow },
	}
	before, err := f.customers.Get(ctx, "CUST001")
	require.NoError(t, err)

	_, err = f.svc.Complete(ctx, checkout.CompleteInput{QuoteInput: checkout.QuoteInput{
		CustomerID:      "CUST001",
		Lines:           cartLines(),
		PromotionID:     "PROMO009",
		RequestedPoints: 100,
	}})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodePromotionRejected, appErr.Code)
	require.ErrorIs(t, err, promotion.ErrGlobalLimitReached)
	details, ok := appErr.Details.(map[string]any)
	require.True(t, ok)
	require.Equal(t, promotion.ReasonExceededGlobalLimit, details["reason"])

	used, err := f.ledger.GlobalUsage(ctx, "PROMO009")
	require.NoError(t, err)
	require.Equal(t, 1, used, "only the concurrent redemption counts")
	after, err := f.customers.Get(ctx, "CUST001")
	require.NoError(t, err)
	require.Equal(t, before, after)
	stock, err := f.products.Products(ctx)
	require.NoError(t, err)
	require.Equal(t, 25, stock[0].StockQuantity)
	require.Empty(t, f.events.List())
}

type failingSaveStore struct {
	*memory.Customers
	err error
}

func (s failingSaveStore) Save(context.Context, customer.Account) error { return s.err }

func TestCompleteAbortsWhenCustomerSaveFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	saveErr := errors.New("customer store offline")
	f.svc.Customers = failingSaveStore{Customers: f.customers, err: saveErr}

	_, err := f.svc.Complete(ctx, checkout.CompleteInput{QuoteInput: checkout.QuoteInput{
		CustomerID:      "CUST001",
		Lines:           cartLines(),
		PromotionID:     "PROMO001",
		RequestedPoints: 500,
	}})
	require.ErrorIs(t, err, saveErr)
	require.False(t, common.IsAppError(err))

	usage, err := f.ledger.CustomerUsage(ctx, "CUST001")
	require.NoError(t, err)
	require.Empty(t, usage, "reserved usage is released")
	used, err := f.ledger.GlobalUsage(ctx, "PROMO001")
	require.NoError(t, err)
	require.Zero(t, used)

	acct, err := f.customers.Get(ctx, "CUST001")
	require.NoError(t, err)
	require.Equal(t, int64(500), acct.LoyaltyPoints)
	require.Equal(t, []string{"PROMO001", "PROMO003"}, acct.AssignedPromotionIDs)
	stock, err := f.products.Products(ctx)
	require.NoError(t, err)
	require.Equal(t, 25, stock[0].StockQuantity)
	require.Empty(t, f.events.List())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/complete",
		strings.NewReader(`{"customerId":"CUST001","lines":[{"productId":"P001","shopId":"SHOP001","unitPrice":100000,"quantity":1}]}`))
	(&checkout.Handler{Svc: f.svc}).Complete(rec, req)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func intPtr(v int) *int { return &v }

func newRedisLocker(t *testing.T) (lock.Locker, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return lock.Locker{R: client, RetryBackoff: 5 * time.Millisecond, MaxWait: 30 * time.Millisecond}, mr
}

func TestCompleteRunsUnderCustomerLock(t *testing.T) {
	f := newFixture(t)
	locker, mr := newRedisLocker(t)
	f.svc.Locker = locker
	f.svc.LockTTL = time.Second

	_, err := f.svc.Complete(context.Background(), checkout.CompleteInput{QuoteInput: checkout.QuoteInput{CustomerID: "CUST001", Lines: cartLines()}})
	require.NoError(t, err)
	require.False(t, mr.Exists(locker.CheckoutKey("CUST001")))

	require.NoError(t, mr.Set(locker.CheckoutKey("CUST001"), "held"))
	_, err = f.svc.Complete(context.Background(), checkout.CompleteInput{QuoteInput: checkout.QuoteInput{CustomerID: "CUST001", Lines: cartLines()}})
	require.ErrorIs(t, err, lock.ErrNotAcquired)
}

func TestHandlerComplete(t *testing.T) {
	f := newFixture(t)
	h := &checkout.Handler{Svc: f.svc}

	body := `{"customerId":"CUST001","promotionId":"PROMO001","requestedPoints":100,"lines":[{"productId":"P001","shopId":"SHOP001","unitPrice":100000,"quantity":1}]}`
	rec := httptest.NewRecorder()
	h.Complete(rec, httptest.NewRequest(http.MethodPost, "/api/v1/checkout/complete", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Data struct {
			OrderID    string `json:"orderId"`
			FinalTotal int64  `json:"finalTotal"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data.OrderID)
	require.Equal(t, pricing.Baht(1000+19-100-10), resp.Data.FinalTotal)

	rec = httptest.NewRecorder()
	h.Complete(rec, httptest.NewRequest(http.MethodPost, "/api/v1/checkout/complete", strings.NewReader(body)))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, rec.Body.String(), "PROMOTION_REJECTED")
}

func TestHandlerQuoteRejectsInvalidPayload(t *testing.T) {
	h := &checkout.Handler{Svc: newFixture(t).svc}
	rec := httptest.NewRecorder()
	h.Quote(rec, httptest.NewRequest(http.MethodPost, "/api/v1/checkout/quote", strings.NewReader(`{"customerId":"CUST001","lines":[]}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "BAD_REQUEST")
}
