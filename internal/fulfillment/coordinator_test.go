package fulfillment_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/checkout-engine/internal/customer"
	"github.com/noah-isme/checkout-engine/internal/fulfillment"
	"github.com/noah-isme/checkout-engine/internal/pricing"
	"github.com/noah-isme/checkout-engine/internal/store/memory"
)

func seedProducts() *memory.Products {
	return memory.NewProducts(
		fulfillment.Product{ID: "P001", Name: "iPhone 15 Pro Max", Price: 119_999, ShopID: "SHOP001", StockQuantity: 25, Category: "Electronics"},
		fulfillment.Product{ID: "P002", Name: "Samsung Galaxy S24", Price: 89_999, ShopID: "SHOP001", StockQuantity: 50, Category: "Electronics"},
	)
}

func newCoordinator(products *memory.Products) *fulfillment.Coordinator {
	return &fulfillment.Coordinator{Catalog: products, Stock: products}
}

func TestValidateOrderFulfillmentSufficientStock(t *testing.T) {
	c := newCoordinator(seedProducts())
	check, err := c.ValidateOrderFulfillment(context.Background(), []pricing.Line{
		{ProductID: "P001", Quantity: 2},
		{ProductID: "P002", Quantity: 1},
	})
	require.NoError(t, err)
	require.True(t, check.CanFulfill)
	require.Empty(t, check.Issues)
}

func TestValidateOrderFulfillmentInsufficientStock(t *testing.T) {
	c := newCoordinator(seedProducts())
	check, err := c.ValidateOrderFulfillment(context.Background(), []pricing.Line{{ProductID: "P001", Quantity: 30}})
	require.NoError(t, err)
	require.False(t, check.CanFulfill)
	require.Equal(t, []fulfillment.Issue{{ProductID: "P001", ProductName: "iPhone 15 Pro Max", Requested: 30, Available: 25}}, check.Issues)
}

func TestValidateOrderFulfillmentMissingProduct(t *testing.T) {
	c := newCoordinator(seedProducts())
	check, err := c.ValidateOrderFulfillment(context.Background(), []pricing.Line{{ProductID: "P404", Quantity: 1}})
	require.NoError(t, err)
	require.False(t, check.CanFulfill)
	require.Len(t, check.Issues, 1)
	require.Zero(t, check.Issues[0].Available)
}

func TestReduceStockEmptyCart(t *testing.T) {
	c := newCoordinator(seedProducts())
	changes, err := c.ReduceStock(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, changes)
}

func TestReduceStockContinuesPastMissingProduct(t *testing.T) {
	products := seedProducts()
	c := newCoordinator(products)
	changes, err := c.ReduceStock(context.Background(), []pricing.Line{
		{ProductID: "P001", Quantity: 2},
		{ProductID: "P404", Quantity: 1},
		{ProductID: "P002", Quantity: 60},
	})
	require.ErrorIs(t, err, fulfillment.ErrProductNotFound)
	require.Len(t, changes, 2)
	require.Equal(t, 23, changes[0].NewStock)
	require.Zero(t, changes[1].NewStock, "oversell clamps at zero")

	list, err := products.Products(context.Background())
	require.NoError(t, err)
	require.Equal(t, 23, list[0].StockQuantity)
}

type failingCatalog struct{}

func (failingCatalog) Products(context.Context) ([]fulfillment.Product, error) {
	return nil, errors.New("catalog offline")
}

func TestCompleteOrderKeepsFinalizationWhenStockFails(t *testing.T) {
	products := seedProducts()
	c := &fulfillment.Coordinator{Catalog: failingCatalog{}, Stock: products}
	res, err := c.CompleteOrder(context.Background(), fulfillment.CompleteInput{
		Finalize: pricing.FinalizeInput{
			Customer:          customer.Account{ID: "CUST001", LoyaltyPoints: 500, AssignedPromotionIDs: []string{"PROMO001"}},
			PromotionID:       "PROMO001",
			Subtotal:          pricing.Baht(1000),
			Discount:          pricing.Baht(100),
			EffectiveDelivery: pricing.Baht(50),
			RequestedPoints:   200,
		},
		Lines: []pricing.Line{{ProductID: "P404", Quantity: 1}},
	})
	require.NoError(t, err)
	require.Equal(t, pricing.Baht(930), res.FinalTotal)
	require.Equal(t, int64(309), res.UpdatedCustomer.LoyaltyPoints)
	require.Empty(t, res.UpdatedCustomer.AssignedPromotionIDs)
	require.False(t, res.StockUpdateSuccess)
	require.False(t, res.PostPaymentSuccess)
	require.Len(t, res.Errors, 2)
}

func TestCompleteOrderSuccess(t *testing.T) {
	c := newCoordinator(seedProducts())
	res, err := c.CompleteOrder(context.Background(), fulfillment.CompleteInput{
		Finalize: pricing.FinalizeInput{Customer: customer.Account{ID: "CUST001"}, Subtotal: 119_999},
		Lines:    []pricing.Line{{ProductID: "P001", Quantity: 1}},
	})
	require.NoError(t, err)
	require.True(t, res.PostPaymentSuccess)
	require.True(t, res.StockUpdateSuccess)
	require.True(t, res.Fulfillment.CanFulfill)
	require.Empty(t, res.Errors)
	require.Len(t, res.StockChanges, 1)
	require.Equal(t, 24, res.StockChanges[0].NewStock)
}

func TestCompleteOrderOversellStillSucceeds(t *testing.T) {
	c := newCoordinator(seedProducts())
	res, err := c.CompleteOrder(context.Background(), fulfillment.CompleteInput{
		Finalize: pricing.FinalizeInput{Customer: customer.Account{ID: "CUST001"}, Subtotal: pricing.Baht(100)},
		Lines:    []pricing.Line{{ProductID: "P001", Quantity: 30}},
	})
	require.NoError(t, err)
	require.False(t, res.Fulfillment.CanFulfill)
	require.True(t, res.StockUpdateSuccess)
}

func TestCompleteOrderCommitsBeforeStock(t *testing.T) {
	products := seedProducts()
	c := newCoordinator(products)
	var committed pricing.Finalization
	res, err := c.CompleteOrder(context.Background(), fulfillment.CompleteInput{
		Finalize: pricing.FinalizeInput{Customer: customer.Account{ID: "CUST001", LoyaltyPoints: 100}, Subtotal: pricing.Baht(200), RequestedPoints: 100},
		Lines:    []pricing.Line{{ProductID: "P001", Quantity: 1}},
		Commit: func(ctx context.Context, f pricing.Finalization) error {
			committed = f
			return nil
		},
	})
	require.NoError(t, err)
	require.Equal(t, res.UpdatedCustomer, committed.UpdatedCustomer)
	require.True(t, res.StockUpdateSuccess)
}

func TestCompleteOrderCommitFailureLeavesStock(t *testing.T) {
	products := seedProducts()
	c := newCoordinator(products)
	commitErr := errors.New("customer store offline")
	res, err := c.CompleteOrder(context.Background(), fulfillment.CompleteInput{
		Finalize: pricing.FinalizeInput{Customer: customer.Account{ID: "CUST001"}, Subtotal: pricing.Baht(200)},
		Lines:    []pricing.Line{{ProductID: "P001", Quantity: 1}},
		Commit:   func(context.Context, pricing.Finalization) error { return commitErr },
	})
	require.ErrorIs(t, err, commitErr)
	require.Empty(t, res.StockChanges)
	require.False(t, res.StockUpdateSuccess)

	all, err := products.Products(context.Background())
	require.NoError(t, err)
	for _, p := range all {
		if p.ID == "P001" {
			require.Equal(t, 25, p.StockQuantity)
		}
	}
}
