package memory_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/checkout-engine/internal/customer"
	"github.com/noah-isme/checkout-engine/internal/fulfillment"
	"github.com/noah-isme/checkout-engine/internal/promotion"
	"github.com/noah-isme/checkout-engine/internal/store/memory"
)

func TestDecrementStockClampsAtZero(t *testing.T) {
	products := memory.NewProducts(fulfillment.Product{ID: "P001", StockQuantity: 3})
	change, err := products.DecrementStock(context.Background(), "P001", 5)
	require.NoError(t, err)
	require.Equal(t, 3, change.PreviousStock)
	require.Zero(t, change.NewStock)

	_, err = products.DecrementStock(context.Background(), "P404", 1)
	require.ErrorIs(t, err, fulfillment.ErrProductNotFound)
}

func TestPromotionsPreparedOnLoad(t *testing.T) {
	promos := memory.NewPromotions(promotion.Promotion{ID: "PROMO001", Name: "P15C100", Kind: promotion.KindPercentage})
	p, err := promos.FindByID(context.Background(), "PROMO001")
	require.NoError(t, err)
	require.Equal(t, "15", p.Terms.Amount.String())

	_, err = promos.FindByID(context.Background(), "NOPE")
	require.ErrorIs(t, err, promotion.ErrNotFound)
}

func TestCustomersReturnCopies(t *testing.T) {
	store := memory.NewCustomers(customer.Account{ID: "CUST001", AssignedPromotionIDs: []string{"PROMO001"}})
	a, err := store.Get(context.Background(), "CUST001")
	require.NoError(t, err)
	a.AssignedPromotionIDs[0] = "MUTATED"

	again, err := store.Get(context.Background(), "CUST001")
	require.NoError(t, err)
	require.Equal(t, []string{"PROMO001"}, again.AssignedPromotionIDs)

	_, err = store.Get(context.Background(), "CUST404")
	require.ErrorIs(t, err, customer.ErrNotFound)
}

func TestLedgerRecordUsageWithin(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()
	limit := 2

	require.NoError(t, ledger.RecordUsageWithin(ctx, "CUST001", "PROMO001", &limit))
	require.ErrorIs(t, ledger.RecordUsageWithin(ctx, "CUST001", "PROMO001", &limit), promotion.ErrAlreadyRedeemed)
	require.NoError(t, ledger.RecordUsageWithin(ctx, "CUST002", "PROMO001", &limit))
	require.ErrorIs(t, ledger.RecordUsageWithin(ctx, "CUST003", "PROMO001", &limit), promotion.ErrGlobalLimitReached)

	used, err := ledger.GlobalUsage(ctx, "PROMO001")
	require.NoError(t, err)
	require.Equal(t, 2, used)
}

func TestLedgerReleaseUsage(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()
	limit := 1

	require.NoError(t, ledger.RecordUsageWithin(ctx, "CUST001", "PROMO001", &limit))
	require.NoError(t, ledger.ReleaseUsage(ctx, "CUST001", "PROMO001"))
	require.NoError(t, ledger.ReleaseUsage(ctx, "CUST001", "PROMO001"))

	used, err := ledger.GlobalUsage(ctx, "PROMO001")
	require.NoError(t, err)
	require.Zero(t, used)
	require.NoError(t, ledger.RecordUsageWithin(ctx, "CUST002", "PROMO001", &limit))
}

func TestLedgerConcurrentRedemptionsRespectLimit(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()
	limit := 5
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = ledger.RecordUsageWithin(ctx, "CUST"+string(rune('A'+i)), "PROMO001", &limit)
		}()
	}
	wg.Wait()
	used, err := ledger.GlobalUsage(ctx, "PROMO001")
	require.NoError(t, err)
	require.Equal(t, limit, used)
}
