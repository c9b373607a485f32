package main

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/checkout-engine/internal/customer"
	"github.com/noah-isme/checkout-engine/internal/fulfillment"
	"github.com/noah-isme/checkout-engine/internal/obs"
	"github.com/noah-isme/checkout-engine/internal/pricing"
	"github.com/noah-isme/checkout-engine/internal/promotion"
	"github.com/noah-isme/checkout-engine/internal/store/postgres"
	"github.com/noah-isme/checkout-engine/internal/store/redisstore"
)

func main() {
	_ = godotenv.Load()
	logger := obs.NewLogger("console", "info")

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Fatal().Msg("DATABASE_URL is not set")
	}

	m, err := postgres.NewMigrator(dbURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise migrations")
	}
	if err := postgres.RunMigrations(m); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}
	_, _ = m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool, err := postgres.OpenPool(ctx, dbURL, "checkout-seeder")
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	q := postgres.New(pool)

	logger.Info().Msg("seeding products")
	for _, p := range products() {
		if err := q.UpsertProduct(ctx, p); err != nil {
			logger.Error().Err(err).Str("product_id", p.ID).Msg("seed product")
		}
	}

	logger.Info().Msg("seeding promotions")
	for _, p := range promotions() {
		if err := q.UpsertPromotion(ctx, p); err != nil {
			logger.Error().Err(err).Str("promotion_id", p.ID).Msg("seed promotion")
		}
	}

	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		if err := invalidatePromotionCache(ctx, redisURL, q); err != nil {
			logger.Warn().Err(err).Msg("invalidate promotion cache")
		}
	}

	logger.Info().Msg("seeding customers")
	customers := postgres.Customers{Q: q}
	for _, c := range accounts() {
		if err := customers.Save(ctx, c); err != nil {
			logger.Error().Err(err).Str("customer_id", c.ID).Msg("seed customer")
		}
	}

	logger.Info().Msg("seeding completed")
}

func invalidatePromotionCache(ctx context.Context, redisURL string, q *postgres.Queries) error {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return err
	}
	client := redis.NewClient(opts)
	defer client.Close()
	cached := redisstore.CachedPromotions{Next: q, Cache: redisstore.NewCache(client, 0)}
	return cached.Invalidate(ctx)
}

func products() []fulfillment.Product {
	return []fulfillment.Product{
		{ID: "P001", Name: "iPhone 15 Pro Max", Price: pricing.Baht(48_900), ShopID: "SHOP001", StockQuantity: 25, Category: "Electronics"},
		{ID: "P002", Name: "Samsung Galaxy S24 Ultra", Price: pricing.Baht(46_900), ShopID: "SHOP002", StockQuantity: 50, Category: "Electronics"},
		{ID: "P003", Name: "Nike Air Max 270", Price: pricing.Baht(5_200), ShopID: "SHOP003", StockQuantity: 40, Category: "Fashion"},
		{ID: "P004", Name: "Adidas Ultraboost 23", Price: pricing.Baht(6_500), ShopID: "SHOP003", StockQuantity: 30, Category: "Fashion"},
		{ID: "P005", Name: "Dyson V15 Detect", Price: pricing.Baht(28_900), ShopID: "SHOP004", StockQuantity: 10, Category: "Home"},
		{ID: "P006", Name: "Lego Technic Porsche 911", Price: pricing.Baht(7_990), ShopID: "SHOP005", StockQuantity: 15, Category: "Toys"},
		{ID: "P007", Name: "Atomic Habits", Price: pricing.Baht(395), ShopID: "SHOP006", StockQuantity: 100, Category: "Books"},
		{ID: "P008", Name: "Sony WH-1000XM5", Price: pricing.Baht(12_990), ShopID: "SHOP002", StockQuantity: 0, Category: "Electronics"},
	}
}

func promotions() []promotion.Promotion {
	year := time.Now().UTC().Year()
	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year, 12, 31, 23, 59, 59, 0, time.UTC)
	limit := 100
	minSpend := pricing.Baht(1_000)
	maxCap := pricing.Baht(500)
	return []promotion.Promotion{
		{ID: "PROMO001", Name: "P15C100", Kind: promotion.KindPercentage, StartDate: start, EndDate: end, PeriodDays: 365},
		{ID: "PROMO002", Name: "F50", Kind: promotion.KindFixed, MinSpend: &minSpend, GlobalLimit: &limit, StartDate: start, EndDate: end, PeriodDays: 365},
		{ID: "PROMO003", Name: "FREESHIP", Kind: promotion.KindFreeDelivery, StartDate: start, EndDate: end, PeriodDays: 365},
		{ID: "PROMO004", Name: "P10", Kind: promotion.KindPercentage, MaxDiscountCap: &maxCap, EligibleCategoryIDs: []string{"Electronics"}, StartDate: start, EndDate: end, PeriodDays: 365},
		{ID: "PROMO005", Name: "F200", Kind: promotion.KindFixed, EligibleProductIDs: []string{"P005"}, StartDate: start, EndDate: end, PeriodDays: 365},
	}
}

func accounts() []customer.Account {
	return []customer.Account{
		{ID: "CUST001", Name: "Somchai Jaidee", LoyaltyPoints: 500, AssignedPromotionIDs: []string{"PROMO001", "PROMO002", "PROMO003"}},
		{ID: "CUST002", Name: "Malee Srisuk", LoyaltyPoints: 1_250, AssignedPromotionIDs: []string{"PROMO004", "PROMO005"}},
		{ID: "CUST003", Name: "Anan Wongsa", LoyaltyPoints: 0, AssignedPromotionIDs: []string{"PROMO003"}},
	}
}
