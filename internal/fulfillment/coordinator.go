package fulfillment

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/checkout-engine/internal/obs"
	"github.com/noah-isme/checkout-engine/internal/pricing"
)

// ErrProductNotFound is returned by stock writers when the product is unknown.
var ErrProductNotFound = errors.New("product not found")

// Product is the catalog view used for stock checks.
type Product struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Price         pricing.Money `json:"price"`
	ShopID        string        `json:"shopId"`
	StockQuantity int           `json:"stockQuantity"`
	Category      string        `json:"category"`
}

// StockChange reports a single applied decrement.
type StockChange struct {
	ProductID     string `json:"productId"`
	PreviousStock int    `json:"previousStock"`
	NewStock      int    `json:"newStock"`
	QuantitySold  int    `json:"quantitySold"`
}

// ProductCatalogReader lists products with their current stock.
type ProductCatalogReader interface {
	Products(ctx context.Context) ([]Product, error)
}

// StockWriter decrements product stock. Implementations clamp the new stock
// at zero and return ErrProductNotFound for unknown products.
type StockWriter interface {
	DecrementStock(ctx context.Context, productID string, quantity int) (StockChange, error)
}

// Issue describes a line that cannot be fulfilled from current stock.
type Issue struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Requested   int    `json:"requested"`
	Available   int    `json:"available"`
}

// Check is the outcome of a fulfillment validation.
type Check struct {
	CanFulfill bool    `json:"canFulfill"`
	Issues     []Issue `json:"issues"`
}

// Coordinator runs the post-payment stock steps. None of them undo pricing
// decisions already made.
type Coordinator struct {
	Catalog ProductCatalogReader
	Stock   StockWriter
	Logger  zerolog.Logger
}

// ValidateOrderFulfillment compares requested quantities against current
// stock. It is informational and does not block finalization.
func (c *Coordinator) ValidateOrderFulfillment(ctx context.Context, lines []pricing.Line) (Check, error) {
	if c == nil || c.Catalog == nil {
		return Check{}, errors.New("fulfillment coordinator not configured")
	}
	products, err := c.Catalog.Products(ctx)
	if err != nil {
		return Check{}, fmt.Errorf("list products: %w", err)
	}
	byID := make(map[string]Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	check := Check{Issues: []Issue{}}
	for _, line := range lines {
		p, ok := byID[line.ProductID]
		if !ok {
			check.Issues = append(check.Issues, Issue{ProductID: line.ProductID, Requested: line.Quantity})
			continue
		}
		if line.Quantity > p.StockQuantity {
			check.Issues = append(check.Issues, Issue{
				ProductID:   p.ID,
				ProductName: p.Name,
				Requested:   line.Quantity,
				Available:   p.StockQuantity,
			})
		}
	}
	check.CanFulfill = len(check.Issues) == 0
	return check, nil
}

// ReduceStock decrements stock for every line. A failing line does not stop
// the remaining ones; failures are joined into the returned error and
// decrements already applied stay applied.
func (c *Coordinator) ReduceStock(ctx context.Context, lines []pricing.Line) ([]StockChange, error) {
	if c == nil || c.Stock == nil {
		return nil, errors.New("fulfillment coordinator not configured")
	}
	ctx, span := otel.Tracer("fulfillment.Coordinator").Start(ctx, "Coordinator.ReduceStock")
	defer span.End()
	span.SetAttributes(attribute.Int("order.lines", len(lines)))

	changes := make([]StockChange, 0, len(lines))
	var joined error
	for _, line := range lines {
		change, err := c.Stock.DecrementStock(ctx, line.ProductID, line.Quantity)
		if err != nil {
			if obs.StockDecrementFailures != nil {
				obs.StockDecrementFailures.Inc()
			}
			c.Logger.Error().Err(err).
				Str("product_id", line.ProductID).
				Int("quantity", line.Quantity).
				Msg("stock decrement failed")
			joined = errors.Join(joined, fmt.Errorf("decrement %s: %w", line.ProductID, err))
			continue
		}
		if line.Quantity > change.PreviousStock {
			c.Logger.Warn().
				Str("product_id", line.ProductID).
				Int("available", change.PreviousStock).
				Int("requested", line.Quantity).
				Msg("insufficient stock, oversold")
		}
		changes = append(changes, change)
	}
	if joined != nil {
		span.RecordError(joined)
		span.SetStatus(codes.Error, "stock reduction incomplete")
	}
	return changes, joined
}

// CompleteInput is what CompleteOrder needs to settle a paid order.
type CompleteInput struct {
	Finalize pricing.FinalizeInput
	Lines    []pricing.Line
	// Commit persists the finalization before stock is touched. When it
	// fails CompleteOrder stops and nothing else changes.
	Commit func(ctx context.Context, f pricing.Finalization) error
}

// CompleteResult combines the finalization with the post-payment outcome.
type CompleteResult struct {
	pricing.Finalization
	Fulfillment        Check         `json:"fulfillment"`
	StockChanges       []StockChange `json:"stockChanges"`
	PostPaymentSuccess bool          `json:"postPaymentSuccess"`
	StockUpdateSuccess bool          `json:"stockUpdateSuccess"`
	Errors             []string      `json:"errors,omitempty"`
}

// CompleteOrder finalizes pricing, commits it, then validates and reduces
// stock. Stock failures are reported in the result, never as an error; the
// error is reserved for a failed Commit.
func (c *Coordinator) CompleteOrder(ctx context.Context, in CompleteInput) (CompleteResult, error) {
	out := CompleteResult{Finalization: pricing.Finalize(in.Finalize)}
	if in.Commit != nil {
		if err := in.Commit(ctx, out.Finalization); err != nil {
			return out, fmt.Errorf("commit finalization: %w", err)
		}
	}

	check, err := c.ValidateOrderFulfillment(ctx, in.Lines)
	if err != nil {
		out.Errors = append(out.Errors, err.Error())
	} else {
		out.Fulfillment = check
		for _, issue := range check.Issues {
			c.Logger.Warn().
				Str("product_id", issue.ProductID).
				Int("requested", issue.Requested).
				Int("available", issue.Available).
				Msg("fulfillment issue")
		}
	}

	changes, err := c.ReduceStock(ctx, in.Lines)
	out.StockChanges = changes
	if err != nil {
		out.Errors = append(out.Errors, err.Error())
	} else {
		out.StockUpdateSuccess = true
	}
	out.PostPaymentSuccess = out.StockUpdateSuccess
	return out, nil
}
