// Package memory provides mutex-guarded in-memory implementations of the
// checkout collaborators. It backs tests and the demo server.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/noah-isme/checkout-engine/internal/customer"
	"github.com/noah-isme/checkout-engine/internal/events"
	"github.com/noah-isme/checkout-engine/internal/fulfillment"
	"github.com/noah-isme/checkout-engine/internal/promotion"
)

// Products holds the product catalog and its stock levels.
type Products struct {
	mu    sync.RWMutex
	items []fulfillment.Product
}

// NewProducts seeds a catalog with the given products.
func NewProducts(items ...fulfillment.Product) *Products {
	return &Products{items: slices.Clone(items)}
}

// Products returns a snapshot of the catalog.
func (p *Products) Products(ctx context.Context) ([]fulfillment.Product, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.items), nil
}

// DecrementStock lowers the stock of productID by quantity, never below zero.
func (p *Products) DecrementStock(ctx context.Context, productID string, quantity int) (fulfillment.StockChange, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := slices.IndexFunc(p.items, func(it fulfillment.Product) bool { return it.ID == productID })
	if idx < 0 {
		return fulfillment.StockChange{}, fmt.Errorf("%s: %w", productID, fulfillment.ErrProductNotFound)
	}
	prev := p.items[idx].StockQuantity
	p.items[idx].StockQuantity = max(0, prev-quantity)
	return fulfillment.StockChange{
		ProductID:     productID,
		PreviousStock: prev,
		NewStock:      p.items[idx].StockQuantity,
		QuantitySold:  quantity,
	}, nil
}

// Promotions is a read-only promotion catalog.
type Promotions struct {
	items []promotion.Promotion
}

// NewPromotions prepares and stores the given promotions.
func NewPromotions(items ...promotion.Promotion) *Promotions {
	out := make([]promotion.Promotion, 0, len(items))
	for _, p := range items {
		out = append(out, p.Prepared())
	}
	return &Promotions{items: out}
}

// Promotions returns all promotions in catalog order.
func (p *Promotions) Promotions(ctx context.Context) ([]promotion.Promotion, error) {
	return slices.Clone(p.items), nil
}

// FindByID returns the promotion with the given id or promotion.ErrNotFound.
func (p *Promotions) FindByID(ctx context.Context, id string) (*promotion.Promotion, error) {
	for _, item := range p.items {
		if item.ID == id {
			found := item
			return &found, nil
		}
	}
	return nil, promotion.ErrNotFound
}

// Customers stores customer accounts by id.
type Customers struct {
	mu       sync.RWMutex
	accounts map[string]customer.Account
}

// NewCustomers seeds the store with the given accounts.
func NewCustomers(accounts ...customer.Account) *Customers {
	c := &Customers{accounts: make(map[string]customer.Account, len(accounts))}
	for _, a := range accounts {
		c.accounts[a.ID] = a.Clone()
	}
	return c
}

// Get returns a copy of the account or customer.ErrNotFound.
func (c *Customers) Get(ctx context.Context, id string) (customer.Account, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.accounts[id]
	if !ok {
		return customer.Account{}, customer.ErrNotFound
	}
	return a.Clone(), nil
}

// Save replaces the stored account.
func (c *Customers) Save(ctx context.Context, account customer.Account) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accounts[account.ID] = account.Clone()
	return nil
}

// Ledger is an in-memory usage ledger. Its mutex makes RecordUsageWithin
// atomic within the process.
type Ledger struct {
	mu       sync.Mutex
	customer map[string][]promotion.Usage
	global   map[string]int
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{customer: map[string][]promotion.Usage{}, global: map[string]int{}}
}

// CustomerUsage lists the redemptions of a customer.
func (l *Ledger) CustomerUsage(ctx context.Context, customerID string) ([]promotion.Usage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.customer[customerID]), nil
}

// GlobalUsage returns the number of redemptions of a promotion.
func (l *Ledger) GlobalUsage(ctx context.Context, promotionID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.global[promotionID], nil
}

// RecordUsage appends a redemption without any checks.
func (l *Ledger) RecordUsage(ctx context.Context, customerID, promotionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.record(customerID, promotionID)
	return nil
}

// RecordUsageWithin records the redemption only if the customer has not used
// the promotion and the global limit still has room.
func (l *Ledger) RecordUsageWithin(ctx context.Context, customerID, promotionID string, globalLimit *int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if slices.ContainsFunc(l.customer[customerID], func(u promotion.Usage) bool { return u.PromotionID == promotionID }) {
		return promotion.ErrAlreadyRedeemed
	}
	if globalLimit != nil && l.global[promotionID] >= *globalLimit {
		return promotion.ErrGlobalLimitReached
	}
	l.record(customerID, promotionID)
	return nil
}

// ReleaseUsage removes one redemption of the promotion by the customer.
func (l *Ledger) ReleaseUsage(ctx context.Context, customerID, promotionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	usage := l.customer[customerID]
	i := slices.IndexFunc(usage, func(u promotion.Usage) bool { return u.PromotionID == promotionID })
	if i < 0 {
		return nil
	}
	l.customer[customerID] = slices.Delete(slices.Clone(usage), i, i+1)
	if l.global[promotionID] > 0 {
		l.global[promotionID]--
	}
	return nil
}

func (l *Ledger) record(customerID, promotionID string) {
	l.customer[customerID] = append(l.customer[customerID], promotion.Usage{PromotionID: promotionID})
	l.global[promotionID]++
}

// Events keeps emitted domain events in insertion order.
type Events struct {
	mu    sync.Mutex
	items []events.Event
}

// InsertDomainEvent implements events.EventStore.
func (e *Events) InsertDomainEvent(ctx context.Context, event events.Event) (events.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.items = append(e.items, event)
	return event, nil
}

// List returns the stored events.
func (e *Events) List() []events.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.items)
}
