// Package redisstore keeps promotion usage and cached reference data in Redis.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/checkout-engine/internal/promotion"
)

const defaultPrefix = "checkout"

// recordWithinScript checks first-use and the global limit and records the
// usage in one step. Returns 1 on success, -1 when already redeemed and -2
// when the global limit is reached. A negative limit means unlimited.
var recordWithinScript = redis.NewScript(`
if redis.call("SISMEMBER", KEYS[1], ARGV[1]) == 1 then
  return -1
end
local limit = tonumber(ARGV[2])
if limit >= 0 then
  local used = tonumber(redis.call("GET", KEYS[2]) or "0")
  if used >= limit then
    return -2
  end
end
redis.call("SADD", KEYS[1], ARGV[1])
redis.call("INCR", KEYS[2])
return 1
`)

// releaseScript removes the customer's redemption and decrements the global
// counter only if the redemption was present.
var releaseScript = redis.NewScript(`
if redis.call("SREM", KEYS[1], ARGV[1]) == 0 then
  return 0
end
local used = tonumber(redis.call("GET", KEYS[2]) or "0")
if used > 0 then
  redis.call("DECR", KEYS[2])
end
return 1
`)

// Ledger stores redemptions as a per-customer set and a per-promotion counter.
type Ledger struct {
	R      *redis.Client
	Prefix string
}

func (l Ledger) prefix() string {
	if l.Prefix == "" {
		return defaultPrefix
	}
	return l.Prefix
}

func (l Ledger) customerKey(customerID string) string {
	return l.prefix() + ":usage:customer:" + customerID
}

func (l Ledger) globalKey(promotionID string) string {
	return l.prefix() + ":usage:global:" + promotionID
}

// CustomerUsage returns the customer's redemptions sorted by promotion id.
func (l Ledger) CustomerUsage(ctx context.Context, customerID string) ([]promotion.Usage, error) {
	if l.R == nil {
		return nil, errors.New("ledger: redis client not configured")
	}
	ids, err := l.R.SMembers(ctx, l.customerKey(customerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("ledger: customer usage: %w", err)
	}
	sort.Strings(ids)
	out := make([]promotion.Usage, 0, len(ids))
	for _, id := range ids {
		out = append(out, promotion.Usage{PromotionID: id})
	}
	return out, nil
}

// GlobalUsage returns how many times the promotion has been redeemed.
func (l Ledger) GlobalUsage(ctx context.Context, promotionID string) (int, error) {
	if l.R == nil {
		return 0, errors.New("ledger: redis client not configured")
	}
	raw, err := l.R.Get(ctx, l.globalKey(promotionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("ledger: global usage: %w", err)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("ledger: corrupt counter %q: %w", raw, err)
	}
	return n, nil
}

// RecordUsage adds the redemption and bumps the global counter unconditionally.
func (l Ledger) RecordUsage(ctx context.Context, customerID, promotionID string) error {
	if l.R == nil {
		return errors.New("ledger: redis client not configured")
	}
	_, err := l.R.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, l.customerKey(customerID), promotionID)
		pipe.Incr(ctx, l.globalKey(promotionID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("ledger: record usage: %w", err)
	}
	return nil
}

// RecordUsageWithin records the redemption atomically, refusing repeat use by
// the same customer and redemptions beyond globalLimit.
func (l Ledger) RecordUsageWithin(ctx context.Context, customerID, promotionID string, globalLimit *int) error {
	if l.R == nil {
		return errors.New("ledger: redis client not configured")
	}
	limit := -1
	if globalLimit != nil {
		limit = *globalLimit
	}
	keys := []string{l.customerKey(customerID), l.globalKey(promotionID)}
	res, err := recordWithinScript.Run(ctx, l.R, keys, promotionID, limit).Int()
	if err != nil {
		return fmt.Errorf("ledger: record usage: %w", err)
	}
	switch res {
	case -1:
		return promotion.ErrAlreadyRedeemed
	case -2:
		return promotion.ErrGlobalLimitReached
	}
	return nil
}

// ReleaseUsage undoes a redemption recorded for the customer.
func (l Ledger) ReleaseUsage(ctx context.Context, customerID, promotionID string) error {
	if l.R == nil {
		return errors.New("ledger: redis client not configured")
	}
	keys := []string{l.customerKey(customerID), l.globalKey(promotionID)}
	if err := releaseScript.Run(ctx, l.R, keys, promotionID).Err(); err != nil {
		return fmt.Errorf("ledger: release usage: %w", err)
	}
	return nil
}
