package discount

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
)

// ErrUsageLimitReached indicates a code has been reserved by as many orders as
// its usage limit allows.
var ErrUsageLimitReached = errors.New("discount: usage limit reached")

// reserveScript adds ARGV[1] to the reservation set unless the set already
// holds ARGV[2] members. A positive ARGV[2] is the limit; 0 means unlimited.
var reserveScript = redis.NewScript(`
if redis.call("SISMEMBER", KEYS[1], ARGV[1]) == 1 then
  return 1
end
local limit = tonumber(ARGV[2])
if limit > 0 and redis.call("SCARD", KEYS[1]) >= limit then
  return 0
end
redis.call("SADD", KEYS[1], ARGV[1])
return 1`)

// Reservations tracks which orders hold a one-time use of a discount code.
// Reserving twice for the same order is a no-op.
type Reservations struct {
	R      *redis.Client
	Prefix string
}

// Reserve claims code for orderID. limit <= 0 means unlimited.
func (s Reservations) Reserve(ctx context.Context, discountKey, code, orderID string, limit int) error {
	if s.R == nil {
		return errors.New("discount: redis client not configured")
	}
	ok, err := reserveScript.Run(ctx, s.R, []string{s.key(discountKey, code)}, orderID, limit).Int()
	if err != nil {
		return err
	}
	if ok == 0 {
		return ErrUsageLimitReached
	}
	return nil
}

// Release frees the reservation of code held by orderID.
func (s Reservations) Release(ctx context.Context, discountKey, code, orderID string) error {
	if s.R == nil {
		return errors.New("discount: redis client not configured")
	}
	return s.R.SRem(ctx, s.key(discountKey, code), orderID).Err()
}

// Count returns the number of orders holding code.
func (s Reservations) Count(ctx context.Context, discountKey, code string) (int64, error) {
	if s.R == nil {
		return 0, errors.New("discount: redis client not configured")
	}
	return s.R.SCard(ctx, s.key(discountKey, code)).Result()
}

func (s Reservations) key(discountKey, code string) string {
	prefix := s.Prefix
	if prefix == "" {
		prefix = "pricing:discount"
	}
	return prefix + ":" + discountKey + ":" + strings.ToUpper(code)
}
