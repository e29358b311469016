package pricing

import (
	"errors"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

var ErrUnknownCoupon = errors.New("invalid coupon code")

// Coupon is a percentage discount against the subtotal.
type Coupon struct {
	Code    string `json:"code"`
	Percent int64  `json:"percent"`
}

// Rate returns the discount as a fraction.
func (c Coupon) Rate() decimal.Decimal {
	return decimal.NewFromInt(c.Percent).Div(decimal.NewFromInt(100))
}

var coupons = map[string]int64{
	"MEDI10": 10,
	"SAVE20": 20,
}

// LookupCoupon matches code case-insensitively against the static coupon table.
func LookupCoupon(code string) (Coupon, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	percent, ok := coupons[normalized]
	if !ok {
		return Coupon{}, ErrUnknownCoupon
	}
	return Coupon{Code: normalized, Percent: percent}, nil
}

// Calculator holds the single coupon applied to the current cart.
type Calculator struct {
	mu      sync.RWMutex
	applied *Coupon
}

func NewCalculator() *Calculator {
	return &Calculator{}
}

// ApplyCoupon replaces the applied coupon. An unknown code leaves it unchanged.
func (c *Calculator) ApplyCoupon(code string) (Coupon, error) {
	coupon, err := LookupCoupon(code)
	if err != nil {
		return Coupon{}, err
	}
	c.mu.Lock()
	c.applied = &coupon
	c.mu.Unlock()
	return coupon, nil
}

func (c *Calculator) RemoveCoupon() {
	c.mu.Lock()
	c.applied = nil
	c.mu.Unlock()
}

// AppliedCoupon returns the current coupon, if any.
func (c *Calculator) AppliedCoupon() (Coupon, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.applied == nil {
		return Coupon{}, false
	}
	return *c.applied, true
}

// Breakdown prices lines with the applied coupon.
func (c *Calculator) Breakdown(lines []Line) Breakdown {
	c.mu.RLock()
	coupon := c.applied
	c.mu.RUnlock()
	return ComputeBreakdown(lines, coupon)
}
