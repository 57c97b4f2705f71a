package coupon

import (
	"crypto/rand"
	"math/big"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-engine/internal/money"
)

// DiscountType selects the discount formula.
type DiscountType string

const (
	Percent        DiscountType = "percent"
	FixedCart      DiscountType = "fixed_cart"
	FixedProduct   DiscountType = "fixed_product"
	PercentProduct DiscountType = "percent_product"
)

// DisplayName is the human label of the discount type.
func (d DiscountType) DisplayName() string {
	switch d {
	case Percent:
		return "Percentage discount"
	case FixedCart:
		return "Fixed cart discount"
	case FixedProduct:
		return "Fixed product discount"
	case PercentProduct:
		return "Percentage product discount"
	default:
		return string(d)
	}
}

// IsPercent reports whether amount is a percentage.
func (d DiscountType) IsPercent() bool {
	return d == Percent || d == PercentProduct
}

// Status is the publication state of a coupon. Only published coupons apply.
type Status string

const (
	StatusPublish Status = "publish"
	StatusDraft   Status = "draft"
	StatusPending Status = "pending"
	StatusTrash   Status = "trash"
)

// Coupon is a discount rule addressed by a case-insensitive code.
type Coupon struct {
	ID                  uuid.UUID        `json:"id"`
	Code                string           `json:"code"`
	Description         string           `json:"description,omitempty"`
	Status              Status           `json:"status"`
	DiscountType        DiscountType     `json:"discount_type"`
	Amount              decimal.Decimal  `json:"amount"`
	FreeShipping        bool             `json:"free_shipping"`
	IndividualUse       bool             `json:"individual_use"`
	ExcludeSaleItems    bool             `json:"exclude_sale_items"`
	ProductIDs          []uuid.UUID      `json:"product_ids,omitempty"`
	ExcludedProductIDs  []uuid.UUID      `json:"excluded_product_ids,omitempty"`
	CategoryIDs         []uuid.UUID      `json:"category_ids,omitempty"`
	ExcludedCategoryIDs []uuid.UUID      `json:"excluded_category_ids,omitempty"`
	MinimumSpend        *decimal.Decimal `json:"minimum_spend,omitempty"`
	MaximumSpend        *decimal.Decimal `json:"maximum_spend,omitempty"`
	MaximumAmount       *decimal.Decimal `json:"maximum_amount,omitempty"`
	UsageLimit          *int             `json:"usage_limit,omitempty"`
	UsageLimitPerUser   *int             `json:"usage_limit_per_user,omitempty"`
	LimitUsageToXItems  *int             `json:"limit_usage_to_x_items,omitempty"`
	UsageCount          int              `json:"usage_count"`
	EmailRestrictions   []string         `json:"email_restrictions,omitempty"`
	StartsAt            *time.Time       `json:"starts_at,omitempty"`
	ExpiresAt           *time.Time       `json:"expires_at,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// Line is a cart line as seen by coupon evaluation.
type Line struct {
	Key          string
	ProductID    uuid.UUID
	CategoryIDs  []uuid.UUID
	Quantity     int
	UnitPrice    decimal.Decimal
	RegularPrice decimal.Decimal
	Subtotal     decimal.Decimal
}

// OnSale reports whether the line was added at a reduced price.
func (l Line) OnSale() bool {
	return l.UnitPrice.LessThan(l.RegularPrice)
}

// Context is everything validation needs to know about the cart and customer.
type Context struct {
	Lines    []Line
	Subtotal decimal.Decimal
	// AppliedCodes are the codes already on the cart, in acceptance order.
	AppliedCodes []string
	// AppliedIndividualUse is set when one of the applied coupons is individual-use.
	AppliedIndividualUse bool
	Email                string
	UserID               *uuid.UUID
	// UserUsage is the number of orders in which UserID already used the coupon.
	UserUsage int
}

// NormaliseCode trims and upper-cases a code for lookups.
func NormaliseCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate runs every rule against ctx and returns the first failure.
func (c Coupon) Validate(ctx Context, now time.Time) error {
	for _, code := range ctx.AppliedCodes {
		if strings.EqualFold(strings.TrimSpace(code), strings.TrimSpace(c.Code)) {
			return ErrAlreadyApplied
		}
	}
	if c.Status != StatusPublish {
		return ErrNotFound
	}
	if c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
		return ErrExpired
	}
	if c.StartsAt != nil && now.Before(*c.StartsAt) {
		return ErrNotYetValid
	}
	if c.UsageLimit != nil && c.UsageCount >= *c.UsageLimit {
		return ErrUsageLimitReached
	}
	if c.UsageLimitPerUser != nil && ctx.UserID != nil && ctx.UserUsage >= *c.UsageLimitPerUser {
		return ErrCustomerUsageLimitReached
	}
	if c.MinimumSpend != nil && ctx.Subtotal.LessThan(*c.MinimumSpend) {
		return &Error{Kind: KindMinimumNotMet, Minimum: *c.MinimumSpend, Current: ctx.Subtotal}
	}
	if c.MaximumSpend != nil && ctx.Subtotal.GreaterThan(*c.MaximumSpend) {
		return &Error{Kind: KindMaximumExceeded, Maximum: *c.MaximumSpend, Current: ctx.Subtotal}
	}
	if len(ctx.AppliedCodes) > 0 && (c.IndividualUse || ctx.AppliedIndividualUse) {
		return ErrIndividualUse
	}
	if len(c.EmailRestrictions) > 0 && !c.AllowsEmail(ctx.Email) {
		return ErrEmailRestriction
	}
	return c.checkScope(ctx.Lines)
}

// AllowsEmail matches email against the restriction list. Patterns containing
// "*" match by suffix; others compare case-insensitively.
func (c Coupon) AllowsEmail(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" {
		return false
	}
	for _, pattern := range c.EmailRestrictions {
		pattern = strings.TrimSpace(pattern)
		if strings.Contains(pattern, "*") {
			suffix := strings.ReplaceAll(pattern, "*", "")
			if strings.HasSuffix(strings.ToLower(email), strings.ToLower(suffix)) {
				return true
			}
			continue
		}
		if strings.EqualFold(pattern, email) {
			return true
		}
	}
	return false
}

func (c Coupon) checkScope(lines []Line) error {
	if len(c.ProductIDs) > 0 {
		found := false
		for _, l := range lines {
			if slices.Contains(c.ProductIDs, l.ProductID) {
				found = true
				break
			}
		}
		if !found {
			return ErrNotApplicable
		}
	}
	if len(c.ExcludedProductIDs) > 0 && len(lines) > 0 {
		all := true
		for _, l := range lines {
			if !slices.Contains(c.ExcludedProductIDs, l.ProductID) {
				all = false
				break
			}
		}
		if all {
			return ErrExcludedProduct
		}
	}
	if len(c.CategoryIDs) > 0 {
		found := false
		for _, l := range lines {
			if intersects(c.CategoryIDs, l.CategoryIDs) {
				found = true
				break
			}
		}
		if !found {
			return ErrNotApplicable
		}
	}
	if len(c.ExcludedCategoryIDs) > 0 && len(lines) > 0 {
		all := true
		for _, l := range lines {
			if !intersects(c.ExcludedCategoryIDs, l.CategoryIDs) {
				all = false
				break
			}
		}
		if all {
			return ErrExcludedCategory
		}
	}
	if c.isProductType() {
		for _, l := range lines {
			if c.AppliesTo(l) {
				return nil
			}
		}
		return ErrNotApplicable
	}
	return nil
}

func (c Coupon) isProductType() bool {
	return c.DiscountType == FixedProduct || c.DiscountType == PercentProduct
}

// AppliesTo reports whether the line passes the exclusion, sale and inclusion
// tests.
func (c Coupon) AppliesTo(l Line) bool {
	if slices.Contains(c.ExcludedProductIDs, l.ProductID) {
		return false
	}
	if intersects(c.ExcludedCategoryIDs, l.CategoryIDs) {
		return false
	}
	if c.ExcludeSaleItems && l.OnSale() {
		return false
	}
	if len(c.ProductIDs) > 0 && !slices.Contains(c.ProductIDs, l.ProductID) {
		return false
	}
	if len(c.CategoryIDs) > 0 && !intersects(c.CategoryIDs, l.CategoryIDs) {
		return false
	}
	return true
}

// Discount computes the unrounded discount for the cart. The result is never
// negative and never exceeds the cart subtotal.
func (c Coupon) Discount(ctx Context) decimal.Decimal {
	var discount decimal.Decimal
	switch c.DiscountType {
	case Percent, PercentProduct:
		base := decimal.Zero
		if c.DiscountType == PercentProduct {
			base = c.limitedSubtotal(ctx.Lines)
		} else {
			for _, l := range ctx.Lines {
				if c.AppliesTo(l) {
					base = base.Add(l.Subtotal)
				}
			}
		}
		discount = money.MulRate(base, c.Amount)
		if c.MaximumAmount != nil {
			discount = money.Min(discount, *c.MaximumAmount)
		}
	case FixedCart:
		discount = money.Min(c.Amount, ctx.Subtotal)
	case FixedProduct:
		remaining := c.itemAllowance()
		for _, l := range ctx.Lines {
			if !c.AppliesTo(l) {
				continue
			}
			qty := l.Quantity
			if remaining >= 0 {
				qty = min(qty, remaining)
				remaining -= qty
			}
			discount = discount.Add(money.Min(money.MulInt(c.Amount, qty), l.Subtotal))
		}
	}
	discount = money.Min(discount, ctx.Subtotal)
	return money.NonNegative(discount)
}

// limitedSubtotal sums the applicable subtotal, honouring the item limit.
func (c Coupon) limitedSubtotal(lines []Line) decimal.Decimal {
	total := decimal.Zero
	remaining := c.itemAllowance()
	for _, l := range lines {
		if !c.AppliesTo(l) {
			continue
		}
		if remaining < 0 {
			total = total.Add(l.Subtotal)
			continue
		}
		qty := min(l.Quantity, remaining)
		remaining -= qty
		if qty == l.Quantity {
			total = total.Add(l.Subtotal)
		} else {
			total = total.Add(money.MulInt(l.UnitPrice, qty))
		}
	}
	return total
}

// itemAllowance returns -1 when unlimited.
func (c Coupon) itemAllowance() int {
	if c.LimitUsageToXItems == nil || *c.LimitUsageToXItems <= 0 {
		return -1
	}
	return *c.LimitUsageToXItems
}

// FormatDiscount renders the amount as "10%" for percentage types or as a
// formatted price otherwise.
func (c Coupon) FormatDiscount(p money.Profile) string {
	if c.DiscountType.IsPercent() {
		return c.Amount.String() + "%"
	}
	return p.Format(c.Amount)
}

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateCode returns a random upper-case alphanumeric code.
func GenerateCode(length int) (string, error) {
	if length <= 0 {
		length = 8
	}
	limit := big.NewInt(int64(len(codeAlphabet)))
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

func intersects(a, b []uuid.UUID) bool {
	for _, id := range a {
		if slices.Contains(b, id) {
			return true
		}
	}
	return false
}
