package shipping

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-engine/internal/location"
	"github.com/noah-isme/toko-engine/internal/money"
)

// MethodID identifies a shipping method implementation.
type MethodID string

const (
	MethodFlatRate     MethodID = "flat_rate"
	MethodFreeShipping MethodID = "free_shipping"
	MethodLocalPickup  MethodID = "local_pickup"
)

// Label is the default title of the method.
func (m MethodID) Label() string {
	switch m {
	case MethodFlatRate:
		return "Flat rate"
	case MethodFreeShipping:
		return "Free shipping"
	case MethodLocalPickup:
		return "Local pickup"
	default:
		return string(m)
	}
}

// CalcType controls how shipping-class costs are charged by flat rates.
type CalcType string

const (
	// CalcPerClass charges every distinct class present in the package.
	CalcPerClass CalcType = "per_class"
	// CalcPerOrder charges only the most expensive class.
	CalcPerOrder CalcType = "per_order"
	// CalcPerItem charges each class cost once per unit.
	CalcPerItem CalcType = "per_item"
)

// TaxStatus controls whether a rate is taxed.
type TaxStatus string

const (
	TaxTaxable TaxStatus = "taxable"
	TaxNone    TaxStatus = "none"
)

// Settings is the per-instance configuration payload.
type Settings struct {
	Cost              decimal.Decimal            `json:"cost"`
	CostPerItem       decimal.Decimal            `json:"cost_per_item"`
	CostPerWeightUnit decimal.Decimal            `json:"cost_per_weight_unit"`
	ClassCosts        map[string]decimal.Decimal `json:"class_costs,omitempty"`
	NoClassCost       decimal.Decimal            `json:"no_class_cost"`
	CalcType          CalcType                   `json:"calc_type,omitempty"`
	TaxStatus         TaxStatus                  `json:"tax_status,omitempty"`
	MinAmount         *decimal.Decimal           `json:"min_amount,omitempty"`
	RequiresCoupon    bool                       `json:"requires_coupon"`
	PickupLocation    string                     `json:"pickup_location,omitempty"`
}

// MethodInstance is a method configured inside a zone.
type MethodInstance struct {
	InstanceID int      `json:"instance_id"`
	MethodID   MethodID `json:"method_id"`
	Title      string   `json:"title,omitempty"`
	Enabled    bool     `json:"enabled"`
	Order      int      `json:"order"`
	Settings   Settings `json:"settings"`
}

// RateID returns "<method>:<instance>".
func (m MethodInstance) RateID() string {
	return fmt.Sprintf("%s:%d", m.MethodID, m.InstanceID)
}

func (m MethodInstance) label() string {
	if m.Title != "" {
		return m.Title
	}
	return m.MethodID.Label()
}

// PackageItem is one cart line as seen by shipping.
type PackageItem struct {
	ProductID     uuid.UUID       `json:"product_id"`
	Quantity      int             `json:"quantity"`
	Weight        decimal.Decimal `json:"weight"`
	ShippingClass string          `json:"shipping_class,omitempty"`
	LineTotal     decimal.Decimal `json:"line_total"`
}

// Package is the shippable portion of a cart.
type Package struct {
	Items                 []PackageItem
	ContentsCost          decimal.Decimal
	Destination           location.Destination
	HasFreeShippingCoupon bool
}

// Quantity sums item quantities.
func (p Package) Quantity() int {
	n := 0
	for _, it := range p.Items {
		n += it.Quantity
	}
	return n
}

// Weight sums unit weight times quantity.
func (p Package) Weight() decimal.Decimal {
	total := decimal.Zero
	for _, it := range p.Items {
		total = total.Add(money.MulInt(it.Weight, it.Quantity))
	}
	return total
}

// PackageID is the identifier of the single package produced per cart.
const PackageID = "package_0"

// Rate is a computed shipping option.
type Rate struct {
	ID         string            `json:"id"`
	MethodID   MethodID          `json:"method_id"`
	InstanceID int               `json:"instance_id"`
	Label      string            `json:"label"`
	Cost       decimal.Decimal   `json:"cost"`
	Taxable    bool              `json:"taxable"`
	Meta       map[string]string `json:"meta,omitempty"`
	PackageID  string            `json:"package_id"`
}

// Evaluate computes the method's rate for a package. ok is false when the
// method does not apply.
func (m MethodInstance) Evaluate(pkg Package) (Rate, bool) {
	rate := Rate{
		ID:         m.RateID(),
		MethodID:   m.MethodID,
		InstanceID: m.InstanceID,
		Label:      m.label(),
		Taxable:    m.Settings.TaxStatus != TaxNone,
		PackageID:  PackageID,
	}
	s := m.Settings
	switch m.MethodID {
	case MethodFlatRate:
		rate.Cost = flatRateCost(s, pkg)
		return rate, true
	case MethodFreeShipping:
		if s.MinAmount != nil && pkg.ContentsCost.LessThan(*s.MinAmount) {
			return Rate{}, false
		}
		if s.RequiresCoupon && !pkg.HasFreeShippingCoupon {
			return Rate{}, false
		}
		rate.Cost = decimal.Zero
		rate.Taxable = false
		return rate, true
	case MethodLocalPickup:
		rate.Cost = s.Cost
		if s.PickupLocation != "" {
			rate.Meta = map[string]string{"pickup_location": s.PickupLocation}
		}
		return rate, true
	default:
		return Rate{}, false
	}
}

func flatRateCost(s Settings, pkg Package) decimal.Decimal {
	cost := s.Cost.
		Add(money.MulInt(s.CostPerItem, pkg.Quantity())).
		Add(s.CostPerWeightUnit.Mul(pkg.Weight()))
	return cost.Add(classCost(s, pkg))
}

func classCost(s Settings, pkg Package) decimal.Decimal {
	if len(s.ClassCosts) == 0 && s.NoClassCost.IsZero() {
		return decimal.Zero
	}
	perClassQty := make(map[string]int)
	for _, it := range pkg.Items {
		perClassQty[it.ShippingClass] += it.Quantity
	}
	costFor := func(class string) decimal.Decimal {
		if class == "" {
			return s.NoClassCost
		}
		if c, ok := s.ClassCosts[class]; ok {
			return c
		}
		return s.NoClassCost
	}
	total := decimal.Zero
	switch s.CalcType {
	case CalcPerOrder:
		for class := range perClassQty {
			total = money.Max(total, costFor(class))
		}
	case CalcPerItem:
		for class, qty := range perClassQty {
			total = total.Add(money.MulInt(costFor(class), qty))
		}
	default:
		for class := range perClassQty {
			total = total.Add(costFor(class))
		}
	}
	return total
}

// Repository is the read contract for zone configuration.
type Repository interface {
	Zones(ctx context.Context) ([]Zone, error)
	ShippingClasses(ctx context.Context) (map[string]string, error)
}

// Calculator evaluates a read-only snapshot of the zone table.
type Calculator struct {
	Zones []Zone
}

// Rates returns the applicable rates of the most specific matching zone,
// sorted by cost ascending with ties in method order.
func (c Calculator) Rates(pkg Package) ([]Rate, error) {
	zone, err := MatchZone(c.Zones, pkg.Destination)
	if err != nil {
		return nil, err
	}
	rates := make([]Rate, 0, len(zone.Methods))
	for _, m := range zone.EnabledMethods() {
		if r, ok := m.Evaluate(pkg); ok {
			rates = append(rates, r)
		}
	}
	if len(rates) == 0 {
		return nil, ErrNoShippingMethodsAvailable
	}
	sort.SliceStable(rates, func(i, j int) bool { return rates[i].Cost.LessThan(rates[j].Cost) })
	return rates, nil
}

// FindRate looks up a rate by id.
func FindRate(rates []Rate, id string) (Rate, bool) {
	for _, r := range rates {
		if r.ID == id {
			return r, true
		}
	}
	return Rate{}, false
}
