package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Type tags the kind of product. Behaviour is a function of the tag and the
// product fields, there is no type hierarchy.
type Type string

const (
	TypeSimple       Type = "simple"
	TypeVariable     Type = "variable"
	TypeGrouped      Type = "grouped"
	TypeExternal     Type = "external"
	TypeVirtual      Type = "virtual"
	TypeDownloadable Type = "downloadable"
	TypeBundle       Type = "bundle"
	TypeSubscription Type = "subscription"
	TypeBooking      Type = "booking"
)

// Status is the publication state of a product.
type Status string

const (
	StatusDraft   Status = "draft"
	StatusPending Status = "pending"
	StatusPrivate Status = "private"
	StatusPublish Status = "publish"
	StatusTrash   Status = "trash"
)

// StockStatus describes the availability shown to customers.
type StockStatus string

const (
	InStock     StockStatus = "in_stock"
	OutOfStock  StockStatus = "out_of_stock"
	OnBackorder StockStatus = "on_backorder"
)

// BackorderPolicy controls whether orders are accepted without stock.
type BackorderPolicy string

const (
	BackordersNo     BackorderPolicy = "no"
	BackordersNotify BackorderPolicy = "notify"
	BackordersYes    BackorderPolicy = "yes"
)

// Allowed reports whether the policy accepts backorders.
func (b BackorderPolicy) Allowed() bool {
	return b == BackordersNotify || b == BackordersYes
}

// TaxStatus declares which parts of a line are taxable.
type TaxStatus string

const (
	TaxTaxable  TaxStatus = "taxable"
	TaxShipping TaxStatus = "shipping"
	TaxNone     TaxStatus = "none"
)

// PriceTier is a quantity break: from MinQuantity units on, Price applies.
type PriceTier struct {
	MinQuantity int             `json:"min_quantity"`
	Price       decimal.Decimal `json:"price"`
}

// Product is a catalog entry. It is a pure value type: variations and
// categories are loaded through the repository, never through lazy fields.
type Product struct {
	ID               uuid.UUID        `json:"id"`
	Name             string           `json:"name"`
	Slug             string           `json:"slug"`
	SKU              string           `json:"sku,omitempty"`
	Type             Type             `json:"type"`
	Status           Status           `json:"status"`
	RegularPrice     *decimal.Decimal `json:"regular_price,omitempty"`
	SalePrice        *decimal.Decimal `json:"sale_price,omitempty"`
	SaleFrom         *time.Time       `json:"sale_from,omitempty"`
	SaleTo           *time.Time       `json:"sale_to,omitempty"`
	Tiers            []PriceTier      `json:"tiers,omitempty"`
	TaxStatus        TaxStatus        `json:"tax_status"`
	TaxClass         string           `json:"tax_class,omitempty"`
	ManageStock      bool             `json:"manage_stock"`
	StockQuantity    *int             `json:"stock_quantity,omitempty"`
	StockStatus      StockStatus      `json:"stock_status"`
	Backorders       BackorderPolicy  `json:"backorders"`
	LowStockAmount   *int             `json:"low_stock_amount,omitempty"`
	SoldIndividually bool             `json:"sold_individually"`
	Virtual          bool             `json:"virtual"`
	Downloadable     bool             `json:"downloadable"`
	Weight           *decimal.Decimal `json:"weight,omitempty"`
	ShippingClass    string           `json:"shipping_class,omitempty"`
	CategoryIDs      []uuid.UUID      `json:"category_ids,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// IsPublished reports whether the product is visible to shoppers.
func (p Product) IsPublished() bool {
	return p.Status == StatusPublish
}

// IsVirtual reports whether the product never ships.
func (p Product) IsVirtual() bool {
	return p.Virtual || p.Type == TypeVirtual
}

// IsTaxable reports whether line prices carry tax.
func (p Product) IsTaxable() bool {
	return p.TaxStatus == TaxTaxable || p.TaxStatus == ""
}

// InCategory reports whether the product is assigned to any of ids.
func (p Product) InCategory(ids []uuid.UUID) bool {
	for _, id := range ids {
		for _, own := range p.CategoryIDs {
			if own == id {
				return true
			}
		}
	}
	return false
}

// Variation belongs to a variable product. Zero values inherit from the parent:
// nil prices, nil stock quantity, empty stock status, empty backorder policy,
// empty tax/shipping class and nil weight.
type Variation struct {
	ID            uuid.UUID         `json:"id"`
	ProductID     uuid.UUID         `json:"product_id"`
	SKU           string            `json:"sku,omitempty"`
	Status        Status            `json:"status"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	RegularPrice  *decimal.Decimal  `json:"regular_price,omitempty"`
	SalePrice     *decimal.Decimal  `json:"sale_price,omitempty"`
	SaleFrom      *time.Time        `json:"sale_from,omitempty"`
	SaleTo        *time.Time        `json:"sale_to,omitempty"`
	ManageStock   bool              `json:"manage_stock"`
	StockQuantity *int              `json:"stock_quantity,omitempty"`
	StockStatus   StockStatus       `json:"stock_status,omitempty"`
	Backorders    BackorderPolicy   `json:"backorders,omitempty"`
	TaxClass      string            `json:"tax_class,omitempty"`
	ShippingClass string            `json:"shipping_class,omitempty"`
	Weight        *decimal.Decimal  `json:"weight,omitempty"`
	Virtual       bool              `json:"virtual"`
}

// Resolve merges the variation over its parent and returns the product view
// used by pricing, inventory and cart snapshots.
func (v Variation) Resolve(parent Product) Product {
	out := parent
	if v.RegularPrice != nil || v.SalePrice != nil {
		out.RegularPrice = v.RegularPrice
		out.SalePrice = v.SalePrice
		out.SaleFrom = v.SaleFrom
		out.SaleTo = v.SaleTo
	}
	if v.SKU != "" {
		out.SKU = v.SKU
	}
	if v.ManageStock {
		out.ManageStock = true
		out.StockQuantity = v.StockQuantity
		if v.StockStatus != "" {
			out.StockStatus = v.StockStatus
		}
		if v.Backorders != "" {
			out.Backorders = v.Backorders
		}
	} else if v.StockStatus != "" && !parent.ManageStock {
		out.StockStatus = v.StockStatus
	}
	if v.TaxClass != "" {
		out.TaxClass = v.TaxClass
	}
	if v.ShippingClass != "" {
		out.ShippingClass = v.ShippingClass
	}
	if v.Weight != nil {
		out.Weight = v.Weight
	}
	if v.Virtual {
		out.Virtual = true
	}
	if v.Status == StatusPrivate || v.Status == StatusTrash || v.Status == StatusDraft {
		out.Status = v.Status
	}
	return out
}
