package inventory

import (
	"fmt"

	"github.com/noah-isme/toko-engine/internal/catalog"
)

// ChangeType is the reason a stock level moves.
type ChangeType string

const (
	ChangeSale       ChangeType = "sale"
	ChangeRefund     ChangeType = "refund"
	ChangeReturn     ChangeType = "return"
	ChangeRestock    ChangeType = "restock"
	ChangeAdjustment ChangeType = "adjustment"
)

// NewStock applies a stock change: sales subtract, refunds, returns and
// restocks add, adjustments set the absolute level.
func NewStock(current int, change ChangeType, quantity int) int {
	switch change {
	case ChangeSale:
		return current - quantity
	case ChangeRefund, ChangeReturn, ChangeRestock:
		return current + quantity
	case ChangeAdjustment:
		return quantity
	default:
		return current
	}
}

// Threshold returns the product's low-stock amount, or the store default.
func (s Settings) Threshold(p catalog.Product) int {
	if p.LowStockAmount != nil {
		return *p.LowStockAmount
	}
	if s.LowStockThreshold > 0 {
		return s.LowStockThreshold
	}
	return DefaultLowStockThreshold
}

// IsLowStock reports managed products with 0 < stock <= threshold.
func (s Settings) IsLowStock(p catalog.Product) bool {
	if !p.ManageStock || p.StockQuantity == nil {
		return false
	}
	stock := *p.StockQuantity
	return stock > 0 && stock <= s.Threshold(p)
}

// IsOutOfStock reports whether the product cannot be sold at all.
func IsOutOfStock(p catalog.Product) bool {
	return StatusFor(p) == catalog.OutOfStock
}

// StatusFor derives the stock status. Managed products derive it from the
// quantity, unmanaged ones keep their declared status.
func StatusFor(p catalog.Product) catalog.StockStatus {
	if !p.ManageStock {
		if p.StockStatus == "" {
			return catalog.InStock
		}
		return p.StockStatus
	}
	qty := 0
	if p.StockQuantity != nil {
		qty = *p.StockQuantity
	}
	return StatusForQuantity(qty, p.Backorders)
}

// StatusForQuantity maps a quantity to a stock status.
func StatusForQuantity(qty int, backorders catalog.BackorderPolicy) catalog.StockStatus {
	if qty > 0 {
		return catalog.InStock
	}
	if backorders.Allowed() {
		return catalog.OnBackorder
	}
	return catalog.OutOfStock
}

// StockText is the customer-facing availability line.
func (s Settings) StockText(p catalog.Product) string {
	switch StatusFor(p) {
	case catalog.OutOfStock:
		return "Out of stock"
	case catalog.OnBackorder:
		return "Available on backorder"
	}
	if !p.ManageStock || p.StockQuantity == nil {
		return "In stock"
	}
	qty := *p.StockQuantity
	if qty <= s.Threshold(p) {
		return fmt.Sprintf("Only %d left in stock", qty)
	}
	return fmt.Sprintf("%d in stock", qty)
}
