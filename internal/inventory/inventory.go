package inventory

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/noah-isme/toko-engine/internal/catalog"
)

// DefaultLowStockThreshold is used when neither the product nor the store sets one.
const DefaultLowStockThreshold = 5

// Settings is the store-level stock configuration.
type Settings struct {
	ManageStock       bool
	LowStockThreshold int
	HoldStockMinutes  int
}

// DefaultSettings enables stock management with the default threshold.
func DefaultSettings() Settings {
	return Settings{ManageStock: true, LowStockThreshold: DefaultLowStockThreshold, HoldStockMinutes: 60}
}

// Result is the outcome of an availability check. Checks never mutate stock.
type Result struct {
	IsAvailable       bool   `json:"is_available"`
	IsBackorder       bool   `json:"is_backorder"`
	AvailableQuantity *int   `json:"available_quantity,omitempty"`
	Message           string `json:"message,omitempty"`
}

// Checker evaluates stock availability against the store settings.
type Checker struct {
	Settings Settings
}

// Check reports whether requested units of the product can be sold.
func (c Checker) Check(p catalog.Product, requested int) Result {
	if !c.Settings.ManageStock {
		return Result{IsAvailable: true}
	}
	if !p.ManageStock {
		if p.StockStatus == catalog.OutOfStock {
			return Result{IsAvailable: false, Message: "Out of stock"}
		}
		return Result{IsAvailable: true}
	}
	stock := 0
	if p.StockQuantity != nil {
		stock = *p.StockQuantity
	}
	if stock >= requested {
		return Result{IsAvailable: true, AvailableQuantity: &stock}
	}
	if p.Backorders.Allowed() {
		short := requested - max(stock, 0)
		return Result{
			IsAvailable:       true,
			IsBackorder:       true,
			AvailableQuantity: &stock,
			Message:           fmt.Sprintf("%d on backorder", short),
		}
	}
	return Result{
		IsAvailable:       false,
		AvailableQuantity: &stock,
		Message:           fmt.Sprintf("Only %d in stock", stock),
	}
}

// CheckVariation checks a variation, falling back to the parent's stock fields
// when the variation does not manage stock itself.
func (c Checker) CheckVariation(parent catalog.Product, v catalog.Variation, requested int) Result {
	return c.Check(v.Resolve(parent), requested)
}

// Line is one entry of a reservation request.
type Line struct {
	ProductID   uuid.UUID
	VariationID *uuid.UUID
	Product     catalog.Product
	Quantity    int
}

// LineResult pairs a line with its check outcome.
type LineResult struct {
	ProductID   uuid.UUID
	VariationID *uuid.UUID
	Result      Result
	Err         error
}

// StockError reports an unavailable line.
type StockError struct {
	ProductID uuid.UUID
	Message   string
}

func (e *StockError) Error() string {
	return e.Message
}

// ErrUnavailable matches any StockError via errors.Is.
var ErrUnavailable = errors.New("inventory: stock unavailable")

// Is lets errors.Is(err, ErrUnavailable) match stock errors.
func (e *StockError) Is(target error) bool {
	return target == ErrUnavailable
}

// Reserve validates every line. Per-line results are always returned; the
// error joins the failures and is nil when every line is available.
func (c Checker) Reserve(lines []Line) ([]LineResult, error) {
	results := make([]LineResult, 0, len(lines))
	var errs []error
	for _, line := range lines {
		res := c.Check(line.Product, line.Quantity)
		lr := LineResult{ProductID: line.ProductID, VariationID: line.VariationID, Result: res}
		if !res.IsAvailable {
			msg := res.Message
			if msg == "" {
				msg = "Out of stock"
			}
			lr.Err = &StockError{ProductID: line.ProductID, Message: msg}
			errs = append(errs, lr.Err)
		}
		results = append(results, lr)
	}
	return results, errors.Join(errs...)
}
