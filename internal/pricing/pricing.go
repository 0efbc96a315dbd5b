// Package pricing recomputes cart totals and loyalty-point economics
// authoritatively on the server, regardless of anything the client submits.
package pricing

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/example/nepgrocery/internal/models"
)

// Fixed policy constants, enforced server-side.
const (
	// DeliveryFee is the flat surcharge added to every order.
	DeliveryFee = 50
	// DiscountPointCost is the loyalty-point price of one discount redemption.
	DiscountPointCost = 150
	// DiscountRate is the redeemed discount as a fraction of the item subtotal.
	DiscountRate = 0.25
	// AwardSubtotalThreshold is the minimum item subtotal for a point award.
	AwardSubtotalThreshold = 2000
	// AwardMinPoints and AwardMaxPoints bound the random delivery award.
	AwardMinPoints = 10
	AwardMaxPoints = 20
)

// Pricing failures.
var (
	ErrEmptyCart         = errors.New("order must contain at least one item")
	ErrInvalidQuantity   = errors.New("invalid item quantity; quantity must be a positive integer")
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("not enough stock")
)

// CartLine is a client-submitted cart entry. Only the product reference and
// quantity are trusted; any client-supplied price is ignored.
type CartLine struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

// StockAdjustment instructs the caller to change a product's stock by Delta,
// applied together with the order write.
type StockAdjustment struct {
	ProductID uuid.UUID
	Delta     int
}

// Quote is the authoritative result of pricing a cart.
type Quote struct {
	Items            []models.OrderItem
	Subtotal         float64
	Total            float64
	DiscountApplied  bool
	PointsToDeduct   int
	StockAdjustments []StockAdjustment
}

// PriceOrder validates a cart against resolved products and computes the
// order total from current authoritative prices, the flat delivery fee and
// the loyalty discount policy. It is pure with respect to persistence: the
// caller commits the point deduction, the stock adjustments and the order
// write.
//
// Stock is only checked here, not reserved: two concurrent orders can both
// pass the check before either decrement lands. That read-then-decrement
// window is an accepted trade-off for a single-warehouse system (covered in
// the package tests) rather than a reason for cross-row transactions.
func PriceOrder(lines []CartLine, products map[uuid.UUID]*models.Product, groceryPoints int, applyDiscount bool) (*Quote, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	quote := &Quote{}
	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}

		product, ok := products[line.ProductID]
		if !ok || product == nil {
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, line.ProductID)
		}

		if product.Stock < line.Quantity {
			return nil, fmt.Errorf("%w for %s: available %d, requested %d",
				ErrInsufficientStock, product.Name, product.Stock, line.Quantity)
		}

		quote.Subtotal += product.Price * float64(line.Quantity)
		quote.Items = append(quote.Items, models.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			UnitPrice: product.Price,
			Quantity:  line.Quantity,
			ImageURL:  product.ImageURL,
		})
		quote.StockAdjustments = append(quote.StockAdjustments, StockAdjustment{
			ProductID: product.ID,
			Delta:     -line.Quantity,
		})
	}

	quote.Total = quote.Subtotal + DeliveryFee

	if applyDiscount && groceryPoints >= DiscountPointCost {
		quote.Total -= quote.Subtotal * DiscountRate
		quote.DiscountApplied = true
		quote.PointsToDeduct = DiscountPointCost
	}

	return quote, nil
}
