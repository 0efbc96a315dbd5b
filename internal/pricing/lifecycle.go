package pricing

import (
	"crypto/rand"
	"math/big"

	"github.com/example/nepgrocery/internal/models"
)

// AwardDraw produces the random point award for a qualifying delivery.
// Production uses DrawAwardPoints; tests inject a deterministic draw.
type AwardDraw func(min, max int) int

// TransitionEffects is the ledger of side effects a status transition
// produces. Effects commit together with the status write or not at all.
type TransitionEffects struct {
	// PointsDelta is the signed change to the customer's balance.
	PointsDelta int
	// PointsAwarded, when non-zero, is stored on the order as its one and
	// only delivery award.
	PointsAwarded int
	// ClampBalance floors the resulting balance at zero.
	ClampBalance bool
	// Stock lists per-product restock increments.
	Stock []StockAdjustment
}

// IsZero reports whether the transition carries no ledger effects.
func (e TransitionEffects) IsZero() bool {
	return e.PointsDelta == 0 && e.PointsAwarded == 0 && !e.ClampBalance && len(e.Stock) == 0
}

type transitionKey struct {
	from, to string
}

type effectFunc func(order *models.Order, draw AwardDraw) TransitionEffects

// effectsTable keys ledger effects by (from, to) rather than by target
// status alone: a same-status transition has no entry, so the
// no-double-award and no-double-restock invariants hold structurally.
var effectsTable = map[transitionKey]effectFunc{}

func init() {
	for _, from := range models.OrderStatuses {
		if from != models.OrderStatusDelivered {
			effectsTable[transitionKey{from, models.OrderStatusDelivered}] = deliveryAward
		}
		if from != models.OrderStatusCancelled {
			effectsTable[transitionKey{from, models.OrderStatusCancelled}] = cancellationReversal
		}
	}
}

// TransitionEffectsFor computes the ledger effects of moving an order from
// its current status to the target status. Transitions without an entry in
// the table (including re-entering the current status) are no-ops.
func TransitionEffectsFor(order *models.Order, to string, draw AwardDraw) TransitionEffects {
	fn, ok := effectsTable[transitionKey{order.Status, to}]
	if !ok {
		return TransitionEffects{}
	}
	return fn(order, draw)
}

// deliveryAward credits a random number of points the first time a
// cash-on-delivery order above the subtotal threshold is delivered.
func deliveryAward(order *models.Order, draw AwardDraw) TransitionEffects {
	if order.PaymentMethod != models.PaymentMethodCOD {
		return TransitionEffects{}
	}
	if order.ItemSubtotal() < AwardSubtotalThreshold || order.PointsAwarded != 0 {
		return TransitionEffects{}
	}

	points := draw(AwardMinPoints, AwardMaxPoints)
	return TransitionEffects{
		PointsDelta:   points,
		PointsAwarded: points,
	}
}

// cancellationReversal unwinds the order's loyalty economics and restocks
// every line item: a previously awarded balance is debited, a redeemed
// discount is refunded at its full point cost, and the resulting balance is
// clamped at zero.
func cancellationReversal(order *models.Order, _ AwardDraw) TransitionEffects {
	effects := TransitionEffects{ClampBalance: true}

	if order.PointsAwarded > 0 {
		effects.PointsDelta -= order.PointsAwarded
	}
	if order.DiscountApplied {
		effects.PointsDelta += DiscountPointCost
	}

	for _, item := range order.Items {
		effects.Stock = append(effects.Stock, StockAdjustment{
			ProductID: item.ProductID,
			Delta:     item.Quantity,
		})
	}

	return effects
}

// DrawAwardPoints draws a uniform random integer in [min, max] from the
// system's cryptographic source.
func DrawAwardPoints(min, max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max-min+1)))
	if err != nil {
		// crypto/rand failing means the process has bigger problems; fall
		// back to the minimum award rather than failing the transition.
		return min
	}
	return min + int(n.Int64())
}
