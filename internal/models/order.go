package models

import (
	"github.com/google/uuid"
)

// Order statuses. Orders are created in Pending (or Pending Payment for
// prepaid flows) and transition only through administrative action.
const (
	OrderStatusPending        = "Pending"
	OrderStatusShipped        = "Shipped"
	OrderStatusDelivered      = "Delivered"
	OrderStatusCancelled      = "Cancelled"
	OrderStatusPendingPayment = "Pending Payment"
)

// OrderStatuses lists every valid order status.
var OrderStatuses = []string{
	OrderStatusPending,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
	OrderStatusPendingPayment,
}

// Payment methods.
const (
	PaymentMethodCOD   = "COD"
	PaymentMethodEsewa = "eSewa"
)

type Order struct {
	BaseModel
	CustomerID      uuid.UUID   `gorm:"type:uuid;index" json:"customer_id"`
	Customer        *User       `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	Items           []OrderItem `json:"items,omitempty"`
	Amount          float64     `json:"amount"`
	Address         string      `json:"address"`
	Phone           string      `json:"phone"`
	Status          string      `gorm:"index" json:"status"`
	PaymentMethod   string      `json:"payment_method"`
	TransactionID   *string     `gorm:"uniqueIndex" json:"transaction_id,omitempty"`
	PointsAwarded   int         `json:"points_awarded"`
	DiscountApplied bool        `json:"discount_applied"`
}

// ItemSubtotal sums the price snapshots of all line items. Delivery fee and
// discounts are not included.
func (o *Order) ItemSubtotal() float64 {
	var sum float64
	for _, item := range o.Items {
		sum += item.UnitPrice * float64(item.Quantity)
	}
	return sum
}

// OrderItem snapshots product name and unit price at order time so later
// catalog changes don't retroactively alter historical orders.
type OrderItem struct {
	BaseModel
	OrderID   uuid.UUID `gorm:"type:uuid;index" json:"order_id"`
	ProductID uuid.UUID `gorm:"type:uuid;index" json:"product_id"`
	Name      string    `json:"name"`
	UnitPrice float64   `json:"unit_price"`
	Quantity  int       `json:"quantity"`
	ImageURL  string    `json:"image_url"`
}
