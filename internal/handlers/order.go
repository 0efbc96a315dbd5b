package handlers

import (
	"errors"
	"slices"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/example/nepgrocery/internal/middleware"
	"github.com/example/nepgrocery/internal/models"
	"github.com/example/nepgrocery/internal/pricing"
	"github.com/example/nepgrocery/internal/utils"
)

// OrderHandler manages order placement and lifecycle endpoints.
type OrderHandler struct {
	db   *gorm.DB
	draw pricing.AwardDraw
}

// NewOrderHandler constructs an OrderHandler. draw supplies the delivery
// point award; pass pricing.DrawAwardPoints in production.
func NewOrderHandler(db *gorm.DB, draw pricing.AwardDraw) *OrderHandler {
	return &OrderHandler{db: db, draw: draw}
}

type createOrderRequest struct {
	Items         []pricing.CartLine `json:"items"`
	Address       string             `json:"address"`
	Phone         string             `json:"phone"`
	ApplyDiscount bool               `json:"apply_discount"`
}

// CreateOrder places a cash-on-delivery order. Totals, the discount and the
// point deduction are recomputed server-side; client-submitted amounts are
// ignored.
func (h *OrderHandler) CreateOrder(c *fiber.Ctx) error {
	user, ok := middleware.GetCurrentUser(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req createOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Address == "" || req.Phone == "" {
		return fiber.NewError(fiber.StatusBadRequest, "address and phone are required")
	}

	products, err := resolveProductsFor(h.db, req.Items)
	if err != nil {
		return err
	}

	quote, err := pricing.PriceOrder(req.Items, products, user.GroceryPoints, req.ApplyDiscount)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	order := models.Order{
		CustomerID:      user.ID,
		Items:           quote.Items,
		Amount:          quote.Total,
		Address:         req.Address,
		Phone:           req.Phone,
		Status:          models.OrderStatusPending,
		PaymentMethod:   models.PaymentMethodCOD,
		DiscountApplied: quote.DiscountApplied,
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&order).Error; err != nil {
			return err
		}
		if quote.PointsToDeduct > 0 {
			if err := tx.Model(&models.User{}).Where("id = ?", user.ID).
				Update("grocery_points", gorm.Expr("grocery_points - ?", quote.PointsToDeduct)).Error; err != nil {
				return err
			}
		}
		return applyStockAdjustments(tx, quote.StockAdjustments)
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("order_id", order.ID.String()).
		Str("customer_id", user.ID.String()).
		Float64("amount", order.Amount).
		Bool("discount", order.DiscountApplied).
		Msg("order placed")

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "order placed successfully",
		"data":    order,
	})
}

// ListMyOrders returns the customer's orders, most recent first. Orders still
// awaiting gateway payment are hidden.
func (h *OrderHandler) ListMyOrders(c *fiber.Ctx) error {
	user, ok := middleware.GetCurrentUser(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var orders []models.Order
	if err := h.db.Preload("Items").
		Where("customer_id = ? AND status <> ?", user.ID, models.OrderStatusPendingPayment).
		Order("created_at desc").
		Find(&orders).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": orders})
}

// ListAllOrders returns every order for the admin panel, with optional
// status filtering and pagination.
func (h *OrderHandler) ListAllOrders(c *fiber.Ctx) error {
	pagination := utils.ParsePagination(c)

	query := h.db.Model(&models.Order{}).
		Where("status <> ?", models.OrderStatusPendingPayment)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var orders []models.Order
	if err := query.Preload("Items").Preload("Customer").
		Order("created_at desc").
		Limit(pagination.Limit).Offset(pagination.Offset).
		Find(&orders).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    orders,
		"meta": fiber.Map{
			"page":  pagination.Page,
			"limit": pagination.Limit,
			"total": total,
		},
	})
}

// GetOrder returns one order. Customers can only read their own.
func (h *OrderHandler) GetOrder(c *fiber.Ctx) error {
	user, ok := middleware.GetCurrentUser(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid order id")
	}

	var order models.Order
	if err := h.db.Preload("Items").Preload("Customer").
		First(&order, "id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "order not found")
		}
		return err
	}

	if user.Role != models.RoleAdmin && order.CustomerID != user.ID {
		return fiber.NewError(fiber.StatusForbidden, "you are not allowed to view this order")
	}

	return c.JSON(fiber.Map{"success": true, "data": order})
}

// PaymentHistory lists the customer's completed gateway payments.
func (h *OrderHandler) PaymentHistory(c *fiber.Ctx) error {
	user, ok := middleware.GetCurrentUser(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var orders []models.Order
	if err := h.db.Preload("Items").
		Where("customer_id = ? AND payment_method = ? AND status <> ?",
			user.ID, models.PaymentMethodEsewa, models.OrderStatusPendingPayment).
		Order("created_at desc").
		Find(&orders).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": orders})
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
}

// UpdateOrderStatus moves an order through its lifecycle. Ledger effects
// (delivery point awards, cancellation reversals, restocks) are computed
// before any write and committed atomically with the status change, so a
// repeated transition to the same status never doubles them.
func (h *OrderHandler) UpdateOrderStatus(c *fiber.Ctx) error {
	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid order id")
	}

	var req updateOrderStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if !slices.Contains(models.OrderStatuses, req.Status) {
		return fiber.NewError(fiber.StatusBadRequest, "invalid order status")
	}

	var order models.Order
	if err := h.db.Preload("Items").First(&order, "id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "order not found")
		}
		return err
	}

	if order.Status == req.Status {
		return c.JSON(fiber.Map{
			"success": true,
			"message": "order status unchanged",
			"data":    order,
		})
	}

	effects := pricing.TransitionEffectsFor(&order, req.Status, h.draw)

	err = h.db.Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{"status": req.Status}
		if effects.PointsAwarded > 0 {
			updates["points_awarded"] = effects.PointsAwarded
		}
		if err := tx.Model(&order).Updates(updates).Error; err != nil {
			return err
		}

		if effects.PointsDelta != 0 || effects.ClampBalance {
			var customer models.User
			if err := tx.First(&customer, "id = ?", order.CustomerID).Error; err != nil {
				return err
			}
			balance := customer.GroceryPoints + effects.PointsDelta
			if effects.ClampBalance && balance < 0 {
				balance = 0
			}
			if err := tx.Model(&customer).Update("grocery_points", balance).Error; err != nil {
				return err
			}
		}

		return applyStockAdjustments(tx, effects.Stock)
	})
	if err != nil {
		return err
	}

	order.Status = req.Status
	if effects.PointsAwarded > 0 {
		order.PointsAwarded = effects.PointsAwarded
	}

	log.Info().
		Str("order_id", order.ID.String()).
		Str("status", order.Status).
		Int("points_delta", effects.PointsDelta).
		Msg("order status updated")

	return c.JSON(fiber.Map{
		"success": true,
		"message": "order status updated",
		"data":    order,
	})
}

// applyStockAdjustments applies signed stock deltas inside the caller's
// transaction.
func applyStockAdjustments(tx *gorm.DB, adjustments []pricing.StockAdjustment) error {
	for _, adj := range adjustments {
		if adj.Delta == 0 {
			continue
		}
		if err := tx.Model(&models.Product{}).Where("id = ?", adj.ProductID).
			Update("stock", gorm.Expr("stock + ?", adj.Delta)).Error; err != nil {
			return err
		}
	}
	return nil
}
