package handlers

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/example/nepgrocery/internal/config"
	"github.com/example/nepgrocery/internal/middleware"
	"github.com/example/nepgrocery/internal/models"
	"github.com/example/nepgrocery/internal/pricing"
	"github.com/example/nepgrocery/internal/services"
)

// PaymentHandler manages the eSewa checkout flow.
type PaymentHandler struct {
	db    *gorm.DB
	cfg   *config.Config
	esewa *services.EsewaService
	draw  pricing.AwardDraw
}

// NewPaymentHandler constructs a PaymentHandler.
func NewPaymentHandler(db *gorm.DB, cfg *config.Config, esewa *services.EsewaService, draw pricing.AwardDraw) *PaymentHandler {
	return &PaymentHandler{db: db, cfg: cfg, esewa: esewa, draw: draw}
}

type initiateEsewaRequest struct {
	Items         []pricing.CartLine `json:"items"`
	Address       string             `json:"address"`
	Phone         string             `json:"phone"`
	ApplyDiscount bool               `json:"apply_discount"`
}

// InitiateEsewa prices the cart, records a provisional order awaiting gateway
// payment and returns the signed form payload the client posts to the
// gateway. Points and stock are untouched until the payment is verified.
func (h *PaymentHandler) InitiateEsewa(c *fiber.Ctx) error {
	user, ok := middleware.GetCurrentUser(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req initiateEsewaRequest
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

	transactionID := fmt.Sprintf("hg-%d", time.Now().UnixNano())
	order := models.Order{
		CustomerID:      user.ID,
		Items:           quote.Items,
		Amount:          quote.Total,
		Address:         req.Address,
		Phone:           req.Phone,
		Status:          models.OrderStatusPendingPayment,
		PaymentMethod:   models.PaymentMethodEsewa,
		TransactionID:   &transactionID,
		DiscountApplied: quote.DiscountApplied,
	}

	if err := h.db.Create(&order).Error; err != nil {
		return err
	}

	successURL := h.cfg.BackendURL + "/api/payments/esewa/verify"
	failureURL := h.cfg.ClientURL + "/payment/failure"
	payload := h.esewa.BuildFormPayload(
		quote.Subtotal,
		pricing.DeliveryFee,
		quote.Total,
		transactionID,
		successURL,
		failureURL,
	)

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"order_id": order.ID,
			"payment":  payload,
		},
	})
}

// VerifyEsewa is the gateway's success-redirect target. The callback payload
// is never trusted on its own: the transaction is re-checked against the
// gateway's status API before the order is committed. Any failure deletes the
// provisional order so abandoned checkouts never linger.
func (h *PaymentHandler) VerifyEsewa(c *fiber.Ctx) error {
	data := c.Query("data")
	if data == "" {
		return c.Redirect(h.cfg.ClientURL + "/payment/failure")
	}

	decoded, err := services.DecodeCallbackData(data)
	if err != nil {
		log.Warn().Err(err).Msg("esewa callback payload rejected")
		return c.Redirect(h.cfg.ClientURL + "/payment/failure")
	}

	var order models.Order
	if err := h.db.Preload("Items").
		First(&order, "transaction_id = ?", decoded.TransactionUUID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Redirect(h.cfg.ClientURL + "/payment/failure")
		}
		return err
	}

	if order.Status != models.OrderStatusPendingPayment {
		// Callback replay for an already settled order.
		return c.Redirect(h.cfg.ClientURL + "/payment/success")
	}

	verified := decoded.Status == "COMPLETE"
	if verified {
		verified, err = h.esewa.VerifyTransaction(decoded.TotalAmount, decoded.TransactionUUID)
		if err != nil {
			log.Error().Err(err).Str("transaction_id", decoded.TransactionUUID).
				Msg("esewa status check failed")
			verified = false
		}
	}

	if !verified {
		if err := h.db.Select("Items").Delete(&order).Error; err != nil {
			return err
		}
		log.Info().Str("transaction_id", decoded.TransactionUUID).
			Msg("unpaid order removed after failed gateway verification")
		return c.Redirect(h.cfg.ClientURL + "/payment/failure")
	}

	awarded := 0
	if order.ItemSubtotal() >= pricing.AwardSubtotalThreshold {
		awarded = h.draw(pricing.AwardMinPoints, pricing.AwardMaxPoints)
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{"status": models.OrderStatusPending}
		if awarded > 0 {
			updates["points_awarded"] = awarded
		}
		if err := tx.Model(&order).Updates(updates).Error; err != nil {
			return err
		}

		pointsDelta := awarded
		if order.DiscountApplied {
			pointsDelta -= pricing.DiscountPointCost
		}
		if pointsDelta != 0 {
			if err := tx.Model(&models.User{}).Where("id = ?", order.CustomerID).
				Update("grocery_points", gorm.Expr("grocery_points + ?", pointsDelta)).Error; err != nil {
				return err
			}
		}

		for _, item := range order.Items {
			if err := tx.Model(&models.Product{}).Where("id = ?", item.ProductID).
				Update("stock", gorm.Expr("stock - ?", item.Quantity)).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("order_id", order.ID.String()).
		Str("transaction_id", decoded.TransactionUUID).
		Int("points_awarded", awarded).
		Msg("esewa payment confirmed")

	return c.Redirect(h.cfg.ClientURL + "/payment/success")
}

// resolveProductsFor loads the referenced products into a lookup map.
func resolveProductsFor(db *gorm.DB, lines []pricing.CartLine) (map[uuid.UUID]*models.Product, error) {
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}

	var records []models.Product
	if err := db.Where("id IN ?", ids).Find(&records).Error; err != nil {
		return nil, err
	}

	products := make(map[uuid.UUID]*models.Product, len(records))
	for i := range records {
		products[records[i].ID] = &records[i]
	}
	return products, nil
}
