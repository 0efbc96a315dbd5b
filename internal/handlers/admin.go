package handlers

import (
	"errors"
	"slices"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/nepgrocery/internal/middleware"
	"github.com/example/nepgrocery/internal/models"
	"github.com/example/nepgrocery/internal/security"
	"github.com/example/nepgrocery/internal/utils"
)

// AdminHandler manages user administration and the dashboard.
type AdminHandler struct {
	db *gorm.DB
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(db *gorm.DB) *AdminHandler {
	return &AdminHandler{db: db}
}

type createUserRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// CreateUser provisions an account, optionally with the admin role. The
// usual password policy applies.
func (h *AdminHandler) CreateUser(c *fiber.Ctx) error {
	var req createUserRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.FullName == "" || req.Email == "" || req.Password == "" {
		return fiber.NewError(fiber.StatusBadRequest, "full name, email and password are required")
	}

	role := req.Role
	if role == "" {
		role = models.RoleNormal
	}
	if !slices.Contains([]string{models.RoleNormal, models.RoleAdmin}, role) {
		return fiber.NewError(fiber.StatusBadRequest, "invalid role")
	}

	if err := security.ValidateNewPassword(req.Password, req.FullName, nil); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	var existing models.User
	if err := h.db.Where("email = ?", req.Email).First(&existing).Error; err == nil {
		return fiber.NewError(fiber.StatusConflict, "user with this email already exists")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	hash, err := utils.HashSecret(req.Password)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to hash password")
	}

	user := models.User{
		FullName:     req.FullName,
		Email:        req.Email,
		Role:         role,
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := h.db.Create(&user).Error; err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "user created successfully",
		"data":    userResponse(&user),
	})
}

// ListUsers returns accounts with optional search and pagination.
func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	pagination := utils.ParsePagination(c)

	query := h.db.Model(&models.User{})
	if search := c.Query("search"); search != "" {
		pattern := "%" + search + "%"
		query = query.Where("full_name LIKE ? OR email LIKE ?", pattern, pattern)
	}
	if role := c.Query("role"); role != "" {
		query = query.Where("role = ?", role)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var users []models.User
	if err := query.Order("created_at desc").
		Limit(pagination.Limit).Offset(pagination.Offset).
		Find(&users).Error; err != nil {
		return err
	}

	data := make([]fiber.Map, 0, len(users))
	for i := range users {
		entry := userResponse(&users[i])
		entry["is_active"] = users[i].IsActive
		data = append(data, entry)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    data,
		"meta": fiber.Map{
			"page":  pagination.Page,
			"limit": pagination.Limit,
			"total": total,
		},
	})
}

// GetUser returns one account with its recent login history.
func (h *AdminHandler) GetUser(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid user id")
	}

	var user models.User
	if err := h.db.Preload("LoginRecords", func(db *gorm.DB) *gorm.DB {
		return db.Order("timestamp desc").Limit(models.LoginHistoryLimit)
	}).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "user not found")
		}
		return err
	}

	data := userResponse(&user)
	data["is_active"] = user.IsActive
	data["login_history"] = user.LoginRecords

	return c.JSON(fiber.Map{"success": true, "data": data})
}

type updateUserRequest struct {
	Role     string `json:"role"`
	IsActive *bool  `json:"is_active"`
}

// UpdateUser changes an account's role or active flag. Admins cannot
// deactivate themselves, so at least the acting account survives.
func (h *AdminHandler) UpdateUser(c *fiber.Ctx) error {
	actor, ok := middleware.GetCurrentUser(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid user id")
	}

	var req updateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	var user models.User
	if err := h.db.First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "user not found")
		}
		return err
	}

	if req.Role != "" {
		if !slices.Contains([]string{models.RoleNormal, models.RoleAdmin}, req.Role) {
			return fiber.NewError(fiber.StatusBadRequest, "invalid role")
		}
		user.Role = req.Role
	}

	if req.IsActive != nil {
		if !*req.IsActive && user.ID == actor.ID {
			return fiber.NewError(fiber.StatusBadRequest, "you cannot deactivate your own account")
		}
		user.IsActive = *req.IsActive
	}

	if err := h.db.Save(&user).Error; err != nil {
		return err
	}

	data := userResponse(&user)
	data["is_active"] = user.IsActive

	return c.JSON(fiber.Map{
		"success": true,
		"message": "user updated successfully",
		"data":    data,
	})
}

// DeleteUser removes an account. Self-deletion is rejected.
func (h *AdminHandler) DeleteUser(c *fiber.Ctx) error {
	actor, ok := middleware.GetCurrentUser(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid user id")
	}
	if id == actor.ID {
		return fiber.NewError(fiber.StatusBadRequest, "you cannot delete your own account")
	}

	result := h.db.Delete(&models.User{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fiber.NewError(fiber.StatusNotFound, "user not found")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "user deleted successfully",
	})
}

type monthlySale struct {
	Month string  `json:"month"`
	Total float64 `json:"total"`
}

type topProduct struct {
	ProductID uuid.UUID `json:"product_id"`
	Name      string    `json:"name"`
	Sold      int       `json:"sold"`
}

// Dashboard aggregates storefront metrics for the admin panel. Revenue only
// counts delivered orders.
func (h *AdminHandler) Dashboard(c *fiber.Ctx) error {
	var revenue float64
	if err := h.db.Model(&models.Order{}).
		Where("status = ?", models.OrderStatusDelivered).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&revenue).Error; err != nil {
		return err
	}

	var openOrders int64
	if err := h.db.Model(&models.Order{}).
		Where("status IN ?", []string{models.OrderStatusPending, models.OrderStatusShipped}).
		Count(&openOrders).Error; err != nil {
		return err
	}

	var customers int64
	if err := h.db.Model(&models.User{}).
		Where("role = ?", models.RoleNormal).
		Count(&customers).Error; err != nil {
		return err
	}

	// Month bucketing has no portable SQL spelling between the production
	// database and the sqlite test database.
	monthExpr := "to_char(created_at, 'YYYY-MM')"
	if h.db.Dialector.Name() == "sqlite" {
		monthExpr = "strftime('%Y-%m', created_at)"
	}

	var monthlySales []monthlySale
	if err := h.db.Model(&models.Order{}).
		Where("status = ?", models.OrderStatusDelivered).
		Select(monthExpr + " AS month, SUM(amount) AS total").
		Group(monthExpr).Order("month desc").Limit(12).
		Scan(&monthlySales).Error; err != nil {
		return err
	}

	var topProducts []topProduct
	if err := h.db.Model(&models.OrderItem{}).
		Select("order_items.product_id, order_items.name, SUM(order_items.quantity) AS sold").
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("orders.status <> ?", models.OrderStatusCancelled).
		Group("order_items.product_id, order_items.name").
		Order("sold desc").Limit(5).
		Scan(&topProducts).Error; err != nil {
		return err
	}

	var recentOrders []models.Order
	if err := h.db.Preload("Customer").
		Where("status <> ?", models.OrderStatusPendingPayment).
		Order("created_at desc").Limit(5).
		Find(&recentOrders).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"total_revenue": revenue,
			"open_orders":   openOrders,
			"customers":     customers,
			"monthly_sales": monthlySales,
			"top_products":  topProducts,
			"recent_orders": recentOrders,
		},
	})
}
