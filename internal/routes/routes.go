package routes

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/nepgrocery/internal/config"
	"github.com/example/nepgrocery/internal/database"
	"github.com/example/nepgrocery/internal/handlers"
	"github.com/example/nepgrocery/internal/middleware"
	"github.com/example/nepgrocery/internal/pricing"
	"github.com/example/nepgrocery/internal/security"
	"github.com/example/nepgrocery/internal/services"
)

// Register wires up all HTTP routes.
func Register(app *fiber.App, db *gorm.DB, cfg *config.Config) {
	emailService := services.NewEmailService(cfg)
	geoService := services.NewGeoIPService(cfg.GeoIPBaseURL)
	esewaService := services.NewEsewaService(cfg)
	otpManager := security.NewOTPManager(database.NewChallengeStore(db), emailService)

	authHandler := handlers.NewAuthHandler(db, cfg, otpManager, geoService)
	resetHandler := handlers.NewPasswordResetHandler(db, cfg, emailService)
	profileHandler := handlers.NewProfileHandler(db)
	catalogHandler := handlers.NewCatalogHandler(db)
	productHandler := handlers.NewProductHandler(db)
	orderHandler := handlers.NewOrderHandler(db, pricing.DrawAwardPoints)
	paymentHandler := handlers.NewPaymentHandler(db, cfg, esewaService, pricing.DrawAwardPoints)
	adminHandler := handlers.NewAdminHandler(db)

	api := app.Group("/api")

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Post("/verify-otp", authHandler.VerifyOTP)
	auth.Post("/resend-otp", authHandler.ResendOTP)
	auth.Post("/logout", authHandler.Logout)
	auth.Post("/forgot-password", resetHandler.ForgotPassword)
	auth.Post("/reset-password/:token", resetHandler.ResetPassword)

	// Public catalog
	api.Get("/categories", catalogHandler.ListCategories)
	api.Get("/products", productHandler.ListProducts)
	api.Get("/products/:id", productHandler.GetProduct)

	// Gateway redirect target; reached by the customer's browser, not by an
	// authenticated API client.
	api.Get("/payments/esewa/verify", paymentHandler.VerifyEsewa)

	// Protected routes
	protected := api.Group("", middleware.AuthMiddleware(cfg, db))

	protected.Get("/profile", profileHandler.GetProfile)
	protected.Put("/profile", profileHandler.UpdateProfile)
	protected.Put("/profile/picture", profileHandler.UpdateProfilePicture)
	protected.Post("/profile/pin", profileHandler.SetPIN)
	protected.Post("/profile/pin/verify", profileHandler.VerifyPIN)

	protected.Post("/orders", orderHandler.CreateOrder)
	protected.Get("/orders", orderHandler.ListMyOrders)
	protected.Get("/orders/:id", orderHandler.GetOrder)
	protected.Get("/payments/history", orderHandler.PaymentHistory)
	protected.Post("/payments/esewa/initiate", paymentHandler.InitiateEsewa)

	// Admin routes
	admin := api.Group("/admin", middleware.AuthMiddleware(cfg, db), middleware.RequireAdmin())

	admin.Get("/dashboard", adminHandler.Dashboard)

	admin.Post("/users", adminHandler.CreateUser)
	admin.Get("/users", adminHandler.ListUsers)
	admin.Get("/users/:id", adminHandler.GetUser)
	admin.Put("/users/:id", adminHandler.UpdateUser)
	admin.Delete("/users/:id", adminHandler.DeleteUser)

	admin.Get("/orders", orderHandler.ListAllOrders)
	admin.Put("/orders/:id/status", orderHandler.UpdateOrderStatus)

	admin.Post("/categories", catalogHandler.CreateCategory)
	admin.Put("/categories/:id", catalogHandler.UpdateCategory)
	admin.Delete("/categories/:id", catalogHandler.DeleteCategory)

	admin.Post("/products", productHandler.CreateProduct)
	admin.Put("/products/:id", productHandler.UpdateProduct)
	admin.Delete("/products/:id", productHandler.DeleteProduct)
}
