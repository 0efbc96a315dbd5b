package handlers

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/example/nepgrocery/internal/config"
	"github.com/example/nepgrocery/internal/middleware"
	"github.com/example/nepgrocery/internal/models"
	"github.com/example/nepgrocery/internal/services"
)

// fakeGateway mimics the eSewa status API; transactions listed in paid are
// reported COMPLETE.
func fakeGateway(t *testing.T, paid map[string]bool) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if paid[r.URL.Query().Get("transaction_uuid")] {
			w.Write([]byte(`{"status":"COMPLETE"}`))
			return
		}
		w.Write([]byte(`{"status":"NOT_FOUND"}`))
	}))
}

func newPaymentApp(db *gorm.DB, cfg *config.Config) *fiber.App {
	app := fiber.New()
	h := NewPaymentHandler(db, cfg, services.NewEsewaService(cfg), fixedDraw(15))

	app.Get("/payments/esewa/verify", h.VerifyEsewa)

	protected := app.Group("", middleware.AuthMiddleware(cfg, db))
	protected.Post("/payments/esewa/initiate", h.InitiateEsewa)
	return app
}

func paymentTestConfig(statusURL string) *config.Config {
	cfg := testConfig()
	cfg.EsewaMerchantCode = "EPAYTEST"
	cfg.EsewaSecretKey = "8gBm/:&EnhH.1/q"
	cfg.EsewaStatusURL = statusURL
	return cfg
}

func callbackData(t *testing.T, status, transactionUUID, totalAmount string) string {
	t.Helper()

	raw := fmt.Sprintf(`{"status":%q,"transaction_uuid":%q,"total_amount":%q}`,
		status, transactionUUID, totalAmount)
	return url.QueryEscape(base64.StdEncoding.EncodeToString([]byte(raw)))
}

func TestInitiateEsewa_CreatesProvisionalOrder(t *testing.T) {
	db := setupTestDB(t)
	cfg := paymentTestConfig("")
	app := newPaymentApp(db, cfg)

	user := createUser(t, db, "ram@example.com", "Str0ng!Pass", func(u *models.User) {
		u.GroceryPoints = 200
	})
	product := createProduct(t, db, "Ghee 1kg", 1250, 10)
	token := sessionToken(t, cfg, user)

	resp, body := doRequest(t, app, authedRequest(t, http.MethodPost, "/payments/esewa/initiate", token, fiber.Map{
		"items":   []fiber.Map{{"product_id": product.ID, "quantity": 2}},
		"address": "Baneshwor, Kathmandu",
		"phone":   "9800000000",
	}))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data := body["data"].(map[string]any)
	payment := data["payment"].(map[string]any)
	assert.Equal(t, "2550", payment["total_amount"])
	assert.NotEmpty(t, payment["signature"])
	assert.Equal(t, "EPAYTEST", payment["product_code"])

	// The order waits for the gateway; nothing has been charged yet.
	var order models.Order
	require.NoError(t, db.First(&order, "customer_id = ?", user.ID).Error)
	assert.Equal(t, models.OrderStatusPendingPayment, order.Status)
	assert.Equal(t, models.PaymentMethodEsewa, order.PaymentMethod)
	require.NotNil(t, order.TransactionID)

	var freshProduct models.Product
	reload(t, db, &freshProduct, product.ID)
	assert.Equal(t, 10, freshProduct.Stock)

	var freshUser models.User
	reload(t, db, &freshUser, user.ID)
	assert.Equal(t, 200, freshUser.GroceryPoints)
}

func TestVerifyEsewa_SuccessCommitsOrder(t *testing.T) {
	db := setupTestDB(t)

	user := createUser(t, db, "ram@example.com", "Str0ng!Pass")
	product := createProduct(t, db, "Ghee 1kg", 1250, 10)

	transactionID := "hg-paid-1"
	order := &models.Order{
		CustomerID:    user.ID,
		Status:        models.OrderStatusPendingPayment,
		PaymentMethod: models.PaymentMethodEsewa,
		Amount:        2550,
		TransactionID: &transactionID,
		Items: []models.OrderItem{
			{ProductID: product.ID, Name: product.Name, UnitPrice: 1250, Quantity: 2},
		},
	}
	require.NoError(t, db.Create(order).Error)

	gateway := fakeGateway(t, map[string]bool{transactionID: true})
	defer gateway.Close()
	cfg := paymentTestConfig(gateway.URL)
	app := newPaymentApp(db, cfg)

	data := callbackData(t, "COMPLETE", transactionID, "2550")
	resp, _ := doRequest(t, app, jsonRequest(t, http.MethodGet, "/payments/esewa/verify?data="+data, nil))
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, cfg.ClientURL+"/payment/success", resp.Header.Get("Location"))

	var freshOrder models.Order
	reload(t, db, &freshOrder, order.ID)
	assert.Equal(t, models.OrderStatusPending, freshOrder.Status)
	// Subtotal 2500 qualifies for the loyalty award.
	assert.Equal(t, 15, freshOrder.PointsAwarded)

	var freshUser models.User
	reload(t, db, &freshUser, user.ID)
	assert.Equal(t, 15, freshUser.GroceryPoints)

	var freshProduct models.Product
	reload(t, db, &freshProduct, product.ID)
	assert.Equal(t, 8, freshProduct.Stock)
}

func TestVerifyEsewa_FailureDeletesProvisionalOrder(t *testing.T) {
	db := setupTestDB(t)

	user := createUser(t, db, "ram@example.com", "Str0ng!Pass")
	product := createProduct(t, db, "Ghee 1kg", 1250, 10)

	transactionID := "hg-unpaid-1"
	order := &models.Order{
		CustomerID:    user.ID,
		Status:        models.OrderStatusPendingPayment,
		PaymentMethod: models.PaymentMethodEsewa,
		Amount:        2550,
		TransactionID: &transactionID,
		Items: []models.OrderItem{
			{ProductID: product.ID, Name: product.Name, UnitPrice: 1250, Quantity: 2},
		},
	}
	require.NoError(t, db.Create(order).Error)

	gateway := fakeGateway(t, nil)
	defer gateway.Close()
	cfg := paymentTestConfig(gateway.URL)
	app := newPaymentApp(db, cfg)

	// The callback claims COMPLETE, but the status API disagrees.
	data := callbackData(t, "COMPLETE", transactionID, "2550")
	resp, _ := doRequest(t, app, jsonRequest(t, http.MethodGet, "/payments/esewa/verify?data="+data, nil))
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, cfg.ClientURL+"/payment/failure", resp.Header.Get("Location"))

	var count int64
	require.NoError(t, db.Model(&models.Order{}).Where("id = ?", order.ID).Count(&count).Error)
	assert.Zero(t, count)

	var freshProduct models.Product
	reload(t, db, &freshProduct, product.ID)
	assert.Equal(t, 10, freshProduct.Stock)
}

func TestVerifyEsewa_GarbagePayloadRedirectsToFailure(t *testing.T) {
	db := setupTestDB(t)
	cfg := paymentTestConfig("")
	app := newPaymentApp(db, cfg)

	resp, _ := doRequest(t, app, jsonRequest(t, http.MethodGet, "/payments/esewa/verify?data="+url.QueryEscape("not-base64!!!"), nil))
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, cfg.ClientURL+"/payment/failure", resp.Header.Get("Location"))
}

func TestVerifyEsewa_ReplayIsHarmless(t *testing.T) {
	db := setupTestDB(t)

	user := createUser(t, db, "ram@example.com", "Str0ng!Pass")
	product := createProduct(t, db, "Ghee 1kg", 1250, 10)

	transactionID := "hg-paid-2"
	order := &models.Order{
		CustomerID:    user.ID,
		Status:        models.OrderStatusPendingPayment,
		PaymentMethod: models.PaymentMethodEsewa,
		Amount:        2550,
		TransactionID: &transactionID,
		Items: []models.OrderItem{
			{ProductID: product.ID, Name: product.Name, UnitPrice: 1250, Quantity: 2},
		},
	}
	require.NoError(t, db.Create(order).Error)

	gateway := fakeGateway(t, map[string]bool{transactionID: true})
	defer gateway.Close()
	cfg := paymentTestConfig(gateway.URL)
	app := newPaymentApp(db, cfg)

	data := callbackData(t, "COMPLETE", transactionID, "2550")
	resp, _ := doRequest(t, app, jsonRequest(t, http.MethodGet, "/payments/esewa/verify?data="+data, nil))
	require.Equal(t, http.StatusFound, resp.StatusCode)

	// Replaying the callback awards nothing twice.
	resp, _ = doRequest(t, app, jsonRequest(t, http.MethodGet, "/payments/esewa/verify?data="+data, nil))
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, cfg.ClientURL+"/payment/success", resp.Header.Get("Location"))

	var freshUser models.User
	reload(t, db, &freshUser, user.ID)
	assert.Equal(t, 15, freshUser.GroceryPoints)

	var freshProduct models.Product
	reload(t, db, &freshProduct, product.ID)
	assert.Equal(t, 8, freshProduct.Stock)
}
