package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/example/nepgrocery/internal/config"
)

// EsewaService talks to the eSewa-style payment gateway. The signature
// protocol is treated as an opaque signer/verifier: we sign the outgoing
// form payload and re-check completed transactions against the gateway's
// status API before trusting a callback.
type EsewaService struct {
	merchantCode string
	secretKey    string
	formURL      string
	statusURL    string
	client       *resty.Client
}

// NewEsewaService constructs an EsewaService from configuration.
func NewEsewaService(cfg *config.Config) *EsewaService {
	return &EsewaService{
		merchantCode: cfg.EsewaMerchantCode,
		secretKey:    cfg.EsewaSecretKey,
		formURL:      cfg.EsewaFormURL,
		statusURL:    cfg.EsewaStatusURL,
		client:       resty.New().SetTimeout(15 * time.Second),
	}
}

// Sign produces the base64 HMAC-SHA256 signature over the gateway's fixed
// signed-field string.
func (s *EsewaService) Sign(totalAmount, transactionUUID string) string {
	base := fmt.Sprintf("total_amount=%s,transaction_uuid=%s,product_code=%s",
		totalAmount, transactionUUID, s.merchantCode)

	mac := hmac.New(sha256.New, []byte(s.secretKey))
	mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// FormPayload is the signed field set the frontend posts to the gateway.
type FormPayload struct {
	Amount                string `json:"amount"`
	TaxAmount             string `json:"tax_amount"`
	ProductServiceCharge  string `json:"product_service_charge"`
	ProductDeliveryCharge string `json:"product_delivery_charge"`
	TotalAmount           string `json:"total_amount"`
	TransactionUUID       string `json:"transaction_uuid"`
	ProductCode           string `json:"product_code"`
	Signature             string `json:"signature"`
	SignedFieldNames      string `json:"signed_field_names"`
	SuccessURL            string `json:"success_url"`
	FailureURL            string `json:"failure_url"`
	EsewaURL              string `json:"esewa_url"`
}

// BuildFormPayload assembles and signs the checkout form fields.
func (s *EsewaService) BuildFormPayload(itemsTotal, deliveryFee, totalAmount float64, transactionUUID, successURL, failureURL string) FormPayload {
	total := formatAmount(totalAmount)
	return FormPayload{
		Amount:                formatAmount(itemsTotal),
		TaxAmount:             "0",
		ProductServiceCharge:  "0",
		ProductDeliveryCharge: formatAmount(deliveryFee),
		TotalAmount:           total,
		TransactionUUID:       transactionUUID,
		ProductCode:           s.merchantCode,
		Signature:             s.Sign(total, transactionUUID),
		SignedFieldNames:      "total_amount,transaction_uuid,product_code",
		SuccessURL:            successURL,
		FailureURL:            failureURL,
		EsewaURL:              s.formURL,
	}
}

// CallbackData is the decoded success-callback payload.
type CallbackData struct {
	Status          string `json:"status"`
	TransactionUUID string `json:"transaction_uuid"`
	TotalAmount     string `json:"total_amount"`
}

// DecodeCallbackData parses the base64-encoded JSON blob the gateway appends
// to its success redirect.
func DecodeCallbackData(data string) (*CallbackData, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode callback data: %w", err)
	}

	var decoded CallbackData
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("parse callback data: %w", err)
	}

	return &decoded, nil
}

type statusResponse struct {
	Status string `json:"status"`
}

// VerifyTransaction re-checks a transaction against the gateway's status API
// and reports whether it is COMPLETE. Callback payloads are never trusted on
// their own.
func (s *EsewaService) VerifyTransaction(totalAmount, transactionUUID string) (bool, error) {
	var result statusResponse
	resp, err := s.client.R().
		SetQueryParams(map[string]string{
			"product_code":     s.merchantCode,
			"total_amount":     totalAmount,
			"transaction_uuid": transactionUUID,
		}).
		SetResult(&result).
		Get(s.statusURL)
	if err != nil {
		return false, err
	}
	if resp.IsError() {
		return false, fmt.Errorf("gateway status check returned %s", resp.Status())
	}

	return result.Status == "COMPLETE", nil
}

func formatAmount(amount float64) string {
	if amount == float64(int64(amount)) {
		return fmt.Sprintf("%d", int64(amount))
	}
	return fmt.Sprintf("%.2f", amount)
}
