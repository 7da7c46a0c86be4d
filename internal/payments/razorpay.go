package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultRazorpayBaseURL is the Razorpay REST API root.
const DefaultRazorpayBaseURL = "https://api.razorpay.com"

// RazorpayConfig holds API credentials for Razorpay.
type RazorpayConfig struct {
	KeyID     string
	KeySecret string
	BaseURL   string // empty = DefaultRazorpayBaseURL
	Timeout   time.Duration
}

// APIError is an error response returned by the Razorpay API.
type APIError struct {
	StatusCode  int
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("razorpay: %d %s: %s", e.StatusCode, e.Code, e.Description)
}

// Razorpay implements Gateway against the Razorpay REST API.
type Razorpay struct {
	cfg    RazorpayConfig
	client *http.Client
	logger *zap.Logger
}

// NewRazorpay creates a Razorpay gateway client.
func NewRazorpay(cfg RazorpayConfig, logger *zap.Logger) *Razorpay {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultRazorpayBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Razorpay{cfg: cfg, client: &http.Client{Timeout: timeout}, logger: logger}
}

type orderBody struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// CreateOrder handles POST /v1/orders.
func (r *Razorpay) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	var order Order
	body := orderBody{Amount: req.AmountMinor, Currency: req.Currency, Receipt: req.Receipt, Notes: req.Notes}
	if err := r.post(ctx, "/v1/orders", body, &order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	r.logger.Info("razorpay order created", zap.String("order_id", order.ID), zap.String("receipt", req.Receipt))
	return &order, nil
}

type refundBody struct {
	Amount int64             `json:"amount"`
	Notes  map[string]string `json:"notes,omitempty"`
}

// Refund handles POST /v1/payments/:id/refund.
func (r *Razorpay) Refund(ctx context.Context, paymentID string, amountMinor int64, notes map[string]string) (string, error) {
	if paymentID == "" {
		return "", errors.New("refund: payment id required")
	}
	var out struct {
		ID string `json:"id"`
	}
	path := "/v1/payments/" + url.PathEscape(paymentID) + "/refund"
	if err := r.post(ctx, path, refundBody{Amount: amountMinor, Notes: notes}, &out); err != nil {
		return "", fmt.Errorf("refund: %w", err)
	}
	r.logger.Info("razorpay refund created", zap.String("payment_id", paymentID), zap.String("refund_id", out.ID))
	return out.ID, nil
}

// VerifySignature checks hex(HMAC-SHA256(secret, order_id|payment_id)) against signature.
func (r *Razorpay) VerifySignature(orderID, paymentID, signature string) bool {
	if orderID == "" || paymentID == "" || signature == "" {
		return false
	}
	expected := Sign(r.cfg.KeySecret, orderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// Sign computes the checkout signature Razorpay returns for an order/payment pair.
func Sign(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func (r *Razorpay) post(ctx context.Context, path string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(r.cfg.BaseURL, "/")+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(r.cfg.KeyID, r.cfg.KeySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var envelope struct {
			Error APIError `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&envelope)
		apiErr := envelope.Error
		apiErr.StatusCode = resp.StatusCode
		if resp.StatusCode >= 500 {
			return fmt.Errorf("%w: %v", ErrGatewayUnavailable, &apiErr)
		}
		return &apiErr
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

var _ Gateway = (*Razorpay)(nil)
