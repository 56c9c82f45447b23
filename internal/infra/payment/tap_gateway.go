package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"promptmarket-payments/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*TapGateway)(nil)

// TapGateway implements the gateway port against the Tap Charges API.
// Tap charges auto-capture, so CaptureOrder degrades to a status query.
type TapGateway struct {
	secretKey string
	baseURL   string
	client    *http.Client
}

func NewTapGateway(secretKey string) *TapGateway {
	return &TapGateway{
		secretKey: secretKey,
		baseURL:   "https://api.tap.company/v2",
		client:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (g *TapGateway) Name() string { return "tap" }

type tapChargeResponse struct {
	ID          string  `json:"id"`
	Status      string  `json:"status"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Transaction struct {
		URL string `json:"url"`
	} `json:"transaction"`
	Response struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"response"`
	Reference struct {
		Transaction string `json:"transaction"`
		Payment     string `json:"payment"`
	} `json:"reference"`
	Metadata map[string]string `json:"metadata"`
}

func (g *TapGateway) CreateOrder(ctx context.Context, req adapter.CreateOrderRequest) (string, string, error) {
	payload := map[string]interface{}{
		"amount":   float64(req.Amount) / 100,
		"currency": req.Currency,
		"metadata": map[string]string{
			"user_id": req.UserID,
			"plan_id": req.PlanID,
			"txn_id":  req.Reference,
		},
		"reference": map[string]string{"transaction": req.Reference},
		"redirect":  map[string]string{"url": req.ReturnURL},
		"post":      map[string]string{"url": req.CancelURL},
		"source":    map[string]string{"id": "src_all"},
	}

	var charge tapChargeResponse
	if err := g.call(ctx, "POST", "/charges", payload, &charge); err != nil {
		return "", "", err
	}
	if charge.ID == "" || charge.Transaction.URL == "" {
		return "", "", fmt.Errorf("tap create charge: incomplete response (id=%q)", charge.ID)
	}
	return charge.ID, charge.Transaction.URL, nil
}

func (g *TapGateway) CaptureOrder(ctx context.Context, orderID string) (adapter.ChargeResult, error) {
	// Charges settle on approval; the authoritative status is all we need.
	return g.QueryOrder(ctx, orderID)
}

func (g *TapGateway) QueryOrder(ctx context.Context, orderID string) (adapter.ChargeResult, error) {
	var charge tapChargeResponse
	if err := g.call(ctx, "GET", "/charges/"+orderID, nil, &charge); err != nil {
		return adapter.ChargeResult{}, err
	}
	res := adapter.ChargeResult{
		OrderID:   charge.ID,
		PaymentID: charge.Reference.Payment,
		Status:    MapTapStatus(charge.Status),
		Amount:    int64(charge.Amount*100 + 0.5),
		Currency:  charge.Currency,
	}
	if res.Status != adapter.ChargeStatusCompleted && charge.Response.Message != "" {
		res.Reason = charge.Response.Message
	}
	return res, nil
}

// MapTapStatus folds Tap's charge status vocabulary into the normalized enum.
// Exported because the webhook endpoint normalizes statuses with it too.
func MapTapStatus(s string) adapter.ChargeStatus {
	switch s {
	case "INITIATED", "IN_PROGRESS":
		return adapter.ChargeStatusPending
	case "AUTHORIZED":
		return adapter.ChargeStatusApproved
	case "CAPTURED":
		return adapter.ChargeStatusCompleted
	case "FAILED", "TIMEDOUT", "UNKNOWN":
		return adapter.ChargeStatusFailed
	case "DECLINED", "RESTRICTED", "ABANDONED":
		return adapter.ChargeStatusDeclined
	case "CANCELLED":
		return adapter.ChargeStatusCancelled
	case "VOID":
		return adapter.ChargeStatusVoided
	default:
		return adapter.ChargeStatusUnknown
	}
}

func (g *TapGateway) call(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request data: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.secretKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("tap error: status %d, body: %s", resp.StatusCode, string(raw))
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w, body: %s", err, string(raw))
		}
	}
	return nil
}
