package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"promptmarket-payments/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*PayPalGateway)(nil)

// PayPalGateway implements the gateway port against the PayPal Orders v2 API.
type PayPalGateway struct {
	clientID string
	secret   string
	baseURL  string
	client   *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewPayPalGateway creates a PayPal gateway. Sandbox selects the sandbox API host.
func NewPayPalGateway(clientID, secret string, sandbox bool) *PayPalGateway {
	baseURL := "https://api-m.paypal.com"
	if sandbox {
		baseURL = "https://api-m.sandbox.paypal.com"
	}
	return &PayPalGateway{
		clientID: clientID,
		secret:   secret,
		baseURL:  baseURL,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (g *PayPalGateway) Name() string { return "paypal" }

type paypalTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type paypalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type paypalOrderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []struct {
		Href string `json:"href"`
		Rel  string `json:"rel"`
	} `json:"links"`
	PurchaseUnits []struct {
		Amount   paypalAmount `json:"amount"`
		Payments struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
	Details []struct {
		Issue       string `json:"issue"`
		Description string `json:"description"`
	} `json:"details"`
}

// token fetches (and caches) an OAuth2 access token via client credentials.
func (g *PayPalGateway) token(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.accessToken != "" && time.Now().Before(g.tokenExpiry) {
		return g.accessToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, "POST", g.baseURL+"/v1/oauth2/token", bytes.NewBufferString("grant_type=client_credentials"))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	basic := base64.StdEncoding.EncodeToString([]byte(g.clientID + ":" + g.secret))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("paypal token error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var tok paypalTokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("failed to unmarshal token response: %w", err)
	}
	g.accessToken = tok.AccessToken
	// refresh one minute early
	g.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn-60) * time.Second)
	return g.accessToken, nil
}

func (g *PayPalGateway) CreateOrder(ctx context.Context, req adapter.CreateOrderRequest) (string, string, error) {
	payload := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{{
			"reference_id": req.Reference,
			"custom_id":    req.UserID + ":" + req.PlanID,
			"amount": paypalAmount{
				CurrencyCode: req.Currency,
				Value:        formatMinorUnits(req.Amount),
			},
		}},
		"application_context": map[string]interface{}{
			"return_url": req.ReturnURL,
			"cancel_url": req.CancelURL,
		},
	}

	var order paypalOrderResponse
	if err := g.call(ctx, "POST", "/v2/checkout/orders", payload, &order); err != nil {
		return "", "", err
	}

	approveURL := ""
	for _, l := range order.Links {
		if l.Rel == "approve" {
			approveURL = l.Href
		}
	}
	if order.ID == "" || approveURL == "" {
		return "", "", fmt.Errorf("paypal create order: incomplete response (id=%q)", order.ID)
	}
	return order.ID, approveURL, nil
}

func (g *PayPalGateway) CaptureOrder(ctx context.Context, orderID string) (adapter.ChargeResult, error) {
	var order paypalOrderResponse
	err := g.call(ctx, "POST", "/v2/checkout/orders/"+orderID+"/capture", struct{}{}, &order)
	if err != nil {
		// PayPal answers ORDER_ALREADY_CAPTURED as an error; treat it as the
		// settled state so capture stays idempotent.
		var oe *paypalAPIError
		if errors.As(err, &oe) && oe.issue == "ORDER_ALREADY_CAPTURED" {
			return g.QueryOrder(ctx, orderID)
		}
		return adapter.ChargeResult{}, err
	}
	return g.toResult(orderID, &order), nil
}

func (g *PayPalGateway) QueryOrder(ctx context.Context, orderID string) (adapter.ChargeResult, error) {
	var order paypalOrderResponse
	if err := g.call(ctx, "GET", "/v2/checkout/orders/"+orderID, nil, &order); err != nil {
		return adapter.ChargeResult{}, err
	}
	return g.toResult(orderID, &order), nil
}

func (g *PayPalGateway) toResult(orderID string, order *paypalOrderResponse) adapter.ChargeResult {
	res := adapter.ChargeResult{
		OrderID: orderID,
		Status:  mapPayPalStatus(order.Status),
	}
	if len(order.PurchaseUnits) > 0 {
		pu := order.PurchaseUnits[0]
		res.Currency = pu.Amount.CurrencyCode
		res.Amount = parseMinorUnits(pu.Amount.Value)
		if caps := pu.Payments.Captures; len(caps) > 0 {
			res.PaymentID = caps[0].ID
			if caps[0].Status == "DECLINED" || caps[0].Status == "FAILED" {
				res.Status = adapter.ChargeStatusDeclined
				res.Reason = "capture " + caps[0].Status
			}
		}
	}
	return res
}

// mapPayPalStatus folds PayPal's order status vocabulary into the normalized enum.
func mapPayPalStatus(s string) adapter.ChargeStatus {
	switch s {
	case "CREATED", "SAVED", "PAYER_ACTION_REQUIRED":
		return adapter.ChargeStatusPending
	case "APPROVED":
		return adapter.ChargeStatusApproved
	case "COMPLETED":
		return adapter.ChargeStatusCompleted
	case "VOIDED":
		return adapter.ChargeStatusVoided
	case "DECLINED":
		return adapter.ChargeStatusDeclined
	default:
		return adapter.ChargeStatusUnknown
	}
}

type paypalAPIError struct {
	status int
	issue  string
	msg    string
}

func (e *paypalAPIError) Error() string {
	return fmt.Sprintf("paypal error: status %d, issue %s: %s", e.status, e.issue, e.msg)
}

func (g *PayPalGateway) call(ctx context.Context, method, path string, payload, out interface{}) error {
	tok, err := g.token(ctx)
	if err != nil {
		return err
	}

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
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "application/json")

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
		var pe paypalOrderResponse
		_ = json.Unmarshal(raw, &pe)
		apiErr := &paypalAPIError{status: resp.StatusCode, msg: string(raw)}
		if len(pe.Details) > 0 {
			apiErr.issue = pe.Details[0].Issue
			apiErr.msg = pe.Details[0].Description
		}
		return apiErr
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w, body: %s", err, string(raw))
		}
	}
	return nil
}

// formatMinorUnits renders minor units as a decimal string ("1999" -> "19.99").
func formatMinorUnits(amount int64) string {
	return fmt.Sprintf("%d.%02d", amount/100, amount%100)
}

func parseMinorUnits(v string) int64 {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return int64(f*100 + 0.5)
}
