package web

import (
	"encoding/json"
	"errors"
	"html/template"
	"math"
	"net/http"
	"time"

	"promptmarket-payments/internal/domain"
	"promptmarket-payments/internal/domain/model"
	"promptmarket-payments/internal/infra/metrics"
	"promptmarket-payments/internal/infra/payment"
	"promptmarket-payments/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
)

type checkoutRequest struct {
	UserID          string `json:"user_id"`
	PlanID          string `json:"plan_id"`
	Provider        string `json:"provider"`
	DiscountPercent int    `json:"discount_percent"`
}

type checkoutResponse struct {
	TransactionID string `json:"transaction_id"`
	OrderID       string `json:"order_id,omitempty"`
	Status        string `json:"status"`
	ApproveURL    string `json:"approve_url,omitempty"`
}

func (s *Server) checkoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req checkoutRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		res, err := s.checkoutUC.Initiate(ctx, usecase.CheckoutRequest{
			UserID:          req.UserID,
			PlanID:          req.PlanID,
			Provider:        req.Provider,
			DiscountPercent: req.DiscountPercent,
			ReturnURL:       s.storeURL + "/api/v1/payment/callback?success=true",
			CancelURL:       s.storeURL + "/api/v1/payment/callback?success=false",
		})
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrNotFound):
				http.Error(w, "Plan not found", http.StatusNotFound)
			case errors.Is(err, domain.ErrInvalidArgument):
				http.Error(w, err.Error(), http.StatusBadRequest)
			default:
				http.Error(w, "Failed to initiate checkout", http.StatusInternalServerError)
			}
			return
		}

		resp := checkoutResponse{
			TransactionID: res.Transaction.ID,
			Status:        string(res.Transaction.Status),
			ApproveURL:    res.ApproveURL,
		}
		if res.Transaction.ProviderOrderID != nil {
			resp.OrderID = *res.Transaction.ProviderOrderID
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(resp)
	}
}

func (s *Server) callbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		start := time.Now()

		params := usecase.NormalizeCallbackParams(r.URL.Query())
		out := s.callbackUC.Run(ctx, params)
		metrics.ObserveVerify(string(out.Route), time.Since(start).Seconds())

		code := http.StatusOK
		if out.Route == usecase.RouteFailure {
			code = http.StatusBadRequest
		}
		s.renderResult(w, code, out)
	}
}

func (s *Server) verifyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		start := time.Now()

		q := r.URL.Query()
		res := s.verifyUC.Verify(ctx, usecase.VerifyQuery{
			UserID:    q.Get("user_id"),
			PlanID:    q.Get("plan_id"),
			OrderID:   q.Get("order_id"),
			PaymentID: q.Get("payment_id"),
		})

		result := "failure"
		if res.IsSuccessful {
			result = "success"
		}
		metrics.ObserveVerify(result, time.Since(start).Seconds())

		response := struct {
			Successful            bool   `json:"successful"`
			HasActiveSubscription bool   `json:"has_active_subscription"`
			NeedsAuthentication   bool   `json:"needs_authentication"`
			Error                 string `json:"error,omitempty"`
		}{
			Successful:            res.IsSuccessful,
			HasActiveSubscription: res.HasActiveSubscription,
			NeedsAuthentication:   res.NeedsAuthentication,
			Error:                 res.ErrorMessage,
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(response)
	}
}

// tapCharge is the subset of Tap's charge webhook payload we consume.
// Amounts arrive in major units.
type tapCharge struct {
	ID       string  `json:"id"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	Status   string  `json:"status"`
	Response struct {
		Message string `json:"message"`
	} `json:"response"`
	Metadata struct {
		UserID string `json:"udf1"`
		PlanID string `json:"udf2"`
	} `json:"metadata"`
}

func (s *Server) tapWebhookHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var charge tapCharge
		if err := json.NewDecoder(r.Body).Decode(&charge); err != nil {
			metrics.IncWebhookRejected("tap", "bad_json")
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		sig := r.Header.Get("hashstring")
		if !payment.VerifyTapWebhookSignature(s.tapWebhookSecret, charge.ID, charge.Amount, charge.Currency, charge.Status, sig) {
			metrics.IncWebhookRejected("tap", "bad_signature")
			s.log.Warn().Str("charge_id", charge.ID).Msg("tap webhook signature mismatch")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		res, err := s.webhookUC.Process(ctx, usecase.WebhookEvent{
			OrderID:   charge.ID,
			Provider:  "tap",
			Status:    payment.MapTapStatus(charge.Status),
			RawStatus: charge.Status,
			PaymentID: charge.ID,
			Amount:    int64(math.Round(charge.Amount * 100)),
			Currency:  charge.Currency,
			Reason:    charge.Response.Message,
			UserID:    charge.Metadata.UserID,
			PlanID:    charge.Metadata.PlanID,
		})
		if err != nil {
			// Non-2xx makes the provider retry later.
			http.Error(w, "Failed to process event", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(struct {
			Result string `json:"result"`
		}{Result: string(res)})
	}
}

func (s *Server) plansListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		plans, err := s.plans.ListActive(ctx, nil)
		if err != nil {
			http.Error(w, "Failed to list plans", http.StatusInternalServerError)
			return
		}

		response := struct {
			Data []*model.Plan `json:"data"`
		}{Data: plans}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(response)
	}
}

type planCreateRequest struct {
	Name         string `json:"name"`
	DurationDays int    `json:"duration_days"`
	Price        int64  `json:"price"`
	Currency     string `json:"currency"`
}

func (s *Server) planCreateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req planCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.Name == "" || req.Price < 0 || req.Currency == "" {
			http.Error(w, "name, price and currency are required", http.StatusBadRequest)
			return
		}

		plan := &model.Plan{
			ID:           ulid.Make().String(),
			Name:         req.Name,
			DurationDays: req.DurationDays,
			Price:        req.Price,
			Currency:     req.Currency,
			Active:       true,
			CreatedAt:    time.Now(),
		}
		if err := s.plans.Save(ctx, nil, plan); err != nil {
			http.Error(w, "Failed to create plan", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(plan)
	}
}

func (s *Server) recoverHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		summary, err := s.sweeperUC.Sweep(ctx)
		if err != nil {
			metrics.IncSweepRun("manual", "error")
			http.Error(w, "Sweep failed", http.StatusInternalServerError)
			return
		}
		metrics.IncSweepRun("manual", "ok")

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(summary)
	}
}

func (s *Server) loginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil {
			http.Error(w, "Sessions are not configured", http.StatusServiceUnavailable)
			return
		}
		token, err := s.auth.Mint(w)
		if err != nil {
			s.log.Error().Err(err).Msg("minting operator session failed")
			http.Error(w, "Failed to create session", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(struct {
			Token string `json:"token"`
		}{Token: token})
	}
}

func (s *Server) logoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if s.auth != nil {
			s.auth.Clear(w)
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) transactionGetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id := chi.URLParam(r, "id")
		if id == "" {
			http.Error(w, "Transaction ID is required", http.StatusBadRequest)
			return
		}

		t, err := s.transactions.FindByID(ctx, nil, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				http.NotFound(w, r)
				return
			}
			http.Error(w, "Failed to get transaction", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(t)
	}
}

var resultPage = template.Must(template.New("result").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8" />
<meta name="viewport" content="width=device-width,initial-scale=1" />
<title>Payment {{.Title}}</title>
<style>
body{font-family:system-ui,Arial,sans-serif;margin:2rem;}
.card{max-width:560px;border:1px solid #ddd;border-radius:12px;padding:24px;}
.ok{color:#057a55} .fail{color:#b00020} .wait{color:#92610a}
.btn{display:inline-block;margin-top:16px;padding:10px 16px;border-radius:8px;border:1px solid #888;text-decoration:none}
.small{font-size:12px;color:#666}
</style>
</head>
<body>
<div class="card">
  <h2 class="{{.Class}}">{{.Heading}}</h2>
  <p>{{.Msg}}</p>
  {{if .StoreURL}}<a class="btn" href="{{.StoreURL}}">Back to store</a>{{end}}
</div>
</body>
</html>`))

func (s *Server) renderResult(w http.ResponseWriter, code int, out usecase.CallbackOutcome) {
	data := struct {
		Title, Class, Heading, Msg, StoreURL string
	}{StoreURL: s.storeURL}

	switch out.Route {
	case usecase.RouteSuccess:
		data.Title = "Success"
		data.Class = "ok"
		data.Heading = "✅ Payment Successful"
		data.Msg = "Your payment was verified and your subscription is active."
	case usecase.RouteProcessing:
		data.Title = "Processing"
		data.Class = "wait"
		data.Heading = "⏳ Payment Processing"
		data.Msg = "We could not confirm your payment yet. It may still complete; check your subscriptions in a few minutes."
	default:
		data.Title = "Result"
		data.Class = "fail"
		data.Heading = "⚠️ Payment Not Completed"
		data.Msg = "The payment was not completed."
		if out.Reason != "" {
			data.Msg = "The payment was not completed: " + out.Reason
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	_ = resultPage.Execute(w, data)
}
