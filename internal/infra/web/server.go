package web

import (
	"net/http"
	"strings"

	"promptmarket-payments/internal/domain/ports/repository"
	"promptmarket-payments/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type Server struct {
	checkoutUC usecase.CheckoutUseCase
	callbackUC usecase.CallbackUseCase
	webhookUC  usecase.WebhookUseCase
	verifyUC   usecase.VerifyUseCase
	sweeperUC  usecase.SweeperUseCase

	transactions repository.TransactionRepository
	plans        repository.PlanRepository

	apiKey           string
	auth             *AuthManager
	tapWebhookSecret string
	storeURL         string
	log              *zerolog.Logger
}

func NewServer(
	checkoutUC usecase.CheckoutUseCase,
	callbackUC usecase.CallbackUseCase,
	webhookUC usecase.WebhookUseCase,
	verifyUC usecase.VerifyUseCase,
	sweeperUC usecase.SweeperUseCase,
	transactions repository.TransactionRepository,
	plans repository.PlanRepository,
	apiKey string,
	auth *AuthManager,
	tapWebhookSecret string,
	storeURL string,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		checkoutUC:       checkoutUC,
		callbackUC:       callbackUC,
		webhookUC:        webhookUC,
		verifyUC:         verifyUC,
		sweeperUC:        sweeperUC,
		transactions:     transactions,
		plans:            plans,
		apiKey:           apiKey,
		auth:             auth,
		tapWebhookSecret: tapWebhookSecret,
		storeURL:         storeURL,
		log:              logger,
	}
}

// RegisterRoutes sets up the public payment surface and the operator API.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/checkout", s.checkoutHandler())
		r.Get("/payment/callback", s.callbackHandler())
		r.Get("/verify", s.verifyHandler())
		r.Post("/webhooks/tap", s.tapWebhookHandler())
		r.Get("/plans", s.plansListHandler())

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			// Login trades the API key for a session cookie, so the operator
			// console only has to present the key once.
			r.Post("/admin/login", s.loginHandler())
			r.Post("/admin/logout", s.logoutHandler())
			r.Post("/admin/recover", s.recoverHandler())
			r.Get("/admin/transactions/{id}", s.transactionGetHandler())
			r.Post("/admin/plans", s.planCreateHandler())
		})
	})
}

// authMiddleware accepts either the static operator API key or a session JWT
// minted by AuthManager.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			s.log.Error().Msg("operator API key is not configured")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		if hdr := r.Header.Get("Authorization"); hdr != "" {
			parts := strings.Split(hdr, " ")
			if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" && parts[1] == s.apiKey {
				next.ServeHTTP(w, r)
				return
			}
		}

		if s.auth != nil {
			if _, err := s.auth.ParseFromRequest(r); err == nil {
				next.ServeHTTP(w, r)
				return
			}
		}

		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	})
}
