// internal/router/stl.router.go
package router

import (
	"crypto/subtle"
	"net/http"
	"time"

	hrest "settlement-service/internal/handler/rest"
	"settlement-service/pkg/response"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

const (
	requestTimeout = 60 * time.Second
	// ProcessorCallTimeout governs routes that wait on a synchronous
	// processor call (charges, transfers, onboarding). It must outlive the
	// processor client's own budget or the call is cancelled mid-flight.
	ProcessorCallTimeout = 2 * time.Minute
)

func SetupRoutes(
	restHandler *hrest.SettlementRestHandler,
	webhookHandler *hrest.WebhookHandler,
	adminToken string,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Middleware. Timeouts are per route group below.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggerMiddleware(logger))
	r.Use(middleware.Recoverer)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Processor-Signature", "X-Admin-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/api/v1/settlement/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Routes that stay on-box.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))

			// Public ingress: the processor authenticates by signature, not
			// token.
			r.Post("/webhooks/processor", webhookHandler.HandleProcessorEvent)

			r.Post("/quote", restHandler.Quote)

			r.Post("/engagements", restHandler.CreateProject)
			r.Get("/engagements/{id}", restHandler.GetEngagement)
			r.Get("/engagements/{id}/ledger", restHandler.GetLedger)
			r.Post("/engagements/{id}/submit", restHandler.SubmitForReview)
			r.Post("/engagements/{id}/deliver", restHandler.Deliver)
			r.Post("/engagements/{id}/revision", restHandler.RequestRevision)
			r.Post("/engagements/{id}/pause", restHandler.Pause)
			r.Post("/engagements/{id}/resume", restHandler.Resume)
			r.Post("/engagements/{id}/cancel", restHandler.Cancel)
		})

		// Routes that issue synchronous charges, transfers, or onboarding
		// calls get headroom past the processor client's budget.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(ProcessorCallTimeout))

			r.Post("/engagements/{id}/accept", restHandler.AcceptApplication)
			r.Post("/engagements/{id}/approve", restHandler.ApproveDelivery)
			r.Post("/orders", restHandler.PlaceOrder)
			r.Post("/payout-accounts", restHandler.RegisterPayoutAccount)

			r.Route("/admin", func(r chi.Router) {
				r.Use(AdminOnly(adminToken))
				r.Post("/engagements/{id}/dispute", restHandler.OpenDispute)
				r.Post("/engagements/{id}/refund", restHandler.Refund)
				r.Post("/payouts/{id}/retry", restHandler.RetryPayout)
				r.Post("/workers/{worker_id}/payouts/flush", restHandler.FlushAccumulated)
				r.Post("/transfers/{id}/reverse", restHandler.ReverseTransfer)
			})
		})
	})

	return r
}

// AdminOnly gates operator endpoints behind a shared token.
func AdminOnly(token string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-Admin-Token")
			if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				response.Error(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LoggerMiddleware logs HTTP requests
func LoggerMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr))
		})
	}
}
