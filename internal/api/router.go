package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mfeshop/checkout-bus/internal/bus"
	"github.com/mfeshop/checkout-bus/internal/checkout"
	"github.com/mfeshop/checkout-bus/internal/monitor"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(b *bus.Bus, controller *checkout.Controller, feed *monitor.Feed, hub *monitor.Hub) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// CORS for the fragment hosts
	r.Use(corsMiddleware)

	// Handlers
	cartHandler := NewCartHandler(b)
	checkoutHandler := NewCheckoutHandler(controller, b)
	eventsHandler := NewEventsHandler(feed)

	// WebSocket endpoint for the demo page's live monitor
	if hub != nil {
		r.Get("/ws", hub.HandleWebSocket)
	}

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandler())

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartHandler.Get)
			r.Put("/", cartHandler.Update)
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/", checkoutHandler.Submit)
			r.Post("/retry", checkoutHandler.Retry)
			r.Get("/status", checkoutHandler.Status)
			r.Get("/payment-result", checkoutHandler.PaymentResult)
		})

		r.Route("/events", func(r chi.Router) {
			r.Get("/", eventsHandler.List)
			r.Delete("/", eventsHandler.Clear)
		})

		r.Route("/demo", func(r chi.Router) {
			r.Post("/cart-update", eventsHandler.SimulateCart)
			r.Post("/payment-flow", eventsHandler.SimulatePayment)
		})
	})

	return r
}

// corsMiddleware adds CORS headers for the separately served fragments.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
