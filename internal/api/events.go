package api

import (
	"net/http"

	"github.com/mfeshop/checkout-bus/internal/monitor"
)

// EventsHandler serves the demo page's event feed and its simulation buttons.
type EventsHandler struct {
	feed *monitor.Feed
}

func NewEventsHandler(f *monitor.Feed) *EventsHandler {
	return &EventsHandler{feed: f}
}

func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.feed.Recent())
}

func (h *EventsHandler) Clear(w http.ResponseWriter, r *http.Request) {
	h.feed.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (h *EventsHandler) SimulateCart(w http.ResponseWriter, r *http.Request) {
	if err := h.feed.SimulateCartUpdate(); err != nil {
		respondError(w, http.StatusServiceUnavailable, "bus is shut down")
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "cart update emitted"})
}

func (h *EventsHandler) SimulatePayment(w http.ResponseWriter, r *http.Request) {
	if err := h.feed.SimulatePaymentFlow(); err != nil {
		respondError(w, http.StatusServiceUnavailable, "bus is shut down")
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "payment flow started"})
}
