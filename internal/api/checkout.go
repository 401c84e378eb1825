package api

import (
	"encoding/json"
	"net/http"

	"github.com/mfeshop/checkout-bus/internal/bus"
	"github.com/mfeshop/checkout-bus/internal/checkout"
)

// CheckoutHandler drives the checkout controller from the HTTP surface.
type CheckoutHandler struct {
	controller *checkout.Controller
	bus        *bus.Bus
}

func NewCheckoutHandler(c *checkout.Controller, b *bus.Bus) *CheckoutHandler {
	return &CheckoutHandler{controller: c, bus: b}
}

type orderStatusResponse struct {
	State       string          `json:"state"`
	OrderNumber string          `json:"orderNumber,omitempty"`
	Error       string          `json:"error,omitempty"`
	Totals      bus.OrderTotals `json:"totals"`
}

func (h *CheckoutHandler) status() orderStatusResponse {
	return orderStatusResponse{
		State:       h.controller.State().String(),
		OrderNumber: h.controller.OrderNumber(),
		Error:       h.controller.LastError(),
		Totals:      bus.ComputeTotals(h.bus.CartItems()),
	}
}

// Submit accepts the order form and starts the payment flow. An incomplete
// form is a 422 with no effect on the flow at all.
func (h *CheckoutHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var form checkout.Form
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.controller.SetForm(form)
	if !h.controller.Submit() {
		if !form.Valid() {
			respondError(w, http.StatusUnprocessableEntity, "order form is incomplete")
			return
		}
		respondError(w, http.StatusConflict, "an order is already in progress")
		return
	}

	respondJSON(w, http.StatusAccepted, h.status())
}

// Retry resubmits after a failed payment attempt.
func (h *CheckoutHandler) Retry(w http.ResponseWriter, r *http.Request) {
	if !h.controller.Retry() {
		respondError(w, http.StatusConflict, "no failed order to retry")
		return
	}
	respondJSON(w, http.StatusAccepted, h.status())
}

// Status reports where the current order stands.
func (h *CheckoutHandler) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.status())
}

// PaymentResult exposes the latest payment outcome from the shared cell.
func (h *CheckoutHandler) PaymentResult(w http.ResponseWriter, r *http.Request) {
	result := h.bus.LatestPaymentResult()
	if result == nil {
		respondError(w, http.StatusNotFound, "no payment attempt yet")
		return
	}
	respondJSON(w, http.StatusOK, result)
}
