package api

import (
	"encoding/json"
	"net/http"

	"github.com/mfeshop/checkout-bus/internal/bus"
)

// CartHandler exposes the shared cart state over HTTP.
type CartHandler struct {
	bus *bus.Bus
}

func NewCartHandler(b *bus.Bus) *CartHandler {
	return &CartHandler{bus: b}
}

type updateCartRequest struct {
	Items []bus.CartItem `json:"items"`
}

type cartResponse struct {
	Items       []bus.CartItem  `json:"items"`
	ItemCount   int             `json:"itemCount"`
	TotalAmount float64         `json:"totalAmount"`
	Totals      bus.OrderTotals `json:"totals"`
}

func (h *CartHandler) Get(w http.ResponseWriter, r *http.Request) {
	items := h.bus.CartItems()
	respondJSON(w, http.StatusOK, cartResponse{
		Items:       items,
		ItemCount:   bus.ItemCount(items),
		TotalAmount: bus.TotalAmount(items),
		Totals:      bus.ComputeTotals(items),
	})
}

func (h *CartHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	for _, item := range req.Items {
		if item.Name == "" {
			respondError(w, http.StatusBadRequest, "every item needs a name")
			return
		}
		if item.Price < 0 {
			respondError(w, http.StatusBadRequest, "item price must not be negative")
			return
		}
		if item.Quantity < 1 {
			respondError(w, http.StatusBadRequest, "item quantity must be at least 1")
			return
		}
	}

	if err := h.bus.UpdateCart(req.Items); err != nil {
		respondError(w, http.StatusServiceUnavailable, "bus is shut down")
		return
	}

	items := h.bus.CartItems()
	respondJSON(w, http.StatusOK, cartResponse{
		Items:       items,
		ItemCount:   bus.ItemCount(items),
		TotalAmount: bus.TotalAmount(items),
		Totals:      bus.ComputeTotals(items),
	})
}
