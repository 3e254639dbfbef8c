package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/example/card-shop/internal/api/middleware"
	"github.com/example/card-shop/internal/domain/cart"
	"github.com/example/card-shop/internal/domain/checkout"
	"github.com/example/card-shop/internal/domain/ledger"
	"github.com/example/card-shop/internal/domain/order"
	"github.com/example/card-shop/internal/domain/stockadjust"
	"github.com/example/card-shop/internal/infrastructure/store"
)

type Handlers struct {
	store     store.Store
	carts     *cart.Service
	checkouts *checkout.Service
	orders    *order.Service
}

func NewHandlers(st store.Store, carts *cart.Service, checkouts *checkout.Service, orders *order.Service) *Handlers {
	return &Handlers{
		store:     st,
		carts:     carts,
		checkouts: checkouts,
		orders:    orders,
	}
}

// Product Handlers

func (h *Handlers) GetProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	if perPage < 1 || perPage > 100 {
		perPage = 24
	}

	filter := store.ProductFilter{
		Search:  q.Get("q"),
		SetCode: q.Get("set"),
		Offset:  (page - 1) * perPage,
		Limit:   perPage,
	}
	products, total, err := h.store.ListProducts(r.Context(), filter)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	pages := (total + perPage - 1) / perPage
	respondJSON(w, http.StatusOK, map[string]any{
		"products":     products,
		"total":        total,
		"pages":        pages,
		"current_page": page,
	})
}

func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/api/products/")
	product, err := h.store.GetProduct(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondJSONError(w, "Product not found", http.StatusNotFound)
		return
	}
	if err != nil {
		respondDomainError(w, err)
		return
	}

	stocks, err := h.store.StockLinesForProduct(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"product": product,
		"stocks":  stocks,
	})
}

// Cart Handlers

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	summary, err := h.carts.Items(r.Context(), userID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (h *Handlers) AddToCart(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req struct {
		ProductID string `json:"product_id"`
		StockID   string `json:"stock_id"`
		Quantity  int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	if _, err := h.carts.AddItem(r.Context(), userID, req.ProductID, req.StockID, req.Quantity); err != nil {
		respondDomainError(w, err)
		return
	}

	count, err := h.carts.Count(r.Context(), userID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    "Added to cart",
		"cart_count": count,
	})
}

func (h *Handlers) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	itemID := extractPathParam(r.URL.Path, "/api/cart/")

	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.carts.UpdateItem(r.Context(), userID, itemID, req.Quantity); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handlers) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	itemID := extractPathParam(r.URL.Path, "/api/cart/")

	if err := h.carts.RemoveItem(r.Context(), userID, itemID); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Checkout Handler

func (h *Handlers) Checkout(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req struct {
		ShippingName    string `json:"shipping_name"`
		ShippingAddress string `json:"shipping_address"`
		PaymentMethod   string `json:"payment_method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = "cod"
	}

	result, err := h.checkouts.Checkout(r.Context(), userID, checkout.ShippingInfo{
		Name:          req.ShippingName,
		Address:       req.ShippingAddress,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"order_code": result.OrderCode,
		"total":      result.Total,
	})
}

// Order Handlers

func (h *Handlers) GetOrders(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	orders, err := h.orders.ForUser(r.Context(), userID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/api/orders/")

	o, err := h.orders.Get(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	// Users see only their own orders; admins see all.
	userID := middleware.GetUserID(r.Context())
	if o.UserID != userID && !isAdmin(r) {
		respondJSONError(w, "Forbidden", http.StatusForbidden)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondJSONError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondDomainError maps domain errors onto the HTTP error taxonomy.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, checkout.ErrEmptyCart):
		respondJSONError(w, "Cart is empty", http.StatusBadRequest)
	case errors.Is(err, ledger.ErrInsufficientStock):
		respondJSONError(w, "Not enough stock", http.StatusBadRequest)
	case errors.Is(err, cart.ErrNotOwner):
		respondJSONError(w, "Unauthorized", http.StatusForbidden)
	case errors.Is(err, ledger.ErrStockLineNotFound),
		errors.Is(err, cart.ErrItemNotFound),
		errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, store.ErrNotFound):
		respondJSONError(w, "Not found", http.StatusNotFound)
	case errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, cart.ErrProductMismatch),
		errors.Is(err, stockadjust.ErrInvalidQuantity),
		errors.Is(err, stockadjust.ErrNoLines),
		errors.Is(err, order.ErrInvalidStatus),
		errors.Is(err, order.ErrInvalidTransition):
		respondJSONError(w, err.Error(), http.StatusBadRequest)
	default:
		respondJSONError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func extractPathParam(path, prefix string) string {
	return strings.TrimPrefix(path, prefix)
}

// isAdmin checks if the current user has admin role
func isAdmin(r *http.Request) bool {
	claims, ok := middleware.GetUserFromContext(r.Context())
	return ok && claims.Role == "admin"
}
