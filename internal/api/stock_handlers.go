package api

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/example/card-shop/internal/domain/order"
	"github.com/example/card-shop/internal/domain/stockadjust"
	"github.com/example/card-shop/internal/infrastructure/store"
)

// AdminHandlers carries the operator-facing endpoints: stock batches and
// order status updates. The router mounts them behind the admin role check.
type AdminHandlers struct {
	store  store.Store
	stocks *stockadjust.Service
	orders *order.Service
}

func NewAdminHandlers(st store.Store, stocks *stockadjust.Service, orders *order.Service) *AdminHandlers {
	return &AdminHandlers{store: st, stocks: stocks, orders: orders}
}

// SaveStockBatch accepts the manage-stocks form: parallel arrays of product
// IDs, conditions and quantities, plus per-line costs (stock-in) or reasons
// (stock-out). On success it redirects back to the batch listing with the
// generated reference.
func (h *AdminHandlers) SaveStockBatch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondJSONError(w, "Invalid form", http.StatusBadRequest)
		return
	}

	orderType := r.PostForm.Get("order_type")
	if orderType != store.BatchStockIn && orderType != store.BatchStockOut {
		respondJSONError(w, "order_type must be stock_in or stock_out", http.StatusBadRequest)
		return
	}
	reference := r.PostForm.Get("reference")
	notes := r.PostForm.Get("notes")

	productIDs := r.PostForm["product_ids[]"]
	conditions := r.PostForm["conditions[]"]
	quantities := r.PostForm["quantities[]"]
	if len(productIDs) == 0 || len(conditions) != len(productIDs) || len(quantities) != len(productIDs) {
		respondJSONError(w, "Mismatched batch line fields", http.StatusBadRequest)
		return
	}

	costs := r.PostForm["costs[]"]
	reasons := r.PostForm["reasons[]"]

	lines := make([]stockadjust.Line, 0, len(productIDs))
	for i, productID := range productIDs {
		quantity, err := strconv.Atoi(quantities[i])
		if err != nil {
			respondJSONError(w, "Invalid quantity", http.StatusBadRequest)
			return
		}
		line := stockadjust.Line{
			ProductID: productID,
			Condition: store.Condition(conditions[i]),
			Quantity:  quantity,
		}
		if orderType == store.BatchStockIn {
			if i < len(costs) {
				cost, err := parseCents(costs[i])
				if err != nil {
					respondJSONError(w, "Invalid cost", http.StatusBadRequest)
					return
				}
				line.CostPerItem = cost
			}
		} else {
			line.Reason = "other"
			if i < len(reasons) {
				line.Reason = reasons[i]
			}
		}
		lines = append(lines, line)
	}

	var batch *store.StockBatch
	var err error
	if orderType == store.BatchStockIn {
		batch, err = h.stocks.ApplyStockIn(r.Context(), reference, notes, lines)
	} else {
		batch, err = h.stocks.ApplyStockOut(r.Context(), reference, notes, lines)
	}
	if err != nil {
		respondDomainError(w, err)
		return
	}

	target := "/admin/manage-stocks/stock-in"
	if orderType == store.BatchStockOut {
		target = "/admin/manage-stocks/stock-out"
	}
	http.Redirect(w, r, target+"?ref="+batch.Reference, http.StatusSeeOther)
}

func (h *AdminHandlers) ListStockIn(w http.ResponseWriter, r *http.Request) {
	h.listBatches(w, r, store.BatchStockIn)
}

func (h *AdminHandlers) ListStockOut(w http.ResponseWriter, r *http.Request) {
	h.listBatches(w, r, store.BatchStockOut)
}

func (h *AdminHandlers) listBatches(w http.ResponseWriter, r *http.Request, kind string) {
	batches, err := h.store.ListStockBatches(r.Context(), kind)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"orders": batches})
}

func (h *AdminHandlers) GetStockBatch(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/admin/manage-stocks/orders/")
	batch, err := h.store.GetStockBatch(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, batch)
}

func (h *AdminHandlers) GetAllOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.All(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

// UpdateOrderStatus moves an order along its lifecycle.
func (h *AdminHandlers) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/admin/orders/")
	id = strings.TrimSuffix(id, "/status")

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.orders.UpdateStatus(r.Context(), id, store.OrderStatus(req.Status)); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

// parseCents converts a decimal money string ("2.50") to integer cents.
func parseCents(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0, strconv.ErrSyntax
	}
	return int(math.Round(f * 100)), nil
}
