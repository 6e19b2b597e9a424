package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/joao-fontenele/bookstore-api/internal/apierr"
	"github.com/joao-fontenele/bookstore-api/internal/auth"
	"github.com/joao-fontenele/bookstore-api/internal/domain"
	"github.com/joao-fontenele/bookstore-api/internal/store"
)

type CheckoutService interface {
	Checkout(ctx context.Context, userID int64, req CheckoutRequest) (CheckoutResult, error)
}

type OrderReader interface {
	ListByUser(ctx context.Context, userID int64) ([]domain.OrderSummary, error)
	GetInvoiceData(ctx context.Context, orderID, userID int64) (*InvoiceData, error)
}

type Handler struct {
	checkout CheckoutService
	orders   OrderReader
	renderer Renderer
	logger   *slog.Logger
}

func NewHandler(checkout CheckoutService, orders OrderReader, renderer Renderer, logger *slog.Logger) *Handler {
	return &Handler{
		checkout: checkout,
		orders:   orders,
		renderer: renderer,
		logger:   logger,
	}
}

func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.checkout.Checkout(r.Context(), user.UserID, req)
	if err != nil {
		h.writeFailure(w, "checkout failed", err, "user_id", user.UserID)
		return
	}

	h.writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	orders, err := h.orders.ListByUser(r.Context(), user.UserID)
	if err != nil {
		h.writeFailure(w, "failed to list orders", err, "user_id", user.UserID)
		return
	}

	h.logger.Info("orders listed", "user_id", user.UserID, "count", len(orders))
	h.writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) HandleInvoice(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	orderID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || orderID <= 0 {
		h.writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	invoice, err := h.orders.GetInvoiceData(r.Context(), orderID, user.UserID)
	if err != nil {
		h.writeFailure(w, "failed to load invoice", err, "order_id", orderID)
		return
	}

	// Render into a buffer so a layout failure can still become a JSON error.
	var buf bytes.Buffer
	if err := h.renderer.Render(&buf, invoice); err != nil {
		h.writeFailure(w, "failed to render invoice", err, "order_id", orderID)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="invoice-%d.pdf"`, orderID))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Error("failed to write invoice", "error", err, "order_id", orderID)
	}
}

func (h *Handler) writeFailure(w http.ResponseWriter, msg string, err error, attrs ...any) {
	err = store.Classify(err)
	status := apierr.Status(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, append([]any{"error", err}, attrs...)...)
	}
	h.writeError(w, status, apierr.Message(err))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
