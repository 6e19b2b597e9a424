package cart

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/joao-fontenele/bookstore-api/internal/apierr"
	"github.com/joao-fontenele/bookstore-api/internal/auth"
	"github.com/joao-fontenele/bookstore-api/internal/domain"
	"github.com/joao-fontenele/bookstore-api/internal/store"
)

type Store interface {
	FindOpenCart(ctx context.Context, userID int64) (int64, error)
	GetOrCreateOpenCart(ctx context.Context, userID int64) (int64, error)
	AddItem(ctx context.Context, cartID, bookID int64, quantity int) (domain.CartItem, bool, error)
	UpdateItemQuantity(ctx context.Context, cartID, itemID int64, quantity int) error
	RemoveItem(ctx context.Context, cartID, itemID int64) (bool, error)
	ListItems(ctx context.Context, userID int64) ([]domain.CartLine, error)
}

type Handler struct {
	carts  Store
	logger *slog.Logger
}

func NewHandler(carts Store, logger *slog.Logger) *Handler {
	return &Handler{
		carts:  carts,
		logger: logger,
	}
}

type addItemRequest struct {
	BookID   int64 `json:"bookId"`
	Quantity int   `json:"quantity"`
}

func (h *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.BookID <= 0 {
		h.writeError(w, http.StatusBadRequest, "bookId is required")
		return
	}
	if err := validQuantity(req.Quantity); err != nil {
		h.writeFailure(w, "failed to add cart item", err)
		return
	}

	cartID, err := h.carts.GetOrCreateOpenCart(r.Context(), user.UserID)
	if err != nil {
		h.writeFailure(w, "failed to resolve open cart", err, "user_id", user.UserID)
		return
	}

	item, created, err := h.carts.AddItem(r.Context(), cartID, req.BookID, req.Quantity)
	if errors.Is(err, ErrCartNotFound) {
		// A checkout closed the cart after it was resolved; the book goes
		// into the user's next cart.
		cartID, err = h.carts.GetOrCreateOpenCart(r.Context(), user.UserID)
		if err != nil {
			h.writeFailure(w, "failed to resolve open cart", err, "user_id", user.UserID)
			return
		}
		item, created, err = h.carts.AddItem(r.Context(), cartID, req.BookID, req.Quantity)
	}
	if err != nil {
		h.writeFailure(w, "failed to add cart item", err, "cart_id", cartID, "book_id", req.BookID)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}

	h.logger.Info("cart item added", "cart_id", cartID, "book_id", req.BookID, "quantity", item.Quantity, "created", created)
	h.writeJSON(w, status, item)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	lines, err := h.carts.ListItems(r.Context(), user.UserID)
	if err != nil {
		h.writeFailure(w, "failed to list cart items", err, "user_id", user.UserID)
		return
	}

	h.writeJSON(w, http.StatusOK, lines)
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	itemID, err := strconv.ParseInt(r.PathValue("itemId"), 10, 64)
	if err != nil || itemID <= 0 {
		h.writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	var req updateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cartID, err := h.openCart(r.Context(), user.UserID)
	if err != nil {
		h.writeFailure(w, "failed to resolve open cart", err, "user_id", user.UserID)
		return
	}

	if err := h.carts.UpdateItemQuantity(r.Context(), cartID, itemID, req.Quantity); err != nil {
		h.writeFailure(w, "failed to update cart item", itemError(err), "cart_id", cartID, "item_id", itemID)
		return
	}

	h.logger.Info("cart item updated", "cart_id", cartID, "item_id", itemID, "quantity", req.Quantity)
	h.writeJSON(w, http.StatusOK, map[string]any{"itemId": itemID, "quantity": req.Quantity})
}

func (h *Handler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	itemID, err := strconv.ParseInt(r.PathValue("itemId"), 10, 64)
	if err != nil || itemID <= 0 {
		h.writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	cartID, err := h.openCart(r.Context(), user.UserID)
	if err != nil {
		h.writeFailure(w, "failed to resolve open cart", err, "user_id", user.UserID)
		return
	}

	cancelled, err := h.carts.RemoveItem(r.Context(), cartID, itemID)
	if err != nil {
		h.writeFailure(w, "failed to remove cart item", itemError(err), "cart_id", cartID, "item_id", itemID)
		return
	}

	h.logger.Info("cart item removed", "cart_id", cartID, "item_id", itemID, "cart_cancelled", cancelled)
	h.writeJSON(w, http.StatusOK, map[string]bool{"cartCancelled": cancelled})
}

// openCart resolves the caller's open cart for item-level operations. Without
// one, no item can belong to the caller.
func (h *Handler) openCart(ctx context.Context, userID int64) (int64, error) {
	cartID, err := h.carts.FindOpenCart(ctx, userID)
	if apierr.Is(err, apierr.KindNotFound) {
		return 0, ErrItemNotFound
	}
	return cartID, err
}

// itemError reports a cart closed mid-request as a missing item: its lines
// no longer belong to an open cart.
func itemError(err error) error {
	if errors.Is(err, ErrCartNotFound) {
		return ErrItemNotFound
	}
	return err
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
