package catalog

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/joao-fontenele/bookstore-api/internal/apierr"
	"github.com/joao-fontenele/bookstore-api/internal/domain"
	"github.com/joao-fontenele/bookstore-api/internal/store"
)

type BookReader interface {
	GetByID(ctx context.Context, id int64) (*domain.Book, error)
}

type Handler struct {
	books  BookReader
	logger *slog.Logger
}

func NewHandler(books BookReader, logger *slog.Logger) *Handler {
	return &Handler{
		books:  books,
		logger: logger,
	}
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, "invalid book id")
		return
	}

	book, err := h.books.GetByID(r.Context(), id)
	if err != nil {
		err = store.Classify(err)
		if apierr.Status(err) >= http.StatusInternalServerError {
			h.logger.Error("failed to get book", "error", err, "book_id", id)
		}
		h.writeError(w, apierr.Status(err), apierr.Message(err))
		return
	}

	h.writeJSON(w, http.StatusOK, book)
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
