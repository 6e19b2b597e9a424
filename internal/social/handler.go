package social

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/joao-fontenele/bookstore-api/internal/apierr"
	"github.com/joao-fontenele/bookstore-api/internal/auth"
	"github.com/joao-fontenele/bookstore-api/internal/domain"
	"github.com/joao-fontenele/bookstore-api/internal/store"
)

type Store interface {
	CreateReview(ctx context.Context, review *domain.Review) error
	DeleteReview(ctx context.Context, id primitive.ObjectID, userID int64) (int64, error)
	ListReviews(ctx context.Context, bookID int64) ([]domain.Review, error)
	CreateComment(ctx context.Context, comment *domain.Comment) error
	ListComments(ctx context.Context, bookID int64) ([]domain.Comment, error)
	GetComment(ctx context.Context, id primitive.ObjectID) (*domain.Comment, error)
	ToggleFavorite(ctx context.Context, bookID, userID int64) (bool, error)
	CreateShare(ctx context.Context, share *domain.Share) error
	CreateReaction(ctx context.Context, reaction *domain.Reaction) error
	ListReactions(ctx context.Context, targetType, targetID string) ([]domain.Reaction, error)
	ListNotifications(ctx context.Context, userID int64) ([]domain.Notification, error)
	MarkNotificationRead(ctx context.Context, id primitive.ObjectID, userID int64) error
}

// Books resolves the relational side of social documents.
type Books interface {
	GetByID(ctx context.Context, id int64) (*domain.Book, error)
	UsernamesByID(ctx context.Context, ids []int64) (map[int64]string, error)
}

type StatsRefresher interface {
	Refresh(ctx context.Context, bookID int64)
}

type Handler struct {
	store  Store
	books  Books
	stats  StatsRefresher
	logger *slog.Logger
}

func NewHandler(store Store, books Books, stats StatsRefresher, logger *slog.Logger) *Handler {
	return &Handler{
		store:  store,
		books:  books,
		stats:  stats,
		logger: logger,
	}
}

var (
	errBookIDRequired = apierr.InvalidArgument("bookId is required")
	errRatingRange    = apierr.InvalidArgument("rating must be between 1 and 5")
	errTextRequired   = apierr.InvalidArgument("text is required")
	errChannel        = apierr.InvalidArgument("channel is required")
	errTargetType     = apierr.InvalidArgument("targetType must be book or comment")
	errTargetID       = apierr.InvalidArgument("targetId is required")
	errReaction       = apierr.InvalidArgument("reaction is required")
	errUnknownBook    = apierr.NotFound("book not found")
)

type createReviewRequest struct {
	BookID int64  `json:"bookId"`
	Rating int    `json:"rating"`
	Text   string `json:"text"`
}

func (h *Handler) HandleCreateReview(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.BookID <= 0 {
		h.writeFailure(w, "invalid review", errBookIDRequired)
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		h.writeFailure(w, "invalid review", errRatingRange)
		return
	}

	if !h.requireBook(r.Context(), w, req.BookID) {
		return
	}

	review := &domain.Review{
		BookID: req.BookID,
		UserID: user.UserID,
		Rating: req.Rating,
		Text:   strings.TrimSpace(req.Text),
	}
	if err := h.store.CreateReview(r.Context(), review); err != nil {
		h.writeFailure(w, "failed to create review", err, "book_id", req.BookID)
		return
	}

	h.stats.Refresh(r.Context(), req.BookID)

	h.logger.Info("review created", "review_id", review.ID.Hex(), "book_id", req.BookID, "user_id", user.UserID)
	h.writeJSON(w, http.StatusCreated, map[string]string{"id": review.ID.Hex()})
}

func (h *Handler) HandleDeleteReview(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := primitive.ObjectIDFromHex(r.PathValue("id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid review id")
		return
	}

	bookID, err := h.store.DeleteReview(r.Context(), id, user.UserID)
	if err != nil {
		h.writeFailure(w, "failed to delete review", err, "review_id", id.Hex())
		return
	}

	h.stats.Refresh(r.Context(), bookID)

	h.logger.Info("review deleted", "review_id", id.Hex(), "book_id", bookID, "user_id", user.UserID)
	h.writeJSON(w, http.StatusOK, map[string]string{"id": id.Hex()})
}

// HandleListReviews returns the reviews of a book, newest first, with the
// author's username.
func (h *Handler) HandleListReviews(w http.ResponseWriter, r *http.Request) {
	bookID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || bookID <= 0 {
		h.writeError(w, http.StatusBadRequest, "invalid book id")
		return
	}

	reviews, err := h.store.ListReviews(r.Context(), bookID)
	if err != nil {
		h.writeFailure(w, "failed to list reviews", err, "book_id", bookID)
		return
	}

	userIDs := make([]int64, len(reviews))
	for i, review := range reviews {
		userIDs[i] = review.UserID
	}
	names, err := h.usernames(r.Context(), userIDs)
	if err != nil {
		h.writeFailure(w, "failed to resolve review authors", err, "book_id", bookID)
		return
	}
	for i := range reviews {
		reviews[i].Username = names[reviews[i].UserID]
	}

	h.writeJSON(w, http.StatusOK, reviews)
}

type createCommentRequest struct {
	BookID int64  `json:"bookId"`
	Rating int    `json:"rating"`
	Text   string `json:"text"`
}

func (h *Handler) HandleCreateComment(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.BookID <= 0 {
		h.writeFailure(w, "invalid comment", errBookIDRequired)
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		h.writeFailure(w, "invalid comment", errRatingRange)
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		h.writeFailure(w, "invalid comment", errTextRequired)
		return
	}

	if !h.requireBook(r.Context(), w, req.BookID) {
		return
	}

	comment := &domain.Comment{
		BookID: req.BookID,
		UserID: user.UserID,
		Rating: req.Rating,
		Text:   req.Text,
	}
	if err := h.store.CreateComment(r.Context(), comment); err != nil {
		h.writeFailure(w, "failed to create comment", err, "book_id", req.BookID)
		return
	}

	h.logger.Info("comment created", "comment_id", comment.ID.Hex(), "book_id", req.BookID, "user_id", user.UserID)
	h.writeJSON(w, http.StatusCreated, map[string]string{"id": comment.ID.Hex()})
}

func (h *Handler) HandleListComments(w http.ResponseWriter, r *http.Request) {
	bookID, err := strconv.ParseInt(r.PathValue("bookId"), 10, 64)
	if err != nil || bookID <= 0 {
		h.writeError(w, http.StatusBadRequest, "invalid book id")
		return
	}

	comments, err := h.store.ListComments(r.Context(), bookID)
	if err != nil {
		h.writeFailure(w, "failed to list comments", err, "book_id", bookID)
		return
	}

	userIDs := make([]int64, len(comments))
	for i, comment := range comments {
		userIDs[i] = comment.UserID
	}
	names, err := h.usernames(r.Context(), userIDs)
	if err != nil {
		h.writeFailure(w, "failed to resolve comment authors", err, "book_id", bookID)
		return
	}
	for i := range comments {
		comments[i].Username = names[comments[i].UserID]
	}

	h.writeJSON(w, http.StatusOK, comments)
}

type bookRequest struct {
	BookID int64 `json:"bookId"`
}

func (h *Handler) HandleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.BookID <= 0 {
		h.writeFailure(w, "invalid favorite", errBookIDRequired)
		return
	}

	if !h.requireBook(r.Context(), w, req.BookID) {
		return
	}

	favorited, err := h.store.ToggleFavorite(r.Context(), req.BookID, user.UserID)
	if err != nil {
		h.writeFailure(w, "failed to toggle favorite", err, "book_id", req.BookID)
		return
	}

	h.stats.Refresh(r.Context(), req.BookID)

	h.logger.Info("favorite toggled", "book_id", req.BookID, "user_id", user.UserID, "favorited", favorited)
	h.writeJSON(w, http.StatusOK, map[string]bool{"favorited": favorited})
}

type createShareRequest struct {
	BookID  int64  `json:"bookId"`
	Channel string `json:"channel"`
}

func (h *Handler) HandleCreateShare(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.BookID <= 0 {
		h.writeFailure(w, "invalid share", errBookIDRequired)
		return
	}
	req.Channel = strings.TrimSpace(req.Channel)
	if req.Channel == "" {
		h.writeFailure(w, "invalid share", errChannel)
		return
	}

	if !h.requireBook(r.Context(), w, req.BookID) {
		return
	}

	share := &domain.Share{BookID: req.BookID, UserID: user.UserID, Channel: req.Channel}
	if err := h.store.CreateShare(r.Context(), share); err != nil {
		h.writeFailure(w, "failed to create share", err, "book_id", req.BookID)
		return
	}

	h.stats.Refresh(r.Context(), req.BookID)

	h.logger.Info("share created", "book_id", req.BookID, "user_id", user.UserID, "channel", req.Channel)
	h.writeJSON(w, http.StatusCreated, map[string]string{"id": share.ID.Hex()})
}

type createReactionRequest struct {
	TargetType string `json:"targetType"`
	TargetID   string `json:"targetId"`
	Reaction   string `json:"reaction"`
}

func (h *Handler) HandleCreateReaction(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createReactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validateTarget(req.TargetType, req.TargetID); err != nil {
		h.writeFailure(w, "invalid reaction", err)
		return
	}
	req.Reaction = strings.TrimSpace(req.Reaction)
	if req.Reaction == "" {
		h.writeFailure(w, "invalid reaction", errReaction)
		return
	}
	if !h.requireTarget(r.Context(), w, req.TargetType, req.TargetID) {
		return
	}

	reaction := &domain.Reaction{
		UserID:     user.UserID,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		Reaction:   req.Reaction,
	}
	if err := h.store.CreateReaction(r.Context(), reaction); err != nil {
		h.writeFailure(w, "failed to create reaction", err, "target_type", req.TargetType, "target_id", req.TargetID)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]string{"id": reaction.ID.Hex()})
}

type reactionsResponse struct {
	Counts map[string]int64  `json:"counts"`
	List   []domain.Reaction `json:"list"`
}

func (h *Handler) HandleListReactions(w http.ResponseWriter, r *http.Request) {
	targetType := r.URL.Query().Get("targetType")
	targetID := r.URL.Query().Get("targetId")
	if err := validateTarget(targetType, targetID); err != nil {
		h.writeFailure(w, "invalid reaction query", err)
		return
	}

	reactions, err := h.store.ListReactions(r.Context(), targetType, targetID)
	if err != nil {
		h.writeFailure(w, "failed to list reactions", err, "target_type", targetType, "target_id", targetID)
		return
	}

	counts := make(map[string]int64)
	for _, reaction := range reactions {
		counts[reaction.Reaction]++
	}

	h.writeJSON(w, http.StatusOK, reactionsResponse{Counts: counts, List: reactions})
}

func (h *Handler) HandleListNotifications(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	notifications, err := h.store.ListNotifications(r.Context(), user.UserID)
	if err != nil {
		h.writeFailure(w, "failed to list notifications", err, "user_id", user.UserID)
		return
	}

	h.writeJSON(w, http.StatusOK, notifications)
}

func (h *Handler) HandleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := primitive.ObjectIDFromHex(r.PathValue("id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid notification id")
		return
	}

	if err := h.store.MarkNotificationRead(r.Context(), id, user.UserID); err != nil {
		h.writeFailure(w, "failed to mark notification read", err, "notification_id", id.Hex())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"read": true})
}

func validateTarget(targetType, targetID string) error {
	if targetType != domain.ReactionTargetBook && targetType != domain.ReactionTargetComment {
		return errTargetType
	}
	if strings.TrimSpace(targetID) == "" {
		return errTargetID
	}
	return nil
}

// usernames resolves authors once per distinct user.
func (h *Handler) usernames(ctx context.Context, userIDs []int64) (map[int64]string, error) {
	unique := make([]int64, 0, len(userIDs))
	seen := make(map[int64]bool, len(userIDs))
	for _, id := range userIDs {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	return h.books.UsernamesByID(ctx, unique)
}

// requireTarget checks that the book or comment being reacted to exists.
func (h *Handler) requireTarget(ctx context.Context, w http.ResponseWriter, targetType, targetID string) bool {
	if targetType == domain.ReactionTargetBook {
		bookID, err := strconv.ParseInt(targetID, 10, 64)
		if err != nil || bookID <= 0 {
			h.writeFailure(w, "invalid reaction", errUnknownBook)
			return false
		}
		return h.requireBook(ctx, w, bookID)
	}

	id, err := primitive.ObjectIDFromHex(targetID)
	if err != nil {
		h.writeFailure(w, "invalid reaction", ErrCommentNotFound)
		return false
	}
	if _, err := h.store.GetComment(ctx, id); err != nil {
		h.writeFailure(w, "failed to load comment", err, "comment_id", targetID)
		return false
	}
	return true
}

// requireBook writes the error response itself and reports false when the
// book cannot be used.
func (h *Handler) requireBook(ctx context.Context, w http.ResponseWriter, bookID int64) bool {
	if _, err := h.books.GetByID(ctx, bookID); err != nil {
		h.writeFailure(w, "failed to load book", err, "book_id", bookID)
		return false
	}
	return true
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
