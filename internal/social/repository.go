// Package social stores reviews, favorites, shares, reactions and
// notifications in the document store.
package social

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/joao-fontenele/bookstore-api/internal/apierr"
	"github.com/joao-fontenele/bookstore-api/internal/domain"
)

const (
	ReviewsCollection       = "reviews"
	CommentsCollection      = "comments"
	FavoritesCollection     = "favorites"
	SharesCollection        = "shares"
	ReactionsCollection     = "reactions"
	NotificationsCollection = "notifications"
)

var (
	ErrReviewNotFound       = apierr.NotFound("review not found")
	ErrCommentNotFound      = apierr.NotFound("comment not found")
	ErrNotificationNotFound = apierr.NotFound("notification not found")
)

type Repository struct {
	reviews       *mongo.Collection
	comments      *mongo.Collection
	favorites     *mongo.Collection
	shares        *mongo.Collection
	reactions     *mongo.Collection
	notifications *mongo.Collection
	now           func() time.Time
}

func NewRepository(db *mongo.Database) *Repository {
	return &Repository{
		reviews:       db.Collection(ReviewsCollection),
		comments:      db.Collection(CommentsCollection),
		favorites:     db.Collection(FavoritesCollection),
		shares:        db.Collection(SharesCollection),
		reactions:     db.Collection(ReactionsCollection),
		notifications: db.Collection(NotificationsCollection),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// EnsureIndexes creates the indexes the queries below rely on. The unique
// favorites index is what makes a toggle race leave a single document.
func (r *Repository) EnsureIndexes(ctx context.Context) error {
	indexes := []struct {
		coll  *mongo.Collection
		model mongo.IndexModel
	}{
		{r.favorites, mongo.IndexModel{
			Keys:    bson.D{{Key: "bookId", Value: 1}, {Key: "userId", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("favorites_book_user"),
		}},
		{r.reviews, mongo.IndexModel{
			Keys:    bson.D{{Key: "bookId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("reviews_book_created"),
		}},
		{r.comments, mongo.IndexModel{
			Keys:    bson.D{{Key: "bookId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("comments_book_created"),
		}},
		{r.shares, mongo.IndexModel{
			Keys:    bson.D{{Key: "bookId", Value: 1}},
			Options: options.Index().SetName("shares_book"),
		}},
		{r.reactions, mongo.IndexModel{
			Keys:    bson.D{{Key: "targetType", Value: 1}, {Key: "targetId", Value: 1}},
			Options: options.Index().SetName("reactions_target"),
		}},
		{r.notifications, mongo.IndexModel{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("notifications_user_created"),
		}},
	}

	for _, idx := range indexes {
		if _, err := idx.coll.Indexes().CreateOne(ctx, idx.model); err != nil {
			return fmt.Errorf("create index on %s: %w", idx.coll.Name(), err)
		}
	}
	return nil
}

func (r *Repository) CreateReview(ctx context.Context, review *domain.Review) error {
	now := r.now()
	review.CreatedAt = now
	review.UpdatedAt = now

	result, err := r.reviews.InsertOne(ctx, review)
	if err != nil {
		return err
	}
	review.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

// DeleteReview removes a review written by userID and reports the book it
// belonged to.
func (r *Repository) DeleteReview(ctx context.Context, id primitive.ObjectID, userID int64) (int64, error) {
	var deleted domain.Review
	err := r.reviews.FindOneAndDelete(ctx, bson.M{"_id": id, "userId": userID}).Decode(&deleted)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, ErrReviewNotFound
		}
		return 0, err
	}
	return deleted.BookID, nil
}

func (r *Repository) ListReviews(ctx context.Context, bookID int64) ([]domain.Review, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := r.reviews.Find(ctx, bson.M{"bookId": bookID}, opts)
	if err != nil {
		return nil, err
	}

	reviews := []domain.Review{}
	if err := cursor.All(ctx, &reviews); err != nil {
		return nil, err
	}
	return reviews, nil
}

func (r *Repository) CreateComment(ctx context.Context, comment *domain.Comment) error {
	now := r.now()
	comment.CreatedAt = now
	comment.UpdatedAt = now

	result, err := r.comments.InsertOne(ctx, comment)
	if err != nil {
		return err
	}
	comment.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *Repository) ListComments(ctx context.Context, bookID int64) ([]domain.Comment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := r.comments.Find(ctx, bson.M{"bookId": bookID}, opts)
	if err != nil {
		return nil, err
	}

	comments := []domain.Comment{}
	if err := cursor.All(ctx, &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

// GetComment is used to check reaction targets.
func (r *Repository) GetComment(ctx context.Context, id primitive.ObjectID) (*domain.Comment, error) {
	var comment domain.Comment
	err := r.comments.FindOne(ctx, bson.M{"_id": id}).Decode(&comment)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCommentNotFound
		}
		return nil, err
	}
	return &comment, nil
}

// ReviewSummary returns the mean rating and number of reviews of a book.
// A book without reviews yields (0, 0).
func (r *Repository) ReviewSummary(ctx context.Context, bookID int64) (float64, int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "bookId", Value: bookID}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "avg", Value: bson.D{{Key: "$avg", Value: "$rating"}}},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}

	cursor, err := r.reviews.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, 0, err
	}

	var rows []struct {
		Avg   float64 `bson:"avg"`
		Count int64   `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return 0, 0, err
	}
	if len(rows) == 0 {
		return 0, 0, nil
	}
	return rows[0].Avg, rows[0].Count, nil
}

// ToggleFavorite flips the favorite state of (book, user) and reports the
// state after the call.
func (r *Repository) ToggleFavorite(ctx context.Context, bookID, userID int64) (bool, error) {
	filter := bson.M{"bookId": bookID, "userId": userID}

	result, err := r.favorites.DeleteOne(ctx, filter)
	if err != nil {
		return false, err
	}
	if result.DeletedCount > 0 {
		return false, nil
	}

	_, err = r.favorites.InsertOne(ctx, domain.Favorite{
		BookID:    bookID,
		UserID:    userID,
		CreatedAt: r.now(),
	})
	if err != nil {
		// A concurrent toggle inserted the same favorite first.
		if mongo.IsDuplicateKeyError(err) {
			return true, nil
		}
		return false, err
	}
	return true, nil
}

func (r *Repository) CountFavorites(ctx context.Context, bookID int64) (int64, error) {
	return r.favorites.CountDocuments(ctx, bson.M{"bookId": bookID})
}

func (r *Repository) CreateShare(ctx context.Context, share *domain.Share) error {
	share.CreatedAt = r.now()

	result, err := r.shares.InsertOne(ctx, share)
	if err != nil {
		return err
	}
	share.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *Repository) CountShares(ctx context.Context, bookID int64) (int64, error) {
	return r.shares.CountDocuments(ctx, bson.M{"bookId": bookID})
}

func (r *Repository) CreateReaction(ctx context.Context, reaction *domain.Reaction) error {
	reaction.CreatedAt = r.now()

	result, err := r.reactions.InsertOne(ctx, reaction)
	if err != nil {
		return err
	}
	reaction.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *Repository) ListReactions(ctx context.Context, targetType, targetID string) ([]domain.Reaction, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cursor, err := r.reactions.Find(ctx, bson.M{"targetType": targetType, "targetId": targetID}, opts)
	if err != nil {
		return nil, err
	}

	reactions := []domain.Reaction{}
	if err := cursor.All(ctx, &reactions); err != nil {
		return nil, err
	}
	return reactions, nil
}

func (r *Repository) CreateNotification(ctx context.Context, notification *domain.Notification) error {
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = r.now()
	}

	result, err := r.notifications.InsertOne(ctx, notification)
	if err != nil {
		return err
	}
	notification.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *Repository) ListNotifications(ctx context.Context, userID int64) ([]domain.Notification, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := r.notifications.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, err
	}

	notifications := []domain.Notification{}
	if err := cursor.All(ctx, &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

func (r *Repository) MarkNotificationRead(ctx context.Context, id primitive.ObjectID, userID int64) error {
	result, err := r.notifications.UpdateOne(ctx,
		bson.M{"_id": id, "userId": userID},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotificationNotFound
	}
	return nil
}
