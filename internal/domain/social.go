package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Review struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	BookID    int64              `bson:"bookId" json:"bookId"`
	UserID    int64              `bson:"userId" json:"userId"`
	Username  string             `bson:"-" json:"username,omitempty"`
	Rating    int                `bson:"rating" json:"rating"`
	Text      string             `bson:"text" json:"text"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

type Comment struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	BookID       int64              `bson:"bookId" json:"bookId"`
	UserID       int64              `bson:"userId" json:"userId"`
	Username     string             `bson:"-" json:"username,omitempty"`
	Rating       int                `bson:"rating" json:"rating"`
	Text         string             `bson:"text" json:"text"`
	HelpfulVotes int                `bson:"helpfulVotes" json:"helpfulVotes"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt" json:"updatedAt"`
}

type Favorite struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	BookID    int64              `bson:"bookId" json:"bookId"`
	UserID    int64              `bson:"userId" json:"userId"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
}

type Share struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	BookID    int64              `bson:"bookId" json:"bookId"`
	UserID    int64              `bson:"userId" json:"userId"`
	Channel   string             `bson:"channel" json:"channel"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
}

const (
	ReactionTargetBook    = "book"
	ReactionTargetComment = "comment"
)

type Reaction struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID     int64              `bson:"userId" json:"userId"`
	TargetType string             `bson:"targetType" json:"targetType"`
	TargetID   string             `bson:"targetId" json:"targetId"`
	Reaction   string             `bson:"reaction" json:"reaction"`
	CreatedAt  time.Time          `bson:"createdAt" json:"createdAt"`
}

const NotificationOrderCompleted = "order_completed"

type Notification struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    int64              `bson:"userId" json:"userId"`
	Kind      string             `bson:"kind" json:"kind"`
	Message   string             `bson:"message" json:"message"`
	OrderID   int64              `bson:"orderId,omitempty" json:"orderId,omitempty"`
	Read      bool               `bson:"read" json:"read"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
}
