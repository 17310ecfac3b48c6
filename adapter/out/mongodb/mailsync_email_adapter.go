package mongodb

import (
	"context"
	"time"

	"mailsync_server/core/domain"
	"mailsync_server/core/port/out"
	"mailsync_server/pkg/apperr"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// =============================================================================
// MongoDB Email Adapter
// =============================================================================

const (
	collectionEmails     = "emails"
	collectionSentEmails = "sent_emails"

	defaultRecentLimit = 10
	maxRecentLimit     = 100
)

// EmailAdapter implements out.EmailRepository using MongoDB.
// Messages are keyed by provider message ID, so repeated upserts are idempotent.
type EmailAdapter struct {
	emails *mongo.Collection
	sent   *mongo.Collection
}

func NewEmailAdapter(db *mongo.Database) *EmailAdapter {
	return &EmailAdapter{
		emails: db.Collection(collectionEmails),
		sent:   db.Collection(collectionSentEmails),
	}
}

// EnsureIndexes creates necessary indexes for the collections.
func (a *EmailAdapter) EnsureIndexes(ctx context.Context) error {
	_, err := a.emails.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "receivedDateTime", Value: -1}}},
		{Keys: bson.D{{Key: "conversationId", Value: 1}}},
	})
	if err != nil {
		return apperr.StoreError("create email indexes", err)
	}

	_, err = a.sent.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "sentDateTime", Value: -1}},
	})
	if err != nil {
		return apperr.StoreError("create sent email indexes", err)
	}
	return nil
}

// Upsert replaces the whole stored document. No field-level merge.
func (a *EmailAdapter) Upsert(ctx context.Context, msg *domain.Message) error {
	opts := options.Replace().SetUpsert(true)
	filter := bson.M{"_id": msg.ID}

	if _, err := a.emails.ReplaceOne(ctx, filter, msg, opts); err != nil {
		return apperr.StoreError("upsert email", err).WithDetail("id", msg.ID)
	}
	return nil
}

func (a *EmailAdapter) ListRecent(ctx context.Context, limit int) ([]*domain.Message, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "receivedDateTime", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := a.emails.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, apperr.StoreError("list emails", err)
	}
	defer cursor.Close(ctx)

	messages := make([]*domain.Message, 0, limit)
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, apperr.StoreError("decode emails", err)
	}
	return messages, nil
}

func (a *EmailAdapter) RecordSent(ctx context.Context, record *domain.SentRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.SentAt.IsZero() {
		record.SentAt = time.Now().UTC()
	}
	if record.Status == "" {
		record.Status = domain.SentStatus
	}

	if _, err := a.sent.InsertOne(ctx, record); err != nil {
		return apperr.StoreError("record sent email", err)
	}
	return nil
}

var _ out.EmailRepository = (*EmailAdapter)(nil)
