package mongodb

import (
	"context"
	"testing"
	"time"

	"mailsync_server/core/domain"
	"mailsync_server/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestEmailAdapter_Upsert(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("replaces by provider id with upsert", func(mt *mtest.T) {
		adapter := NewEmailAdapter(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 0},
		))

		err := adapter.Upsert(context.Background(), &domain.Message{
			ID:         "id1",
			Subject:    "hello",
			ReceivedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
			Categories: []string{},
		})
		require.NoError(t, err)

		evt := mt.GetStartedEvent()
		require.NotNil(t, evt)
		assert.Equal(t, "update", evt.CommandName)
		assert.Equal(t, collectionEmails, evt.Command.Lookup("update").StringValue())
		assert.Equal(t, "id1", evt.Command.Lookup("updates", "0", "q", "_id").StringValue())
		assert.True(t, evt.Command.Lookup("updates", "0", "upsert").Boolean())
		assert.Equal(t, "hello", evt.Command.Lookup("updates", "0", "u", "subject").StringValue())
	})

	mt.Run("connectivity failure is a store error", func(mt *mtest.T) {
		adapter := NewEmailAdapter(mt.DB)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    2,
			Name:    "BadValue",
			Message: "boom",
		}))

		err := adapter.Upsert(context.Background(), &domain.Message{ID: "id1"})
		require.Error(t, err)
		assert.True(t, apperr.IsCode(err, apperr.CodeStoreError))
	})
}

func TestEmailAdapter_ListRecent(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("sorts by received time and decodes", func(mt *mtest.T) {
		adapter := NewEmailAdapter(mt.DB)
		ns := mt.DB.Name() + "." + collectionEmails
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{
				{Key: "_id", Value: "id2"},
				{Key: "subject", Value: "newer"},
				{Key: "receivedDateTime", Value: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)},
			},
			bson.D{
				{Key: "_id", Value: "id1"},
				{Key: "subject", Value: "older"},
				{Key: "receivedDateTime", Value: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
			},
		))

		msgs, err := adapter.ListRecent(context.Background(), 5)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, "id2", msgs[0].ID)
		assert.Equal(t, "older", msgs[1].Subject)

		evt := mt.GetStartedEvent()
		require.NotNil(t, evt)
		assert.Equal(t, int32(-1), evt.Command.Lookup("sort", "receivedDateTime").Int32())
		assert.Equal(t, int64(5), evt.Command.Lookup("limit").Int64())
	})

	mt.Run("limit is clamped", func(mt *mtest.T) {
		adapter := NewEmailAdapter(mt.DB)
		ns := mt.DB.Name() + "." + collectionEmails
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch),
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch),
		)

		_, err := adapter.ListRecent(context.Background(), 0)
		require.NoError(t, err)
		assert.Equal(t, int64(defaultRecentLimit), mt.GetStartedEvent().Command.Lookup("limit").Int64())

		_, err = adapter.ListRecent(context.Background(), 1000)
		require.NoError(t, err)
		assert.Equal(t, int64(maxRecentLimit), mt.GetStartedEvent().Command.Lookup("limit").Int64())
	})
}

func TestEmailAdapter_RecordSent(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("fills id, time and status", func(mt *mtest.T) {
		adapter := NewEmailAdapter(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		record := &domain.SentRecord{Subject: "hi", ToRecipients: []string{"bob@example.com"}}
		require.NoError(t, adapter.RecordSent(context.Background(), record))

		assert.NotEmpty(t, record.ID)
		assert.False(t, record.SentAt.IsZero())
		assert.Equal(t, domain.SentStatus, record.Status)

		evt := mt.GetStartedEvent()
		require.NotNil(t, evt)
		assert.Equal(t, collectionSentEmails, evt.Command.Lookup("insert").StringValue())
	})
}
