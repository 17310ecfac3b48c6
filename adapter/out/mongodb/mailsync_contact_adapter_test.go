package mongodb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestContactAdapter_RecordContacts(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("adds to set with upsert", func(mt *mtest.T) {
		adapter := NewContactAdapter(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))

		err := adapter.RecordContacts(context.Background(), "Ops@Example.com",
			[]string{"b@example.com", "B@example.com", "ops@example.com", ""})
		require.NoError(t, err)

		evt := mt.GetStartedEvent()
		require.NotNil(t, evt)
		update := evt.Command.Lookup("updates", "0")
		assert.Equal(t, "ops@example.com", update.Document().Lookup("q", "_id").StringValue())
		assert.True(t, update.Document().Lookup("upsert").Boolean())

		each, err := update.Document().Lookup("u", "$addToSet", "contacts", "$each").Array().Values()
		require.NoError(t, err)
		require.Len(t, each, 1)
		assert.Equal(t, "b@example.com", each[0].StringValue())
	})

	mt.Run("empty set only initializes the owner", func(mt *mtest.T) {
		adapter := NewContactAdapter(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		require.NoError(t, adapter.RecordContacts(context.Background(), "ops@example.com", nil))

		u := mt.GetStartedEvent().Command.Lookup("updates", "0", "u").Document()
		_, err := u.LookupErr("$addToSet")
		assert.Error(t, err)
		_, err = u.LookupErr("$setOnInsert", "contacts")
		assert.NoError(t, err)
	})

	mt.Run("invalid owner is rejected before the store", func(mt *mtest.T) {
		adapter := NewContactAdapter(mt.DB)

		err := adapter.RecordContacts(context.Background(), "not-an-address", []string{"b@example.com"})
		assert.Error(t, err)
		assert.Nil(t, mt.GetStartedEvent())
	})
}

func TestContactAdapter_GetContacts(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("found", func(mt *mtest.T) {
		adapter := NewContactAdapter(mt.DB)
		ns := mt.DB.Name() + "." + collectionContacts
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "ops@example.com"},
			{Key: "contacts", Value: bson.A{"a@example.com", "b@example.com"}},
			{Key: "createdAt", Value: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
		}))

		contact, err := adapter.GetContacts(context.Background(), "ops@example.com")
		require.NoError(t, err)
		require.NotNil(t, contact)
		assert.Equal(t, []string{"a@example.com", "b@example.com"}, contact.Contacts)
	})

	mt.Run("missing owner", func(mt *mtest.T) {
		adapter := NewContactAdapter(mt.DB)
		ns := mt.DB.Name() + "." + collectionContacts
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		contact, err := adapter.GetContacts(context.Background(), "ops@example.com")
		require.NoError(t, err)
		assert.Nil(t, contact)
	})
}
