package mongodb

import (
	"context"
	"errors"
	"time"

	"mailsync_server/core/domain"
	"mailsync_server/core/port/out"
	"mailsync_server/pkg/apperr"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionContacts = "contacts"

// ContactAdapter implements out.ContactRepository using MongoDB.
type ContactAdapter struct {
	collection *mongo.Collection
	now        func() time.Time
}

func NewContactAdapter(db *mongo.Database) *ContactAdapter {
	return &ContactAdapter{
		collection: db.Collection(collectionContacts),
		now:        time.Now,
	}
}

// RecordContacts set-unions contacts into owner's address book, creating it
// on first sight. Existing contacts are never removed.
func (a *ContactAdapter) RecordContacts(ctx context.Context, owner string, contacts []string) error {
	ownerAddr, err := domain.NormalizeAddress(owner, false)
	if err != nil {
		return apperr.InvalidField("owner", err.Error())
	}
	set := domain.ContactSet(ownerAddr, contacts)
	now := a.now().UTC()

	update := bson.M{"$set": bson.M{"lastSeenAt": now}}
	if len(set) == 0 {
		update["$setOnInsert"] = bson.M{"contacts": []string{}, "createdAt": now}
	} else {
		update["$setOnInsert"] = bson.M{"createdAt": now}
		update["$addToSet"] = bson.M{"contacts": bson.M{"$each": set}}
	}

	opts := options.Update().SetUpsert(true)
	if _, err := a.collection.UpdateOne(ctx, bson.M{"_id": ownerAddr}, update, opts); err != nil {
		return apperr.StoreError("record contacts", err).WithDetail("owner", ownerAddr)
	}
	return nil
}

func (a *ContactAdapter) GetContacts(ctx context.Context, owner string) (*domain.Contact, error) {
	ownerAddr, err := domain.NormalizeAddress(owner, false)
	if err != nil {
		return nil, apperr.InvalidField("owner", err.Error())
	}

	var contact domain.Contact
	err = a.collection.FindOne(ctx, bson.M{"_id": ownerAddr}).Decode(&contact)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.StoreError("get contacts", err)
	}
	return &contact, nil
}

var _ out.ContactRepository = (*ContactAdapter)(nil)
