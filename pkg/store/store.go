// Package store wraps the document store client behind the handful of
// operations the domain packages need: find by id/field, insert, partial
// update ($set), delete. Absence is reported as errs.ErrNotFound so callers
// never see driver sentinels.
package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/astrolabs/astroevents/pkg/errs"
)

// Collection names. The layout is shared by all services.
const (
	CollectionAstronauts    = "astronauts"
	CollectionMissions      = "missions"
	CollectionCrew          = "crew"
	CollectionRefreshTokens = "refresh_tokens"
)

// Client is a thin handle over one Mongo database.
type Client struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials the store and pings the primary so a dead store fails the
// process at startup rather than on first use.
func Connect(ctx context.Context, uri, database string) (*Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to store: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("ping store: %w", err)
	}
	return &Client{client: client, db: client.Database(database)}, nil
}

// Close disconnects the underlying client.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// FindOneByID decodes the document with the given primary key into out.
func (c *Client) FindOneByID(ctx context.Context, collection, id string, out any) error {
	return c.findOne(ctx, collection, bson.M{"_id": id}, out)
}

// FindOneByField decodes the first document whose field matches value.
func (c *Client) FindOneByField(ctx context.Context, collection, field, value string, out any) error {
	return c.findOne(ctx, collection, bson.M{field: value}, out)
}

// FindOneByTwoFields decodes the first document matching both fields.
func (c *Client) FindOneByTwoFields(ctx context.Context, collection, field1, value1, field2, value2 string, out any) error {
	return c.findOne(ctx, collection, bson.M{field1: value1, field2: value2}, out)
}

func (c *Client) findOne(ctx context.Context, collection string, filter bson.M, out any) error {
	err := c.db.Collection(collection).FindOne(ctx, filter).Decode(out)
	if err == mongo.ErrNoDocuments {
		return errs.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("find in %s: %w", collection, err)
	}
	return nil
}

// FindAllByField decodes every document whose field matches value into out,
// which must be a pointer to a slice.
func (c *Client) FindAllByField(ctx context.Context, collection, field, value string, out any) error {
	cursor, err := c.db.Collection(collection).Find(ctx, bson.M{field: value})
	if err != nil {
		return fmt.Errorf("find all in %s: %w", collection, err)
	}
	if err := cursor.All(ctx, out); err != nil {
		return fmt.Errorf("decode results from %s: %w", collection, err)
	}
	return nil
}

// InsertOne stores a new document.
func (c *Client) InsertOne(ctx context.Context, collection string, document any) error {
	if _, err := c.db.Collection(collection).InsertOne(ctx, document); err != nil {
		return fmt.Errorf("insert into %s: %w", collection, err)
	}
	return nil
}

// UpdateOneByID applies document as a $set patch to the row with the given
// primary key. Fields left unset in document (omitempty) stay untouched.
// Returns errs.ErrNotFound when no row matched; it never upserts.
func (c *Client) UpdateOneByID(ctx context.Context, collection, id string, document any) error {
	res, err := c.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": document})
	if err != nil {
		return fmt.Errorf("update in %s: %w", collection, err)
	}
	if res.MatchedCount == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// DeleteOneByID removes the row with the given primary key. Deleting an
// absent row is a no-op.
func (c *Client) DeleteOneByID(ctx context.Context, collection, id string) error {
	if _, err := c.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("delete from %s: %w", collection, err)
	}
	return nil
}
