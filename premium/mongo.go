package premium

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mau.fi/whatsmeow/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CollectionName = "premium"

// Mongo stores premium users in a MongoDB collection keyed by number.
type Mongo struct {
	coll    *mongo.Collection
	timeout time.Duration
}

func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{coll: db.Collection(CollectionName), timeout: 5 * time.Second}
}

func (s *Mongo) IsPremium(ctx context.Context, sender types.JID) (bool, error) {
	n := Normalize(sender)
	if n == "" {
		return false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var e Entry
	err := s.coll.FindOne(ctx, bson.M{"_id": n}).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("mongodb premium lookup failed: %w", err)
	}
	return e.Active(time.Now()), nil
}

func (s *Mongo) Add(ctx context.Context, e Entry) error {
	e.Number = NormalizeNumber(e.Number)
	if e.Number == "" {
		return fmt.Errorf("invalid premium number")
	}
	if e.AddedAt.IsZero() {
		e.AddedAt = time.Now()
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	opts := options.Replace().SetUpsert(true)
	if _, err := s.coll.ReplaceOne(ctx, bson.M{"_id": e.Number}, e, opts); err != nil {
		return fmt.Errorf("mongodb premium save failed: %w", err)
	}
	return nil
}

func (s *Mongo) Remove(ctx context.Context, number string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": NormalizeNumber(number)})
	if err != nil {
		return fmt.Errorf("mongodb premium delete failed: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Mongo) List(ctx context.Context) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cursor, err := s.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongodb premium query failed: %w", err)
	}
	defer cursor.Close(ctx)

	var out []Entry
	for cursor.Next(ctx) {
		var e Entry
		if err := cursor.Decode(&e); err != nil {
			return nil, fmt.Errorf("mongodb premium decode %v failed: %w", cursor.Current.Lookup("_id"), err)
		}
		out = append(out, e)
	}
	return out, cursor.Err()
}

// Import seeds an empty collection with entries, e.g. the YAML file on first
// start. Once the collection holds any user it is managed only through
// Add and Remove, so revocations and expiry changes survive restarts.
// Existing documents are never overwritten. It returns how many entries were
// inserted.
func (s *Mongo) Import(ctx context.Context, entries []Entry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	empty, err := s.empty(ctx)
	if err != nil {
		return 0, err
	}
	if !empty {
		return 0, nil
	}
	count := 0
	for _, e := range entries {
		e.Number = NormalizeNumber(e.Number)
		if e.Number == "" {
			continue
		}
		if e.AddedAt.IsZero() {
			e.AddedAt = time.Now()
		}
		inserted, err := s.insertMissing(ctx, e)
		if err != nil {
			return count, err
		}
		if inserted {
			count++
		}
	}
	return count, nil
}

func (s *Mongo) empty(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.coll.CountDocuments(ctx, bson.M{}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("mongodb premium count failed: %w", err)
	}
	return n == 0, nil
}

func (s *Mongo) insertMissing(ctx context.Context, e Entry) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	opts := options.Update().SetUpsert(true)
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": e.Number}, seedUpdate(e), opts)
	if err != nil {
		return false, fmt.Errorf("mongodb premium import of %s failed: %w", e.Number, err)
	}
	return res.UpsertedCount > 0, nil
}

// seedUpdate only sets fields when the upsert inserts a new document.
func seedUpdate(e Entry) bson.M {
	fields := bson.M{"added_at": e.AddedAt}
	if e.AddedBy != "" {
		fields["added_by"] = e.AddedBy
	}
	if !e.ExpiresAt.IsZero() {
		fields["expires_at"] = e.ExpiresAt
	}
	return bson.M{"$setOnInsert": fields}
}
