package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"

	"github.com/tazhibayda/feed-service/internal/log"
	"github.com/tazhibayda/feed-service/internal/provider"
)

func (s *Store) Get(ctx context.Context, caller *provider.Identity, collection, id string) (*provider.Document, error) {
	if err := provider.Authorize(caller, provider.OpRead, collection, id, nil); err != nil {
		return nil, err
	}
	var m bson.M
	err := s.DB.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, provider.Errf(provider.CodeNotFound, "%s/%s", collection, id)
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return toDocument(m), nil
}

// Set replaces the document, or with merge only overwrites the given fields.
// Either way a missing document is created.
func (s *Store) Set(ctx context.Context, caller *provider.Identity, collection, id string, data map[string]any, merge bool) error {
	if err := provider.Authorize(caller, provider.OpWrite, collection, id, data); err != nil {
		return err
	}
	sp, ctx := tracer.StartSpanFromContext(ctx, "mongo."+collection+".set",
		tracer.Tag("merge", merge),
	)
	defer sp.Finish()

	col := s.DB.Collection(collection)
	var err error
	if merge {
		_, err = col.UpdateByID(ctx, id, bson.M{"$set": bson.M(data)}, options.Update().SetUpsert(true))
	} else {
		_, err = col.ReplaceOne(ctx, bson.M{"_id": id}, bson.M(data), options.Replace().SetUpsert(true))
	}
	if err != nil {
		sp.SetTag("error", err)
		return unavailable(err)
	}
	s.changed(ctx, collection)
	return nil
}

func (s *Store) Add(ctx context.Context, caller *provider.Identity, collection string, data map[string]any) (string, error) {
	if err := provider.Authorize(caller, provider.OpWrite, collection, "", data); err != nil {
		return "", err
	}
	sp, ctx := tracer.StartSpanFromContext(ctx, "mongo."+collection+".insert")
	defer sp.Finish()

	doc := bson.M{"_id": uuid.NewString()}
	for k, v := range data {
		doc[k] = v
	}
	if _, err := s.DB.Collection(collection).InsertOne(ctx, doc); err != nil {
		sp.SetTag("error", err)
		return "", unavailable(err)
	}
	s.changed(ctx, collection)
	return doc["_id"].(string), nil
}

func (s *Store) Query(ctx context.Context, caller *provider.Identity, q provider.Query) ([]provider.Document, error) {
	if err := provider.Authorize(caller, provider.OpRead, q.Collection, "", nil); err != nil {
		return nil, err
	}
	return s.find(ctx, q)
}

func (s *Store) find(ctx context.Context, q provider.Query) ([]provider.Document, error) {
	filter := bson.M{}
	for _, f := range q.Filters {
		filter[f.Field] = f.Value
	}
	opts := options.Find()
	if q.OrderBy != "" {
		dir := 1
		if q.Descending {
			dir = -1
		}
		// _id breaks ties so equal timestamps keep a stable order
		opts.SetSort(bson.D{{Key: q.OrderBy, Value: dir}, {Key: "_id", Value: dir}})
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cur, err := s.DB.Collection(q.Collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, unavailable(err)
	}
	defer cur.Close(ctx)

	out := make([]provider.Document, 0)
	for cur.Next(ctx) {
		var m bson.M
		if err := cur.Decode(&m); err != nil {
			return nil, unavailable(err)
		}
		out = append(out, *toDocument(m))
	}
	return out, unavailable(cur.Err())
}

// changed wakes live queries on collection. A lost notification only delays
// listeners until the next write, so failures are logged and swallowed.
func (s *Store) changed(ctx context.Context, collection string) {
	if err := s.notifier.Publish(ctx, collection); err != nil {
		log.WithDD(ctx).Warn("notify change", zap.String("collection", collection), zap.Error(err))
	}
}

func toDocument(m bson.M) *provider.Document {
	id, _ := m["_id"].(string)
	delete(m, "_id")
	for k, v := range m {
		m[k] = fromBSON(v)
	}
	return &provider.Document{ID: id, Data: m}
}

// fromBSON maps driver types back to the plain Go values the rest of the
// service writes.
func fromBSON(v any) any {
	switch x := v.(type) {
	case primitive.DateTime:
		return x.Time().UTC()
	case int32:
		return int64(x)
	case bson.M:
		for k, e := range x {
			x[k] = fromBSON(e)
		}
		return map[string]any(x)
	case primitive.D:
		out := make(map[string]any, len(x))
		for _, e := range x {
			out[e.Key] = fromBSON(e.Value)
		}
		return out
	case primitive.A:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = fromBSON(e)
		}
		return out
	case time.Time:
		return x.UTC()
	}
	return v
}
