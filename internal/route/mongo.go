package route

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultCollection is the collection routes are written to.
const DefaultCollection = "routes"

// MongoStore keeps routes in a MongoDB collection, one document per route.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoStore connects to uri and uses the routes collection of database db.
func NewMongoStore(ctx context.Context, uri, db string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "connect to mongo")
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, errors.Wrap(err, "ping mongo")
	}
	coll := client.Database(db).Collection(DefaultCollection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "route_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create route_id index")
	}
	return &MongoStore{client: client, collection: coll}, nil
}

// Save implements Store.
func (s *MongoStore) Save(ctx context.Context, routes []Route) error {
	if _, err := s.collection.DeleteMany(ctx, bson.D{}); err != nil {
		return errors.Wrap(err, "clear routes")
	}
	if len(routes) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(routes))
	for _, r := range routes {
		docs = append(docs, r)
	}
	_, err := s.collection.InsertMany(ctx, docs)
	return errors.Wrap(err, "insert routes")
}

// Append implements Store. A route with an existing id replaces it.
func (s *MongoStore) Append(ctx context.Context, r Route) error {
	_, err := s.collection.ReplaceOne(ctx,
		bson.D{{Key: "route_id", Value: r.RouteID}}, r,
		options.Replace().SetUpsert(true))
	return errors.Wrapf(err, "upsert route %s", r.RouteID)
}

// List implements Store.
func (s *MongoStore) List(ctx context.Context) ([]Route, error) {
	cur, err := s.collection.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "route_id", Value: 1}}))
	if err != nil {
		return nil, errors.Wrap(err, "find routes")
	}
	routes := []Route{}
	if err := cur.All(ctx, &routes); err != nil {
		return nil, errors.Wrap(err, "decode routes")
	}
	return routes, nil
}

// Close implements Store.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
