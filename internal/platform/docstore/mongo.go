package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoStore keeps collections in MongoDB. Device licensing collections
// live in their own database; everything else lives in the main database.
type MongoStore struct {
	client    *mongo.Client
	mainDB    string
	licenseDB string
}

// ConnectMongo dials uri and verifies the connection.
func ConnectMongo(ctx context.Context, uri, mainDB, licenseDB string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return NewMongoStore(client, mainDB, licenseDB), nil
}

func NewMongoStore(client *mongo.Client, mainDB, licenseDB string) *MongoStore {
	return &MongoStore{client: client, mainDB: mainDB, licenseDB: licenseDB}
}

func (s *MongoStore) Collection(name string) Collection {
	db := s.mainDB
	if name == Devices || name == DeviceActivity {
		db = s.licenseDB
	}
	return &mongoCollection{coll: s.client.Database(db).Collection(name), name: name}
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

type mongoCollection struct {
	coll *mongo.Collection
	name string
}

var insertionOrder = bson.D{{Key: "_id", Value: 1}}

func (c *mongoCollection) FindOne(ctx context.Context, f Filter) (*Document, error) {
	q, err := renderBSON(f, "")
	if err != nil {
		return nil, err
	}
	var raw bson.Raw
	err = c.coll.FindOne(ctx, q, options.FindOne().SetSort(insertionOrder)).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find one in %s: %w", c.name, err)
	}
	return documentFromBSON(raw)
}

func (c *mongoCollection) Find(ctx context.Context, f Filter) ([]*Document, error) {
	q, err := renderBSON(f, "")
	if err != nil {
		return nil, err
	}
	cur, err := c.coll.Find(ctx, q, options.Find().SetSort(insertionOrder))
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", c.name, err)
	}
	defer cur.Close(ctx)
	var docs []*Document
	for cur.Next(ctx) {
		doc, err := documentFromBSON(cur.Current)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s documents: %w", c.name, err)
	}
	return docs, nil
}

func (c *mongoCollection) Count(ctx context.Context, f Filter) (int64, error) {
	q, err := renderBSON(f, "")
	if err != nil {
		return 0, err
	}
	n, err := c.coll.CountDocuments(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", c.name, err)
	}
	return n, nil
}

func (c *mongoCollection) InsertOne(ctx context.Context, body interface{}) (string, error) {
	doc, err := toBSONValue(body)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	res, err := c.coll.InsertOne(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("insert into %s: %w", c.name, err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		return oid.Hex(), nil
	}
	return fmt.Sprint(res.InsertedID), nil
}

func (c *mongoCollection) UpdateOne(ctx context.Context, f Filter, u Update) (int64, error) {
	q, err := renderBSON(f, "")
	if err != nil {
		return 0, err
	}
	upd, arrayFilters, err := renderBSONUpdate(u)
	if err != nil {
		return 0, err
	}
	opts := options.Update()
	if len(arrayFilters) > 0 {
		opts.SetArrayFilters(options.ArrayFilters{Filters: arrayFilters})
	}
	res, err := c.coll.UpdateOne(ctx, q, upd, opts)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", c.name, err)
	}
	return res.ModifiedCount, nil
}

// renderBSON renders f as a MongoDB query document. prefix is prepended to
// every field path and is used for array filter identifiers.
func renderBSON(f Filter, prefix string) (bson.D, error) {
	switch f.op {
	case opAll:
		return bson.D{}, nil
	case opID:
		id, _ := f.value.(string)
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			return bson.D{{Key: "_id", Value: id}}, nil
		}
		return bson.D{{Key: "_id", Value: oid}}, nil
	case opEq:
		v, err := toBSONValue(f.value)
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: prefix + f.path, Value: v}}, nil
	case opIn:
		vals := bson.A{}
		for _, x := range f.values {
			v, err := toBSONValue(x)
			if err != nil {
				return nil, err
			}
			vals = append(vals, v)
		}
		return bson.D{{Key: prefix + f.path, Value: bson.D{{Key: "$in", Value: vals}}}}, nil
	case opExists:
		return bson.D{{Key: prefix + f.path, Value: bson.D{{Key: "$exists", Value: true}}}}, nil
	case opElemMatch:
		inner, err := renderBSON(And(f.children...), "")
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: prefix + f.path, Value: bson.D{{Key: "$elemMatch", Value: inner}}}}, nil
	case opAnd:
		if len(f.children) == 0 {
			return bson.D{}, nil
		}
		if len(f.children) == 1 {
			return renderBSON(f.children[0], prefix)
		}
		parts := bson.A{}
		for _, c := range f.children {
			d, err := renderBSON(c, prefix)
			if err != nil {
				return nil, err
			}
			parts = append(parts, d)
		}
		return bson.D{{Key: "$and", Value: parts}}, nil
	}
	return nil, fmt.Errorf("unknown filter op %d", f.op)
}

// renderBSONUpdate renders u as an update document plus the array filters
// its positional SetWhere steps refer to.
func renderBSONUpdate(u Update) (bson.D, []interface{}, error) {
	if u.Empty() {
		return nil, nil, fmt.Errorf("empty update")
	}
	var (
		set          bson.D
		push         bson.D
		arrayFilters []interface{}
	)
	for _, s := range u.steps {
		switch s.op {
		case opSet:
			v, err := toBSONValue(s.value)
			if err != nil {
				return nil, nil, err
			}
			set = append(set, bson.E{Key: s.path, Value: v})
		case opPush:
			vals := bson.A{}
			for _, x := range s.values {
				v, err := toBSONValue(x)
				if err != nil {
					return nil, nil, err
				}
				vals = append(vals, v)
			}
			push = append(push, bson.E{Key: s.path, Value: bson.D{{Key: "$each", Value: vals}}})
		case opSetWhere:
			ident := fmt.Sprintf("f%d", len(arrayFilters))
			// Array filters take one document with implicitly ANDed fields.
			cond := bson.D{}
			for _, c := range s.conds {
				d, err := renderBSON(c, ident+".")
				if err != nil {
					return nil, nil, err
				}
				cond = append(cond, d...)
			}
			v, err := toBSONValue(s.value)
			if err != nil {
				return nil, nil, err
			}
			set = append(set, bson.E{Key: s.path + ".$[" + ident + "]." + s.subPath, Value: v})
			arrayFilters = append(arrayFilters, cond)
		}
	}
	var upd bson.D
	if len(set) > 0 {
		upd = append(upd, bson.E{Key: "$set", Value: set})
	}
	if len(push) > 0 {
		upd = append(upd, bson.E{Key: "$push", Value: push})
	}
	return upd, arrayFilters, nil
}

// toBSONValue converts v through its JSON encoding so json struct tags
// decide field names in stored documents.
func toBSONValue(v interface{}) (interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	wrapped := make([]byte, 0, len(raw)+6)
	wrapped = append(wrapped, `{"v":`...)
	wrapped = append(wrapped, raw...)
	wrapped = append(wrapped, '}')
	var doc bson.D
	if err := bson.UnmarshalExtJSON(wrapped, false, &doc); err != nil {
		return nil, err
	}
	return doc[0].Value, nil
}

func documentFromBSON(raw bson.Raw) (*Document, error) {
	var d bson.D
	if err := bson.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode bson document: %w", err)
	}
	var id string
	body := make(bson.D, 0, len(d))
	for _, e := range d {
		if e.Key == "_id" {
			if oid, ok := e.Value.(primitive.ObjectID); ok {
				id = oid.Hex()
			} else {
				id = fmt.Sprint(e.Value)
			}
			continue
		}
		body = append(body, e)
	}
	js, err := bson.MarshalExtJSON(body, false, false)
	if err != nil {
		return nil, fmt.Errorf("encode document %s as json: %w", id, err)
	}
	return &Document{ID: id, Body: js}, nil
}
