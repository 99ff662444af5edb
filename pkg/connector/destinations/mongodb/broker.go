// Package mongodb upserts harvested documents into a MongoDB collection.
package mongodb

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ajitpratap0/harvester/pkg/connector/core"
	"github.com/ajitpratap0/harvester/pkg/connector/sdk"
	"github.com/ajitpratap0/harvester/pkg/errors"
	"github.com/ajitpratap0/harvester/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Type is the connector type name.
const Type = "MONGODB"

// Definition properties.
const (
	PropertyURI        = "uri"
	PropertyDatabase   = "database"
	PropertyCollection = "collection"
	PropertyTimeout    = "timeout"
)

// record is the stored form of a reference. _id is the reference key.
type record struct {
	Key          string     `bson:"_id"`
	BrokerURI    string     `bson:"broker_uri"`
	ID           string     `bson:"id"`
	SourceLabel  string     `bson:"source_label,omitempty"`
	LastModified *time.Time `bson:"last_modified,omitempty"`
	ContentURI   string     `bson:"content_uri,omitempty"`
	ContentType  string     `bson:"content_type"`
	Content      string     `bson:"content,omitempty"`
	Binary       []byte     `bson:"binary,omitempty"`
	HarvestedAt  time.Time  `bson:"harvested_at"`
}

func newRecord(ref *models.DataReference, now time.Time) record {
	r := record{
		Key:          ref.Key(),
		BrokerURI:    ref.BrokerURI,
		ID:           ref.ID,
		SourceLabel:  ref.SourceLabel,
		LastModified: ref.LastModified,
		ContentURI:   ref.ContentURI,
		ContentType:  ref.ContentType,
		HarvestedAt:  now.UTC(),
	}
	if isText(ref.ContentType) {
		r.Content = string(ref.Content)
	} else {
		r.Binary = ref.Content
	}
	return r
}

func isText(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.HasPrefix(ct, "text/") || strings.Contains(ct, "xml") || strings.Contains(ct, "json")
}

// Broker replaces one document per reference.
type Broker struct {
	def        models.EntityDefinition
	uri        string
	database   string
	collection string
	timeout    time.Duration

	mu     sync.Mutex
	client *mongo.Client
	coll   *mongo.Collection
	logger *zap.Logger
}

// NewBroker builds a broker from def.
func NewBroker(def models.EntityDefinition) (core.OutputBroker, error) {
	return New(def)
}

// New builds a broker from def.
func New(def models.EntityDefinition) (*Broker, error) {
	v := sdk.NewPropertyValidator(def)
	uri := v.Required(PropertyURI)
	database := v.Required(PropertyDatabase)
	collection := v.String(PropertyCollection, "metadata")
	timeout := v.Duration(PropertyTimeout, 10*time.Second)
	if err := v.Err(); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(uri, "mongodb://") && !strings.HasPrefix(uri, "mongodb+srv://") {
		return nil, errors.New(errors.ErrorTypeConfig, "invalid mongodb uri").WithDetail("type", Type)
	}
	return &Broker{
		def:        def.Clone(),
		uri:        uri,
		database:   database,
		collection: collection,
		timeout:    timeout,
		logger:     zap.NewNop(),
	}, nil
}

// Initialize connects and pings the primary.
func (b *Broker) Initialize(ctx context.Context, initCtx core.InitContext) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = initCtx.Log().With(zap.String("broker", b.BrokerURI()))

	opts := options.Client().
		ApplyURI(b.uri).
		SetConnectTimeout(b.timeout).
		SetServerSelectionTimeout(b.timeout)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to connect to MongoDB")
	}
	pingCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to ping MongoDB")
	}

	b.client = client
	b.coll = client.Database(b.database).Collection(b.collection)
	b.logger.Info("connected to MongoDB",
		zap.String("database", b.database),
		zap.String("collection", b.collection))
	return nil
}

// Terminate disconnects the client.
func (b *Broker) Terminate() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	err := b.client.Disconnect(ctx)
	b.client = nil
	b.coll = nil
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to disconnect from MongoDB")
	}
	return nil
}

func (b *Broker) EntityDefinition() models.EntityDefinition { return b.def.Clone() }

// BrokerURI is mongodb://database/collection; the connection string is
// left out since it may carry credentials.
func (b *Broker) BrokerURI() string {
	return "mongodb://" + b.database + "/" + b.collection
}

// Publish upserts the document keyed by the reference key.
func (b *Broker) Publish(ctx context.Context, ref *models.DataReference) (models.PublishingStatus, error) {
	b.mu.Lock()
	coll := b.coll
	b.mu.Unlock()
	if coll == nil {
		return "", errors.New(errors.ErrorTypeInternal, "broker is not initialized").WithDetail("broker", b.BrokerURI())
	}

	rec := newRecord(ref, time.Now())
	res, err := coll.ReplaceOne(ctx, bson.M{"_id": rec.Key}, rec, options.Replace().SetUpsert(true))
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeConnection, "failed to upsert document").
			WithDetail("collection", b.collection).
			WithDetail("id", ref.ID)
	}
	if res.UpsertedCount > 0 {
		return models.PublishingStatusCreated, nil
	}
	return models.PublishingStatusUpdated, nil
}
