// Package gcs publishes harvested documents as objects in a Google Cloud
// Storage bucket.
package gcs

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/ajitpratap0/harvester/pkg/connector/core"
	"github.com/ajitpratap0/harvester/pkg/connector/sdk"
	"github.com/ajitpratap0/harvester/pkg/errors"
	"github.com/ajitpratap0/harvester/pkg/models"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// Type is the connector type name.
const Type = "GCS"

// Definition properties.
const (
	PropertyBucket          = "bucket"
	PropertyPrefix          = "prefix"
	PropertyCredentialsFile = "credentialsFile"
	PropertyEndpoint        = "endpoint"
	PropertyCompression     = "compression"
)

// Broker writes one object per reference.
type Broker struct {
	def             models.EntityDefinition
	bucketName      string
	credentialsFile string
	endpoint        string
	encoder         *sdk.DocumentEncoder

	mu     sync.Mutex
	client *storage.Client
	bucket *storage.BucketHandle
	logger *zap.Logger
}

// NewBroker builds a broker from def.
func NewBroker(def models.EntityDefinition) (core.OutputBroker, error) {
	return New(def)
}

// New builds a broker from def.
func New(def models.EntityDefinition) (*Broker, error) {
	v := sdk.NewPropertyValidator(def)
	bucket := v.Required(PropertyBucket)
	prefix := v.String(PropertyPrefix, "")
	creds := v.String(PropertyCredentialsFile, "")
	endpoint := v.String(PropertyEndpoint, "")
	alg := v.String(PropertyCompression, "")
	if err := v.Err(); err != nil {
		return nil, err
	}
	enc, err := sdk.NewDocumentEncoder(prefix, alg)
	if err != nil {
		return nil, err
	}
	return &Broker{
		def:             def.Clone(),
		bucketName:      bucket,
		credentialsFile: creds,
		endpoint:        endpoint,
		encoder:         enc,
		logger:          zap.NewNop(),
	}, nil
}

// clientOptions selects credentials. An explicit endpoint talks to an
// emulator without authentication.
func (b *Broker) clientOptions() []option.ClientOption {
	var opts []option.ClientOption
	if b.credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(b.credentialsFile))
	}
	if b.endpoint != "" {
		opts = append(opts, option.WithEndpoint(b.endpoint), option.WithoutAuthentication())
	}
	return opts
}

// Initialize creates the storage client and checks the bucket is reachable.
func (b *Broker) Initialize(ctx context.Context, initCtx core.InitContext) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = initCtx.Log().With(zap.String("broker", b.BrokerURI()))

	client, err := storage.NewClient(ctx, b.clientOptions()...)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to create GCS client")
	}
	bucket := client.Bucket(b.bucketName)
	if _, err := bucket.Attrs(ctx); err != nil {
		_ = client.Close()
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to access GCS bucket").
			WithDetail("bucket", b.bucketName)
	}
	b.client = client
	b.bucket = bucket
	b.logger.Info("GCS bucket access verified", zap.String("bucket", b.bucketName))
	return nil
}

// Terminate closes the storage client.
func (b *Broker) Terminate() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client == nil {
		return nil
	}
	err := b.client.Close()
	b.client = nil
	b.bucket = nil
	return err
}

func (b *Broker) EntityDefinition() models.EntityDefinition { return b.def.Clone() }

// BrokerURI is gs://bucket/prefix.
func (b *Broker) BrokerURI() string {
	u := url.URL{Scheme: "gs", Host: b.bucketName, Path: "/" + strings.Trim(b.def.Get(PropertyPrefix), "/")}
	return strings.TrimSuffix(u.String(), "/")
}

// Publish writes the document, reporting whether an object was replaced.
func (b *Broker) Publish(ctx context.Context, ref *models.DataReference) (models.PublishingStatus, error) {
	b.mu.Lock()
	bucket := b.bucket
	b.mu.Unlock()
	if bucket == nil {
		return "", errors.New(errors.ErrorTypeInternal, "broker is not initialized").WithDetail("broker", b.BrokerURI())
	}

	doc, err := b.encoder.Encode(ref)
	if err != nil {
		return "", err
	}
	obj := bucket.Object(doc.Name)

	status := models.PublishingStatusCreated
	switch _, err := obj.Attrs(ctx); {
	case err == nil:
		status = models.PublishingStatusUpdated
	case errors.Is(err, storage.ErrObjectNotExist):
	default:
		return "", errors.Wrap(err, errors.ErrorTypeConnection, "failed to probe object").
			WithDetail("bucket", b.bucketName).
			WithDetail("object", doc.Name)
	}

	w := obj.NewWriter(ctx)
	w.ContentType = doc.ContentType
	w.ContentEncoding = doc.ContentEncoding
	w.Metadata = doc.Metadata
	if _, err := w.Write(doc.Body); err != nil {
		_ = w.Close()
		return "", errors.Wrap(err, errors.ErrorTypeConnection, "failed to write to GCS").WithDetail("object", doc.Name)
	}
	if err := w.Close(); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeConnection, "failed to close GCS writer").WithDetail("object", doc.Name)
	}

	b.logger.Debug("object written",
		zap.String("object", doc.Name),
		zap.Int("bytes", len(doc.Body)),
		zap.String("status", string(status)))
	return status, nil
}
