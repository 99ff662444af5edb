// Package s3 publishes harvested documents as objects in an S3 bucket.
package s3

import (
	"bytes"
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/ajitpratap0/harvester/pkg/connector/core"
	"github.com/ajitpratap0/harvester/pkg/connector/sdk"
	"github.com/ajitpratap0/harvester/pkg/errors"
	"github.com/ajitpratap0/harvester/pkg/models"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
)

// Type is the connector type name.
const Type = "S3"

// Definition properties.
const (
	PropertyBucket          = "bucket"
	PropertyRegion          = "region"
	PropertyPrefix          = "prefix"
	PropertyEndpoint        = "endpoint"
	PropertyPathStyle       = "pathStyle"
	PropertyAccessKeyID     = "accessKeyId"
	PropertySecretAccessKey = "secretAccessKey"
	PropertyCompression     = "compression"
	PropertyPartSize        = "uploadPartSize"
	PropertyConcurrency     = "uploadConcurrency"
)

// Broker uploads one object per reference. Credentials come from the
// properties when both keys are set, from the default AWS chain otherwise.
type Broker struct {
	def         models.EntityDefinition
	bucket      string
	region      string
	endpoint    string
	pathStyle   bool
	accessKey   string
	secretKey   string
	partSize    int64
	concurrency int
	encoder     *sdk.DocumentEncoder

	mu       sync.Mutex
	client   *s3.Client
	uploader *manager.Uploader
	logger   *zap.Logger
}

// NewBroker builds a broker from def.
func NewBroker(def models.EntityDefinition) (core.OutputBroker, error) {
	return New(def)
}

// New builds a broker from def.
func New(def models.EntityDefinition) (*Broker, error) {
	v := sdk.NewPropertyValidator(def)
	bucket := v.Required(PropertyBucket)
	region := v.String(PropertyRegion, "us-east-1")
	prefix := v.String(PropertyPrefix, "")
	endpoint := v.String(PropertyEndpoint, "")
	pathStyle := v.Bool(PropertyPathStyle, false)
	accessKey := v.String(PropertyAccessKeyID, "")
	secretKey := v.String(PropertySecretAccessKey, "")
	alg := v.String(PropertyCompression, "")
	partSize := v.Int(PropertyPartSize, int(manager.DefaultUploadPartSize), int(manager.MinUploadPartSize), 0)
	concurrency := v.Int(PropertyConcurrency, manager.DefaultUploadConcurrency, 1, 64)
	if err := v.Err(); err != nil {
		return nil, err
	}
	if (accessKey == "") != (secretKey == "") {
		return nil, errors.New(errors.ErrorTypeConfig, "accessKeyId and secretAccessKey must be set together").
			WithDetail("type", Type)
	}
	if endpoint != "" {
		if u, err := url.Parse(endpoint); err != nil || u.Host == "" {
			return nil, errors.New(errors.ErrorTypeConfig, "invalid endpoint").WithDetail(PropertyEndpoint, endpoint)
		}
	}
	enc, err := sdk.NewDocumentEncoder(prefix, alg)
	if err != nil {
		return nil, err
	}
	return &Broker{
		def:         def.Clone(),
		bucket:      bucket,
		region:      region,
		endpoint:    endpoint,
		pathStyle:   pathStyle,
		accessKey:   accessKey,
		secretKey:   secretKey,
		partSize:    int64(partSize),
		concurrency: concurrency,
		encoder:     enc,
		logger:      zap.NewNop(),
	}, nil
}

// Initialize loads the AWS configuration and creates the uploader.
func (b *Broker) Initialize(ctx context.Context, initCtx core.InitContext) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = initCtx.Log().With(zap.String("broker", b.BrokerURI()))

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(b.region)}
	if b.accessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(b.accessKey, b.secretKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to load AWS configuration")
	}

	b.client = s3.NewFromConfig(cfg, func(o *s3.Options) {
		if b.endpoint != "" {
			o.BaseEndpoint = aws.String(b.endpoint)
		}
		o.UsePathStyle = b.pathStyle
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})
	b.uploader = manager.NewUploader(b.client, func(u *manager.Uploader) {
		u.PartSize = b.partSize
		u.Concurrency = b.concurrency
	})
	b.logger.Info("S3 destination ready", zap.String("bucket", b.bucket), zap.String("region", b.region))
	return nil
}

func (b *Broker) Terminate() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.client = nil
	b.uploader = nil
	return nil
}

func (b *Broker) EntityDefinition() models.EntityDefinition { return b.def.Clone() }

// BrokerURI is s3://bucket/prefix.
func (b *Broker) BrokerURI() string {
	u := url.URL{Scheme: "s3", Host: b.bucket, Path: "/" + strings.Trim(b.def.Get(PropertyPrefix), "/")}
	return strings.TrimSuffix(u.String(), "/")
}

// Publish uploads the document. The object is probed first so the status
// tells whether an earlier version was replaced.
func (b *Broker) Publish(ctx context.Context, ref *models.DataReference) (models.PublishingStatus, error) {
	b.mu.Lock()
	client, uploader := b.client, b.uploader
	b.mu.Unlock()
	if uploader == nil {
		return "", errors.New(errors.ErrorTypeInternal, "broker is not initialized").WithDetail("broker", b.BrokerURI())
	}

	doc, err := b.encoder.Encode(ref)
	if err != nil {
		return "", err
	}

	status := models.PublishingStatusCreated
	_, err = client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(b.bucket), Key: aws.String(doc.Name)})
	if err == nil {
		status = models.PublishingStatusUpdated
	} else {
		var nf *types.NotFound
		if !errors.As(err, &nf) {
			return "", errors.Wrap(err, errors.ErrorTypeConnection, "failed to probe object").
				WithDetail("bucket", b.bucket).
				WithDetail("key", doc.Name)
		}
	}

	in := &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(doc.Name),
		Body:        bytes.NewReader(doc.Body),
		ContentType: aws.String(doc.ContentType),
		Metadata:    doc.Metadata,
	}
	if doc.ContentEncoding != "" {
		in.ContentEncoding = aws.String(doc.ContentEncoding)
	}
	result, err := uploader.Upload(ctx, in)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeConnection, "failed to upload to S3").
			WithDetail("bucket", b.bucket).
			WithDetail("key", doc.Name)
	}

	b.logger.Debug("object uploaded",
		zap.String("location", result.Location),
		zap.Int("bytes", len(doc.Body)),
		zap.String("status", string(status)))
	return status, nil
}
