// Package kafka publishes harvested documents as messages on a Kafka topic.
package kafka

import (
	"context"
	"crypto/tls"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/ajitpratap0/harvester/pkg/connector/core"
	"github.com/ajitpratap0/harvester/pkg/connector/sdk"
	"github.com/ajitpratap0/harvester/pkg/errors"
	"github.com/ajitpratap0/harvester/pkg/models"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// Type is the connector type name.
const Type = "KAFKA"

// Definition properties.
const (
	PropertyBrokers      = "brokers"
	PropertyTopic        = "topic"
	PropertyClientID     = "clientId"
	PropertyAcks         = "acks"
	PropertyCompression  = "compression"
	PropertyTLS          = "tls"
	PropertySASLUser     = "saslUsername"
	PropertySASLPassword = "saslPassword"
	PropertyTimeout      = "timeout"
)

// Message headers.
const (
	HeaderContentType = "content-type"
	HeaderReference   = "harvester-reference"
)

// referenceHeader is the JSON carried in the HeaderReference header.
type referenceHeader struct {
	BrokerURI    string     `json:"broker_uri"`
	ID           string     `json:"id"`
	SourceLabel  string     `json:"source_label,omitempty"`
	LastModified *time.Time `json:"last_modified,omitempty"`
	ContentURI   string     `json:"content_uri,omitempty"`
}

// ProducerFactory creates the producer used by a broker.
type ProducerFactory func(addrs []string, cfg *sarama.Config) (sarama.SyncProducer, error)

// Broker sends one message per reference, keyed by the reference key so
// every version of a document lands on the same partition.
type Broker struct {
	def     models.EntityDefinition
	brokers []string
	topic   string
	config  *sarama.Config
	factory ProducerFactory

	mu       sync.Mutex
	producer sarama.SyncProducer
	logger   *zap.Logger
}

// NewBroker builds a broker from def.
func NewBroker(def models.EntityDefinition) (core.OutputBroker, error) {
	return New(def, nil)
}

// New builds a broker from def. A nil factory connects to the cluster.
func New(def models.EntityDefinition, factory ProducerFactory) (*Broker, error) {
	v := sdk.NewPropertyValidator(def)
	brokers := v.Required(PropertyBrokers)
	topic := v.Required(PropertyTopic)
	clientID := v.String(PropertyClientID, "harvester")
	acks := v.Enum(PropertyAcks, "all", "all", "leader", "none")
	codec := v.Enum(PropertyCompression, "none", "none", "gzip", "snappy", "lz4", "zstd")
	useTLS := v.Bool(PropertyTLS, false)
	user := v.String(PropertySASLUser, "")
	password := v.String(PropertySASLPassword, "")
	timeout := v.Duration(PropertyTimeout, 10*time.Second)
	if err := v.Err(); err != nil {
		return nil, err
	}

	var addrs []string
	for _, a := range strings.Split(brokers, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	if len(addrs) == 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "no kafka brokers").WithDetail("type", Type)
	}

	cfg := sarama.NewConfig()
	cfg.ClientID = clientID
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.Timeout = timeout
	cfg.Net.DialTimeout = timeout
	switch acks {
	case "leader":
		cfg.Producer.RequiredAcks = sarama.WaitForLocal
	case "none":
		cfg.Producer.RequiredAcks = sarama.NoResponse
	default:
		cfg.Producer.RequiredAcks = sarama.WaitForAll
	}
	switch codec {
	case "gzip":
		cfg.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		cfg.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		cfg.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		cfg.Producer.Compression = sarama.CompressionZSTD
		cfg.Version = sarama.V2_1_0_0
	default:
		cfg.Producer.Compression = sarama.CompressionNone
	}
	if useTLS {
		cfg.Net.TLS.Enable = true
		cfg.Net.TLS.Config = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if user != "" {
		cfg.Net.SASL.Enable = true
		cfg.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		cfg.Net.SASL.User = user
		cfg.Net.SASL.Password = password
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid kafka configuration").WithDetail("type", Type)
	}

	if factory == nil {
		factory = sarama.NewSyncProducer
	}
	return &Broker{
		def:     def.Clone(),
		brokers: addrs,
		topic:   topic,
		config:  cfg,
		factory: factory,
		logger:  zap.NewNop(),
	}, nil
}

// Initialize connects the producer.
func (b *Broker) Initialize(_ context.Context, initCtx core.InitContext) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = initCtx.Log().With(zap.String("broker", b.BrokerURI()))

	p, err := b.factory(b.brokers, b.config)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to create kafka producer").
			WithDetail("brokers", strings.Join(b.brokers, ","))
	}
	b.producer = p
	b.logger.Info("kafka producer ready", zap.Strings("brokers", b.brokers), zap.String("topic", b.topic))
	return nil
}

// Terminate closes the producer.
func (b *Broker) Terminate() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.producer == nil {
		return nil
	}
	err := b.producer.Close()
	b.producer = nil
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to close kafka producer")
	}
	return nil
}

func (b *Broker) EntityDefinition() models.EntityDefinition { return b.def.Clone() }

// BrokerURI is kafka://first-broker/topic.
func (b *Broker) BrokerURI() string {
	return "kafka://" + b.brokers[0] + "/" + b.topic
}

// Publish sends the document and waits for the acknowledgement.
func (b *Broker) Publish(ctx context.Context, ref *models.DataReference) (models.PublishingStatus, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b.mu.Lock()
	producer := b.producer
	b.mu.Unlock()
	if producer == nil {
		return "", errors.New(errors.ErrorTypeInternal, "broker is not initialized").WithDetail("broker", b.BrokerURI())
	}

	header, err := json.Marshal(referenceHeader{
		BrokerURI:    ref.BrokerURI,
		ID:           ref.ID,
		SourceLabel:  ref.SourceLabel,
		LastModified: ref.LastModified,
		ContentURI:   ref.ContentURI,
	})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode reference header")
	}

	msg := &sarama.ProducerMessage{
		Topic: b.topic,
		Key:   sarama.StringEncoder(ref.Key()),
		Value: sarama.ByteEncoder(ref.Content),
		Headers: []sarama.RecordHeader{
			{Key: []byte(HeaderContentType), Value: []byte(ref.ContentType)},
			{Key: []byte(HeaderReference), Value: header},
		},
		Timestamp: time.Now(),
	}
	partition, offset, err := producer.SendMessage(msg)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeConnection, "failed to send kafka message").
			WithDetail("topic", b.topic).
			WithDetail("id", ref.ID)
	}
	b.logger.Debug("message sent",
		zap.String("id", ref.ID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return models.PublishingStatusCreated, nil
}
