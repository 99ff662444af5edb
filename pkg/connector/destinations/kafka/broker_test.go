package kafka

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/ajitpratap0/harvester/pkg/connector/core"
	"github.com/ajitpratap0/harvester/pkg/errors"
	"github.com/ajitpratap0/harvester/pkg/models"
	"github.com/ajitpratap0/harvester/pkg/testutil"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func definition(props map[string]string) models.EntityDefinition {
	p := map[string]string{PropertyBrokers: "kafka-1:9092, kafka-2:9092", PropertyTopic: "metadata"}
	for k, v := range props {
		p[k] = v
	}
	return models.NewEntityDefinition(Type, p)
}

func withMock(t *testing.T) (*Broker, *mocks.SyncProducer) {
	t.Helper()
	var producer *mocks.SyncProducer
	b, err := New(definition(nil), func(addrs []string, cfg *sarama.Config) (sarama.SyncProducer, error) {
		assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, addrs)
		producer = mocks.NewSyncProducer(t, cfg)
		return producer, nil
	})
	require.NoError(t, err)
	require.NoError(t, b.Initialize(context.Background(), core.InitContext{Logger: testutil.TestLogger(t)}))
	return b, producer
}

func header(msg *sarama.ProducerMessage, key string) []byte {
	for _, h := range msg.Headers {
		if string(h.Key) == key {
			return h.Value
		}
	}
	return nil
}

func TestPublishSendsKeyedMessage(t *testing.T) {
	b, producer := withMock(t)
	assert.Equal(t, "kafka://kafka-1:9092/metadata", b.BrokerURI())

	modified := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	ref := &models.DataReference{
		BrokerURI:    "ckan://example.org",
		SourceLabel:  "portal",
		ID:           "r1",
		LastModified: &modified,
		Content:      []byte("<doc/>"),
		ContentType:  "application/xml",
	}

	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, _ := msg.Key.Encode()
		if string(key) != ref.Key() {
			return fmt.Errorf("unexpected key %q", key)
		}
		value, _ := msg.Value.Encode()
		if !bytes.Equal(value, ref.Content) {
			return fmt.Errorf("unexpected value %q", value)
		}
		if ct := string(header(msg, HeaderContentType)); ct != "application/xml" {
			return fmt.Errorf("unexpected content type %q", ct)
		}
		var h referenceHeader
		if err := json.Unmarshal(header(msg, HeaderReference), &h); err != nil {
			return err
		}
		if h.ID != "r1" || h.SourceLabel != "portal" || h.LastModified == nil || !h.LastModified.Equal(modified) {
			return fmt.Errorf("unexpected reference header %+v", h)
		}
		return nil
	})

	status, err := b.Publish(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, models.PublishingStatusCreated, status)
	require.NoError(t, b.Terminate())
}

func TestPublishFailureIsReported(t *testing.T) {
	b, producer := withMock(t)
	producer.ExpectSendMessageAndFail(sarama.ErrNotLeaderForPartition)

	_, err := b.Publish(context.Background(), &models.DataReference{BrokerURI: "ckan://example.org", ID: "r1"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))
	require.NoError(t, b.Terminate())
	assert.NoError(t, b.Terminate())
}

func TestKafkaConfig(t *testing.T) {
	b, err := New(definition(map[string]string{PropertyAcks: "leader", PropertyCompression: "zstd", PropertySASLUser: "u", PropertySASLPassword: "p"}), nil)
	require.NoError(t, err)
	assert.Equal(t, sarama.WaitForLocal, b.config.Producer.RequiredAcks)
	assert.Equal(t, sarama.CompressionZSTD, b.config.Producer.Compression)
	assert.True(t, b.config.Net.SASL.Enable)

	tests := []struct {
		name  string
		props map[string]string
	}{
		{"missing topic", map[string]string{PropertyTopic: ""}},
		{"blank brokers", map[string]string{PropertyBrokers: " , "}},
		{"bad acks", map[string]string{PropertyAcks: "most"}},
		{"bad codec", map[string]string{PropertyCompression: "brotli"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(definition(tt.props), nil)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
		})
	}
}
