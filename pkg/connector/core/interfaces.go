// Package core defines the contract every harvester source and destination
// implements.
package core

import (
	"context"
	"time"

	"github.com/ajitpratap0/harvester/pkg/clients"
	"github.com/ajitpratap0/harvester/pkg/models"
	"go.uber.org/zap"
)

// ConnectorType represents the direction of a connector
type ConnectorType string

const (
	ConnectorTypeSource      ConnectorType = "source"
	ConnectorTypeDestination ConnectorType = "destination"
)

// InitContext carries the task-level settings a broker sees on Initialize.
type InitContext struct {
	// TaskName identifies the task for logging
	TaskName string
	// IgnoreRobotsTxt disables crawl policy enforcement for the task
	IgnoreRobotsTxt bool
	// RobotsEnabled is the engine-wide crawl policy default used by brokers in
	// "inherit" mode
	RobotsEnabled bool
	// UserAgent is sent with every outbound request
	UserAgent string
	// HTTP configures the clients of network brokers; nil means the client
	// defaults
	HTTP *clients.HTTPConfig
	// Logger is scoped to the running process; nil means a no-op logger
	Logger *zap.Logger
}

// Log returns the context logger or a no-op logger.
func (c InitContext) Log() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// IteratorContext carries per-run hints for an input broker.
type IteratorContext struct {
	// LastHarvest is the start time of the last successful run of the same
	// task when the task is incremental; nil asks for everything
	LastHarvest *time.Time
}

// Broker is the lifecycle shared by sources and destinations.
type Broker interface {
	// Initialize acquires resources. It is called once before any other
	// operation and may fail.
	Initialize(ctx context.Context, initCtx InitContext) error
	// Terminate releases resources. It must be safe after a failed or
	// missing Initialize.
	Terminate() error
	// EntityDefinition returns the definition the broker was built from.
	EntityDefinition() models.EntityDefinition
	// BrokerURI locates the broker.
	BrokerURI() string
}

// InputBroker produces data references.
type InputBroker interface {
	Broker
	// Iterator returns a fresh lazy iterator.
	Iterator(ctx context.Context, iterCtx IteratorContext) (Iterator, error)
}

// OutputBroker consumes data references.
type OutputBroker interface {
	Broker
	// Publish stores one reference.
	Publish(ctx context.Context, ref *models.DataReference) (models.PublishingStatus, error)
}

// Iterator is a lazy, single-pass cursor over data references. Calling Next
// without a preceding true HasNext is a contract violation.
type Iterator interface {
	HasNext(ctx context.Context) (bool, error)
	Next(ctx context.Context) (*models.DataReference, error)
}

// InputConnector builds input brokers of one type.
type InputConnector interface {
	Type() string
	Create(def models.EntityDefinition) (InputBroker, error)
}

// OutputConnector builds output brokers of one type.
type OutputConnector interface {
	Type() string
	Create(def models.EntityDefinition) (OutputBroker, error)
}

// InputConnectorFunc adapts a constructor to InputConnector.
type InputConnectorFunc struct {
	Name string
	New  func(def models.EntityDefinition) (InputBroker, error)
}

// Type returns the connector type name.
func (f InputConnectorFunc) Type() string { return f.Name }

// Create builds a broker.
func (f InputConnectorFunc) Create(def models.EntityDefinition) (InputBroker, error) {
	return f.New(def)
}

// OutputConnectorFunc adapts a constructor to OutputConnector.
type OutputConnectorFunc struct {
	Name string
	New  func(def models.EntityDefinition) (OutputBroker, error)
}

// Type returns the connector type name.
func (f OutputConnectorFunc) Type() string { return f.Name }

// Create builds a broker.
func (f OutputConnectorFunc) Create(def models.EntityDefinition) (OutputBroker, error) {
	return f.New(def)
}
