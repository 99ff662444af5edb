package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ajitpratap0/harvester/pkg/connector/core"
	"github.com/ajitpratap0/harvester/pkg/errors"
	"github.com/ajitpratap0/harvester/pkg/logger"
	"github.com/ajitpratap0/harvester/pkg/models"
	"go.uber.org/zap"
)

// Registry maps entity definition types to connectors
type Registry struct {
	inputs  map[string]core.InputConnector
	outputs map[string]core.OutputConnector
	mu      sync.RWMutex
	logger  *zap.Logger
}

// Global registry instance
var globalRegistry = NewRegistry()

// NewRegistry creates a new connector registry
func NewRegistry() *Registry {
	return &Registry{
		inputs:  make(map[string]core.InputConnector),
		outputs: make(map[string]core.OutputConnector),
		logger:  logger.Get().With(zap.String("component", "connector_registry")),
	}
}

// RegisterInput registers an input connector under its type
func (r *Registry) RegisterInput(c core.InputConnector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.inputs[c.Type()]; exists {
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("input connector %s already registered", c.Type()))
	}

	r.inputs[c.Type()] = c
	r.logger.Debug("input connector registered", zap.String("type", c.Type()))
	return nil
}

// RegisterOutput registers an output connector under its type
func (r *Registry) RegisterOutput(c core.OutputConnector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.outputs[c.Type()]; exists {
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("output connector %s already registered", c.Type()))
	}

	r.outputs[c.Type()] = c
	r.logger.Debug("output connector registered", zap.String("type", c.Type()))
	return nil
}

// CreateInput builds an input broker from its definition
func (r *Registry) CreateInput(def models.EntityDefinition) (core.InputBroker, error) {
	r.mu.RLock()
	c, exists := r.inputs[def.Type]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("input connector %s not found", def.Type))
	}

	broker, err := c.Create(def.Clone())
	if err != nil {
		return nil, asConfigError(err, fmt.Sprintf("failed to create input broker %s", def.Type))
	}
	return broker, nil
}

// CreateOutput builds an output broker from its definition
func (r *Registry) CreateOutput(def models.EntityDefinition) (core.OutputBroker, error) {
	r.mu.RLock()
	c, exists := r.outputs[def.Type]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("output connector %s not found", def.Type))
	}

	broker, err := c.Create(def.Clone())
	if err != nil {
		return nil, asConfigError(err, fmt.Sprintf("failed to create output broker %s", def.Type))
	}
	return broker, nil
}

func asConfigError(err error, msg string) error {
	if errors.IsType(err, errors.ErrorTypeConfig) {
		return err
	}
	return errors.Wrap(err, errors.ErrorTypeConfig, msg)
}

// ListInputs returns the registered input types, sorted
func (r *Registry) ListInputs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.inputs))
	for name := range r.inputs {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}

// ListOutputs returns the registered output types, sorted
func (r *Registry) ListOutputs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.outputs))
	for name := range r.outputs {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}

// HasInput checks if an input connector is registered
func (r *Registry) HasInput(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.inputs[name]
	return exists
}

// HasOutput checks if an output connector is registered
func (r *Registry) HasOutput(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.outputs[name]
	return exists
}

// Global registry functions

// RegisterInput registers an input connector in the global registry
func RegisterInput(c core.InputConnector) error {
	return globalRegistry.RegisterInput(c)
}

// RegisterOutput registers an output connector in the global registry
func RegisterOutput(c core.OutputConnector) error {
	return globalRegistry.RegisterOutput(c)
}

// CreateInput creates an input broker from the global registry
func CreateInput(def models.EntityDefinition) (core.InputBroker, error) {
	return globalRegistry.CreateInput(def)
}

// CreateOutput creates an output broker from the global registry
func CreateOutput(def models.EntityDefinition) (core.OutputBroker, error) {
	return globalRegistry.CreateOutput(def)
}

// GetRegistry returns the global registry instance.
// Connector packages populate it from their init functions.
func GetRegistry() *Registry {
	return globalRegistry
}

// ConnectorInfo describes a connector for listings
type ConnectorInfo struct {
	Type        string             `json:"type" yaml:"type"`
	Direction   core.ConnectorType `json:"direction" yaml:"direction"`
	Description string             `json:"description" yaml:"description"`
	Properties  []PropertyInfo     `json:"properties" yaml:"properties"`
}

// PropertyInfo describes one entity definition property
type PropertyInfo struct {
	Name        string `json:"name" yaml:"name"`
	Required    bool   `json:"required" yaml:"required"`
	Default     string `json:"default,omitempty" yaml:"default,omitempty"`
	Description string `json:"description" yaml:"description"`
}

// Validate checks that every required property is set on def
func (i *ConnectorInfo) Validate(def models.EntityDefinition) error {
	for _, p := range i.Properties {
		if p.Required && def.Get(p.Name) == "" {
			return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("%s: missing required property %s", i.Type, p.Name)).
				WithDetail("type", i.Type)
		}
	}
	return nil
}

// ConnectorCatalog manages connector metadata
type ConnectorCatalog struct {
	connectors map[string]*ConnectorInfo
	mu         sync.RWMutex
}

// NewConnectorCatalog creates a new connector catalog
func NewConnectorCatalog() *ConnectorCatalog {
	return &ConnectorCatalog{
		connectors: make(map[string]*ConnectorInfo),
	}
}

func catalogKey(direction core.ConnectorType, name string) string {
	return string(direction) + "/" + name
}

// Register adds a connector to the catalog
func (c *ConnectorCatalog) Register(info *ConnectorInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := catalogKey(info.Direction, info.Type)
	if _, exists := c.connectors[key]; exists {
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("connector %s already in catalog", key))
	}

	c.connectors[key] = info
	return nil
}

// Get retrieves connector information
func (c *ConnectorCatalog) Get(direction core.ConnectorType, name string) (*ConnectorInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	info, exists := c.connectors[catalogKey(direction, name)]
	if !exists {
		return nil, errors.New(errors.ErrorTypeNotFound, fmt.Sprintf("connector %s not found in catalog", name))
	}

	return info, nil
}

// List returns all connectors in the catalog ordered by direction and type
func (c *ConnectorCatalog) List() []*ConnectorInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	infos := make([]*ConnectorInfo, 0, len(c.connectors))
	for _, info := range c.connectors {
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Direction != infos[j].Direction {
			return infos[i].Direction > infos[j].Direction
		}
		return infos[i].Type < infos[j].Type
	})
	return infos
}

// Global catalog instance
var globalCatalog = NewConnectorCatalog()

// RegisterConnectorInfo registers connector information in the global catalog
func RegisterConnectorInfo(info *ConnectorInfo) error {
	return globalCatalog.Register(info)
}

// GetConnectorInfo retrieves connector information from the global catalog
func GetConnectorInfo(direction core.ConnectorType, name string) (*ConnectorInfo, error) {
	return globalCatalog.Get(direction, name)
}

// ListConnectorInfo lists all connectors in the global catalog
func ListConnectorInfo() []*ConnectorInfo {
	return globalCatalog.List()
}
