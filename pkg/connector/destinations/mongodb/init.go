package mongodb

import (
	"github.com/ajitpratap0/harvester/pkg/connector/core"
	"github.com/ajitpratap0/harvester/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterOutput(core.OutputConnectorFunc{Name: Type, New: NewBroker})

	_ = registry.RegisterConnectorInfo(&registry.ConnectorInfo{
		Type:        Type,
		Direction:   core.ConnectorTypeDestination,
		Description: "MongoDB collection; one document per record, replaced on republish",
		Properties: []registry.PropertyInfo{
			{Name: PropertyURI, Required: true, Description: "Connection string"},
			{Name: PropertyDatabase, Required: true, Description: "Database name"},
			{Name: PropertyCollection, Default: "metadata", Description: "Collection name"},
			{Name: PropertyTimeout, Default: "10s", Description: "Connect and server selection timeout"},
		},
	})
}
