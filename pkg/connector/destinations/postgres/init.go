package postgres

import (
	"github.com/ajitpratap0/harvester/pkg/connector/core"
	"github.com/ajitpratap0/harvester/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterOutput(core.OutputConnectorFunc{Name: Type, New: NewBroker})

	_ = registry.RegisterConnectorInfo(&registry.ConnectorInfo{
		Type:        Type,
		Direction:   core.ConnectorTypeDestination,
		Description: "PostgreSQL table; one row per record, replaced on republish",
		Properties: []registry.PropertyInfo{
			{Name: PropertyDSN, Required: true, Description: "Connection string"},
			{Name: PropertyTable, Default: "harvested_documents", Description: "Table name, optionally schema qualified"},
			{Name: PropertyMaxConns, Default: "4", Description: "Pool size"},
		},
	})
}
