package folder

import (
	"github.com/ajitpratap0/harvester/pkg/connector/core"
	"github.com/ajitpratap0/harvester/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterOutput(core.OutputConnectorFunc{Name: Type, New: NewBroker})

	_ = registry.RegisterConnectorInfo(&registry.ConnectorInfo{
		Type:        Type,
		Direction:   core.ConnectorTypeDestination,
		Description: "Local directory tree; one file per record",
		Properties: []registry.PropertyInfo{
			{Name: PropertyRootFolder, Required: true, Description: "Directory receiving the documents"},
			{Name: PropertyCompression, Default: "none", Description: "none, gzip, snappy, lz4 or zstd"},
			{Name: PropertyOverwrite, Default: "true", Description: "Replace documents published before"},
		},
	})
}
