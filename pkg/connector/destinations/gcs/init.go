package gcs

import (
	"github.com/ajitpratap0/harvester/pkg/connector/core"
	"github.com/ajitpratap0/harvester/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterOutput(core.OutputConnectorFunc{Name: Type, New: NewBroker})

	_ = registry.RegisterConnectorInfo(&registry.ConnectorInfo{
		Type:        Type,
		Direction:   core.ConnectorTypeDestination,
		Description: "Google Cloud Storage bucket; one object per record",
		Properties: []registry.PropertyInfo{
			{Name: PropertyBucket, Required: true, Description: "Target bucket"},
			{Name: PropertyPrefix, Description: "Object name prefix"},
			{Name: PropertyCredentialsFile, Description: "Service account key file; application default credentials when blank"},
			{Name: PropertyEndpoint, Description: "Emulator endpoint; disables authentication"},
			{Name: PropertyCompression, Default: "none", Description: "none, gzip, snappy, lz4 or zstd"},
		},
	})
}
