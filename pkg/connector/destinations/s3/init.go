package s3

import (
	"github.com/ajitpratap0/harvester/pkg/connector/core"
	"github.com/ajitpratap0/harvester/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterOutput(core.OutputConnectorFunc{Name: Type, New: NewBroker})

	_ = registry.RegisterConnectorInfo(&registry.ConnectorInfo{
		Type:        Type,
		Direction:   core.ConnectorTypeDestination,
		Description: "Amazon S3 or a compatible object store; one object per record",
		Properties: []registry.PropertyInfo{
			{Name: PropertyBucket, Required: true, Description: "Target bucket"},
			{Name: PropertyRegion, Default: "us-east-1", Description: "AWS region"},
			{Name: PropertyPrefix, Description: "Key prefix"},
			{Name: PropertyEndpoint, Description: "Custom endpoint, e.g. a MinIO server"},
			{Name: PropertyPathStyle, Default: "false", Description: "Use path style addressing"},
			{Name: PropertyAccessKeyID, Description: "Static access key; the default credential chain is used when blank"},
			{Name: PropertySecretAccessKey, Description: "Static secret key"},
			{Name: PropertyCompression, Default: "none", Description: "none, gzip, snappy, lz4 or zstd"},
			{Name: PropertyPartSize, Default: "5242880", Description: "Multipart upload part size in bytes"},
			{Name: PropertyConcurrency, Default: "5", Description: "Parallel part uploads"},
		},
	})
}
