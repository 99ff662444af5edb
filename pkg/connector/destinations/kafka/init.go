package kafka

import (
	"github.com/ajitpratap0/harvester/pkg/connector/core"
	"github.com/ajitpratap0/harvester/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterOutput(core.OutputConnectorFunc{Name: Type, New: NewBroker})

	_ = registry.RegisterConnectorInfo(&registry.ConnectorInfo{
		Type:        Type,
		Direction:   core.ConnectorTypeDestination,
		Description: "Kafka topic; one message per record keyed by broker URI and id",
		Properties: []registry.PropertyInfo{
			{Name: PropertyBrokers, Required: true, Description: "Comma separated bootstrap brokers"},
			{Name: PropertyTopic, Required: true, Description: "Target topic"},
			{Name: PropertyClientID, Default: "harvester", Description: "Kafka client id"},
			{Name: PropertyAcks, Default: "all", Description: "all, leader or none"},
			{Name: PropertyCompression, Default: "none", Description: "none, gzip, snappy, lz4 or zstd"},
			{Name: PropertyTLS, Default: "false", Description: "Connect over TLS"},
			{Name: PropertySASLUser, Description: "SASL/PLAIN user"},
			{Name: PropertySASLPassword, Description: "SASL/PLAIN password"},
			{Name: PropertyTimeout, Default: "10s", Description: "Dial and produce timeout"},
		},
	})
}
