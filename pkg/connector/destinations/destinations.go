// Package destinations links every output connector into the binary.
// Importing it registers them with the global registry.
package destinations

import (
	"github.com/ajitpratap0/harvester/pkg/connector/core"
	"github.com/ajitpratap0/harvester/pkg/connector/destinations/folder"
	"github.com/ajitpratap0/harvester/pkg/connector/destinations/gcs"
	"github.com/ajitpratap0/harvester/pkg/connector/destinations/kafka"
	"github.com/ajitpratap0/harvester/pkg/connector/destinations/mongodb"
	"github.com/ajitpratap0/harvester/pkg/connector/destinations/postgres"
	"github.com/ajitpratap0/harvester/pkg/connector/destinations/s3"
	"github.com/ajitpratap0/harvester/pkg/connector/registry"
	"github.com/ajitpratap0/harvester/pkg/errors"
)

// Connectors returns the output connectors shipped with the harvester.
func Connectors() []core.OutputConnector {
	return []core.OutputConnector{
		core.OutputConnectorFunc{Name: folder.Type, New: folder.NewBroker},
		core.OutputConnectorFunc{Name: gcs.Type, New: gcs.NewBroker},
		core.OutputConnectorFunc{Name: kafka.Type, New: kafka.NewBroker},
		core.OutputConnectorFunc{Name: mongodb.Type, New: mongodb.NewBroker},
		core.OutputConnectorFunc{Name: postgres.Type, New: postgres.NewBroker},
		core.OutputConnectorFunc{Name: s3.Type, New: s3.NewBroker},
	}
}

// Register adds every output connector to reg.
func Register(reg *registry.Registry) error {
	var errs []error
	for _, c := range Connectors() {
		if err := reg.RegisterOutput(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
