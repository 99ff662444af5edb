// Package sources links every input connector into the binary. Importing it
// registers them with the global registry.
package sources

import (
	"github.com/ajitpratap0/harvester/pkg/connector/core"
	"github.com/ajitpratap0/harvester/pkg/connector/registry"
	"github.com/ajitpratap0/harvester/pkg/connector/sources/ckan"
	"github.com/ajitpratap0/harvester/pkg/connector/sources/folder"
	"github.com/ajitpratap0/harvester/pkg/errors"
)

// Connectors returns the input connectors shipped with the harvester.
func Connectors() []core.InputConnector {
	return []core.InputConnector{
		core.InputConnectorFunc{Name: ckan.Type, New: ckan.NewBroker},
		core.InputConnectorFunc{Name: folder.Type, New: folder.NewBroker},
	}
}

// Register adds every input connector to reg, e.g. a registry built for a
// test or an embedded engine.
func Register(reg *registry.Registry) error {
	var errs []error
	for _, c := range Connectors() {
		if err := reg.RegisterInput(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
