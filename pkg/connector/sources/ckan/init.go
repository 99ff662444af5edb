package ckan

import (
	"github.com/ajitpratap0/harvester/pkg/connector/core"
	"github.com/ajitpratap0/harvester/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterInput(core.InputConnectorFunc{Name: Type, New: NewBroker})

	_ = registry.RegisterConnectorInfo(&registry.ConnectorInfo{
		Type:        Type,
		Direction:   core.ConnectorTypeSource,
		Description: "CKAN open data portal; one Dublin Core record per dataset resource",
		Properties: []registry.PropertyInfo{
			{Name: PropertyHostURL, Required: true, Description: "Base URL of the portal"},
			{Name: PropertyAPIKey, Description: "API key sent in the Authorization header"},
			{Name: PropertyPageSize, Default: "10", Description: "Datasets per package_search page"},
			{Name: PropertyRobots, Default: "inherit", Description: "robots.txt handling: inherit, force or never"},
		},
	})
}
