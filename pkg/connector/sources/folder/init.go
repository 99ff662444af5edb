package folder

import (
	"github.com/ajitpratap0/harvester/pkg/connector/core"
	"github.com/ajitpratap0/harvester/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterInput(core.InputConnectorFunc{Name: Type, New: NewBroker})

	_ = registry.RegisterConnectorInfo(&registry.ConnectorInfo{
		Type:        Type,
		Direction:   core.ConnectorTypeSource,
		Description: "Local directory tree; one record per metadata file",
		Properties: []registry.PropertyInfo{
			{Name: PropertyRootFolder, Required: true, Description: "Directory to crawl"},
			{Name: PropertyPattern, Default: "*", Description: "Glob matched against file names"},
			{Name: PropertyRecursive, Default: "true", Description: "Descend into sub directories"},
			{Name: PropertyMaxSize, Default: "16777216", Description: "Largest file read, in bytes"},
		},
	})
}
