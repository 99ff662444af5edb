// Package meta renders harvested attributes into normalized metadata documents.
package meta

import (
	"strings"
)

// Well-known attribute names understood by every Builder.
const (
	AttrIdentifier        = "identifier"
	AttrTitle             = "title"
	AttrDescription       = "description"
	AttrModified          = "modified"
	AttrResourceURL       = "resource.url"
	AttrResourceURLScheme = "resource.url.scheme"
)

// ContentTypeXML is the content type of documents built by the XML builders.
const ContentTypeXML = "application/xml"

// Attributes is a flat set of named values describing one record.
type Attributes map[string]string

// Set stores value under name unless value is blank.
func (a Attributes) Set(name, value string) {
	if strings.TrimSpace(value) != "" {
		a[name] = value
	}
}

// Builder turns attributes into a serialized metadata document.
type Builder interface {
	Create(attrs Attributes) ([]byte, error)
	ContentType() string
}

// FirstNonBlank returns the first value that is not empty after trimming.
func FirstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
