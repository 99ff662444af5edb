package meta

import (
	"bytes"
	"encoding/xml"

	"github.com/ajitpratap0/harvester/pkg/errors"
)

const (
	nsRDF = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	nsDC  = "http://purl.org/dc/elements/1.1/"
	nsDCT = "http://purl.org/dc/terms/"
)

type rdfDocument struct {
	XMLName     xml.Name       `xml:"rdf:RDF"`
	NSRDF       string         `xml:"xmlns:rdf,attr"`
	NSDC        string         `xml:"xmlns:dc,attr"`
	NSDCT       string         `xml:"xmlns:dct,attr"`
	Description rdfDescription `xml:"rdf:Description"`
}

type rdfDescription struct {
	About       string         `xml:"rdf:about,attr,omitempty"`
	Identifier  string         `xml:"dc:identifier"`
	Title       string         `xml:"dc:title,omitempty"`
	Description string         `xml:"dc:description,omitempty"`
	Modified    string         `xml:"dct:modified,omitempty"`
	References  *dctReferences `xml:"dct:references,omitempty"`
}

type dctReferences struct {
	Scheme string `xml:"scheme,attr,omitempty"`
	URL    string `xml:",chardata"`
}

// DublinCoreBuilder renders attributes as a Dublin Core RDF/XML record.
type DublinCoreBuilder struct {
	// Indent pretty-prints the document when set
	Indent bool
}

// NewDublinCoreBuilder creates the default builder.
func NewDublinCoreBuilder() *DublinCoreBuilder {
	return &DublinCoreBuilder{Indent: true}
}

// ContentType returns application/xml.
func (b *DublinCoreBuilder) ContentType() string {
	return ContentTypeXML
}

// Create renders attrs. The identifier attribute is mandatory.
func (b *DublinCoreBuilder) Create(attrs Attributes) ([]byte, error) {
	id := attrs[AttrIdentifier]
	if id == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "metadata identifier is missing")
	}

	doc := rdfDocument{
		NSRDF: nsRDF,
		NSDC:  nsDC,
		NSDCT: nsDCT,
		Description: rdfDescription{
			About:       attrs[AttrResourceURL],
			Identifier:  id,
			Title:       attrs[AttrTitle],
			Description: attrs[AttrDescription],
			Modified:    attrs[AttrModified],
		},
	}
	if u := attrs[AttrResourceURL]; u != "" {
		doc.Description.References = &dctReferences{Scheme: attrs[AttrResourceURLScheme], URL: u}
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	if b.Indent {
		enc.Indent("", "  ")
	}
	if err := enc.Encode(doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to render metadata")
	}
	if err := enc.Flush(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to render metadata")
	}
	return buf.Bytes(), nil
}
