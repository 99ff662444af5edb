package meta

import (
	"encoding/xml"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemeName(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"map server", "https://host/arcgis/rest/services/Roads/MapServer", ServiceTypeSchemePrefix + "MapServer"},
		{"feature layer", "https://host/arcgis/rest/services/Parcels/FeatureServer/0?f=json", ServiceTypeSchemePrefix + "FeatureServer"},
		{"image server", "https://host/arcgis/rest/services/Elevation/ImageServer/", ServiceTypeSchemePrefix + "ImageServer"},
		{"wms query", "https://host/geoserver/ows?service=WMS&request=GetCapabilities", ServiceTypeSchemePrefix + "WMS"},
		{"wms below map server", "https://host/arcgis/services/Roads/MapServer/WMSServer", ServiceTypeSchemePrefix + "WMS"},
		{"csv file", "https://host/files/data.CSV", "text/csv"},
		{"pdf with query", "https://host/report.pdf?download=1", "application/pdf"},
		{"kml", "https://host/layer.kml", "application/vnd.google-earth.kml+xml"},
		{"no extension", "https://host/dataset/abc", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SchemeName(tt.url))
		})
	}
}

func TestDublinCoreBuilder(t *testing.T) {
	b := NewDublinCoreBuilder()
	assert.Equal(t, "application/xml", b.ContentType())

	attrs := Attributes{}
	attrs.Set(AttrIdentifier, "res-1")
	attrs.Set(AttrTitle, "Roads & Rails")
	attrs.Set(AttrDescription, "  ")
	attrs.Set(AttrModified, "2024-01-02T03:04:05Z")
	attrs.Set(AttrResourceURL, "https://host/roads.csv")
	attrs.Set(AttrResourceURLScheme, "text/csv")
	assert.NotContains(t, attrs, AttrDescription)

	out, err := b.Create(attrs)
	require.NoError(t, err)

	var doc struct {
		Description struct {
			About      string `xml:"about,attr"`
			Identifier string `xml:"identifier"`
			Title      string `xml:"title"`
			Modified   string `xml:"modified"`
			References struct {
				Scheme string `xml:"scheme,attr"`
				URL    string `xml:",chardata"`
			} `xml:"references"`
		} `xml:"Description"`
	}
	require.NoError(t, xml.Unmarshal(out, &doc))
	assert.Equal(t, "res-1", doc.Description.Identifier)
	assert.Equal(t, "Roads & Rails", doc.Description.Title)
	assert.Equal(t, "2024-01-02T03:04:05Z", doc.Description.Modified)
	assert.Equal(t, "https://host/roads.csv", doc.Description.About)
	assert.Equal(t, "text/csv", doc.Description.References.Scheme)
	assert.Equal(t, "https://host/roads.csv", doc.Description.References.URL)
	assert.Contains(t, string(out), `xmlns:dc="http://purl.org/dc/elements/1.1/"`)
}

func TestDublinCoreBuilderRequiresIdentifier(t *testing.T) {
	_, err := NewDublinCoreBuilder().Create(Attributes{AttrTitle: "x"})
	assert.Error(t, err)
}

func TestFirstNonBlank(t *testing.T) {
	assert.Equal(t, "b", FirstNonBlank("", " ", "b", "c"))
	assert.Equal(t, "", FirstNonBlank("", "\t"))
}
