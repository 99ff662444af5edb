package meta

import (
	"mime"
	"net/url"
	"path"
	"regexp"
	"strings"
)

// ServiceTypeSchemePrefix prefixes the scheme of recognized service URLs.
const ServiceTypeSchemePrefix = "urn:x-esri:specification:ServiceType:ArcGIS:"

type servicePattern struct {
	serviceType string
	re          *regexp.Regexp
}

// checked in order; OGC endpoints come first because they are often
// published below an ArcGIS REST service path
var servicePatterns = []servicePattern{
	{"WMS", regexp.MustCompile(`(?i)(service=wms|/wmsserver)`)},
	{"WFS", regexp.MustCompile(`(?i)(service=wfs|/wfsserver)`)},
	{"WCS", regexp.MustCompile(`(?i)(service=wcs|/wcsserver)`)},
	{"WMTS", regexp.MustCompile(`(?i)(service=wmts|/wmts(/|$))`)},
	{"CSW", regexp.MustCompile(`(?i)service=csw`)},
	{"MapServer", regexp.MustCompile(`(?i)/rest/services/.+/MapServer/?(\d+/?)?$`)},
	{"FeatureServer", regexp.MustCompile(`(?i)/rest/services/.+/FeatureServer/?(\d+/?)?$`)},
	{"ImageServer", regexp.MustCompile(`(?i)/rest/services/.+/ImageServer/?$`)},
	{"GlobeServer", regexp.MustCompile(`(?i)/rest/services/.+/GlobeServer/?$`)},
	{"GPServer", regexp.MustCompile(`(?i)/rest/services/.+/GPServer/?$`)},
	{"GeocodeServer", regexp.MustCompile(`(?i)/rest/services/.+/GeocodeServer/?$`)},
	{"GeometryServer", regexp.MustCompile(`(?i)/rest/services/.+/GeometryServer/?$`)},
	{"NAServer", regexp.MustCompile(`(?i)/rest/services/.+/NAServer/?$`)},
	{"SceneServer", regexp.MustCompile(`(?i)/rest/services/.+/SceneServer/?$`)},
	{"StreamServer", regexp.MustCompile(`(?i)/rest/services/.+/StreamServer/?$`)},
	{"VectorTileServer", regexp.MustCompile(`(?i)/rest/services/.+/VectorTileServer/?$`)},
}

var extensionTypes = map[string]string{
	".kml":     "application/vnd.google-earth.kml+xml",
	".kmz":     "application/vnd.google-earth.kmz",
	".geojson": "application/geo+json",
	".json":    "application/json",
	".csv":     "text/csv",
	".zip":     "application/zip",
	".pdf":     "application/pdf",
	".xml":     "application/xml",
	".xls":     "application/vnd.ms-excel",
	".xlsx":    "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".shp":     "application/x-shapefile",
	".tif":     "image/tiff",
	".tiff":    "image/tiff",
	".png":     "image/png",
	".jpg":     "image/jpeg",
	".jpeg":    "image/jpeg",
	".htm":     "text/html",
	".html":    "text/html",
	".txt":     "text/plain",
}

// ServiceType returns the service type of a recognized service URL.
func ServiceType(rawURL string) (string, bool) {
	urlPath := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		urlPath = u.Path
	}
	for _, p := range servicePatterns {
		if p.re.MatchString(rawURL) || p.re.MatchString(urlPath) {
			return p.serviceType, true
		}
	}
	return "", false
}

// MimeType derives a MIME type from the extension of the URL path.
func MimeType(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	p := rawURL
	if err == nil {
		p = u.Path
	}
	ext := strings.ToLower(path.Ext(p))
	if ext == "" {
		return "", false
	}
	if t, ok := extensionTypes[ext]; ok {
		return t, true
	}
	if t := mime.TypeByExtension(ext); t != "" {
		mediaType, _, err := mime.ParseMediaType(t)
		if err == nil {
			return mediaType, true
		}
		return t, true
	}
	return "", false
}

// SchemeName classifies a resource URL: recognized services get a
// service-type URN, other resources their MIME type. The result is empty
// when neither applies.
func SchemeName(rawURL string) string {
	if strings.TrimSpace(rawURL) == "" {
		return ""
	}
	if st, ok := ServiceType(rawURL); ok {
		return ServiceTypeSchemePrefix + st
	}
	if mt, ok := MimeType(rawURL); ok {
		return mt
	}
	return ""
}
